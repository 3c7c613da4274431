package plugin

import (
	"sync"

	"github.com/lienxo/tfsmp/internal/protocol"
)

// PlayerHandler observes a player connecting or disconnecting.
type PlayerHandler func(p *Player)

// DataHandler observes an accepted inbound data packet along with the
// player's position record at that moment.
type DataHandler func(p *Player, rec *protocol.PositionRecord)

type events struct {
	mu           sync.RWMutex
	connected    []PlayerHandler
	disconnected []PlayerHandler
	data         []DataHandler
}

// OnPlayerConnected subscribes a callback to the player-connected event.
func (a *API) OnPlayerConnected(h PlayerHandler) {
	a.events.mu.Lock()
	defer a.events.mu.Unlock()
	a.events.connected = append(a.events.connected, h)
}

// OnPlayerDisconnected subscribes a callback to the player-disconnected event.
func (a *API) OnPlayerDisconnected(h PlayerHandler) {
	a.events.mu.Lock()
	defer a.events.mu.Unlock()
	a.events.disconnected = append(a.events.disconnected, h)
}

// OnDataReceived subscribes a callback to the data-received event.
func (a *API) OnDataReceived(h DataHandler) {
	a.events.mu.Lock()
	defer a.events.mu.Unlock()
	a.events.data = append(a.events.data, h)
}

// FirePlayerConnected delivers the player-connected event. Delivery is
// fire-and-forget: each subscriber runs on its own goroutine and a slow or
// panicking subscriber never blocks or fails the caller.
func (a *API) FirePlayerConnected(p *Player) {
	a.events.mu.RLock()
	handlers := a.events.connected
	a.events.mu.RUnlock()

	for _, h := range handlers {
		h := h
		go func() {
			defer a.recoverSubscriber("PlayerConnected")
			h(p)
		}()
	}
}

// FirePlayerDisconnected delivers the player-disconnected event.
func (a *API) FirePlayerDisconnected(p *Player) {
	a.events.mu.RLock()
	handlers := a.events.disconnected
	a.events.mu.RUnlock()

	for _, h := range handlers {
		h := h
		go func() {
			defer a.recoverSubscriber("PlayerDisconnected")
			h(p)
		}()
	}
}

// FireDataReceived delivers the data-received event.
func (a *API) FireDataReceived(p *Player, rec *protocol.PositionRecord) {
	a.events.mu.RLock()
	handlers := a.events.data
	a.events.mu.RUnlock()

	for _, h := range handlers {
		h := h
		go func() {
			defer a.recoverSubscriber("DataReceived")
			h(p, rec)
		}()
	}
}

// recoverSubscriber captures a panicking subscriber so one misbehaving
// plugin cannot take down the firing session or its sibling subscribers.
func (a *API) recoverSubscriber(event string) {
	if err := recover(); err != nil {
		a.log.Errorf("panic in %s subscriber: %v", event, err)
	}
}
