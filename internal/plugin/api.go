package plugin

import (
	"go.uber.org/zap"

	"github.com/lienxo/tfsmp/internal/protocol"
	"github.com/lienxo/tfsmp/internal/state"
)

// Kicker forcibly disconnects a player, sending a one-shot notice first.
// It is implemented by the server and routes through the same teardown path
// as any other disconnect.
type Kicker interface {
	Kick(username, message string) error
}

// API is the capability façade handed to plugins. It grants access to the
// player directory, position data, player handles, and the three event
// hooks, and nothing else.
type API struct {
	log    *zap.SugaredLogger
	store  *state.Store
	kicker Kicker

	events events
}

// NewAPI builds the plugin façade over the world state store.
func NewAPI(logger *zap.SugaredLogger, store *state.Store, kicker Kicker) *API {
	return &API{log: logger, store: store, kicker: kicker}
}

// Players returns the usernames of all connected players.
func (a *API) Players() []string {
	return a.store.Usernames()
}

// PlayerData returns a snapshot of every player's position record.
func (a *API) PlayerData() map[string]*protocol.PositionRecord {
	return a.store.PositionSnapshot()
}

// Player returns a handle for a connected player.
func (a *API) Player(username string) (*Player, bool) {
	p, ok := a.store.Player(username)
	if !ok {
		return nil, false
	}
	return &Player{Username: p.Username, remote: p.Remote, kicker: a.kicker}, true
}

// Player is a capability handle on one connected player.
type Player struct {
	Username string

	remote state.Remote
	kicker Kicker
}

// Connected reports whether the player's connection is still live.
func (p *Player) Connected() bool {
	return p.remote.Connected()
}

// Kick sends the player a one-shot popup notice and closes the connection.
func (p *Player) Kick(message string) error {
	return p.kicker.Kick(p.Username, message)
}
