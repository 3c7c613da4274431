package server

import (
	"context"
	"sync"
	"time"

	"github.com/lienxo/tfsmp/internal/protocol"
)

// chatWindowSize is the number of recent chat messages rendered into each
// snapshot and into private rejection notices.
const chatWindowSize = 40

// broadcastLoop pushes a consolidated world snapshot to every connected
// player on a fixed tick until ctx is canceled. A failed tick never stops
// the loop.
func (srv *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(srv.config.BroadcastInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			srv.broadcastTick()
		}
	}
}

// broadcastTick builds one snapshot and sends it independently to every
// registered player. The snapshot is constructed and encoded once per tick,
// not once per recipient; a send failure for one recipient schedules that
// recipient's disconnection without delaying the others.
func (srv *Server) broadcastTick() {
	defer func() {
		if err := recover(); err != nil {
			srv.log.Errorf("CRITICAL error in broadcast loop: %v", err)
		}
	}()

	if srv.store.PlayerCount() == 0 {
		return
	}

	now := time.Now()
	snapshot := &protocol.ServerPacket{
		PlayerService: &protocol.PlayerBlock{Players: srv.store.Usernames()},
		PositionService: &protocol.PositionBlock{
			Positions:          srv.store.PositionSnapshot(),
			TimestampFormatted: now.Format("15:04:05"),
			TimestampEpoch:     float64(now.Unix()),
			CurrentServerTime:  srv.store.ServerTime(),
		},
		ChatService: &protocol.ChatBlock{Chat: srv.store.ChatWindow(chatWindowSize)},
	}

	frame, err := protocol.Encode(snapshot)
	if err != nil {
		srv.log.Errorf("CRITICAL error encoding snapshot: %v", err)
		return
	}

	var sends sync.WaitGroup
	for _, p := range srv.store.Players() {
		if !p.Remote.Connected() {
			continue
		}
		p := p
		sends.Add(1)
		go func() {
			defer sends.Done()
			if err := p.Remote.SendRaw(frame); err != nil {
				srv.log.Warnf("network error for %s: %v. Scheduling cleanup.", p.Username, err)
				srv.forceCleanup(p.Username)
			}
		}()
	}
	sends.Wait()
}
