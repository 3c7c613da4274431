package server

import (
	"context"
	"time"
)

// reapInterval is how often the reaper finalizes removal of players marked
// disconnecting. The delay decouples socket teardown from data teardown so
// the broadcast loop never has an entry deleted out from under it.
const reapInterval = 3 * time.Second

// reaperLoop periodically purges the data of every player in the
// disconnecting set. The first sweep runs after one interval's initial
// delay. Sweeps work from a snapshot of the set's membership, so players
// marked mid-sweep wait for the next tick.
func (srv *Server) reaperLoop(ctx context.Context) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(reapInterval):
	}

	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			srv.reapTick()
		}
	}
}

// reapTick runs one sweep, fully removing every player currently in the
// disconnecting set.
func (srv *Server) reapTick() {
	names := srv.store.Disconnecting()
	if len(names) == 0 {
		return
	}
	srv.log.Infof("reaper task running. Found %d players to reap.", len(names))
	for _, username := range names {
		srv.store.RemovePlayerFully(username)
	}
}
