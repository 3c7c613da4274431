// Package server implements the connection and session engine: the
// supervisor that owns the TCP listener, the per-connection session state
// machine, the fixed-tick broadcast loop, and the disconnect reaper.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lienxo/tfsmp/internal/chat"
	"github.com/lienxo/tfsmp/internal/core"
	"github.com/lienxo/tfsmp/internal/plugin"
	"github.com/lienxo/tfsmp/internal/protocol"
	"github.com/lienxo/tfsmp/internal/state"
)

// shutdownTimeout bounds each phase of a graceful shutdown: waiting for the
// background loops to stop and kicking the remaining players.
const shutdownTimeout = 5 * time.Second

// Server owns the listener lifecycle, spawns the broadcast and reaper
// loops, and coordinates graceful shutdown.
type Server struct {
	config *core.Config
	log    *zap.SugaredLogger

	store  *state.Store
	filter *chat.Filter
	api    *plugin.API

	mu       sync.Mutex
	listener net.Listener
}

// New wires up the world state store, the chat filter, and the plugin
// façade. The listener is not opened until Start.
func New(config *core.Config, logger *zap.SugaredLogger) *Server {
	srv := &Server{
		config: config,
		log:    logger,
		store:  state.NewStore(logger, config.BannedIPsFile),
		filter: chat.LoadFilter(config.ChatFilterFile, logger),
	}
	srv.api = plugin.NewAPI(logger, srv.store, srv)
	return srv
}

// Store exposes the world state store, mainly so operator tooling and tests
// can reach the ban list.
func (srv *Server) Store() *state.Store {
	return srv.store
}

// Addr returns the address the listener is bound to, or "" before Start has
// opened it. Useful when listening on port 0.
func (srv *Server) Addr() string {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.listener == nil {
		return ""
	}
	return srv.listener.Addr().String()
}

// Start loads plugins, opens the listener, launches the background loops,
// and serves until ctx is canceled, at which point it shuts down gracefully.
func (srv *Server) Start(ctx context.Context) error {
	srv.log.Debug("setting up serverside plugins...")
	plugin.LoadAll(srv.api, srv.log)

	listener, err := net.Listen("tcp", srv.config.ListenAddress())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", srv.config.ListenAddress(), err)
	}
	srv.mu.Lock()
	srv.listener = listener
	srv.mu.Unlock()

	loopCtx, cancelLoops := context.WithCancel(context.Background())
	var loops sync.WaitGroup
	loops.Add(2)
	go func() {
		defer loops.Done()
		srv.broadcastLoop(loopCtx)
	}()
	go func() {
		defer loops.Done()
		srv.reaperLoop(loopCtx)
	}()

	srv.log.Infof("TCP server configured on %s", srv.config.ListenAddress())

	connections := make(chan net.Conn)
	go srv.acceptLoop(loopCtx, connections)

	for {
		select {
		case <-ctx.Done():
			srv.shutdown(cancelLoops, &loops)
			return ctx.Err()
		case conn := <-connections:
			sess := newSession(srv, conn)
			go sess.run(loopCtx)
		}
	}
}

// acceptLoop accepts connections and feeds them to the serve loop. It exits
// once the listener is closed, dropping any connection the serve loop will
// no longer pick up.
func (srv *Server) acceptLoop(ctx context.Context, connections chan<- net.Conn) {
	for {
		// Poll until we can accept more clients.
		for srv.config.MaxConnections > 0 && srv.store.PlayerCount() >= srv.config.MaxConnections {
			time.Sleep(time.Second)
		}

		conn, err := srv.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			srv.log.Warnf("failed to accept connection: %v", err)
			continue
		}

		select {
		case connections <- conn:
		case <-ctx.Done():
			_ = conn.Close()
			return
		}
	}
}

// disconnect enters a player into the disconnecting set, firing the
// player-disconnected event exactly once, and closes the socket
// best-effort. Entry is idempotent; the reaper finishes the removal later.
func (srv *Server) disconnect(username string) {
	if srv.store.MarkDisconnecting(username) {
		srv.log.Infof("player %s disconnected. Scheduling for reaping.", username)
		if handle, ok := srv.api.Player(username); ok {
			srv.api.FirePlayerDisconnected(handle)
		}
	}
	if p, ok := srv.store.Player(username); ok {
		_ = p.Remote.Close()
	}
}

// forceCleanup schedules teardown for a player whose send path failed.
func (srv *Server) forceCleanup(username string) {
	if _, ok := srv.store.Player(username); !ok {
		return
	}
	srv.log.Warnf("force cleaning up unresponsive player: %s", username)
	srv.disconnect(username)
}

// Kick sends a one-shot notice to a player and closes their connection,
// driving the session through the normal disconnect path. Implements
// plugin.Kicker.
func (srv *Server) Kick(username, message string) error {
	p, ok := srv.store.Player(username)
	if !ok {
		return fmt.Errorf("no connected player named %q", username)
	}

	_ = p.Remote.Send(&protocol.ServerPacket{
		Message: "Connection validated",
		Notices: []string{protocol.Popup("Disconnected from server: " + message)},
	})
	return p.Remote.Close()
}

// shutdown stops accepting connections, waits for the background loops, and
// kicks every remaining player, each phase bounded by shutdownTimeout.
// Timeouts are logged, never fatal.
func (srv *Server) shutdown(cancelLoops context.CancelFunc, loops *sync.WaitGroup) {
	srv.log.Info("shutting down server gracefully...")

	if err := srv.listener.Close(); err != nil {
		srv.log.Warnf("failed to close listener: %v", err)
	} else {
		srv.log.Info("TCP server closed")
	}

	cancelLoops()
	if waitTimeout(loops, shutdownTimeout) {
		srv.log.Info("background tasks cancelled")
	} else {
		srv.log.Warn("timed out waiting for tasks to cancel")
	}

	players := srv.store.Players()
	var kicks sync.WaitGroup
	for _, p := range players {
		p := p
		kicks.Add(1)
		go func() {
			defer kicks.Done()
			if err := srv.Kick(p.Username, "Server is shutting down."); err != nil {
				srv.log.Warnf("failed to kick %s: %v", p.Username, err)
			}
		}()
	}
	if waitTimeout(&kicks, shutdownTimeout) {
		srv.log.Infof("kicked %d players", len(players))
	} else {
		srv.log.Warn("timed out trying to kick players")
	}

	srv.log.Info("graceful shutdown complete")
}

// waitTimeout waits on wg up to timeout, reporting whether it finished.
func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
