package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lienxo/tfsmp/internal/chat"
	"github.com/lienxo/tfsmp/internal/protocol"
	"github.com/lienxo/tfsmp/internal/state"
)

const (
	// authTimeout bounds the wait for a client's first packet.
	authTimeout = 10 * time.Second
	// readTimeout bounds each streaming read; hitting it ends the session.
	readTimeout = 60 * time.Second
	// sendTimeout bounds each socket write; exceeding it counts as a send
	// failure.
	sendTimeout = 1 * time.Second

	readChunkSize = 4096

	maxChatLength = 150
)

// errConnectionAborted marks protocol or validation failures that are fatal
// to one connection only.
var errConnectionAborted = errors.New("connection aborted")

// session is the per-connection actor. It owns the socket exclusively and
// walks the connection through authenticate, stream, and teardown; the
// broadcast loop only ever touches the socket through the session's
// serialized send path.
type session struct {
	id   string
	srv  *Server
	log  *zap.SugaredLogger
	conn net.Conn

	ipAddr string
	addr   string

	// username is set once authentication succeeds and never changes.
	username string

	writeMu sync.Mutex
	closed  atomic.Bool
}

func newSession(srv *Server, conn net.Conn) *session {
	id := uuid.NewString()
	addr := conn.RemoteAddr().String()
	ipAddr := addr
	if host, _, err := net.SplitHostPort(addr); err == nil {
		ipAddr = host
	}

	return &session{
		id:     id,
		srv:    srv,
		log:    srv.log.With("session", id),
		conn:   conn,
		ipAddr: ipAddr,
		addr:   addr,
	}
}

// run drives the session state machine and always leaves the connection
// closed and, if a player was registered, marked for reaping.
func (s *session) run(ctx context.Context) {
	defer s.cleanup()

	s.log.Infof("incoming connection from %s", s.ipAddr)

	if err := s.authenticate(); err != nil {
		s.log.Infof("connection from %s aborted: %v", s.ipAddr, err)
		return
	}

	if err := s.stream(ctx); err != nil {
		s.log.Infof("connection with %s lost: %v", s.username, err)
	}
}

// authenticate reads and validates the client's first packet, registering
// the player on success. Any failure before registration leaves no state
// behind.
func (s *session) authenticate() error {
	packet, err := s.readFirstPacket()
	if err != nil {
		return err
	}

	var handshake protocol.Handshake
	if err := json.Unmarshal(packet, &handshake); err != nil {
		// Authentication has no history to preserve, so a malformed first
		// packet is fatal.
		return fmt.Errorf("%w: malformed handshake: %v", errConnectionAborted, err)
	}

	if reason, banned := s.srv.store.IsBanned(s.ipAddr); banned {
		s.sendNotice("Your IP address is banned. Reason: " + reason)
		return fmt.Errorf("%w: banned IP %s tried to connect (reason: %s)", errConnectionAborted, s.ipAddr, reason)
	}
	if !state.ValidUsername(handshake.Username) {
		s.sendNotice("Disconnected: Invalid username.")
		return fmt.Errorf("%w: invalid username", errConnectionAborted)
	}
	if _, taken := s.srv.store.Player(handshake.Username); taken {
		s.sendNotice("Disconnected: This username is already online.")
		return fmt.Errorf("%w: username %q already online", errConnectionAborted, handshake.Username)
	}
	if !state.ValidPlaneType(handshake.PlaneType) {
		return fmt.Errorf("%w: invalid plane type %q", errConnectionAborted, handshake.PlaneType)
	}

	player := &state.Player{
		Username:  handshake.Username,
		Address:   s.addr,
		IP:        s.ipAddr,
		PlaneType: handshake.PlaneType,
		Remote:    s,
	}
	if !s.srv.store.AddPlayer(player) {
		// Lost a registration race with a concurrent session using the
		// same name.
		s.sendNotice("Disconnected: This username is already online.")
		return fmt.Errorf("%w: username %q already online", errConnectionAborted, handshake.Username)
	}
	s.username = handshake.Username
	s.log.Infof("connection from %s accepted as %s", s.ipAddr, s.username)

	_ = s.Send(&protocol.ServerPacket{
		Message: "Connection validated",
		Notices: []string{protocol.Popup("Welcome to the server!")},
	})

	if handle, ok := s.srv.api.Player(s.username); ok {
		s.srv.api.FirePlayerConnected(handle)
	}
	return nil
}

// readFirstPacket waits up to authTimeout for one complete framed packet.
func (s *session) readFirstPacket() ([]byte, error) {
	deadline := time.Now().Add(authTimeout)
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("setting auth deadline: %w", err)
	}

	var buffer protocol.Buffer
	chunk := make([]byte, readChunkSize)
	for {
		if packet, ok := buffer.Next(); ok {
			return packet, nil
		}

		n, err := s.conn.Read(chunk)
		if n > 0 {
			if aerr := buffer.Append(chunk[:n]); aerr != nil {
				return nil, fmt.Errorf("%w: %v", errConnectionAborted, aerr)
			}
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, fmt.Errorf("%w: client did not send initial data in time", errConnectionAborted)
			}
			return nil, fmt.Errorf("%w: %v", errConnectionAborted, err)
		}
	}
}

// stream is the main packet loop for an authenticated session. A read
// timeout or empty read ends streaming normally; a buffer-limit violation
// is a protocol error fatal to this connection.
func (s *session) stream(ctx context.Context) error {
	var buffer protocol.Buffer
	chunk := make([]byte, readChunkSize)

	for {
		if ctx.Err() != nil || s.closed.Load() {
			return nil
		}
		// A session already marked disconnecting stops streaming even if
		// the socket is still technically open.
		if s.srv.store.IsDisconnecting(s.username) {
			return nil
		}

		if err := s.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return fmt.Errorf("setting read deadline: %w", err)
		}
		n, err := s.conn.Read(chunk)
		if n > 0 {
			if aerr := buffer.Append(chunk[:n]); aerr != nil {
				return fmt.Errorf("%w: %v", errConnectionAborted, aerr)
			}
			for {
				packet, ok := buffer.Next()
				if !ok {
					break
				}
				s.handlePacket(packet)
			}
		}
		if err != nil {
			var netErr net.Error
			if err == io.EOF || (errors.As(err, &netErr) && netErr.Timeout()) {
				return nil
			}
			return err
		}
		if n == 0 {
			return nil
		}
	}
}

// handlePacket dispatches one framed packet. Malformed JSON is logged and
// dropped without affecting the connection; packets for a username no
// longer in the directory are ignored.
func (s *session) handlePacket(packet []byte) {
	if _, ok := s.srv.store.Player(s.username); !ok {
		return
	}

	var data protocol.ClientPacket
	if err := json.Unmarshal(packet, &data); err != nil {
		s.log.Warnf("received malformed JSON from %s", s.username)
		return
	}

	if data.PositionService != nil {
		s.srv.store.UpdatePosition(s.username, data.PositionService)
		if handle, ok := s.srv.api.Player(s.username); ok {
			if rec, ok := s.srv.store.Position(s.username); ok {
				s.srv.api.FireDataReceived(handle, rec)
			}
		}
	}
	if data.ChatService != nil {
		s.handleChat(data.ChatService.Pending)
	}
}

// handleChat runs the inbound chat pipeline: truncate, trim, banned-word
// gate, anti-spam validation. Rejections are reported privately to the
// author only, best-effort.
func (s *session) handleChat(raw string) {
	if runes := []rune(raw); len(runes) > maxChatLength {
		raw = string(runes[:maxChatLength])
	}
	message := strings.TrimSpace(raw)
	if message == "" {
		return
	}

	reason := ""
	accepted := s.srv.filter.Allow(message)
	if !accepted {
		reason = chat.RejectionReason
	} else {
		accepted, reason = s.srv.store.ValidateChatMessage(s.username, message)
	}

	if accepted {
		s.log.Infof("CHAT: [%s] %s", s.username, message)
		s.srv.store.AddChatMessage(s.username, message)
		return
	}

	window := "[Server] Error: " + reason + "\n" + s.srv.store.ChatWindow(chatWindowSize)
	_ = s.Send(&protocol.ServerPacket{ChatService: &protocol.ChatBlock{Chat: window}})
}

// cleanup is phase one of the two-phase teardown: mark the player
// disconnecting (the reaper removes the data later) and close the socket.
func (s *session) cleanup() {
	if s.username != "" {
		s.srv.disconnect(s.username)
	}
	s.closeSocket()
}

// Send serializes one packet to the connection. Writes are serialized per
// connection and bounded by sendTimeout. Implements state.Remote.
func (s *session) Send(packet interface{}) error {
	frame, err := protocol.Encode(packet)
	if err != nil {
		return err
	}
	return s.SendRaw(frame)
}

// SendRaw writes an already-encoded frame to the connection.
func (s *session) SendRaw(frame []byte) error {
	if s.closed.Load() {
		return net.ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(sendTimeout)); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if _, err := s.conn.Write(frame); err != nil {
		return fmt.Errorf("sending to %s: %w", s.ipAddr, err)
	}
	return nil
}

// sendNotice sends a one-shot popup directive, swallowing any error: the
// connection is being rejected anyway.
func (s *session) sendNotice(text string) {
	_ = s.Send(&protocol.ServerPacket{Notices: []string{protocol.Popup(text)}})
}

// Connected reports whether the socket is still open. Implements
// state.Remote.
func (s *session) Connected() bool {
	return !s.closed.Load()
}

// Close shuts the socket down, unblocking any pending read. Safe to call
// more than once. Implements state.Remote.
func (s *session) Close() error {
	return s.closeSocket()
}

func (s *session) closeSocket() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.conn.Close()
}
