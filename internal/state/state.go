// Package state owns all mutable shared session data: the player directory,
// position records, chat history, anti-spam bookkeeping, the disconnecting
// set, and the persisted IP ban list. Every collection is guarded by one
// store-level lock so that broadcast iteration never observes a
// half-inserted or half-removed entry.
package state

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lienxo/tfsmp/internal/protocol"
)

// MaxChatMessages bounds the chat log; the oldest entry is evicted first.
const MaxChatMessages = 100

// ChatSpamDelay is the minimum interval between two messages from the same
// author.
const ChatSpamDelay = 2 * time.Second

// DefaultPosition and DefaultRotation seed a player's record at join time.
const (
	DefaultPosition = "0,2000,0"
	DefaultRotation = "0,0,0"
)

// Remote is the non-owning handle to a player's connection held in the
// directory. The session retains exclusive ownership of the socket; the
// broadcast loop and plugins only get to send through it or ask whether it
// is still up.
type Remote interface {
	// Send writes one packet to the connection, serialized against any
	// concurrent sender.
	Send(packet interface{}) error

	// SendRaw writes an already-encoded frame. The broadcast loop encodes
	// its snapshot once per tick and fans the same bytes out to everyone.
	SendRaw(frame []byte) error

	// Connected reports whether the connection is still considered live.
	Connected() bool

	// Close shuts the underlying socket down, unblocking any pending read.
	// Must be safe to call more than once.
	Close() error
}

// Player is one authenticated connection's directory entry. All fields are
// immutable for the session's lifetime.
type Player struct {
	Username  string
	Address   string // ip:port captured at accept time
	IP        string
	PlaneType string
	Remote    Remote
}

type chatMessage struct {
	Sender  string
	Message string
}

// Store is the authoritative holder of all shared world state. All methods
// are safe for concurrent use.
type Store struct {
	log *zap.SugaredLogger

	mu            sync.RWMutex
	players       map[string]*Player
	positions     map[string]*protocol.PositionRecord
	chat          []chatMessage
	disconnecting map[string]struct{}

	spam *spamRecords
	bans *banList

	// now is swappable in tests.
	now   func() time.Time
	start time.Time
}

// NewStore creates a Store and loads the ban list from bannedIPsFile,
// creating an empty default file when it is absent or unreadable.
func NewStore(logger *zap.SugaredLogger, bannedIPsFile string) *Store {
	return &Store{
		log:           logger,
		players:       make(map[string]*Player),
		positions:     make(map[string]*protocol.PositionRecord),
		disconnecting: make(map[string]struct{}),
		spam:          newSpamRecords(),
		bans:          loadBanList(bannedIPsFile, logger),
		now:           time.Now,
		start:         time.Now(),
	}
}

// ServerTime returns the monotonic server-time counter in seconds, measured
// from store creation. It is included in every snapshot so clients can
// order samples.
func (s *Store) ServerTime() float64 {
	return s.now().Sub(s.start).Seconds()
}

// AddPlayer registers an authenticated player together with its default
// position record, reporting false if the username is already registered.
// The check and the insert happen under one lock so two racing sessions can
// never both claim a name. Any stale disconnecting mark is cleared.
func (s *Store) AddPlayer(p *Player) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.players[p.Username]; taken {
		return false
	}
	s.players[p.Username] = p
	s.positions[p.Username] = &protocol.PositionRecord{
		Position:   DefaultPosition,
		PlaneType:  p.PlaneType,
		Rotation:   DefaultRotation,
		State:      defaultStateTemplate(),
		ReceivedAt: s.ServerTime(),
	}
	delete(s.disconnecting, p.Username)
	return true
}

// RemovePlayerFully purges every trace of a player: directory entry,
// position record, anti-spam record, and disconnecting mark. Only the
// reaper should call this; sessions mark themselves disconnecting instead.
func (s *Store) RemovePlayerFully(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.players, username)
	delete(s.positions, username)
	delete(s.disconnecting, username)
	s.spam.remove(username)
	s.log.Infof("fully reaped player data for %s", username)
}

// Player looks up a directory entry by username.
func (s *Store) Player(username string) (*Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[username]
	return p, ok
}

// Usernames returns the names of all registered players, including ones
// marked disconnecting but not yet reaped.
func (s *Store) Usernames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.players))
	for name := range s.players {
		names = append(names, name)
	}
	return names
}

// Players returns a snapshot of all directory entries.
func (s *Store) Players() []*Player {
	s.mu.RLock()
	defer s.mu.RUnlock()

	players := make([]*Player, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, p)
	}
	return players
}

// PlayersByIP returns every registered player connected from ipAddr.
func (s *Store) PlayersByIP(ipAddr string) []*Player {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var players []*Player
	for _, p := range s.players {
		if p.IP == ipAddr {
			players = append(players, p)
		}
	}
	return players
}

// PlayerCount returns the number of registered players.
func (s *Store) PlayerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.players)
}

// Position returns the current position record for a player.
func (s *Store) Position(username string) (*protocol.PositionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.positions[username]
	return rec, ok
}

// PositionSnapshot returns a copy of the position map. The records
// themselves are immutable once published, so the snapshot can be
// marshaled without holding the store lock.
func (s *Store) PositionSnapshot() map[string]*protocol.PositionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(map[string]*protocol.PositionRecord, len(s.positions))
	for name, rec := range s.positions {
		snapshot[name] = rec
	}
	return snapshot
}

// UpdatePosition validates and applies a streamed position update,
// preserving exactly one prior sample for client-side interpolation. It
// reports whether the update was accepted; a rejected update leaves the
// prior record untouched.
func (s *Store) UpdatePosition(username string, update *protocol.PositionUpdate) bool {
	if update == nil || !ValidVector3(update.Position) || !ValidPlaneType(update.PlaneType) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.positions[username]
	if !ok {
		return false
	}

	// Field updates are filtered against the existing persistent state:
	// unknown keys and type or length mismatches are dropped silently. The
	// key set never grows or shrinks after join.
	newState := make(map[string]interface{}, len(old.State))
	for key, value := range old.State {
		newState[key] = value
	}
	for key, value := range update.State {
		existing, ok := newState[key]
		if !ok || !sameJSONType(existing, value) {
			continue
		}
		if str, ok := value.(string); ok && len(str) > 100 {
			continue
		}
		newState[key] = value
	}

	rotation := update.Rotation
	if !ValidVector3(rotation) {
		rotation = old.Rotation
	}

	// Records are replaced wholesale rather than mutated so that snapshots
	// already handed to the broadcast loop stay consistent.
	s.positions[username] = &protocol.PositionRecord{
		Position:       update.Position,
		PlaneType:      update.PlaneType,
		Rotation:       rotation,
		State:          newState,
		PrevPosition:   old.Position,
		PrevRotation:   old.Rotation,
		PrevReceivedAt: old.ReceivedAt,
		ReceivedAt:     s.now().Sub(s.start).Seconds(),
		HasPrev:        true,
	}
	return true
}

// sameJSONType reports whether two decoded JSON values share a semantic
// type. encoding/json decodes every number as float64, so numeric fields
// compare as numbers regardless of the client's integer formatting.
func sameJSONType(existing, incoming interface{}) bool {
	switch existing.(type) {
	case bool:
		_, ok := incoming.(bool)
		return ok
	case string:
		_, ok := incoming.(string)
		return ok
	case float64:
		_, ok := incoming.(float64)
		return ok
	default:
		return false
	}
}

// MarkDisconnecting flags a player's session as torn down, leaving its data
// in place for the reaper. It reports whether the player was newly marked;
// a repeat mark or an unknown username returns false, which keeps
// disconnect-event delivery idempotent.
func (s *Store) MarkDisconnecting(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.players[username]; !ok {
		return false
	}
	if _, ok := s.disconnecting[username]; ok {
		return false
	}
	s.disconnecting[username] = struct{}{}
	return true
}

// IsDisconnecting reports whether a player has been marked for reaping.
func (s *Store) IsDisconnecting(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.disconnecting[username]
	return ok
}

// Disconnecting returns a snapshot of the usernames awaiting reaping.
// Iterating the snapshot rather than the live set keeps the reaper from
// racing disconnects that land mid-sweep.
func (s *Store) Disconnecting() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.disconnecting))
	for name := range s.disconnecting {
		names = append(names, name)
	}
	return names
}

// ValidateChatMessage applies the anti-spam rules: a minimum interval
// between messages and rejection of consecutive duplicates
// (case-insensitive, whitespace-trimmed) from the same author. Rejection
// never mutates the author's record.
func (s *Store) ValidateChatMessage(author, message string) (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	rec := s.spam.get(author)
	if now.Sub(rec.lastSent) < ChatSpamDelay {
		return false, "You are sending messages too quickly!"
	}
	if strings.EqualFold(strings.TrimSpace(message), strings.TrimSpace(rec.lastText)) {
		return false, "Do not repeat the same message!"
	}
	s.spam.put(author, spamRecord{lastSent: now, lastText: message})
	return true, ""
}

// AddChatMessage appends a message to the bounded chat log, evicting the
// oldest entry once the log is full.
func (s *Store) AddChatMessage(author, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chat = append(s.chat, chatMessage{Sender: author, Message: message})
	if len(s.chat) > MaxChatMessages {
		s.chat = s.chat[1:]
	}
}

// ChatWindow renders the last count chat messages, newest last, in the
// form shown to clients.
func (s *Store) ChatWindow(count int) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := s.chat
	if len(messages) > count {
		messages = messages[len(messages)-count:]
	}
	lines := make([]string, len(messages))
	for i, msg := range messages {
		lines[i] = fmt.Sprintf("[%s] %s", msg.Sender, msg.Message)
	}
	return strings.Join(lines, "\n")
}

// BanIP adds an address to the ban list and persists it. Persistence
// failures are logged; the in-memory list stays authoritative.
func (s *Store) BanIP(ipAddr, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.bans.add(ipAddr, reason)
	s.log.Infof("IP address %s has been banned. Reason: %s", ipAddr, reason)
}

// UnbanIP removes an address from the ban list, reporting whether it was
// present.
func (s *Store) UnbanIP(ipAddr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.bans.remove(ipAddr) {
		return false
	}
	s.log.Infof("IP address %s has been unbanned", ipAddr)
	return true
}

// IsBanned returns the ban reason for an address, if any.
func (s *Store) IsBanned(ipAddr string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bans.reason(ipAddr)
}
