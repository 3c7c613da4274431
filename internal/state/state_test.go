package state

import (
	"fmt"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"

	"github.com/lienxo/tfsmp/internal/protocol"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(zap.NewNop().Sugar(), filepath.Join(t.TempDir(), "banned_ips.json"))
}

func TestValidUsername(t *testing.T) {
	tests := []struct {
		username string
		want     bool
	}{
		{"Alice", true},
		{"alice_42", true},
		{"ab", false},
		{"", false},
		{"this_name_is_way_too_long_for_us", false},
		{"bad name", false},
		{"bad-name", false},
		{"ünïcode", false},
		{"exactly_twenty_chars", true},
	}
	for _, tt := range tests {
		if got := ValidUsername(tt.username); got != tt.want {
			t.Errorf("ValidUsername(%q) = %v, want %v", tt.username, got, tt.want)
		}
	}
}

func TestValidVector3(t *testing.T) {
	tests := []struct {
		v    string
		want bool
	}{
		{"0,2000,0", true},
		{"-1.5,2,3.25", true},
		{"1,2", false},
		{"1,2,x", false},
		{"1,2,3,4", false},
		{"", false},
		{"1, 2, 3", false},
	}
	for _, tt := range tests {
		if got := ValidVector3(tt.v); got != tt.want {
			t.Errorf("ValidVector3(%q) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestAddPlayer_DuplicateRejected(t *testing.T) {
	s := newTestStore(t)

	if !s.AddPlayer(&Player{Username: "Alice", IP: "10.0.0.1", PlaneType: "C-400"}) {
		t.Fatal("AddPlayer() rejected the first registration")
	}
	if s.AddPlayer(&Player{Username: "Alice", IP: "10.0.0.2", PlaneType: "PV-40"}) {
		t.Error("AddPlayer() accepted a second registration for an in-use name")
	}

	if got := s.Usernames(); len(got) != 1 || got[0] != "Alice" {
		t.Errorf("Usernames() = %v, want [Alice]", got)
	}
}

func TestPlayersByIP(t *testing.T) {
	s := newTestStore(t)
	s.AddPlayer(&Player{Username: "Alice", IP: "10.0.0.1", PlaneType: "C-400"})
	s.AddPlayer(&Player{Username: "Bob", IP: "10.0.0.1", PlaneType: "C-400"})
	s.AddPlayer(&Player{Username: "Carol", IP: "10.0.0.2", PlaneType: "C-400"})

	var names []string
	for _, p := range s.PlayersByIP("10.0.0.1") {
		names = append(names, p.Username)
	}
	sort.Strings(names)
	if diff := cmp.Diff([]string{"Alice", "Bob"}, names); diff != "" {
		t.Errorf("PlayersByIP() mismatch; diff:\n%s", diff)
	}
}

func TestUpdatePosition_InvalidVectorLeavesRecordUnchanged(t *testing.T) {
	s := newTestStore(t)
	s.AddPlayer(&Player{Username: "Alice", PlaneType: "C-400"})

	before, _ := s.Position("Alice")
	accepted := s.UpdatePosition("Alice", &protocol.PositionUpdate{
		Position:  "1,2,x",
		Rotation:  "0,0,0",
		PlaneType: "C-400",
	})
	if accepted {
		t.Error("UpdatePosition() accepted a malformed position vector")
	}
	after, _ := s.Position("Alice")
	if before != after {
		t.Error("rejected update replaced the position record")
	}
}

func TestUpdatePosition_RejectsUnknownPlaneType(t *testing.T) {
	s := newTestStore(t)
	s.AddPlayer(&Player{Username: "Alice", PlaneType: "C-400"})

	if s.UpdatePosition("Alice", &protocol.PositionUpdate{
		Position:  "1,2,3",
		Rotation:  "0,0,0",
		PlaneType: "B-52",
	}) {
		t.Error("UpdatePosition() accepted a vehicle type outside the fixed set")
	}
}

func TestUpdatePosition_KeepsOnePriorSample(t *testing.T) {
	s := newTestStore(t)
	s.AddPlayer(&Player{Username: "Alice", PlaneType: "C-400"})

	if !s.UpdatePosition("Alice", &protocol.PositionUpdate{
		Position: "1,2,3", Rotation: "4,5,6", PlaneType: "C-400",
	}) {
		t.Fatal("UpdatePosition() rejected a valid update")
	}
	rec, _ := s.Position("Alice")
	if !rec.HasPrev {
		t.Fatal("updated record is missing its history sample")
	}
	if rec.PrevPosition != DefaultPosition || rec.PrevRotation != DefaultRotation {
		t.Errorf("history = (%q, %q), want the join defaults", rec.PrevPosition, rec.PrevRotation)
	}

	if !s.UpdatePosition("Alice", &protocol.PositionUpdate{
		Position: "7,8,9", Rotation: "1,1,1", PlaneType: "C-400",
	}) {
		t.Fatal("UpdatePosition() rejected a valid update")
	}
	rec, _ = s.Position("Alice")
	if rec.PrevPosition != "1,2,3" || rec.PrevRotation != "4,5,6" {
		t.Errorf("history = (%q, %q), want the previous sample exactly", rec.PrevPosition, rec.PrevRotation)
	}
}

func TestUpdatePosition_InvalidRotationFallsBack(t *testing.T) {
	s := newTestStore(t)
	s.AddPlayer(&Player{Username: "Alice", PlaneType: "C-400"})

	s.UpdatePosition("Alice", &protocol.PositionUpdate{
		Position: "1,2,3", Rotation: "not,a,vector", PlaneType: "C-400",
	})
	rec, _ := s.Position("Alice")
	if rec.Rotation != DefaultRotation {
		t.Errorf("Rotation = %q, want fallback to prior rotation %q", rec.Rotation, DefaultRotation)
	}
}

func TestUpdatePosition_StateFieldFiltering(t *testing.T) {
	tests := []struct {
		name  string
		state map[string]interface{}
		check func(t *testing.T, got map[string]interface{})
	}{
		{
			name:  "matching types are applied",
			state: map[string]interface{}{"GearDown": false, "VTOLAngle": float64(45), "PV40Color": "255,0,0"},
			check: func(t *testing.T, got map[string]interface{}) {
				if got["GearDown"] != false || got["VTOLAngle"] != float64(45) || got["PV40Color"] != "255,0,0" {
					t.Errorf("valid field updates not applied: %v", got)
				}
			},
		},
		{
			name:  "unknown keys never appear",
			state: map[string]interface{}{"Afterburner": true},
			check: func(t *testing.T, got map[string]interface{}) {
				if _, ok := got["Afterburner"]; ok {
					t.Error("unknown key was added to persistent state")
				}
			},
		},
		{
			name:  "type mismatches are dropped",
			state: map[string]interface{}{"GearDown": "yes", "VTOLAngle": true},
			check: func(t *testing.T, got map[string]interface{}) {
				if got["GearDown"] != true || got["VTOLAngle"] != float64(0) {
					t.Errorf("type-mismatched updates were applied: %v", got)
				}
			},
		},
		{
			name:  "over-long strings are dropped",
			state: map[string]interface{}{"PV40Color": string(make([]byte, 101))},
			check: func(t *testing.T, got map[string]interface{}) {
				if got["PV40Color"] != "0,0,0" {
					t.Error("over-long string value was applied")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			s.AddPlayer(&Player{Username: "Alice", PlaneType: "C-400"})

			joined, _ := s.Position("Alice")
			joinedKeys := len(joined.State)

			s.UpdatePosition("Alice", &protocol.PositionUpdate{
				Position: "1,2,3", Rotation: "0,0,0", PlaneType: "C-400", State: tt.state,
			})
			rec, _ := s.Position("Alice")
			tt.check(t, rec.State)

			// The key set is frozen at join.
			if len(rec.State) != joinedKeys {
				t.Errorf("persistent state has %d keys, want %d", len(rec.State), joinedKeys)
			}
		})
	}
}

func TestValidateChatMessage_SpamInterval(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	s.now = func() time.Time { return now }

	if ok, _ := s.ValidateChatMessage("Alice", "hello"); !ok {
		t.Fatal("first message was rejected")
	}

	now = now.Add(500 * time.Millisecond)
	if ok, reason := s.ValidateChatMessage("Alice", "different"); ok {
		t.Error("message inside the spam interval was accepted")
	} else if reason == "" {
		t.Error("rejection carried no reason")
	}

	// A rejection must not reset the window: 2s after the *first* message,
	// sending is allowed again.
	now = now.Add(1500 * time.Millisecond)
	if ok, _ := s.ValidateChatMessage("Alice", "different"); !ok {
		t.Error("message after the spam interval was rejected")
	}
}

func TestValidateChatMessage_DuplicateContent(t *testing.T) {
	s := newTestStore(t)
	now := time.Now()
	s.now = func() time.Time { return now }

	s.ValidateChatMessage("Alice", "hello world")

	now = now.Add(3 * time.Second)
	if ok, _ := s.ValidateChatMessage("Alice", "  HELLO WORLD "); ok {
		t.Error("case/whitespace-insensitive duplicate was accepted")
	}

	// The same message from a different author is fine.
	if ok, _ := s.ValidateChatMessage("Bob", "hello world"); !ok {
		t.Error("duplicate check leaked across authors")
	}

	now = now.Add(3 * time.Second)
	if ok, _ := s.ValidateChatMessage("Alice", "something else"); !ok {
		t.Error("non-duplicate follow-up was rejected")
	}
}

func TestChatLog_FIFOCap(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < MaxChatMessages+10; i++ {
		s.AddChatMessage("Alice", fmt.Sprintf("msg %d", i))
	}

	if got := len(s.chat); got != MaxChatMessages {
		t.Fatalf("chat log holds %d entries, want %d", got, MaxChatMessages)
	}
	if s.chat[0].Message != "msg 10" {
		t.Errorf("oldest entry = %q, want %q (FIFO eviction)", s.chat[0].Message, "msg 10")
	}
	if s.chat[len(s.chat)-1].Message != fmt.Sprintf("msg %d", MaxChatMessages+9) {
		t.Error("newest entry is not last")
	}
}

func TestChatWindow(t *testing.T) {
	s := newTestStore(t)
	s.AddChatMessage("Alice", "first")
	s.AddChatMessage("Bob", "second")
	s.AddChatMessage("Alice", "third")

	want := "[Bob] second\n[Alice] third"
	if got := s.ChatWindow(2); got != want {
		t.Errorf("ChatWindow(2) = %q, want %q", got, want)
	}
}

func TestDisconnectingLifecycle(t *testing.T) {
	s := newTestStore(t)
	s.AddPlayer(&Player{Username: "Alice", PlaneType: "C-400"})
	s.ValidateChatMessage("Alice", "hello")

	if !s.MarkDisconnecting("Alice") {
		t.Fatal("MarkDisconnecting() failed for a registered player")
	}
	if s.MarkDisconnecting("Alice") {
		t.Error("second MarkDisconnecting() reported newly marked")
	}
	if s.MarkDisconnecting("Nobody") {
		t.Error("MarkDisconnecting() succeeded for an unknown player")
	}

	// Still visible to broadcast until reaped.
	if got := s.Usernames(); len(got) != 1 {
		t.Errorf("Usernames() = %v; disconnecting player should remain visible", got)
	}
	if diff := cmp.Diff([]string{"Alice"}, s.Disconnecting()); diff != "" {
		t.Errorf("Disconnecting() mismatch; diff:\n%s", diff)
	}

	s.RemovePlayerFully("Alice")
	if got := s.Usernames(); len(got) != 0 {
		t.Errorf("Usernames() = %v after reap, want empty", got)
	}
	if _, ok := s.Position("Alice"); ok {
		t.Error("position record survived the reap")
	}
	if len(s.Disconnecting()) != 0 {
		t.Error("disconnecting mark survived the reap")
	}
	if got := s.spam.get("Alice"); got.lastText != "" {
		t.Error("anti-spam record survived the reap")
	}
}

// Rejoining before the reaper has run clears the stale disconnecting mark.
func TestAddPlayer_ClearsDisconnectingMark(t *testing.T) {
	s := newTestStore(t)
	s.AddPlayer(&Player{Username: "Alice", PlaneType: "C-400"})
	s.MarkDisconnecting("Alice")
	s.RemovePlayerFully("Alice")

	s.AddPlayer(&Player{Username: "Alice", PlaneType: "C-400"})
	if s.IsDisconnecting("Alice") {
		t.Error("fresh registration still marked disconnecting")
	}
}
