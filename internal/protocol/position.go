package protocol

import (
	"encoding/json"
	"fmt"
)

// PositionRecord is one player's transform and persistent vehicle state as
// it appears in the snapshot's position map. On the wire it is a JSON array:
// four elements at join time and, once the player has streamed an update,
// eight elements with the previous sample appended so clients can
// interpolate between the two.
//
//	[pos, planeType, rot, state]
//	[pos, planeType, rot, state, prevPos, prevRot, prevReceivedAt, receivedAt]
type PositionRecord struct {
	Position  string
	PlaneType string
	Rotation  string
	State     map[string]interface{}

	PrevPosition   string
	PrevRotation   string
	PrevReceivedAt float64
	ReceivedAt     float64

	// HasPrev reports whether the record carries the trailing history
	// elements. False only before the first accepted update.
	HasPrev bool
}

func (r *PositionRecord) MarshalJSON() ([]byte, error) {
	if !r.HasPrev {
		return json.Marshal([]interface{}{r.Position, r.PlaneType, r.Rotation, r.State})
	}
	return json.Marshal([]interface{}{
		r.Position, r.PlaneType, r.Rotation, r.State,
		r.PrevPosition, r.PrevRotation, r.PrevReceivedAt, r.ReceivedAt,
	})
}

func (r *PositionRecord) UnmarshalJSON(data []byte) error {
	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decoding position record: %w", err)
	}
	if len(fields) != 4 && len(fields) != 8 {
		return fmt.Errorf("decoding position record: want 4 or 8 elements, got %d", len(fields))
	}

	targets := []interface{}{&r.Position, &r.PlaneType, &r.Rotation, &r.State}
	if len(fields) == 8 {
		r.HasPrev = true
		targets = append(targets, &r.PrevPosition, &r.PrevRotation, &r.PrevReceivedAt, &r.ReceivedAt)
	}
	for i, target := range targets {
		if err := json.Unmarshal(fields[i], target); err != nil {
			return fmt.Errorf("decoding position record element %d: %w", i, err)
		}
	}
	return nil
}
