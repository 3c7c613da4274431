package protocol

// NoticeKey is the JSON key under which client-visible popup directives are
// sent. The game client's scripting layer scans packets for this key.
const NoticeKey = "!!VoscriptPluginData"

// Handshake is the first packet a client must send after connecting.
type Handshake struct {
	Username  string `json:"Username"`
	PlaneType string `json:"PlaneType"`
}

// ClientPacket is any packet sent by an authenticated client. Both service
// blocks are optional and may appear in the same packet.
type ClientPacket struct {
	PositionService *PositionUpdate `json:"PositionService,omitempty"`
	ChatService     *ChatRequest    `json:"ChatService,omitempty"`
}

// PositionUpdate carries a client's transform and vehicle state.
type PositionUpdate struct {
	Position  string                 `json:"Position"`
	Rotation  string                 `json:"Rotation"`
	PlaneType string                 `json:"PlaneType"`
	State     map[string]interface{} `json:"State,omitempty"`
}

// ChatRequest carries a chat message the client wants broadcast.
type ChatRequest struct {
	Pending string `json:"Pending"`
}

// ServerPacket is the envelope for all server-to-client packets: the
// authentication result, popup notices, and the periodic world snapshot.
type ServerPacket struct {
	Message         string         `json:"Message,omitempty"`
	Notices         []string       `json:"!!VoscriptPluginData,omitempty"`
	PlayerService   *PlayerBlock   `json:"PlayerService,omitempty"`
	PositionService *PositionBlock `json:"PositionService,omitempty"`
	ChatService     *ChatBlock     `json:"ChatService,omitempty"`
}

// PlayerBlock lists every currently connected username.
type PlayerBlock struct {
	Players []string `json:"Players"`
}

// PositionBlock carries the full position map plus the server clocks used
// by clients for interpolation.
type PositionBlock struct {
	Positions          map[string]*PositionRecord `json:"Positions"`
	TimestampFormatted string                     `json:"TimestampFormatted"`
	TimestampEpoch     float64                    `json:"TimestampEpoch"`
	CurrentServerTime  float64                    `json:"CurrentServerTime"`
}

// ChatBlock carries the rendered recent chat window.
type ChatBlock struct {
	Chat string `json:"Chat"`
}

// Popup formats a client popup directive for inclusion in a notice list.
func Popup(text string) string {
	return "PopupWindow(" + text + ",Close)"
}
