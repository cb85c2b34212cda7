package websocket

import "github.com/stemsi/exstem-prep/internal/engine"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSelect   Action = "select"
	ActionAdvance  Action = "advance"
	ActionSubmit   Action = "submit"
	ActionBookmark Action = "bookmark"
	ActionPing     Action = "ping"
)

// RequestPayload carries every client action. Slot and Option are only read
// by the actions that need them.
type RequestPayload struct {
	Action Action `json:"action"`
	Slot   *int   `json:"slot,omitempty"`
	Option *int   `json:"option,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventSnapshot Event = "snapshot"
	EventAdvanced Event = "advanced"
	EventBookmark Event = "bookmark"
	EventError    Event = "error"
	EventPong     Event = "pong"
)

type SnapshotResponse struct {
	Event    Event           `json:"event"`
	Snapshot engine.Snapshot `json:"snapshot"`
}

type AdvancedResponse struct {
	Event  Event `json:"event"`
	Window int   `json:"window"`
}

type BookmarkResponse struct {
	Event      Event `json:"event"`
	Slot       int   `json:"slot"`
	Bookmarked bool  `json:"bookmarked"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
