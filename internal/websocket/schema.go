package websocket

import (
	"github.com/stemsi/ielts-listening/internal/progress"
	"github.com/stemsi/ielts-listening/internal/session"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer   Action = "answer"
	ActionCheckbox Action = "toggle_checkbox"
	ActionDrag     Action = "drag"
	ActionSubmit   Action = "submit"
	ActionStatus   Action = "status"
	ActionPing     Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// AnswerRequest answers a blank, multiple-choice or table-radio question.
type AnswerRequest struct {
	Action Action `json:"action"`
	Number int    `json:"number"`
	Value  string `json:"value"`
}

// CheckboxRequest toggles one option of the checkbox group starting at Start.
type CheckboxRequest struct {
	Action Action `json:"action"`
	Start  int    `json:"start"`
	Value  string `json:"value"`
}

// DragRequest moves a drag-drop option. From and To are display numbers,
// 0 is the option pool.
type DragRequest struct {
	Action Action `json:"action"`
	Part   int    `json:"part"`
	Value  string `json:"value"`
	From   int    `json:"from"`
	To     int    `json:"to"`
}

// SubmitRequest is sent by the client to submit the answers manually.
type SubmitRequest struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError        Event = "error"
	EventSaved        Event = "saved"
	EventState        Event = "state"
	EventTick         Event = "tick"
	EventSubmitted    Event = "submitted"
	EventSubmitFailed Event = "submit_failed"
	EventPong         Event = "pong"
)

// SavedResponse acknowledges an answer change with the updated progress.
type SavedResponse struct {
	Event    Event           `json:"event"`
	Changed  bool            `json:"changed"`
	Progress progress.Report `json:"progress"`
}

// StatusResponse carries every lifecycle event and the status reply.
type StatusResponse struct {
	Event   Event          `json:"event"`
	Status  session.Status `json:"status"`
	Trigger string         `json:"trigger,omitempty"`
	Error   string         `json:"error,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
