package websocket

import (
	"time"

	"github.com/rurallearn/rurallearn-backend/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAutosave   Action = "autosave"
	ActionInfraction Action = "infraction"
	ActionSubmit     Action = "submit"
	ActionPing       Action = "ping"
)

// Request is one client message. Fields unused by an action are ignored.
type Request struct {
	Action    Action              `json:"action"`
	Answers   []model.AnswerInput `json:"answers,omitempty"`
	Type      string              `json:"type,omitempty"`
	Timestamp *time.Time           `json:"timestamp,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError         Event = "error"
	EventSaved         Event = "saved"
	EventInfraction    Event = "infraction"
	EventAutoSubmitted Event = "auto_submitted"
	EventGraded        Event = "graded"
	EventPong          Event = "pong"
)

type SavedResponse struct {
	Event Event `json:"event"`
	Saved int   `json:"saved"`
}

type InfractionResponse struct {
	Event Event `json:"event"`
	model.InfractionResponse
}

type GradedResponse struct {
	Event Event `json:"event"`
	model.SubmissionResult
}

type ErrorResponse struct {
	Event  Event             `json:"event"`
	Code   string            `json:"code"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
