package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionState enumerates test session states. Transitions only move forward.
type SessionState string

const (
	SessionStateCreated   SessionState = "created"
	SessionStateRunning   SessionState = "running"
	SessionStateCompleted SessionState = "completed"
	SessionStateSubmitted SessionState = "submitted"
)

// Terminal reports whether no further mutation is accepted in this state.
func (s SessionState) Terminal() bool {
	return s == SessionStateCompleted || s == SessionStateSubmitted
}

// SubmitReason records why a session reached the submitted state.
type SubmitReason string

const (
	SubmitReasonManual      SubmitReason = "manual"
	SubmitReasonInfractions SubmitReason = "infractions"
)

// Infraction types accepted from proctoring clients.
const (
	InfractionTabSwitch      = "tab_switch"
	InfractionWindowBlur     = "window_blur"
	InfractionFullscreenExit = "fullscreen_exit"
	InfractionCopyPaste      = "copy_paste"
	InfractionRightClick     = "right_click"
	InfractionDevtools       = "devtools_open"
	InfractionOther          = "other"
)

// InfractionTypes lists every accepted infraction type.
var InfractionTypes = []string{
	InfractionTabSwitch,
	InfractionWindowBlur,
	InfractionFullscreenExit,
	InfractionCopyPaste,
	InfractionRightClick,
	InfractionDevtools,
	InfractionOther,
}

// Infraction is one proctoring violation in a session's log.
type Infraction struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

// AllowedActions are the UI affordances granted to a running session.
type AllowedActions struct {
	Navigation bool `json:"navigation"`
	Review     bool `json:"review"`
	Flag       bool `json:"flag"`
}

// AntiCheatPolicy is resolved from the test's proctor rules when a session starts.
type AntiCheatPolicy struct {
	MaxInfractions    int  `json:"max_infractions"`
	RequireFullScreen bool `json:"require_full_screen"`
	AllowTabSwitch    bool `json:"allow_tab_switch"`
	AllowBlur         bool `json:"allow_blur"`
}

// TestSession is one student's timed attempt at a mock test.
type TestSession struct {
	ID              uuid.UUID        `json:"id"`
	TestID          uuid.UUID        `json:"test_id"`
	StudentID       uuid.UUID        `json:"student_id"`
	State           SessionState     `json:"state"`
	StartedAt       *time.Time       `json:"started_at,omitempty"`
	ExpiresAt       *time.Time       `json:"expires_at,omitempty"`
	SubmittedAt     *time.Time       `json:"submitted_at,omitempty"`
	SubmitReason    *SubmitReason    `json:"submit_reason,omitempty"`
	InfractionCount int              `json:"infraction_count"`
	Infractions     []Infraction     `json:"infractions"`
	AllowedActions  *AllowedActions  `json:"allowed_actions,omitempty"`
	AntiCheatPolicy *AntiCheatPolicy `json:"anti_cheat_policy,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Expired reports whether a running session is past its deadline at now.
func (s *TestSession) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && !now.Before(*s.ExpiresAt)
}

// StartSessionResponse is returned when a session moves to running.
type StartSessionResponse struct {
	SessionID       uuid.UUID       `json:"session_id"`
	StartedAt       time.Time       `json:"started_at"`
	ExpiresAt       time.Time       `json:"expires_at"`
	ServerTime      time.Time       `json:"server_time"`
	AllowedActions  AllowedActions  `json:"allowed_actions"`
	AntiCheatPolicy AntiCheatPolicy `json:"anti_cheat_policy"`
}

// InfractionRequest is the payload for logging an infraction.
type InfractionRequest struct {
	Type      string     `json:"type" binding:"required,infraction"`
	Timestamp *time.Time `json:"timestamp" binding:"omitempty"`
}

// InfractionResponse acknowledges an infraction.
type InfractionResponse struct {
	Acknowledged    bool `json:"acknowledged"`
	AutoSubmitted   bool `json:"auto_submitted"`
	InfractionCount int  `json:"infraction_count"`
}

// SubmitAnswersRequest is the payload for final submission of a session or quiz.
type SubmitAnswersRequest struct {
	Answers []AnswerInput `json:"answers" binding:"required,max=500,dive"`
}

// AutosaveRequest carries in-progress answers for a running session.
type AutosaveRequest struct {
	Answers []AnswerInput `json:"answers" binding:"required,min=1,max=500,dive"`
}

// AnswerInput is a single answer as sent by the client. SelectedIndex -1
// means the question was not attempted.
type AnswerInput struct {
	QuestionID    uuid.UUID `json:"question_id" binding:"required"`
	SelectedIndex *int      `json:"selected_index" binding:"required,min=-1"`
	TimeTakenSec  int       `json:"time_taken_sec" binding:"omitempty,min=0,max=86400"`
}

// ToAnswers converts validated inputs to domain answers.
func ToAnswers(in []AnswerInput) []Answer {
	out := make([]Answer, 0, len(in))
	for _, a := range in {
		idx := NotAttempted
		if a.SelectedIndex != nil {
			idx = *a.SelectedIndex
		}
		out = append(out, Answer{QuestionID: a.QuestionID, SelectedIndex: idx, TimeTakenSec: a.TimeTakenSec})
	}
	return out
}

// ProctorEventType enumerates events on a test's monitor feed.
type ProctorEventType string

const (
	ProctorEventStarted       ProctorEventType = "session_started"
	ProctorEventInfraction    ProctorEventType = "infraction"
	ProctorEventAutoSubmitted ProctorEventType = "auto_submitted"
	ProctorEventSubmitted     ProctorEventType = "submitted"
)

// ProctorEvent is one entry on a test's monitor feed.
type ProctorEvent struct {
	Type            ProctorEventType `json:"type"`
	TestID          uuid.UUID        `json:"test_id"`
	SessionID       uuid.UUID        `json:"session_id"`
	StudentID       uuid.UUID        `json:"student_id"`
	InfractionType  string           `json:"infraction_type,omitempty"`
	InfractionCount int              `json:"infraction_count"`
	Score           *float64         `json:"score,omitempty"`
	At              time.Time        `json:"at"`
}
