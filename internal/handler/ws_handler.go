package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rurallearn/rurallearn-backend/internal/middleware"
	"github.com/rurallearn/rurallearn-backend/internal/model"
	"github.com/rurallearn/rurallearn-backend/internal/response"
	"github.com/rurallearn/rurallearn-backend/internal/service"
	"github.com/rurallearn/rurallearn-backend/internal/validator"
	ws "github.com/rurallearn/rurallearn-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler serves the proctor stream: one socket per running session
// carrying autosave, infraction and submit actions.
type WSHandler struct {
	sessionService *service.TestSessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.TestSessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/student/sessions/:id/stream
// Upgrades to WebSocket for autosave, infraction reports and submission.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	sessionID, ok := paramID(c, "id")
	if !ok {
		return
	}
	studentID := claims.UserID

	sess, err := h.sessionService.Get(c.Request.Context(), sessionID, studentID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	if sess.State != model.SessionStateRunning {
		response.Fail(c, http.StatusConflict, response.ErrInvalidSessionState)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Str("session_id", sessionID.String()).
		Str("student_id", studentID.String()).
		Logger()
	wsLog.Info().Msg("Student connected")

	ctx := context.WithoutCancel(c.Request.Context())

	for {
		var msg ws.Request
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var done bool
		switch msg.Action {
		case ws.ActionPing:
			err = ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
		case ws.ActionAutosave:
			err = h.handleAutosave(ctx, conn, sessionID, studentID, &msg)
		case ws.ActionInfraction:
			done, err = h.handleInfraction(ctx, conn, sessionID, studentID, &msg)
		case ws.ActionSubmit:
			done, err = h.handleSubmit(ctx, conn, wsLog, sessionID, studentID, &msg)
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			err = ws.WriteError(conn, string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action), nil)
		}
		if err != nil {
			wsLog.Debug().Err(err).Msg("Write failed")
			return
		}
		if done {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session submitted"))
			return
		}
	}
}

func (h *WSHandler) handleAutosave(ctx context.Context, conn *websocket.Conn, sessionID, studentID uuid.UUID, msg *ws.Request) error {
	req := model.AutosaveRequest{Answers: msg.Answers}
	if err := binding.Validator.ValidateStruct(&req); err != nil {
		return ws.WriteError(conn, string(response.ErrValidation), "invalid answers", validator.TranslateErrors(err))
	}

	answers := model.ToAnswers(req.Answers)
	if err := h.sessionService.Autosave(ctx, sessionID, studentID, answers); err != nil {
		return h.writeServiceError(conn, err)
	}
	return ws.WriteTyped(conn, ws.SavedResponse{Event: ws.EventSaved, Saved: len(answers)})
}

func (h *WSHandler) handleInfraction(ctx context.Context, conn *websocket.Conn, sessionID, studentID uuid.UUID, msg *ws.Request) (bool, error) {
	req := model.InfractionRequest{Type: msg.Type, Timestamp: msg.Timestamp}
	if err := binding.Validator.ValidateStruct(&req); err != nil {
		return false, ws.WriteError(conn, string(response.ErrValidation), "invalid infraction", validator.TranslateErrors(err))
	}

	res, err := h.sessionService.LogInfraction(ctx, sessionID, studentID, req.Type, req.Timestamp)
	if err != nil {
		return false, h.writeServiceError(conn, err)
	}

	event := ws.EventInfraction
	if res.AutoSubmitted {
		event = ws.EventAutoSubmitted
	}
	return res.AutoSubmitted, ws.WriteTyped(conn, ws.InfractionResponse{Event: event, InfractionResponse: *res})
}

func (h *WSHandler) handleSubmit(ctx context.Context, conn *websocket.Conn, wsLog zerolog.Logger, sessionID, studentID uuid.UUID, msg *ws.Request) (bool, error) {
	req := model.SubmitAnswersRequest{Answers: msg.Answers}
	if req.Answers == nil {
		req.Answers = []model.AnswerInput{}
	}
	if err := binding.Validator.ValidateStruct(&req); err != nil {
		return false, ws.WriteError(conn, string(response.ErrValidation), "invalid answers", validator.TranslateErrors(err))
	}

	res, err := h.sessionService.Submit(ctx, sessionID, studentID, model.ToAnswers(req.Answers))
	if err != nil {
		return false, h.writeServiceError(conn, err)
	}

	wsLog.Info().Float64("score", res.Score).Msg("Session submitted over stream")
	return true, ws.WriteTyped(conn, ws.GradedResponse{Event: ws.EventGraded, SubmissionResult: *res})
}

func (h *WSHandler) writeServiceError(conn *websocket.Conn, err error) error {
	_, code, fields, ok := classify(err)
	if !ok {
		h.log.Error().Err(err).Msg("Stream action failed")
	}
	return ws.WriteError(conn, string(code), response.GetMessage(code), fields)
}
