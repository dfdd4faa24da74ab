package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rurallearn/rurallearn-backend/internal/middleware"
	"github.com/rurallearn/rurallearn-backend/internal/model"
	"github.com/rurallearn/rurallearn-backend/internal/response"
	"github.com/rurallearn/rurallearn-backend/internal/service"
)

const keepAliveInterval = 30 * time.Second

// MonitorFeed opens a subscription to a test's proctor events.
type MonitorFeed interface {
	Subscribe(ctx context.Context, testID uuid.UUID) *redis.PubSub
}

// MonitorHandler streams live proctoring events to the test's author.
type MonitorHandler struct {
	feed           MonitorFeed
	sessionService *service.TestSessionService
	log            zerolog.Logger
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(feed MonitorFeed, sessionService *service.TestSessionService, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		feed:           feed,
		sessionService: sessionService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorTestSSE godoc
// GET /api/v1/teacher/tests/:id/monitor
// Sends a snapshot of every session, then forwards session events as they happen.
func (h *MonitorHandler) MonitorTestSSE(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	testID, ok := paramID(c, "id")
	if !ok {
		return
	}

	reqCtx := c.Request.Context()

	sessions, err := h.sessionService.ListForTest(reqCtx, testID, claims.UserID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	// Subscribe before sending the snapshot so no event falls in between.
	pubsub := h.feed.Subscribe(reqCtx, testID)
	defer pubsub.Close()
	ch := pubsub.Channel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.SSEvent("message", gin.H{"type": "snapshot", "data": snapshot(sessions)})
	c.Writer.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()
	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	h.log.Info().Str("test_id", testID.String()).Msg("Teacher attached to proctor monitor")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("test_id", testID.String()).Msg("Teacher detached from proctor monitor")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Events are already JSON; forward them untouched.
			_, _ = c.Writer.Write([]byte("data: " + msg.Payload + "\n\n"))
			c.Writer.Flush()

		case <-keepAlive.C:
			_, _ = c.Writer.Write([]byte("data: " + string(pingPayload) + "\n\n"))
			c.Writer.Flush()
		}
	}
}

func snapshot(sessions []model.TestSession) gin.H {
	counts := map[model.SessionState]int{}
	students := make([]gin.H, 0, len(sessions))
	for _, s := range sessions {
		counts[s.State]++
		students = append(students, gin.H{
			"session_id":       s.ID,
			"student_id":       s.StudentID,
			"state":            s.State,
			"infraction_count": s.InfractionCount,
			"started_at":       s.StartedAt,
			"expires_at":       s.ExpiresAt,
			"submit_reason":    s.SubmitReason,
		})
	}
	return gin.H{
		"stats": gin.H{
			"total":     len(sessions),
			"created":   counts[model.SessionStateCreated],
			"running":   counts[model.SessionStateRunning],
			"completed": counts[model.SessionStateCompleted],
			"submitted": counts[model.SessionStateSubmitted],
		},
		"sessions": students,
	}
}
