package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rurallearn/rurallearn-backend/internal/response"
)

const healthTimeout = 2 * time.Second

// Pinger reports whether a backing service is reachable.
type Pinger func(ctx context.Context) error

// QueueDepth reports how many jobs wait in a worker queue.
type QueueDepth func(ctx context.Context) (int64, error)

// SystemHandler serves liveness and readiness information.
type SystemHandler struct {
	checks    map[string]Pinger
	queue     QueueDepth
	startTime time.Time
	log       zerolog.Logger
}

// NewSystemHandler creates a SystemHandler. checks are named dependency
// pings; queue may be nil.
func NewSystemHandler(checks map[string]Pinger, queue QueueDepth, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		checks:    checks,
		queue:     queue,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type healthReport struct {
	Status        string            `json:"status"`
	Uptime        string            `json:"uptime"`
	Goroutines    int               `json:"goroutines"`
	GoVersion     string            `json:"go_version"`
	Dependencies  map[string]string `json:"dependencies"`
	AnalysisQueue *int64            `json:"analysis_queue,omitempty"`
}

// Health godoc
// GET /health
// Pings every dependency; responds 503 when any of them is down.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	report := healthReport{
		Status:       "ok",
		Uptime:       time.Since(h.startTime).Truncate(time.Second).String(),
		Goroutines:   runtime.NumGoroutine(),
		GoVersion:    runtime.Version(),
		Dependencies: make(map[string]string, len(h.checks)),
	}

	for name, ping := range h.checks {
		if err := ping(ctx); err != nil {
			h.log.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
			report.Dependencies[name] = "down"
			report.Status = "degraded"
			continue
		}
		report.Dependencies[name] = "up"
	}

	if h.queue != nil {
		if n, err := h.queue(ctx); err == nil {
			report.AnalysisQueue = &n
		}
	}

	status := http.StatusOK
	if report.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	response.Success(c, status, report)
}
