package handler

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rurallearn/rurallearn-backend/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestSnapshot_StatsCoverEveryState(t *testing.T) {
	states := []model.SessionState{
		model.SessionStateCreated,
		model.SessionStateRunning,
		model.SessionStateRunning,
		model.SessionStateCompleted,
		model.SessionStateSubmitted,
	}
	sessions := make([]model.TestSession, 0, len(states))
	for _, st := range states {
		sessions = append(sessions, model.TestSession{ID: uuid.New(), StudentID: uuid.New(), State: st})
	}

	stats := snapshot(sessions)["stats"].(gin.H)

	assert.Equal(t, 5, stats["total"])
	assert.Equal(t, 1, stats["created"])
	assert.Equal(t, 2, stats["running"])
	assert.Equal(t, 1, stats["completed"])
	assert.Equal(t, 1, stats["submitted"])

	sum := 0
	for k, v := range stats {
		if k != "total" {
			sum += v.(int)
		}
	}
	assert.Equal(t, stats["total"], sum)
}
