package service

import (
	"testing"

	"github.com/rurallearn/rurallearn-backend/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestResolvePolicy_Defaults(t *testing.T) {
	p := ResolvePolicy(model.ProctorRules{})
	assert.Equal(t, model.AntiCheatPolicy{
		MaxInfractions:    2,
		RequireFullScreen: true,
		AllowTabSwitch:    false,
		AllowBlur:         false,
	}, p)
}

func TestResolvePolicy_Overrides(t *testing.T) {
	p := ResolvePolicy(model.ProctorRules{
		MaxInfractions:    intPtr(5),
		RequireFullScreen: boolPtr(false),
		AllowTabSwitch:    boolPtr(true),
		AllowBlur:         boolPtr(true),
	})
	assert.Equal(t, model.AntiCheatPolicy{MaxInfractions: 5, AllowTabSwitch: true, AllowBlur: true}, p)
}

func TestResolvePolicy_IgnoresNonPositiveThreshold(t *testing.T) {
	p := ResolvePolicy(model.ProctorRules{MaxInfractions: intPtr(0)})
	assert.Equal(t, DefaultMaxInfractions, p.MaxInfractions)
}

func TestShouldAutoSubmit(t *testing.T) {
	policy := model.AntiCheatPolicy{MaxInfractions: 3}
	assert.False(t, ShouldAutoSubmit(0, policy))
	assert.False(t, ShouldAutoSubmit(2, policy))
	assert.True(t, ShouldAutoSubmit(3, policy))
	assert.True(t, ShouldAutoSubmit(4, policy))
	assert.False(t, ShouldAutoSubmit(10, model.AntiCheatPolicy{}))
}

func TestCanTransition(t *testing.T) {
	states := []model.SessionState{
		model.SessionStateCreated,
		model.SessionStateRunning,
		model.SessionStateCompleted,
		model.SessionStateSubmitted,
	}
	allowed := map[[2]model.SessionState]bool{
		{model.SessionStateCreated, model.SessionStateRunning}:   true,
		{model.SessionStateRunning, model.SessionStateSubmitted}: true,
		{model.SessionStateRunning, model.SessionStateCompleted}: true,
	}

	for _, from := range states {
		for _, to := range states {
			assert.Equal(t, allowed[[2]model.SessionState{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}
