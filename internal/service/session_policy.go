package service

import "github.com/rurallearn/rurallearn-backend/internal/model"

// Platform defaults applied when a test does not override them.
const (
	DefaultMaxInfractions    = 2
	DefaultRequireFullScreen = true
	DefaultAllowTabSwitch    = false
	DefaultAllowBlur         = false
)

// ResolvePolicy merges a test's proctor rules over the platform defaults.
func ResolvePolicy(rules model.ProctorRules) model.AntiCheatPolicy {
	p := model.AntiCheatPolicy{
		MaxInfractions:    DefaultMaxInfractions,
		RequireFullScreen: DefaultRequireFullScreen,
		AllowTabSwitch:    DefaultAllowTabSwitch,
		AllowBlur:         DefaultAllowBlur,
	}
	if rules.MaxInfractions != nil && *rules.MaxInfractions > 0 {
		p.MaxInfractions = *rules.MaxInfractions
	}
	if rules.RequireFullScreen != nil {
		p.RequireFullScreen = *rules.RequireFullScreen
	}
	if rules.AllowTabSwitch != nil {
		p.AllowTabSwitch = *rules.AllowTabSwitch
	}
	if rules.AllowBlur != nil {
		p.AllowBlur = *rules.AllowBlur
	}
	return p
}

// DefaultAllowedActions are granted to every running session.
func DefaultAllowedActions() model.AllowedActions {
	return model.AllowedActions{Navigation: true, Review: true, Flag: true}
}

// ShouldAutoSubmit reports whether count infractions force submission.
func ShouldAutoSubmit(count int, policy model.AntiCheatPolicy) bool {
	return policy.MaxInfractions > 0 && count >= policy.MaxInfractions
}

// CanTransition reports whether from → to is a legal forward transition.
func CanTransition(from, to model.SessionState) bool {
	switch from {
	case model.SessionStateCreated:
		return to == model.SessionStateRunning
	case model.SessionStateRunning:
		return to == model.SessionStateSubmitted || to == model.SessionStateCompleted
	default:
		return false
	}
}
