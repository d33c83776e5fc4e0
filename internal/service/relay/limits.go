package relay

import (
	"github.com/zhouzirui/persona-relay/internal/config"
	"github.com/zhouzirui/persona-relay/internal/model/chat"
)

// Limits bounds a session. Nil fields are not enforced.
type Limits struct {
	TimeMinutes *float64
	Messages    *int
}

// resolve applies the configured mode to the limits carried by a request.
func resolveLimits(cfg config.RelayConfig, requested Limits) Limits {
	switch cfg.LimitMode {
	case config.LimitModeOff:
		return Limits{}
	case config.LimitModeStrict:
		resolved := requested
		if resolved.TimeMinutes == nil {
			minutes := cfg.DefaultTimeLimit
			resolved.TimeMinutes = &minutes
		}
		if resolved.Messages == nil {
			messages := cfg.DefaultMessageLimit
			resolved.Messages = &messages
		}
		return resolved
	default:
		return requested
	}
}

// exceeded reports whether the session has run out of time or messages.
// A zero time limit finishes the session on its first turn.
func (l Limits) exceeded(sess *chat.Session) bool {
	if l.TimeMinutes != nil && sess.ActivityElapsed() >= *l.TimeMinutes {
		return true
	}
	if l.Messages != nil && sess.MessagesSent > *l.Messages {
		return true
	}
	return false
}
