package chat

import (
	"context"
	"time"

	"github.com/zhouzirui/persona-relay/internal/model/persona"
)

// Status is the lifecycle flag of a session.
type Status string

const (
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

// Conversation is an opened context with the model capability. It keeps the
// model-side history, so one value belongs to exactly one session.
type Conversation interface {
	Send(ctx context.Context, text string) (string, error)
}

// Session captures a persona-driven conversation keyed by a caller-supplied id.
type Session struct {
	ID                 string
	Persona            persona.Persona
	CustomInstructions string
	Conversation       Conversation
	Initialized        bool // prime directive already delivered
	StartTime          time.Time
	LastActivity       time.Time
	MessagesSent       int
	Status             Status
}

// Summary is a point-in-time view of a session's usage.
type Summary struct {
	ChatID       string    `json:"chat_id"`
	PersonaID    string    `json:"persona_id,omitempty"`
	MessagesSent int       `json:"messages_sent"`
	TimeElapsed  float64   `json:"time_elapsed"`
	Status       Status    `json:"status"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
}

// Summarize reports usage as of now.
func (s *Session) Summarize(now time.Time) Summary {
	return Summary{
		ChatID:       s.ID,
		PersonaID:    s.Persona.ID,
		MessagesSent: s.MessagesSent,
		TimeElapsed:  ElapsedMinutes(s.StartTime, now),
		Status:       s.Status,
		StartTime:    s.StartTime,
		EndTime:      now,
	}
}

// ActivityElapsed returns the minutes between session start and the last turn.
func (s *Session) ActivityElapsed() float64 {
	return ElapsedMinutes(s.StartTime, s.LastActivity)
}

// ElapsedMinutes returns the fractional minutes between two instants, never negative.
func ElapsedMinutes(from, to time.Time) float64 {
	d := to.Sub(from)
	if d < 0 {
		return 0
	}
	return d.Minutes()
}
