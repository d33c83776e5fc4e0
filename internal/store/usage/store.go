// Package usage keeps an append-only ledger of closed sessions.
package usage

import (
	"context"
	"time"
)

// Reason describes why a session was closed.
type Reason string

const (
	ReasonTerminated Reason = "terminated"
	ReasonExpired    Reason = "expired"
)

// Record is one closed session.
type Record struct {
	ID           string    `json:"id"`
	ChatID       string    `json:"chat_id"`
	PersonaID    string    `json:"persona_id,omitempty"`
	MessagesSent int       `json:"messages_sent"`
	TimeElapsed  float64   `json:"time_elapsed"`
	Status       string    `json:"status"`
	Reason       Reason    `json:"reason"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at"`
}

// Totals aggregates the whole ledger.
type Totals struct {
	Sessions     int     `json:"sessions"`
	MessagesSent int     `json:"messages_sent"`
	Minutes      float64 `json:"minutes"`
}

// Recorder persists closed-session records.
type Recorder interface {
	Record(ctx context.Context, rec Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	Totals(ctx context.Context) (Totals, error)
	Close() error
}

// NopRecorder discards everything. Used when no database path is configured.
type NopRecorder struct{}

func (NopRecorder) Record(context.Context, Record) error { return nil }

func (NopRecorder) Recent(context.Context, int) ([]Record, error) { return []Record{}, nil }

func (NopRecorder) Totals(context.Context) (Totals, error) { return Totals{}, nil }

func (NopRecorder) Close() error { return nil }
