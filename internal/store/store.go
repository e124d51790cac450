// Package store persists finished coaching sessions for later review.
package store

import (
	"context"
	"time"

	"github.com/pitchdrill/pitchdrill/internal/coach"
)

// SessionRecord is the durable snapshot of one finished coaching session.
type SessionRecord struct {
	// ID uniquely identifies the session.
	ID string `json:"id"`

	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`

	// EndReason describes how the session terminated (e.g., "call ended").
	EndReason string `json:"endReason,omitempty"`

	// Turns is the full chronological transcript.
	Turns []coach.TranscriptTurn `json:"turns"`

	// Stats is the final session summary.
	Stats coach.SessionStats `json:"stats"`
}

// Store persists session records. Implementations must be safe for
// concurrent use.
type Store interface {
	// SaveSession writes rec durably. Saving an ID twice is an error.
	SaveSession(ctx context.Context, rec SessionRecord) error

	// ListSessions returns up to limit most recent session records, newest
	// first, without their transcripts.
	ListSessions(ctx context.Context, limit int) ([]SessionRecord, error)

	// GetSession returns the full record for id, including the transcript.
	GetSession(ctx context.Context, id string) (SessionRecord, error)
}
