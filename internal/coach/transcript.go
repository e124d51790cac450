package coach

import (
	"log/slog"
	"strings"
	"time"

	"github.com/pitchdrill/pitchdrill/pkg/types"
)

// TranscriptTurn is one utterance in arrival order. Turns are immutable once
// appended; the log is the single source of truth for everything downstream,
// which is what makes stats recomputation safe.
type TranscriptTurn struct {
	// Sequence is strictly increasing with arrival order, starting at 1.
	Sequence uint64

	Speaker types.Speaker

	Text string

	// ArrivedAt is the turn's arrival timestamp as reported by the channel.
	ArrivedAt time.Time
}

// TranscriptLog is the append-only ordered list of turns for one session.
// No turn is ever removed or mutated after append.
//
// The log is not internally locked; the [Engine] serialises all writes and
// guards reads, mirroring the single-writer analysis pipeline.
type TranscriptLog struct {
	turns   []TranscriptTurn
	nextSeq uint64
}

// NewTranscriptLog creates an empty log.
func NewTranscriptLog() *TranscriptLog {
	return &TranscriptLog{nextSeq: 1}
}

// Append records a new turn and returns it. Turns with empty or
// whitespace-only text are malformed payloads: they are dropped with a
// logged warning and ok is false, never an error, so one bad payload
// cannot interrupt the session.
func (l *TranscriptLog) Append(speaker types.Speaker, text string, at time.Time) (turn TranscriptTurn, ok bool) {
	if strings.TrimSpace(text) == "" {
		slog.Warn("transcript: dropping turn with empty text", "speaker", speaker)
		return TranscriptTurn{}, false
	}
	if !speaker.IsValid() {
		slog.Warn("transcript: dropping turn with unknown speaker", "speaker", speaker)
		return TranscriptTurn{}, false
	}

	turn = TranscriptTurn{
		Sequence:  l.nextSeq,
		Speaker:   speaker,
		Text:      text,
		ArrivedAt: at,
	}
	l.nextSeq++
	l.turns = append(l.turns, turn)
	return turn, true
}

// Turns returns a copy of all turns, oldest first.
func (l *TranscriptLog) Turns() []TranscriptTurn {
	out := make([]TranscriptTurn, len(l.turns))
	copy(out, l.turns)
	return out
}

// Len returns the number of appended turns.
func (l *TranscriptLog) Len() int {
	return len(l.turns)
}
