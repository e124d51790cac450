package coach

import (
	"strings"
	"time"

	"github.com/pitchdrill/pitchdrill/pkg/types"
)

// Detection is a transient classification of a single turn. Detections are
// derived purely from the turn's text against the category table; they are
// never persisted and can be recomputed at any time by re-scanning the turn.
type Detection struct {
	Category Category

	// TurnSequence is the sequence number of the turn that produced this
	// detection. Together with Category it forms the dedup key.
	TurnSequence uint64

	DetectedAt time.Time

	// Ratio carries the talk-time ratio that triggered a
	// [TalkTimeImbalance] detection. Zero for pattern-based detections.
	Ratio int
}

// Scan matches a single turn's text against the category table and returns
// zero or more detections, at most one per category, in catalog order.
//
// Prospect text is tested against objection patterns; trainee text against
// technique patterns, plus the structural rule that a turn opening with an
// interrogative always counts as open-ended questioning. Scan is stateless
// and looks only at the turn it is given. Prior turns are never re-scanned.
func Scan(turn TranscriptTurn) []Detection {
	text := strings.ToLower(strings.TrimSpace(turn.Text))
	if text == "" {
		return nil
	}

	var out []Detection
	add := func(c Category) {
		out = append(out, Detection{
			Category:     c,
			TurnSequence: turn.Sequence,
			DetectedAt:   turn.ArrivedAt,
		})
	}

	switch turn.Speaker {
	case types.SpeakerProspect:
		for _, c := range objectionOrder {
			if matchesAny(text, catalog[c].patterns) {
				add(c)
			}
		}
	case types.SpeakerTrainee:
		if startsWithInterrogative(text) {
			add(TechniqueOpenQuestion)
		}
		for _, c := range techniqueOrder {
			if matchesAny(text, catalog[c].patterns) {
				add(c)
			}
		}
	}
	return out
}

// matchesAny reports whether text contains any of the given lower-case
// substrings.
func matchesAny(text string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// startsWithInterrogative reports whether text opens with one of the
// interrogative words or phrases on a word boundary, so "how's" qualifies
// via "how" but "however" does not.
func startsWithInterrogative(text string) bool {
	for _, w := range interrogatives {
		if !strings.HasPrefix(text, w) {
			continue
		}
		if len(text) == len(w) {
			return true
		}
		next := text[len(w)]
		if next < 'a' || next > 'z' {
			return true
		}
	}
	return false
}
