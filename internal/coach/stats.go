package coach

import (
	"math"
	"sort"
	"unicode/utf8"

	"github.com/pitchdrill/pitchdrill/pkg/types"
)

// Default talk-time band. Ratios outside it trigger an imbalance warning.
// Heuristic defaults; configurable per session.
const (
	DefaultTalkTimeLow  = 35
	DefaultTalkTimeHigh = 70
)

// SessionStats is a derived snapshot of the rolling session statistics. It
// has no identity of its own: it is recomputed wholesale from the transcript
// log after every turn, never patched incrementally, so repeated computation
// over the same log yields identical values.
type SessionStats struct {
	// TalkTimeRatio is the trainee's share of total conversation text,
	// 0-100. Character length is the measure, a stable proxy that
	// needs no external timing signal. 50 when the log is empty.
	TalkTimeRatio int `json:"talk_time_ratio"`

	// ObjectionCount is the number of prospect turns that raised at least
	// one objection.
	ObjectionCount int `json:"objection_count"`

	// TechniquesUsed lists the distinct technique categories the trainee
	// has applied, sorted for deterministic snapshots.
	TechniquesUsed []string `json:"techniques_used"`
}

// ComputeStats derives a [SessionStats] from the full turn list. It is a
// pure function of its input: it re-scans every turn through [Scan] rather
// than caching per-turn results, so it is idempotent by construction.
func ComputeStats(turns []TranscriptTurn) SessionStats {
	var traineeChars, totalChars int
	objections := 0
	techniques := make(map[Category]struct{})

	for _, turn := range turns {
		// Characters, not bytes: multi-byte text must not skew the ratio.
		n := utf8.RuneCountInString(turn.Text)
		totalChars += n
		if turn.Speaker == types.SpeakerTrainee {
			traineeChars += n
		}

		sawObjection := false
		for _, d := range Scan(turn) {
			switch {
			case d.Category.IsObjection():
				sawObjection = true
			case d.Category.IsTechnique():
				techniques[d.Category] = struct{}{}
			}
		}
		if sawObjection {
			objections++
		}
	}

	ratio := 50
	if totalChars > 0 {
		ratio = int(math.Round(100 * float64(traineeChars) / float64(totalChars)))
	}

	used := make([]string, 0, len(techniques))
	for c := range techniques {
		used = append(used, string(c))
	}
	sort.Strings(used)

	return SessionStats{
		TalkTimeRatio:  ratio,
		ObjectionCount: objections,
		TechniquesUsed: used,
	}
}

// outOfBand reports whether ratio falls outside the [low, high] target band.
func outOfBand(ratio, low, high int) bool {
	return ratio < low || ratio > high
}
