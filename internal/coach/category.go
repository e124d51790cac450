// Package coach implements the live conversation coaching engine: an
// incremental transcript log and pattern scanner, a dedup/rate-limiting
// layer that turns raw detections into user-facing feedback, a rolling
// session statistics aggregator, and a bounded feedback queue.
//
// The engine is deliberately heuristic. Detection is deterministic
// substring/prefix matching against a small pattern library, without NLP or
// model calls, so a turn is analysed in constant time relative to the
// pattern library and is never re-scanned. Missed detections degrade
// silently; the engine is a coach, not a grader.
//
// One [Engine] instance owns the state of exactly one practice session.
// Construct a fresh instance per session and discard it with the session;
// instances never share state.
package coach

import "strings"

// Category classifies a detection. Objection categories are attributed to
// prospect turns, technique categories to trainee turns. The wire form is
// "<kind>:<name>" except for the recurring talk-time warning.
type Category string

const (
	ObjectionPrice     Category = "objection:price"
	ObjectionTiming    Category = "objection:timing"
	ObjectionAuthority Category = "objection:authority"
	ObjectionNeed      Category = "objection:need"

	TechniqueEmpathy         Category = "technique:empathy"
	TechniqueSocialProof     Category = "technique:social-proof"
	TechniqueUrgency         Category = "technique:urgency"
	TechniqueActiveListening Category = "technique:active-listening"
	TechniqueOpenQuestion    Category = "technique:open-ended-question"

	// TalkTimeImbalance is synthesised from session statistics rather than
	// matched against a turn. It is the only recurring category and is
	// therefore subject to cooldown suppression.
	TalkTimeImbalance Category = "talk-time-imbalance"
)

// IsObjection reports whether c is an objection category.
func (c Category) IsObjection() bool {
	return strings.HasPrefix(string(c), "objection:")
}

// IsTechnique reports whether c is a technique category.
func (c Category) IsTechnique() bool {
	return strings.HasPrefix(string(c), "technique:")
}

// Recurring reports whether c may fire repeatedly over a session and must
// therefore be throttled by the limiter's cooldown window. Pattern-based
// categories are one-shot per turn and are deduplicated by exact key instead.
func (c Category) Recurring() bool {
	return c == TalkTimeImbalance
}

// Severity grades a feedback item for presentation.
type Severity string

const (
	SeverityPositive         Severity = "positive"
	SeverityNeutral          Severity = "neutral"
	SeverityNeedsImprovement Severity = "needs-improvement"
)

// categorySpec is one row of the category table: the phrases that trigger
// the category, the label and exemplar used in message templates, and the
// severity of the resulting feedback.
type categorySpec struct {
	// patterns are lower-case substrings matched against a turn's text.
	// Empty for categories that are not pattern-based.
	patterns []string

	// label is the human-readable category name used in messages.
	label string

	// exemplar is a canonical phrase of this category, quoted in objection
	// messages so the trainee recognises what was heard.
	exemplar string

	severity Severity
}

// objectionOrder and techniqueOrder fix the scan order so that detections
// for a turn are emitted deterministically.
var (
	objectionOrder = []Category{
		ObjectionPrice, ObjectionTiming, ObjectionAuthority, ObjectionNeed,
	}
	techniqueOrder = []Category{
		TechniqueEmpathy, TechniqueSocialProof, TechniqueUrgency, TechniqueActiveListening,
	}
)

// interrogatives are the leading words/phrases that mark a trainee turn as
// an open-ended question regardless of any keyword match. Matching is on
// word boundary, so "how's" matches "how" but "however" does not.
var interrogatives = []string{
	"how", "what", "why", "when", "where", "who", "which",
	"tell me", "walk me through", "help me understand",
}

// catalog is the category table. Pattern dispatch, message templating, and
// severity assignment are all driven from here so a new category is a single
// row, not a new branch.
var catalog = map[Category]categorySpec{
	ObjectionPrice: {
		patterns: []string{
			"too expensive", "can't afford", "cannot afford", "cheaper",
			"out of our budget", "out of my budget", "costs too much", "the price",
		},
		label:    "Price",
		exemplar: "that's too expensive",
		severity: SeverityNeutral,
	},
	ObjectionTiming: {
		patterns: []string{
			"not a good time", "not right now", "maybe later", "call back",
			"call me back", "next month", "too busy", "in the middle of",
		},
		label:    "Timing",
		exemplar: "now isn't a good time",
		severity: SeverityNeutral,
	},
	ObjectionAuthority: {
		patterns: []string{
			"ask my", "talk to my", "check with my", "not my decision",
			"my husband", "my wife", "my spouse", "my landlord",
		},
		label:    "Authority",
		exemplar: "I'd have to check with my spouse",
		severity: SeverityNeutral,
	},
	ObjectionNeed: {
		patterns: []string{
			"don't need", "do not need", "not interested", "we're fine",
			"we are fine", "already have", "no problem with", "handle it ourselves",
		},
		label:    "Need",
		exemplar: "we don't really need that",
		severity: SeverityNeutral,
	},

	TechniqueEmpathy: {
		patterns: []string{
			"i understand", "i hear you", "i get that", "that makes sense",
			"i know how that feels", "totally fair",
		},
		label:    "empathy framing",
		severity: SeverityPositive,
	},
	TechniqueSocialProof: {
		patterns: []string{
			"your neighbor", "your neighbour", "down the street", "other families",
			"most of our customers", "a lot of folks in the area", "just like you",
		},
		label:    "social proof",
		severity: SeverityPositive,
	},
	TechniqueUrgency: {
		patterns: []string{
			"today only", "this week only", "while we're in the area",
			"while we're in your neighborhood", "limited", "last chance",
			"before the season",
		},
		label:    "urgency",
		severity: SeverityPositive,
	},
	TechniqueActiveListening: {
		patterns: []string{
			"so what you're saying", "it sounds like", "if i understand you",
			"let me make sure i", "what i'm hearing is",
		},
		label:    "active listening",
		severity: SeverityPositive,
	},
	TechniqueOpenQuestion: {
		// Structural rule only: detected from the leading interrogative.
		label:    "open-ended questioning",
		severity: SeverityPositive,
	},

	TalkTimeImbalance: {
		label:    "Talk-time balance",
		severity: SeverityNeedsImprovement,
	},
}
