package coach

import (
	"fmt"
	"time"
)

// DefaultCooldown is the minimum spacing between feedback items of the same
// recurring category. A heuristic default; configurable per session.
const DefaultCooldown = 60 * time.Second

// FeedbackItem is a single piece of coaching feedback surfaced to the
// trainee. Items are created exactly once per accepted detection and are
// immutable thereafter.
type FeedbackItem struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Category  Category  `json:"category"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
}

// detectionKey identifies a detection for exact-repeat suppression.
type detectionKey struct {
	category Category
	sequence uint64
}

// Limiter converts candidate detections into feedback items, suppressing
// exact repeats and enforcing a per-category cooldown for recurring
// categories. One Limiter belongs to one [Engine]; it is not internally
// locked.
type Limiter struct {
	cooldown time.Duration
	now      func() time.Time

	seen     map[detectionKey]struct{}
	lastEmit map[Category]time.Time
	nextID   uint64
}

// NewLimiter creates a Limiter with the given cooldown window.
// A non-positive cooldown selects [DefaultCooldown].
func NewLimiter(cooldown time.Duration) *Limiter {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Limiter{
		cooldown: cooldown,
		now:      time.Now,
		seen:     make(map[detectionKey]struct{}),
		lastEmit: make(map[Category]time.Time),
		nextID:   1,
	}
}

// Accept applies the two suppression rules in order and, if the detection
// survives both, constructs the feedback item for it.
//
// Rule 1, exact-key suppression: a (category, turn sequence) pair that has
// already produced an item is dropped silently. This guards against a turn
// matching the same category through several keywords.
//
// Rule 2, cooldown suppression: for recurring categories, a new item is
// suppressed if one was emitted within the cooldown window. The check is
// evaluated lazily against the most recent emission's timestamp at the
// moment d arrives; no background timer exists.
func (l *Limiter) Accept(d Detection) (FeedbackItem, bool) {
	key := detectionKey{category: d.Category, sequence: d.TurnSequence}
	if _, dup := l.seen[key]; dup {
		return FeedbackItem{}, false
	}

	now := l.now()
	if d.Category.Recurring() {
		if last, ok := l.lastEmit[d.Category]; ok && now.Sub(last) < l.cooldown {
			return FeedbackItem{}, false
		}
	}

	l.seen[key] = struct{}{}
	l.lastEmit[d.Category] = now

	item := FeedbackItem{
		ID:        fmt.Sprintf("fb-%06d", l.nextID),
		Timestamp: now,
		Category:  d.Category,
		Message:   feedbackMessage(d),
		Severity:  catalog[d.Category].severity,
	}
	l.nextID++
	return item, true
}

// feedbackMessage renders the category-specific message template for d.
func feedbackMessage(d Detection) string {
	spec := catalog[d.Category]

	switch {
	case d.Category.IsObjection():
		return fmt.Sprintf("%s objection detected: %q", spec.label, spec.exemplar)
	case d.Category.IsTechnique():
		return fmt.Sprintf("Great use of %s!", spec.label)
	case d.Category == TalkTimeImbalance:
		if d.Ratio > 50 {
			return fmt.Sprintf("You're doing %d%% of the talking. Pause and let the prospect speak.", d.Ratio)
		}
		return fmt.Sprintf("You're only doing %d%% of the talking. Take the lead and guide the pitch.", d.Ratio)
	default:
		return string(d.Category)
	}
}
