package coach

import (
	"strings"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock for limiter tests.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(cooldown time.Duration) (*Limiter, *fakeClock) {
	clock := newFakeClock()
	l := NewLimiter(cooldown)
	l.now = clock.Now
	return l, clock
}

func TestLimiter_ExactRepeatSuppressed(t *testing.T) {
	t.Parallel()
	l, _ := newTestLimiter(time.Minute)

	d := Detection{Category: ObjectionPrice, TurnSequence: 3}
	if _, ok := l.Accept(d); !ok {
		t.Fatal("first detection should be accepted")
	}
	if _, ok := l.Accept(d); ok {
		t.Error("identical (category, turn) detection should be suppressed")
	}
}

func TestLimiter_SameCategoryDifferentTurnAccepted(t *testing.T) {
	t.Parallel()
	l, _ := newTestLimiter(time.Minute)

	if _, ok := l.Accept(Detection{Category: ObjectionPrice, TurnSequence: 3}); !ok {
		t.Fatal("first detection should be accepted")
	}
	// Pattern categories are one-shot per turn, never cooldown-limited: a
	// fresh objection on a later turn goes straight through.
	if _, ok := l.Accept(Detection{Category: ObjectionPrice, TurnSequence: 4}); !ok {
		t.Error("same category on a new turn should be accepted")
	}
}

func TestLimiter_RecurringCooldown(t *testing.T) {
	t.Parallel()
	l, clock := newTestLimiter(time.Minute)

	if _, ok := l.Accept(Detection{Category: TalkTimeImbalance, TurnSequence: 1, Ratio: 85}); !ok {
		t.Fatal("first imbalance should be accepted")
	}

	clock.Advance(30 * time.Second)
	if _, ok := l.Accept(Detection{Category: TalkTimeImbalance, TurnSequence: 2, Ratio: 88}); ok {
		t.Error("imbalance inside the cooldown window should be suppressed")
	}

	clock.Advance(31 * time.Second)
	if _, ok := l.Accept(Detection{Category: TalkTimeImbalance, TurnSequence: 3, Ratio: 90}); !ok {
		t.Error("imbalance after the cooldown window should be accepted")
	}
}

func TestLimiter_DefaultCooldown(t *testing.T) {
	t.Parallel()
	l := NewLimiter(0)
	if l.cooldown != DefaultCooldown {
		t.Errorf("cooldown = %v, want %v", l.cooldown, DefaultCooldown)
	}
}

func TestLimiter_IDsAndTimestamps(t *testing.T) {
	t.Parallel()
	l, clock := newTestLimiter(time.Minute)

	first, ok := l.Accept(Detection{Category: ObjectionPrice, TurnSequence: 1})
	if !ok {
		t.Fatal("first detection should be accepted")
	}
	second, ok := l.Accept(Detection{Category: ObjectionTiming, TurnSequence: 2})
	if !ok {
		t.Fatal("second detection should be accepted")
	}

	if first.ID == second.ID {
		t.Errorf("IDs must be unique, both are %q", first.ID)
	}
	if first.ID != "fb-000001" {
		t.Errorf("first ID = %q, want %q", first.ID, "fb-000001")
	}
	if !first.Timestamp.Equal(clock.Now()) {
		t.Errorf("timestamp = %v, want %v", first.Timestamp, clock.Now())
	}
}

func TestLimiter_Messages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		d        Detection
		contains string
		severity Severity
	}{
		{
			name:     "objection message quotes the exemplar",
			d:        Detection{Category: ObjectionPrice, TurnSequence: 1},
			contains: `Price objection detected: "that's too expensive"`,
			severity: SeverityNeutral,
		},
		{
			name:     "technique message praises",
			d:        Detection{Category: TechniqueSocialProof, TurnSequence: 2},
			contains: "Great use of social proof!",
			severity: SeverityPositive,
		},
		{
			name:     "high talk-time tells the trainee to pause",
			d:        Detection{Category: TalkTimeImbalance, TurnSequence: 3, Ratio: 85},
			contains: "85% of the talking",
			severity: SeverityNeedsImprovement,
		},
		{
			name:     "low talk-time tells the trainee to lead",
			d:        Detection{Category: TalkTimeImbalance, TurnSequence: 4, Ratio: 20},
			contains: "only doing 20%",
			severity: SeverityNeedsImprovement,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			l, clock := newTestLimiter(time.Minute)
			clock.Advance(2 * time.Minute)
			item, ok := l.Accept(tc.d)
			if !ok {
				t.Fatal("detection should be accepted")
			}
			if !strings.Contains(item.Message, tc.contains) {
				t.Errorf("message %q does not contain %q", item.Message, tc.contains)
			}
			if item.Severity != tc.severity {
				t.Errorf("severity = %q, want %q", item.Severity, tc.severity)
			}
		})
	}
}
