package coach

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pitchdrill/pitchdrill/pkg/channel"
	"github.com/pitchdrill/pitchdrill/pkg/types"
)

func newTestEngine(t *testing.T) (*Engine, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	e := NewEngine(Config{Now: clock.Now})
	return e, clock
}

func TestEngine_ObjectionProducesOneFeedback(t *testing.T) {
	t.Parallel()
	e, clock := newTestEngine(t)

	e.OnTranscript(types.SpeakerProspect, "That's too expensive for us.", clock.Now())

	// A lone prospect turn means ratio 0, so the low-talk-time warning fires
	// alongside the objection.
	items := e.ListFeedback()
	if got := countCategory(items, ObjectionPrice); got != 1 {
		t.Fatalf("price objection items = %d, want 1 (%+v)", got, items)
	}
	if got := countCategory(items, TalkTimeImbalance); got != 1 {
		t.Errorf("imbalance items = %d, want 1", got)
	}
	if items[0].Category != ObjectionPrice {
		t.Errorf("first category = %q, want %q", items[0].Category, ObjectionPrice)
	}
	if !strings.Contains(items[0].Message, "Price objection") {
		t.Errorf("message = %q, want a price objection message", items[0].Message)
	}
	if got := e.CurrentStats().ObjectionCount; got != 1 {
		t.Errorf("ObjectionCount = %d, want 1", got)
	}
}

func TestEngine_OpenQuestionDetected(t *testing.T) {
	t.Parallel()
	e, clock := newTestEngine(t)

	e.OnTranscript(types.SpeakerTrainee, "How do you currently handle pest issues?", clock.Now())

	items := e.ListFeedback()
	if got := countCategory(items, TechniqueOpenQuestion); got != 1 {
		t.Fatalf("open question items = %d, want 1 (%+v)", got, items)
	}
	if items[0].Category != TechniqueOpenQuestion {
		t.Errorf("first category = %q, want %q", items[0].Category, TechniqueOpenQuestion)
	}

	used := e.CurrentStats().TechniquesUsed
	if len(used) != 1 || used[0] != string(TechniqueOpenQuestion) {
		t.Errorf("TechniquesUsed = %v, want [%s]", used, TechniqueOpenQuestion)
	}
}

func TestEngine_ImbalanceCooldown(t *testing.T) {
	t.Parallel()
	e, clock := newTestEngine(t)

	monologue := strings.Repeat("we treat the whole perimeter ", 10)

	// First trainee turn pushes the ratio to 100: one imbalance warning.
	e.OnTranscript(types.SpeakerTrainee, monologue, clock.Now())
	if got := countCategory(e.ListFeedback(), TalkTimeImbalance); got != 1 {
		t.Fatalf("imbalance items after first turn = %d, want 1", got)
	}

	// Still talking inside the cooldown window: warning suppressed.
	clock.Advance(20 * time.Second)
	e.OnTranscript(types.SpeakerTrainee, monologue, clock.Now())
	if got := countCategory(e.ListFeedback(), TalkTimeImbalance); got != 1 {
		t.Errorf("imbalance items inside cooldown = %d, want 1", got)
	}

	// Past the window and still imbalanced: a second warning.
	clock.Advance(DefaultCooldown)
	e.OnTranscript(types.SpeakerTrainee, monologue, clock.Now())
	if got := countCategory(e.ListFeedback(), TalkTimeImbalance); got != 2 {
		t.Errorf("imbalance items after cooldown = %d, want 2", got)
	}
}

func TestEngine_BalancedConversationStaysQuiet(t *testing.T) {
	t.Parallel()
	e, clock := newTestEngine(t)

	line := strings.Repeat("x", 80)
	e.OnTranscript(types.SpeakerTrainee, line, clock.Now())
	e.OnTranscript(types.SpeakerProspect, line, clock.Now())

	// 50% after the second turn is inside the default band. The first turn
	// alone was 100%, so exactly one warning from that moment is expected.
	if got := countCategory(e.ListFeedback(), TalkTimeImbalance); got != 1 {
		t.Errorf("imbalance items = %d, want 1", got)
	}
	if got := e.CurrentStats().TalkTimeRatio; got != 50 {
		t.Errorf("TalkTimeRatio = %d, want 50", got)
	}
}

func TestEngine_MalformedTurnIgnored(t *testing.T) {
	t.Parallel()
	e, clock := newTestEngine(t)

	e.OnTranscript(types.SpeakerProspect, "   ", clock.Now())

	if got := len(e.ListFeedback()); got != 0 {
		t.Errorf("feedback items = %d, want 0", got)
	}
	if got := len(e.Transcript()); got != 0 {
		t.Errorf("transcript turns = %d, want 0", got)
	}
}

func TestEngine_EndIsIdempotent(t *testing.T) {
	t.Parallel()
	e, clock := newTestEngine(t)

	clock.Advance(3 * time.Minute)
	e.OnEnd("call ended")
	firstDuration := e.Duration()

	clock.Advance(time.Hour)
	e.OnEnd("duplicate end")

	if e.EndReason() != "call ended" {
		t.Errorf("EndReason = %q, want %q", e.EndReason(), "call ended")
	}
	if e.Duration() != firstDuration {
		t.Errorf("Duration changed after second end: %v vs %v", e.Duration(), firstDuration)
	}
	if firstDuration != 3*time.Minute {
		t.Errorf("Duration = %v, want 3m", firstDuration)
	}
}

func TestEngine_ResetStartsFreshSession(t *testing.T) {
	t.Parallel()
	e, clock := newTestEngine(t)

	e.OnTranscript(types.SpeakerProspect, "That's too expensive for us.", clock.Now())
	e.OnTranscript(types.SpeakerTrainee, "I completely understand.", clock.Now())
	clock.Advance(2 * time.Minute)
	e.OnEnd("call ended")
	if !e.Ended() {
		t.Fatal("engine should report ended")
	}

	firstStart := e.StartedAt()
	clock.Advance(time.Minute)
	e.Reset()

	if e.Ended() {
		t.Error("engine still ended after Reset")
	}
	if len(e.Transcript()) != 0 {
		t.Errorf("transcript has %d turns after Reset, want 0", len(e.Transcript()))
	}
	if len(e.ListFeedback()) != 0 {
		t.Errorf("feedback has %d items after Reset, want 0", len(e.ListFeedback()))
	}
	if got := e.CurrentStats().TalkTimeRatio; got != 50 {
		t.Errorf("TalkTimeRatio after Reset = %d, want 50", got)
	}
	if got := e.EndReason(); got != "" {
		t.Errorf("EndReason after Reset = %q, want empty", got)
	}
	if !e.StartedAt().After(firstStart) {
		t.Errorf("StartedAt = %v, want later than the first session's %v", e.StartedAt(), firstStart)
	}

	// The fresh session accepts turns and re-emits categories the earlier
	// session had already reported.
	e.OnTranscript(types.SpeakerProspect, "That's too expensive for us.", clock.Now())
	if got := countCategory(e.ListFeedback(), ObjectionPrice); got != 1 {
		t.Errorf("price objections in fresh session = %d, want 1", got)
	}
}

func TestEngine_RunConsumesEvents(t *testing.T) {
	t.Parallel()
	e, clock := newTestEngine(t)

	events := make(chan channel.Event, 4)
	events <- channel.Event{Type: channel.EventTranscript, Speaker: types.SpeakerProspect, Text: "not interested", At: clock.Now()}
	events <- channel.Event{Type: channel.EventAudio, Chunk: []byte{1, 2, 3}}
	events <- channel.Event{Type: channel.EventEnd, Reason: "script complete"}
	close(events)

	e.Run(context.Background(), events)

	if got := e.CurrentStats().ObjectionCount; got != 1 {
		t.Errorf("ObjectionCount = %d, want 1", got)
	}
	if e.EndReason() != "script complete" {
		t.Errorf("EndReason = %q, want %q", e.EndReason(), "script complete")
	}
}

func TestEngine_RunStopsOnContextCancel(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan channel.Event)

	done := make(chan struct{})
	go func() {
		e.Run(ctx, events)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancel")
	}
}

func countCategory(items []FeedbackItem, c Category) int {
	n := 0
	for _, item := range items {
		if item.Category == c {
			n++
		}
	}
	return n
}
