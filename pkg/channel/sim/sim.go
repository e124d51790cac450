// Package sim implements a local practice channel that replays a scripted
// conversation as realtime events, so the server can run end to end without
// the hosted voice backend.
//
// Script lines are emitted in order with per-line delays. A prospect line
// with empty text is resolved through the configured [Responder], which can
// be the LLM-backed [OpenAIResponder] for a dynamic persona or any test
// double.
package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pitchdrill/pitchdrill/pkg/channel"
	"github.com/pitchdrill/pitchdrill/pkg/types"
)

const (
	eventBuffer     = 64
	defaultInterval = 2 * time.Second
)

// ScriptLine is one utterance of the practice script.
type ScriptLine struct {
	Speaker types.Speaker

	// Text is the utterance. Empty text on a prospect line means "generate
	// via the Responder".
	Text string

	// Delay before emitting this line. Zero selects the platform interval.
	Delay time.Duration
}

// Responder produces a prospect reply given the conversation so far.
//
// Implementations must be safe for concurrent use.
type Responder interface {
	// Reply returns the prospect's next line. history is the full
	// conversation in order, oldest first.
	Reply(ctx context.Context, history []ScriptLine) (string, error)
}

// Platform implements [channel.Platform] by replaying a script.
type Platform struct {
	// Script is the conversation to replay. Must not be empty.
	Script []ScriptLine

	// Interval is the default delay between lines. Zero selects 2s.
	Interval time.Duration

	// Responder resolves prospect lines with empty text. May be nil when
	// the script is fully written out.
	Responder Responder
}

// Connect implements [channel.Platform]. The handshake is trivial; the
// returned conn starts replaying the script immediately.
func (p *Platform) Connect(ctx context.Context) (channel.Conn, error) {
	if len(p.Script) == 0 {
		return nil, errors.New("sim: script must not be empty")
	}
	for i, line := range p.Script {
		if !line.Speaker.IsValid() {
			return nil, fmt.Errorf("sim: script line %d: unknown speaker %q", i, line.Speaker)
		}
		if line.Text == "" && (line.Speaker != types.SpeakerProspect || p.Responder == nil) {
			return nil, fmt.Errorf("sim: script line %d: empty text and no responder", i)
		}
	}

	interval := p.Interval
	if interval <= 0 {
		interval = defaultInterval
	}

	playCtx, cancel := context.WithCancel(context.Background())
	c := &conn{
		events: make(chan channel.Event, eventBuffer),
		cancel: cancel,
	}
	go c.play(playCtx, p.Script, interval, p.Responder)
	return c, nil
}

// conn is an active script playback. It implements [channel.Conn].
type conn struct {
	events chan channel.Event
	cancel context.CancelFunc
	once   sync.Once
}

// Events implements [channel.Conn].
func (c *conn) Events() <-chan channel.Event {
	return c.events
}

// Close implements [channel.Conn]. Safe to call more than once.
func (c *conn) Close() error {
	c.once.Do(c.cancel)
	return nil
}

// play emits the script lines with their delays, then the end event.
// It owns closing the events channel.
func (c *conn) play(ctx context.Context, script []ScriptLine, interval time.Duration, responder Responder) {
	defer close(c.events)

	history := make([]ScriptLine, 0, len(script))
	for i, line := range script {
		delay := line.Delay
		if delay <= 0 {
			delay = interval
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		text := line.Text
		if text == "" {
			reply, err := responder.Reply(ctx, history)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("sim: responder failed, skipping line", "line", i, "err", err)
				continue
			}
			text = reply
		}

		history = append(history, ScriptLine{Speaker: line.Speaker, Text: text})
		ev := channel.Event{
			Type:    channel.EventTranscript,
			Speaker: line.Speaker,
			Text:    text,
			At:      time.Now(),
		}
		select {
		case c.events <- ev:
		case <-ctx.Done():
			return
		}
	}

	select {
	case c.events <- channel.Event{Type: channel.EventEnd, Reason: "script complete"}:
	case <-ctx.Done():
	}
}
