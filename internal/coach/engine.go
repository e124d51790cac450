package coach

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pitchdrill/pitchdrill/internal/observe"
	"github.com/pitchdrill/pitchdrill/pkg/channel"
	"github.com/pitchdrill/pitchdrill/pkg/types"
)

// Config holds the tunable heuristics for one engine instance. The zero
// value selects all defaults.
type Config struct {
	// FeedbackCapacity bounds the feedback queue. Default 50.
	FeedbackCapacity int

	// Cooldown is the recurring-category suppression window. Default 60s.
	Cooldown time.Duration

	// TalkTimeLow and TalkTimeHigh bound the target talk-time band.
	// Defaults 35 and 70.
	TalkTimeLow  int
	TalkTimeHigh int

	// Metrics receives engine telemetry. May be nil.
	Metrics *observe.Metrics

	// Now overrides the clock, for tests. Defaults to time.Now.
	Now func() time.Time
}

// Engine is the per-session coaching pipeline: transcript log, scanner,
// limiter, stats, and feedback queue behind one lock. Turns are analysed
// strictly one at a time in arrival order; the exported read methods return
// wholesale snapshot copies, so a presentation task can poll them freely
// while analysis runs.
type Engine struct {
	cfg     Config
	low     int
	high    int
	now     func() time.Time
	metrics *observe.Metrics

	mu        sync.RWMutex
	log       *TranscriptLog
	limiter   *Limiter
	queue     *FeedbackQueue
	stats     SessionStats
	startedAt time.Time
	endedAt   time.Time
	endReason string
}

// NewEngine creates an engine for a single session.
func NewEngine(cfg Config) *Engine {
	low := cfg.TalkTimeLow
	if low <= 0 {
		low = DefaultTalkTimeLow
	}
	high := cfg.TalkTimeHigh
	if high <= 0 {
		high = DefaultTalkTimeHigh
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		cfg:       cfg,
		low:       low,
		high:      high,
		now:       now,
		metrics:   cfg.Metrics,
		log:       NewTranscriptLog(),
		limiter:   NewLimiter(cfg.Cooldown),
		queue:     NewFeedbackQueue(cfg.FeedbackCapacity),
		stats:     ComputeStats(nil),
		startedAt: now(),
	}
	if cfg.Now != nil {
		e.limiter.now = cfg.Now
	}
	return e
}

// Run consumes events from the connection until events closes or ctx is
// cancelled. This is the single analysis consumer: every event is handled
// to completion before the next is read, which keeps turn analysis strictly
// ordered without further locking in the pipeline pieces.
func (e *Engine) Run(ctx context.Context, events <-chan channel.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case channel.EventTranscript:
				e.OnTranscript(ev.Speaker, ev.Text, ev.At)
			case channel.EventAudio:
				e.OnAudioChunk(ev.Chunk)
			case channel.EventEnd:
				e.OnEnd(ev.Reason)
			case channel.EventError:
				e.OnError(ev.Err)
			}
		}
	}
}

// OnTranscript ingests one turn: append, scan, rate-limit, recompute stats,
// and synthesise an imbalance warning when the talk-time ratio leaves the
// target band. Malformed payloads are dropped inside the log with a warning;
// nothing in this path can fail the session.
func (e *Engine) OnTranscript(speaker types.Speaker, text string, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	turn, ok := e.log.Append(speaker, text, at)
	if !ok {
		return
	}
	if e.metrics != nil {
		e.metrics.RecordTurn(context.Background(), string(speaker))
	}

	start := e.now()
	for _, d := range Scan(turn) {
		e.offer(d)
	}

	e.stats = ComputeStats(e.log.Turns())
	if outOfBand(e.stats.TalkTimeRatio, e.low, e.high) {
		e.offer(Detection{
			Category:     TalkTimeImbalance,
			TurnSequence: turn.Sequence,
			DetectedAt:   e.now(),
			Ratio:        e.stats.TalkTimeRatio,
		})
	}

	if e.metrics != nil {
		e.metrics.ScanDuration.Record(context.Background(), e.now().Sub(start).Seconds())
	}
}

// offer routes a detection through the limiter into the queue.
// Callers must hold e.mu.
func (e *Engine) offer(d Detection) {
	if e.metrics != nil {
		e.metrics.RecordDetection(context.Background(), string(d.Category))
	}
	item, ok := e.limiter.Accept(d)
	if !ok {
		if e.metrics != nil {
			e.metrics.RecordFeedbackSuppressed(context.Background(), string(d.Category))
		}
		return
	}
	e.queue.Push(item)
	if e.metrics != nil {
		e.metrics.RecordFeedbackEmitted(context.Background(), string(item.Severity))
	}
}

// OnAudioChunk is part of the ingestion boundary for interface completeness.
// Audio is opaque to the analysis pipeline; archival happens upstream in the
// connection layer.
func (e *Engine) OnAudioChunk(chunk []byte) {
	_ = chunk
}

// OnEnd marks the session finished. Later events are still accepted but a
// well-behaved channel sends nothing after its end signal.
func (e *Engine) OnEnd(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.endedAt.IsZero() {
		e.endedAt = e.now()
		e.endReason = reason
	}
	slog.Info("coach: session ended", "reason", reason, "turns", e.log.Len())
}

// OnError records a channel error. Connection state is owned by the
// connection layer; for the analysis pipeline an error is informational.
func (e *Engine) OnError(err error) {
	slog.Warn("coach: channel error", "err", err)
}

// ListFeedback returns the queued feedback items, oldest first.
func (e *Engine) ListFeedback() []FeedbackItem {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.queue.List()
}

// CurrentStats returns the latest stats snapshot.
func (e *Engine) CurrentStats() SessionStats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

// Transcript returns a copy of the full transcript, for the owner that
// persists completed sessions.
func (e *Engine) Transcript() []TranscriptTurn {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.log.Turns()
}

// Duration returns the elapsed session time: up to the end signal once one
// has arrived, otherwise up to now.
func (e *Engine) Duration() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.endedAt.IsZero() {
		return e.endedAt.Sub(e.startedAt)
	}
	return e.now().Sub(e.startedAt)
}

// Ended reports whether the session's end signal has arrived.
func (e *Engine) Ended() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.endedAt.IsZero()
}

// Reset discards all session state and starts a fresh session on the same
// configuration. The caller owns persisting the finished session first;
// Reset is destructive.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.log = NewTranscriptLog()
	e.limiter = NewLimiter(e.cfg.Cooldown)
	if e.cfg.Now != nil {
		e.limiter.now = e.cfg.Now
	}
	e.queue = NewFeedbackQueue(e.cfg.FeedbackCapacity)
	e.stats = ComputeStats(nil)
	e.startedAt = e.now()
	e.endedAt = time.Time{}
	e.endReason = ""
	slog.Info("coach: session reset")
}

// StartedAt returns when the current session began.
func (e *Engine) StartedAt() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.startedAt
}

// EndReason returns the channel's end reason, or "" while the session runs.
func (e *Engine) EndReason() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.endReason
}
