// Package live implements the connection state machine that governs the
// realtime audio/transcript channel for one session.
//
// The [Connector] owns two coupled external activities, archival audio
// capture and inbound event reception, that start together on a successful
// handshake and stop together on every teardown path. Whichever of
// {manual stop, remote end-of-call, channel error, permission denial}
// triggers teardown, capture is released exactly once and the state lands
// in disconnected. Connection state is deliberately independent of analysis
// state: the engine consumes the forwarded event stream and never touches
// the lifecycle.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pitchdrill/pitchdrill/internal/observe"
	"github.com/pitchdrill/pitchdrill/pkg/capture"
	"github.com/pitchdrill/pitchdrill/pkg/channel"
)

// Connection error taxonomy. Start and Status surface these so callers can
// distinguish a fatal permission denial (no auto-retry) from handshake
// failures (retry by calling Start again from disconnected).
var (
	ErrPermissionDenied = errors.New("live: capture permission denied")
	ErrHandshakeFailure = errors.New("live: channel handshake failed")
	ErrHandshakeTimeout = errors.New("live: channel handshake timed out")
	ErrChannelClosed    = errors.New("live: channel closed unexpectedly")
)

// DefaultHandshakeTimeout bounds how long Start waits for the channel
// handshake before failing the attempt.
const DefaultHandshakeTimeout = 10 * time.Second

const eventBuffer = 256

// State is the connection lifecycle state. Transitions only along
// disconnected → connecting → connected and back to disconnected; a
// reconnect always passes through disconnected.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// Status is the externally visible connection state. LastError is set on
// abnormal transitions and cleared by the next Start.
type Status struct {
	State     State `json:"state"`
	LastError error `json:"-"`
}

// Config holds the dependencies for a [Connector].
type Config struct {
	// Platform establishes the realtime channel session.
	Platform channel.Platform

	// Recorder is the archival capture resource. Nil selects [capture.Nop].
	Recorder capture.Recorder

	// HandshakeTimeout bounds the channel handshake. Zero selects
	// [DefaultHandshakeTimeout].
	HandshakeTimeout time.Duration

	// Metrics receives connection telemetry. May be nil.
	Metrics *observe.Metrics
}

// attempt tracks the per-connection resources whose release must happen
// exactly once no matter which teardown path runs first.
type attempt struct {
	release sync.Once
	stop    chan struct{}
	cancel  context.CancelFunc
}

// Connector is the per-session connection state machine.
// All exported methods are safe for concurrent use.
type Connector struct {
	platform channel.Platform
	recorder capture.Recorder
	timeout  time.Duration
	metrics  *observe.Metrics

	// events carries the forwarded channel events for the analysis pipeline
	// and presentation layer. It lives for the connector's lifetime and is
	// never closed, so consumers stop via their own context.
	events chan channel.Event

	mu      sync.Mutex
	state   State
	lastErr error
	conn    channel.Conn
	att     *attempt
}

// New creates a Connector in the disconnected state.
func New(cfg Config) *Connector {
	rec := cfg.Recorder
	if rec == nil {
		rec = capture.Nop{}
	}
	timeout := cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	return &Connector{
		platform: cfg.Platform,
		recorder: rec,
		timeout:  timeout,
		metrics:  cfg.Metrics,
		events:   make(chan channel.Event, eventBuffer),
		state:    StateDisconnected,
	}
}

// Events returns the forwarded event stream consumed by the engine.
func (c *Connector) Events() <-chan channel.Event {
	return c.events
}

// Status returns the current connection state and last error.
func (c *Connector) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{State: c.state, LastError: c.lastErr}
}

// Start drives disconnected → connecting → connected: it acquires capture
// permission, performs the channel handshake under the configured timeout,
// and on success begins capture and event forwarding. Every failure lands
// back in disconnected with LastError set and is returned to the caller;
// none are retried automatically.
//
// Start is only valid from the disconnected state; a reconnect from
// connected or connecting must go through Stop first.
func (c *Connector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("live: start not allowed from %q state", state)
	}
	attCtx, cancel := context.WithCancel(ctx)
	att := &attempt{stop: make(chan struct{}), cancel: cancel}
	c.att = att
	c.state = StateConnecting
	c.lastErr = nil
	c.mu.Unlock()

	// Capture permission first: denial is fatal to the attempt.
	if err := c.recorder.Acquire(attCtx); err != nil {
		werr := fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		if errors.Is(attCtx.Err(), context.Canceled) {
			werr = fmt.Errorf("live: start cancelled: %w", context.Canceled)
		}
		c.abort(att, nil, werr)
		return werr
	}

	// The attempt may have been torn down while Acquire was in flight. Its
	// release then ran before the resource was held, so the release must be
	// paired with the acquisition here, not with the attempt's once.
	c.mu.Lock()
	if c.att != att {
		c.mu.Unlock()
		if err := c.recorder.Stop(); err != nil {
			slog.Warn("live: capture release error", "err", err)
		}
		return fmt.Errorf("live: start cancelled: %w", context.Canceled)
	}
	c.mu.Unlock()

	// Handshake, bounded by the timeout rather than blocking indefinitely.
	hsStart := time.Now()
	hsCtx, hsCancel := context.WithTimeout(attCtx, c.timeout)
	conn, err := c.platform.Connect(hsCtx)
	hsCancel()
	if c.metrics != nil {
		c.metrics.HandshakeDuration.Record(context.Background(), time.Since(hsStart).Seconds())
	}
	if err != nil {
		werr := fmt.Errorf("%w: %v", ErrHandshakeFailure, err)
		switch {
		case errors.Is(attCtx.Err(), context.Canceled):
			// Stop or the caller's context cancelled the in-flight
			// handshake. abort tolerates an attempt teardown already
			// finalised, so either way the state lands in disconnected.
			werr = fmt.Errorf("live: start cancelled: %w", context.Canceled)
		case errors.Is(err, context.DeadlineExceeded):
			werr = fmt.Errorf("%w after %s", ErrHandshakeTimeout, c.timeout)
		}
		c.abort(att, nil, werr)
		return werr
	}

	// Connected: begin archival capture alongside event forwarding.
	if err := c.recorder.Start(); err != nil {
		werr := fmt.Errorf("live: begin capture: %w", err)
		c.abort(att, conn, werr)
		return werr
	}

	c.mu.Lock()
	if c.att != att || c.state != StateConnecting {
		// Stopped while connecting; undo quietly.
		c.mu.Unlock()
		c.releaseCapture(att)
		_ = conn.Close()
		return fmt.Errorf("live: start cancelled: %w", context.Canceled)
	}
	c.state = StateConnected
	c.conn = conn
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.ActiveSessions.Add(context.Background(), 1)
	}
	slog.Info("live: channel connected")

	go c.readLoop(att, conn)
	return nil
}

// Stop tears the connection down from any state. It is idempotent: repeat
// calls leave the state disconnected and never release capture twice.
func (c *Connector) Stop() error {
	c.mu.Lock()
	att := c.att
	c.mu.Unlock()
	if att == nil {
		return nil
	}
	c.teardown(att, nil)
	return nil
}

// readLoop forwards inbound events until a terminal event or stream close,
// archiving audio chunks along the way.
func (c *Connector) readLoop(att *attempt, conn channel.Conn) {
	for ev := range conn.Events() {
		switch ev.Type {
		case channel.EventAudio:
			if err := c.recorder.Write(ev.Chunk); err != nil {
				slog.Warn("live: capture write error", "err", err)
			}
			c.forward(att, ev)
		case channel.EventTranscript:
			c.forward(att, ev)
		case channel.EventEnd:
			c.forward(att, ev)
			c.teardown(att, nil)
			return
		case channel.EventError:
			c.forward(att, ev)
			c.teardown(att, ev.Err)
			return
		}
	}
	// The stream closed without an end signal. Treated as a normal
	// termination path; the transcript is left intact.
	c.teardown(att, ErrChannelClosed)
}

// forward delivers ev to the consumer unless this attempt is stopping.
func (c *Connector) forward(att *attempt, ev channel.Event) {
	select {
	case c.events <- ev:
	case <-att.stop:
	}
}

// teardown is the single exit edge back to disconnected, shared by manual
// stop, remote end-of-call, and channel errors.
func (c *Connector) teardown(att *attempt, cause error) {
	c.mu.Lock()
	if c.att != att {
		// This attempt was already finalised; nothing left to release.
		c.mu.Unlock()
		return
	}
	conn := c.conn
	wasConnected := c.state == StateConnected
	c.conn = nil
	c.att = nil
	c.state = StateDisconnected
	c.lastErr = cause
	c.mu.Unlock()

	c.releaseCapture(att)
	att.cancel()
	if conn != nil {
		_ = conn.Close()
	}

	if c.metrics != nil {
		if wasConnected {
			c.metrics.ActiveSessions.Add(context.Background(), -1)
		}
		if cause != nil {
			c.metrics.RecordConnectionError(context.Background(), errorKind(cause))
		}
	}
	if cause != nil {
		slog.Warn("live: channel disconnected", "err", cause)
	} else {
		slog.Info("live: channel disconnected")
	}
}

// abort finalises a failed in-flight Start attempt. When teardown got there
// first the attempt is already finalised and abort stays quiet.
func (c *Connector) abort(att *attempt, conn channel.Conn, cause error) {
	c.releaseCapture(att)
	att.cancel()
	if conn != nil {
		_ = conn.Close()
	}

	c.mu.Lock()
	current := c.att == att
	if current {
		c.att = nil
		c.state = StateDisconnected
		c.lastErr = cause
	}
	c.mu.Unlock()
	if !current {
		return
	}

	if c.metrics != nil {
		c.metrics.RecordConnectionError(context.Background(), errorKind(cause))
	}
	slog.Warn("live: connection attempt failed", "err", cause)
}

// errorKind maps a teardown cause onto a low-cardinality metric attribute.
func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, ErrHandshakeTimeout):
		return "handshake_timeout"
	case errors.Is(err, ErrHandshakeFailure):
		return "handshake_failure"
	case errors.Is(err, ErrChannelClosed):
		return "channel_closed"
	default:
		return "other"
	}
}

// releaseCapture stops the recorder exactly once per attempt and unblocks
// any forward stuck on a slow consumer.
func (c *Connector) releaseCapture(att *attempt) {
	att.release.Do(func() {
		if err := c.recorder.Stop(); err != nil {
			slog.Warn("live: capture release error", "err", err)
		}
		close(att.stop)
	})
}
