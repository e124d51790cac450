// Package mock provides in-memory mock implementations of the
// [channel.Platform] and [channel.Conn] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// tests can assert on call counts, and expose exported fields to control
// return values.
//
// Typical usage:
//
//	conn := mock.NewConn()
//	platform := &mock.Platform{ConnectResult: conn}
//	conn.Emit(channel.Event{Type: channel.EventTranscript, ...})
//	conn.End("completed")
package mock

import (
	"context"
	"sync"

	"github.com/pitchdrill/pitchdrill/pkg/channel"
)

// ─── Conn ─────────────────────────────────────────────────────────────────────

// Conn is a mock implementation of [channel.Conn]. Create it with [NewConn]
// and feed events to the consumer with [Conn.Emit], [Conn.End], and
// [Conn.Fail].
type Conn struct {
	mu sync.Mutex

	// CloseError is returned by [Conn.Close].
	CloseError error

	// CallCountClose records how many times Close was called.
	CallCountClose int

	events chan channel.Event
	closed bool
}

// NewConn creates a mock connection with a buffered event stream.
func NewConn() *Conn {
	return &Conn{events: make(chan channel.Event, 64)}
}

// Events implements [channel.Conn].
func (c *Conn) Events() <-chan channel.Event {
	return c.events
}

// Close implements [channel.Conn]. The event stream is closed on first call.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountClose++
	if !c.closed {
		c.closed = true
		close(c.events)
	}
	return c.CloseError
}

// Emit delivers ev to the consumer. Emit after Close is a no-op.
func (c *Conn) Emit(ev channel.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.events <- ev
}

// End delivers a terminal EventEnd and closes the stream.
func (c *Conn) End(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.events <- channel.Event{Type: channel.EventEnd, Reason: reason}
	c.closed = true
	close(c.events)
}

// Fail delivers a terminal EventError and closes the stream.
func (c *Conn) Fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.events <- channel.Event{Type: channel.EventError, Err: err}
	c.closed = true
	close(c.events)
}

// ─── Platform ─────────────────────────────────────────────────────────────────

// Platform is a mock implementation of [channel.Platform].
// Set the exported Result fields before use; inspect the Call* fields after.
type Platform struct {
	mu sync.Mutex

	// ConnectResult is returned by [Platform.Connect] when ConnectFunc and
	// ConnectError are unset.
	ConnectResult channel.Conn

	// ConnectError is returned by [Platform.Connect] when set.
	ConnectError error

	// ConnectFunc, when set, fully replaces the Connect behaviour. Useful
	// for simulating handshakes that block until ctx expires.
	ConnectFunc func(ctx context.Context) (channel.Conn, error)

	// CallCountConnect records how many times Connect was called.
	CallCountConnect int
}

// Connect implements [channel.Platform].
func (p *Platform) Connect(ctx context.Context) (channel.Conn, error) {
	p.mu.Lock()
	p.CallCountConnect++
	fn := p.ConnectFunc
	res, err := p.ConnectResult, p.ConnectError
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}
