// Package capture defines the opaque archival audio capture resource the
// connection layer starts and stops around a live session. The engine never
// decodes audio; a [Recorder] just receives the raw chunks for archival.
//
// The lifecycle is Acquire → Start → Write* → Stop. Acquire reserves the
// capture target and is where permission failures surface; Start begins the
// recording; Stop ends it and releases the target. Stop must be idempotent:
// the connection layer additionally guarantees it is invoked at most once
// per session, but implementations must tolerate repeat calls.
package capture

import (
	"context"
	"errors"
)

// ErrPermissionDenied is returned by [Recorder.Acquire] when the capture
// target cannot be reserved for permission reasons.
var ErrPermissionDenied = errors.New("capture: permission denied")

// Recorder is an archival sink for a session's audio.
//
// Implementations must be safe for concurrent use.
type Recorder interface {
	// Acquire reserves the capture target. Returns an error wrapping
	// [ErrPermissionDenied] when access is refused.
	Acquire(ctx context.Context) error

	// Start begins recording. Must be called after a successful Acquire.
	Start() error

	// Write appends one opaque audio chunk to the archive.
	Write(chunk []byte) error

	// Stop ends recording and releases the capture target. Safe to call
	// more than once and before Acquire; redundant calls are no-ops.
	Stop() error
}

// Nop is a Recorder that discards everything. Used when archival capture is
// disabled.
type Nop struct{}

func (Nop) Acquire(context.Context) error { return nil }
func (Nop) Start() error                  { return nil }
func (Nop) Write([]byte) error            { return nil }
func (Nop) Stop() error                   { return nil }
