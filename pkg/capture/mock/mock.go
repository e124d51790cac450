// Package mock provides an in-memory mock implementation of the
// [capture.Recorder] interface for use in unit tests.
//
// The mock records every method call so tests can assert on call counts,
// and exposes exported error fields to control return values.
package mock

import (
	"context"
	"sync"
)

// Recorder is a mock implementation of [capture.Recorder].
// Set the exported *Error fields before use; inspect the CallCount* fields
// after.
type Recorder struct {
	mu sync.Mutex

	// AcquireError is returned by [Recorder.Acquire].
	AcquireError error

	// StartError is returned by [Recorder.Start].
	StartError error

	// WriteError is returned by [Recorder.Write].
	WriteError error

	// StopError is returned by [Recorder.Stop].
	StopError error

	// CallCountAcquire records how many times Acquire was called.
	CallCountAcquire int

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	// Written holds every chunk passed to Write, in order.
	Written [][]byte
}

// Acquire implements [capture.Recorder].
func (r *Recorder) Acquire(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CallCountAcquire++
	return r.AcquireError
}

// Start implements [capture.Recorder].
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CallCountStart++
	return r.StartError
}

// Write implements [capture.Recorder].
func (r *Recorder) Write(chunk []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := make([]byte, len(chunk))
	copy(c, chunk)
	r.Written = append(r.Written, c)
	return r.WriteError
}

// Stop implements [capture.Recorder].
func (r *Recorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.CallCountStop++
	return r.StopError
}
