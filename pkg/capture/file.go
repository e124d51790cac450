package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileRecorder archives session audio as a single raw chunk stream in a
// local directory, one file per session. Downstream tooling owns container
// formats and codecs; this layer stores the raw chunks only.
type FileRecorder struct {
	dir string

	mu      sync.Mutex
	f       *os.File
	started bool
}

// NewFileRecorder creates a recorder that writes into dir.
func NewFileRecorder(dir string) *FileRecorder {
	return &FileRecorder{dir: dir}
}

// Acquire implements [Recorder]. It creates the capture directory and the
// session file; filesystem permission failures surface as
// [ErrPermissionDenied].
func (r *FileRecorder) Acquire(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.f != nil {
		return errors.New("capture: already acquired")
	}

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return wrapPermission("create capture dir", err)
	}
	name := fmt.Sprintf("session-%s.raw", time.Now().UTC().Format("20060102T150405Z"))
	f, err := os.OpenFile(filepath.Join(r.dir, name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return wrapPermission("create capture file", err)
	}
	r.f = f
	return nil
}

// Start implements [Recorder].
func (r *FileRecorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return errors.New("capture: start before acquire")
	}
	r.started = true
	return nil
}

// Write implements [Recorder]. Chunks arriving while the recorder is not
// started are dropped, matching the best-effort archival contract.
func (r *FileRecorder) Write(chunk []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started || r.f == nil {
		return nil
	}
	if _, err := r.f.Write(chunk); err != nil {
		return fmt.Errorf("capture: write: %w", err)
	}
	return nil
}

// Stop implements [Recorder]. Safe to call more than once.
func (r *FileRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = false
	if r.f == nil {
		return nil
	}
	f := r.f
	r.f = nil
	if err := f.Close(); err != nil {
		return fmt.Errorf("capture: close: %w", err)
	}
	return nil
}

// Path returns the current capture file path, or "" when not acquired.
func (r *FileRecorder) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return ""
	}
	return r.f.Name()
}

// wrapPermission maps os permission errors onto [ErrPermissionDenied],
// preserving the original error text.
func wrapPermission(op string, err error) error {
	if errors.Is(err, os.ErrPermission) {
		return fmt.Errorf("capture: %s: %w: %v", op, ErrPermissionDenied, err)
	}
	return fmt.Errorf("capture: %s: %w", op, err)
}
