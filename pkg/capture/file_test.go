package capture_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pitchdrill/pitchdrill/pkg/capture"
)

func TestFileRecorder_Lifecycle(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	r := capture.NewFileRecorder(dir)

	if err := r.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	path := r.Path()
	if path == "" {
		t.Fatal("Path() empty after Acquire")
	}
	if filepath.Dir(path) != dir {
		t.Errorf("capture file in %q, want %q", filepath.Dir(path), dir)
	}

	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Write([]byte("abc")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := r.Write([]byte("def")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read capture file: %v", err)
	}
	if string(data) != "abcdef" {
		t.Errorf("capture contents = %q, want %q", data, "abcdef")
	}
}

func TestFileRecorder_CreatesDir(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "nested", "captures")
	r := capture.NewFileRecorder(dir)

	if err := r.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t.Cleanup(func() { _ = r.Stop() })

	if _, err := os.Stat(dir); err != nil {
		t.Errorf("capture dir not created: %v", err)
	}
}

func TestFileRecorder_StopIdempotent(t *testing.T) {
	t.Parallel()
	r := capture.NewFileRecorder(t.TempDir())

	// Stop before Acquire is a no-op.
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop before Acquire: %v", err)
	}

	if err := r.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := r.Stop(); err != nil {
		t.Fatalf("repeated Stop: %v", err)
	}
	if got := r.Path(); got != "" {
		t.Errorf("Path after Stop = %q, want empty", got)
	}
}

func TestFileRecorder_WriteBeforeStartDropped(t *testing.T) {
	t.Parallel()
	r := capture.NewFileRecorder(t.TempDir())
	if err := r.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t.Cleanup(func() { _ = r.Stop() })

	path := r.Path()
	if err := r.Write([]byte("early")); err != nil {
		t.Fatalf("Write before Start: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read capture file: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("file contains %q, want empty before Start", data)
	}
}

func TestFileRecorder_DoubleAcquireRejected(t *testing.T) {
	t.Parallel()
	r := capture.NewFileRecorder(t.TempDir())
	if err := r.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t.Cleanup(func() { _ = r.Stop() })

	if err := r.Acquire(context.Background()); err == nil {
		t.Error("second Acquire should fail while held")
	}
}

func TestFileRecorder_PermissionDenied(t *testing.T) {
	t.Parallel()
	if os.Geteuid() == 0 {
		t.Skip("running as root, directory permissions are not enforced")
	}
	parent := t.TempDir()
	if err := os.Chmod(parent, 0o555); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Cleanup(func() { _ = os.Chmod(parent, 0o755) })

	r := capture.NewFileRecorder(filepath.Join(parent, "denied"))
	err := r.Acquire(context.Background())
	if err == nil {
		t.Fatal("Acquire should fail in a read-only directory")
	}
	if !errors.Is(err, capture.ErrPermissionDenied) {
		t.Errorf("err = %v, want ErrPermissionDenied", err)
	}
}

func TestNop(t *testing.T) {
	t.Parallel()
	var r capture.Recorder = capture.Nop{}
	if err := r.Acquire(context.Background()); err != nil {
		t.Errorf("Acquire: %v", err)
	}
	if err := r.Start(); err != nil {
		t.Errorf("Start: %v", err)
	}
	if err := r.Write([]byte{1}); err != nil {
		t.Errorf("Write: %v", err)
	}
	if err := r.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
}
