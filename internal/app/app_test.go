package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/pitchdrill/pitchdrill/internal/app"
	"github.com/pitchdrill/pitchdrill/internal/config"
	"github.com/pitchdrill/pitchdrill/internal/store"
	capturemock "github.com/pitchdrill/pitchdrill/pkg/capture/mock"
	"github.com/pitchdrill/pitchdrill/pkg/types"
)

// fakeStore records saved sessions in memory.
type fakeStore struct {
	mu    sync.Mutex
	saved []store.SessionRecord
}

func (f *fakeStore) SaveSession(_ context.Context, rec store.SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, rec)
	return nil
}

func (f *fakeStore) ListSessions(context.Context, int) ([]store.SessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.SessionRecord(nil), f.saved...), nil
}

func (f *fakeStore) GetSession(_ context.Context, id string) (store.SessionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.saved {
		if r.ID == id {
			return r, nil
		}
	}
	return store.SessionRecord{}, store.ErrNotFound
}

func (f *fakeStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

// testConfig returns a sim-mode config with a short scripted conversation.
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: "127.0.0.1:0",
			LogLevel:   "error",
		},
		Channel: config.ChannelConfig{
			Mode: config.ChannelSim,
		},
		Simulator: config.SimulatorConfig{
			IntervalMS: 1,
			Script: []config.ScriptLineConfig{
				{Speaker: types.SpeakerTrainee, Text: "Hi, I'm with GreenShield Pest Control."},
				{Speaker: types.SpeakerProspect, Text: "That sounds too expensive for us."},
			},
		},
	}
}

func TestNew_SimMode(t *testing.T) {
	t.Parallel()
	a, err := app.New(context.Background(), testConfig(), app.WithRecorder(&capturemock.Recorder{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Engine() == nil || a.Connector() == nil {
		t.Error("engine and connector should be wired")
	}
}

func TestNew_UnknownChannelMode(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Channel.Mode = "carrier-pigeon"
	if _, err := app.New(context.Background(), cfg); err == nil {
		t.Fatal("New should reject an unknown channel mode")
	}
}

func TestNew_WebsocketRequiresURL(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Channel.Mode = config.ChannelWebsocket
	cfg.Channel.URL = ""
	if _, err := app.New(context.Background(), cfg); err == nil {
		t.Fatal("New should reject websocket mode without a url")
	}
}

func TestApp_RunPlaysScriptAndPersists(t *testing.T) {
	t.Parallel()
	recorder := &capturemock.Recorder{}
	sessions := &fakeStore{}

	a, err := app.New(context.Background(), testConfig(),
		app.WithRecorder(recorder),
		app.WithStore(sessions),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	// Wait for the scripted conversation to be ingested.
	deadline := time.Now().Add(5 * time.Second)
	for len(a.Engine().Transcript()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("transcript has %d turns, want 2", len(a.Engine().Transcript()))
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if got := sessions.count(); got != 1 {
		t.Fatalf("persisted sessions = %d, want 1", got)
	}
	recs, _ := sessions.ListSessions(context.Background(), 10)
	rec := recs[0]
	if rec.ID == "" {
		t.Error("persisted session has no ID")
	}
	if len(rec.Turns) != 2 {
		t.Errorf("persisted turns = %d, want 2", len(rec.Turns))
	}
	if rec.Stats.ObjectionCount != 1 {
		t.Errorf("persisted objection count = %d, want 1", rec.Stats.ObjectionCount)
	}

	// Shutdown is idempotent: no second snapshot.
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if got := sessions.count(); got != 1 {
		t.Errorf("persisted sessions after repeat Shutdown = %d, want 1", got)
	}
}

func TestApp_RestartBeginsFreshSession(t *testing.T) {
	t.Parallel()
	sessions := &fakeStore{}
	a, err := app.New(context.Background(), testConfig(),
		app.WithRecorder(&capturemock.Recorder{}),
		app.WithStore(sessions),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	waitFor(t, func() bool { return a.Engine().Ended() })
	firstTurns := len(a.Engine().Transcript())
	if firstTurns != 2 {
		t.Fatalf("first session turns = %d, want 2", firstTurns)
	}

	// Restarting persists the ended session and resets the engine before
	// the script replays.
	if err := a.StartSession(context.Background()); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if got := sessions.count(); got != 1 {
		t.Fatalf("persisted sessions after restart = %d, want 1", got)
	}
	waitFor(t, func() bool { return a.Engine().Ended() })
	if got := len(a.Engine().Transcript()); got != 2 {
		t.Errorf("second session turns = %d, want 2 (fresh transcript)", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if got := sessions.count(); got != 2 {
		t.Errorf("persisted sessions after shutdown = %d, want 2", got)
	}
}

// waitFor polls cond until it holds or the deadline hits.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestApp_ShutdownWithoutRun(t *testing.T) {
	t.Parallel()
	a, err := app.New(context.Background(), testConfig(),
		app.WithRecorder(&capturemock.Recorder{}),
		app.WithStore(&fakeStore{}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
