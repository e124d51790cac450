// Package app wires all Pitchdrill subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the main processing loop, and Shutdown tears
// everything down in order.
//
// For testing, inject doubles via functional options (WithPlatform,
// WithRecorder, WithStore). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pitchdrill/pitchdrill/internal/api"
	"github.com/pitchdrill/pitchdrill/internal/coach"
	"github.com/pitchdrill/pitchdrill/internal/config"
	"github.com/pitchdrill/pitchdrill/internal/live"
	"github.com/pitchdrill/pitchdrill/internal/observe"
	"github.com/pitchdrill/pitchdrill/internal/store"
	"github.com/pitchdrill/pitchdrill/pkg/capture"
	"github.com/pitchdrill/pitchdrill/pkg/channel"
	"github.com/pitchdrill/pitchdrill/pkg/channel/sim"
	"github.com/pitchdrill/pitchdrill/pkg/channel/ws"
)

// shutdownTimeout bounds the HTTP server drain during Run teardown.
const shutdownTimeout = 10 * time.Second

// App owns all subsystem lifetimes: the analysis engine, the connection
// state machine, the HTTP API, and the optional session store.
type App struct {
	cfg *config.Config

	metrics   *observe.Metrics
	engine    *coach.Engine
	connector *live.Connector
	srv       *http.Server

	// Injected or config-built dependencies.
	platform channel.Platform
	recorder capture.Recorder
	sessions store.Store

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithPlatform injects a channel platform instead of building one from config.
func WithPlatform(p channel.Platform) Option {
	return func(a *App) { a.platform = p }
}

// WithRecorder injects a capture recorder instead of building one from config.
func WithRecorder(r capture.Recorder) Option {
	return func(a *App) { a.recorder = r }
}

// WithStore injects a session store instead of connecting to PostgreSQL.
func WithStore(s store.Store) Option {
	return func(a *App) { a.sessions = s }
}

// New creates and wires all subsystems from cfg.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:     cfg,
		metrics: observe.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.platform == nil {
		platform, err := buildPlatform(cfg)
		if err != nil {
			return nil, err
		}
		a.platform = platform
	}

	if a.recorder == nil {
		if cfg.Capture.Enabled {
			a.recorder = capture.NewFileRecorder(cfg.Capture.Dir)
		} else {
			a.recorder = capture.Nop{}
		}
	}

	a.engine = coach.NewEngine(coach.Config{
		FeedbackCapacity: cfg.Coach.FeedbackCapacity,
		Cooldown:         time.Duration(cfg.Coach.CooldownS) * time.Second,
		TalkTimeLow:      cfg.Coach.TalkTimeLow,
		TalkTimeHigh:     cfg.Coach.TalkTimeHigh,
		Metrics:          a.metrics,
	})

	a.connector = live.New(live.Config{
		Platform:         a.platform,
		Recorder:         a.recorder,
		HandshakeTimeout: time.Duration(cfg.Channel.HandshakeTimeoutS) * time.Second,
		Metrics:          a.metrics,
	})

	var checkers []api.Checker
	if a.sessions == nil && cfg.Storage.PostgresDSN != "" {
		pg, err := store.NewPostgres(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("app: connect session store: %w", err)
		}
		a.sessions = pg
		a.closers = append(a.closers, func() error { pg.Close(); return nil })
		checkers = append(checkers, api.Checker{Name: "database", Check: pg.Ping})
		slog.Info("session store connected")
	}

	srv := api.New(api.Config{
		Coach:    a.engine,
		Conn:     &sessionControl{app: a},
		Metrics:  a.metrics,
		Sessions: a.sessions,
		Checkers: checkers,
	})

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	a.srv = &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// buildPlatform constructs the channel platform selected by cfg.
func buildPlatform(cfg *config.Config) (channel.Platform, error) {
	switch cfg.Channel.Mode {
	case config.ChannelSim:
		return buildSimPlatform(cfg.Simulator)
	case config.ChannelWebsocket, "":
		var opts []ws.Option
		if cfg.Channel.Token != "" {
			opts = append(opts, ws.WithToken(cfg.Channel.Token))
		}
		platform, err := ws.New(cfg.Channel.URL, opts...)
		if err != nil {
			return nil, fmt.Errorf("app: build websocket channel: %w", err)
		}
		return platform, nil
	default:
		return nil, fmt.Errorf("app: unknown channel mode %q", cfg.Channel.Mode)
	}
}

// buildSimPlatform assembles the scripted practice channel, including the
// LLM responder when a model is configured.
func buildSimPlatform(cfg config.SimulatorConfig) (channel.Platform, error) {
	script := make([]sim.ScriptLine, len(cfg.Script))
	for i, line := range cfg.Script {
		script[i] = sim.ScriptLine{
			Speaker: line.Speaker,
			Text:    line.Text,
			Delay:   time.Duration(line.DelayMS) * time.Millisecond,
		}
	}

	platform := &sim.Platform{
		Script:   script,
		Interval: time.Duration(cfg.IntervalMS) * time.Millisecond,
	}

	if cfg.Model != "" {
		var opts []sim.ResponderOption
		if cfg.Persona != "" {
			opts = append(opts, sim.WithPersona(cfg.Persona))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, sim.WithBaseURL(cfg.BaseURL))
		}
		responder, err := sim.NewOpenAIResponder(cfg.APIKey, cfg.Model, opts...)
		if err != nil {
			return nil, fmt.Errorf("app: build sim responder: %w", err)
		}
		platform.Responder = responder
		slog.Info("sim responder configured", "model", cfg.Model)
	}

	return platform, nil
}

// sessionControl routes the API's connection lifecycle through the app so a
// restart begins a fresh coaching session instead of appending to an ended
// one.
type sessionControl struct {
	app *App
}

func (s *sessionControl) Start(ctx context.Context) error { return s.app.StartSession(ctx) }
func (s *sessionControl) Stop() error                     { return s.app.connector.Stop() }
func (s *sessionControl) Status() live.Status             { return s.app.connector.Status() }

// StartSession starts the connection. When the previous session has ended,
// its snapshot is persisted first and the engine reset, so the new
// connection feeds a fresh session rather than the frozen ended one.
func (a *App) StartSession(ctx context.Context) error {
	if a.engine.Ended() {
		a.persistSession(ctx)
		a.engine.Reset()
	}
	return a.connector.Start(ctx)
}

// Connector exposes the connection state machine, mainly for tests.
func (a *App) Connector() *live.Connector { return a.connector }

// Engine exposes the analysis engine, mainly for tests.
func (a *App) Engine() *coach.Engine { return a.engine }

// Run starts the HTTP API and the analysis consumer, then blocks until ctx
// is cancelled or a subsystem fails. In sim mode the connection is started
// automatically; in websocket mode it waits for POST /v1/connection/start.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.engine.Run(gctx, a.connector.Events())
		return nil
	})

	g.Go(func() error {
		slog.Info("http api listening", "addr", a.srv.Addr)
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.srv.Shutdown(drainCtx)
	})

	if a.cfg.Channel.Mode == config.ChannelSim {
		if err := a.StartSession(ctx); err != nil {
			slog.Error("sim session start failed", "err", err)
		}
	}

	return g.Wait()
}

// Shutdown stops the connection, persists the finished session when a store
// is configured, and runs the closers in order. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if err := a.connector.Stop(); err != nil {
			slog.Warn("connector stop error", "err", err)
		}

		a.persistSession(ctx)

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// persistSession writes the session snapshot to the store. Sessions without
// any turns are not worth keeping.
func (a *App) persistSession(ctx context.Context) {
	if a.sessions == nil {
		return
	}
	turns := a.engine.Transcript()
	if len(turns) == 0 {
		return
	}

	rec := store.SessionRecord{
		ID:        uuid.NewString(),
		StartedAt: a.engine.StartedAt(),
		EndedAt:   a.engine.StartedAt().Add(a.engine.Duration()),
		EndReason: a.engine.EndReason(),
		Turns:     turns,
		Stats:     a.engine.CurrentStats(),
	}
	if err := a.sessions.SaveSession(ctx, rec); err != nil {
		slog.Error("persist session failed", "session_id", rec.ID, "err", err)
		return
	}
	slog.Info("session persisted", "session_id", rec.ID, "turns", len(rec.Turns))
}
