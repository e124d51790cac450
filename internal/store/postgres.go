package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitchdrill/pitchdrill/internal/coach"
	"github.com/pitchdrill/pitchdrill/pkg/types"
)

// ErrNotFound is returned by GetSession for unknown session IDs.
var ErrNotFound = errors.New("store: session not found")

const ddlSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    id               TEXT         PRIMARY KEY,
    started_at       TIMESTAMPTZ  NOT NULL,
    ended_at         TIMESTAMPTZ  NOT NULL,
    end_reason       TEXT         NOT NULL DEFAULT '',
    talk_time_ratio  INT          NOT NULL,
    objection_count  INT          NOT NULL,
    techniques_used  TEXT[]       NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_sessions_started_at
    ON sessions (started_at DESC);

CREATE TABLE IF NOT EXISTS session_turns (
    session_id  TEXT         NOT NULL REFERENCES sessions (id) ON DELETE CASCADE,
    sequence    BIGINT       NOT NULL,
    speaker     TEXT         NOT NULL,
    text        TEXT         NOT NULL,
    arrived_at  TIMESTAMPTZ  NOT NULL,
    PRIMARY KEY (session_id, sequence)
);
`

// Postgres is the PostgreSQL-backed [Store]. It holds a single
// [pgxpool.Pool]; all methods are safe for concurrent use.
type Postgres struct {
	pool *pgxpool.Pool
}

// Compile-time interface check.
var _ Store = (*Postgres)(nil)

// NewPostgres establishes a connection pool to the database at dsn and runs
// the schema migration.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddlSessions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases all connections held by the underlying pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Ping verifies database connectivity, for readiness checks.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// SaveSession implements [Store]. The record and its transcript are written
// in one transaction; either everything lands or nothing does.
func (p *Postgres) SaveSession(ctx context.Context, rec SessionRecord) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertSession = `
		INSERT INTO sessions
		    (id, started_at, ended_at, end_reason, talk_time_ratio, objection_count, techniques_used)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if _, err := tx.Exec(ctx, insertSession,
		rec.ID,
		rec.StartedAt,
		rec.EndedAt,
		rec.EndReason,
		rec.Stats.TalkTimeRatio,
		rec.Stats.ObjectionCount,
		rec.Stats.TechniquesUsed,
	); err != nil {
		return fmt.Errorf("store: insert session %q: %w", rec.ID, err)
	}

	const insertTurn = `
		INSERT INTO session_turns (session_id, sequence, speaker, text, arrived_at)
		VALUES ($1, $2, $3, $4, $5)`

	batch := &pgx.Batch{}
	for _, turn := range rec.Turns {
		batch.Queue(insertTurn, rec.ID, turn.Sequence, string(turn.Speaker), turn.Text, turn.ArrivedAt)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("store: insert turns for %q: %w", rec.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("store: commit %q: %w", rec.ID, err)
	}
	return nil
}

// ListSessions implements [Store].
func (p *Postgres) ListSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
		SELECT id, started_at, ended_at, end_reason, talk_time_ratio, objection_count, techniques_used
		FROM   sessions
		ORDER  BY started_at DESC
		LIMIT  $1`

	rows, err := p.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	recs, err := pgx.CollectRows(rows, scanSession)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	return recs, nil
}

// GetSession implements [Store].
func (p *Postgres) GetSession(ctx context.Context, id string) (SessionRecord, error) {
	const q = `
		SELECT id, started_at, ended_at, end_reason, talk_time_ratio, objection_count, techniques_used
		FROM   sessions
		WHERE  id = $1`

	rows, err := p.pool.Query(ctx, q, id)
	if err != nil {
		return SessionRecord{}, fmt.Errorf("store: get session %q: %w", id, err)
	}
	rec, err := pgx.CollectOneRow(rows, scanSession)
	if errors.Is(err, pgx.ErrNoRows) {
		return SessionRecord{}, ErrNotFound
	}
	if err != nil {
		return SessionRecord{}, fmt.Errorf("store: get session %q: %w", id, err)
	}

	const turnsQ = `
		SELECT sequence, speaker, text, arrived_at
		FROM   session_turns
		WHERE  session_id = $1
		ORDER  BY sequence`

	turnRows, err := p.pool.Query(ctx, turnsQ, id)
	if err != nil {
		return SessionRecord{}, fmt.Errorf("store: get turns for %q: %w", id, err)
	}
	rec.Turns, err = pgx.CollectRows(turnRows, func(row pgx.CollectableRow) (coach.TranscriptTurn, error) {
		var (
			turn    coach.TranscriptTurn
			speaker string
		)
		if err := row.Scan(&turn.Sequence, &speaker, &turn.Text, &turn.ArrivedAt); err != nil {
			return coach.TranscriptTurn{}, err
		}
		turn.Speaker = types.Speaker(speaker)
		return turn, nil
	})
	if err != nil {
		return SessionRecord{}, fmt.Errorf("store: get turns for %q: %w", id, err)
	}
	return rec, nil
}

// scanSession scans one sessions row into a SessionRecord without turns.
func scanSession(row pgx.CollectableRow) (SessionRecord, error) {
	var rec SessionRecord
	if err := row.Scan(
		&rec.ID,
		&rec.StartedAt,
		&rec.EndedAt,
		&rec.EndReason,
		&rec.Stats.TalkTimeRatio,
		&rec.Stats.ObjectionCount,
		&rec.Stats.TechniquesUsed,
	); err != nil {
		return SessionRecord{}, err
	}
	return rec, nil
}
