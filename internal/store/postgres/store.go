// Package postgres stores projects, judges and the table-number counter in
// PostgreSQL.
//
// The counter lives in the single-row options table. A lease is a
// transaction holding a row lock on it (SELECT ... FOR UPDATE), so a second
// import blocks in AcquireSlots until the first one commits or rolls back.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/jury/internal/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// Config holds connection pool settings.
type Config struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Store implements core.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ core.Store = (*Store)(nil)

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate creates the tables if needed and seeds the counter with
// startSlot. An existing counter is left alone.
func (s *Store) Migrate(ctx context.Context, startSlot int64) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO options (id, next_slot) VALUES (1, $1) ON CONFLICT (id) DO NOTHING`,
		startSlot,
	); err != nil {
		return fmt.Errorf("seed options: %w", err)
	}
	return nil
}

// AcquireSlots opens a transaction and locks the counter row.
func (s *Store) AcquireSlots(ctx context.Context) (core.SlotLease, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %w", core.ErrAllocatorUnavailable, err)
	}

	var next int64
	err = tx.QueryRow(ctx, `SELECT next_slot FROM options WHERE id = 1 FOR UPDATE`).Scan(&next)
	if err != nil {
		_ = tx.Rollback(context.Background())
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: options row missing, run migrations", core.ErrAllocatorUnavailable)
		}
		return nil, fmt.Errorf("%w: load counter: %w", core.ErrAllocatorUnavailable, err)
	}
	return &lease{tx: tx, next: next}, nil
}

type lease struct {
	tx   pgx.Tx
	next int64
	done bool
}

func (l *lease) Next() int64 {
	n := l.next
	l.next++
	return n
}

func (l *lease) Save(ctx context.Context) error {
	if l.done {
		return fmt.Errorf("%w: lease already closed", core.ErrAllocatorUnavailable)
	}
	l.done = true

	if _, err := l.tx.Exec(ctx,
		`UPDATE options SET next_slot = $1, updated_at = now() WHERE id = 1`,
		l.next,
	); err != nil {
		_ = l.tx.Rollback(context.Background())
		return fmt.Errorf("%w: save counter: %w", core.ErrAllocatorUnavailable, err)
	}
	if err := l.tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit counter: %w", core.ErrAllocatorUnavailable, err)
	}
	return nil
}

func (l *lease) Release() {
	if l.done {
		return
	}
	l.done = true
	// Background context so a cancelled request still unlocks the row.
	_ = l.tx.Rollback(context.Background())
}

const insertProject = `
INSERT INTO projects (
    id, name, location, description, try_link, video_link, challenge_list,
    seen, votes, mu, sigma_sq, active, prioritized, last_activity
) VALUES (
    COALESCE($1::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7,
    $8, $9, $10, $11, $12, $13, $14
) RETURNING id`

// InsertProjects stores all projects in one transaction.
func (s *Store) InsertProjects(ctx context.Context, projects []core.Project) error {
	if len(projects) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) // No-op after commit

	batch := &pgx.Batch{}
	for _, p := range projects {
		challenges := p.ChallengeList
		if challenges == nil {
			challenges = []string{}
		}
		batch.Queue(insertProject,
			core.ToPgUUID(p.ID), p.Name, p.Location, p.Description, p.TryLink, p.VideoLink, challenges,
			p.Seen, p.Votes, p.Mu, p.SigmaSq, p.Active, p.Prioritized, p.LastActivity,
		)
	}

	ids, err := scanBatchIDs(tx.SendBatch(ctx, batch), len(projects))
	if err != nil {
		return describeInsertError("project", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	for i := range projects {
		projects[i].ID = ids[i]
	}
	return nil
}

const insertJudge = `
INSERT INTO judges (id, code, name, email, role, active, read_welcome, votes, last_activity)
VALUES (COALESCE($1::uuid, gen_random_uuid()), $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id`

// InsertJudges stores all judges in one transaction.
func (s *Store) InsertJudges(ctx context.Context, judges []core.Judge) error {
	if len(judges) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, j := range judges {
		batch.Queue(insertJudge,
			core.ToPgUUID(j.ID), j.Code, j.Name, j.Email, j.Role, j.Active, j.ReadWelcome, j.Votes,
			pgtype.Timestamptz{Time: j.LastActivity, Valid: !j.LastActivity.IsZero()},
		)
	}

	ids, err := scanBatchIDs(tx.SendBatch(ctx, batch), len(judges))
	if err != nil {
		return describeInsertError("judge", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	for i := range judges {
		judges[i].ID = ids[i]
	}
	return nil
}

func scanBatchIDs(br pgx.BatchResults, n int) ([]uuid.NullUUID, error) {
	ids := make([]uuid.NullUUID, n)
	for i := 0; i < n; i++ {
		var id pgtype.UUID
		if err := br.QueryRow().Scan(&id); err != nil {
			_ = br.Close()
			return nil, err
		}
		ids[i] = core.FromPgUUID(id)
	}
	return ids, br.Close()
}

// describeInsertError names the constraint behind a rejected insert.
func describeInsertError(kind string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("insert %s: duplicate key on %s: %w", kind, pgErr.ConstraintName, err)
	}
	return fmt.Errorf("insert %s: %w", kind, err)
}

// ListProjects returns all projects ordered by table number.
func (s *Store) ListProjects(ctx context.Context) ([]core.Project, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, location, description, try_link, video_link, challenge_list,
		       seen, votes, mu, sigma_sq, active, prioritized, last_activity
		FROM projects
		ORDER BY location`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []core.Project
	for rows.Next() {
		var (
			p  core.Project
			id pgtype.UUID
		)
		if err := rows.Scan(
			&id, &p.Name, &p.Location, &p.Description, &p.TryLink, &p.VideoLink, &p.ChallengeList,
			&p.Seen, &p.Votes, &p.Mu, &p.SigmaSq, &p.Active, &p.Prioritized, &p.LastActivity,
		); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.ID = core.FromPgUUID(id)
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// ListJudges returns all judges in insertion order.
func (s *Store) ListJudges(ctx context.Context) ([]core.Judge, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, code, name, email, role, active, read_welcome, votes, last_activity
		FROM judges
		ORDER BY created_at, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var judges []core.Judge
	for rows.Next() {
		var (
			j    core.Judge
			id   pgtype.UUID
			last pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &j.Code, &j.Name, &j.Email, &j.Role, &j.Active, &j.ReadWelcome, &j.Votes, &last); err != nil {
			return nil, fmt.Errorf("scan judge: %w", err)
		}
		j.ID = core.FromPgUUID(id)
		if last.Valid {
			j.LastActivity = last.Time
		}
		judges = append(judges, j)
	}
	return judges, rows.Err()
}

// Options returns the counter without locking it.
func (s *Store) Options(ctx context.Context) (core.Options, error) {
	var opts core.Options
	err := s.pool.QueryRow(ctx, `SELECT next_slot, updated_at FROM options WHERE id = 1`).
		Scan(&opts.NextSlot, &opts.UpdatedAt)
	if err != nil {
		return core.Options{}, err
	}
	return opts, nil
}

// Reset deletes every project and judge and sets the counter to startSlot.
// It waits for any running import to release the counter first.
func (s *Store) Reset(ctx context.Context, startSlot int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT 1 FROM options WHERE id = 1 FOR UPDATE`); err != nil {
		return fmt.Errorf("lock options: %w", err)
	}
	if _, err := tx.Exec(ctx, `TRUNCATE projects, judges`); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	if _, err := tx.Exec(ctx,
		`UPDATE options SET next_slot = $1, updated_at = now() WHERE id = 1`,
		startSlot,
	); err != nil {
		return fmt.Errorf("reset counter: %w", err)
	}
	return tx.Commit(ctx)
}
