// Package sqlite is an embedded, single-process store built on the pure Go
// SQLite driver. It needs no server and suits small events and local runs.
//
// The counter lease is process-local: a semaphore gives one import at a
// time ownership of the options row, and Save writes it back in a single
// statement. Only one process may open a database file.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/JonMunkholm/jury/internal/core"
	"github.com/google/uuid"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

//go:embed schema.sql
var schema string

// Store implements core.Store on a SQLite file.
type Store struct {
	db   *sql.DB
	sem  chan struct{}
	path string
}

var _ core.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path, applies the schema
// and seeds the counter with startSlot if it does not exist yet.
func Open(ctx context.Context, path string, startSlot int64) (*Store, error) {
	if path == "" {
		path = "jury.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}

	q := url.Values{}
	q.Add("_pragma", "busy_timeout(5000)")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	db, err := sql.Open("sqlite", "file:"+path+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db, sem: make(chan struct{}, 1), path: path}
	if err := s.migrate(ctx, startSlot); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context, startSlot int64) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO options (id, next_slot, updated_at) VALUES (1, ?, ?) ON CONFLICT(id) DO NOTHING`,
		startSlot, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("seed options: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Ping checks that the database is usable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// AcquireSlots waits for the counter and loads it.
func (s *Store) AcquireSlots(ctx context.Context) (core.SlotLease, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", core.ErrAllocatorUnavailable, ctx.Err())
	}

	var next int64
	if err := s.db.QueryRowContext(ctx, `SELECT next_slot FROM options WHERE id = 1`).Scan(&next); err != nil {
		<-s.sem
		return nil, fmt.Errorf("%w: load counter: %w", core.ErrAllocatorUnavailable, err)
	}
	return &lease{store: s, next: next}, nil
}

type lease struct {
	store *Store
	next  int64
	done  bool
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
	defer l.Release()

	if _, err := l.store.db.ExecContext(ctx,
		`UPDATE options SET next_slot = ?, updated_at = ? WHERE id = 1`,
		l.next, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("%w: save counter: %w", core.ErrAllocatorUnavailable, err)
	}
	return nil
}

func (l *lease) Release() {
	if l.done {
		return
	}
	l.done = true
	<-l.store.sem
}

// InsertProjects stores all projects in one transaction.
func (s *Store) InsertProjects(ctx context.Context, projects []core.Project) (retErr error) {
	if len(projects) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO projects (
			id, name, location, description, try_link, video_link, challenge_list,
			seen, votes, mu, sigma_sq, active, prioritized, last_activity
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	ids := make([]uuid.NullUUID, len(projects))
	for i, p := range projects {
		ids[i] = p.ID
		if !ids[i].Valid {
			ids[i] = core.NewID()
		}
		challenges, err := encodeChallenges(p.ChallengeList)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			ids[i].UUID.String(), p.Name, p.Location, p.Description, p.TryLink, p.VideoLink, challenges,
			p.Seen, p.Votes, p.Mu, p.SigmaSq, p.Active, p.Prioritized, p.LastActivity.UTC(),
		); err != nil {
			return fmt.Errorf("insert project %q: %w", p.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	for i := range projects {
		projects[i].ID = ids[i]
	}
	return nil
}

// InsertJudges stores all judges in one transaction.
func (s *Store) InsertJudges(ctx context.Context, judges []core.Judge) (retErr error) {
	if len(judges) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO judges (id, code, name, email, role, active, read_welcome, votes, last_activity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	ids := make([]uuid.NullUUID, len(judges))
	for i, j := range judges {
		ids[i] = j.ID
		if !ids[i].Valid {
			ids[i] = core.NewID()
		}
		last := sql.NullTime{Time: j.LastActivity.UTC(), Valid: !j.LastActivity.IsZero()}
		if _, err := stmt.ExecContext(ctx,
			ids[i].UUID.String(), j.Code, j.Name, j.Email, j.Role, j.Active, j.ReadWelcome, j.Votes, last,
		); err != nil {
			return fmt.Errorf("insert judge %q: %w", j.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	for i := range judges {
		judges[i].ID = ids[i]
	}
	return nil
}

// ListProjects returns all projects ordered by table number.
func (s *Store) ListProjects(ctx context.Context) ([]core.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, location, description, try_link, video_link, challenge_list,
		       seen, votes, mu, sigma_sq, active, prioritized, last_activity
		FROM projects
		ORDER BY location`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var projects []core.Project
	for rows.Next() {
		var (
			p          core.Project
			challenges string
		)
		// Links scan through pgtype.Text's sql.Scanner; NULL becomes absent.
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Location, &p.Description, &p.TryLink, &p.VideoLink, &challenges,
			&p.Seen, &p.Votes, &p.Mu, &p.SigmaSq, &p.Active, &p.Prioritized, &p.LastActivity,
		); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		if err := json.Unmarshal([]byte(challenges), &p.ChallengeList); err != nil {
			return nil, fmt.Errorf("decode challenge list of %q: %w", p.Name, err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// ListJudges returns all judges in insertion order.
func (s *Store) ListJudges(ctx context.Context) ([]core.Judge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, name, email, role, active, read_welcome, votes, last_activity
		FROM judges
		ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var judges []core.Judge
	for rows.Next() {
		var (
			j    core.Judge
			last sql.NullTime
		)
		if err := rows.Scan(&j.ID, &j.Code, &j.Name, &j.Email, &j.Role, &j.Active, &j.ReadWelcome, &j.Votes, &last); err != nil {
			return nil, fmt.Errorf("scan judge: %w", err)
		}
		if last.Valid {
			j.LastActivity = last.Time
		}
		judges = append(judges, j)
	}
	return judges, rows.Err()
}

// Options returns the persisted counter.
func (s *Store) Options(ctx context.Context) (core.Options, error) {
	var opts core.Options
	err := s.db.QueryRowContext(ctx, `SELECT next_slot, updated_at FROM options WHERE id = 1`).
		Scan(&opts.NextSlot, &opts.UpdatedAt)
	if err != nil {
		return core.Options{}, err
	}
	return opts, nil
}

// Reset deletes every project and judge and sets the counter to startSlot.
func (s *Store) Reset(ctx context.Context, startSlot int64) (retErr error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.sem }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	for _, stmt := range []string{`DELETE FROM projects`, `DELETE FROM judges`} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE options SET next_slot = ?, updated_at = ? WHERE id = 1`,
		startSlot, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("reset counter: %w", err)
	}
	return tx.Commit()
}

func encodeChallenges(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("encode challenge list: %w", err)
	}
	return string(data), nil
}
