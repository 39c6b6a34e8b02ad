// Package actionlog persists emitted actions to SQLite, grouped by rule
// session.
package actionlog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	apperr "github.com/GriffinCanCode/hotpath/internal/errors"
	"github.com/GriffinCanCode/hotpath/internal/router"
	"github.com/GriffinCanCode/hotpath/internal/rules"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Entry is one recorded action.
type Entry struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	Action    router.Action
	CreatedAt time.Time
}

// Store is an append-only action log.
type Store struct {
	db  *sql.DB
	now func() time.Time

	mu      sync.Mutex
	session uuid.UUID
}

// Open opens or creates the database at path and applies pending
// migrations. ":memory:" gives a private in-memory log.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "open action log")
	}
	// One connection keeps in-memory databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, apperr.Wrap(err, apperr.CodeUnavailable, "ping action log")
	}
	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func migrateUp(db *sql.DB) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "load migrations")
	}
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "sqlite migrate driver")
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return apperr.Wrap(err, apperr.CodeInternal, "migrate instance")
	}
	m.Log = migrateLogger{}
	// m is not closed: closing it closes db.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return apperr.Wrap(err, apperr.CodeInternal, "migrate action log")
	}
	return nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...any) {
	slog.Debug("migrate", "msg", fmt.Sprintf(format, v...))
}

func (migrateLogger) Verbose() bool { return false }

// StartSession begins a new session for a freshly loaded rule set and
// returns its id. Later records belong to it.
func (s *Store) StartSession(ctx context.Context, rs []rules.Rule) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, started_at, rules_json) VALUES (?, ?, ?)`,
		id.String(), s.now().UnixMilli(), string(rules.Serialize(rs)))
	if err != nil {
		return uuid.Nil, apperr.Wrap(err, apperr.CodeInternal, "insert session")
	}
	s.mu.Lock()
	s.session = id
	s.mu.Unlock()
	return id, nil
}

// Session returns the current session id, uuid.Nil before StartSession.
func (s *Store) Session() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// SessionRules returns the rule set a session was started with.
func (s *Store) SessionRules(ctx context.Context, id uuid.UUID) ([]rules.Rule, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT rules_json FROM sessions WHERE id = ?`, id.String()).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.CodeNotFound, "session %s", id)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "query session")
	}
	rs, _, err := rules.Parse([]byte(doc))
	return rs, err
}

const insertAction = `
	INSERT INTO actions (id, session_id, action, x1, y1, x2, y2, duration_ms,
		class_id, confidence, matched_text, rule_index, timestamp_ms, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) insert(ctx context.Context, db execer, a router.Action) (Entry, error) {
	e := Entry{ID: uuid.New(), SessionID: s.Session(), Action: a, CreatedAt: s.now()}
	_, err := db.ExecContext(ctx, insertAction,
		e.ID.String(), e.SessionID.String(), a.Type.String(), a.X1, a.Y1, a.X2, a.Y2, a.DurationMs,
		a.MatchedClassID, a.MatchedConfidence, a.MatchedText, a.RuleIndex, a.Timestamp, e.CreatedAt.UnixMilli())
	if err != nil {
		return Entry{}, apperr.Wrap(err, apperr.CodeInternal, "insert action")
	}
	return e, nil
}

// Record appends a under the current session.
func (s *Store) Record(ctx context.Context, a router.Action) (Entry, error) {
	return s.insert(ctx, s.db, a)
}

// RecordBatch appends actions in one transaction and returns how many were
// stored. Nothing is stored on error.
func (s *Store) RecordBatch(ctx context.Context, actions []router.Action) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, apperr.Wrap(err, apperr.CodeInternal, "begin batch")
	}
	for _, a := range actions {
		if _, err := s.insert(ctx, tx, a); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, apperr.Wrap(err, apperr.CodeInternal, "commit batch")
	}
	return len(actions), nil
}

// Recent returns up to limit entries of session, newest first. uuid.Nil
// means every session.
func (s *Store) Recent(ctx context.Context, session uuid.UUID, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, apperr.Newf(apperr.CodeInvalidArgument, "limit %d", limit)
	}
	q := `SELECT id, session_id, action, x1, y1, x2, y2, duration_ms, class_id,
			confidence, matched_text, rule_index, timestamp_ms, created_at
		FROM actions`
	args := []any{}
	if session != uuid.Nil {
		q += ` WHERE session_id = ?`
		args = append(args, session.String())
	}
	q += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "query actions")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(err, apperr.CodeInternal, "iterate actions")
	}
	return out, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e                 Entry
		id, session, kind string
		created           int64
	)
	a := &e.Action
	err := rows.Scan(&id, &session, &kind, &a.X1, &a.Y1, &a.X2, &a.Y2, &a.DurationMs,
		&a.MatchedClassID, &a.MatchedConfidence, &a.MatchedText, &a.RuleIndex, &a.Timestamp, &created)
	if err != nil {
		return Entry{}, apperr.Wrap(err, apperr.CodeInternal, "scan action")
	}
	if e.ID, err = uuid.Parse(id); err != nil {
		return Entry{}, apperr.Wrap(err, apperr.CodeInternal, "action id")
	}
	if e.SessionID, err = uuid.Parse(session); err != nil {
		return Entry{}, apperr.Wrap(err, apperr.CodeInternal, "session id")
	}
	if a.Type, err = rules.ParseActionType(kind); err != nil {
		return Entry{}, apperr.Wrap(err, apperr.CodeInternal, "action type")
	}
	e.CreatedAt = time.UnixMilli(created)
	return e, nil
}

// Count returns the number of actions recorded for session, or for all
// sessions with uuid.Nil.
func (s *Store) Count(ctx context.Context, session uuid.UUID) (int, error) {
	var (
		n   int
		err error
	)
	if session == uuid.Nil {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM actions`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM actions WHERE session_id = ?`, session.String()).Scan(&n)
	}
	if err != nil {
		return 0, apperr.Wrap(err, apperr.CodeInternal, "count actions")
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
