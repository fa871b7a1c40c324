package session

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/formsight-data/form.report/internal/feedback"
	"github.com/formsight-data/form.report/internal/monitoring"
	"github.com/formsight-data/form.report/internal/pose"
	"github.com/formsight-data/form.report/internal/reps"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned by GetSession for an unknown session ID.
var ErrNotFound = errors.New("session not found")

// Store persists terminal sessions in sqlite. Rep and feedback details are
// stored as JSON alongside the columns the list queries filter on.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if needed) the sqlite database at path and
// applies any pending schema migrations. Use ":memory:" for tests.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// The modernc driver serializes writes itself, but a busy_timeout keeps
	// concurrent readers from failing during a checkpoint.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000; PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// migrateUp applies all pending migrations from the embedded set.
func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	// Not closing m: that would close the underlying DB connection.
	m.Log = &migrateLogger{}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// migrateLogger implements migrate.Logger on the package logger.
type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	monitoring.Logf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool { return false }

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// SaveSession writes a terminal session, its reps, and its feedback in one
// transaction. Saving a non-terminal session is a caller bug.
func (s *Store) SaveSession(sess *Session) error {
	if !sess.Status.Terminal() {
		return fmt.Errorf("refusing to save session %s in non-terminal status %q", sess.ID, sess.Status)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	summaryJSON, err := json.Marshal(sess.Summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO sessions (id, mode, status, started_at, ended_at, rep_count, summary)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, string(sess.Mode), string(sess.Status),
		sess.StartedAt.UTC(), sess.EndedAt.UTC(), len(sess.Reps), string(summaryJSON),
	)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", sess.ID, err)
	}

	for i := range sess.Reps {
		rep := &sess.Reps[i]
		detail, err := json.Marshal(rep)
		if err != nil {
			return fmt.Errorf("marshal rep %d: %w", rep.Index, err)
		}
		_, err = tx.Exec(
			`INSERT INTO reps (session_id, rep_index, completed_at, ascent_secs, detail)
			 VALUES (?, ?, ?, ?, ?)`,
			sess.ID, rep.Index, rep.CompletedTS.UTC(), rep.AscentSeconds(), string(detail),
		)
		if err != nil {
			return fmt.Errorf("insert rep %d: %w", rep.Index, err)
		}
	}

	for i := range sess.Feedback {
		it := &sess.Feedback[i]
		detail, err := json.Marshal(it)
		if err != nil {
			return fmt.Errorf("marshal feedback item: %w", err)
		}
		_, err = tx.Exec(
			`INSERT INTO feedback (session_id, type, rep_index, priority, detail)
			 VALUES (?, ?, ?, ?, ?)`,
			sess.ID, string(it.Type), it.RepIndex, it.Priority, string(detail),
		)
		if err != nil {
			return fmt.Errorf("insert feedback item: %w", err)
		}
	}

	return tx.Commit()
}

// Record is a lightweight session listing row.
type Record struct {
	ID        string    `json:"id"`
	Mode      pose.Mode `json:"mode"`
	Status    Status    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	RepCount  int       `json:"rep_count"`
}

// ListSessions returns session listing rows, most recent first.
func (s *Store) ListSessions(limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(
		`SELECT id, mode, status, started_at, ended_at, rep_count
		 FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Mode, &r.Status, &r.StartedAt, &r.EndedAt, &r.RepCount); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// GetSession loads a full session including reps, feedback, and summary.
func (s *Store) GetSession(id string) (*Session, error) {
	sess := &Session{ID: id}
	var summaryJSON string
	err := s.db.QueryRow(
		`SELECT mode, status, started_at, ended_at, summary FROM sessions WHERE id = ?`, id,
	).Scan(&sess.Mode, &sess.Status, &sess.StartedAt, &sess.EndedAt, &summaryJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if summaryJSON != "" && summaryJSON != "null" {
		if err := json.Unmarshal([]byte(summaryJSON), &sess.Summary); err != nil {
			return nil, fmt.Errorf("unmarshal summary for %s: %w", id, err)
		}
	}

	rows, err := s.db.Query(`SELECT detail FROM reps WHERE session_id = ? ORDER BY rep_index`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var detail string
		if err := rows.Scan(&detail); err != nil {
			return nil, err
		}
		var rep reps.RepEvent
		if err := json.Unmarshal([]byte(detail), &rep); err != nil {
			return nil, fmt.Errorf("unmarshal rep for %s: %w", id, err)
		}
		sess.Reps = append(sess.Reps, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	frows, err := s.db.Query(`SELECT detail FROM feedback WHERE session_id = ? ORDER BY feedback_id`, id)
	if err != nil {
		return nil, err
	}
	defer frows.Close()
	for frows.Next() {
		var detail string
		if err := frows.Scan(&detail); err != nil {
			return nil, err
		}
		var it feedback.Item
		if err := json.Unmarshal([]byte(detail), &it); err != nil {
			return nil, fmt.Errorf("unmarshal feedback for %s: %w", id, err)
		}
		sess.Feedback = append(sess.Feedback, it)
	}
	return sess, frows.Err()
}
