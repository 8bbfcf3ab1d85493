package task

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/osqazi/AI-Employee-FTE/internal/vault"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS tasks (
	id        TEXT PRIMARY KEY,
	status    TEXT NOT NULL,
	signal_id TEXT UNIQUE,
	created   TEXT NOT NULL,
	updated   TEXT NOT NULL,
	record    BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status, created, id);
`

// SQLiteStore keeps tasks in a single SQLite table with an explicit status
// column. When a mirror layout is set, every write is also exported as a
// markdown record into the matching vault bucket.
type SQLiteStore struct {
	db     *sql.DB
	mirror *vault.Layout
	onSkip SkipFunc
	now    func() time.Time
}

// SQLiteOption configures a SQLiteStore.
type SQLiteOption func(*SQLiteStore)

// WithMirror exports records into the vault buckets after each write.
func WithMirror(layout vault.Layout) SQLiteOption {
	return func(s *SQLiteStore) {
		s.mirror = &layout
	}
}

// WithSQLiteSkipFunc reports rows skipped by List.
func WithSQLiteSkipFunc(fn SkipFunc) SQLiteOption {
	return func(s *SQLiteStore) {
		s.onSkip = fn
	}
}

// WithSQLiteClock overrides the time source.
func WithSQLiteClock(now func() time.Time) SQLiteOption {
	return func(s *SQLiteStore) {
		s.now = now
	}
}

// OpenSQLite opens (creating if needed) the task database at path.
func OpenSQLite(path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		onSkip: func(string, error) {},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.mirror != nil {
		if err := s.mirror.Ensure(); err != nil {
			db.Close()
			return nil, err
		}
	}
	return s, nil
}

// Create implements Store.
func (s *SQLiteStore) Create(ctx context.Context, t *Task) error {
	if err := prepareNew(t, s.now()); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	base := t.ID
	for probe := 0; ; probe++ {
		if probe >= maxIDProbes {
			return fmt.Errorf("failed to find a free id for %s", base)
		}
		if probe > 0 {
			if t.ID, err = withSuffix(base); err != nil {
				return fmt.Errorf("failed to generate id suffix: %w", err)
			}
		}
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM tasks WHERE id = ?`, t.ID).Scan(&n); err != nil {
			return fmt.Errorf("failed to check id: %w", err)
		}
		if n == 0 {
			break
		}
	}

	data, err := Marshal(t)
	if err != nil {
		return err
	}
	// The unique signal_id is the claim; a concurrent ingester that lost the
	// race inserts nothing.
	res, err := tx.ExecContext(ctx,
		`INSERT INTO tasks (id, status, signal_id, created, updated, record) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(signal_id) DO NOTHING`,
		t.ID, string(t.Status), nullable(t.SignalID), formatTime(t.Created), formatTime(t.Updated), data)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateSignal, t.SignalID)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit task: %w", err)
	}

	return s.export(t, "")
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Task, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT record FROM tasks WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	return Unmarshal(data)
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, status Status) ([]*Task, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown status %q", status)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, record FROM tasks WHERE status = ? ORDER BY created, id`, string(status))
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		var id string
		var data []byte
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		t, err := Unmarshal(data)
		if err == nil && t.Status != status {
			err = fmt.Errorf("%w: record status %q in column %q", ErrMalformed, t.Status, status)
		}
		if err != nil {
			s.onSkip(id, err)
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Transition implements Store.
func (s *SQLiteStore) Transition(ctx context.Context, id string, from, to Status, note Note) (bool, error) {
	if err := validateTransition(from, to); err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var data []byte
	err = tx.QueryRowContext(ctx, `SELECT record FROM tasks WHERE id = ? AND status = ?`, id, string(from)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load task: %w", err)
	}

	t, err := Unmarshal(data)
	if err != nil {
		return false, err
	}
	applyTransition(t, to, note, s.now())
	if data, err = Marshal(t); err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated = ?, record = ? WHERE id = ? AND status = ?`,
		string(to), formatTime(t.Updated), data, id, string(from))
	if err != nil {
		return false, fmt.Errorf("failed to update task: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transition: %w", err)
	}

	return true, s.export(t, from)
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// export writes the mirror copy of t and removes the copy left in the previous bucket.
func (s *SQLiteStore) export(t *Task, previous Status) error {
	if s.mirror == nil {
		return nil
	}
	data, err := Marshal(t)
	if err != nil {
		return err
	}
	path := filepath.Join(s.mirror.Bucket(Bucket(t.Status)), t.ID+recordExt)
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to export task: %w", err)
	}
	if previous != "" && previous != t.Status {
		old := filepath.Join(s.mirror.Bucket(Bucket(previous)), t.ID+recordExt)
		if err := os.Remove(old); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale export: %w", err)
		}
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// sqliteTimeLayout is fixed width so text ordering matches time ordering.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}
