package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "namebot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// Config configures the catalog store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means driver default
}

// Store is the sqlite-backed catalog.
//
// All writes are committed before the call returns; there are no deferred or
// batched commits visible to callers.
type Store struct {
	db  *sql.DB
	log logx.Logger
}

func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("catalog path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Store{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Insert persists a new entry with usage_count 0 and returns its id.
// Returns ErrDuplicate when the normalized key already exists. The pre-check
// is an optimization; the unique constraint is the authoritative guard, so a
// racing insert is also reported as ErrDuplicate.
func (s *Store) Insert(ctx context.Context, displayName string) (int64, error) {
	key := Normalize(displayName)
	if key == "" {
		return 0, fmt.Errorf("insert %q: empty normalized key", displayName)
	}

	if _, err := s.FindByKey(ctx, key); err == nil {
		return 0, ErrDuplicate
	} else if !errors.Is(err, ErrNotFound) {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO names(display_name, normalized_key, usage_count, created_at) VALUES(?,?,0,?)`,
		displayName, key, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	return res.LastInsertId()
}

// FindByKey looks up an entry by normalized key.
func (s *Store) FindByKey(ctx context.Context, key string) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, normalized_key, usage_count, created_at FROM names WHERE normalized_key = ?`, key)
	return scanEntry(row)
}

// FindByID looks up an entry by id. ErrNotFound here indicates referential
// inconsistency, not user error.
func (s *Store) FindByID(ctx context.Context, id int64) (Entry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, normalized_key, usage_count, created_at FROM names WHERE id = ?`, id)
	return scanEntry(row)
}

// IDRange returns the lowest and highest entry ids.
func (s *Store) IDRange(ctx context.Context) (minID, maxID int64, err error) {
	var lo, hi sql.NullInt64
	err = s.db.QueryRowContext(ctx, `SELECT MIN(id), MAX(id) FROM names`).Scan(&lo, &hi)
	if err != nil {
		return 0, 0, err
	}
	if !lo.Valid || !hi.Valid {
		return 0, 0, ErrEmptyCatalog
	}
	return lo.Int64, hi.Int64, nil
}

// IncrementUsage atomically adds 1 to the entry's usage counter.
func (s *Store) IncrementUsage(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE names SET usage_count = usage_count + 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of catalog entries.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM names`).Scan(&n)
	return n, err
}

// ListAll returns every entry in the requested order.
func (s *Store) ListAll(ctx context.Context, order Order) ([]Entry, error) {
	q := `SELECT id, display_name, normalized_key, usage_count, created_at FROM names ORDER BY id ASC`
	if order == OrderByNewest {
		q = `SELECT id, display_name, normalized_key, usage_count, created_at FROM names ORDER BY created_at DESC, id DESC`
	}
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
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
	return out, rows.Err()
}

// Seed loads the initial name list, once, when the catalog is empty.
// It silently skips when the table already has rows. Names that collide
// after normalization are inserted once. Returns the number of inserted rows.
func (s *Store) Seed(ctx context.Context, names []string) (int, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Debug("catalog already populated; skipping seed", logx.Int64("rows", n))
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	seen := make(map[string]struct{}, len(names))
	inserted := 0
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, name := range names {
		name = strings.TrimSpace(name)
		key := Normalize(name)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO names(display_name, normalized_key, usage_count, created_at) VALUES(?,?,0,?)`,
			name, key, now,
		); err != nil {
			return 0, fmt.Errorf("seed %q: %w", name, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	s.log.Info("catalog seeded", logx.Int("names", inserted))
	return inserted, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (Entry, error) {
	var e Entry
	var created string
	err := r.Scan(&e.ID, &e.DisplayName, &e.NormalizedKey, &e.UsageCount, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, err
	}
	if t, perr := time.Parse(time.RFC3339Nano, created); perr == nil {
		e.CreatedAt = t
	}
	return e, nil
}

// isUniqueViolation matches the driver's unique-constraint error. modernc's
// sqlite surfaces these as "UNIQUE constraint failed: <table>.<column>".
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}
