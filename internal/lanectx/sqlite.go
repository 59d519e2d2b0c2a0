package lanectx

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/builtbyproxy/retrieve-devices/internal/env"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const (
	EnvDBPath    = "LANE_CONTEXT_DB_PATH"
	EnvRunID     = "LANE_CONTEXT_RUN_ID"
	EnvRetention = "LANE_CONTEXT_RETENTION"

	// DefaultRetention bounds how long rows of finished runs are kept.
	DefaultRetention = 7 * 24 * time.Hour

	defaultDBDirName  = ".retrieve_devices"
	defaultDBFileName = "lane_context.sqlite"
)

// SQLiteOptions scopes an SQLiteStore.
type SQLiteOptions struct {
	// RunID names the pipeline run whose values the store reads and writes.
	// Empty falls back to $LANE_CONTEXT_RUN_ID, then to a fresh uuid, which
	// gives an empty lane.
	RunID string
	// Retention drops rows of any run not written for this long; zero uses
	// $LANE_CONTEXT_RETENTION or DefaultRetention.
	Retention time.Duration
}

// SQLiteStore persists lane values so separate processes of one pipeline
// run can hand values to each other. Every read and write is scoped to the
// store's run id; values of other runs are invisible.
type SQLiteStore struct {
	db    *sql.DB
	path  string
	runID string
}

// OpenSQLite opens (and migrates) the store at path. An empty path resolves
// to $LANE_CONTEXT_DB_PATH or ~/.retrieve_devices/lane_context.sqlite.
func OpenSQLite(path string, opts SQLiteOptions) (*SQLiteStore, error) {
	resolved, err := ResolveDatabasePath(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", resolved)
	if err != nil {
		return nil, errors.Wrap(err, "lanectx: open sqlite database failed")
	}
	if err := configureSQLite(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := prepareSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	runID := strings.TrimSpace(opts.RunID)
	if runID == "" {
		runID = env.String(EnvRunID, "")
	}
	if runID == "" {
		runID = uuid.NewString()
	}
	retention := opts.Retention
	if retention <= 0 {
		retention = env.Duration(EnvRetention, DefaultRetention)
	}
	pruned, err := pruneExpired(db, time.Now().Add(-retention))
	if err != nil {
		db.Close()
		return nil, err
	}

	store := &SQLiteStore{db: db, path: resolved, runID: runID}
	log.Debug().
		Str("db", resolved).
		Str("run_id", runID).
		Int64("pruned", pruned).
		Msg("lanectx: sqlite store opened")
	return store, nil
}

// ResolveDatabasePath applies the path defaults and creates the parent
// directory.
func ResolveDatabasePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = env.String(EnvDBPath, "")
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.Wrap(err, "lanectx: locate user home failed")
		}
		path = filepath.Join(home, defaultDBDirName, defaultDBFileName)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.Wrapf(err, "lanectx: create dir %s failed", filepath.Dir(path))
	}
	return path, nil
}

// Path is the database file backing the store.
func (s *SQLiteStore) Path() string { return s.path }

// RunID is the pipeline run the store is scoped to.
func (s *SQLiteStore) RunID() string { return s.runID }

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM lane_values WHERE run_id = ? AND key = ?`, s.runID, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "lanectx: read %s failed", key)
	}
	return []byte(value), true, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lane_values (run_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(run_id, key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		s.runID, key, string(value), time.Now().UnixMilli())
	if err != nil {
		return errors.Wrapf(err, "lanectx: write %s failed", key)
	}
	return nil
}

func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM lane_values WHERE run_id = ? ORDER BY key`, s.runID)
	if err != nil {
		return nil, errors.Wrap(err, "lanectx: list keys failed")
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, errors.Wrap(err, "lanectx: scan key failed")
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "lanectx: iterate keys failed")
	}
	return keys, nil
}

// Reset deletes every value of the store's run.
func (s *SQLiteStore) Reset(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM lane_values WHERE run_id = ?`, s.runID)
	if err != nil {
		return 0, errors.Wrapf(err, "lanectx: reset run %s failed", s.runID)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func configureSQLite(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=10000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return errors.Wrapf(err, "lanectx: execute %s failed", pragma)
		}
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return nil
}

func prepareSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS lane_values (
			run_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (run_id, key)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_lane_values_updated_at ON lane_values(updated_at);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return errors.Wrap(err, "lanectx: init sqlite schema failed")
		}
	}
	return nil
}

func pruneExpired(db *sql.DB, cutoff time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM lane_values WHERE updated_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, errors.Wrap(err, "lanectx: prune expired runs failed")
	}
	n, _ := res.RowsAffected()
	return n, nil
}
