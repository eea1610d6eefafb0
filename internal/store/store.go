// Package store keeps scan history, per-site flags and community reports
// in SQLite.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/raysh454/patternshield/internal/logging"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaFS embed.FS

var (
	ErrScanNotFound    = errors.New("scan not found")
	ErrPatternNotFound = errors.New("pattern not found")
	ErrInvalidInput    = errors.New("invalid input")
)

const (
	DefaultHistoryLimit  = 100
	DefaultHistoryMaxAge = 7 * 24 * time.Hour
)

type Config struct {
	// Path is the database file. ":memory:" is accepted for tests.
	Path string `yaml:"path"`

	// HistoryLimit is how many scans are kept.
	HistoryLimit int `yaml:"history_limit"`

	// HistoryMaxAge drops scans older than this.
	HistoryMaxAge time.Duration `yaml:"history_max_age"`
}

func DefaultConfig() Config {
	return Config{
		Path:          "patternshield.db",
		HistoryLimit:  DefaultHistoryLimit,
		HistoryMaxAge: DefaultHistoryMaxAge,
	}
}

type Store struct {
	db     *sql.DB
	cfg    Config
	logger logging.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the database at cfg.Path and applies the
// schema.
func Open(cfg Config, logger logging.Logger) (*Store, error) {
	if cfg.Path == "" {
		cfg.Path = DefaultConfig().Path
	}
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("ensure db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dsn(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer; SQLite serializes anyway and this avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s, err := New(db, cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open database and applies the schema.
func New(db *sql.DB, cfg Config, logger logging.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("store: nil db")
	}
	if logger == nil {
		return nil, errors.New("store: nil logger")
	}
	d := DefaultConfig()
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = d.HistoryLimit
	}
	if cfg.HistoryMaxAge <= 0 {
		cfg.HistoryMaxAge = d.HistoryMaxAge
	}
	if err := applySchema(db); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	l := logger.With(logging.Field{Key: "component", Value: "store"})
	l.Info("store initialized", logging.Field{Key: "path", Value: cfg.Path})
	return &Store{db: db, cfg: cfg, logger: l, now: time.Now}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// applySchema sets pragmas and creates tables.
func applySchema(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// dsn carries the per-connection pragmas, which a reopened pool connection
// would otherwise lose.
func dsn(path string) string {
	const pragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path == ":memory:" {
		return "file::memory:?" + pragmas
	}
	return "file:" + path + "?" + pragmas
}

func millis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

// withTx runs fn in a transaction.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
