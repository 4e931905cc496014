// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package index provides the full-text record index for the catalog.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/bookindex/internal/catalog"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrStorage wraps fatal faults of the underlying database (disk full,
	// corruption). Never returned for plain contention.
	ErrStorage = errors.New("index storage error")

	// ErrRebuildInProgress is returned when a second rebuild is started
	// before the first finishes.
	ErrRebuildInProgress = errors.New("index rebuild in progress")

	// ErrClosed is returned on any call after Close.
	ErrClosed = errors.New("index is closed")
)

const (
	busyRetries   = 5
	busyBaseDelay = 10 * time.Millisecond
)

// =============================================================================
// CONFIG
// =============================================================================

// Config holds index configuration.
type Config struct {
	// Path is the SQLite database file. Parent directories are created.
	Path string

	// Tokenizer is the FTS5 tokenizer spec. Empty means DefaultTokenizer.
	Tokenizer string

	// BusyTimeout is the per-connection SQLite busy timeout.
	BusyTimeout time.Duration

	// RebuildBatchSize is the number of records per rebuild transaction.
	RebuildBatchSize int

	// Logger receives index log output. Nil means slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns a configuration with production defaults.
func DefaultConfig(path string) Config {
	return Config{
		Path:             path,
		Tokenizer:        DefaultTokenizer,
		BusyTimeout:      5 * time.Second,
		RebuildBatchSize: 500,
	}
}

func (c *Config) fillDefaults() {
	if c.Tokenizer == "" {
		c.Tokenizer = DefaultTokenizer
	}
	if c.BusyTimeout <= 0 {
		c.BusyTimeout = 5 * time.Second
	}
	if c.RebuildBatchSize <= 0 {
		c.RebuildBatchSize = 500
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// =============================================================================
// INDEX
// =============================================================================

// Index is the on-disk record index. Safe for concurrent use: reads run in
// parallel, writes are serialized internally.
type Index struct {
	db     *sql.DB
	cfg    Config
	log    *slog.Logger
	closed bool

	// writeMu enforces the single-writer discipline across IndexRecord,
	// RemoveRecord and Rebuild.
	writeMu sync.Mutex

	// mu guards closed and the rebuilding flag.
	mu         sync.RWMutex
	rebuilding bool
}

// Open opens or creates the index at cfg.Path.
func Open(cfg Config) (*Index, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: empty database path", ErrStorage)
	}
	cfg.fillDefaults()

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: create index directory: %v", ErrStorage, err)
	}

	db, err := sql.Open("sqlite", dsn(cfg.Path, cfg.BusyTimeout))
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %v", ErrStorage, err)
	}

	// WAL permits concurrent readers under the single writer; a small pool
	// serves parallel Search calls.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(0)

	idx := &Index{
		db:  db,
		cfg: cfg,
		log: cfg.Logger,
	}

	if err := idx.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return idx, nil
}

// dsn builds the modernc.org/sqlite DSN. Pragmas go into the DSN so every
// pooled connection gets them, not just the one that ran Exec.
func dsn(path string, busyTimeout time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	q.Add("_pragma", "temp_store(MEMORY)")
	return "file:" + path + "?" + q.Encode()
}

func (idx *Index) initSchema() error {
	if _, err := idx.db.Exec(metaSchema); err != nil {
		return fmt.Errorf("%w: init metadata: %v", ErrStorage, err)
	}
	if _, err := idx.db.Exec(ftsCreateSQL(ftsTable, idx.cfg.Tokenizer)); err != nil {
		return fmt.Errorf("%w: init fts table: %v", ErrStorage, err)
	}
	// A crashed rebuild can leave the shadow table behind.
	if _, err := idx.db.Exec("DROP TABLE IF EXISTS " + ftsShadowTable); err != nil {
		return fmt.Errorf("%w: drop stale shadow table: %v", ErrStorage, err)
	}
	return nil
}

// Close closes the index. Further calls return ErrClosed.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return nil
	}
	idx.closed = true
	return idx.db.Close()
}

func (idx *Index) checkOpen() error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return ErrClosed
	}
	return nil
}

// =============================================================================
// WRITE PATH
// =============================================================================

// IndexRecord inserts or replaces the entry for rec.ID. Indexing the same id
// twice leaves exactly one entry reflecting the latest call.
func (idx *Index) IndexRecord(ctx context.Context, rec *catalog.Record) error {
	if err := idx.checkOpen(); err != nil {
		return err
	}
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("%w: record has no id", ErrStorage)
	}

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	return idx.withBusyRetry(ctx, func() error {
		tx, err := idx.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		// FTS5 has no ON CONFLICT; upsert is delete+insert in one tx.
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM "+ftsTable+" WHERE record_id = ?", rec.ID); err != nil {
			return err
		}
		if err := insertRecord(ctx, tx, ftsTable, rec); err != nil {
			return err
		}
		return tx.Commit()
	})
}

// RemoveRecord deletes the entry for id. Removing an absent id is a no-op.
func (idx *Index) RemoveRecord(ctx context.Context, id string) error {
	if err := idx.checkOpen(); err != nil {
		return err
	}
	if id == "" {
		return nil
	}

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	return idx.withBusyRetry(ctx, func() error {
		_, err := idx.db.ExecContext(ctx,
			"DELETE FROM "+ftsTable+" WHERE record_id = ?", id)
		return err
	})
}

// insertRecord inserts one record into the named FTS table. Shared by the
// upsert path and rebuilds.
func insertRecord(ctx context.Context, tx *sql.Tx, table string, rec *catalog.Record) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO `+table+` (
			record_id, title, subtitle, authors, description,
			isbn13, isbn10, series
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Title, rec.Subtitle, rec.AuthorText(), rec.Description,
		rec.ISBN13, rec.ISBN10, rec.Series)
	return err
}

// =============================================================================
// CONTENTION RETRY
// =============================================================================

// withBusyRetry runs fn, retrying SQLITE_BUSY errors with exponential
// backoff. Anything that is not contention maps to ErrStorage on the first
// occurrence; exhausted retries surface the last busy error.
func (idx *Index) withBusyRetry(ctx context.Context, fn func() error) error {
	delay := busyBaseDelay
	var err error
	for attempt := 0; attempt < busyRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			return fmt.Errorf("%w: %v", ErrStorage, err)
		}
		idx.log.Debug("index busy, retrying",
			"attempt", attempt+1, "delay", delay.String())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return fmt.Errorf("%w: contention retries exhausted: %v", ErrStorage, err)
}

// isBusy reports whether err is SQLite lock contention. modernc surfaces
// these as SQLITE_BUSY / SQLITE_LOCKED message text.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// =============================================================================
// STATISTICS
// =============================================================================

// Stats describes the index state for health dashboards.
type Stats struct {
	EntryCount  int
	SizeBytes   int64
	LastRebuild time.Time
}

// Stats returns current index statistics. Read-only.
func (idx *Index) Stats(ctx context.Context) (Stats, error) {
	if err := idx.checkOpen(); err != nil {
		return Stats{}, err
	}

	var s Stats
	if err := idx.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+ftsTable).Scan(&s.EntryCount); err != nil {
		return Stats{}, fmt.Errorf("%w: count entries: %v", ErrStorage, err)
	}

	var rebuilt string
	err := idx.db.QueryRowContext(ctx,
		"SELECT value FROM index_meta WHERE key = 'last_rebuild'").Scan(&rebuilt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Stats{}, fmt.Errorf("%w: read metadata: %v", ErrStorage, err)
	}
	if ts, err := strconv.ParseInt(rebuilt, 10, 64); err == nil && ts > 0 {
		s.LastRebuild = time.Unix(ts, 0)
	}

	// Size includes the WAL file; under concurrent readers most of the
	// fresh data lives there until a checkpoint.
	for _, p := range []string{idx.cfg.Path, idx.cfg.Path + "-wal"} {
		if info, err := os.Stat(p); err == nil {
			s.SizeBytes += info.Size()
		}
	}

	return s, nil
}
