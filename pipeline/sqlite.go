package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/aluiziolira/go-scrape-watchcount/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS listings (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	price        TEXT NOT NULL,
	link         TEXT NOT NULL,
	watchers     TEXT NOT NULL,
	title        TEXT NOT NULL,
	start_date   TEXT NOT NULL,
	end_date     TEXT NOT NULL,
	running_time TEXT NOT NULL,
	scraped_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_listings_link ON listings(link);`

const sqliteInsert = `INSERT INTO listings
	(price, link, watchers, title, start_date, end_date, running_time, scraped_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

var sqlitePragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 10000",
	"PRAGMA synchronous = NORMAL",
}

// SQLiteWriter appends records to a listings table.
type SQLiteWriter struct {
	db     *sql.DB
	insert *sql.Stmt
	now    func() time.Time
	mu     sync.Mutex
}

// NewSQLiteWriter opens (or creates) the database and prepares the schema.
func NewSQLiteWriter(path string) (*SQLiteWriter, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	for _, pragma := range sqlitePragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	insert, err := db.PrepareContext(ctx, sqliteInsert)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}

	return &SQLiteWriter{db: db, insert: insert, now: time.Now}, nil
}

// Write inserts one record.
func (sw *SQLiteWriter) Write(record *models.ListingRecord) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	_, err := sw.insert.Exec(
		record.Price,
		record.Link,
		record.Watchers,
		record.Title,
		record.StartDate,
		record.EndDate,
		record.RunningTime,
		sw.now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

// Close releases the statement and the database handle.
func (sw *SQLiteWriter) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if err := sw.insert.Close(); err != nil {
		sw.db.Close()
		return fmt.Errorf("close statement: %w", err)
	}
	return sw.db.Close()
}

// Validate checks the listings table is queryable.
func (sw *SQLiteWriter) Validate() error {
	_, err := sw.Count()
	return err
}

// Count returns the number of stored listings.
func (sw *SQLiteWriter) Count() (int, error) {
	var n int
	if err := sw.db.QueryRow(`SELECT COUNT(*) FROM listings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count listings: %w", err)
	}
	return n, nil
}
