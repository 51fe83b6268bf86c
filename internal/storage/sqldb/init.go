package sqldb

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	// Register the pgx database/sql driver under the "pgx" name.
	_ "github.com/jackc/pgx/v5/stdlib"
	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

const schema = `
CREATE TABLE IF NOT EXISTS chapter_downloads (
	id              TEXT PRIMARY KEY,
	source_id       TEXT NOT NULL,
	content_id      TEXT NOT NULL,
	chapter_id      TEXT NOT NULL,
	status          TEXT NOT NULL,
	date_added      TIMESTAMP NOT NULL,
	text_payload    TEXT,
	storage_locator TEXT,
	content_title   TEXT NOT NULL DEFAULT '',
	chapter_title   TEXT NOT NULL DEFAULT '',
	chapter_number  DOUBLE PRECISION,
	volume_number   DOUBLE PRECISION,
	creator         TEXT NOT NULL DEFAULT '',
	summary         TEXT NOT NULL DEFAULT '',
	external_url    TEXT NOT NULL DEFAULT '',
	language        TEXT NOT NULL DEFAULT '',
	content_kind    TEXT NOT NULL DEFAULT '',
	published_at    TIMESTAMP
);

CREATE INDEX IF NOT EXISTS chapter_downloads_status_idx ON chapter_downloads (status, date_added);

CREATE INDEX IF NOT EXISTS chapter_downloads_content_idx ON chapter_downloads (source_id, content_id, status);

CREATE TABLE IF NOT EXISTS content_index (
	source_id       TEXT NOT NULL,
	content_id      TEXT NOT NULL,
	completed_count INTEGER NOT NULL,
	first_added     TIMESTAMP NOT NULL,
	last_added      TIMESTAMP NOT NULL,
	PRIMARY KEY (source_id, content_id)
);
`

// InitDB opens the database for driver and creates the tables if they don't exist.
func InitDB(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// A single connection serializes writers and keeps in-memory databases alive.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return db, nil
}
