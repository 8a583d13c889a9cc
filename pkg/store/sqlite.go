package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/zielen-io/zielen/pkg/errors"
)

// Schema for the path metadata database. Timestamps are unix nanoseconds.
const schema = `
CREATE TABLE IF NOT EXISTS paths (
    path          TEXT PRIMARY KEY,
    kind          INTEGER NOT NULL,
    size          INTEGER NOT NULL,
    priority      REAL NOT NULL,
    last_access   INTEGER NOT NULL,
    inflated      INTEGER NOT NULL,
    location      INTEGER NOT NULL,
    observed_idx  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_paths_location ON paths(location);
`

type database struct {
	db *sql.DB
}

func openDatabase(path string) (*database, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.WithContext(err, "create database directory")
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.WithContext(err, "open")
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.WithContext(err, "apply schema")
	}
	return &database{db: db}, nil
}

func (d *database) close() error {
	return d.db.Close()
}

func (d *database) upsert(rec PathRecord) error {
	_, err := d.db.Exec(`
		INSERT INTO paths (path, kind, size, priority, last_access, inflated, location, observed_idx)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			kind=excluded.kind,
			size=excluded.size,
			priority=excluded.priority,
			last_access=excluded.last_access,
			inflated=excluded.inflated,
			location=excluded.location,
			observed_idx=excluded.observed_idx`,
		rec.Path, int(rec.Kind), rec.Size, rec.Score,
		rec.LastAccess.UnixNano(), boolToInt(rec.Inflated),
		int(rec.Location), rec.Observed)
	return err
}

func (d *database) deleteSubtree(path string) error {
	_, err := d.db.Exec(
		`DELETE FROM paths WHERE path = ? OR path LIKE ? || '/%'`,
		path, path)
	return err
}

func (d *database) loadAll() ([]PathRecord, error) {
	rows, err := d.db.Query(`
		SELECT path, kind, size, priority, last_access, inflated, location, observed_idx
		FROM paths`)
	if err != nil {
		return nil, errors.WithContext(err, "query")
	}
	defer rows.Close()

	var records []PathRecord
	for rows.Next() {
		var rec PathRecord
		var kind, location, inflated int
		var lastAccess int64
		if err := rows.Scan(&rec.Path, &kind, &rec.Size, &rec.Score,
			&lastAccess, &inflated, &location, &rec.Observed); err != nil {
			return nil, errors.WithContext(err, "scan")
		}
		rec.Kind = Kind(kind)
		rec.Location = Location(location)
		rec.Inflated = inflated != 0
		rec.LastAccess = time.Unix(0, lastAccess)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
