// Package snapshot persists fetched training datasets in SQLite so a
// run can be repeated offline. Snapshots are an input cache only; they
// never change what an online run trains on.
package snapshot

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/orne-app/categorizer/internal/trainingdata"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNoSnapshots is returned by LoadLatest when the store is empty.
var ErrNoSnapshots = errors.New("no snapshots stored")

// Store wraps a SQLite database holding dataset snapshots.
type Store struct {
	db *sql.DB
}

// Snapshot is one stored dataset with its capture metadata.
type Snapshot struct {
	ID        string
	FetchedAt time.Time
	SourceURL string
	Total     int
	Manual    int
}

// Open opens (or creates) the snapshot database at path and runs
// pending migrations. Pass ":memory:" for an in-memory database (used
// by tests).
func Open(path string) (*Store, error) {
	dsn := path
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating snapshot directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening snapshot database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging snapshot database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save stores a fetched dataset and returns the snapshot ID.
func (s *Store) Save(data *trainingdata.Response, sourceURL string) (string, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encoding snapshot payload: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.Exec(`
		INSERT INTO snapshots (id, fetched_at, source_url, total, manual, payload_json)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339), sourceURL, data.Total, data.Manual, string(payload),
	)
	if err != nil {
		return "", fmt.Errorf("inserting snapshot: %w", err)
	}
	return id, nil
}

// LoadLatest returns the most recently saved dataset with its metadata.
func (s *Store) LoadLatest() (*trainingdata.Response, Snapshot, error) {
	var meta Snapshot
	var fetchedAt, payload string
	err := s.db.QueryRow(`
		SELECT id, fetched_at, source_url, total, manual, payload_json
		FROM snapshots ORDER BY fetched_at DESC, id DESC LIMIT 1`,
	).Scan(&meta.ID, &fetchedAt, &meta.SourceURL, &meta.Total, &meta.Manual, &payload)
	if err == sql.ErrNoRows {
		return nil, Snapshot{}, ErrNoSnapshots
	}
	if err != nil {
		return nil, Snapshot{}, fmt.Errorf("selecting latest snapshot: %w", err)
	}

	if meta.FetchedAt, err = time.Parse(time.RFC3339, fetchedAt); err != nil {
		return nil, Snapshot{}, fmt.Errorf("parsing fetched_at: %w", err)
	}

	var data trainingdata.Response
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return nil, Snapshot{}, fmt.Errorf("decoding snapshot %s: %w", meta.ID, err)
	}
	return &data, meta, nil
}

// List returns snapshot metadata, newest first.
func (s *Store) List(limit int) ([]Snapshot, error) {
	rows, err := s.db.Query(`
		SELECT id, fetched_at, source_url, total, manual
		FROM snapshots ORDER BY fetched_at DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Snapshot
	for rows.Next() {
		var m Snapshot
		var fetchedAt string
		if err := rows.Scan(&m.ID, &fetchedAt, &m.SourceURL, &m.Total, &m.Manual); err != nil {
			return nil, err
		}
		if m.FetchedAt, err = time.Parse(time.RFC3339, fetchedAt); err != nil {
			return nil, fmt.Errorf("parsing fetched_at: %w", err)
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// migrate reads embedded SQL migration files and applies any that
// haven't been run yet.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}
		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}
	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}
