package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver
)

// SQLiteStore implements Store with SQLite, one row per preference
type SQLiteStore struct {
	db *sqlx.DB
}

type prefRow struct {
	Category  string `db:"category"`
	Name      string `db:"name"`
	Value     string `db:"value"`
	UpdatedAt int64  `db:"updated_at"`
}

// NewSQLiteStore opens the database and creates the schema if missing
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to set WAL mode: %w (also failed to close db: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initialize(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("%w (also failed to close db: %v)", err, closeErr)
		}
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	query := `CREATE TABLE IF NOT EXISTS preferences (
		category TEXT NOT NULL,
		name TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at INTEGER,
		PRIMARY KEY (category, name)
	)`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create preferences table: %w", err)
	}
	return nil
}

// Load returns all fields stored for category, empty map if nothing stored
func (s *SQLiteStore) Load(ctx context.Context, category string) (map[string]any, error) {
	rows := []prefRow{}
	err := s.db.SelectContext(ctx, &rows,
		`SELECT category, name, value, updated_at FROM preferences WHERE category = ?`, category)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s preferences: %w", category, err)
	}

	res := make(map[string]any, len(rows))
	for _, r := range rows {
		var v any
		if err := json.Unmarshal([]byte(r.Value), &v); err != nil {
			log.Printf("[WARN] invalid stored value for %s.%s: %v", r.Category, r.Name, err)
			continue
		}
		res[r.Name] = v
	}
	return res, nil
}

// Upsert inserts or replaces given fields of category in a single transaction
func (s *SQLiteStore) Upsert(ctx context.Context, category string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint errcheck

	now := time.Now().Unix()
	for name, v := range fields {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("can't encode %s.%s: %w", category, name, err)
		}
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO preferences (category, name, value, updated_at)
			VALUES (:category, :name, :value, :updated_at)
			ON CONFLICT (category, name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			prefRow{Category: category, Name: name, Value: string(data), UpdatedAt: now})
		if err != nil {
			return fmt.Errorf("failed to save %s.%s: %w", category, name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
