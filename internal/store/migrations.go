package store

import "fmt"

// schema lists migrations in order. The database records how many have been
// applied in PRAGMA user_version; append new steps, never edit old ones.
var schema = []string{
	// 1: one row per emitted alert
	`CREATE TABLE detections (
		id TEXT PRIMARY KEY,
		ts_ms INTEGER NOT NULL,
		classification TEXT NOT NULL CHECK(classification IN ('ALLOWED', 'INTRUDER')),
		confidence REAL NOT NULL,
		box_x1 INTEGER NOT NULL DEFAULT 0,
		box_y1 INTEGER NOT NULL DEFAULT 0,
		box_x2 INTEGER NOT NULL DEFAULT 0,
		box_y2 INTEGER NOT NULL DEFAULT 0,
		image_path TEXT NOT NULL DEFAULT '',
		person_name TEXT,
		camera_index INTEGER NOT NULL DEFAULT 0,
		face_distance REAL NOT NULL DEFAULT 0,
		notified INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX idx_detections_ts ON detections(ts_ms)`,

	// 2: key-value runtime settings
	`CREATE TABLE settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// SchemaVersion reports the number of migrations applied to the database.
func (s *Store) SchemaVersion() (int, error) {
	var v int
	err := s.db.QueryRow(`PRAGMA user_version`).Scan(&v)
	return v, err
}

func (s *Store) migrate() error {
	current, err := s.SchemaVersion()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current > len(schema) {
		return fmt.Errorf("database schema version %d is newer than this binary (%d)", current, len(schema))
	}

	for i := current; i < len(schema); i++ {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(schema[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		// PRAGMA does not accept bound parameters.
		if _, err := tx.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}
