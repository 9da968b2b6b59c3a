// Package store archives run results (offset series, events, predictions)
// in SQLite so downstream plotting and validation can consume them without
// re-running the pipeline.
package store

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/helioswarm/shockfront/internal/align"
	"github.com/helioswarm/shockfront/internal/front"
)

// Store is a write-mostly archive. Not an interface: there is exactly one
// persistence layer and tests run it in memory.
type Store struct {
	db *sql.DB
}

// Open creates or opens the archive at dbPath and applies the schema.
// ":memory:" gives an in-process database for tests.
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		connStr = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	if dbPath != ":memory:" {
		if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		started_at DATETIME NOT NULL,
		reference TEXT NOT NULL,
		window_start DATETIME NOT NULL,
		window_end DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS offsets (
		run_id INTEGER NOT NULL,
		craft TEXT NOT NULL,
		ref_time DATETIME NOT NULL,
		offset_seconds REAL NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);
	CREATE INDEX IF NOT EXISTS idx_offsets_run_craft ON offsets(run_id, craft);

	CREATE TABLE IF NOT EXISTS events (
		run_id INTEGER NOT NULL,
		at DATETIME NOT NULL,
		normal_x REAL NOT NULL,
		normal_y REAL NOT NULL,
		normal_z REAL NOT NULL,
		speed_kms REAL NOT NULL,
		angle_deg REAL,
		reused INTEGER NOT NULL,
		anchor_x REAL NOT NULL,
		anchor_y REAL NOT NULL,
		anchor_z REAL NOT NULL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);
	CREATE INDEX IF NOT EXISTS idx_events_run ON events(run_id, at);

	CREATE TABLE IF NOT EXISTS predictions (
		run_id INTEGER NOT NULL,
		event_at DATETIME NOT NULL,
		craft TEXT NOT NULL,
		distance_km REAL NOT NULL,
		offset_seconds REAL NOT NULL,
		arrival DATETIME NOT NULL,
		actual_seconds REAL,
		error_seconds REAL,
		FOREIGN KEY (run_id) REFERENCES runs(id)
	);
	CREATE INDEX IF NOT EXISTS idx_predictions_run ON predictions(run_id, craft);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun records a new analysis run and returns its id.
func (s *Store) BeginRun(reference string, windowStart, windowEnd time.Time) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO runs (started_at, reference, window_start, window_end) VALUES (?, ?, ?, ?)`,
		time.Now().UTC(), reference, windowStart, windowEnd,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return res.LastInsertId()
}

// SaveOffsets archives one spacecraft's offset series.
func (s *Store) SaveOffsets(runID int64, craft string, offsets align.OffsetSeries) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO offsets (run_id, craft, ref_time, offset_seconds) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, os := range offsets {
		if _, err := stmt.Exec(runID, craft, os.RefTime, os.Offset.Seconds()); err != nil {
			return fmt.Errorf("insert offset: %w", err)
		}
	}
	return tx.Commit()
}

// SaveEvents archives triangulated events with their predictions.
func (s *Store) SaveEvents(runID int64, events []front.Event) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	evStmt, err := tx.Prepare(`INSERT INTO events
		(run_id, at, normal_x, normal_y, normal_z, speed_kms, angle_deg, reused, anchor_x, anchor_y, anchor_z)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer evStmt.Close()

	prStmt, err := tx.Prepare(`INSERT INTO predictions
		(run_id, event_at, craft, distance_km, offset_seconds, arrival, actual_seconds, error_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer prStmt.Close()

	for _, ev := range events {
		angle := sql.NullFloat64{Float64: ev.AngleDeg, Valid: !math.IsNaN(ev.AngleDeg)}
		reused := 0
		if ev.Reused {
			reused = 1
		}
		if _, err := evStmt.Exec(runID, ev.At,
			ev.Plane.Normal.X, ev.Plane.Normal.Y, ev.Plane.Normal.Z,
			ev.Plane.Speed, angle, reused,
			ev.Plane.Anchor.X, ev.Plane.Anchor.Y, ev.Plane.Anchor.Z,
		); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		for _, p := range ev.Predictions {
			actual := sql.NullFloat64{Float64: p.ActualSec, Valid: p.HasObserved}
			perr := sql.NullFloat64{Float64: p.ErrorSec, Valid: p.HasObserved}
			if _, err := prStmt.Exec(runID, ev.At, p.Craft,
				p.DistanceKm, p.OffsetSec, p.Arrival, actual, perr,
			); err != nil {
				return fmt.Errorf("insert prediction: %w", err)
			}
		}
	}
	return tx.Commit()
}

// CountEvents returns how many events a run archived. Used by tests and the
// end-of-run summary.
func (s *Store) CountEvents(runID int64) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM events WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

// OffsetCount returns how many offset rows a run archived for one craft.
func (s *Store) OffsetCount(runID int64, craft string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM offsets WHERE run_id = ? AND craft = ?`, runID, craft).Scan(&n)
	return n, err
}
