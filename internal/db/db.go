// Package db persists streamed vision-module telemetry in SQLite:
// inertial samples, marker frame summaries and impact events.
package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the telemetry database at path and
// brings the schema up to date.
func Open(path string) (*DB, error) {
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Telemetry writes arrive from one goroutine but reads may come
	// from anywhere; WAL keeps readers from blocking the recorder.
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := sqldb.Exec(pragma); err != nil {
			sqldb.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	db := &DB{sqldb}
	if err := db.MigrateUp(); err != nil {
		sqldb.Close()
		return nil, err
	}
	return db, nil
}

// AccelSample is one stored inertial sample, in g and deg/s.
type AccelSample struct {
	Accel     [3]float64
	Gyro      [3]float64
	Timestamp time.Time
}

// RecordAccelSample stores one inertial sample.
func (db *DB) RecordAccelSample(s AccelSample) error {
	_, err := db.Exec(`
		INSERT INTO accel_samples (ax, ay, az, gx, gy, gz, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.Accel[0], s.Accel[1], s.Accel[2],
		s.Gyro[0], s.Gyro[1], s.Gyro[2],
		s.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to record accel sample: %w", err)
	}
	return nil
}

// RecentAccelSamples returns up to limit samples, newest first.
func (db *DB) RecentAccelSamples(limit int) ([]AccelSample, error) {
	rows, err := db.Query(`
		SELECT ax, ay, az, gx, gy, gz, timestamp
		FROM accel_samples ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query accel samples: %w", err)
	}
	defer rows.Close()

	var samples []AccelSample
	for rows.Next() {
		var s AccelSample
		if err := rows.Scan(&s.Accel[0], &s.Accel[1], &s.Accel[2],
			&s.Gyro[0], &s.Gyro[1], &s.Gyro[2], &s.Timestamp); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// MarkerFrame summarises one CombinedMarkersReport: how many markers
// each sensor saw (a zeroed point slot is an empty detection).
type MarkerFrame struct {
	NFCount   int
	WFCount   int
	Timestamp time.Time
}

// RecordMarkerFrame stores one marker frame summary.
func (db *DB) RecordMarkerFrame(f MarkerFrame) error {
	_, err := db.Exec(`
		INSERT INTO marker_frames (nf_count, wf_count, timestamp)
		VALUES (?, ?, ?)`,
		f.NFCount, f.WFCount, f.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to record marker frame: %w", err)
	}
	return nil
}

// RecordImpact stores one impact event.
func (db *DB) RecordImpact(at time.Time) error {
	_, err := db.Exec(`INSERT INTO impact_events (timestamp) VALUES (?)`, at.UTC())
	if err != nil {
		return fmt.Errorf("failed to record impact: %w", err)
	}
	return nil
}

// TelemetryCounts reports row counts for each telemetry table.
func (db *DB) TelemetryCounts() (accel, markers, impacts int64, err error) {
	if err = db.QueryRow(`SELECT COUNT(*) FROM accel_samples`).Scan(&accel); err != nil {
		return
	}
	if err = db.QueryRow(`SELECT COUNT(*) FROM marker_frames`).Scan(&markers); err != nil {
		return
	}
	err = db.QueryRow(`SELECT COUNT(*) FROM impact_events`).Scan(&impacts)
	return
}
