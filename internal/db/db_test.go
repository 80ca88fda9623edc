package db

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "telemetry.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenMigratesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "telemetry.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	version, dirty, err := db.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if dirty {
		t.Error("schema is dirty after Open")
	}
	if version == 0 {
		t.Error("no migrations applied")
	}
	db.Close()

	// Opening again must be a no-op, not a failure.
	db2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	db2.Close()
}

func TestRecordAndQueryAccelSamples(t *testing.T) {
	db := openTestDB(t)

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		err := db.RecordAccelSample(AccelSample{
			Accel:     [3]float64{0.01 * float64(i), -0.02, 0.98},
			Gyro:      [3]float64{0.1, 0.2, 0.3},
			Timestamp: base.Add(time.Duration(i) * time.Millisecond),
		})
		if err != nil {
			t.Fatalf("RecordAccelSample %d failed: %v", i, err)
		}
	}

	samples, err := db.RecentAccelSamples(3)
	if err != nil {
		t.Fatalf("RecentAccelSamples failed: %v", err)
	}
	if len(samples) != 3 {
		t.Fatalf("got %d samples, want 3", len(samples))
	}
	// Newest first.
	if samples[0].Accel[0] != 0.04 {
		t.Errorf("newest sample ax = %v, want 0.04", samples[0].Accel[0])
	}
}

func TestTelemetryCounts(t *testing.T) {
	db := openTestDB(t)

	now := time.Now()
	if err := db.RecordAccelSample(AccelSample{Timestamp: now}); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordMarkerFrame(MarkerFrame{NFCount: 4, WFCount: 2, Timestamp: now}); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordImpact(now); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordImpact(now); err != nil {
		t.Fatal(err)
	}

	accel, markers, impacts, err := db.TelemetryCounts()
	if err != nil {
		t.Fatalf("TelemetryCounts failed: %v", err)
	}
	if accel != 1 || markers != 1 || impacts != 2 {
		t.Errorf("counts = %d/%d/%d, want 1/1/2", accel, markers, impacts)
	}
}
