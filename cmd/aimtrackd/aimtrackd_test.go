package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/arclight-data/aimtrack/internal/db"
	"github.com/arclight-data/aimtrack/internal/protocol"
	"github.com/arclight-data/aimtrack/internal/timeutil"
)

func TestParseStreamMask(t *testing.T) {
	tests := []struct {
		spec    string
		want    uint8
		wantErr bool
	}{
		{"accel,markers,impact", protocol.StreamAccel | protocol.StreamCombinedMarkers | protocol.StreamImpact, false},
		{"objects", protocol.StreamObject, false},
		{"", 0, false},
		{"accel, impact", protocol.StreamAccel | protocol.StreamImpact, false},
		{"bogus", 0, true},
	}
	for _, tt := range tests {
		got, err := parseStreamMask(tt.spec)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseStreamMask(%q) error = %v, wantErr %v", tt.spec, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseStreamMask(%q) = %#02x, want %#02x", tt.spec, got, tt.want)
		}
	}
}

func TestMarkerCount(t *testing.T) {
	var points [16]protocol.Point
	if got := markerCount(points); got != 0 {
		t.Errorf("empty frame count = %d, want 0", got)
	}
	points[0] = protocol.Point{X: 100, Y: 200}
	points[5] = protocol.Point{X: 0, Y: 1}
	points[15] = protocol.Point{X: 4095, Y: 4095}
	if got := markerCount(points); got != 3 {
		t.Errorf("count = %d, want 3", got)
	}
}

func TestRecorderIgnoresEmptyPacket(t *testing.T) {
	// A zero-value packet must be dropped without dereferencing Data
	// or the (nil) database.
	rec := &recorder{clock: timeutil.NewMockClock(time.Now())}
	rec.record(protocol.Packet{})
}

func TestRecorder(t *testing.T) {
	tdb, err := db.Open(filepath.Join(t.TempDir(), "telemetry.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer tdb.Close()

	at := time.Date(2026, 8, 30, 15, 4, 5, 0, time.UTC)
	rec := &recorder{db: tdb, clock: timeutil.NewMockClock(at)}

	var markers [16]protocol.Point
	markers[0] = protocol.Point{X: 7, Y: 9}

	reports := []protocol.PacketData{
		protocol.AccelReport{Accel: [3]float64{0, 0, 1}, Gyro: [3]float64{1, 2, 3}},
		protocol.CombinedMarkersReport{NFPoints: markers},
		protocol.ImpactReport{},
	}
	for i, data := range reports {
		rec.record(protocol.Packet{ID: uint8(i), Data: data})
	}

	accel, markerFrames, impacts, err := tdb.TelemetryCounts()
	if err != nil {
		t.Fatalf("TelemetryCounts failed: %v", err)
	}
	if accel != 1 || markerFrames != 1 || impacts != 1 {
		t.Errorf("counts = %d/%d/%d, want 1/1/1", accel, markerFrames, impacts)
	}

	samples, err := tdb.RecentAccelSamples(1)
	if err != nil {
		t.Fatalf("RecentAccelSamples failed: %v", err)
	}
	if len(samples) != 1 || samples[0].Gyro != [3]float64{1, 2, 3} {
		t.Errorf("unexpected samples: %+v", samples)
	}
	if !samples[0].Timestamp.Equal(at) {
		t.Errorf("timestamp = %v, want %v", samples[0].Timestamp, at)
	}
}
