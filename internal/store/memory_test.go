package store

import (
	"errors"
	"testing"
	"time"

	"github.com/i474232898/weatherhub/internal/weather"
)

var testLoc = weather.Location{Name: "Lumberton, NJ", Latitude: 39.9643, Longitude: -74.8099}

func snapshotAt(ts time.Time) *weather.WeatherData {
	return &weather.WeatherData{Location: testLoc, LastUpdated: ts}
}

func TestMemoryStoreLatestAndRange(t *testing.T) {
	s := NewMemoryStore(0, 0)
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	if _, err := s.GetLatest(testLoc); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on empty store, got %v", err)
	}

	for i := 0; i < 3; i++ {
		s.SaveSnapshot(testLoc, snapshotAt(base.Add(time.Duration(i)*time.Hour)))
	}

	latest, err := s.GetLatest(testLoc)
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if !latest.LastUpdated.Equal(base.Add(2 * time.Hour)) {
		t.Fatalf("unexpected latest timestamp %v", latest.LastUpdated)
	}

	got, err := s.GetRange(testLoc, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("GetRange: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 snapshots in range, got %d", len(got))
	}

	if _, err := s.GetRange(testLoc, base.Add(10*time.Hour), base.Add(11*time.Hour)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty range, got %v", err)
	}
}

func TestMemoryStoreOutOfOrderSave(t *testing.T) {
	s := NewMemoryStore(0, 0)
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	s.SaveSnapshot(testLoc, snapshotAt(base.Add(time.Hour)))
	s.SaveSnapshot(testLoc, snapshotAt(base))

	latest, err := s.GetLatest(testLoc)
	if err != nil {
		t.Fatalf("GetLatest: %v", err)
	}
	if !latest.LastUpdated.Equal(base.Add(time.Hour)) {
		t.Fatalf("older snapshot must not become latest, got %v", latest.LastUpdated)
	}
}

func TestMemoryStoreRetentionByCount(t *testing.T) {
	s := NewMemoryStore(2, 0)
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		s.SaveSnapshot(testLoc, snapshotAt(base.Add(time.Duration(i)*time.Minute)))
	}

	got, err := s.GetRange(testLoc, base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("GetRange: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 retained snapshots, got %d", len(got))
	}
	if !got[0].LastUpdated.Equal(base.Add(3 * time.Minute)) {
		t.Fatalf("expected oldest retained at +3m, got %v", got[0].LastUpdated)
	}
}

func TestMemoryStoreRetentionByAge(t *testing.T) {
	s := NewMemoryStore(0, time.Hour)
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.SaveSnapshot(testLoc, snapshotAt(now.Add(-3*time.Hour)))
	s.SaveSnapshot(testLoc, snapshotAt(now.Add(-2*time.Hour)))
	s.SaveSnapshot(testLoc, snapshotAt(now.Add(-10*time.Minute)))

	got, err := s.GetRange(testLoc, now.Add(-24*time.Hour), now)
	if err != nil {
		t.Fatalf("GetRange: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 snapshot within max age, got %d", len(got))
	}

	// A lone stale snapshot is still the last good one.
	other := weather.Location{Latitude: 1, Longitude: 2}
	s.SaveSnapshot(other, &weather.WeatherData{Location: other, LastUpdated: now.Add(-5 * time.Hour)})
	if _, err := s.GetLatest(other); err != nil {
		t.Fatalf("expected stale snapshot to be kept, got %v", err)
	}
}

func TestMemoryStoreIgnoresNil(t *testing.T) {
	s := NewMemoryStore(0, 0)
	s.SaveSnapshot(testLoc, nil)
	if len(s.Locations()) != 0 {
		t.Fatalf("nil snapshot must not be stored")
	}
}
