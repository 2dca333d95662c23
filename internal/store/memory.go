// Package store keeps normalized weather snapshots per location.
package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/weatherhub/internal/weather"
)

// ErrNotFound is returned when a location has no snapshot in the requested window.
var ErrNotFound = errors.New("no weather data for location")

// history is the snapshot list of one location, ordered by LastUpdated.
type history []*weather.WeatherData

// insert places snap after every snapshot not newer than it, so a slow fetch
// finishing late does not break the ordering.
func (h history) insert(snap *weather.WeatherData) history {
	i := sort.Search(len(h), func(i int) bool {
		return h[i].LastUpdated.After(snap.LastUpdated)
	})
	h = append(h, nil)
	copy(h[i+1:], h[i:])
	h[i] = snap
	return h
}

// window returns the snapshots with from <= LastUpdated <= to.
func (h history) window(from, to time.Time) history {
	lo := sort.Search(len(h), func(i int) bool { return !h[i].LastUpdated.Before(from) })
	hi := sort.Search(len(h), func(i int) bool { return h[i].LastUpdated.After(to) })
	if lo >= hi {
		return nil
	}
	out := make(history, hi-lo)
	copy(out, h[lo:hi])
	return out
}

// MemoryStore is a concurrency-safe in-memory weather.Store with retention by
// snapshot count and by age.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]history

	maxHistory int           // <= 0: unlimited
	maxAge     time.Duration // <= 0: unlimited

	now func() time.Time
}

func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]history),
		maxHistory: maxHistory,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// SaveSnapshot records snapshot under loc and applies retention. Nil
// snapshots are ignored.
func (s *MemoryStore) SaveSnapshot(loc weather.Location, snapshot *weather.WeatherData) {
	if snapshot == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := loc.Key()
	s.data[key] = s.retain(s.data[key].insert(snapshot))
}

// retain drops snapshots beyond maxHistory and older than maxAge. The newest
// snapshot always survives the age limit.
func (s *MemoryStore) retain(h history) history {
	if s.maxHistory > 0 && len(h) > s.maxHistory {
		h = h[len(h)-s.maxHistory:]
	}
	if s.maxAge > 0 && len(h) > 0 {
		cutoff := s.now().Add(-s.maxAge)
		keep := sort.Search(len(h)-1, func(i int) bool { return !h[i].LastUpdated.Before(cutoff) })
		h = h[keep:]
	}
	return h
}

// GetLatest returns the newest snapshot for loc.
func (s *MemoryStore) GetLatest(loc weather.Location) (*weather.WeatherData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.data[loc.Key()]
	if len(h) == 0 {
		return nil, ErrNotFound
	}
	return h[len(h)-1], nil
}

// GetRange returns the snapshots for loc taken between from and to, both
// inclusive, oldest first.
func (s *MemoryStore) GetRange(loc weather.Location, from, to time.Time) ([]*weather.WeatherData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := s.data[loc.Key()].window(from, to)
	if len(result) == 0 {
		return nil, ErrNotFound
	}
	return result, nil
}

// Locations returns the keys of every location with at least one snapshot.
func (s *MemoryStore) Locations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.data))
	for k, h := range s.data {
		if len(h) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

var _ weather.Store = (*MemoryStore)(nil)
