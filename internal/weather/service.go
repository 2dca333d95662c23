package weather

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Service fetches aggregated weather through a WeatherClient and keeps the
// resulting snapshots in a Store.
type Service struct {
	store  Store
	client *WeatherClient
	logger *zap.Logger
}

// NewService creates a new Service.
func NewService(store Store, client *WeatherClient, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:  store,
		client: client,
		logger: logger,
	}
}

// Fetch returns aggregated weather for loc and stores it as the latest
// snapshot. A result without any data is returned with ErrNoWeatherData and
// is not stored, so the last good snapshot is kept.
func (s *Service) Fetch(ctx context.Context, loc Location, force bool) (*WeatherData, error) {
	if s.client == nil {
		return nil, fmt.Errorf("no weather client configured")
	}

	data, err := s.client.GetWeatherData(ctx, loc, force)
	if err != nil {
		if errors.Is(err, ErrNoWeatherData) {
			s.logger.Warn("no weather data; keeping last good snapshot", zap.String("location", loc.Key()))
		}
		return data, err
	}

	s.store.SaveSnapshot(loc, data)
	return data, nil
}

// FetchAndStore fetches loc, honoring provider caches, and stores a snapshot.
func (s *Service) FetchAndStore(ctx context.Context, loc Location) error {
	_, err := s.Fetch(ctx, loc, false)
	return err
}

// Refresh bypasses every provider cache for loc.
func (s *Service) Refresh(ctx context.Context, loc Location) (*WeatherData, error) {
	return s.Fetch(ctx, loc, true)
}

// Discussion returns the forecaster's discussion for loc.
func (s *Service) Discussion(ctx context.Context, loc Location, force bool) (string, error) {
	if s.client == nil {
		return "", ErrUnsupported
	}
	return s.client.GetForecastDiscussion(ctx, loc, force)
}

// GetLatest delegates to the underlying store.
func (s *Service) GetLatest(loc Location) (*WeatherData, error) {
	return s.store.GetLatest(loc)
}

// GetRange delegates to the underlying store.
func (s *Service) GetRange(loc Location, from, to time.Time) ([]*WeatherData, error) {
	return s.store.GetRange(loc, from, to)
}
