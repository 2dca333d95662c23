// Package geocode resolves free-text addresses to coordinates using the
// Google Geocoding API.
package geocode

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"
	"go.uber.org/zap"

	"github.com/i474232898/weatherhub/internal/common"
	"github.com/i474232898/weatherhub/internal/weather"
)

// ErrNotConfigured is returned when no API key was provided.
var ErrNotConfigured = errors.New("geocoding api key not configured")

// geocoder keeps its key in a package variable; serialize access to it.
var apiKeyMu sync.Mutex

// Service implements weather.GeocodingService.
type Service struct {
	apiKey string
	logger *zap.Logger

	// Overridable for tests.
	forward func(geocoder.Address) (geocoder.Location, error)
	reverse func(geocoder.Location) ([]geocoder.Address, error)
}

func New(apiKey string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		apiKey:  apiKey,
		logger:  logger.With(zap.String("component", "geocode")),
		forward: geocoder.Geocoding,
		reverse: geocoder.GeocodingReverse,
	}
}

// GeocodeAddress resolves text to coordinates. found is false when the
// upstream has no match; displayName falls back to the query text when the
// reverse lookup yields nothing.
func (s *Service) GeocodeAddress(ctx context.Context, text string) (lat, lon float64, displayName string, found bool, err error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, 0, "", false, nil
	}
	if s.apiKey == "" {
		return 0, 0, "", false, ErrNotConfigured
	}

	type result struct {
		loc  geocoder.Location
		name string
		err  error
	}
	done := make(chan result, 1)

	// The geocoder package has no context support; abandon the call on cancel.
	go func() {
		apiKeyMu.Lock()
		defer apiKeyMu.Unlock()
		geocoder.ApiKey = s.apiKey

		loc, err := s.forward(geocoder.Address{City: text})
		if err != nil {
			done <- result{err: err}
			return
		}
		name := text
		if addrs, rerr := s.reverse(loc); rerr == nil && len(addrs) > 0 && addrs[0].FormattedAddress != "" {
			name = addrs[0].FormattedAddress
		} else if rerr != nil {
			s.logger.Debug("reverse geocoding failed", zap.Error(rerr))
		}
		done <- result{loc: loc, name: name}
	}()

	select {
	case <-ctx.Done():
		return 0, 0, "", false, ctx.Err()
	case r := <-done:
		if r.err != nil {
			if isNoResults(r.err) {
				return 0, 0, "", false, nil
			}
			return 0, 0, "", false, r.err
		}
		return r.loc.Latitude, r.loc.Longitude, r.name, true, nil
	}
}

func isNoResults(err error) bool {
	return common.ContainsAnyFold(err.Error(), "zero_results", "no results")
}

var _ weather.GeocodingService = (*Service)(nil)
