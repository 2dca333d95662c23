package weather

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnsupported is returned when no configured provider offers an operation
	// for the requested location.
	ErrUnsupported = errors.New("operation not supported for location")

	// ErrNoWeatherData is returned alongside an empty WeatherData when every
	// provider failed for current conditions, forecast and hourly forecast.
	ErrNoWeatherData = errors.New("no weather data available from any provider")
)

// Provider names used for source selection and the WeatherData.Sources map.
const (
	ProviderNWS            = "nws"
	ProviderOpenMeteo      = "openmeteo"
	ProviderVisualCrossing = "visualcrossing"
)

// AlertOptions scopes an alert query.
type AlertOptions struct {
	// Precise requests alerts for the exact point rather than its zone.
	Precise bool
	// RadiusMiles is used when the point cannot be mapped to a zone.
	RadiusMiles float64
}

// Provider abstracts a weather data source (NWS, Open-Meteo, Visual Crossing).
// Every method either returns normalized data or a typed error so the
// WeatherClient can fall back to another provider.
type Provider interface {
	Name() string
	GetCurrentConditions(ctx context.Context, loc Location, force bool) (*CurrentConditions, error)
	GetForecast(ctx context.Context, loc Location, force bool) (*Forecast, error)
	GetHourlyForecast(ctx context.Context, loc Location, force bool) (*HourlyForecast, error)
	GetAlerts(ctx context.Context, loc Location, opts AlertOptions, force bool) (*WeatherAlerts, error)
}

// DiscussionProvider is implemented by providers that publish a forecaster's
// discussion text (NWS area forecast discussions).
type DiscussionProvider interface {
	GetDiscussion(ctx context.Context, loc Location, force bool) (string, error)
}

// Store is the contract the in-memory store (and any future persistent store) must satisfy.
type Store interface {
	SaveSnapshot(loc Location, data *WeatherData)
	GetLatest(loc Location) (*WeatherData, error)
	GetRange(loc Location, from, to time.Time) ([]*WeatherData, error)
}

// GeocodingService turns free text into coordinates. found is false when the
// address could not be resolved.
type GeocodingService interface {
	GeocodeAddress(ctx context.Context, text string) (lat, lon float64, displayName string, found bool, err error)
}
