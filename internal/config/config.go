package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/i474232898/weatherhub/internal/weather"
)

// AppConfig is the full runtime configuration, read from the environment.
type AppConfig struct {
	Port        string        `validate:"required,numeric"`
	HTTPTimeout time.Duration `validate:"gt=0"`
	LogLevel    string        `validate:"oneof=debug info warn error"`
	ZipkinURL   string        `validate:"omitempty,url"`

	// NWS requires a User-Agent identifying the application and a contact.
	NWSAppName string `validate:"required"`
	NWSContact string

	VisualCrossingAPIKey        string
	GoogleGeocodingAPIKey       string
	DataSource                  string `validate:"oneof=auto nws openmeteo visualcrossing"`
	CacheEnabled                bool
	CacheTTL                    time.Duration `validate:"gte=0"`
	NWSMinRequestInterval       time.Duration `validate:"gte=0"`
	OpenMeteoMinRequestInterval time.Duration `validate:"gte=0"`
	VCMinRequestInterval        time.Duration `validate:"gte=0"`

	// HTTP 429 retry policy shared by every provider.
	MaxRetries       int           `validate:"gte=0"`
	RetryInitialWait time.Duration `validate:"gt=0"`
	RetryBackoff     float64       `validate:"gte=1"`

	AlertRadiusMiles float64 `validate:"gt=0"`
	PreciseAlerts    bool

	TemperatureUnit   string `validate:"oneof=celsius fahrenheit"`
	WindSpeedUnit     string `validate:"oneof=kmh ms mph kn"`
	PrecipitationUnit string `validate:"oneof=mm inch"`

	// FetchInterval controls how often we fetch data for each location.
	FetchInterval time.Duration `validate:"gt=0"`

	// Locations to track.
	Locations []weather.Location `validate:"dive"`

	// In-memory store retention.
	StoreMaxHistory int           // max number of snapshots per location (0 = unlimited)
	StoreMaxAge     time.Duration // max age of snapshots (0 = unlimited)
}

// Load reads configuration from environment with sensible defaults. A .env
// file in the working directory is applied first when present.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds and validates the configuration from getenv.
func FromEnv(getenv func(string) string) (*AppConfig, error) {
	e := env{getenv: getenv}
	cfg := &AppConfig{
		Port:                        e.str("PORT", "8080"),
		HTTPTimeout:                 e.duration("HTTP_TIMEOUT", 15*time.Second),
		LogLevel:                    strings.ToLower(e.str("LOG_LEVEL", "info")),
		ZipkinURL:                   e.str("ZIPKIN_URL", ""),
		NWSAppName:                  e.str("NWS_APP_NAME", "weatherhub"),
		NWSContact:                  e.str("NWS_CONTACT", ""),
		VisualCrossingAPIKey:        e.str("VISUAL_CROSSING_API_KEY", ""),
		GoogleGeocodingAPIKey:       e.str("GOOGLE_GEOCODING_API_KEY", ""),
		DataSource:                  strings.ToLower(e.str("DATA_SOURCE", "auto")),
		CacheEnabled:                e.boolean("CACHE_ENABLED", true),
		CacheTTL:                    e.duration("CACHE_TTL", 5*time.Minute),
		NWSMinRequestInterval:       e.duration("NWS_MIN_REQUEST_INTERVAL", 500*time.Millisecond),
		OpenMeteoMinRequestInterval: e.duration("OPENMETEO_MIN_REQUEST_INTERVAL", 200*time.Millisecond),
		VCMinRequestInterval:        e.duration("VISUAL_CROSSING_MIN_REQUEST_INTERVAL", time.Second),
		MaxRetries:                  e.integer("MAX_RETRIES", 3),
		RetryInitialWait:            e.duration("RETRY_INITIAL_WAIT", 5*time.Second),
		RetryBackoff:                e.float("RETRY_BACKOFF", 2.0),
		AlertRadiusMiles:            e.float("ALERT_RADIUS_MILES", 25),
		PreciseAlerts:               e.boolean("PRECISE_ALERTS", true),
		TemperatureUnit:             strings.ToLower(e.str("TEMPERATURE_UNIT", "fahrenheit")),
		WindSpeedUnit:               strings.ToLower(e.str("WIND_SPEED_UNIT", "mph")),
		PrecipitationUnit:           strings.ToLower(e.str("PRECIPITATION_UNIT", "inch")),
		FetchInterval:               e.duration("FETCH_INTERVAL", 15*time.Minute),
		StoreMaxHistory:             e.integer("STORE_MAX_HISTORY", 96), // roughly 24h at 15-minute intervals
		StoreMaxAge:                 e.duration("STORE_MAX_AGE", 24*time.Hour),
	}
	if len(e.errs) > 0 {
		return nil, errors.Join(e.errs...)
	}

	locs, err := ParseLocations(getenv("WEATHER_LOCATIONS"))
	if err != nil {
		return nil, err
	}
	cfg.Locations = locs

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ParseLocations parses "Name|lat|lon;Name|lat|lon". Empty input yields no
// locations.
func ParseLocations(s string) ([]weather.Location, error) {
	var locs []weather.Location
	for _, entry := range strings.Split(s, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, "|")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid WEATHER_LOCATIONS entry %q: want Name|lat|lon", entry)
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil || lat < -90 || lat > 90 {
			return nil, fmt.Errorf("invalid latitude in WEATHER_LOCATIONS entry %q", entry)
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(parts[2]), 64)
		if err != nil || lon < -180 || lon > 180 {
			return nil, fmt.Errorf("invalid longitude in WEATHER_LOCATIONS entry %q", entry)
		}
		locs = append(locs, weather.Location{
			Name:      strings.TrimSpace(parts[0]),
			Latitude:  lat,
			Longitude: lon,
		})
	}
	return locs, nil
}

// env reads typed values and collects parse errors.
type env struct {
	getenv func(string) string
	errs   []error
}

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := e.getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return d
}

func (e *env) integer(key string, def int) int {
	v := e.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return n
}

func (e *env) float(key string, def float64) float64 {
	v := e.getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return f
}

func (e *env) boolean(key string, def bool) bool {
	v := e.getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return def
	}
	return b
}
