package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/weatherhub/internal/apiclient"
	"github.com/i474232898/weatherhub/internal/weather"
)

const openMeteoBaseURL = "https://api.open-meteo.com/v1"

// Unit selections accepted by Open-Meteo.
const (
	TemperatureCelsius    = "celsius"
	TemperatureFahrenheit = "fahrenheit"

	WindKMH   = "kmh"
	WindMS    = "ms"
	WindMPH   = "mph"
	WindKnots = "kn"

	PrecipitationMM   = "mm"
	PrecipitationInch = "inch"
)

// OpenMeteoUnits selects the units Open-Meteo reports in. Values are always
// converted back to the canonical units of the weather package.
type OpenMeteoUnits struct {
	Temperature   string
	WindSpeed     string
	Precipitation string
}

// OpenMeteoConfig configures the Open-Meteo provider.
type OpenMeteoConfig struct {
	BaseURL string
	Units   OpenMeteoUnits

	HTTPClient         *http.Client
	CacheEnabled       bool
	CacheTTL           time.Duration
	MinRequestInterval time.Duration
	MaxRetries         int
	InitialWait        time.Duration
	Backoff            float64

	Logger *zap.Logger
}

// OpenMeteoProvider implements weather.Provider for Open-Meteo. It covers the
// whole globe but publishes no alerts.
type OpenMeteoProvider struct {
	client *apiclient.Client
	units  OpenMeteoUnits
	logger *zap.Logger
}

func NewOpenMeteoProvider(cfg OpenMeteoConfig) *OpenMeteoProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = openMeteoBaseURL
	}
	if cfg.Units.Temperature == "" {
		cfg.Units.Temperature = TemperatureFahrenheit
	}
	if cfg.Units.WindSpeed == "" {
		cfg.Units.WindSpeed = WindMPH
	}
	if cfg.Units.Precipitation == "" {
		cfg.Units.Precipitation = PrecipitationInch
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &OpenMeteoProvider{
		client: apiclient.New(apiclient.Config{
			Name:               weather.ProviderOpenMeteo,
			BaseURL:            cfg.BaseURL,
			HTTPClient:         cfg.HTTPClient,
			CacheEnabled:       cfg.CacheEnabled,
			CacheTTL:           cfg.CacheTTL,
			MinRequestInterval: cfg.MinRequestInterval,
			MaxRetries:         cfg.MaxRetries,
			InitialWait:        cfg.InitialWait,
			Backoff:            cfg.Backoff,
			Logger:             cfg.Logger,
		}),
		units:  cfg.Units,
		logger: logger.With(zap.String("provider", weather.ProviderOpenMeteo)),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return weather.ProviderOpenMeteo
}

type openMeteoCurrent struct {
	Time                string   `json:"time"`
	Temperature         *float64 `json:"temperature_2m"`
	RelativeHumidity    *float64 `json:"relative_humidity_2m"`
	ApparentTemperature *float64 `json:"apparent_temperature"`
	DewPoint            *float64 `json:"dew_point_2m"`
	WeatherCode         *int     `json:"weather_code"`
	WindSpeed           *float64 `json:"wind_speed_10m"`
	WindDirection       *float64 `json:"wind_direction_10m"`
	WindGusts           *float64 `json:"wind_gusts_10m"`
	PressureMSL         *float64 `json:"pressure_msl"`
	Visibility          *float64 `json:"visibility"`
	UVIndex             *float64 `json:"uv_index"`
}

type openMeteoDaily struct {
	Time                        []string   `json:"time"`
	WeatherCode                 []*int     `json:"weather_code"`
	TemperatureMax              []*float64 `json:"temperature_2m_max"`
	TemperatureMin              []*float64 `json:"temperature_2m_min"`
	PrecipitationProbabilityMax []*float64 `json:"precipitation_probability_max"`
	WindSpeedMax                []*float64 `json:"wind_speed_10m_max"`
	WindDirectionDominant       []*float64 `json:"wind_direction_10m_dominant"`
	Sunrise                     []string   `json:"sunrise"`
	Sunset                      []string   `json:"sunset"`
}

type openMeteoHourly struct {
	Time                     []string   `json:"time"`
	Temperature              []*float64 `json:"temperature_2m"`
	DewPoint                 []*float64 `json:"dew_point_2m"`
	RelativeHumidity         []*float64 `json:"relative_humidity_2m"`
	WeatherCode              []*int     `json:"weather_code"`
	WindSpeed                []*float64 `json:"wind_speed_10m"`
	WindDirection            []*float64 `json:"wind_direction_10m"`
	PrecipitationProbability []*float64 `json:"precipitation_probability"`
	PressureMSL              []*float64 `json:"pressure_msl"`
}

type openMeteoResponse struct {
	UTCOffsetSeconds int               `json:"utc_offset_seconds"`
	Current          *openMeteoCurrent `json:"current"`
	Daily            *openMeteoDaily   `json:"daily"`
	Hourly           *openMeteoHourly  `json:"hourly"`
}

func (p *OpenMeteoProvider) fetch(ctx context.Context, loc weather.Location, extra url.Values, force bool) (*openMeteoResponse, error) {
	params := url.Values{
		"latitude":           {strconv.FormatFloat(loc.Latitude, 'f', 4, 64)},
		"longitude":          {strconv.FormatFloat(loc.Longitude, 'f', 4, 64)},
		"timezone":           {"auto"},
		"temperature_unit":   {p.units.Temperature},
		"wind_speed_unit":    {p.units.WindSpeed},
		"precipitation_unit": {p.units.Precipitation},
	}
	for k, v := range extra {
		params[k] = v
	}

	raw, err := p.client.GetJSON(ctx, "/forecast", params, force)
	if err != nil {
		return nil, err
	}
	var payload openMeteoResponse
	if err := p.client.Decode(raw, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// GetCurrentConditions returns the current block together with today's
// sunrise and sunset.
func (p *OpenMeteoProvider) GetCurrentConditions(ctx context.Context, loc weather.Location, force bool) (*weather.CurrentConditions, error) {
	payload, err := p.fetch(ctx, loc, url.Values{
		"current": {"temperature_2m,relative_humidity_2m,apparent_temperature,dew_point_2m,weather_code," +
			"wind_speed_10m,wind_direction_10m,wind_gusts_10m,pressure_msl,visibility,uv_index"},
		"daily":         {"sunrise,sunset"},
		"forecast_days": {"1"},
	}, force)
	if err != nil {
		return nil, fmt.Errorf("fetch current conditions: %w", err)
	}
	if payload.Current == nil {
		return nil, apiclient.NewError(apiclient.KindParse, p.Name(), errors.New("response has no current block"))
	}
	c := payload.Current
	tz := time.FixedZone("", payload.UTCOffsetSeconds)

	cur := &weather.CurrentConditions{
		TemperatureF:     p.temperatureF(c.Temperature),
		FeelsLikeF:       p.temperatureF(c.ApparentTemperature),
		DewpointF:        p.temperatureF(c.DewPoint),
		Humidity:         c.RelativeHumidity,
		WindSpeedMPH:     p.speedMPH(c.WindSpeed),
		WindGustMPH:      p.speedMPH(c.WindGusts),
		WindDirectionDeg: c.WindDirection,
		PressureIn:       hPaToInHg(c.PressureMSL),
		UVIndex:          c.UVIndex,
		Condition:        wmoDescription(c.WeatherCode),
		ObservedAt:       parseLocalTime(c.Time, tz),
	}
	if c.Visibility != nil {
		cur.VisibilityMiles = weather.Float(weather.MetersToMiles(*c.Visibility))
	}
	if d := payload.Daily; d != nil {
		if len(d.Sunrise) > 0 {
			cur.Sunrise = parseLocalTime(d.Sunrise[0], tz)
		}
		if len(d.Sunset) > 0 {
			cur.Sunset = parseLocalTime(d.Sunset[0], tz)
		}
	}
	return cur, nil
}

// GetForecast returns one period per calendar day.
func (p *OpenMeteoProvider) GetForecast(ctx context.Context, loc weather.Location, force bool) (*weather.Forecast, error) {
	payload, err := p.fetch(ctx, loc, url.Values{
		"daily": {"weather_code,temperature_2m_max,temperature_2m_min,precipitation_probability_max," +
			"wind_speed_10m_max,wind_direction_10m_dominant"},
		"forecast_days": {"7"},
	}, force)
	if err != nil {
		return nil, fmt.Errorf("fetch forecast: %w", err)
	}
	d := payload.Daily
	if d == nil {
		return nil, apiclient.NewError(apiclient.KindParse, p.Name(), errors.New("response has no daily block"))
	}
	tz := time.FixedZone("", payload.UTCOffsetSeconds)

	periods := make([]weather.ForecastPeriod, 0, len(d.Time))
	daytime := true
	for i, day := range d.Time {
		start, err := time.ParseInLocation("2006-01-02", day, tz)
		if err != nil {
			p.logger.Debug("skipping daily entry with bad date", zap.String("time", day))
			continue
		}
		end := start.Add(24 * time.Hour)
		period := weather.ForecastPeriod{
			Name:                     start.Weekday().String(),
			StartTime:                &start,
			EndTime:                  &end,
			IsDaytime:                &daytime,
			TemperatureF:             p.temperatureF(at(d.TemperatureMax, i)),
			TemperatureLowF:          p.temperatureF(at(d.TemperatureMin, i)),
			WindSpeedMPH:             p.speedMPH(at(d.WindSpeedMax, i)),
			PrecipitationProbability: at(d.PrecipitationProbabilityMax, i),
		}
		period.ShortForecast = wmoDescription(at(d.WeatherCode, i))
		if dir := at(d.WindDirectionDominant, i); dir != nil {
			period.WindDirection = weather.DegreesToCardinal(*dir)
		}
		periods = append(periods, period)
	}
	return &weather.Forecast{Periods: periods}, nil
}

// GetHourlyForecast returns the next 48 hours.
func (p *OpenMeteoProvider) GetHourlyForecast(ctx context.Context, loc weather.Location, force bool) (*weather.HourlyForecast, error) {
	payload, err := p.fetch(ctx, loc, url.Values{
		"hourly": {"temperature_2m,dew_point_2m,relative_humidity_2m,weather_code,wind_speed_10m," +
			"wind_direction_10m,precipitation_probability,pressure_msl"},
		"forecast_hours": {"48"},
	}, force)
	if err != nil {
		return nil, fmt.Errorf("fetch hourly forecast: %w", err)
	}
	h := payload.Hourly
	if h == nil {
		return nil, apiclient.NewError(apiclient.KindParse, p.Name(), errors.New("response has no hourly block"))
	}
	tz := time.FixedZone("", payload.UTCOffsetSeconds)

	periods := make([]weather.HourlyForecastPeriod, 0, len(h.Time))
	for i, ts := range h.Time {
		start := parseLocalTime(ts, tz)
		if start == nil {
			continue
		}
		end := start.Add(time.Hour)
		period := weather.HourlyForecastPeriod{
			StartTime:                start,
			EndTime:                  &end,
			TemperatureF:             p.temperatureF(at(h.Temperature, i)),
			DewpointF:                p.temperatureF(at(h.DewPoint, i)),
			Humidity:                 at(h.RelativeHumidity, i),
			Condition:                wmoDescription(at(h.WeatherCode, i)),
			WindSpeedMPH:             p.speedMPH(at(h.WindSpeed, i)),
			PrecipitationProbability: at(h.PrecipitationProbability, i),
			PressureIn:               hPaToInHg(at(h.PressureMSL, i)),
		}
		if dir := at(h.WindDirection, i); dir != nil {
			period.WindDirection = weather.DegreesToCardinal(*dir)
		}
		periods = append(periods, period)
	}
	return &weather.HourlyForecast{Periods: periods}, nil
}

// GetAlerts always returns an empty list: Open-Meteo publishes no alerts.
func (p *OpenMeteoProvider) GetAlerts(_ context.Context, _ weather.Location, _ weather.AlertOptions, _ bool) (*weather.WeatherAlerts, error) {
	return &weather.WeatherAlerts{Alerts: []weather.WeatherAlert{}}, nil
}

func (p *OpenMeteoProvider) temperatureF(v *float64) *float64 {
	if v == nil {
		return nil
	}
	if p.units.Temperature == TemperatureCelsius {
		return weather.Float(weather.CelsiusToFahrenheit(*v))
	}
	return weather.Float(*v)
}

func (p *OpenMeteoProvider) speedMPH(v *float64) *float64 {
	if v == nil {
		return nil
	}
	switch p.units.WindSpeed {
	case WindKMH:
		return weather.Float(weather.KPHToMPH(*v))
	case WindMS:
		return weather.Float(weather.MSToMPH(*v))
	case WindKnots:
		return weather.Float(weather.KnotsToMPH(*v))
	default:
		return weather.Float(*v)
	}
}

func hPaToInHg(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return weather.Float(weather.HPaToInHg(*v))
}

// parseLocalTime parses Open-Meteo's "2006-01-02T15:04" local timestamps.
func parseLocalTime(s string, tz *time.Location) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04", s, tz)
	if err != nil {
		return nil
	}
	return &t
}

// at returns s[i], or the zero value when i is out of range.
func at[T any](s []T, i int) T {
	var zero T
	if i < 0 || i >= len(s) {
		return zero
	}
	return s[i]
}

var _ weather.Provider = (*OpenMeteoProvider)(nil)
