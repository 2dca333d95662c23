package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/i474232898/weatherhub/internal/apiclient"
	"github.com/i474232898/weatherhub/internal/weather"
)

const (
	visualCrossingBaseURL = "https://weather.visualcrossing.com/VisualCrossingWebServices/rest/services/timeline"
	visualCrossingHours   = 48
)

// ErrMissingAPIKey is returned by NewVisualCrossingProvider without a key.
var ErrMissingAPIKey = errors.New("visual crossing api key is required")

// VisualCrossingConfig configures the Visual Crossing provider.
type VisualCrossingConfig struct {
	BaseURL string
	APIKey  string

	HTTPClient         *http.Client
	CacheEnabled       bool
	CacheTTL           time.Duration
	MinRequestInterval time.Duration
	MaxRetries         int
	InitialWait        time.Duration
	Backoff            float64

	Logger *zap.Logger
	Now    func() time.Time
}

// VisualCrossingProvider implements weather.Provider on top of the Visual
// Crossing timeline API. All four fields are read from one timeline payload,
// so a full fetch costs a single upstream request per cache period.
type VisualCrossingProvider struct {
	client *apiclient.Client
	apiKey string
	now    func() time.Time
	logger *zap.Logger
}

func NewVisualCrossingProvider(cfg VisualCrossingConfig) (*VisualCrossingProvider, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = visualCrossingBaseURL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &VisualCrossingProvider{
		client: apiclient.New(apiclient.Config{
			Name:               weather.ProviderVisualCrossing,
			BaseURL:            cfg.BaseURL,
			HTTPClient:         cfg.HTTPClient,
			RedactParams:       []string{"key"},
			CacheEnabled:       cfg.CacheEnabled,
			CacheTTL:           cfg.CacheTTL,
			MinRequestInterval: cfg.MinRequestInterval,
			MaxRetries:         cfg.MaxRetries,
			InitialWait:        cfg.InitialWait,
			Backoff:            cfg.Backoff,
			Logger:             cfg.Logger,
		}),
		apiKey: cfg.APIKey,
		now:    cfg.Now,
		logger: logger.With(zap.String("provider", weather.ProviderVisualCrossing)),
	}, nil
}

func (p *VisualCrossingProvider) Name() string {
	return weather.ProviderVisualCrossing
}

type vcHour struct {
	DatetimeEpoch int64    `json:"datetimeEpoch"`
	Temp          *float64 `json:"temp"`
	Dew           *float64 `json:"dew"`
	Humidity      *float64 `json:"humidity"`
	PrecipProb    *float64 `json:"precipprob"`
	WindSpeed     *float64 `json:"windspeed"`
	WindDir       *float64 `json:"winddir"`
	Pressure      *float64 `json:"pressure"`
	Conditions    string   `json:"conditions"`
	Icon          string   `json:"icon"`
}

type vcDay struct {
	Datetime      string   `json:"datetime"`
	DatetimeEpoch int64    `json:"datetimeEpoch"`
	TempMax       *float64 `json:"tempmax"`
	TempMin       *float64 `json:"tempmin"`
	PrecipProb    *float64 `json:"precipprob"`
	WindSpeed     *float64 `json:"windspeed"`
	WindDir       *float64 `json:"winddir"`
	Conditions    string   `json:"conditions"`
	Description   string   `json:"description"`
	Icon          string   `json:"icon"`
	Hours         []vcHour `json:"hours"`
}

type vcCurrent struct {
	DatetimeEpoch int64    `json:"datetimeEpoch"`
	Temp          *float64 `json:"temp"`
	FeelsLike     *float64 `json:"feelslike"`
	Dew           *float64 `json:"dew"`
	Humidity      *float64 `json:"humidity"`
	WindSpeed     *float64 `json:"windspeed"`
	WindGust      *float64 `json:"windgust"`
	WindDir       *float64 `json:"winddir"`
	Pressure      *float64 `json:"pressure"`
	Visibility    *float64 `json:"visibility"`
	UVIndex       *float64 `json:"uvindex"`
	Conditions    string   `json:"conditions"`
	Icon          string   `json:"icon"`
	SunriseEpoch  int64    `json:"sunriseEpoch"`
	SunsetEpoch   int64    `json:"sunsetEpoch"`
}

type vcAlert struct {
	ID          string `json:"id"`
	Event       string `json:"event"`
	Headline    string `json:"headline"`
	Description string `json:"description"`
	OnsetEpoch  int64  `json:"onsetEpoch"`
	EndsEpoch   int64  `json:"endsEpoch"`
}

type vcTimeline struct {
	ResolvedAddress   string     `json:"resolvedAddress"`
	Timezone          string     `json:"timezone"`
	Days              []vcDay    `json:"days"`
	CurrentConditions *vcCurrent `json:"currentConditions"`
	Alerts            []vcAlert  `json:"alerts"`
}

// timeline fetches the shared payload. Every method requests the same URL and
// parameters, so they all hit the same cache entry.
func (p *VisualCrossingProvider) timeline(ctx context.Context, loc weather.Location, force bool) (*vcTimeline, error) {
	endpoint := fmt.Sprintf("/%s,%s",
		strconv.FormatFloat(loc.Latitude, 'f', 4, 64),
		strconv.FormatFloat(loc.Longitude, 'f', 4, 64))
	params := url.Values{
		"key":         {p.apiKey},
		"unitGroup":   {"us"},
		"include":     {"current,days,hours,alerts"},
		"contentType": {"json"},
	}

	raw, err := p.client.GetJSON(ctx, endpoint, params, force)
	if err != nil {
		return nil, err
	}
	var payload vcTimeline
	if err := p.client.Decode(raw, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (p *VisualCrossingProvider) GetCurrentConditions(ctx context.Context, loc weather.Location, force bool) (*weather.CurrentConditions, error) {
	tl, err := p.timeline(ctx, loc, force)
	if err != nil {
		return nil, fmt.Errorf("fetch timeline: %w", err)
	}
	c := tl.CurrentConditions
	if c == nil {
		return nil, apiclient.NewError(apiclient.KindParse, p.Name(), errors.New("timeline has no current conditions"))
	}

	// unitGroup=us: °F, mph, millibars, miles.
	cur := &weather.CurrentConditions{
		TemperatureF:     c.Temp,
		FeelsLikeF:       c.FeelsLike,
		DewpointF:        c.Dew,
		Humidity:         c.Humidity,
		WindSpeedMPH:     c.WindSpeed,
		WindGustMPH:      c.WindGust,
		WindDirectionDeg: c.WindDir,
		PressureMB:       c.Pressure,
		VisibilityMiles:  c.Visibility,
		UVIndex:          c.UVIndex,
		Condition:        c.Conditions,
		Icon:             c.Icon,
		ObservedAt:       epoch(c.DatetimeEpoch),
		Sunrise:          epoch(c.SunriseEpoch),
		Sunset:           epoch(c.SunsetEpoch),
	}
	return cur, nil
}

func (p *VisualCrossingProvider) GetForecast(ctx context.Context, loc weather.Location, force bool) (*weather.Forecast, error) {
	tl, err := p.timeline(ctx, loc, force)
	if err != nil {
		return nil, fmt.Errorf("fetch timeline: %w", err)
	}

	daytime := true
	periods := make([]weather.ForecastPeriod, 0, len(tl.Days))
	for _, d := range tl.Days {
		start := epoch(d.DatetimeEpoch)
		period := weather.ForecastPeriod{
			Name:                     d.Datetime,
			StartTime:                start,
			IsDaytime:                &daytime,
			TemperatureF:             d.TempMax,
			TemperatureLowF:          d.TempMin,
			ShortForecast:            d.Conditions,
			DetailedForecast:         d.Description,
			WindSpeedMPH:             d.WindSpeed,
			PrecipitationProbability: d.PrecipProb,
			Icon:                     d.Icon,
		}
		if start != nil {
			end := start.Add(24 * time.Hour)
			period.EndTime = &end
			period.Name = start.Weekday().String()
		}
		if d.WindDir != nil {
			period.WindDirection = weather.DegreesToCardinal(*d.WindDir)
		}
		periods = append(periods, period)
	}
	return &weather.Forecast{Periods: periods}, nil
}

// GetHourlyForecast flattens the per-day hours and keeps the next 48 hours
// starting with the current one.
func (p *VisualCrossingProvider) GetHourlyForecast(ctx context.Context, loc weather.Location, force bool) (*weather.HourlyForecast, error) {
	tl, err := p.timeline(ctx, loc, force)
	if err != nil {
		return nil, fmt.Errorf("fetch timeline: %w", err)
	}

	now := p.now()
	periods := make([]weather.HourlyForecastPeriod, 0, visualCrossingHours)
	for _, d := range tl.Days {
		for _, h := range d.Hours {
			start := epoch(h.DatetimeEpoch)
			if start == nil {
				continue
			}
			end := start.Add(time.Hour)
			if !end.After(now) {
				continue
			}
			period := weather.HourlyForecastPeriod{
				StartTime:                start,
				EndTime:                  &end,
				TemperatureF:             h.Temp,
				DewpointF:                h.Dew,
				Humidity:                 h.Humidity,
				Condition:                h.Conditions,
				WindSpeedMPH:             h.WindSpeed,
				PrecipitationProbability: h.PrecipProb,
				Icon:                     h.Icon,
			}
			if h.Pressure != nil {
				period.PressureIn = weather.Float(weather.HPaToInHg(*h.Pressure))
			}
			if h.WindDir != nil {
				period.WindDirection = weather.DegreesToCardinal(*h.WindDir)
			}
			periods = append(periods, period)
			if len(periods) == visualCrossingHours {
				return &weather.HourlyForecast{Periods: periods}, nil
			}
		}
	}
	return &weather.HourlyForecast{Periods: periods}, nil
}

func (p *VisualCrossingProvider) GetAlerts(ctx context.Context, loc weather.Location, _ weather.AlertOptions, force bool) (*weather.WeatherAlerts, error) {
	tl, err := p.timeline(ctx, loc, force)
	if err != nil {
		return nil, fmt.Errorf("fetch timeline: %w", err)
	}

	out := &weather.WeatherAlerts{Alerts: make([]weather.WeatherAlert, 0, len(tl.Alerts))}
	for _, a := range tl.Alerts {
		out.Alerts = append(out.Alerts, weather.WeatherAlert{
			ID:          alertID(a),
			Event:       a.Event,
			Headline:    a.Headline,
			Description: a.Description,
			Onset:       epoch(a.OnsetEpoch),
			Expires:     epoch(a.EndsEpoch),
		})
	}
	return out, nil
}

// alertID returns the upstream id, or a name-based UUID derived from the
// alert's content so the same alert keeps the same id across fetches.
func alertID(a vcAlert) string {
	if a.ID != "" {
		return a.ID
	}
	name := fmt.Sprintf("%s|%s|%d|%d", a.Event, a.Headline, a.OnsetEpoch, a.EndsEpoch)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

func epoch(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

var _ weather.Provider = (*VisualCrossingProvider)(nil)
