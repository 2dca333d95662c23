package weather

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/weatherhub/internal/metrics"
)

// Field names used in WeatherData.Sources and metrics.
const (
	FieldCurrent    = "current"
	FieldForecast   = "forecast"
	FieldHourly     = "hourly"
	FieldAlerts     = "alerts"
	fieldEnrichment = "current_enrichment"
)

// Options configures a WeatherClient.
type Options struct {
	// DataSource is "auto", or the name of a provider to prefer.
	DataSource string
	Alerts     AlertOptions
	// EnrichCurrent fills fields the primary provider lacks from the secondary.
	EnrichCurrent bool
	Logger        *zap.Logger
	Now           func() time.Time
}

// WeatherClient selects providers per location, falls back per field and
// normalizes the results into WeatherData.
type WeatherClient struct {
	providers map[string]Provider
	opts      Options
	logger    *zap.Logger
	tracer    trace.Tracer
}

// NewWeatherClient creates a WeatherClient over the given providers, keyed by
// their Name(). Nil providers are ignored.
func NewWeatherClient(providers []Provider, opts Options) *WeatherClient {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		if p != nil {
			byName[p.Name()] = p
		}
	}
	if opts.DataSource == "" {
		opts.DataSource = "auto"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WeatherClient{
		providers: byName,
		opts:      opts,
		logger:    logger,
		tracer:    otel.Tracer("github.com/i474232898/weatherhub/internal/weather"),
	}
}

// ProviderOrder returns the providers to try for loc, most preferred first.
// NWS is only eligible inside its coverage area, and Visual Crossing is never
// placed ahead of NWS there.
func (c *WeatherClient) ProviderOrder(loc Location) []Provider {
	us := IsUSLocation(loc.Latitude, loc.Longitude)

	var names []string
	if us {
		names = append(names, ProviderNWS)
	}
	names = append(names, ProviderOpenMeteo, ProviderVisualCrossing)

	switch c.opts.DataSource {
	case ProviderOpenMeteo:
		names = moveToFront(names, ProviderOpenMeteo, 0)
	case ProviderVisualCrossing:
		pos := 0
		if us {
			pos = 1
		}
		names = moveToFront(names, ProviderVisualCrossing, pos)
	}

	order := make([]Provider, 0, len(names))
	for _, n := range names {
		if p, ok := c.providers[n]; ok {
			order = append(order, p)
		}
	}
	return order
}

// moveToFront moves name to index pos, keeping the relative order of the rest.
func moveToFront(names []string, name string, pos int) []string {
	rest := make([]string, 0, len(names))
	for _, n := range names {
		if n != name {
			rest = append(rest, n)
		}
	}
	if pos > len(rest) {
		pos = len(rest)
	}
	out := make([]string, 0, len(names))
	out = append(out, rest[:pos]...)
	out = append(out, name)
	return append(out, rest[pos:]...)
}

// GetWeatherData fetches current conditions, forecast, hourly forecast and
// alerts for loc. Each field is fetched independently and falls back through
// the provider order; a failing field is left empty without affecting the
// others. ErrNoWeatherData is returned, together with the empty result, only
// when current conditions, forecast and hourly forecast all failed.
func (c *WeatherClient) GetWeatherData(ctx context.Context, loc Location, force bool) (*WeatherData, error) {
	ctx, span := c.tracer.Start(ctx, "WeatherClient.GetWeatherData", trace.WithAttributes(
		attribute.String("location", loc.Name),
		attribute.Float64("lat", loc.Latitude),
		attribute.Float64("lon", loc.Longitude),
	))
	defer span.End()

	order := c.ProviderOrder(loc)
	log := c.logger.With(zap.String("location", loc.Key()))
	log.Debug("fetching weather data", zap.Strings("providers", providerNames(order)), zap.Bool("force", force))

	var (
		current       *CurrentConditions
		forecast      *Forecast
		hourly        *HourlyForecast
		alerts        *WeatherAlerts
		currentSrc    string
		enrichmentSrc string
		forecastSrc   string
		hourlySrc     string
		alertsSrc     string
	)

	var g errgroup.Group
	g.Go(func() error {
		current, currentSrc, enrichmentSrc = c.fetchCurrent(ctx, log, order, loc, force)
		return nil
	})
	g.Go(func() error {
		forecast, forecastSrc = fetchField(ctx, log, FieldForecast, order, func(ctx context.Context, p Provider) (*Forecast, error) {
			return p.GetForecast(ctx, loc, force)
		})
		return nil
	})
	g.Go(func() error {
		hourly, hourlySrc = fetchField(ctx, log, FieldHourly, order, func(ctx context.Context, p Provider) (*HourlyForecast, error) {
			return p.GetHourlyForecast(ctx, loc, force)
		})
		return nil
	})
	g.Go(func() error {
		alerts, alertsSrc = fetchField(ctx, log, FieldAlerts, order, func(ctx context.Context, p Provider) (*WeatherAlerts, error) {
			return p.GetAlerts(ctx, loc, c.opts.Alerts, force)
		})
		return nil
	})
	_ = g.Wait()

	sources := make(map[string]string, 5)
	for field, src := range map[string]string{
		FieldCurrent:    currentSrc,
		fieldEnrichment: enrichmentSrc,
		FieldForecast:   forecastSrc,
		FieldHourly:     hourlySrc,
		FieldAlerts:     alertsSrc,
	} {
		if src != "" {
			sources[field] = src
		}
	}

	data := &WeatherData{
		Location:       loc,
		Current:        normalizeCurrent(current),
		Forecast:       normalizeForecast(forecast),
		HourlyForecast: normalizeHourly(hourly),
		Alerts:         normalizeAlerts(alerts),
		Sources:        sources,
		LastUpdated:    c.opts.Now().UTC(),
	}

	if !data.HasAnyData() {
		log.Warn("no provider returned weather data")
		span.RecordError(ErrNoWeatherData)
		return data, ErrNoWeatherData
	}
	return data, nil
}

// fetchField runs the fallback chain for one field and records metrics.
func fetchField[T any](ctx context.Context, log *zap.Logger, field string, order []Provider, fn func(context.Context, Provider) (T, error)) (T, string) {
	v, src, err := firstSuccess(ctx, order, fn)
	if err != nil {
		metrics.FieldUnavailableTotal.WithLabelValues(field).Inc()
		log.Warn("all providers failed", zap.String("field", field), zap.Error(err))
		return v, ""
	}
	if len(order) > 0 && src != order[0].Name() {
		metrics.ProviderFallbacksTotal.WithLabelValues(field, src).Inc()
		log.Info("served by fallback provider", zap.String("field", field), zap.String("provider", src))
	}
	return v, src
}

// fetchCurrent queries the primary and secondary providers concurrently so the
// secondary can both enrich a successful primary and stand in for a failed one.
func (c *WeatherClient) fetchCurrent(ctx context.Context, log *zap.Logger, order []Provider, loc Location, force bool) (cur *CurrentConditions, src, enrichedBy string) {
	call := func(ctx context.Context, p Provider) (*CurrentConditions, error) {
		return p.GetCurrentConditions(ctx, loc, force)
	}
	if !c.opts.EnrichCurrent || len(order) < 2 {
		cur, src = fetchField(ctx, log, FieldCurrent, order, call)
		return cur, src, ""
	}

	var (
		primary, secondary *CurrentConditions
		perr, serr         error
		g                  errgroup.Group
	)
	g.Go(func() error {
		primary, perr = call(ctx, order[0])
		return nil
	})
	g.Go(func() error {
		secondary, serr = call(ctx, order[1])
		return nil
	})
	_ = g.Wait()

	switch {
	case perr == nil && serr == nil:
		return enrichCurrent(normalizeCurrent(primary), normalizeCurrent(secondary)), order[0].Name(), order[1].Name()
	case perr == nil:
		log.Debug("enrichment source failed", zap.String("provider", order[1].Name()), zap.Error(serr))
		return primary, order[0].Name(), ""
	case serr == nil:
		log.Info("served by fallback provider",
			zap.String("field", FieldCurrent), zap.String("provider", order[1].Name()), zap.Error(perr))
		metrics.ProviderFallbacksTotal.WithLabelValues(FieldCurrent, order[1].Name()).Inc()
		return secondary, order[1].Name(), ""
	}

	log.Warn("primary and secondary current conditions failed",
		zap.NamedError("primary", perr), zap.NamedError("secondary", serr))
	if len(order) == 2 {
		metrics.FieldUnavailableTotal.WithLabelValues(FieldCurrent).Inc()
		return nil, "", ""
	}
	cur, src = fetchField(ctx, log, FieldCurrent, order[2:], call)
	if src != "" {
		metrics.ProviderFallbacksTotal.WithLabelValues(FieldCurrent, src).Inc()
	}
	return cur, src, ""
}

// GetForecastDiscussion returns the forecaster's discussion for loc from the
// first provider that publishes one.
func (c *WeatherClient) GetForecastDiscussion(ctx context.Context, loc Location, force bool) (string, error) {
	for _, p := range c.ProviderOrder(loc) {
		if dp, ok := p.(DiscussionProvider); ok {
			return dp.GetDiscussion(ctx, loc, force)
		}
	}
	return "", ErrUnsupported
}

func providerNames(ps []Provider) []string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.Name()
	}
	return names
}
