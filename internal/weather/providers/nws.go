package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/weatherhub/internal/apiclient"
	"github.com/i474232898/weatherhub/internal/common"
	"github.com/i474232898/weatherhub/internal/weather"
)

const nwsBaseURL = "https://api.weather.gov"

// NWSConfig configures the National Weather Service provider.
type NWSConfig struct {
	BaseURL string
	// AppName and Contact form the User-Agent NWS requires: "<app> (<contact>)".
	AppName string
	Contact string

	HTTPClient         *http.Client
	CacheEnabled       bool
	CacheTTL           time.Duration
	MinRequestInterval time.Duration
	MaxRetries         int
	InitialWait        time.Duration
	Backoff            float64

	Logger *zap.Logger
}

// NWSProvider implements weather.Provider and weather.DiscussionProvider for
// api.weather.gov.
type NWSProvider struct {
	client   *apiclient.Client
	resolver *LocationResolver
	alerts   *AlertRouter
	logger   *zap.Logger
}

func NewNWSProvider(cfg NWSConfig) *NWSProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = nwsBaseURL
	}
	if cfg.AppName == "" {
		cfg.AppName = "weatherhub"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("provider", weather.ProviderNWS))

	userAgent := cfg.AppName
	if cfg.Contact != "" {
		userAgent = fmt.Sprintf("%s (%s)", cfg.AppName, cfg.Contact)
	}

	client := apiclient.New(apiclient.Config{
		Name:    weather.ProviderNWS,
		BaseURL: cfg.BaseURL,
		Headers: map[string]string{
			"User-Agent": userAgent,
			"Accept":     "application/geo+json",
		},
		HTTPClient:         cfg.HTTPClient,
		CacheEnabled:       cfg.CacheEnabled,
		CacheTTL:           cfg.CacheTTL,
		MinRequestInterval: cfg.MinRequestInterval,
		MaxRetries:         cfg.MaxRetries,
		InitialWait:        cfg.InitialWait,
		Backoff:            cfg.Backoff,
		Logger:             cfg.Logger,
	})

	resolver := NewLocationResolver(client, logger)
	return &NWSProvider{
		client:   client,
		resolver: resolver,
		alerts:   NewAlertRouter(client, resolver, logger),
		logger:   logger,
	}
}

func (p *NWSProvider) Name() string {
	return weather.ProviderNWS
}

// Resolver exposes the point resolver shared by forecast and alert lookups.
func (p *NWSProvider) Resolver() *LocationResolver {
	return p.resolver
}

// nwsQuantity is a value with a WMO unit code, e.g. {"value": 21.1, "unitCode": "wmoUnit:degC"}.
type nwsQuantity struct {
	Value    *float64 `json:"value"`
	UnitCode string   `json:"unitCode"`
}

type stationsResponse struct {
	Features []struct {
		Properties struct {
			StationIdentifier string `json:"stationIdentifier"`
			Name              string `json:"name"`
		} `json:"properties"`
	} `json:"features"`
}

type observationResponse struct {
	Properties struct {
		Timestamp          string      `json:"timestamp"`
		TextDescription    string      `json:"textDescription"`
		Icon               string      `json:"icon"`
		Temperature        nwsQuantity `json:"temperature"`
		Dewpoint           nwsQuantity `json:"dewpoint"`
		WindDirection      nwsQuantity `json:"windDirection"`
		WindSpeed          nwsQuantity `json:"windSpeed"`
		WindGust           nwsQuantity `json:"windGust"`
		BarometricPressure nwsQuantity `json:"barometricPressure"`
		SeaLevelPressure   nwsQuantity `json:"seaLevelPressure"`
		Visibility         nwsQuantity `json:"visibility"`
		RelativeHumidity   nwsQuantity `json:"relativeHumidity"`
		HeatIndex          nwsQuantity `json:"heatIndex"`
		WindChill          nwsQuantity `json:"windChill"`
	} `json:"properties"`
}

// GetCurrentConditions reads the latest observation of the first station in
// the point's station list. The upstream list is assumed to be ordered by
// distance; it is not re-sorted here.
func (p *NWSProvider) GetCurrentConditions(ctx context.Context, loc weather.Location, force bool) (*weather.CurrentConditions, error) {
	resolved, err := p.resolver.Resolve(ctx, loc.Latitude, loc.Longitude, force)
	if err != nil {
		return nil, err
	}
	if resolved.ObservationStationsURL == "" {
		return nil, apiclient.NewError(apiclient.KindNotFound, p.Name(), errors.New("point has no observation stations"))
	}

	raw, err := p.client.GetJSON(ctx, resolved.ObservationStationsURL, nil, force)
	if err != nil {
		return nil, fmt.Errorf("fetch observation stations: %w", err)
	}
	var stations stationsResponse
	if err := p.client.Decode(raw, &stations); err != nil {
		return nil, fmt.Errorf("decode observation stations: %w", err)
	}
	if len(stations.Features) == 0 || stations.Features[0].Properties.StationIdentifier == "" {
		return nil, apiclient.NewError(apiclient.KindNotFound, p.Name(), errors.New("no observation stations found"))
	}
	station := stations.Features[0].Properties.StationIdentifier

	raw, err = p.client.GetJSON(ctx, "/stations/"+station+"/observations/latest", nil, force)
	if err != nil {
		return nil, fmt.Errorf("fetch latest observation for %s: %w", station, err)
	}
	var obs observationResponse
	if err := p.client.Decode(raw, &obs); err != nil {
		return nil, fmt.Errorf("decode observation for %s: %w", station, err)
	}
	o := obs.Properties

	cur := &weather.CurrentConditions{
		Condition:        o.TextDescription,
		Icon:             o.Icon,
		Station:          station,
		Humidity:         o.RelativeHumidity.Value,
		WindDirectionDeg: o.WindDirection.Value,
		WindSpeedMPH:     speedMPH(o.WindSpeed),
		WindGustMPH:      speedMPH(o.WindGust),
		VisibilityMiles:  distanceMiles(o.Visibility),
		ObservedAt:       parseTime(o.Timestamp),
	}
	cur.TemperatureF, cur.TemperatureC = temperature(o.Temperature)
	cur.DewpointF, cur.DewpointC = temperature(o.Dewpoint)

	switch {
	case o.HeatIndex.Value != nil:
		cur.FeelsLikeF, cur.FeelsLikeC = temperature(o.HeatIndex)
	case o.WindChill.Value != nil:
		cur.FeelsLikeF, cur.FeelsLikeC = temperature(o.WindChill)
	}

	pressure := o.BarometricPressure
	if pressure.Value == nil {
		pressure = o.SeaLevelPressure
	}
	cur.PressureIn = pressureInHg(pressure)

	return cur, nil
}

type nwsForecastPeriod struct {
	Name                       string      `json:"name"`
	StartTime                  string      `json:"startTime"`
	EndTime                    string      `json:"endTime"`
	IsDaytime                  *bool       `json:"isDaytime"`
	Temperature                *float64    `json:"temperature"`
	TemperatureUnit            string      `json:"temperatureUnit"`
	WindSpeed                  string      `json:"windSpeed"`
	WindDirection              string      `json:"windDirection"`
	Icon                       string      `json:"icon"`
	ShortForecast              string      `json:"shortForecast"`
	DetailedForecast           string      `json:"detailedForecast"`
	ProbabilityOfPrecipitation nwsQuantity `json:"probabilityOfPrecipitation"`
	RelativeHumidity           nwsQuantity `json:"relativeHumidity"`
	Dewpoint                   nwsQuantity `json:"dewpoint"`
}

type nwsForecastResponse struct {
	Properties struct {
		UpdateTime  string              `json:"updateTime"`
		GeneratedAt string              `json:"generatedAt"`
		Periods     []nwsForecastPeriod `json:"periods"`
	} `json:"properties"`
}

func (p *NWSProvider) fetchForecast(ctx context.Context, u string, force bool) (*nwsForecastResponse, error) {
	if u == "" {
		return nil, apiclient.NewError(apiclient.KindNotFound, p.Name(), errors.New("point has no forecast url"))
	}
	raw, err := p.client.GetJSON(ctx, u, nil, force)
	if err != nil {
		return nil, err
	}
	var payload nwsForecastResponse
	if err := p.client.Decode(raw, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// GetForecast fetches the day/night forecast periods for the point.
func (p *NWSProvider) GetForecast(ctx context.Context, loc weather.Location, force bool) (*weather.Forecast, error) {
	resolved, err := p.resolver.Resolve(ctx, loc.Latitude, loc.Longitude, force)
	if err != nil {
		return nil, err
	}
	payload, err := p.fetchForecast(ctx, resolved.ForecastURL, force)
	if err != nil {
		return nil, fmt.Errorf("fetch forecast: %w", err)
	}

	periods := make([]weather.ForecastPeriod, 0, len(payload.Properties.Periods))
	for _, np := range payload.Properties.Periods {
		periods = append(periods, weather.ForecastPeriod{
			Name:                     np.Name,
			StartTime:                parseTime(np.StartTime),
			EndTime:                  parseTime(np.EndTime),
			IsDaytime:                np.IsDaytime,
			TemperatureF:             forecastTemperatureF(np.Temperature, np.TemperatureUnit),
			ShortForecast:            np.ShortForecast,
			DetailedForecast:         np.DetailedForecast,
			WindSpeedMPH:             parseWindSpeed(np.WindSpeed),
			WindDirection:            np.WindDirection,
			PrecipitationProbability: np.ProbabilityOfPrecipitation.Value,
			Icon:                     np.Icon,
		})
	}

	return &weather.Forecast{
		Periods:     periods,
		GeneratedAt: firstTime(payload.Properties.GeneratedAt, payload.Properties.UpdateTime),
	}, nil
}

// GetHourlyForecast fetches the hourly forecast for the point.
func (p *NWSProvider) GetHourlyForecast(ctx context.Context, loc weather.Location, force bool) (*weather.HourlyForecast, error) {
	resolved, err := p.resolver.Resolve(ctx, loc.Latitude, loc.Longitude, force)
	if err != nil {
		return nil, err
	}
	payload, err := p.fetchForecast(ctx, resolved.ForecastHourlyURL, force)
	if err != nil {
		return nil, fmt.Errorf("fetch hourly forecast: %w", err)
	}

	periods := make([]weather.HourlyForecastPeriod, 0, len(payload.Properties.Periods))
	for _, np := range payload.Properties.Periods {
		dewF, _ := temperature(np.Dewpoint)
		periods = append(periods, weather.HourlyForecastPeriod{
			StartTime:                parseTime(np.StartTime),
			EndTime:                  parseTime(np.EndTime),
			TemperatureF:             forecastTemperatureF(np.Temperature, np.TemperatureUnit),
			DewpointF:                dewF,
			Humidity:                 np.RelativeHumidity.Value,
			Condition:                np.ShortForecast,
			WindSpeedMPH:             parseWindSpeed(np.WindSpeed),
			WindDirection:            np.WindDirection,
			PrecipitationProbability: np.ProbabilityOfPrecipitation.Value,
			Icon:                     np.Icon,
		})
	}

	return &weather.HourlyForecast{
		Periods:     periods,
		GeneratedAt: firstTime(payload.Properties.GeneratedAt, payload.Properties.UpdateTime),
	}, nil
}

type nwsAlertsResponse struct {
	Features []struct {
		Properties struct {
			ID          string `json:"id"`
			Event       string `json:"event"`
			Headline    string `json:"headline"`
			Description string `json:"description"`
			Instruction string `json:"instruction"`
			Severity    string `json:"severity"`
			Urgency     string `json:"urgency"`
			Certainty   string `json:"certainty"`
			AreaDesc    string `json:"areaDesc"`
			SenderName  string `json:"senderName"`
			Onset       string `json:"onset"`
			Effective   string `json:"effective"`
			Expires     string `json:"expires"`
			Ends        string `json:"ends"`
		} `json:"properties"`
	} `json:"features"`
}

// GetAlerts routes the alert query through the AlertRouter. Transport errors
// are returned; a payload without a usable feature list yields no alerts.
func (p *NWSProvider) GetAlerts(ctx context.Context, loc weather.Location, opts weather.AlertOptions, force bool) (*weather.WeatherAlerts, error) {
	raw, err := p.alerts.GetAlerts(ctx, loc.Latitude, loc.Longitude, opts.RadiusMiles, opts.Precise, force)
	if err != nil {
		return nil, fmt.Errorf("fetch alerts: %w", err)
	}
	return p.parseAlerts(raw), nil
}

func (p *NWSProvider) parseAlerts(raw json.RawMessage) *weather.WeatherAlerts {
	out := &weather.WeatherAlerts{Alerts: []weather.WeatherAlert{}}

	var payload nwsAlertsResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		p.logger.Warn("malformed alert payload, treating as no alerts", zap.Error(err))
		return out
	}

	for _, f := range payload.Features {
		a := f.Properties
		if a.ID == "" && a.Event == "" {
			continue
		}
		out.Alerts = append(out.Alerts, weather.WeatherAlert{
			ID:          a.ID,
			Event:       a.Event,
			Headline:    a.Headline,
			Description: a.Description,
			Instruction: a.Instruction,
			Severity:    a.Severity,
			Urgency:     a.Urgency,
			Certainty:   a.Certainty,
			AreaDesc:    a.AreaDesc,
			Sender:      a.SenderName,
			Onset:       firstTime(a.Onset, a.Effective),
			Expires:     firstTime(a.Ends, a.Expires),
		})
	}
	return out
}

type productListResponse struct {
	Graph []struct {
		ID            string `json:"id"`
		IssuanceTime  string `json:"issuanceTime"`
		IssuingOffice string `json:"issuingOffice"`
	} `json:"@graph"`
}

type productResponse struct {
	ProductText string `json:"productText"`
}

// GetDiscussion returns the most recent Area Forecast Discussion issued by the
// point's forecast office.
func (p *NWSProvider) GetDiscussion(ctx context.Context, loc weather.Location, force bool) (string, error) {
	resolved, err := p.resolver.Resolve(ctx, loc.Latitude, loc.Longitude, force)
	if err != nil {
		return "", err
	}
	if resolved.Office == "" {
		return "", apiclient.NewError(apiclient.KindNotFound, p.Name(), errors.New("point has no forecast office"))
	}

	raw, err := p.client.GetJSON(ctx, "/products/types/AFD/locations/"+resolved.Office, nil, force)
	if err != nil {
		return "", fmt.Errorf("list discussions for %s: %w", resolved.Office, err)
	}
	var list productListResponse
	if err := p.client.Decode(raw, &list); err != nil {
		return "", err
	}
	if len(list.Graph) == 0 || list.Graph[0].ID == "" {
		return "", apiclient.NewError(apiclient.KindNotFound, p.Name(), fmt.Errorf("no discussion issued by %s", resolved.Office))
	}

	raw, err = p.client.GetJSON(ctx, "/products/"+list.Graph[0].ID, nil, force)
	if err != nil {
		return "", fmt.Errorf("fetch discussion %s: %w", list.Graph[0].ID, err)
	}
	var product productResponse
	if err := p.client.Decode(raw, &product); err != nil {
		return "", err
	}
	return strings.TrimSpace(product.ProductText), nil
}

// temperature converts an NWS temperature quantity into °F and °C.
func temperature(q nwsQuantity) (f, c *float64) {
	if q.Value == nil {
		return nil, nil
	}
	v := *q.Value
	if strings.HasSuffix(q.UnitCode, "degF") {
		return weather.Float(v), weather.Float(weather.FahrenheitToCelsius(v))
	}
	return weather.Float(weather.CelsiusToFahrenheit(v)), weather.Float(v)
}

func speedMPH(q nwsQuantity) *float64 {
	if q.Value == nil {
		return nil
	}
	v := *q.Value
	switch {
	case strings.HasSuffix(q.UnitCode, "m_s-1"):
		return weather.Float(weather.MSToMPH(v))
	case strings.HasSuffix(q.UnitCode, "mi_h-1"):
		return weather.Float(v)
	case strings.HasSuffix(q.UnitCode, "kt"):
		return weather.Float(weather.KnotsToMPH(v))
	default: // km_h-1
		return weather.Float(weather.KPHToMPH(v))
	}
}

func pressureInHg(q nwsQuantity) *float64 {
	if q.Value == nil {
		return nil
	}
	if strings.HasSuffix(q.UnitCode, "hPa") {
		return weather.Float(weather.HPaToInHg(*q.Value))
	}
	return weather.Float(weather.PaToInHg(*q.Value))
}

func distanceMiles(q nwsQuantity) *float64 {
	if q.Value == nil {
		return nil
	}
	if strings.HasSuffix(q.UnitCode, "km") {
		return weather.Float(weather.MetersToMiles(*q.Value * 1000))
	}
	return weather.Float(weather.MetersToMiles(*q.Value))
}

func forecastTemperatureF(v *float64, unit string) *float64 {
	if v == nil {
		return nil
	}
	if strings.EqualFold(unit, "C") {
		return weather.Float(weather.CelsiusToFahrenheit(*v))
	}
	return weather.Float(*v)
}

var windSpeedNumber = regexp.MustCompile(`\d+(\.\d+)?`)

// parseWindSpeed reads forecast wind strings such as "10 mph", "5 to 15 mph"
// or "20 km/h" and returns the upper bound in mph.
func parseWindSpeed(s string) *float64 {
	nums := windSpeedNumber.FindAllString(s, -1)
	if len(nums) == 0 {
		return nil
	}
	var upper float64
	for _, n := range nums {
		v, err := strconv.ParseFloat(n, 64)
		if err == nil && v > upper {
			upper = v
		}
	}
	if common.ContainsAnyFold(s, "km/h", "kmh") {
		upper = weather.KPHToMPH(upper)
	}
	return weather.Float(upper)
}

// parseTime parses an RFC 3339 timestamp; empty or invalid input yields nil.
func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

func firstTime(values ...string) *time.Time {
	for _, v := range values {
		if t := parseTime(v); t != nil {
			return t
		}
	}
	return nil
}

var (
	_ weather.Provider           = (*NWSProvider)(nil)
	_ weather.DiscussionProvider = (*NWSProvider)(nil)
)
