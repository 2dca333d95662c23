package weather

import (
	"fmt"
	"time"
)

// Location is a named geographic point. It is treated as an immutable value.
type Location struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Key returns a canonical string key for indexing this location in stores.
func (l Location) Key() string {
	return fmt.Sprintf("%.4f,%.4f", l.Latitude, l.Longitude)
}

// CurrentConditions is the latest observation for a location. Every numeric
// field is optional; nil means the provider did not report it.
type CurrentConditions struct {
	TemperatureF *float64 `json:"temperatureF,omitempty"`
	TemperatureC *float64 `json:"temperatureC,omitempty"`
	FeelsLikeF   *float64 `json:"feelsLikeF,omitempty"`
	FeelsLikeC   *float64 `json:"feelsLikeC,omitempty"`
	DewpointF    *float64 `json:"dewpointF,omitempty"`
	DewpointC    *float64 `json:"dewpointC,omitempty"`
	Humidity     *float64 `json:"humidityPercent,omitempty"`

	WindSpeedMPH     *float64 `json:"windSpeedMph,omitempty"`
	WindSpeedKPH     *float64 `json:"windSpeedKph,omitempty"`
	WindGustMPH      *float64 `json:"windGustMph,omitempty"`
	WindDirectionDeg *float64 `json:"windDirectionDeg,omitempty"`
	WindCardinal     string   `json:"windCardinal,omitempty"`

	PressureIn      *float64 `json:"pressureIn,omitempty"`
	PressureMB      *float64 `json:"pressureMb,omitempty"`
	VisibilityMiles *float64 `json:"visibilityMiles,omitempty"`
	UVIndex         *float64 `json:"uvIndex,omitempty"`

	Condition string `json:"condition,omitempty"`
	Icon      string `json:"icon,omitempty"`
	Station   string `json:"station,omitempty"`

	Sunrise    *time.Time `json:"sunrise,omitempty"`
	Sunset     *time.Time `json:"sunset,omitempty"`
	ObservedAt *time.Time `json:"observedAt,omitempty"`
}

// ForecastPeriod is one named period (day, night or calendar day) of a forecast.
type ForecastPeriod struct {
	Name      string     `json:"name"`
	StartTime *time.Time `json:"startTime,omitempty"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	IsDaytime *bool      `json:"isDaytime,omitempty"`

	TemperatureF    *float64 `json:"temperatureF,omitempty"`
	TemperatureLowF *float64 `json:"temperatureLowF,omitempty"`

	ShortForecast    string `json:"shortForecast,omitempty"`
	DetailedForecast string `json:"detailedForecast,omitempty"`

	WindSpeedMPH             *float64 `json:"windSpeedMph,omitempty"`
	WindDirection            string   `json:"windDirection,omitempty"`
	PrecipitationProbability *float64 `json:"precipitationProbability,omitempty"`
	Icon                     string   `json:"icon,omitempty"`
}

// Forecast is an ordered list of forecast periods.
type Forecast struct {
	Periods     []ForecastPeriod `json:"periods"`
	GeneratedAt *time.Time       `json:"generatedAt,omitempty"`
}

// HasData reports whether the forecast carries any period.
func (f *Forecast) HasData() bool {
	return f != nil && len(f.Periods) > 0
}

// HourlyForecastPeriod is a single hour of an hourly forecast.
type HourlyForecastPeriod struct {
	StartTime *time.Time `json:"startTime,omitempty"`
	EndTime   *time.Time `json:"endTime,omitempty"`

	TemperatureF *float64 `json:"temperatureF,omitempty"`
	DewpointF    *float64 `json:"dewpointF,omitempty"`
	Humidity     *float64 `json:"humidityPercent,omitempty"`
	Condition    string   `json:"condition,omitempty"`

	WindSpeedMPH             *float64 `json:"windSpeedMph,omitempty"`
	WindDirection            string   `json:"windDirection,omitempty"`
	PrecipitationProbability *float64 `json:"precipitationProbability,omitempty"`
	PressureIn               *float64 `json:"pressureIn,omitempty"`
	Icon                     string   `json:"icon,omitempty"`
}

// HourlyForecast is an ordered list of hourly periods.
type HourlyForecast struct {
	Periods     []HourlyForecastPeriod `json:"periods"`
	GeneratedAt *time.Time             `json:"generatedAt,omitempty"`
}

// HasData reports whether the hourly forecast carries any period.
func (h *HourlyForecast) HasData() bool {
	return h != nil && len(h.Periods) > 0
}

// Next returns at most n periods starting with the first one.
func (h *HourlyForecast) Next(n int) []HourlyForecastPeriod {
	if h == nil || n <= 0 {
		return nil
	}
	if n > len(h.Periods) {
		n = len(h.Periods)
	}
	return h.Periods[:n]
}

// WeatherAlert is a single watch, warning or advisory.
type WeatherAlert struct {
	ID          string     `json:"id"`
	Event       string     `json:"event,omitempty"`
	Headline    string     `json:"headline,omitempty"`
	Description string     `json:"description,omitempty"`
	Instruction string     `json:"instruction,omitempty"`
	Severity    string     `json:"severity,omitempty"`
	Urgency     string     `json:"urgency,omitempty"`
	Certainty   string     `json:"certainty,omitempty"`
	AreaDesc    string     `json:"areaDesc,omitempty"`
	Sender      string     `json:"sender,omitempty"`
	Onset       *time.Time `json:"onset,omitempty"`
	Expires     *time.Time `json:"expires,omitempty"`
}

// WeatherAlerts is the alert list for a location. An empty list is a valid
// answer, not a failure.
type WeatherAlerts struct {
	Alerts []WeatherAlert `json:"alerts"`
}

// HasAlerts reports whether any alert is present.
func (a *WeatherAlerts) HasAlerts() bool {
	return a != nil && len(a.Alerts) > 0
}

// Active returns alerts that have not expired at now. Alerts without an
// expiry are considered active.
func (a *WeatherAlerts) Active(now time.Time) []WeatherAlert {
	if a == nil {
		return nil
	}
	var out []WeatherAlert
	for _, alert := range a.Alerts {
		if alert.Expires == nil || alert.Expires.After(now) {
			out = append(out, alert)
		}
	}
	return out
}

// WeatherData is the normalized result of one top-level fetch. It is built
// once and never mutated afterwards. Forecast, HourlyForecast and Alerts are
// always non-nil; Current is nil when no provider could supply it.
type WeatherData struct {
	Location       Location           `json:"location"`
	Current        *CurrentConditions `json:"current,omitempty"`
	Forecast       *Forecast          `json:"forecast"`
	HourlyForecast *HourlyForecast    `json:"hourlyForecast"`
	Alerts         *WeatherAlerts     `json:"alerts"`

	// Sources maps each populated field to the provider that supplied it.
	Sources     map[string]string `json:"sources,omitempty"`
	LastUpdated time.Time         `json:"lastUpdated"` // always UTC
}

// HasAnyData reports whether at least one of current, forecast or hourly
// forecast was populated.
func (d *WeatherData) HasAnyData() bool {
	return d.Current != nil || d.Forecast.HasData() || d.HourlyForecast.HasData()
}

// Float returns a pointer to v. Providers use it to populate optional fields.
func Float(v float64) *float64 {
	return &v
}

// Time returns a pointer to t, or nil for the zero time.
func Time(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
