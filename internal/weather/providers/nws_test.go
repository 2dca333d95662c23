package providers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/i474232898/weatherhub/internal/apiclient"
	"github.com/i474232898/weatherhub/internal/weather"
)

var lumberton = weather.Location{Name: "Lumberton, NJ", Latitude: 39.9643, Longitude: -74.8099}

// nwsServer is a fake api.weather.gov serving one point in Burlington County, NJ.
type nwsServer struct {
	*httptest.Server

	mu      sync.Mutex
	hits    map[string]int
	queries map[string]string

	// Overrides; a zero value keeps the default fixture.
	downStatus   int
	pointsStatus int
	points       func(base string) string
	stations     string
	alerts       map[string]string
}

func newNWSServer(t *testing.T) *nwsServer {
	t.Helper()
	s := &nwsServer{hits: map[string]int{}, queries: map[string]string{}, alerts: map[string]string{}}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

func (s *nwsServer) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *nwsServer) query(path string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries[path]
}

func (s *nwsServer) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.hits[r.URL.Path]++
	s.queries[r.URL.Path] = r.URL.RawQuery
	s.mu.Unlock()

	if s.downStatus != 0 {
		w.WriteHeader(s.downStatus)
		return
	}
	if !strings.HasPrefix(r.Header.Get("User-Agent"), "weatherhub-test (") {
		http.Error(w, `{"title":"missing user agent"}`, http.StatusForbidden)
		return
	}

	base := s.URL
	w.Header().Set("Content-Type", "application/geo+json")
	switch p := r.URL.Path; {
	case p == "/points/39.9643,-74.8099":
		if s.pointsStatus != 0 {
			w.WriteHeader(s.pointsStatus)
			fmt.Fprint(w, `{"title":"unavailable"}`)
			return
		}
		if s.points != nil {
			fmt.Fprint(w, s.points(base))
			return
		}
		fmt.Fprint(w, defaultPoints(base))
	case p == "/gridpoints/PHI/50,60/stations":
		if s.stations != "" {
			fmt.Fprint(w, s.stations)
			return
		}
		fmt.Fprint(w, `{"features":[{"properties":{"stationIdentifier":"KVAY","name":"South Jersey Regional Airport"}},
			{"properties":{"stationIdentifier":"KPHL","name":"Philadelphia International"}}]}`)
	case p == "/stations/KVAY/observations/latest":
		fmt.Fprint(w, observationFixture)
	case p == "/gridpoints/PHI/50,60/forecast":
		fmt.Fprint(w, forecastFixture)
	case p == "/gridpoints/PHI/50,60/forecast/hourly":
		fmt.Fprint(w, hourlyFixture)
	case strings.HasPrefix(p, "/alerts/active"):
		if body, ok := s.alerts[p]; ok {
			fmt.Fprint(w, body)
			return
		}
		fmt.Fprint(w, `{"type":"FeatureCollection","features":[]}`)
	case p == "/products/types/AFD/locations/PHI":
		fmt.Fprint(w, `{"@graph":[{"id":"afd-2","issuingOffice":"KPHI"},{"id":"afd-1","issuingOffice":"KPHI"}]}`)
	case p == "/products/afd-2":
		fmt.Fprint(w, `{"id":"afd-2","productText":"\n000\nFXUS61 KPHI 151400\nAREA FORECAST DISCUSSION\n"}`)
	default:
		http.NotFound(w, r)
	}
}

func defaultPoints(base string) string {
	return fmt.Sprintf(`{"properties":{
		"forecast":"%[1]s/gridpoints/PHI/50,60/forecast",
		"forecastHourly":"%[1]s/gridpoints/PHI/50,60/forecast/hourly",
		"forecastGridData":"%[1]s/gridpoints/PHI/50,60",
		"observationStations":"%[1]s/gridpoints/PHI/50,60/stations",
		"county":"https://api.weather.gov/zones/county/NJC005",
		"forecastZone":"https://api.weather.gov/zones/forecast/NJZ017",
		"fireWeatherZone":"https://api.weather.gov/zones/fire/NJZ017",
		"cwa":"PHI","gridId":"PHI","timeZone":"America/New_York",
		"relativeLocation":{"properties":{"city":"Lumberton","state":"NJ"}}}}`, base)
}

const observationFixture = `{"properties":{
	"timestamp":"2025-01-15T14:54:00+00:00",
	"textDescription":"Mostly Cloudy",
	"icon":"https://api.weather.gov/icons/land/day/bkn?size=medium",
	"temperature":{"unitCode":"wmoUnit:degC","value":5},
	"dewpoint":{"unitCode":"wmoUnit:degC","value":-1},
	"windDirection":{"unitCode":"wmoUnit:degree_(angle)","value":270},
	"windSpeed":{"unitCode":"wmoUnit:km_h-1","value":16.09344},
	"windGust":{"unitCode":"wmoUnit:km_h-1","value":null},
	"barometricPressure":{"unitCode":"wmoUnit:Pa","value":101325},
	"seaLevelPressure":{"unitCode":"wmoUnit:Pa","value":101400},
	"visibility":{"unitCode":"wmoUnit:m","value":16093.44},
	"relativeHumidity":{"unitCode":"wmoUnit:percent","value":65.2},
	"heatIndex":{"unitCode":"wmoUnit:degC","value":null},
	"windChill":{"unitCode":"wmoUnit:degC","value":2.5}}}`

const forecastFixture = `{"properties":{
	"generatedAt":"2025-01-15T14:00:00+00:00",
	"periods":[
		{"number":1,"name":"This Afternoon","startTime":"2025-01-15T14:00:00-05:00","endTime":"2025-01-15T18:00:00-05:00",
		 "isDaytime":true,"temperature":41,"temperatureUnit":"F","windSpeed":"5 to 10 mph","windDirection":"W",
		 "shortForecast":"Partly Sunny","detailedForecast":"Partly sunny, with a high near 41.",
		 "probabilityOfPrecipitation":{"unitCode":"wmoUnit:percent","value":20}},
		{"number":2,"name":"Tonight","startTime":"2025-01-15T18:00:00-05:00","endTime":"2025-01-16T06:00:00-05:00",
		 "isDaytime":false,"temperature":28,"temperatureUnit":"F","windSpeed":"5 mph","windDirection":"NW",
		 "shortForecast":"Mostly Cloudy","detailedForecast":"Mostly cloudy, with a low around 28.",
		 "probabilityOfPrecipitation":{"unitCode":"wmoUnit:percent","value":null}}]}}`

const hourlyFixture = `{"properties":{
	"generatedAt":"2025-01-15T14:00:00+00:00",
	"periods":[
		{"number":1,"startTime":"2025-01-15T10:00:00-05:00","endTime":"2025-01-15T11:00:00-05:00",
		 "isDaytime":true,"temperature":40,"temperatureUnit":"F","windSpeed":"10 mph","windDirection":"W",
		 "shortForecast":"Cloudy","probabilityOfPrecipitation":{"unitCode":"wmoUnit:percent","value":5},
		 "dewpoint":{"unitCode":"wmoUnit:degC","value":-1},"relativeHumidity":{"unitCode":"wmoUnit:percent","value":68}},
		{"number":2,"startTime":"2025-01-15T11:00:00-05:00","endTime":"2025-01-15T12:00:00-05:00",
		 "isDaytime":true,"temperature":5,"temperatureUnit":"C","windSpeed":"16 km/h","windDirection":"WNW",
		 "shortForecast":"Partly Sunny","probabilityOfPrecipitation":{"unitCode":"wmoUnit:percent","value":0},
		 "dewpoint":{"unitCode":"wmoUnit:degC","value":null},"relativeHumidity":{"unitCode":"wmoUnit:percent","value":60}}]}}`

const zoneAlertFixture = `{"type":"FeatureCollection","features":[{"properties":{
	"id":"urn:oid:2.49.0.1.840.0.abc","event":"Winter Weather Advisory",
	"headline":"Winter Weather Advisory issued January 15 by NWS Mount Holly NJ",
	"description":"Mixed precipitation expected.","instruction":"Slow down and use caution while traveling.",
	"severity":"Moderate","urgency":"Expected","certainty":"Likely","areaDesc":"Burlington; Camden",
	"senderName":"NWS Mount Holly NJ","onset":"2025-01-15T18:00:00-05:00","effective":"2025-01-15T09:00:00-05:00",
	"expires":"2025-01-16T06:00:00-05:00","ends":null}}]}`

func newTestNWS(base string) *NWSProvider {
	return NewNWSProvider(NWSConfig{
		BaseURL:      base,
		AppName:      "weatherhub-test",
		Contact:      "ops@example.com",
		CacheEnabled: true,
		CacheTTL:     time.Minute,
		MaxRetries:   1,
		InitialWait:  time.Millisecond,
	})
}

func near(t *testing.T, name string, got *float64, want, eps float64) {
	t.Helper()
	if got == nil {
		t.Errorf("%s: got nil, want %v", name, want)
		return
	}
	if math.Abs(*got-want) > eps {
		t.Errorf("%s = %v, want %v", name, *got, want)
	}
}

func TestNWSCurrentConditionsConvertsSIUnits(t *testing.T) {
	srv := newNWSServer(t)
	p := newTestNWS(srv.URL)

	cur, err := p.GetCurrentConditions(context.Background(), lumberton, false)
	if err != nil {
		t.Fatalf("GetCurrentConditions: %v", err)
	}

	near(t, "TemperatureF", cur.TemperatureF, 41, 1e-9)
	near(t, "TemperatureC", cur.TemperatureC, 5, 1e-9)
	near(t, "DewpointF", cur.DewpointF, 30.2, 1e-9)
	near(t, "FeelsLikeF", cur.FeelsLikeF, 36.5, 1e-9)
	near(t, "WindSpeedMPH", cur.WindSpeedMPH, 10, 1e-9)
	near(t, "PressureIn", cur.PressureIn, 29.92, 1e-2)
	near(t, "VisibilityMiles", cur.VisibilityMiles, 10, 1e-9)
	near(t, "Humidity", cur.Humidity, 65.2, 1e-9)
	near(t, "WindDirectionDeg", cur.WindDirectionDeg, 270, 0)
	if cur.WindGustMPH != nil {
		t.Errorf("null gust must stay absent, got %v", *cur.WindGustMPH)
	}
	if cur.Station != "KVAY" || cur.Condition != "Mostly Cloudy" {
		t.Errorf("unexpected station/condition: %q %q", cur.Station, cur.Condition)
	}
	if cur.ObservedAt == nil || !cur.ObservedAt.Equal(time.Date(2025, 1, 15, 14, 54, 0, 0, time.UTC)) {
		t.Errorf("unexpected ObservedAt %v", cur.ObservedAt)
	}
	if srv.hitCount("/stations/KPHL/observations/latest") != 0 {
		t.Errorf("only the first listed station should be queried")
	}
}

func TestNWSCurrentConditionsWithoutStations(t *testing.T) {
	srv := newNWSServer(t)
	srv.stations = `{"features":[]}`
	p := newTestNWS(srv.URL)

	_, err := p.GetCurrentConditions(context.Background(), lumberton, false)
	if !errors.Is(err, apiclient.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNWSForecast(t *testing.T) {
	srv := newNWSServer(t)
	p := newTestNWS(srv.URL)

	fc, err := p.GetForecast(context.Background(), lumberton, false)
	if err != nil {
		t.Fatalf("GetForecast: %v", err)
	}
	if len(fc.Periods) != 2 {
		t.Fatalf("expected 2 periods, got %d", len(fc.Periods))
	}
	first := fc.Periods[0]
	if first.Name != "This Afternoon" || first.IsDaytime == nil || !*first.IsDaytime {
		t.Errorf("unexpected first period %+v", first)
	}
	near(t, "TemperatureF", first.TemperatureF, 41, 0)
	near(t, "WindSpeedMPH", first.WindSpeedMPH, 10, 0)
	near(t, "PrecipitationProbability", first.PrecipitationProbability, 20, 0)
	if fc.Periods[1].PrecipitationProbability != nil {
		t.Errorf("null probability must stay absent")
	}
	if fc.GeneratedAt == nil {
		t.Errorf("expected GeneratedAt")
	}

	// The points lookup is shared with the second call through the cache.
	if _, err := p.GetHourlyForecast(context.Background(), lumberton, false); err != nil {
		t.Fatalf("GetHourlyForecast: %v", err)
	}
	if got := srv.hitCount("/points/39.9643,-74.8099"); got != 1 {
		t.Errorf("expected one points request, got %d", got)
	}
}

func TestNWSHourlyForecastUnits(t *testing.T) {
	srv := newNWSServer(t)
	p := newTestNWS(srv.URL)

	h, err := p.GetHourlyForecast(context.Background(), lumberton, false)
	if err != nil {
		t.Fatalf("GetHourlyForecast: %v", err)
	}
	if len(h.Periods) != 2 {
		t.Fatalf("expected 2 periods, got %d", len(h.Periods))
	}
	near(t, "DewpointF", h.Periods[0].DewpointF, 30.2, 1e-9)
	near(t, "Humidity", h.Periods[0].Humidity, 68, 0)
	near(t, "second TemperatureF", h.Periods[1].TemperatureF, 41, 1e-9)
	near(t, "second WindSpeedMPH", h.Periods[1].WindSpeedMPH, 16/1.609344, 1e-9)
	if h.Periods[1].DewpointF != nil {
		t.Errorf("null dewpoint must stay absent")
	}
}

func TestNWSAlertsByZone(t *testing.T) {
	srv := newNWSServer(t)
	srv.alerts["/alerts/active/zone/NJC005"] = zoneAlertFixture
	p := newTestNWS(srv.URL)

	alerts, err := p.GetAlerts(context.Background(), lumberton, weather.AlertOptions{Precise: false, RadiusMiles: 25}, false)
	if err != nil {
		t.Fatalf("GetAlerts: %v", err)
	}
	if len(alerts.Alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts.Alerts))
	}
	a := alerts.Alerts[0]
	if a.Event != "Winter Weather Advisory" || a.Sender != "NWS Mount Holly NJ" || a.Severity != "Moderate" {
		t.Errorf("unexpected alert %+v", a)
	}
	if a.Expires == nil || !a.Expires.Equal(time.Date(2025, 1, 16, 11, 0, 0, 0, time.UTC)) {
		t.Errorf("expires must fall back to the expires field, got %v", a.Expires)
	}
	if a.Onset == nil || !a.Onset.Equal(time.Date(2025, 1, 15, 23, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected onset %v", a.Onset)
	}
}

func TestNWSAlertsPreciseUsesPointQuery(t *testing.T) {
	srv := newNWSServer(t)
	srv.alerts["/alerts/active"] = zoneAlertFixture
	p := newTestNWS(srv.URL)

	alerts, err := p.GetAlerts(context.Background(), lumberton, weather.AlertOptions{Precise: true}, false)
	if err != nil {
		t.Fatalf("GetAlerts: %v", err)
	}
	if len(alerts.Alerts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(alerts.Alerts))
	}
	if got := srv.query("/alerts/active"); got != "point=39.9643%2C-74.8099" {
		t.Errorf("unexpected point query %q", got)
	}
	if srv.hitCount("/alerts/active/zone/NJC005") != 0 {
		t.Errorf("precise alerts must not use the zone endpoint")
	}
	if srv.hitCount("/points/39.9643,-74.8099") != 0 {
		t.Errorf("precise alerts do not need point resolution")
	}
}

func TestNWSAlertsMalformedPayload(t *testing.T) {
	for name, body := range map[string]string{
		"features not a list": `{"features":"oops"}`,
		"features missing":    `{"type":"FeatureCollection"}`,
		"empty feature":       `{"features":[{"properties":{}}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := newNWSServer(t)
			srv.alerts["/alerts/active/zone/NJC005"] = body
			p := newTestNWS(srv.URL)

			alerts, err := p.GetAlerts(context.Background(), lumberton, weather.AlertOptions{}, false)
			if err != nil {
				t.Fatalf("malformed payload must not be an error: %v", err)
			}
			if alerts == nil || alerts.Alerts == nil || len(alerts.Alerts) != 0 {
				t.Fatalf("expected empty alert list, got %+v", alerts)
			}
		})
	}
}

func TestNWSDiscussion(t *testing.T) {
	srv := newNWSServer(t)
	p := newTestNWS(srv.URL)

	text, err := p.GetDiscussion(context.Background(), lumberton, false)
	if err != nil {
		t.Fatalf("GetDiscussion: %v", err)
	}
	if !strings.Contains(text, "AREA FORECAST DISCUSSION") || strings.HasPrefix(text, "\n") {
		t.Fatalf("unexpected discussion %q", text)
	}
	if srv.hitCount("/products/afd-1") != 0 {
		t.Errorf("only the latest product should be fetched")
	}
}

func TestNWSPointOutsideCoverage(t *testing.T) {
	srv := newNWSServer(t)
	p := newTestNWS(srv.URL)

	_, err := p.GetForecast(context.Background(), weather.Location{Latitude: 48.8566, Longitude: 2.3522}, false)
	if !errors.Is(err, apiclient.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestParseWindSpeed(t *testing.T) {
	cases := map[string]float64{
		"10 mph":        10,
		"5 to 15 mph":   15,
		"15 to 5 mph":   15,
		"0 mph":         0,
		"20 km/h":       20 / 1.609344,
		"10 to 20 km/h": 20 / 1.609344,
	}
	for in, want := range cases {
		got := parseWindSpeed(in)
		if got == nil || math.Abs(*got-want) > 1e-9 {
			t.Errorf("parseWindSpeed(%q) = %v, want %v", in, got, want)
		}
	}
	if parseWindSpeed("calm") != nil || parseWindSpeed("") != nil {
		t.Errorf("strings without numbers must yield nil")
	}
}
