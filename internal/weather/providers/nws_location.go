package providers

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/i474232898/weatherhub/internal/apiclient"
)

// ZoneType is the most specific NWS area a point could be mapped to.
type ZoneType string

const (
	ZoneCounty   ZoneType = "county"
	ZoneForecast ZoneType = "forecast"
	ZoneFire     ZoneType = "fire"
	ZoneState    ZoneType = "state"
	ZoneUnknown  ZoneType = "unknown"
)

// ResolvedLocation is the NWS metadata for a point.
type ResolvedLocation struct {
	ForecastURL            string
	ForecastHourlyURL      string
	ForecastGridDataURL    string
	ObservationStationsURL string

	CountyZoneID   string
	ForecastZoneID string
	FireZoneID     string
	StateCode      string

	// Office is the forecast office (CWA) issuing products for the point.
	Office   string
	City     string
	TimeZone string
}

// IdentifyLocationType classifies the point by the fixed precedence
// county > forecast zone > fire zone > state > unknown.
func IdentifyLocationType(r *ResolvedLocation) (ZoneType, string) {
	switch {
	case r == nil:
		return ZoneUnknown, ""
	case r.CountyZoneID != "":
		return ZoneCounty, r.CountyZoneID
	case r.ForecastZoneID != "":
		return ZoneForecast, r.ForecastZoneID
	case r.FireZoneID != "":
		return ZoneFire, r.FireZoneID
	case r.StateCode != "":
		return ZoneState, r.StateCode
	default:
		return ZoneUnknown, ""
	}
}

type pointsResponse struct {
	Properties struct {
		Forecast            string `json:"forecast"`
		ForecastHourly      string `json:"forecastHourly"`
		ForecastGridData    string `json:"forecastGridData"`
		ObservationStations string `json:"observationStations"`
		County              string `json:"county"`
		ForecastZone        string `json:"forecastZone"`
		FireWeatherZone     string `json:"fireWeatherZone"`
		CWA                 string `json:"cwa"`
		GridID              string `json:"gridId"`
		TimeZone            string `json:"timeZone"`
		RelativeLocation    struct {
			Properties struct {
				City  string `json:"city"`
				State string `json:"state"`
			} `json:"properties"`
		} `json:"relativeLocation"`
	} `json:"properties"`
}

// LocationResolver maps coordinates to NWS metadata. Results are cached by the
// underlying client under "points/{lat},{lon}".
type LocationResolver struct {
	client *apiclient.Client
	logger *zap.Logger
}

func NewLocationResolver(client *apiclient.Client, logger *zap.Logger) *LocationResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocationResolver{client: client, logger: logger}
}

// Resolve issues a single /points request and extracts the endpoint URLs and
// zone identifiers for the point.
func (r *LocationResolver) Resolve(ctx context.Context, lat, lon float64, force bool) (*ResolvedLocation, error) {
	point := coordPair(lat, lon)
	raw, err := r.client.GetJSONWithKey(ctx, "points/"+point, "/points/"+point, nil, force)
	if err != nil {
		return nil, fmt.Errorf("resolve point %s: %w", point, err)
	}

	var payload pointsResponse
	if err := r.client.Decode(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode point %s: %w", point, err)
	}
	p := payload.Properties

	office := p.CWA
	if office == "" {
		office = p.GridID
	}

	resolved := &ResolvedLocation{
		ForecastURL:            p.Forecast,
		ForecastHourlyURL:      p.ForecastHourly,
		ForecastGridDataURL:    p.ForecastGridData,
		ObservationStationsURL: p.ObservationStations,
		CountyZoneID:           segmentAfter(p.County, "/county/"),
		ForecastZoneID:         segmentAfter(p.ForecastZone, "/forecast/"),
		FireZoneID:             segmentAfter(p.FireWeatherZone, "/fire/"),
		StateCode:              strings.ToUpper(strings.TrimSpace(p.RelativeLocation.Properties.State)),
		Office:                 office,
		City:                   p.RelativeLocation.Properties.City,
		TimeZone:               p.TimeZone,
	}

	zt, id := IdentifyLocationType(resolved)
	r.logger.Debug("resolved nws point",
		zap.String("point", point), zap.String("zone_type", string(zt)), zap.String("zone_id", id))
	return resolved, nil
}

// segmentAfter returns the path segment following marker in u, or "".
func segmentAfter(u, marker string) string {
	i := strings.Index(u, marker)
	if i < 0 {
		return ""
	}
	rest := u[i+len(marker):]
	if j := strings.IndexAny(rest, "/?#"); j >= 0 {
		rest = rest[:j]
	}
	return rest
}

// coordPair formats a point the way api.weather.gov expects: at most four
// decimals, no trailing zeros.
func coordPair(lat, lon float64) string {
	return formatCoord(lat) + "," + formatCoord(lon)
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(math.Round(v*1e4)/1e4, 'f', -1, 64)
}
