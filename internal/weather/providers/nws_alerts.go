package providers

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/i474232898/weatherhub/internal/apiclient"
)

// AlertQueryKind identifies which NWS alert endpoint a query uses.
type AlertQueryKind string

const (
	AlertQueryPoint       AlertQueryKind = "point"
	AlertQueryZone        AlertQueryKind = "zone"
	AlertQueryState       AlertQueryKind = "state"
	AlertQueryPointRadius AlertQueryKind = "point_radius"
	AlertQueryAll         AlertQueryKind = "all"
)

// AlertQuery is a fully specified alert request. Every kind uses its own
// cache key namespace so results never overwrite each other.
type AlertQuery struct {
	Kind     AlertQueryKind
	Endpoint string
	Params   url.Values
	CacheKey string
}

// SelectAlertQuery picks the alert query for a point. First match wins:
//  1. precise: alerts for the exact point
//  2. county, forecast or fire zone: alerts for that zone
//  3. state: alerts for the state area
//  4. unknown zone: point and radius search
//  5. resolution failed (resolved == nil): all active alerts
func SelectAlertQuery(lat, lon, radiusMiles float64, precise bool, resolved *ResolvedLocation) AlertQuery {
	point := coordPair(lat, lon)

	if precise {
		return AlertQuery{
			Kind:     AlertQueryPoint,
			Endpoint: "/alerts/active",
			Params:   url.Values{"point": {point}},
			CacheKey: "alerts/point/" + point,
		}
	}

	if resolved == nil {
		return AlertQuery{
			Kind:     AlertQueryAll,
			Endpoint: "/alerts/active",
			CacheKey: "alerts/all",
		}
	}

	switch zt, id := IdentifyLocationType(resolved); zt {
	case ZoneCounty, ZoneForecast, ZoneFire:
		return AlertQuery{
			Kind:     AlertQueryZone,
			Endpoint: "/alerts/active/zone/" + id,
			CacheKey: "alerts/zone/" + id,
		}
	case ZoneState:
		return AlertQuery{
			Kind:     AlertQueryState,
			Endpoint: "/alerts/active/area/" + id,
			CacheKey: "alerts/area/" + id,
		}
	default:
		// api.weather.gov has no radius filter; the radius only scopes the cache entry.
		radius := strconv.FormatFloat(radiusMiles, 'f', -1, 64)
		return AlertQuery{
			Kind:     AlertQueryPointRadius,
			Endpoint: "/alerts/active",
			Params:   url.Values{"point": {point}},
			CacheKey: "alerts/radius/" + point + "/" + radius,
		}
	}
}

// AlertRouter resolves a point and issues the alert query chosen by
// SelectAlertQuery.
type AlertRouter struct {
	client   *apiclient.Client
	resolver *LocationResolver
	logger   *zap.Logger
}

func NewAlertRouter(client *apiclient.Client, resolver *LocationResolver, logger *zap.Logger) *AlertRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertRouter{client: client, resolver: resolver, logger: logger}
}

// GetAlerts returns the raw GeoJSON alert collection for the point. A point
// that cannot be resolved falls through to the unfiltered active alert list.
func (a *AlertRouter) GetAlerts(ctx context.Context, lat, lon, radiusMiles float64, precise, force bool) (json.RawMessage, error) {
	var resolved *ResolvedLocation
	if !precise {
		r, err := a.resolver.Resolve(ctx, lat, lon, force)
		if err != nil {
			a.logger.Warn("alert zone resolution failed, querying all active alerts", zap.Error(err))
		} else {
			resolved = r
		}
	}

	q := SelectAlertQuery(lat, lon, radiusMiles, precise, resolved)
	a.logger.Debug("alert query selected", zap.String("kind", string(q.Kind)), zap.String("endpoint", q.Endpoint))
	return a.client.GetJSONWithKey(ctx, q.CacheKey, q.Endpoint, q.Params, force)
}
