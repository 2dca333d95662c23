package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weatherhub/internal/apiclient"
	"github.com/i474232898/weatherhub/internal/store"
	"github.com/i474232898/weatherhub/internal/weather"
)

var validate = validator.New()

// RegisterRoutes wires the HTTP handlers into the Fiber app. geo may be nil,
// in which case the geocode endpoint reports 503.
func RegisterRoutes(app *fiber.App, service *weather.Service, geo weather.GeocodingService) {
	v1 := app.Group("/api/v1")

	v1.Get("/weather", func(c *fiber.Ctx) error {
		locReq, err := parseLocationQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		data, err := service.Fetch(c.UserContext(), locReq.toLocation(), c.QueryBool("refresh", false))
		if err != nil {
			if errors.Is(err, weather.ErrNoWeatherData) {
				return fiber.NewError(fiber.StatusServiceUnavailable, "no provider returned weather data for requested location")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather data")
		}

		return c.JSON(data)
	})

	v1.Get("/weather/latest", func(c *fiber.Ctx) error {
		locReq, err := parseLocationQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		snapshot, err := service.GetLatest(locReq.toLocation())
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no weather data for requested location")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather data")
		}

		return c.JSON(snapshot)
	})

	v1.Get("/weather/history", func(c *fiber.Ctx) error {
		var req historyQuery
		if err := req.bind(c); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		loc := req.Location.toLocation()
		snapshots, err := service.GetRange(loc, req.From, req.To)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "no weather history for requested range")
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather history")
		}

		return c.JSON(fiber.Map{
			"location":  loc,
			"from":      req.From,
			"to":        req.To,
			"snapshots": snapshots,
		})
	})

	v1.Get("/weather/discussion", func(c *fiber.Ctx) error {
		locReq, err := parseLocationQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		loc := locReq.toLocation()
		text, err := service.Discussion(c.UserContext(), loc, c.QueryBool("refresh", false))
		if err != nil {
			switch {
			case errors.Is(err, weather.ErrUnsupported), errors.Is(err, apiclient.ErrNotFound):
				return fiber.NewError(fiber.StatusNotFound, "no forecast discussion for requested location")
			default:
				return fiber.NewError(fiber.StatusBadGateway, "failed to fetch forecast discussion")
			}
		}

		return c.JSON(fiber.Map{
			"location":   loc,
			"discussion": text,
		})
	})

	v1.Get("/geocode", func(c *fiber.Ctx) error {
		q := geocodeQuery{Query: c.Query("q")}
		if err := validate.Struct(q); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if geo == nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "geocoding is not configured")
		}

		lat, lon, name, found, err := geo.GeocodeAddress(c.UserContext(), q.Query)
		if err != nil {
			return fiber.NewError(fiber.StatusBadGateway, "geocoding failed")
		}
		if !found {
			return fiber.NewError(fiber.StatusNotFound, "address not found")
		}

		return c.JSON(weather.Location{Name: name, Latitude: lat, Longitude: lon})
	})
}

// locationQuery holds query parameters for identifying a location.
type locationQuery struct {
	Name string
	Lat  *float64 `validate:"required,min=-90,max=90"`
	Lon  *float64 `validate:"required,min=-180,max=180"`
}

func (l locationQuery) toLocation() weather.Location {
	return weather.Location{
		Name:      l.Name,
		Latitude:  *l.Lat,
		Longitude: *l.Lon,
	}
}

func parseLocationQuery(c *fiber.Ctx) (locationQuery, error) {
	var q locationQuery

	q.Name = c.Query("name")
	lat, err := parseCoordinate(c.Query("lat"))
	if err != nil {
		return q, errors.New("lat must be a number")
	}
	lon, err := parseCoordinate(c.Query("lon"))
	if err != nil {
		return q, errors.New("lon must be a number")
	}
	q.Lat, q.Lon = lat, lon

	if err := validate.Struct(q); err != nil {
		return q, err
	}

	return q, nil
}

// parseCoordinate returns nil for an empty string so validation reports it
// as missing.
func parseCoordinate(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

type geocodeQuery struct {
	Query string `validate:"required,max=256"`
}

// historyQuery holds query parameters for the history endpoint.
type historyQuery struct {
	Location locationQuery
	From     time.Time `validate:"required"`
	To       time.Time `validate:"required,gtefield=From"`
}

func (h *historyQuery) bind(c *fiber.Ctx) error {
	loc, err := parseLocationQuery(c)
	if err != nil {
		return err
	}
	h.Location = loc

	fromStr := c.Query("from")
	toStr := c.Query("to")
	if fromStr == "" || toStr == "" {
		return errors.New("from and to query parameters are required")
	}

	from, err := parseTime(fromStr)
	if err != nil {
		return err
	}
	to, err := parseTime(toStr)
	if err != nil {
		return err
	}

	h.From = from
	h.To = to
	return nil
}

// parseTime tries to parse either RFC3339 or Unix seconds.
func parseTime(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, errors.New("invalid time format; use RFC3339 or unix seconds")
}
