package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/i474232898/weatherhub/internal/config"
	"github.com/i474232898/weatherhub/internal/geocode"
	"github.com/i474232898/weatherhub/internal/logging"
	"github.com/i474232898/weatherhub/internal/weather"
)

type fetchOptions struct {
	lat, lon   float64
	address    string
	name       string
	refresh    bool
	asJSON     bool
	discussion bool
	hours      int
	timeout    time.Duration
}

func newFetchCmd() *cobra.Command {
	var opts fetchOptions

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch aggregated weather for one location and print it",
		Example: `  weatherhub fetch --lat 39.9643 --lon -74.8099
  weatherhub fetch --address "Lumberton, NJ" --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.address == "" && (!cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lon")) {
				return errors.New("either --address or both --lat and --lon are required")
			}
			return runFetch(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	f := cmd.Flags()
	f.Float64Var(&opts.lat, "lat", 0, "latitude")
	f.Float64Var(&opts.lon, "lon", 0, "longitude")
	f.StringVar(&opts.address, "address", "", "free-text address, resolved with the geocoding API")
	f.StringVar(&opts.name, "name", "", "display name for the location")
	f.BoolVar(&opts.refresh, "refresh", false, "bypass provider caches")
	f.BoolVar(&opts.asJSON, "json", false, "print the full result as JSON")
	f.BoolVar(&opts.discussion, "discussion", false, "also print the forecast discussion (US only)")
	f.IntVar(&opts.hours, "hours", 6, "number of hourly periods to print")
	f.DurationVar(&opts.timeout, "timeout", time.Minute, "overall deadline")
	cmd.MarkFlagsMutuallyExclusive("address", "lat")
	cmd.MarkFlagsMutuallyExclusive("address", "lon")

	return cmd
}

func runFetch(ctx context.Context, out io.Writer, opts fetchOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logging.NewConsole(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	loc := weather.Location{Name: opts.name, Latitude: opts.lat, Longitude: opts.lon}
	if opts.address != "" {
		lat, lon, name, found, err := geocode.New(cfg.GoogleGeocodingAPIKey, log).GeocodeAddress(ctx, opts.address)
		if err != nil {
			return fmt.Errorf("geocode %q: %w", opts.address, err)
		}
		if !found {
			return fmt.Errorf("address %q not found", opts.address)
		}
		loc = weather.Location{Name: name, Latitude: lat, Longitude: lon}
	}

	client := buildWeatherClient(cfg, log)
	data, err := client.GetWeatherData(ctx, loc, opts.refresh)
	if err != nil {
		return err
	}

	var discussion string
	if opts.discussion {
		discussion, err = client.GetForecastDiscussion(ctx, loc, opts.refresh)
		if err != nil {
			log.Warn("forecast discussion unavailable", zap.Error(err))
		}
	}

	if opts.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	printSummary(out, data, opts.hours)
	if discussion != "" {
		fmt.Fprintf(out, "\nForecast discussion\n%s\n", discussion)
	}
	return nil
}

var titleCase = cases.Title(language.English)

func printSummary(out io.Writer, data *weather.WeatherData, hours int) {
	name := data.Location.Name
	if name == "" {
		name = data.Location.Key()
	}
	fmt.Fprintf(out, "%s (updated %s)\n", name, data.LastUpdated.Format(time.RFC1123))

	if c := data.Current; c != nil {
		fmt.Fprintf(out, "\nNow [%s]: %s", data.Sources[weather.FieldCurrent], titleCase.String(c.Condition))
		if c.TemperatureF != nil {
			fmt.Fprintf(out, ", %.0f°F", *c.TemperatureF)
			if c.TemperatureC != nil {
				fmt.Fprintf(out, " (%.0f°C)", *c.TemperatureC)
			}
		}
		if c.WindSpeedMPH != nil {
			fmt.Fprintf(out, ", wind %s %.0f mph", c.WindCardinal, *c.WindSpeedMPH)
		}
		if c.Humidity != nil {
			fmt.Fprintf(out, ", humidity %.0f%%", *c.Humidity)
		}
		fmt.Fprintln(out)
	} else {
		fmt.Fprintln(out, "\nNow: unavailable")
	}

	if data.Forecast.HasData() {
		fmt.Fprintf(out, "\nForecast [%s]\n", data.Sources[weather.FieldForecast])
		for _, p := range data.Forecast.Periods {
			fmt.Fprintf(out, "  %-16s %-6s %s\n", p.Name, formatTemp(p.TemperatureF), titleCase.String(p.ShortForecast))
		}
	}

	if data.HourlyForecast.HasData() {
		fmt.Fprintf(out, "\nNext hours [%s]\n", data.Sources[weather.FieldHourly])
		for _, h := range data.HourlyForecast.Next(hours) {
			when := "?"
			if h.StartTime != nil {
				when = h.StartTime.Format("Mon 15:04")
			}
			fmt.Fprintf(out, "  %-10s %-6s %s\n", when, formatTemp(h.TemperatureF), titleCase.String(h.Condition))
		}
	}

	active := data.Alerts.Active(time.Now())
	fmt.Fprintf(out, "\nAlerts: %d active\n", len(active))
	for _, a := range active {
		fmt.Fprintf(out, "  %s: %s\n", a.Event, a.Headline)
	}
}

func formatTemp(f *float64) string {
	if f == nil {
		return "--"
	}
	return fmt.Sprintf("%.0f°F", *f)
}
