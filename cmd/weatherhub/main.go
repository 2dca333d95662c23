package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/i474232898/weatherhub/internal/config"
	"github.com/i474232898/weatherhub/internal/weather"
	"github.com/i474232898/weatherhub/internal/weather/providers"
)

const serviceName = "weatherhub"

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Multi-provider weather aggregation service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newFetchCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// buildWeatherClient constructs every configured provider and the aggregating
// client. Visual Crossing is only added when an API key is configured.
func buildWeatherClient(cfg *config.AppConfig, logger *zap.Logger) *weather.WeatherClient {
	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	provs := []weather.Provider{
		providers.NewNWSProvider(providers.NWSConfig{
			AppName:            cfg.NWSAppName,
			Contact:            cfg.NWSContact,
			HTTPClient:         httpClient,
			CacheEnabled:       cfg.CacheEnabled,
			CacheTTL:           cfg.CacheTTL,
			MinRequestInterval: cfg.NWSMinRequestInterval,
			MaxRetries:         cfg.MaxRetries,
			InitialWait:        cfg.RetryInitialWait,
			Backoff:            cfg.RetryBackoff,
			Logger:             logger,
		}),
		providers.NewOpenMeteoProvider(providers.OpenMeteoConfig{
			Units: providers.OpenMeteoUnits{
				Temperature:   cfg.TemperatureUnit,
				WindSpeed:     cfg.WindSpeedUnit,
				Precipitation: cfg.PrecipitationUnit,
			},
			HTTPClient:         httpClient,
			CacheEnabled:       cfg.CacheEnabled,
			CacheTTL:           cfg.CacheTTL,
			MinRequestInterval: cfg.OpenMeteoMinRequestInterval,
			MaxRetries:         cfg.MaxRetries,
			InitialWait:        cfg.RetryInitialWait,
			Backoff:            cfg.RetryBackoff,
			Logger:             logger,
		}),
	}

	vc, err := providers.NewVisualCrossingProvider(providers.VisualCrossingConfig{
		APIKey:             cfg.VisualCrossingAPIKey,
		HTTPClient:         httpClient,
		CacheEnabled:       cfg.CacheEnabled,
		CacheTTL:           cfg.CacheTTL,
		MinRequestInterval: cfg.VCMinRequestInterval,
		MaxRetries:         cfg.MaxRetries,
		InitialWait:        cfg.RetryInitialWait,
		Backoff:            cfg.RetryBackoff,
		Logger:             logger,
	})
	if err != nil {
		logger.Info("visual crossing provider disabled", zap.Error(err))
	} else {
		provs = append(provs, vc)
	}

	return weather.NewWeatherClient(provs, weather.Options{
		DataSource: cfg.DataSource,
		Alerts: weather.AlertOptions{
			Precise:     cfg.PreciseAlerts,
			RadiusMiles: cfg.AlertRadiusMiles,
		},
		EnrichCurrent: true,
		Logger:        logger,
	})
}
