package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/i474232898/weatherhub/internal/metrics"
	"github.com/i474232898/weatherhub/internal/weather"
)

const jobName = "prefetch_weather"

// Fetcher is the part of weather.Service the scheduler drives.
type Fetcher interface {
	FetchAndStore(ctx context.Context, loc weather.Location) error
}

// Scheduler periodically fetches weather data for configured locations so the
// provider caches and the snapshot store stay warm.
type Scheduler struct {
	scheduler  *gocron.Scheduler
	service    Fetcher
	locations  []weather.Location
	interval   time.Duration
	jobTimeout time.Duration
	logger     *zap.Logger
}

// New creates a new Scheduler.
func New(locations []weather.Location, interval time.Duration, service Fetcher, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{
		scheduler:  gocron.NewScheduler(time.UTC),
		service:    service,
		locations:  locations,
		interval:   interval,
		jobTimeout: time.Minute,
		logger:     logger.With(zap.String("component", "scheduler")),
	}
}

// Start schedules the periodic job and starts the underlying scheduler. The
// first run happens immediately.
func (s *Scheduler) Start() error {
	if len(s.locations) == 0 {
		s.logger.Info("no locations configured; nothing to schedule")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).Do(func() {
		_ = s.RunOnce()
	})
	if err != nil {
		return err
	}

	s.logger.Info("scheduled prefetch", zap.Duration("interval", s.interval), zap.Int("locations", len(s.locations)))
	s.scheduler.StartAsync()
	return nil
}

// RunOnce fetches every configured location concurrently and records job
// metrics. It returns the joined per-location errors.
func (s *Scheduler) RunOnce() error {
	startedAt := time.Now()
	s.logger.Debug("running weather fetch job")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, loc := range s.locations {
		wg.Add(1)
		go func(loc weather.Location) {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
			defer cancel()

			if err := s.service.FetchAndStore(ctx, loc); err != nil {
				s.logger.Warn("fetch failed", zap.String("location", loc.Key()), zap.Error(err))
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(loc)
	}
	wg.Wait()

	err := errors.Join(errs...)
	metrics.UpdateJobMetrics(jobName, startedAt, err)
	s.logger.Debug("completed weather fetch job", zap.Duration("took", time.Since(startedAt)), zap.Int("failed", len(errs)))
	return err
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
