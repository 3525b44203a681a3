// Package autoextend runs a background job that keeps every series supplied
// with future occurrences by appending generations before the last one runs
// out.
package autoextend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/example/conference-repeater/internal/application"
)

// DefaultHorizon is how far ahead a series must be covered before the job
// leaves it alone.
const DefaultHorizon = 30 * 24 * time.Hour

// SeriesService captures the application operations the job needs.
type SeriesService interface {
	ListSeries(ctx context.Context) ([]application.Series, error)
	GetSeries(ctx context.Context, seriesID string) (application.Series, error)
	ExtendSeries(ctx context.Context, seriesID string, count int) (application.Generation, error)
}

// Job periodically extends series whose last generated occurrence falls
// inside the horizon.
type Job struct {
	service  SeriesService
	schedule string
	count    int
	horizon  time.Duration
	now      func() time.Time
	logger   *slog.Logger
	cron     *cron.Cron
}

// NewJob constructs a job with the given cron schedule and extension count.
func NewJob(service SeriesService, schedule string, count int, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		service:  service,
		schedule: schedule,
		count:    count,
		horizon:  DefaultHorizon,
		now:      time.Now,
		logger:   logger,
	}
}

// Start registers the schedule and begins running in the background.
func (j *Job) Start() error {
	if j.cron != nil {
		return errors.New("autoextend: job already started")
	}
	c := cron.New()
	if _, err := c.AddFunc(j.schedule, func() {
		if err := j.RunOnce(context.Background()); err != nil {
			j.logger.Error("auto extension run failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("autoextend: invalid schedule %q: %w", j.schedule, err)
	}
	j.cron = c
	c.Start()
	j.logger.Info("auto extension started", "schedule", j.schedule, "count", j.count)
	return nil
}

// Stop halts the schedule and waits for a running pass to finish.
func (j *Job) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
	j.cron = nil
}

// RunOnce walks every series and extends the ones not covered through the
// horizon. Failing series are logged and skipped so one broken series cannot
// starve the rest.
func (j *Job) RunOnce(ctx context.Context) error {
	seriesList, err := j.service.ListSeries(ctx)
	if err != nil {
		return fmt.Errorf("autoextend: listing series: %w", err)
	}

	deadline := j.now().Add(j.horizon)
	var failures []error
	for _, summary := range seriesList {
		series, err := j.service.GetSeries(ctx, summary.ID)
		if err != nil {
			failures = append(failures, fmt.Errorf("series %s: %w", summary.ID, err))
			continue
		}
		if covered(series, deadline) {
			continue
		}
		if _, err := j.service.ExtendSeries(ctx, series.ID, j.count); err != nil {
			failures = append(failures, fmt.Errorf("series %s: %w", series.ID, err))
			continue
		}
		j.logger.Info("series extended", "series_id", series.ID, "count", j.count)
	}
	return errors.Join(failures...)
}

func covered(series application.Series, deadline time.Time) bool {
	latest := series.LatestGeneration()
	if latest == nil || len(latest.Rooms) == 0 {
		return false
	}
	last := latest.Rooms[len(latest.Rooms)-1].Start
	return last.After(deadline)
}
