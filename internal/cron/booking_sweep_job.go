package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/evcharge-backend/pkg/logger"
)

type bookingSweeper interface {
	SweepNoShows(ctx context.Context, now time.Time) (int, error)
	RetryRefunds(ctx context.Context) (int, error)
}

type BookingSweepJobParams struct {
	Logger   *logger.Logger
	Bookings bookingSweeper
}

// NewBookingSweepJob expires bookings whose start grace has elapsed and
// retries refunds the gateway rejected earlier.
func NewBookingSweepJob(params BookingSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Bookings == nil {
		return nil, fmt.Errorf("booking service required")
	}
	return &bookingSweepJob{
		logg:     params.Logger,
		bookings: params.Bookings,
		now:      time.Now,
	}, nil
}

type bookingSweepJob struct {
	logg     *logger.Logger
	bookings bookingSweeper
	now      func() time.Time
}

func (j *bookingSweepJob) Name() string { return "booking-sweep" }

// Run attempts both passes even when the first fails.
func (j *bookingSweepJob) Run(ctx context.Context) error {
	var errs error

	expired, err := j.bookings.SweepNoShows(ctx, j.now().UTC())
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("no-show sweep: %w", err))
	}
	refunded, err := j.bookings.RetryRefunds(ctx)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("refund retry: %w", err))
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"no_shows":          expired,
		"refunds_recovered": refunded,
	})
	j.logg.Info(logCtx, "booking sweep complete")
	return errs
}
