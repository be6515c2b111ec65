package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/evcharge-backend/pkg/logger"
	"github.com/angelmondragon/evcharge-backend/pkg/outbox"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultDLQRetention    = 90 * 24 * time.Hour
	outboxHousekeepEvery   = 24 * time.Hour
	outboxDeleteBatch      = 5000
	// maxDeleteBatches bounds one run; the remainder waits for the next day.
	maxDeleteBatches = 20
	dlqSummaryWindow = 24 * time.Hour
)

type OutboxRetentionJobParams struct {
	Logger       *logger.Logger
	Repository   publishedPruner
	DeadLetters  deadLetterStore
	Retention    time.Duration
	DLQRetention time.Duration
}

type publishedPruner interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type deadLetterStore interface {
	DeleteFailedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountSince(ctx context.Context, since time.Time) (outbox.DeadLetterCounts, error)
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Repository == nil:
		return nil, fmt.Errorf("outbox repository required")
	case params.DeadLetters == nil:
		return nil, fmt.Errorf("dead letter repository required")
	}
	job := &outboxRetentionJob{
		logg:         params.Logger,
		published:    params.Repository,
		deadLetters:  params.DeadLetters,
		retention:    params.Retention,
		dlqRetention: params.DLQRetention,
		now:          time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	if job.dlqRetention <= 0 {
		job.dlqRetention = defaultDLQRetention
	}
	return job, nil
}

// outboxRetentionJob prunes published events and old dead letters once a day
// and logs how many events were dead-lettered in the last day. Unpublished
// rows are never touched.
type outboxRetentionJob struct {
	logg         *logger.Logger
	published    publishedPruner
	deadLetters  deadLetterStore
	retention    time.Duration
	dlqRetention time.Duration
	now          func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Every() time.Duration { return outboxHousekeepEvery }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()

	published, err := j.prunePublished(ctx, now.Add(-j.retention))
	if err != nil {
		return err
	}
	dropped, err := j.deadLetters.DeleteFailedBefore(ctx, now.Add(-j.dlqRetention))
	if err != nil {
		return fmt.Errorf("prune dead letters: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"published_deleted":   published,
		"dead_letter_deleted": dropped,
		"retention":           j.retention.String(),
	})
	j.logg.Info(logCtx, "outbox retention complete")

	counts, err := j.deadLetters.CountSince(ctx, now.Add(-dlqSummaryWindow))
	if err != nil {
		return fmt.Errorf("dead letter summary: %w", err)
	}
	if total := counts.Total(); total > 0 {
		j.logg.Warn(j.logg.WithFields(ctx, map[string]any{"dead_letters_24h": total, "by_type": counts}), "outbox dead letters pending review")
	}
	return nil
}

func (j *outboxRetentionJob) prunePublished(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for range maxDeleteBatches {
		n, err := j.published.DeletePublishedBefore(ctx, cutoff, outboxDeleteBatch)
		total += n
		if err != nil {
			return total, fmt.Errorf("prune published events: %w", err)
		}
		if n < outboxDeleteBatch {
			break
		}
	}
	return total, nil
}
