package metrics

import (
	"context"
	"fmt"
	"time"

	"cpumon/internal/config"
	"cpumon/internal/domain"
	"cpumon/internal/logger"
)

// PlaceholderValue is the load recorded for backfilled samples. It marks
// downtime, not a measured idle CPU.
const PlaceholderValue = 0

// Backfill fills the gap between the newest stored sample and now with
// placeholder samples spaced one scan period apart.
type Backfill struct {
	repo   domain.SampleRepository
	obs    Observer
	log    logger.Logger
	period time.Duration
	now    func() time.Time
}

func NewBackfill(cfg *config.Config, log logger.Logger, repo domain.SampleRepository, obs Observer) *Backfill {
	if obs == nil {
		obs = nopObserver{}
	}

	return &Backfill{
		repo:   repo,
		obs:    obs,
		log:    log,
		period: cfg.ScanPeriod,
		now:    time.Now,
	}
}

// Run inserts the placeholders in one batch and returns how many were
// written. On failure nothing is written; callers are expected to log and
// carry on without retrying.
func (b *Backfill) Run(ctx context.Context) (int, error) {
	if b.period <= 0 {
		return 0, fmt.Errorf("backfill: invalid scan period %s", b.period)
	}

	last, ok, err := b.repo.LastTimestamp(ctx)
	if err != nil {
		return 0, fmt.Errorf("backfill: %w", err)
	}
	if !ok {
		b.log.Debug("backfill: store is empty, nothing to do")
		return 0, nil
	}

	samples := Placeholders(last, domain.NormalizeTime(b.now()), b.period)
	if len(samples) == 0 {
		return 0, nil
	}

	if err := b.repo.InsertBatch(ctx, samples); err != nil {
		return 0, fmt.Errorf("backfill: %w", err)
	}

	b.obs.BackfillInserted(len(samples))
	b.log.Info("backfill: inserted placeholder samples for downtime",
		"count", len(samples),
		"from", samples[0].RecordedAt,
		"to", samples[len(samples)-1].RecordedAt,
		"value", PlaceholderValue,
	)

	return len(samples), nil
}

// Placeholders returns floor((now-last)/period) zero-valued samples at
// last+period, last+2*period, ...
func Placeholders(last, now time.Time, period time.Duration) []domain.Sample {
	if period <= 0 || !now.After(last) {
		return nil
	}

	n := int(now.Sub(last) / period)
	if n < 1 {
		return nil
	}

	samples := make([]domain.Sample, n)
	for i := range n {
		samples[i] = domain.NewSample(PlaceholderValue, last.Add(time.Duration(i+1)*period))
	}

	return samples
}
