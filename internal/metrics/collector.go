// Package metrics
package metrics

import (
	"context"
	"errors"
	"time"

	"cpumon/internal/config"
	"cpumon/internal/domain"
	"cpumon/internal/logger"
)

// Monitor reads one value of a sampled quantity.
type Monitor interface {
	Sample(ctx context.Context) (float64, error)
}

type Publisher interface {
	Publish(event any)
}

type Observer interface {
	SampleRecorded(value float64)
	SampleSkipped(reason string)
	BackfillInserted(n int)
}

// Collector samples the monitor once per interval and appends each reading to
// the repository. It is the only writer while running.
type Collector struct {
	repo    domain.SampleRepository
	monitor Monitor
	bus     Publisher
	obs     Observer
	log     logger.Logger

	interval time.Duration
	now      func() time.Time
}

func NewCollector(cfg *config.Config, log logger.Logger, repo domain.SampleRepository, monitor Monitor, bus Publisher, obs Observer) *Collector {
	if obs == nil {
		obs = nopObserver{}
	}

	return &Collector{
		repo:    repo,
		monitor: monitor,
		bus:     bus,
		obs:     obs,
		log:     log,

		interval: cfg.ScanPeriod,
		now:      time.Now,
	}
}

// Start blocks until ctx is canceled or a storage fault other than a
// duplicate timestamp occurs. The first sample is taken immediately; each
// following one waits a full interval after the previous cycle finished.
func (c *Collector) Start(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()

	c.log.Info("collector: started", "interval", c.interval)

	for {
		select {
		case <-ctx.Done():
			c.log.Info("collector: stopping...")
			return ctx.Err()
		case <-timer.C:
			if err := c.collect(ctx); err != nil {
				c.log.Error("collector: storage failure, stopping", "error", err)
				return err
			}
			timer.Reset(c.interval)
		}
	}
}

func (c *Collector) collect(ctx context.Context) error {
	value, err := c.monitor.Sample(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.log.Warn("collector: failed to read cpu load", "error", err)
			c.obs.SampleSkipped("read_error")
		}
		return nil
	}

	sample := domain.NewSample(value, c.now())

	if err := c.repo.Insert(ctx, sample); err != nil {
		if errors.Is(err, domain.ErrDuplicateTimestamp) {
			c.log.Warn("collector: sample skipped, timestamp already stored", "recorded_at", sample.RecordedAt)
			c.obs.SampleSkipped("duplicate")
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	c.obs.SampleRecorded(sample.Value)
	if c.bus != nil {
		c.bus.Publish(domain.SampleRecorded{Sample: sample})
	}

	c.log.Debug("collector: sample stored", "value", sample.Value, "recorded_at", sample.RecordedAt)

	return nil
}

type nopObserver struct{}

func (nopObserver) SampleRecorded(float64) {}
func (nopObserver) SampleSkipped(string)   {}
func (nopObserver) BackfillInserted(int)   {}
