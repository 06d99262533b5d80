// Package series derives the chart sequences from stored samples.
package series

import (
	"context"
	"errors"
	"math"
	"time"

	"cpumon/internal/domain"
)

var ErrInvalidWindow = errors.New("window and bucket must be positive")

type Observer interface {
	ObserveQuery(d time.Duration)
}

// Window is the closed interval [From, To] split into Bucket-sized slices
// counted from From.
type Window struct {
	From   time.Time
	To     time.Time
	Bucket time.Duration
}

func TrailingWindow(now time.Time, length, bucket time.Duration) Window {
	to := domain.NormalizeTime(now)
	return Window{From: to.Add(-length), To: to, Bucket: bucket}
}

type Service struct {
	repo domain.SampleRepository
	obs  Observer
	now  func() time.Time
}

func NewService(repo domain.SampleRepository, obs Observer) *Service {
	return &Service{repo: repo, obs: obs, now: time.Now}
}

// InstantSeries returns every sample value of the trailing window in
// timestamp order.
func (s *Service) InstantSeries(ctx context.Context, window time.Duration) ([]float64, error) {
	if window <= 0 {
		return nil, ErrInvalidWindow
	}

	samples, err := s.query(ctx, TrailingWindow(s.now(), window, 0))
	if err != nil {
		return nil, err
	}

	return Values(samples), nil
}

// AverageSeries returns the mean of each non-empty bucket of the trailing
// window in bucket order.
func (s *Service) AverageSeries(ctx context.Context, window, bucket time.Duration) ([]float64, error) {
	if window <= 0 || bucket <= 0 {
		return nil, ErrInvalidWindow
	}

	w := TrailingWindow(s.now(), window, bucket)
	samples, err := s.query(ctx, w)
	if err != nil {
		return nil, err
	}

	return AverageBuckets(samples, w.From, w.Bucket), nil
}

// Series computes both sequences from a single range query.
func (s *Service) Series(ctx context.Context, window, bucket time.Duration) (*domain.Series, error) {
	if window <= 0 || bucket <= 0 {
		return nil, ErrInvalidWindow
	}

	w := TrailingWindow(s.now(), window, bucket)
	samples, err := s.query(ctx, w)
	if err != nil {
		return nil, err
	}

	return &domain.Series{
		From:          w.From,
		To:            w.To,
		BucketSeconds: int(bucket / time.Second),
		Instant:       Values(samples),
		Average:       AverageBuckets(samples, w.From, w.Bucket),
	}, nil
}

// Latest returns the most recent stored sample, or domain.ErrSampleNotFound
// when the store is empty.
func (s *Service) Latest(ctx context.Context) (*domain.Sample, error) {
	last, ok, err := s.repo.LastTimestamp(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrSampleNotFound
	}

	samples, err := s.repo.QueryRange(ctx, last, last)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, domain.ErrSampleNotFound
	}

	return &samples[len(samples)-1], nil
}

func (s *Service) query(ctx context.Context, w Window) ([]domain.Sample, error) {
	start := time.Now()
	samples, err := s.repo.QueryRange(ctx, w.From, w.To)
	if s.obs != nil {
		s.obs.ObserveQuery(time.Since(start))
	}
	return samples, err
}

func Values(samples []domain.Sample) []float64 {
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}
	return values
}

// AverageBuckets groups samples by floor((RecordedAt-from)/bucket) and
// averages each group. samples must be in ascending timestamp order. Buckets
// with no samples are left out.
func AverageBuckets(samples []domain.Sample, from time.Time, bucket time.Duration) []float64 {
	averages := make([]float64, 0)
	if bucket <= 0 {
		return averages
	}

	var (
		current = int64(-1)
		sum     float64
		count   int
	)

	flush := func() {
		if count > 0 {
			averages = append(averages, round2(sum/float64(count)))
		}
	}

	for _, s := range samples {
		idx := int64(s.RecordedAt.Sub(from) / bucket)
		if idx < 0 {
			continue
		}
		if idx != current {
			flush()
			current, sum, count = idx, 0, 0
		}
		sum += s.Value
		count++
	}
	flush()

	return averages
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

var _ domain.SeriesService = (*Service)(nil)
