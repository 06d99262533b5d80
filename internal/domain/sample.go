package domain

import (
	"context"
	"time"
)

// TimestampPrecision is the resolution at which sample timestamps are stored
// and compared for uniqueness.
const TimestampPrecision = time.Millisecond

// Sample is one CPU load observation. Value is a percentage in [0, 100].
type Sample struct {
	ID         int64     `json:"id"`
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}

// NewSample normalizes t to UTC at TimestampPrecision.
func NewSample(value float64, t time.Time) Sample {
	return Sample{
		Value:      value,
		RecordedAt: NormalizeTime(t),
	}
}

func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(TimestampPrecision)
}

// Series holds the two chart sequences computed over one trailing window.
type Series struct {
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`
	BucketSeconds int       `json:"bucket_seconds"`
	Instant       []float64 `json:"instant"`
	Average       []float64 `json:"average"`
}

type SampleRepository interface {
	InitSchema(ctx context.Context) error
	Insert(ctx context.Context, s Sample) error
	InsertBatch(ctx context.Context, samples []Sample) error
	LastTimestamp(ctx context.Context) (time.Time, bool, error)
	QueryRange(ctx context.Context, from, to time.Time) ([]Sample, error)
	Close() error
}

type SeriesService interface {
	InstantSeries(ctx context.Context, window time.Duration) ([]float64, error)
	AverageSeries(ctx context.Context, window, bucket time.Duration) ([]float64, error)
	Series(ctx context.Context, window, bucket time.Duration) (*Series, error)
}

// SampleRecorded is published on the event bus after a live sample has been
// stored. Backfilled placeholders are not published.
type SampleRecorded struct {
	Sample Sample
}
