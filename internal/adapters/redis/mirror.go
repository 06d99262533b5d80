package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cpumon/internal/config"
	"cpumon/internal/core/event"
	"cpumon/internal/domain"
	"cpumon/internal/logger"

	"github.com/redis/go-redis/v9"
)

const (
	appendTimeout = 2 * time.Second
	queueSize     = 64
)

type streamStore interface {
	Append(ctx context.Context, stream string, payload any, maxLen int64) (string, error)
	GetLatest(ctx context.Context, stream string) ([]redis.XMessage, error)
}

// Mirror copies every recorded sample into a capped stream so that other
// processes can read the latest value without touching the database.
// Publishers only hand samples to a buffered queue; Run drains it. A full
// queue or a failed append drops the sample.
type Mirror struct {
	store  streamStore
	stream string
	maxLen int64
	queue  chan domain.Sample
	log    logger.Logger
}

func NewMirror(cfg config.RedisConfig, store streamStore, log logger.Logger) *Mirror {
	return &Mirror{
		store:  store,
		stream: cfg.Stream,
		maxLen: cfg.StreamMaxLen,
		queue:  make(chan domain.Sample, queueSize),
		log:    log,
	}
}

func (m *Mirror) Register(bus *event.Bus) {
	bus.Subscribe(domain.SampleRecorded{}, func(e any) {
		ev, ok := e.(domain.SampleRecorded)
		if !ok {
			return
		}

		select {
		case m.queue <- ev.Sample:
		default:
			m.log.Warn("redis: mirror queue full, dropping sample", "recorded_at", ev.Sample.RecordedAt)
		}
	})
}

// Run appends queued samples until ctx is canceled. It always returns nil.
func (m *Mirror) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-m.queue:
			m.append(ctx, s)
		}
	}
}

func (m *Mirror) append(ctx context.Context, s domain.Sample) {
	ctx, cancel := context.WithTimeout(ctx, appendTimeout)
	defer cancel()

	if _, err := m.store.Append(ctx, m.stream, s, m.maxLen); err != nil {
		m.log.Warn("redis: failed to mirror sample", "stream", m.stream, "error", err)
	}
}

// Latest returns the newest mirrored sample, or domain.ErrSampleNotFound when
// the stream is empty.
func (m *Mirror) Latest(ctx context.Context) (*domain.Sample, error) {
	msgs, err := m.store.GetLatest(ctx, m.stream)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, domain.ErrSampleNotFound
	}

	return decodeSample(msgs[0])
}

func decodeSample(msg redis.XMessage) (*domain.Sample, error) {
	var raw []byte
	switch v := msg.Values["data"].(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return nil, fmt.Errorf("stream entry %s has no data field", msg.ID)
	}

	var s domain.Sample
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode stream entry %s: %w", msg.ID, err)
	}

	return &s, nil
}
