package metrics

import (
	"context"
	"sort"
	"sync"
	"time"

	"cpumon/internal/domain"
)

type memRepo struct {
	mu        sync.Mutex
	samples   map[time.Time]domain.Sample
	insertErr error
	batchErr  error
	nextID    int64
}

func newMemRepo(seed ...domain.Sample) *memRepo {
	r := &memRepo{samples: make(map[time.Time]domain.Sample)}
	for _, s := range seed {
		r.nextID++
		s.ID = r.nextID
		r.samples[s.RecordedAt] = s
	}
	return r
}

func (r *memRepo) InitSchema(context.Context) error { return nil }
func (r *memRepo) Close() error                     { return nil }

func (r *memRepo) Insert(_ context.Context, s domain.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.insertErr != nil {
		return r.insertErr
	}
	if _, ok := r.samples[s.RecordedAt]; ok {
		return domain.ErrDuplicateTimestamp
	}
	r.nextID++
	s.ID = r.nextID
	r.samples[s.RecordedAt] = s
	return nil
}

func (r *memRepo) InsertBatch(_ context.Context, samples []domain.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.batchErr != nil {
		return r.batchErr
	}
	for _, s := range samples {
		if _, ok := r.samples[s.RecordedAt]; ok {
			return domain.ErrDuplicateTimestamp
		}
	}
	for _, s := range samples {
		r.nextID++
		s.ID = r.nextID
		r.samples[s.RecordedAt] = s
	}
	return nil
}

func (r *memRepo) LastTimestamp(context.Context) (time.Time, bool, error) {
	all := r.all()
	if len(all) == 0 {
		return time.Time{}, false, nil
	}
	return all[len(all)-1].RecordedAt, true, nil
}

func (r *memRepo) QueryRange(_ context.Context, from, to time.Time) ([]domain.Sample, error) {
	var out []domain.Sample
	for _, s := range r.all() {
		if !s.RecordedAt.Before(from) && !s.RecordedAt.After(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memRepo) all() []domain.Sample {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Sample, 0, len(r.samples))
	for _, s := range r.samples {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordedAt.Before(out[j].RecordedAt) })
	return out
}

func (r *memRepo) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

type seqMonitor struct {
	mu     sync.Mutex
	values []float64
	err    error
	calls  int
}

func (m *seqMonitor) Sample(context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return 0, m.err
	}
	if len(m.values) == 0 {
		return 0, nil
	}
	v := m.values[0]
	if len(m.values) > 1 {
		m.values = m.values[1:]
	}
	return v, nil
}

func (m *seqMonitor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type recordingBus struct {
	mu     sync.Mutex
	events []any
}

func (b *recordingBus) Publish(event any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBus) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

type countingObserver struct {
	mu       sync.Mutex
	recorded int
	skipped  map[string]int
	backfill int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{skipped: make(map[string]int)}
}

func (o *countingObserver) SampleRecorded(float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recorded++
}

func (o *countingObserver) SampleSkipped(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.skipped[reason]++
}

func (o *countingObserver) BackfillInserted(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.backfill += n
}

func (o *countingObserver) skips(reason string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.skipped[reason]
}
