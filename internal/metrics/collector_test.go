package metrics

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"cpumon/internal/config"
	"cpumon/internal/domain"
	"cpumon/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(period time.Duration) *config.Config {
	return &config.Config{ScanPeriod: period}
}

func runCollector(t *testing.T, c *Collector) (context.CancelFunc, <-chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	return cancel, done
}

func TestCollectorStoresAndPublishesSamples(t *testing.T) {
	repo := newMemRepo()
	bus := &recordingBus{}
	obs := newCountingObserver()
	monitor := &seqMonitor{values: []float64{12.3, 45.6, 78.9}}

	c := NewCollector(testConfig(5*time.Millisecond), logger.NewNop(), repo, monitor, bus, obs)

	var tick atomic.Int64
	start := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return start.Add(time.Duration(tick.Add(1)) * time.Second) }

	cancel, done := runCollector(t, c)

	require.Eventually(t, func() bool { return repo.len() >= 3 }, time.Second, time.Millisecond)
	cancel()

	err := <-done
	require.ErrorIs(t, err, context.Canceled)

	stored := repo.all()
	assert.Equal(t, []float64{12.3, 45.6, 78.9}, []float64{stored[0].Value, stored[1].Value, stored[2].Value})
	assert.GreaterOrEqual(t, bus.count(), 3)

	bus.mu.Lock()
	first, ok := bus.events[0].(domain.SampleRecorded)
	bus.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, 12.3, first.Sample.Value)
}

func TestCollectorSkipsDuplicateTimestamps(t *testing.T) {
	repo := newMemRepo()
	obs := newCountingObserver()
	monitor := &seqMonitor{values: []float64{10}}

	c := NewCollector(testConfig(time.Millisecond), logger.NewNop(), repo, monitor, nil, obs)
	frozen := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return frozen }

	cancel, done := runCollector(t, c)

	require.Eventually(t, func() bool { return obs.skips("duplicate") >= 2 }, time.Second, time.Millisecond)
	cancel()

	require.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 1, repo.len())
}

func TestCollectorStopsOnStorageError(t *testing.T) {
	repo := newMemRepo()
	repo.insertErr = domain.NewStorageError("insert sample", errors.New("disk full"))
	monitor := &seqMonitor{values: []float64{10}}

	c := NewCollector(testConfig(time.Millisecond), logger.NewNop(), repo, monitor, nil, nil)
	_, done := runCollector(t, c)

	select {
	case err := <-done:
		var se *domain.StorageError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, 1, monitor.callCount())
	case <-time.After(time.Second):
		t.Fatal("collector did not stop on storage error")
	}
}

func TestCollectorSurvivesReadErrors(t *testing.T) {
	repo := newMemRepo()
	obs := newCountingObserver()
	monitor := &seqMonitor{err: errors.New("no /proc/stat")}

	c := NewCollector(testConfig(time.Millisecond), logger.NewNop(), repo, monitor, nil, obs)
	cancel, done := runCollector(t, c)

	require.Eventually(t, func() bool { return monitor.callCount() >= 3 }, time.Second, time.Millisecond)
	cancel()

	require.ErrorIs(t, <-done, context.Canceled)
	assert.Zero(t, repo.len())
	assert.GreaterOrEqual(t, obs.skips("read_error"), 3)
}

func TestCollectorWaitsOneIntervalBetweenCycles(t *testing.T) {
	repo := newMemRepo()
	monitor := &seqMonitor{values: []float64{1}}

	c := NewCollector(testConfig(time.Hour), logger.NewNop(), repo, monitor, nil, nil)
	cancel, done := runCollector(t, c)

	require.Eventually(t, func() bool { return repo.len() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, monitor.callCount())

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
