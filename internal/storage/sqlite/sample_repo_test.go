package sqlite

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"cpumon/internal/domain"
	"cpumon/internal/logger"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func newTestRepo(t *testing.T) *SampleRepository {
	t.Helper()

	path := filepath.Join(t.TempDir(), "data", "cpu.db")
	db, err := NewSqliteDB(path, logger.NewNop())
	require.NoError(t, err)

	repo := NewSampleRepository(db, path)
	t.Cleanup(func() { repo.Close() })

	require.NoError(t, repo.InitSchema(context.Background()))
	return repo
}

func TestInitSchemaIsIdempotent(t *testing.T) {
	repo := newTestRepo(t)

	require.NoError(t, repo.InitSchema(context.Background()))
	require.NoError(t, repo.InitSchema(context.Background()))
}

func TestQueryRangeBoundsAndOrder(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, offset := range []int{20, 0, 10, 5, 15, 25} {
		ts := base.Add(time.Duration(offset) * time.Second)
		require.NoError(t, repo.Insert(ctx, domain.NewSample(float64(offset), ts)))
	}

	got, err := repo.QueryRange(ctx, base.Add(5*time.Second), base.Add(20*time.Second))
	require.NoError(t, err)

	values := make([]float64, len(got))
	for i, s := range got {
		values[i] = s.Value
		assert.False(t, s.RecordedAt.Before(base.Add(5*time.Second)))
		assert.False(t, s.RecordedAt.After(base.Add(20*time.Second)))
		if i > 0 {
			assert.True(t, s.RecordedAt.After(got[i-1].RecordedAt))
		}
	}
	assert.Equal(t, []float64{5, 10, 15, 20}, values)
}

func TestQueryRangeEmptyStore(t *testing.T) {
	repo := newTestRepo(t)

	got, err := repo.QueryRange(context.Background(), base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestInsertKeepsMillisecondPrecision(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	ts := base.Add(1234567 * time.Microsecond)
	require.NoError(t, repo.Insert(ctx, domain.NewSample(12.5, ts)))

	got, err := repo.QueryRange(ctx, base, base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, base.Add(1234*time.Millisecond), got[0].RecordedAt)
	assert.Equal(t, 12.5, got[0].Value)
	assert.NotZero(t, got[0].ID)
}

func TestInsertDuplicateTimestamp(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, domain.NewSample(10, base)))

	err := repo.Insert(ctx, domain.NewSample(20, base))
	require.ErrorIs(t, err, domain.ErrDuplicateTimestamp)
	assert.False(t, domain.IsStorageError(err))

	got, err := repo.QueryRange(ctx, base, base)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 10.0, got[0].Value)
}

func TestInsertBatchIsAllOrNothing(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Insert(ctx, domain.NewSample(50, base.Add(10*time.Second))))

	batch := []domain.Sample{
		domain.NewSample(0, base.Add(5*time.Second)),
		domain.NewSample(0, base.Add(10*time.Second)),
		domain.NewSample(0, base.Add(15*time.Second)),
	}
	err := repo.InsertBatch(ctx, batch)
	require.ErrorIs(t, err, domain.ErrDuplicateTimestamp)

	got, err := repo.QueryRange(ctx, base, base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 50.0, got[0].Value)
}

func TestInsertBatch(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.InsertBatch(ctx, nil))

	batch := []domain.Sample{
		domain.NewSample(0, base.Add(5*time.Second)),
		domain.NewSample(0, base.Add(10*time.Second)),
	}
	require.NoError(t, repo.InsertBatch(ctx, batch))

	got, err := repo.QueryRange(ctx, base, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestLastTimestamp(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, ok, err := repo.LastTimestamp(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.Insert(ctx, domain.NewSample(1, base.Add(30*time.Second))))
	require.NoError(t, repo.Insert(ctx, domain.NewSample(2, base)))

	last, ok, err := repo.LastTimestamp(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, base.Add(30*time.Second), last)
}

func TestConcurrentReadsSeeWholeSamples(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	const n = 100
	valueAt := func(ts time.Time) float64 {
		return math.Mod(float64(ts.Sub(base)/time.Second), 100)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range n {
			ts := base.Add(time.Duration(i) * time.Second)
			if err := repo.Insert(ctx, domain.NewSample(valueAt(ts), ts)); err != nil {
				t.Errorf("insert %d: %v", i, err)
				return
			}
		}
	}()

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				got, err := repo.QueryRange(ctx, base, base.Add(n*time.Second))
				if err != nil {
					t.Errorf("query: %v", err)
					return
				}
				for _, s := range got {
					if s.Value != valueAt(s.RecordedAt) {
						t.Errorf("sample %v has value %v", s.RecordedAt, s.Value)
					}
				}
			}
		}()
	}

	wg.Wait()
}

func TestInsertBatchBeginFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSampleRepository(db, "")
	mock.ExpectBegin().WillReturnError(errors.New("disk I/O error"))

	err = repo.InsertBatch(context.Background(), []domain.Sample{domain.NewSample(0, base)})
	require.Error(t, err)
	assert.True(t, domain.IsStorageError(err))
	assert.NotErrorIs(t, err, domain.ErrDuplicateTimestamp)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertBatchRollsBackOnUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSampleRepository(db, "")
	insert := regexp.QuoteMeta("INSERT INTO cpu_loads (load, recorded_at) VALUES (?, ?)")

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(insert)
	prep.ExpectExec().
		WithArgs(0.0, "2024-03-01 10:00:05.000").
		WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().
		WithArgs(0.0, "2024-03-01 10:00:10.000").
		WillReturnError(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique})
	mock.ExpectRollback()

	err = repo.InsertBatch(context.Background(), []domain.Sample{
		domain.NewSample(0, base.Add(5*time.Second)),
		domain.NewSample(0, base.Add(10*time.Second)),
	})
	require.ErrorIs(t, err, domain.ErrDuplicateTimestamp)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLastTimestampDriverError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewSampleRepository(db, "")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT recorded_at FROM cpu_loads ORDER BY recorded_at DESC LIMIT 1")).
		WillReturnError(errors.New("database is locked"))

	_, _, err = repo.LastTimestamp(context.Background())
	var se *domain.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "last timestamp", se.Op)
}
