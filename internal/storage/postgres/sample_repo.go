package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cpumon/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type SampleRepository struct {
	db          *pgxpool.Pool
	databaseURL string
}

func NewSampleRepository(db *pgxpool.Pool, databaseURL string) *SampleRepository {
	return &SampleRepository{db: db, databaseURL: databaseURL}
}

func (r *SampleRepository) InitSchema(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := migrateUp(r.databaseURL); err != nil {
		return domain.NewStorageError("init schema", err)
	}

	return nil
}

func (r *SampleRepository) Insert(ctx context.Context, s domain.Sample) error {
	query := `INSERT INTO cpu_loads (load, recorded_at) VALUES ($1, $2)`

	_, err := r.db.Exec(ctx, query, s.Value, domain.NormalizeTime(s.RecordedAt))
	if err != nil {
		return mapError("insert sample", err)
	}

	return nil
}

func (r *SampleRepository) InsertBatch(ctx context.Context, samples []domain.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	rows := make([][]any, len(samples))
	for i, s := range samples {
		rows[i] = []any{s.Value, domain.NormalizeTime(s.RecordedAt)}
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return domain.NewStorageError("begin batch", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.CopyFrom(
		ctx,
		pgx.Identifier{"cpu_loads"},
		[]string{"load", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return mapError("insert batch", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return mapError("commit batch", err)
	}

	return nil
}

func (r *SampleRepository) LastTimestamp(ctx context.Context) (time.Time, bool, error) {
	query := `SELECT recorded_at FROM cpu_loads ORDER BY recorded_at DESC LIMIT 1`

	var t time.Time
	if err := r.db.QueryRow(ctx, query).Scan(&t); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, domain.NewStorageError("last timestamp", err)
	}

	return t.UTC(), true, nil
}

func (r *SampleRepository) QueryRange(ctx context.Context, from, to time.Time) ([]domain.Sample, error) {
	query := `
		SELECT id, load, recorded_at
		FROM cpu_loads
		WHERE recorded_at BETWEEN $1 AND $2
		ORDER BY recorded_at ASC
	`

	rows, err := r.db.Query(ctx, query, domain.NormalizeTime(from), domain.NormalizeTime(to))
	if err != nil {
		return nil, domain.NewStorageError("query range", err)
	}
	defer rows.Close()

	samples := make([]domain.Sample, 0)
	for rows.Next() {
		var s domain.Sample
		if err := rows.Scan(&s.ID, &s.Value, &s.RecordedAt); err != nil {
			return nil, domain.NewStorageError("scan sample", err)
		}
		s.RecordedAt = s.RecordedAt.UTC()
		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("query range", err)
	}

	return samples, nil
}

func (r *SampleRepository) Close() error {
	r.db.Close()
	return nil
}

func mapError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, domain.ErrDuplicateTimestamp)
	}
	return domain.NewStorageError(op, err)
}

var _ domain.SampleRepository = (*SampleRepository)(nil)
