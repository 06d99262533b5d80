package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cpumon/internal/domain"

	"github.com/mattn/go-sqlite3"
)

// timeLayout is fixed width so that lexical order matches time order.
const timeLayout = "2006-01-02 15:04:05.000"

type SampleRepository struct {
	db     *sql.DB
	dbPath string
}

func NewSampleRepository(db *sql.DB, dbPath string) *SampleRepository {
	return &SampleRepository{db: db, dbPath: dbPath}
}

func (r *SampleRepository) InitSchema(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := migrateUp(r.dbPath); err != nil {
		return domain.NewStorageError("init schema", err)
	}

	return nil
}

func (r *SampleRepository) Insert(ctx context.Context, s domain.Sample) error {
	query := `INSERT INTO cpu_loads (load, recorded_at) VALUES (?, ?)`

	_, err := r.db.ExecContext(ctx, query, s.Value, formatTime(s.RecordedAt))
	if err != nil {
		return mapError("insert sample", err)
	}

	return nil
}

func (r *SampleRepository) InsertBatch(ctx context.Context, samples []domain.Sample) (err error) {
	if len(samples) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewStorageError("begin batch", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO cpu_loads (load, recorded_at) VALUES (?, ?)`)
	if err != nil {
		return domain.NewStorageError("prepare batch", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		if _, err = stmt.ExecContext(ctx, s.Value, formatTime(s.RecordedAt)); err != nil {
			return mapError("insert batch", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return mapError("commit batch", err)
	}

	return nil
}

func (r *SampleRepository) LastTimestamp(ctx context.Context) (time.Time, bool, error) {
	query := `SELECT recorded_at FROM cpu_loads ORDER BY recorded_at DESC LIMIT 1`

	var raw string
	if err := r.db.QueryRowContext(ctx, query).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, domain.NewStorageError("last timestamp", err)
	}

	t, err := parseTime(raw)
	if err != nil {
		return time.Time{}, false, domain.NewStorageError("last timestamp", err)
	}

	return t, true, nil
}

func (r *SampleRepository) QueryRange(ctx context.Context, from, to time.Time) ([]domain.Sample, error) {
	query := `
		SELECT id, load, recorded_at
		FROM cpu_loads
		WHERE recorded_at BETWEEN ? AND ?
		ORDER BY recorded_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, formatTime(from), formatTime(to))
	if err != nil {
		return nil, domain.NewStorageError("query range", err)
	}
	defer rows.Close()

	samples := make([]domain.Sample, 0)
	for rows.Next() {
		var (
			s   domain.Sample
			raw string
		)
		if err := rows.Scan(&s.ID, &s.Value, &raw); err != nil {
			return nil, domain.NewStorageError("scan sample", err)
		}
		if s.RecordedAt, err = parseTime(raw); err != nil {
			return nil, domain.NewStorageError("scan sample", err)
		}
		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("query range", err)
	}

	return samples, nil
}

func (r *SampleRepository) Close() error {
	return r.db.Close()
}

func formatTime(t time.Time) string {
	return domain.NormalizeTime(t).Format(timeLayout)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.ParseInLocation(timeLayout, raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid recorded_at %q: %w", raw, err)
	}
	return t, nil
}

func mapError(op string, err error) error {
	var se sqlite3.Error
	if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
		return fmt.Errorf("%s: %w", op, domain.ErrDuplicateTimestamp)
	}
	return domain.NewStorageError(op, err)
}

var _ domain.SampleRepository = (*SampleRepository)(nil)
