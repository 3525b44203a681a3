package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/conference-repeater/internal/persistence"
)

// SeriesRepository implements persistence.SeriesRepository using SQLite.
type SeriesRepository struct {
	pool *ConnectionPool
}

// NewSeriesRepository creates a new SQLite series repository.
func NewSeriesRepository(pool *ConnectionPool) *SeriesRepository {
	return &SeriesRepository{pool: pool}
}

// SaveSeries inserts the series or replaces an existing record with the same ID.
func (r *SeriesRepository) SaveSeries(ctx context.Context, series persistence.Series) error {
	if series.ID == "" || series.PrototypeRoomID == "" {
		return persistence.ErrConstraintViolation
	}

	query := `
		INSERT INTO series (id, family, interval, weekday, ordinal, month, anchor_start,
			repetition_count, prototype_room_id, generation_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			family = excluded.family,
			interval = excluded.interval,
			weekday = excluded.weekday,
			ordinal = excluded.ordinal,
			month = excluded.month,
			anchor_start = excluded.anchor_start,
			repetition_count = excluded.repetition_count,
			prototype_room_id = excluded.prototype_room_id,
			generation_count = excluded.generation_count,
			updated_at = excluded.updated_at
	`
	_, err := r.pool.DB().ExecContext(ctx, query,
		series.ID,
		series.Family,
		series.Interval,
		nullableInt(series.Weekday),
		nullableInt(series.Ordinal),
		nullableInt(series.Month),
		series.AnchorStart.Format(time.RFC3339),
		series.RepetitionCount,
		series.PrototypeRoomID,
		series.GenerationCount,
		series.CreatedAt.Format(time.RFC3339),
		series.UpdatedAt.Format(time.RFC3339),
	)
	return mapError(err)
}

// GetSeries retrieves a series by ID.
func (r *SeriesRepository) GetSeries(ctx context.Context, id string) (persistence.Series, error) {
	if id == "" {
		return persistence.Series{}, persistence.ErrNotFound
	}
	query := selectSeries + ` WHERE id = ?`
	return scanSeries(r.pool.DB().QueryRowContext(ctx, query, id))
}

// GetSeriesByRoom resolves the series owning a generated room.
func (r *SeriesRepository) GetSeriesByRoom(ctx context.Context, roomID string) (persistence.Series, error) {
	if roomID == "" {
		return persistence.Series{}, persistence.ErrNotFound
	}
	query := selectSeries + `
		WHERE id = (SELECT series_id FROM rooms WHERE id = ? AND series_id IS NOT NULL)`
	return scanSeries(r.pool.DB().QueryRowContext(ctx, query, roomID))
}

// ListSeries enumerates every stored series ordered by creation time.
func (r *SeriesRepository) ListSeries(ctx context.Context) ([]persistence.Series, error) {
	rows, err := r.pool.DB().QueryContext(ctx, selectSeries+` ORDER BY created_at, id`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []persistence.Series
	for rows.Next() {
		series, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, series)
	}
	return result, mapError(rows.Err())
}

// DeleteSeries removes a series record. Generated rooms are kept: history is
// never destroyed by series removal.
func (r *SeriesRepository) DeleteSeries(ctx context.Context, id string) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE rooms SET series_id = NULL WHERE series_id = ?`, id); err != nil {
			return mapError(err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM series WHERE id = ?`, id)
		if err != nil {
			return mapError(err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return persistence.ErrNotFound
		}
		return nil
	})
}

const selectSeries = `
	SELECT id, family, interval, weekday, ordinal, month, anchor_start,
		repetition_count, prototype_room_id, generation_count, created_at, updated_at
	FROM series`

func scanSeries(row rowScanner) (persistence.Series, error) {
	var (
		series                            persistence.Series
		anchorStr, createdStr, updatedStr string
		weekday, ordinal, month           sql.NullInt64
	)

	err := row.Scan(
		&series.ID,
		&series.Family,
		&series.Interval,
		&weekday,
		&ordinal,
		&month,
		&anchorStr,
		&series.RepetitionCount,
		&series.PrototypeRoomID,
		&series.GenerationCount,
		&createdStr,
		&updatedStr,
	)
	if err != nil {
		return persistence.Series{}, mapError(err)
	}

	if series.AnchorStart, err = time.Parse(time.RFC3339, anchorStr); err != nil {
		return persistence.Series{}, fmt.Errorf("failed to parse anchor_start: %w", err)
	}
	if series.CreatedAt, err = time.Parse(time.RFC3339, createdStr); err != nil {
		return persistence.Series{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if series.UpdatedAt, err = time.Parse(time.RFC3339, updatedStr); err != nil {
		return persistence.Series{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	if weekday.Valid {
		value := int(weekday.Int64)
		series.Weekday = &value
	}
	if ordinal.Valid {
		value := int(ordinal.Int64)
		series.Ordinal = &value
	}
	if month.Valid {
		value := int(month.Int64)
		series.Month = &value
	}
	return series, nil
}
