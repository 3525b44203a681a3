package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/conference-repeater/internal/persistence"
)

// RoomRepository implements persistence.RoomRepository using SQLite.
type RoomRepository struct {
	pool *ConnectionPool
}

// NewRoomRepository creates a new SQLite room repository.
func NewRoomRepository(pool *ConnectionPool) *RoomRepository {
	return &RoomRepository{pool: pool}
}

// SaveRoom inserts the room or replaces an existing record with the same ID,
// together with its participant assignments.
func (r *RoomRepository) SaveRoom(ctx context.Context, room persistence.Room) error {
	if room.ID == "" {
		return persistence.ErrConstraintViolation
	}
	if room.DurationMinutes <= 0 {
		return persistence.ErrConstraintViolation
	}

	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		query := `
			INSERT INTO rooms (id, name, start, duration_minutes, end_at, moderator_id,
				access_pin_hash, series_id, generation_index, sequence_index, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				start = excluded.start,
				duration_minutes = excluded.duration_minutes,
				end_at = excluded.end_at,
				moderator_id = excluded.moderator_id,
				access_pin_hash = excluded.access_pin_hash,
				series_id = excluded.series_id,
				generation_index = excluded.generation_index,
				sequence_index = excluded.sequence_index,
				updated_at = excluded.updated_at
		`
		if _, err := tx.ExecContext(ctx, query,
			room.ID,
			room.Name,
			room.Start.Format(time.RFC3339),
			room.DurationMinutes,
			room.End.Format(time.RFC3339),
			room.ModeratorID,
			nullableString(room.AccessPinHash),
			nullableString(room.SeriesID),
			nullableInt(room.GenerationIndex),
			nullableInt(room.SequenceIndex),
			room.CreatedAt.Format(time.RFC3339),
			room.UpdatedAt.Format(time.RFC3339),
		); err != nil {
			return mapError(err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM room_participants WHERE room_id = ?`, room.ID); err != nil {
			return mapError(err)
		}
		if err := insertParticipants(ctx, tx, room.ID, room.ParticipantIDs, false); err != nil {
			return err
		}
		return insertParticipants(ctx, tx, room.ID, room.PrototypeParticipantIDs, true)
	})
}

func insertParticipants(ctx context.Context, tx *sql.Tx, roomID string, userIDs []string, prototype bool) error {
	for _, userID := range userIDs {
		flag := 0
		if prototype {
			flag = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO room_participants (room_id, user_id, prototype) VALUES (?, ?, ?)`,
			roomID, userID, flag,
		); err != nil {
			return mapError(err)
		}
	}
	return nil
}

// GetRoom retrieves a room by ID, including its participant assignments.
func (r *RoomRepository) GetRoom(ctx context.Context, id string) (persistence.Room, error) {
	if id == "" {
		return persistence.Room{}, persistence.ErrNotFound
	}

	query := `
		SELECT id, name, start, duration_minutes, end_at, moderator_id,
			access_pin_hash, series_id, generation_index, sequence_index, created_at, updated_at
		FROM rooms
		WHERE id = ?
	`
	room, err := scanRoom(r.pool.DB().QueryRowContext(ctx, query, id))
	if err != nil {
		return persistence.Room{}, err
	}

	if err := r.loadParticipants(ctx, &room); err != nil {
		return persistence.Room{}, err
	}
	return room, nil
}

// ListRoomsForSeries returns every generated room of a series ordered by
// generation and sequence position.
func (r *RoomRepository) ListRoomsForSeries(ctx context.Context, seriesID string) ([]persistence.Room, error) {
	query := `
		SELECT id, name, start, duration_minutes, end_at, moderator_id,
			access_pin_hash, series_id, generation_index, sequence_index, created_at, updated_at
		FROM rooms
		WHERE series_id = ?
		ORDER BY generation_index, sequence_index
	`
	rows, err := r.pool.DB().QueryContext(ctx, query, seriesID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var result []persistence.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, room)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	for i := range result {
		if err := r.loadParticipants(ctx, &result[i]); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// UpdateRoomParticipants replaces the live participant set of a room.
func (r *RoomRepository) UpdateRoomParticipants(ctx context.Context, roomID string, participantIDs []string) error {
	return r.pool.WithTransaction(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM rooms WHERE id = ?`, roomID).Scan(&exists); err != nil {
			return mapError(err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM room_participants WHERE room_id = ? AND prototype = 0`, roomID,
		); err != nil {
			return mapError(err)
		}
		if err := insertParticipants(ctx, tx, roomID, participantIDs, false); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE rooms SET updated_at = ? WHERE id = ?`,
			time.Now().UTC().Format(time.RFC3339), roomID,
		); err != nil {
			return mapError(err)
		}
		return nil
	})
}

// DeleteRoom removes a room and its participant assignments.
func (r *RoomRepository) DeleteRoom(ctx context.Context, id string) error {
	result, err := r.pool.DB().ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, id)
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
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (persistence.Room, error) {
	var (
		room                    persistence.Room
		startStr, endStr        string
		createdStr, updatedStr  string
		pinHash, seriesID       sql.NullString
		generation, sequenceIdx sql.NullInt64
	)

	err := row.Scan(
		&room.ID,
		&room.Name,
		&startStr,
		&room.DurationMinutes,
		&endStr,
		&room.ModeratorID,
		&pinHash,
		&seriesID,
		&generation,
		&sequenceIdx,
		&createdStr,
		&updatedStr,
	)
	if err != nil {
		return persistence.Room{}, mapError(err)
	}

	if room.Start, err = time.Parse(time.RFC3339, startStr); err != nil {
		return persistence.Room{}, fmt.Errorf("failed to parse start: %w", err)
	}
	if room.End, err = time.Parse(time.RFC3339, endStr); err != nil {
		return persistence.Room{}, fmt.Errorf("failed to parse end_at: %w", err)
	}
	if room.CreatedAt, err = time.Parse(time.RFC3339, createdStr); err != nil {
		return persistence.Room{}, fmt.Errorf("failed to parse created_at: %w", err)
	}
	if room.UpdatedAt, err = time.Parse(time.RFC3339, updatedStr); err != nil {
		return persistence.Room{}, fmt.Errorf("failed to parse updated_at: %w", err)
	}

	if pinHash.Valid {
		value := pinHash.String
		room.AccessPinHash = &value
	}
	if seriesID.Valid {
		value := seriesID.String
		room.SeriesID = &value
	}
	if generation.Valid {
		value := int(generation.Int64)
		room.GenerationIndex = &value
	}
	if sequenceIdx.Valid {
		value := int(sequenceIdx.Int64)
		room.SequenceIndex = &value
	}
	return room, nil
}

func (r *RoomRepository) loadParticipants(ctx context.Context, room *persistence.Room) error {
	rows, err := r.pool.DB().QueryContext(ctx,
		`SELECT user_id, prototype FROM room_participants WHERE room_id = ? ORDER BY user_id`, room.ID)
	if err != nil {
		return mapError(err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID string
		var prototype int
		if err := rows.Scan(&userID, &prototype); err != nil {
			return mapError(err)
		}
		if prototype == 1 {
			room.PrototypeParticipantIDs = append(room.PrototypeParticipantIDs, userID)
		} else {
			room.ParticipantIDs = append(room.ParticipantIDs, userID)
		}
	}
	return mapError(rows.Err())
}

func nullableString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}

func nullableInt(value *int) any {
	if value == nil {
		return nil
	}
	return *value
}
