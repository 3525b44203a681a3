package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RoomStore captures the room persistence operations needed by the engine.
type RoomStore interface {
	SaveRoom(ctx context.Context, room Room) error
	GetRoom(ctx context.Context, id string) (Room, error)
	ListRoomsForSeries(ctx context.Context, seriesID string) ([]Room, error)
	UpdateRoomParticipants(ctx context.Context, roomID string, participantIDs []string) error
	DeleteRoom(ctx context.Context, id string) error
}

// Materializer turns a date sequence into persisted room instances cloned
// from a prototype. One call produces exactly one generation: either every
// room of the batch is stored or none survives.
type Materializer struct {
	rooms       RoomStore
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewMaterializer constructs a materializer with the provided dependencies.
func NewMaterializer(rooms RoomStore, idGenerator func() string, now func() time.Time) *Materializer {
	return NewMaterializerWithLogger(rooms, idGenerator, now, nil)
}

// NewMaterializerWithLogger constructs a materializer with a specified logger.
func NewMaterializerWithLogger(rooms RoomStore, idGenerator func() string, now func() time.Time, logger *slog.Logger) *Materializer {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &Materializer{rooms: rooms, idGenerator: idGenerator, now: now, logger: defaultLogger(logger)}
}

// Materialize clones the prototype onto every date of the sequence and stores
// the batch as one generation of the series. Batch order follows the date
// sequence. When any save fails the already stored rooms of the batch are
// removed again and ErrPersistenceFailure is returned; earlier generations
// are never touched.
func (m *Materializer) Materialize(ctx context.Context, seriesID string, prototype Room, dates []time.Time, generationIndex int) ([]Room, error) {
	if m == nil {
		return nil, fmt.Errorf("Materializer is nil")
	}

	logger := serviceLogger(ctx, m.logger, "Materializer", "Materialize",
		"series_id", seriesID,
		"generation_index", generationIndex,
	)

	created := make([]Room, 0, len(dates))
	now := m.now()
	for i, start := range dates {
		room := m.cloneRoom(prototype, seriesID, start, generationIndex, i, now)
		if err := m.rooms.SaveRoom(ctx, room); err != nil {
			m.rollback(ctx, logger, created)
			err = fmt.Errorf("%w: storing room %d of %d: %v", ErrPersistenceFailure, i+1, len(dates), err)
			logger.ErrorContext(ctx, "failed to materialize generation", "error", err, "error_kind", ErrorKind(err))
			return nil, err
		}
		created = append(created, room)
	}

	logger.InfoContext(ctx, "generation materialized", "room_count", len(created))
	return created, nil
}

// cloneRoom copies the prototype's name, duration, moderator, access pin and
// current live participant set onto a fresh room at the given start. The
// prototype assignment set is deliberately not copied; it only flows into
// instances through ResyncParticipants.
func (m *Materializer) cloneRoom(prototype Room, seriesID string, start time.Time, generationIndex, sequenceIndex int, now time.Time) Room {
	genIdx := generationIndex
	seqIdx := sequenceIndex
	sid := seriesID
	return Room{
		ID:              m.idGenerator(),
		Name:            prototype.Name,
		Start:           start,
		DurationMinutes: prototype.DurationMinutes,
		End:             start.Add(time.Duration(prototype.DurationMinutes) * time.Minute),
		ModeratorID:     prototype.ModeratorID,
		AccessPinHash:   prototype.AccessPinHash,
		ParticipantIDs:  append([]string(nil), prototype.ParticipantIDs...),
		SeriesID:        &sid,
		GenerationIndex: &genIdx,
		SequenceIndex:   &seqIdx,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func (m *Materializer) rollback(ctx context.Context, logger *slog.Logger, created []Room) {
	for _, room := range created {
		if err := m.rooms.DeleteRoom(ctx, room.ID); err != nil {
			logger.WarnContext(ctx, "failed to remove room during rollback", "room_id", room.ID, "error", err)
		}
	}
}
