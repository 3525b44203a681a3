package main

import (
	"context"
	"time"

	"github.com/example/conference-repeater/internal/application"
	"github.com/example/conference-repeater/internal/persistence"
	"github.com/example/conference-repeater/internal/recurrence"
)

// The application layer speaks its own models; these adapters translate them
// to and from the persistence layer. Repository errors pass through untouched
// so the services can map them.

type roomStoreAdapter struct {
	repo persistence.RoomRepository
}

func newRoomStoreAdapter(repo persistence.RoomRepository) *roomStoreAdapter {
	return &roomStoreAdapter{repo: repo}
}

func (a *roomStoreAdapter) SaveRoom(ctx context.Context, room application.Room) error {
	return a.repo.SaveRoom(ctx, toPersistenceRoom(room))
}

func (a *roomStoreAdapter) GetRoom(ctx context.Context, id string) (application.Room, error) {
	stored, err := a.repo.GetRoom(ctx, id)
	if err != nil {
		return application.Room{}, err
	}
	return toApplicationRoom(stored), nil
}

func (a *roomStoreAdapter) ListRoomsForSeries(ctx context.Context, seriesID string) ([]application.Room, error) {
	stored, err := a.repo.ListRoomsForSeries(ctx, seriesID)
	if err != nil {
		return nil, err
	}
	rooms := make([]application.Room, len(stored))
	for i, room := range stored {
		rooms[i] = toApplicationRoom(room)
	}
	return rooms, nil
}

func (a *roomStoreAdapter) UpdateRoomParticipants(ctx context.Context, roomID string, participantIDs []string) error {
	return a.repo.UpdateRoomParticipants(ctx, roomID, participantIDs)
}

func (a *roomStoreAdapter) DeleteRoom(ctx context.Context, id string) error {
	return a.repo.DeleteRoom(ctx, id)
}

type seriesStoreAdapter struct {
	repo persistence.SeriesRepository
}

func newSeriesStoreAdapter(repo persistence.SeriesRepository) *seriesStoreAdapter {
	return &seriesStoreAdapter{repo: repo}
}

func (a *seriesStoreAdapter) SaveSeries(ctx context.Context, series application.Series) error {
	return a.repo.SaveSeries(ctx, toPersistenceSeries(series))
}

func (a *seriesStoreAdapter) GetSeries(ctx context.Context, id string) (application.Series, error) {
	stored, err := a.repo.GetSeries(ctx, id)
	if err != nil {
		return application.Series{}, err
	}
	return toApplicationSeries(stored)
}

func (a *seriesStoreAdapter) GetSeriesByRoom(ctx context.Context, roomID string) (application.Series, error) {
	stored, err := a.repo.GetSeriesByRoom(ctx, roomID)
	if err != nil {
		return application.Series{}, err
	}
	return toApplicationSeries(stored)
}

func (a *seriesStoreAdapter) ListSeries(ctx context.Context) ([]application.Series, error) {
	stored, err := a.repo.ListSeries(ctx)
	if err != nil {
		return nil, err
	}
	result := make([]application.Series, 0, len(stored))
	for _, series := range stored {
		converted, err := toApplicationSeries(series)
		if err != nil {
			return nil, err
		}
		result = append(result, converted)
	}
	return result, nil
}

func (a *seriesStoreAdapter) DeleteSeries(ctx context.Context, id string) error {
	return a.repo.DeleteSeries(ctx, id)
}

func toPersistenceRoom(room application.Room) persistence.Room {
	return persistence.Room{
		ID:                      room.ID,
		Name:                    room.Name,
		Start:                   room.Start,
		DurationMinutes:         room.DurationMinutes,
		End:                     room.End,
		ModeratorID:             room.ModeratorID,
		AccessPinHash:           room.AccessPinHash,
		ParticipantIDs:          room.ParticipantIDs,
		PrototypeParticipantIDs: room.PrototypeParticipantIDs,
		SeriesID:                room.SeriesID,
		GenerationIndex:         room.GenerationIndex,
		SequenceIndex:           room.SequenceIndex,
		CreatedAt:               room.CreatedAt,
		UpdatedAt:               room.UpdatedAt,
	}
}

func toApplicationRoom(room persistence.Room) application.Room {
	return application.Room{
		ID:                      room.ID,
		Name:                    room.Name,
		Start:                   room.Start,
		DurationMinutes:         room.DurationMinutes,
		End:                     room.End,
		ModeratorID:             room.ModeratorID,
		AccessPinHash:           room.AccessPinHash,
		ParticipantIDs:          room.ParticipantIDs,
		PrototypeParticipantIDs: room.PrototypeParticipantIDs,
		SeriesID:                room.SeriesID,
		GenerationIndex:         room.GenerationIndex,
		SequenceIndex:           room.SequenceIndex,
		CreatedAt:               room.CreatedAt,
		UpdatedAt:               room.UpdatedAt,
	}
}

func toPersistenceSeries(series application.Series) persistence.Series {
	stored := persistence.Series{
		ID:              series.ID,
		Family:          series.Rule.Family.String(),
		Interval:        series.Rule.Interval,
		AnchorStart:     series.AnchorStart,
		RepetitionCount: series.RepetitionCount,
		PrototypeRoomID: series.PrototypeRoomID,
		GenerationCount: series.GenerationCount,
		CreatedAt:       series.CreatedAt,
		UpdatedAt:       series.UpdatedAt,
	}
	if series.Rule.Weekday != nil {
		weekday := int(*series.Rule.Weekday)
		stored.Weekday = &weekday
	}
	if series.Rule.Ordinal != nil {
		ordinal := int(*series.Rule.Ordinal)
		stored.Ordinal = &ordinal
	}
	if series.Rule.Month != nil {
		month := int(*series.Rule.Month)
		stored.Month = &month
	}
	return stored
}

func toApplicationSeries(series persistence.Series) (application.Series, error) {
	family, err := recurrence.ParseFamily(series.Family)
	if err != nil {
		return application.Series{}, err
	}
	rule := recurrence.Rule{Family: family, Interval: series.Interval}
	if series.Weekday != nil {
		weekday := time.Weekday(*series.Weekday)
		rule.Weekday = &weekday
	}
	if series.Ordinal != nil {
		ordinal := recurrence.OrdinalWeek(*series.Ordinal)
		rule.Ordinal = &ordinal
	}
	if series.Month != nil {
		month := time.Month(*series.Month)
		rule.Month = &month
	}
	return application.Series{
		ID:              series.ID,
		Rule:            rule,
		AnchorStart:     series.AnchorStart,
		RepetitionCount: series.RepetitionCount,
		PrototypeRoomID: series.PrototypeRoomID,
		GenerationCount: series.GenerationCount,
		CreatedAt:       series.CreatedAt,
		UpdatedAt:       series.UpdatedAt,
	}, nil
}
