package persistence

import "context"

// RoomRepository stores prototype and generated rooms.
type RoomRepository interface {
	SaveRoom(ctx context.Context, room Room) error
	GetRoom(ctx context.Context, id string) (Room, error)
	ListRoomsForSeries(ctx context.Context, seriesID string) ([]Room, error)
	UpdateRoomParticipants(ctx context.Context, roomID string, participantIDs []string) error
	DeleteRoom(ctx context.Context, id string) error
}

// SeriesRepository stores recurrence series metadata.
type SeriesRepository interface {
	SaveSeries(ctx context.Context, series Series) error
	GetSeries(ctx context.Context, id string) (Series, error)
	GetSeriesByRoom(ctx context.Context, roomID string) (Series, error)
	ListSeries(ctx context.Context) ([]Series, error)
	DeleteSeries(ctx context.Context, id string) error
}

// UserRepository stores the participant directory.
type UserRepository interface {
	CreateUser(ctx context.Context, user User) error
	GetUser(ctx context.Context, id string) (User, error)
	ListUsers(ctx context.Context) ([]User, error)
	DeleteUser(ctx context.Context, id string) error
}
