package sqlite

import (
	"context"
	"fmt"
)

// Store bundles the SQLite-backed repositories behind a single handle.
type Store struct {
	pool   *ConnectionPool
	Rooms  *RoomRepository
	Series *SeriesRepository
	Users  *UserRepository
}

// Open creates a store for the given DSN. Migrate must be called before the
// repositories are used.
func Open(dsn string) (*Store, error) {
	pool, err := NewConnectionPool(dsn)
	if err != nil {
		return nil, err
	}
	return &Store{
		pool:   pool,
		Rooms:  NewRoomRepository(pool),
		Series: NewSeriesRepository(pool),
		Users:  NewUserRepository(pool),
	}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Ping checks database reachability.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id           TEXT PRIMARY KEY,
	email        TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS series (
	id                TEXT PRIMARY KEY,
	family            TEXT NOT NULL,
	interval          INTEGER NOT NULL CHECK (interval >= 1),
	weekday           INTEGER,
	ordinal           INTEGER,
	month             INTEGER,
	anchor_start      TEXT NOT NULL,
	repetition_count  INTEGER NOT NULL CHECK (repetition_count >= 1),
	prototype_room_id TEXT NOT NULL,
	generation_count  INTEGER NOT NULL DEFAULT 0,
	created_at        TEXT NOT NULL,
	updated_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rooms (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	start            TEXT NOT NULL,
	duration_minutes INTEGER NOT NULL CHECK (duration_minutes > 0),
	end_at           TEXT NOT NULL,
	moderator_id     TEXT NOT NULL,
	access_pin_hash  TEXT,
	series_id        TEXT REFERENCES series(id),
	generation_index INTEGER,
	sequence_index   INTEGER,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rooms_series
	ON rooms(series_id, generation_index, sequence_index);

CREATE TABLE IF NOT EXISTS room_participants (
	room_id   TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
	user_id   TEXT NOT NULL REFERENCES users(id),
	prototype INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (room_id, user_id, prototype)
);
`

// Migrate applies the embedded schema. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.DB().ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
