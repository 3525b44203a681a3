package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/conference-repeater/internal/application"
	"github.com/example/conference-repeater/internal/persistence"
	"github.com/example/conference-repeater/internal/recurrence"
)

var (
	userCounter   uint64
	roomCounter   uint64
	seriesCounter uint64
)

var referenceTime = time.Date(2021, time.January, 15, 15, 0, 0, 0, time.UTC)

// ReferenceTime returns the canonical baseline timestamp used by fixtures.
func ReferenceTime() time.Time {
	return referenceTime
}

// ----------------------------- User fixtures -----------------------------

// UserFixture represents a deterministic directory entry for persistence
// tests.
type UserFixture struct {
	ID          string
	Email       string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserOption configures the generated user fixture.
type UserOption func(*UserFixture)

// NewUserFixture returns a deterministic user fixture with optional overrides.
func NewUserFixture(opts ...UserOption) UserFixture {
	idx := atomic.AddUint64(&userCounter, 1)
	id := fmt.Sprintf("user-%03d", idx)
	created := referenceTime.Add(time.Duration(idx) * time.Minute)
	fixture := UserFixture{
		ID:          id,
		Email:       fmt.Sprintf("%s@example.org", id),
		DisplayName: fmt.Sprintf("User %03d", idx),
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithUserID overrides the fixture identifier.
func WithUserID(id string) UserOption {
	return func(f *UserFixture) { f.ID = id }
}

// WithUserEmail overrides the fixture email address.
func WithUserEmail(email string) UserOption {
	return func(f *UserFixture) { f.Email = email }
}

// Persistence converts the fixture into the persistence model.
func (f UserFixture) Persistence() persistence.User {
	return persistence.User{
		ID:          f.ID,
		Email:       f.Email,
		DisplayName: f.DisplayName,
		CreatedAt:   f.CreatedAt,
		UpdatedAt:   f.UpdatedAt,
	}
}

// ----------------------------- Room fixtures -----------------------------

// RoomFixture represents a deterministic prototype room.
type RoomFixture struct {
	ID                      string
	Name                    string
	Start                   time.Time
	DurationMinutes         int
	ModeratorID             string
	AccessPinHash           *string
	ParticipantIDs          []string
	PrototypeParticipantIDs []string
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// RoomOption configures the generated room fixture.
type RoomOption func(*RoomFixture)

// NewRoomFixture returns a deterministic room fixture with optional overrides.
func NewRoomFixture(opts ...RoomOption) RoomFixture {
	idx := atomic.AddUint64(&roomCounter, 1)
	fixture := RoomFixture{
		ID:                      fmt.Sprintf("room-%03d", idx),
		Name:                    fmt.Sprintf("Room %03d", idx),
		Start:                   referenceTime,
		DurationMinutes:         60,
		ModeratorID:             "moderator",
		ParticipantIDs:          []string{"alice", "bob"},
		PrototypeParticipantIDs: []string{"alice", "bob"},
		CreatedAt:               referenceTime,
		UpdatedAt:               referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithRoomID overrides the fixture identifier.
func WithRoomID(id string) RoomOption {
	return func(f *RoomFixture) { f.ID = id }
}

// WithRoomStart overrides the fixture start time.
func WithRoomStart(start time.Time) RoomOption {
	return func(f *RoomFixture) { f.Start = start }
}

// WithRoomParticipants overrides both participant sets at once.
func WithRoomParticipants(ids ...string) RoomOption {
	return func(f *RoomFixture) {
		f.ParticipantIDs = append([]string(nil), ids...)
		f.PrototypeParticipantIDs = append([]string(nil), ids...)
	}
}

// Application converts the fixture into the application model.
func (f RoomFixture) Application() application.Room {
	return application.Room{
		ID:                      f.ID,
		Name:                    f.Name,
		Start:                   f.Start,
		DurationMinutes:         f.DurationMinutes,
		End:                     f.Start.Add(time.Duration(f.DurationMinutes) * time.Minute),
		ModeratorID:             f.ModeratorID,
		AccessPinHash:           f.AccessPinHash,
		ParticipantIDs:          append([]string(nil), f.ParticipantIDs...),
		PrototypeParticipantIDs: append([]string(nil), f.PrototypeParticipantIDs...),
		CreatedAt:               f.CreatedAt,
		UpdatedAt:               f.UpdatedAt,
	}
}

// Persistence converts the fixture into the persistence model.
func (f RoomFixture) Persistence() persistence.Room {
	return persistence.Room{
		ID:                      f.ID,
		Name:                    f.Name,
		Start:                   f.Start,
		DurationMinutes:         f.DurationMinutes,
		End:                     f.Start.Add(time.Duration(f.DurationMinutes) * time.Minute),
		ModeratorID:             f.ModeratorID,
		AccessPinHash:           f.AccessPinHash,
		ParticipantIDs:          append([]string(nil), f.ParticipantIDs...),
		PrototypeParticipantIDs: append([]string(nil), f.PrototypeParticipantIDs...),
		CreatedAt:               f.CreatedAt,
		UpdatedAt:               f.UpdatedAt,
	}
}

// ---------------------------- Series fixtures ----------------------------

// SeriesFixture represents a deterministic weekly series.
type SeriesFixture struct {
	ID              string
	Rule            recurrence.Rule
	AnchorStart     time.Time
	RepetitionCount int
	PrototypeRoomID string
	GenerationCount int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// SeriesOption configures the generated series fixture.
type SeriesOption func(*SeriesFixture)

// NewSeriesFixture returns a deterministic series fixture with optional
// overrides. The default rule is weekly with interval 1.
func NewSeriesFixture(opts ...SeriesOption) SeriesFixture {
	idx := atomic.AddUint64(&seriesCounter, 1)
	fixture := SeriesFixture{
		ID:              fmt.Sprintf("series-%03d", idx),
		Rule:            recurrence.Rule{Family: recurrence.FamilyWeekly, Interval: 1},
		AnchorStart:     referenceTime,
		RepetitionCount: 3,
		PrototypeRoomID: fmt.Sprintf("room-%03d", idx),
		GenerationCount: 0,
		CreatedAt:       referenceTime,
		UpdatedAt:       referenceTime,
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithSeriesID overrides the fixture identifier.
func WithSeriesID(id string) SeriesOption {
	return func(f *SeriesFixture) { f.ID = id }
}

// WithSeriesRule overrides the recurrence rule.
func WithSeriesRule(rule recurrence.Rule) SeriesOption {
	return func(f *SeriesFixture) { f.Rule = rule }
}

// WithSeriesPrototype overrides the prototype room reference.
func WithSeriesPrototype(roomID string) SeriesOption {
	return func(f *SeriesFixture) { f.PrototypeRoomID = roomID }
}

// Application converts the fixture into the application model.
func (f SeriesFixture) Application() application.Series {
	return application.Series{
		ID:              f.ID,
		Rule:            f.Rule,
		AnchorStart:     f.AnchorStart,
		RepetitionCount: f.RepetitionCount,
		PrototypeRoomID: f.PrototypeRoomID,
		GenerationCount: f.GenerationCount,
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.UpdatedAt,
	}
}

// Persistence converts the fixture into the persistence model.
func (f SeriesFixture) Persistence() persistence.Series {
	series := persistence.Series{
		ID:              f.ID,
		Family:          f.Rule.Family.String(),
		Interval:        f.Rule.Interval,
		AnchorStart:     f.AnchorStart,
		RepetitionCount: f.RepetitionCount,
		PrototypeRoomID: f.PrototypeRoomID,
		GenerationCount: f.GenerationCount,
		CreatedAt:       f.CreatedAt,
		UpdatedAt:       f.UpdatedAt,
	}
	if f.Rule.Weekday != nil {
		weekday := int(*f.Rule.Weekday)
		series.Weekday = &weekday
	}
	if f.Rule.Ordinal != nil {
		ordinal := int(*f.Rule.Ordinal)
		series.Ordinal = &ordinal
	}
	if f.Rule.Month != nil {
		month := int(*f.Rule.Month)
		series.Month = &month
	}
	return series
}
