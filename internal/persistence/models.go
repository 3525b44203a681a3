package persistence

import "time"

// User represents a directory entry that can moderate or attend rooms.
type User struct {
	ID          string
	Email       string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Room represents a conference room record: either a series prototype or a
// generated instance.
//
// SeriesID, GenerationIndex and SequenceIndex are set only on generated
// instances; a prototype carries PrototypeParticipantIDs as the source of
// truth for participant resync.
type Room struct {
	ID                      string
	Name                    string
	Start                   time.Time
	DurationMinutes         int
	End                     time.Time
	ModeratorID             string
	AccessPinHash           *string
	ParticipantIDs          []string
	PrototypeParticipantIDs []string
	SeriesID                *string
	GenerationIndex         *int
	SequenceIndex           *int
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// Series represents a recurrence rule bound to a prototype room. Generated
// rooms reference the series through Room.SeriesID; GenerationCount records
// how many generations have been appended so far.
type Series struct {
	ID              string
	Family          string
	Interval        int
	Weekday         *int
	Ordinal         *int
	Month           *int
	AnchorStart     time.Time
	RepetitionCount int
	PrototypeRoomID string
	GenerationCount int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
