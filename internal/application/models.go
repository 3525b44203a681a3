package application

import (
	"time"

	"github.com/example/conference-repeater/internal/recurrence"
)

// Room represents a conference room: either the prototype of a series or a
// generated instance.
//
// ParticipantIDs is the live participant set. PrototypeParticipantIDs is only
// meaningful on a prototype; it records assignments made against the series
// itself and is the source of truth for ResyncParticipants.
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

// Generation is one batch of rooms produced by a single materialization call.
// Room order matches the generating date sequence; batches are never merged
// or deduplicated against each other.
type Generation struct {
	Index     int
	Rooms     []Room
	CreatedAt time.Time
}

// Series ties a recurrence rule to a prototype room and the generations
// produced from it. Generations is append-only: regeneration adds a batch and
// never rewrites an earlier one.
type Series struct {
	ID              string
	Rule            recurrence.Rule
	AnchorStart     time.Time
	RepetitionCount int
	PrototypeRoomID string
	GenerationCount int
	Generations     []Generation
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LatestGeneration returns the most recently appended generation, or nil when
// the series has not been materialized yet. The rooms of the latest
// generation are the "current" occurrences of the series.
func (s *Series) LatestGeneration() *Generation {
	if s == nil || len(s.Generations) == 0 {
		return nil
	}
	return &s.Generations[len(s.Generations)-1]
}

// CreateSeriesParams wraps the data required to create a series.
type CreateSeriesParams struct {
	Rule            recurrence.Rule
	PrototypeRoomID string
	Anchor          time.Time
	Count           int
}

// ReplaceRoomsParams wraps the data required to regenerate a series from a
// rescheduled room.
type ReplaceRoomsParams struct {
	RoomID   string
	NewStart time.Time
}

// Mode frames a notification: a freshly created series versus a request for
// participant action. It carries no engine logic.
type Mode string

const (
	// ModeNewSeries announces a newly created series.
	ModeNewSeries Mode = "NEW"
	// ModeParticipantRequest asks recipients to act on their invitation.
	ModeParticipantRequest Mode = "REQUEST"
)

// Notification is the message handed to the NotificationDispatch collaborator.
// Generation carries the rooms the message announces so dispatchers can
// render a calendar invite from them.
type Notification struct {
	TemplateID string
	Subject    string
	Context    map[string]any
	Mode       Mode
	Recipients []string
	SeriesID   string
	Generation *Generation
}
