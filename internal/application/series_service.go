package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/conference-repeater/internal/persistence"
	"github.com/example/conference-repeater/internal/recurrence"
)

// SeriesStore captures the series persistence operations needed by the service.
type SeriesStore interface {
	SaveSeries(ctx context.Context, series Series) error
	GetSeries(ctx context.Context, id string) (Series, error)
	GetSeriesByRoom(ctx context.Context, roomID string) (Series, error)
	ListSeries(ctx context.Context) ([]Series, error)
	DeleteSeries(ctx context.Context, id string) error
}

// SeriesService orchestrates validation, date generation, materialization and
// notification for recurring room series.
type SeriesService struct {
	series       SeriesStore
	rooms        RoomStore
	materializer *Materializer
	dispatch     NotificationDispatch
	idGenerator  func() string
	now          func() time.Time
	logger       *slog.Logger
}

// NewSeriesService constructs a series service with the provided dependencies.
func NewSeriesService(series SeriesStore, rooms RoomStore, dispatch NotificationDispatch, idGenerator func() string, now func() time.Time) *SeriesService {
	return NewSeriesServiceWithLogger(series, rooms, dispatch, idGenerator, now, nil)
}

// NewSeriesServiceWithLogger constructs a series service with a specified logger.
func NewSeriesServiceWithLogger(series SeriesStore, rooms RoomStore, dispatch NotificationDispatch, idGenerator func() string, now func() time.Time, logger *slog.Logger) *SeriesService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &SeriesService{
		series:       series,
		rooms:        rooms,
		materializer: NewMaterializerWithLogger(rooms, idGenerator, now, logger),
		dispatch:     dispatch,
		idGenerator:  idGenerator,
		now:          now,
		logger:       defaultLogger(logger),
	}
}

func (s *SeriesService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "SeriesService", operation, attrs...)
}

// CreateSeries validates the rule, stores the series and materializes its
// first generation from the prototype room. When the anchor is the zero time
// the prototype's own start is used.
func (s *SeriesService) CreateSeries(ctx context.Context, params CreateSeriesParams) (series Series, err error) {
	if s == nil {
		err = fmt.Errorf("SeriesService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateSeries",
		"prototype_room_id", params.PrototypeRoomID,
		"family", params.Rule.Family.String(),
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create series", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("series_id", series.ID).InfoContext(ctx, "series created", "room_count", params.Count)
	}()

	vErr := validateSeriesInput(params)
	if vErr.HasErrors() {
		err = vErr
		return
	}

	prototype, err := s.rooms.GetRoom(ctx, params.PrototypeRoomID)
	if err != nil {
		err = mapStoreError(err)
		return
	}

	anchor := params.Anchor
	if anchor.IsZero() {
		anchor = prototype.Start
	}

	dates := recurrence.Generate(params.Rule, anchor, params.Count)

	now := s.now()
	series = Series{
		ID:              s.idGenerator(),
		Rule:            params.Rule,
		AnchorStart:     anchor,
		RepetitionCount: params.Count,
		PrototypeRoomID: prototype.ID,
		GenerationCount: 0,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// Series metadata goes in first so the generated rooms can reference it.
	if err = mapStoreError(s.series.SaveSeries(ctx, series)); err != nil {
		return
	}

	rooms, err := s.materializer.Materialize(ctx, series.ID, prototype, dates, 0)
	if err != nil {
		if deleteErr := s.series.DeleteSeries(ctx, series.ID); deleteErr != nil {
			logger.WarnContext(ctx, "failed to remove series after aborted materialization", "error", deleteErr)
		}
		series = Series{}
		return
	}

	series.GenerationCount = 1
	series.UpdatedAt = s.now()
	if err = mapStoreError(s.series.SaveSeries(ctx, series)); err != nil {
		return
	}
	series.Generations = []Generation{{Index: 0, Rooms: rooms, CreatedAt: now}}

	s.notify(ctx, logger, series, prototype, ModeNewSeries)
	return
}

// ReplaceRooms reschedules a series from one of its generated rooms. The
// modified room keeps its new start; a fresh generation is appended anchored
// at that start. Earlier generations stay untouched.
func (s *SeriesService) ReplaceRooms(ctx context.Context, params ReplaceRoomsParams) (series Series, err error) {
	if s == nil {
		err = fmt.Errorf("SeriesService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ReplaceRooms", "room_id", params.RoomID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to replace rooms", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("series_id", series.ID).InfoContext(ctx, "series regenerated",
			"generation_index", series.GenerationCount-1)
	}()

	if params.NewStart.IsZero() {
		vErr := &ValidationError{}
		vErr.add("start", "a new start time is required")
		err = vErr
		return
	}

	modified, err := s.rooms.GetRoom(ctx, params.RoomID)
	if err != nil {
		err = mapStoreError(err)
		return
	}

	series, err = s.series.GetSeriesByRoom(ctx, params.RoomID)
	if err != nil {
		err = mapStoreError(err)
		return
	}

	prototype, err := s.rooms.GetRoom(ctx, series.PrototypeRoomID)
	if err != nil {
		err = mapStoreError(err)
		return
	}

	now := s.now()
	modified.Start = params.NewStart
	modified.End = params.NewStart.Add(time.Duration(modified.DurationMinutes) * time.Minute)
	modified.UpdatedAt = now
	if err = mapStoreError(s.rooms.SaveRoom(ctx, modified)); err != nil {
		return
	}

	dates := recurrence.Generate(series.Rule, params.NewStart, series.RepetitionCount)
	if _, err = s.materializer.Materialize(ctx, series.ID, prototype, dates, series.GenerationCount); err != nil {
		return
	}

	series.GenerationCount++
	series.AnchorStart = params.NewStart
	series.UpdatedAt = s.now()
	if err = mapStoreError(s.series.SaveSeries(ctx, series)); err != nil {
		return
	}

	if series.Generations, err = s.loadGenerations(ctx, series.ID); err != nil {
		return
	}

	s.notify(ctx, logger, series, prototype, ModeParticipantRequest)
	return
}

// ResyncParticipants pushes the prototype's participant assignments onto
// every room of the series, prototype included. Rooms already in sync are
// rewritten to the same set, so repeating the call is harmless.
func (s *SeriesService) ResyncParticipants(ctx context.Context, seriesID string) (err error) {
	if s == nil {
		return fmt.Errorf("SeriesService is nil")
	}

	logger := s.loggerWith(ctx, "ResyncParticipants", "series_id", seriesID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to resync participants", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "participants resynced")
	}()

	series, err := s.series.GetSeries(ctx, seriesID)
	if err != nil {
		err = mapStoreError(err)
		return
	}

	prototype, err := s.rooms.GetRoom(ctx, series.PrototypeRoomID)
	if err != nil {
		err = mapStoreError(err)
		return
	}

	if err = mapStoreError(s.rooms.UpdateRoomParticipants(ctx, prototype.ID, prototype.PrototypeParticipantIDs)); err != nil {
		return
	}

	rooms, err := s.rooms.ListRoomsForSeries(ctx, seriesID)
	if err != nil {
		err = mapStoreError(err)
		return
	}
	for _, room := range rooms {
		if err = mapStoreError(s.rooms.UpdateRoomParticipants(ctx, room.ID, prototype.PrototypeParticipantIDs)); err != nil {
			return
		}
	}
	return
}

// ExtendSeries appends a generation that continues the series past its last
// generated occurrence. A series with no generations yet is materialized from
// its anchor instead.
func (s *SeriesService) ExtendSeries(ctx context.Context, seriesID string, count int) (generation Generation, err error) {
	if s == nil {
		err = fmt.Errorf("SeriesService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ExtendSeries", "series_id", seriesID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to extend series", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "series extended", "generation_index", generation.Index, "room_count", len(generation.Rooms))
	}()

	if count < 1 {
		vErr := &ValidationError{}
		vErr.add("count", "repetition count must be at least 1")
		err = vErr
		return
	}

	series, err := s.series.GetSeries(ctx, seriesID)
	if err != nil {
		err = mapStoreError(err)
		return
	}

	prototype, err := s.rooms.GetRoom(ctx, series.PrototypeRoomID)
	if err != nil {
		err = mapStoreError(err)
		return
	}

	if series.Generations, err = s.loadGenerations(ctx, seriesID); err != nil {
		return
	}

	var dates []time.Time
	if latest := series.LatestGeneration(); latest != nil && len(latest.Rooms) > 0 {
		lastStart := latest.Rooms[len(latest.Rooms)-1].Start
		// The continuation sequence starts at the last occurrence itself.
		if seq := recurrence.Generate(series.Rule, lastStart, count+1); len(seq) > 0 {
			dates = seq[1:]
		}
	} else {
		dates = recurrence.Generate(series.Rule, series.AnchorStart, count)
	}

	now := s.now()
	rooms, err := s.materializer.Materialize(ctx, series.ID, prototype, dates, series.GenerationCount)
	if err != nil {
		return
	}

	generation = Generation{Index: series.GenerationCount, Rooms: rooms, CreatedAt: now}
	series.GenerationCount++
	series.UpdatedAt = s.now()
	series.Generations = append(series.Generations, generation)
	err = mapStoreError(s.series.SaveSeries(ctx, series))
	return
}

// GetSeries loads a series together with all of its generations.
func (s *SeriesService) GetSeries(ctx context.Context, seriesID string) (series Series, err error) {
	if s == nil {
		err = fmt.Errorf("SeriesService is nil")
		return
	}

	series, err = s.series.GetSeries(ctx, seriesID)
	if err != nil {
		err = mapStoreError(err)
		return
	}
	series.Generations, err = s.loadGenerations(ctx, seriesID)
	return
}

// ListSeries enumerates every stored series without loading generations.
func (s *SeriesService) ListSeries(ctx context.Context) ([]Series, error) {
	if s == nil {
		return nil, fmt.Errorf("SeriesService is nil")
	}
	result, err := s.series.ListSeries(ctx)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return result, nil
}

// SendNotification assembles and dispatches a notification for the series in
// the given mode.
func (s *SeriesService) SendNotification(ctx context.Context, seriesID string, mode Mode) (err error) {
	if s == nil {
		return fmt.Errorf("SeriesService is nil")
	}

	logger := s.loggerWith(ctx, "SendNotification", "series_id", seriesID, "mode", string(mode))
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to send notification", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	series, err := s.GetSeries(ctx, seriesID)
	if err != nil {
		return
	}
	prototype, err := s.rooms.GetRoom(ctx, series.PrototypeRoomID)
	if err != nil {
		err = mapStoreError(err)
		return
	}

	notification := buildNotification(series, prototype, mode)
	if err = s.dispatch.Notify(ctx, notification); err != nil {
		err = fmt.Errorf("dispatching notification: %w", err)
	}
	return
}

// notify dispatches a notification without failing the surrounding
// operation; delivery problems are logged and swallowed.
func (s *SeriesService) notify(ctx context.Context, logger *slog.Logger, series Series, prototype Room, mode Mode) {
	if s.dispatch == nil {
		return
	}
	notification := buildNotification(series, prototype, mode)
	if err := s.dispatch.Notify(ctx, notification); err != nil {
		logger.WarnContext(ctx, "failed to dispatch notification", "mode", string(mode), "error", err)
	}
}

func buildNotification(series Series, prototype Room, mode Mode) Notification {
	recipients := make([]string, 0, len(prototype.PrototypeParticipantIDs)+1)
	recipients = append(recipients, prototype.ModeratorID)
	for _, id := range prototype.PrototypeParticipantIDs {
		if id != prototype.ModeratorID {
			recipients = append(recipients, id)
		}
	}

	templateID := "series-created"
	subject := fmt.Sprintf("New recurring room: %s", prototype.Name)
	if mode == ModeParticipantRequest {
		templateID = "participant-request"
		subject = fmt.Sprintf("Please confirm your attendance: %s", prototype.Name)
	}

	context := map[string]any{
		"series_id": series.ID,
		"room_name": prototype.Name,
		"family":    strings.ToLower(series.Rule.Family.String()),
		"interval":  series.Rule.Interval,
	}
	latest := series.LatestGeneration()
	if latest != nil && len(latest.Rooms) > 0 {
		context["first_start"] = latest.Rooms[0].Start.Format(time.RFC3339)
		context["occurrences"] = len(latest.Rooms)
	}

	return Notification{
		TemplateID: templateID,
		Subject:    subject,
		Context:    context,
		Mode:       mode,
		Recipients: recipients,
		SeriesID:   series.ID,
		Generation: latest,
	}
}

func (s *SeriesService) loadGenerations(ctx context.Context, seriesID string) ([]Generation, error) {
	rooms, err := s.rooms.ListRoomsForSeries(ctx, seriesID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return groupGenerations(rooms), nil
}

// groupGenerations folds a generation-then-sequence ordered room list into
// generation batches.
func groupGenerations(rooms []Room) []Generation {
	var generations []Generation
	for _, room := range rooms {
		if room.GenerationIndex == nil {
			continue
		}
		idx := *room.GenerationIndex
		for len(generations) <= idx {
			generations = append(generations, Generation{Index: len(generations)})
		}
		generation := &generations[idx]
		if len(generation.Rooms) == 0 || room.CreatedAt.Before(generation.CreatedAt) {
			generation.CreatedAt = room.CreatedAt
		}
		generation.Rooms = append(generation.Rooms, room)
	}
	return generations
}

func validateSeriesInput(params CreateSeriesParams) *ValidationError {
	vErr := &ValidationError{}
	if strings.TrimSpace(params.PrototypeRoomID) == "" {
		vErr.add("prototype_room_id", "a prototype room is required")
	}
	if params.Count < 1 {
		vErr.add("count", "repetition count must be at least 1")
	}
	if err := recurrence.Validate(params.Rule); err != nil {
		var missing *recurrence.MissingParameterError
		switch {
		case errors.As(err, &missing):
			vErr.add(missing.Field, "required for the selected recurrence family")
		case errors.Is(err, recurrence.ErrInvalidInterval):
			vErr.add("interval", "interval must be at least 1")
		case errors.Is(err, recurrence.ErrInvalidFamily):
			vErr.add("family", "unknown recurrence family")
		default:
			vErr.add("rule", err.Error())
		}
	}
	return vErr
}

func mapStoreError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, persistence.ErrNotFound) {
		return ErrNotFound
	}
	if errors.Is(err, ErrPersistenceFailure) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
}
