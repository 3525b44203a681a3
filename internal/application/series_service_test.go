package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/conference-repeater/internal/recurrence"
)

type dispatchStub struct {
	notifications []Notification
	err           error
}

func (d *dispatchStub) Notify(ctx context.Context, notification Notification) error {
	if d.err != nil {
		return d.err
	}
	d.notifications = append(d.notifications, notification)
	return nil
}

func weeklyRule() recurrence.Rule {
	return recurrence.Rule{Family: recurrence.FamilyWeekly, Interval: 1}
}

func firstMondayRule() recurrence.Rule {
	weekday := time.Monday
	ordinal := recurrence.OrdinalFirst
	return recurrence.Rule{
		Family:   recurrence.FamilyMonthlyRelative,
		Interval: 1,
		Weekday:  &weekday,
		Ordinal:  &ordinal,
	}
}

func newTestService(store *storeStub, dispatch *dispatchStub) *SeriesService {
	now := time.Date(2021, time.January, 10, 9, 0, 0, 0, time.UTC)
	return NewSeriesService(store, store, dispatch, sequentialIDs("id"), fixedClock(now))
}

func assertStarts(t *testing.T, rooms []Room, want []time.Time) {
	t.Helper()
	if len(rooms) != len(want) {
		t.Fatalf("expected %d rooms, got %d", len(want), len(rooms))
	}
	for i, room := range rooms {
		if !room.Start.Equal(want[i]) {
			t.Errorf("room %d: start %v, want %v", i, room.Start, want[i])
		}
	}
}

func TestCreateSeries(t *testing.T) {
	ctx := context.Background()

	t.Run("materializes the first generation from the prototype start", func(t *testing.T) {
		store := newStoreStub()
		dispatch := &dispatchStub{}
		store.rooms["prototype-1"] = testPrototype()
		service := newTestService(store, dispatch)

		series, err := service.CreateSeries(ctx, CreateSeriesParams{
			Rule:            weeklyRule(),
			PrototypeRoomID: "prototype-1",
			Count:           3,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if series.GenerationCount != 1 {
			t.Fatalf("expected 1 generation, got %d", series.GenerationCount)
		}
		latest := series.LatestGeneration()
		if latest == nil {
			t.Fatal("expected a latest generation")
		}
		assertStarts(t, latest.Rooms, []time.Time{
			time.Date(2021, time.January, 15, 15, 0, 0, 0, time.UTC),
			time.Date(2021, time.January, 22, 15, 0, 0, 0, time.UTC),
			time.Date(2021, time.January, 29, 15, 0, 0, 0, time.UTC),
		})
		if !series.AnchorStart.Equal(store.rooms["prototype-1"].Start) {
			t.Fatalf("expected anchor defaulted to prototype start, got %v", series.AnchorStart)
		}
		if len(dispatch.notifications) != 1 || dispatch.notifications[0].Mode != ModeNewSeries {
			t.Fatalf("expected one NEW notification, got %+v", dispatch.notifications)
		}
	})

	t.Run("skips to the next period when the anchor misses its own slot", func(t *testing.T) {
		store := newStoreStub()
		store.rooms["prototype-1"] = testPrototype()
		service := newTestService(store, &dispatchStub{})

		// First Monday of January 2021 is the 4th; an anchor on the 15th has
		// already passed it, so generation starts in February.
		series, err := service.CreateSeries(ctx, CreateSeriesParams{
			Rule:            firstMondayRule(),
			PrototypeRoomID: "prototype-1",
			Count:           3,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertStarts(t, series.LatestGeneration().Rooms, []time.Time{
			time.Date(2021, time.February, 1, 15, 0, 0, 0, time.UTC),
			time.Date(2021, time.March, 1, 15, 0, 0, 0, time.UTC),
			time.Date(2021, time.April, 5, 15, 0, 0, 0, time.UTC),
		})
	})

	t.Run("explicit anchor overrides the prototype start", func(t *testing.T) {
		store := newStoreStub()
		store.rooms["prototype-1"] = testPrototype()
		service := newTestService(store, &dispatchStub{})

		anchor := time.Date(2021, time.January, 1, 15, 0, 0, 0, time.UTC)
		series, err := service.CreateSeries(ctx, CreateSeriesParams{
			Rule:            firstMondayRule(),
			PrototypeRoomID: "prototype-1",
			Anchor:          anchor,
			Count:           2,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		assertStarts(t, series.LatestGeneration().Rooms, []time.Time{
			time.Date(2021, time.January, 4, 15, 0, 0, 0, time.UTC),
			time.Date(2021, time.February, 1, 15, 0, 0, 0, time.UTC),
		})
	})

	t.Run("rejects invalid input field by field", func(t *testing.T) {
		cases := []struct {
			name   string
			params CreateSeriesParams
			field  string
		}{
			{
				name:   "missing prototype",
				params: CreateSeriesParams{Rule: weeklyRule(), Count: 3},
				field:  "prototype_room_id",
			},
			{
				name:   "non-positive count",
				params: CreateSeriesParams{Rule: weeklyRule(), PrototypeRoomID: "prototype-1", Count: 0},
				field:  "count",
			},
			{
				name: "non-positive interval",
				params: CreateSeriesParams{
					Rule:            recurrence.Rule{Family: recurrence.FamilyDaily, Interval: 0},
					PrototypeRoomID: "prototype-1",
					Count:           3,
				},
				field: "interval",
			},
			{
				name: "unknown family",
				params: CreateSeriesParams{
					Rule:            recurrence.Rule{Interval: 1},
					PrototypeRoomID: "prototype-1",
					Count:           3,
				},
				field: "family",
			},
			{
				name: "relative rule without weekday",
				params: CreateSeriesParams{
					Rule:            recurrence.Rule{Family: recurrence.FamilyMonthlyRelative, Interval: 1},
					PrototypeRoomID: "prototype-1",
					Count:           3,
				},
				field: "weekday",
			},
		}

		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				store := newStoreStub()
				store.rooms["prototype-1"] = testPrototype()
				service := newTestService(store, &dispatchStub{})

				_, err := service.CreateSeries(ctx, tc.params)
				var vErr *ValidationError
				if !errors.As(err, &vErr) {
					t.Fatalf("expected validation error, got %v", err)
				}
				if _, ok := vErr.FieldErrors[tc.field]; !ok {
					t.Fatalf("expected error on %q, got %v", tc.field, vErr.FieldErrors)
				}
			})
		}
	})

	t.Run("unknown prototype maps to not found", func(t *testing.T) {
		store := newStoreStub()
		service := newTestService(store, &dispatchStub{})

		_, err := service.CreateSeries(ctx, CreateSeriesParams{
			Rule:            weeklyRule(),
			PrototypeRoomID: "ghost",
			Count:           3,
		})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("storage failure leaves nothing behind", func(t *testing.T) {
		store := newStoreStub()
		store.rooms["prototype-1"] = testPrototype()
		store.failSaveRoomOn = 2
		service := newTestService(store, &dispatchStub{})

		_, err := service.CreateSeries(ctx, CreateSeriesParams{
			Rule:            weeklyRule(),
			PrototypeRoomID: "prototype-1",
			Count:           3,
		})
		if !errors.Is(err, ErrPersistenceFailure) {
			t.Fatalf("expected ErrPersistenceFailure, got %v", err)
		}
		if len(store.series) != 0 {
			t.Fatalf("expected series removed, got %v", store.series)
		}
		if len(store.rooms) != 1 {
			t.Fatalf("expected only the prototype to survive, got %d rooms", len(store.rooms))
		}
	})

	t.Run("notification failure does not fail creation", func(t *testing.T) {
		store := newStoreStub()
		store.rooms["prototype-1"] = testPrototype()
		service := newTestService(store, &dispatchStub{err: errors.New("smtp down")})

		if _, err := service.CreateSeries(ctx, CreateSeriesParams{
			Rule:            weeklyRule(),
			PrototypeRoomID: "prototype-1",
			Count:           2,
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

func TestReplaceRooms(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*SeriesService, *storeStub, Series) {
		t.Helper()
		store := newStoreStub()
		store.rooms["prototype-1"] = testPrototype()
		service := newTestService(store, &dispatchStub{})
		series, err := service.CreateSeries(ctx, CreateSeriesParams{
			Rule:            weeklyRule(),
			PrototypeRoomID: "prototype-1",
			Count:           3,
		})
		if err != nil {
			t.Fatalf("failed to create series: %v", err)
		}
		return service, store, series
	}

	t.Run("appends a generation anchored at the new start", func(t *testing.T) {
		service, store, created := setup(t)

		second := created.Generations[0].Rooms[1]
		newStart := time.Date(2021, time.February, 1, 10, 0, 0, 0, time.UTC)
		series, err := service.ReplaceRooms(ctx, ReplaceRoomsParams{RoomID: second.ID, NewStart: newStart})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if series.GenerationCount != 2 || len(series.Generations) != 2 {
			t.Fatalf("expected 2 generations, got %d/%d", series.GenerationCount, len(series.Generations))
		}
		assertStarts(t, series.LatestGeneration().Rooms, []time.Time{
			newStart,
			time.Date(2021, time.February, 8, 10, 0, 0, 0, time.UTC),
			time.Date(2021, time.February, 15, 10, 0, 0, 0, time.UTC),
		})

		// The rescheduled room itself carries the new time.
		moved, err := store.GetRoom(ctx, second.ID)
		if err != nil {
			t.Fatalf("failed to load rescheduled room: %v", err)
		}
		if !moved.Start.Equal(newStart) {
			t.Fatalf("expected rescheduled start %v, got %v", newStart, moved.Start)
		}

		// The earlier generation keeps its other rooms untouched.
		first := series.Generations[0]
		if len(first.Rooms) != 3 {
			t.Fatalf("expected first generation intact, got %d rooms", len(first.Rooms))
		}
		if !first.Rooms[0].Start.Equal(created.Generations[0].Rooms[0].Start) {
			t.Fatalf("first generation rewritten: %v", first.Rooms[0].Start)
		}
	})

	t.Run("room outside any series maps to not found", func(t *testing.T) {
		service, store, _ := setup(t)
		store.rooms["loner"] = Room{ID: "loner", Name: "One Off"}

		_, err := service.ReplaceRooms(ctx, ReplaceRoomsParams{
			RoomID:   "loner",
			NewStart: time.Date(2021, time.February, 1, 10, 0, 0, 0, time.UTC),
		})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("zero start is rejected", func(t *testing.T) {
		service, _, created := setup(t)

		_, err := service.ReplaceRooms(ctx, ReplaceRoomsParams{RoomID: created.Generations[0].Rooms[0].ID})
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected validation error, got %v", err)
		}
		if _, ok := vErr.FieldErrors["start"]; !ok {
			t.Fatalf("expected error on start, got %v", vErr.FieldErrors)
		}
	})
}

func TestResyncParticipants(t *testing.T) {
	ctx := context.Background()

	t.Run("pushes the prototype assignments onto every room", func(t *testing.T) {
		store := newStoreStub()
		store.rooms["prototype-1"] = testPrototype()
		service := newTestService(store, &dispatchStub{})
		series, err := service.CreateSeries(ctx, CreateSeriesParams{
			Rule:            weeklyRule(),
			PrototypeRoomID: "prototype-1",
			Count:           3,
		})
		if err != nil {
			t.Fatalf("failed to create series: %v", err)
		}

		// Drift: one instance loses its participants, the assignment set grows.
		drifted := series.Generations[0].Rooms[1]
		if err := store.UpdateRoomParticipants(ctx, drifted.ID, nil); err != nil {
			t.Fatalf("failed to drift room: %v", err)
		}
		prototype := store.rooms["prototype-1"]
		prototype.PrototypeParticipantIDs = []string{"alice", "bob", "carol"}
		store.rooms["prototype-1"] = prototype

		for i := 0; i < 2; i++ {
			if err := service.ResyncParticipants(ctx, series.ID); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			rooms, err := store.ListRoomsForSeries(ctx, series.ID)
			if err != nil {
				t.Fatalf("failed to list rooms: %v", err)
			}
			for _, room := range rooms {
				if len(room.ParticipantIDs) != 3 {
					t.Fatalf("room %s not in sync: %v", room.ID, room.ParticipantIDs)
				}
			}
			if got := store.rooms["prototype-1"].ParticipantIDs; len(got) != 3 {
				t.Fatalf("prototype not in sync: %v", got)
			}
		}
	})

	t.Run("unknown series maps to not found", func(t *testing.T) {
		service := newTestService(newStoreStub(), &dispatchStub{})
		if err := service.ResyncParticipants(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestExtendSeries(t *testing.T) {
	ctx := context.Background()

	t.Run("continues past the last generated occurrence", func(t *testing.T) {
		store := newStoreStub()
		store.rooms["prototype-1"] = testPrototype()
		service := newTestService(store, &dispatchStub{})
		series, err := service.CreateSeries(ctx, CreateSeriesParams{
			Rule:            weeklyRule(),
			PrototypeRoomID: "prototype-1",
			Count:           3,
		})
		if err != nil {
			t.Fatalf("failed to create series: %v", err)
		}

		generation, err := service.ExtendSeries(ctx, series.ID, 2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if generation.Index != 1 {
			t.Fatalf("expected generation index 1, got %d", generation.Index)
		}
		assertStarts(t, generation.Rooms, []time.Time{
			time.Date(2021, time.February, 5, 15, 0, 0, 0, time.UTC),
			time.Date(2021, time.February, 12, 15, 0, 0, 0, time.UTC),
		})

		stored, err := store.GetSeries(ctx, series.ID)
		if err != nil {
			t.Fatalf("failed to load series: %v", err)
		}
		if stored.GenerationCount != 2 {
			t.Fatalf("expected generation count 2, got %d", stored.GenerationCount)
		}
	})

	t.Run("rejects a non-positive count", func(t *testing.T) {
		service := newTestService(newStoreStub(), &dispatchStub{})
		_, err := service.ExtendSeries(ctx, "series-1", 0)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("expected validation error, got %v", err)
		}
	})
}

func TestSendNotification(t *testing.T) {
	ctx := context.Background()

	t.Run("dispatches to the moderator and prototype participants", func(t *testing.T) {
		store := newStoreStub()
		store.rooms["prototype-1"] = testPrototype()
		dispatch := &dispatchStub{}
		service := newTestService(store, dispatch)
		series, err := service.CreateSeries(ctx, CreateSeriesParams{
			Rule:            weeklyRule(),
			PrototypeRoomID: "prototype-1",
			Count:           2,
		})
		if err != nil {
			t.Fatalf("failed to create series: %v", err)
		}
		dispatch.notifications = nil

		if err := service.SendNotification(ctx, series.ID, ModeParticipantRequest); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(dispatch.notifications) != 1 {
			t.Fatalf("expected one notification, got %d", len(dispatch.notifications))
		}
		sent := dispatch.notifications[0]
		if sent.Mode != ModeParticipantRequest || sent.TemplateID != "participant-request" {
			t.Fatalf("unexpected notification %+v", sent)
		}
		want := []string{"moderator", "alice", "bob"}
		if len(sent.Recipients) != len(want) {
			t.Fatalf("expected recipients %v, got %v", want, sent.Recipients)
		}
		for i, id := range want {
			if sent.Recipients[i] != id {
				t.Fatalf("expected recipients %v, got %v", want, sent.Recipients)
			}
		}
		if sent.SeriesID != series.ID {
			t.Fatalf("expected series %s on the notification, got %s", series.ID, sent.SeriesID)
		}
		if sent.Generation == nil || len(sent.Generation.Rooms) != 2 {
			t.Fatalf("expected the latest generation on the notification, got %+v", sent.Generation)
		}
	})

	t.Run("wraps dispatch failures", func(t *testing.T) {
		store := newStoreStub()
		store.rooms["prototype-1"] = testPrototype()
		dispatch := &dispatchStub{}
		service := newTestService(store, dispatch)
		series, err := service.CreateSeries(ctx, CreateSeriesParams{
			Rule:            weeklyRule(),
			PrototypeRoomID: "prototype-1",
			Count:           2,
		})
		if err != nil {
			t.Fatalf("failed to create series: %v", err)
		}

		dispatch.err = errors.New("smtp down")
		if err := service.SendNotification(ctx, series.ID, ModeNewSeries); err == nil {
			t.Fatal("expected an error")
		}
	})
}
