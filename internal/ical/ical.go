// Package ical exports series data to standard calendaring formats: an RRULE
// line describing the recurrence and an iCalendar document listing the
// materialized rooms of one generation.
package ical

import (
	"errors"
	"fmt"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"github.com/example/conference-repeater/internal/application"
	"github.com/example/conference-repeater/internal/recurrence"
)

// ErrUnsupportedRule indicates a rule that has no RRULE equivalent.
var ErrUnsupportedRule = errors.New("ical: unsupported rule")

// RRuleString renders a recurrence rule as an RFC 5545 RRULE value. The
// mapping is advisory: RRULE has no clamping, so a monthly rule anchored on
// the 31st skips short months instead of landing on their last day.
func RRuleString(rule recurrence.Rule, anchor time.Time, count int) (string, error) {
	if err := recurrence.Validate(rule); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedRule, err)
	}

	option := rrule.ROption{
		Interval: rule.Interval,
		Count:    count,
		Dtstart:  anchor,
	}

	switch rule.Family {
	case recurrence.FamilyDaily:
		option.Freq = rrule.DAILY
	case recurrence.FamilyWeekly:
		option.Freq = rrule.WEEKLY
	case recurrence.FamilyMonthlyFixed:
		option.Freq = rrule.MONTHLY
		option.Bymonthday = []int{anchor.Day()}
	case recurrence.FamilyMonthlyRelative:
		option.Freq = rrule.MONTHLY
		option.Byweekday = []rrule.Weekday{relativeWeekday(*rule.Weekday, *rule.Ordinal)}
	case recurrence.FamilyYearlyFixed:
		option.Freq = rrule.YEARLY
		option.Bymonth = []int{int(anchor.Month())}
		option.Bymonthday = []int{anchor.Day()}
	case recurrence.FamilyYearlyRelative:
		option.Freq = rrule.YEARLY
		month := anchor.Month()
		if rule.Month != nil {
			month = *rule.Month
		}
		option.Bymonth = []int{int(month)}
		option.Byweekday = []rrule.Weekday{relativeWeekday(*rule.Weekday, *rule.Ordinal)}
	default:
		return "", ErrUnsupportedRule
	}

	r, err := rrule.NewRRule(option)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedRule, err)
	}
	return r.OrigOptions.RRuleString(), nil
}

func relativeWeekday(weekday time.Weekday, ordinal recurrence.OrdinalWeek) rrule.Weekday {
	base := map[time.Weekday]rrule.Weekday{
		time.Monday:    rrule.MO,
		time.Tuesday:   rrule.TU,
		time.Wednesday: rrule.WE,
		time.Thursday:  rrule.TH,
		time.Friday:    rrule.FR,
		time.Saturday:  rrule.SA,
		time.Sunday:    rrule.SU,
	}[weekday]

	if ordinal == recurrence.OrdinalLast {
		return base.Nth(-1)
	}
	return base.Nth(int(ordinal) + 1)
}

// GenerationCalendar renders the rooms of one generation as an iCalendar
// document with one VEVENT per room, suitable as a mail attachment.
func GenerationCalendar(seriesID string, generation application.Generation) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodRequest)

	for _, room := range generation.Rooms {
		event := cal.AddEvent(room.ID)
		event.SetCreatedTime(room.CreatedAt)
		event.SetDtStampTime(room.CreatedAt)
		event.SetModifiedAt(room.UpdatedAt)
		event.SetStartAt(room.Start)
		event.SetEndAt(room.End)
		event.SetSummary(room.Name)
		event.SetOrganizer(room.ModeratorID)
		event.SetDescription(fmt.Sprintf("Occurrence %d of series %s", sequence(room), seriesID))
		for _, participant := range room.ParticipantIDs {
			event.AddAttendee(participant)
		}
	}

	return cal.Serialize()
}

func sequence(room application.Room) int {
	if room.SequenceIndex == nil {
		return 0
	}
	return *room.SequenceIndex + 1
}
