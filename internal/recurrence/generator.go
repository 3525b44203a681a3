package recurrence

import "time"

// Generate expands a rule into exactly count strictly increasing occurrence
// timestamps, starting from the anchor. It is a pure function of its inputs:
// no I/O, no clock reads, and all arithmetic happens in the anchor's
// wall-clock location.
//
// Callers are expected to Validate the rule first; Generate treats an invalid
// rule as a precondition violation and returns nil for it.
func Generate(rule Rule, anchor time.Time, count int) []time.Time {
	if count < 1 || Validate(rule) != nil {
		return nil
	}

	dates := make([]time.Time, 0, count)
	switch rule.Family {
	case FamilyDaily:
		for i := 0; i < count; i++ {
			dates = append(dates, anchor.AddDate(0, 0, i*rule.Interval))
		}
	case FamilyWeekly:
		for i := 0; i < count; i++ {
			dates = append(dates, anchor.AddDate(0, 0, 7*i*rule.Interval))
		}
	case FamilyMonthlyFixed:
		for i := 0; i < count; i++ {
			dates = append(dates, addMonthsClamped(anchor, i*rule.Interval))
		}
	case FamilyYearlyFixed:
		for i := 0; i < count; i++ {
			dates = append(dates, addMonthsClamped(anchor, 12*i*rule.Interval))
		}
	case FamilyMonthlyRelative:
		start := anchorPeriodMonths(anchor, *rule.Weekday, *rule.Ordinal, rule.Interval)
		for i := 0; i < count; i++ {
			period := start.AddDate(0, i*rule.Interval, 0)
			dates = append(dates, nthWeekdayOfMonth(period.Year(), period.Month(), *rule.Weekday, *rule.Ordinal, anchor))
		}
	case FamilyYearlyRelative:
		startYear := anchorPeriodYear(anchor, *rule.Month, *rule.Weekday, *rule.Ordinal, rule.Interval)
		for i := 0; i < count; i++ {
			dates = append(dates, nthWeekdayOfMonth(startYear+i*rule.Interval, *rule.Month, *rule.Weekday, *rule.Ordinal, anchor))
		}
	}
	return dates
}

// addMonthsClamped advances the anchor by the given number of whole months,
// clamping the day of month to the last valid day of the target month
// (Jan 31 + 1 month lands on Feb 28/29, not Mar 3). Time of day is preserved.
func addMonthsClamped(anchor time.Time, months int) time.Time {
	year, month, day := anchor.Date()
	// Normalize the target year/month via a day-1 date, which AddDate cannot
	// overflow, then clamp the day.
	first := time.Date(year, month, 1, 0, 0, 0, 0, anchor.Location()).AddDate(0, months, 0)
	targetYear, targetMonth := first.Year(), first.Month()
	if last := daysInMonth(targetYear, targetMonth); day > last {
		day = last
	}
	return time.Date(targetYear, targetMonth, day,
		anchor.Hour(), anchor.Minute(), anchor.Second(), anchor.Nanosecond(), anchor.Location())
}

func daysInMonth(year int, month time.Month) int {
	// Day zero of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// nthWeekdayOfMonth resolves the ordinal-th weekday within the given month,
// carrying the anchor's time of day.
func nthWeekdayOfMonth(year int, month time.Month, weekday time.Weekday, ordinal OrdinalWeek, anchor time.Time) time.Time {
	var day int
	if ordinal == OrdinalLast {
		last := daysInMonth(year, month)
		lastWeekday := time.Date(year, month, last, 0, 0, 0, 0, anchor.Location()).Weekday()
		day = last - int((lastWeekday-weekday+7)%7)
	} else {
		firstWeekday := time.Date(year, month, 1, 0, 0, 0, 0, anchor.Location()).Weekday()
		day = 1 + int((weekday-firstWeekday+7)%7) + 7*int(ordinal)
	}
	return time.Date(year, month, day,
		anchor.Hour(), anchor.Minute(), anchor.Second(), anchor.Nanosecond(), anchor.Location())
}

// anchorPeriodMonths decides whether a monthly relative series starts in the
// anchor's own month or skips ahead. The anchor month is kept when its
// candidate date has not yet passed at the anchor instant; otherwise the
// first occurrence falls one interval later. The returned time identifies the
// starting period (its year and month are significant).
func anchorPeriodMonths(anchor time.Time, weekday time.Weekday, ordinal OrdinalWeek, interval int) time.Time {
	period := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, anchor.Location())
	candidate := nthWeekdayOfMonth(anchor.Year(), anchor.Month(), weekday, ordinal, anchor)
	if candidate.Before(anchor) {
		period = period.AddDate(0, interval, 0)
	}
	return period
}

// anchorPeriodYear is the yearly analogue of anchorPeriodMonths: the anchor's
// own year counts when the candidate date in the rule's month has not yet
// passed, otherwise the series starts interval years later.
func anchorPeriodYear(anchor time.Time, month time.Month, weekday time.Weekday, ordinal OrdinalWeek, interval int) int {
	candidate := nthWeekdayOfMonth(anchor.Year(), month, weekday, ordinal, anchor)
	if candidate.Before(anchor) {
		return anchor.Year() + interval
	}
	return anchor.Year()
}
