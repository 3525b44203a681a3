package recurrence

import (
	"testing"
	"time"
)

func weekdayPtr(d time.Weekday) *time.Weekday { return &d }
func ordinalPtr(o OrdinalWeek) *OrdinalWeek   { return &o }
func monthPtr(m time.Month) *time.Month       { return &m }

func at(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

func TestGenerate_FixedFamilies(t *testing.T) {
	t.Parallel()

	anchor := at(2021, time.January, 15, 15, 0)

	cases := []struct {
		name string
		rule Rule
		want []time.Time
	}{
		{
			name: "daily every day",
			rule: Rule{Family: FamilyDaily, Interval: 1},
			want: []time.Time{
				at(2021, time.January, 15, 15, 0),
				at(2021, time.January, 16, 15, 0),
				at(2021, time.January, 17, 15, 0),
			},
		},
		{
			name: "daily every third day",
			rule: Rule{Family: FamilyDaily, Interval: 3},
			want: []time.Time{
				at(2021, time.January, 15, 15, 0),
				at(2021, time.January, 18, 15, 0),
				at(2021, time.January, 21, 15, 0),
			},
		},
		{
			name: "weekly every week",
			rule: Rule{Family: FamilyWeekly, Interval: 1},
			want: []time.Time{
				at(2021, time.January, 15, 15, 0),
				at(2021, time.January, 22, 15, 0),
				at(2021, time.January, 29, 15, 0),
			},
		},
		{
			name: "monthly on the anchor day",
			rule: Rule{Family: FamilyMonthlyFixed, Interval: 1},
			want: []time.Time{
				at(2021, time.January, 15, 15, 0),
				at(2021, time.February, 15, 15, 0),
				at(2021, time.March, 15, 15, 0),
			},
		},
		{
			name: "yearly on the anchor day",
			rule: Rule{Family: FamilyYearlyFixed, Interval: 1},
			want: []time.Time{
				at(2021, time.January, 15, 15, 0),
				at(2022, time.January, 15, 15, 0),
				at(2023, time.January, 15, 15, 0),
			},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Generate(tc.rule, anchor, len(tc.want))
			assertDates(t, got, tc.want)
		})
	}
}

func TestGenerate_MonthLengthClamp(t *testing.T) {
	t.Parallel()

	anchor := at(2021, time.January, 31, 9, 30)
	got := Generate(Rule{Family: FamilyMonthlyFixed, Interval: 1}, anchor, 4)
	want := []time.Time{
		at(2021, time.January, 31, 9, 30),
		at(2021, time.February, 28, 9, 30),
		at(2021, time.March, 31, 9, 30),
		at(2021, time.April, 30, 9, 30),
	}
	assertDates(t, got, want)
}

func TestGenerate_LeapDayClamp(t *testing.T) {
	t.Parallel()

	anchor := at(2020, time.February, 29, 12, 0)
	got := Generate(Rule{Family: FamilyYearlyFixed, Interval: 1}, anchor, 3)
	want := []time.Time{
		at(2020, time.February, 29, 12, 0),
		at(2021, time.February, 28, 12, 0),
		at(2022, time.February, 28, 12, 0),
	}
	assertDates(t, got, want)
}

func TestGenerate_MonthlyRelative(t *testing.T) {
	t.Parallel()

	rule := Rule{
		Family:   FamilyMonthlyRelative,
		Interval: 1,
		Weekday:  weekdayPtr(time.Monday),
		Ordinal:  ordinalPtr(OrdinalFirst),
	}

	t.Run("anchor after its own candidate skips the anchor month", func(t *testing.T) {
		t.Parallel()
		// First Monday of January 2021 is the 4th, before the anchor.
		got := Generate(rule, at(2021, time.January, 15, 15, 0), 3)
		want := []time.Time{
			at(2021, time.February, 1, 15, 0),
			at(2021, time.March, 1, 15, 0),
			at(2021, time.April, 5, 15, 0),
		}
		assertDates(t, got, want)
	})

	t.Run("anchor before its own candidate keeps the anchor month", func(t *testing.T) {
		t.Parallel()
		got := Generate(rule, at(2021, time.January, 1, 15, 0), 3)
		want := []time.Time{
			at(2021, time.January, 4, 15, 0),
			at(2021, time.February, 1, 15, 0),
			at(2021, time.March, 1, 15, 0),
		}
		assertDates(t, got, want)
	})

	t.Run("anchor exactly on the candidate includes it", func(t *testing.T) {
		t.Parallel()
		got := Generate(rule, at(2021, time.January, 4, 15, 0), 2)
		want := []time.Time{
			at(2021, time.January, 4, 15, 0),
			at(2021, time.February, 1, 15, 0),
		}
		assertDates(t, got, want)
	})

	t.Run("last weekday handles four and five week months", func(t *testing.T) {
		t.Parallel()
		lastRule := Rule{
			Family:   FamilyMonthlyRelative,
			Interval: 1,
			Weekday:  weekdayPtr(time.Monday),
			Ordinal:  ordinalPtr(OrdinalLast),
		}
		// February 2021 has four Mondays (22nd), March has five (29th).
		got := Generate(lastRule, at(2021, time.February, 1, 8, 0), 2)
		want := []time.Time{
			at(2021, time.February, 22, 8, 0),
			at(2021, time.March, 29, 8, 0),
		}
		assertDates(t, got, want)
	})
}

func TestGenerate_YearlyRelative(t *testing.T) {
	t.Parallel()

	rule := Rule{
		Family:   FamilyYearlyRelative,
		Interval: 1,
		Weekday:  weekdayPtr(time.Monday),
		Ordinal:  ordinalPtr(OrdinalFirst),
		Month:    monthPtr(time.January),
	}

	t.Run("anchor after its own candidate skips the anchor year", func(t *testing.T) {
		t.Parallel()
		got := Generate(rule, at(2021, time.January, 15, 15, 0), 3)
		want := []time.Time{
			at(2022, time.January, 3, 15, 0),
			at(2023, time.January, 2, 15, 0),
			at(2024, time.January, 1, 15, 0),
		}
		assertDates(t, got, want)
	})

	t.Run("anchor before its own candidate keeps the anchor year", func(t *testing.T) {
		t.Parallel()
		got := Generate(rule, at(2021, time.January, 1, 15, 0), 3)
		want := []time.Time{
			at(2021, time.January, 4, 15, 0),
			at(2022, time.January, 3, 15, 0),
			at(2023, time.January, 2, 15, 0),
		}
		assertDates(t, got, want)
	})
}

func TestGenerate_CountAndOrdering(t *testing.T) {
	t.Parallel()

	anchor := at(2021, time.January, 15, 15, 0)
	rules := []Rule{
		{Family: FamilyDaily, Interval: 2},
		{Family: FamilyWeekly, Interval: 3},
		{Family: FamilyMonthlyFixed, Interval: 5},
		{Family: FamilyYearlyFixed, Interval: 2},
		{Family: FamilyMonthlyRelative, Interval: 2, Weekday: weekdayPtr(time.Thursday), Ordinal: ordinalPtr(OrdinalThird)},
		{Family: FamilyYearlyRelative, Interval: 1, Weekday: weekdayPtr(time.Sunday), Ordinal: ordinalPtr(OrdinalLast), Month: monthPtr(time.June)},
	}

	for _, rule := range rules {
		got := Generate(rule, anchor, 12)
		if len(got) != 12 {
			t.Fatalf("rule %v: expected 12 occurrences, got %d", rule.Family, len(got))
		}
		for i := 1; i < len(got); i++ {
			if !got[i].After(got[i-1]) {
				t.Fatalf("rule %v: occurrences not strictly increasing at %d: %v then %v", rule.Family, i, got[i-1], got[i])
			}
		}
	}
}

func TestGenerate_FixedIntervalSpacing(t *testing.T) {
	t.Parallel()

	anchor := at(2021, time.January, 15, 15, 0)

	daily := Generate(Rule{Family: FamilyDaily, Interval: 4}, anchor, 6)
	for i := 1; i < len(daily); i++ {
		if got := daily[i].Sub(daily[i-1]); got != 4*24*time.Hour {
			t.Fatalf("daily spacing at %d: got %v", i, got)
		}
	}

	weekly := Generate(Rule{Family: FamilyWeekly, Interval: 2}, anchor, 6)
	for i := 1; i < len(weekly); i++ {
		if got := weekly[i].Sub(weekly[i-1]); got != 14*24*time.Hour {
			t.Fatalf("weekly spacing at %d: got %v", i, got)
		}
	}

	monthly := Generate(Rule{Family: FamilyMonthlyFixed, Interval: 3}, anchor, 6)
	for i := 1; i < len(monthly); i++ {
		months := int(monthly[i].Month()) - int(monthly[i-1].Month()) + 12*(monthly[i].Year()-monthly[i-1].Year())
		if months != 3 {
			t.Fatalf("monthly spacing at %d: got %d months", i, months)
		}
	}
}

func TestGenerate_PreservesLocation(t *testing.T) {
	t.Parallel()

	berlin := time.FixedZone("CET", 60*60)
	anchor := time.Date(2021, time.January, 15, 15, 0, 0, 0, berlin)
	got := Generate(Rule{Family: FamilyMonthlyFixed, Interval: 1}, anchor, 3)
	for i, d := range got {
		if d.Location() != berlin {
			t.Fatalf("occurrence %d not in anchor location: %v", i, d.Location())
		}
		if d.Hour() != 15 {
			t.Fatalf("occurrence %d lost wall-clock time: %v", i, d)
		}
	}
}

func TestGenerate_InvalidInputs(t *testing.T) {
	t.Parallel()

	anchor := at(2021, time.January, 15, 15, 0)
	if got := Generate(Rule{Family: FamilyDaily, Interval: 1}, anchor, 0); got != nil {
		t.Fatalf("expected nil for zero count, got %v", got)
	}
	if got := Generate(Rule{Family: FamilyDaily, Interval: 0}, anchor, 3); got != nil {
		t.Fatalf("expected nil for invalid rule, got %v", got)
	}
}

func assertDates(t *testing.T, got, want []time.Time) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d occurrences, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("occurrence %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}
