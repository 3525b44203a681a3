package recurrence

import (
	"errors"
	"fmt"
	"time"
)

// Family identifies one of the supported recurrence rule families.
type Family int

const (
	// FamilyUnspecified indicates the rule family is not set.
	FamilyUnspecified Family = iota
	// FamilyDaily repeats every Interval days.
	FamilyDaily
	// FamilyWeekly repeats every Interval weeks.
	FamilyWeekly
	// FamilyMonthlyFixed repeats every Interval months on the anchor's day of month.
	FamilyMonthlyFixed
	// FamilyMonthlyRelative repeats every Interval months on the Ordinal-th Weekday.
	FamilyMonthlyRelative
	// FamilyYearlyFixed repeats every Interval years on the anchor's month and day.
	FamilyYearlyFixed
	// FamilyYearlyRelative repeats every Interval years on the Ordinal-th Weekday of Month.
	FamilyYearlyRelative
)

// String returns a stable label for logging and persistence.
func (f Family) String() string {
	switch f {
	case FamilyDaily:
		return "daily"
	case FamilyWeekly:
		return "weekly"
	case FamilyMonthlyFixed:
		return "monthly_fixed"
	case FamilyMonthlyRelative:
		return "monthly_relative"
	case FamilyYearlyFixed:
		return "yearly_fixed"
	case FamilyYearlyRelative:
		return "yearly_relative"
	default:
		return "unspecified"
	}
}

// ParseFamily maps a stored label back to its family.
func ParseFamily(label string) (Family, error) {
	switch label {
	case "daily":
		return FamilyDaily, nil
	case "weekly":
		return FamilyWeekly, nil
	case "monthly_fixed":
		return FamilyMonthlyFixed, nil
	case "monthly_relative":
		return FamilyMonthlyRelative, nil
	case "yearly_fixed":
		return FamilyYearlyFixed, nil
	case "yearly_relative":
		return FamilyYearlyRelative, nil
	default:
		return FamilyUnspecified, fmt.Errorf("%w: %q", ErrInvalidFamily, label)
	}
}

// OrdinalWeek selects which matching weekday within a period a relative rule
// refers to. Last resolves to the final matching weekday whether the period
// contains four or five of them.
type OrdinalWeek int

const (
	OrdinalFirst OrdinalWeek = iota
	OrdinalSecond
	OrdinalThird
	OrdinalFourth
	OrdinalLast
)

// String returns a stable label for logging and persistence.
func (o OrdinalWeek) String() string {
	switch o {
	case OrdinalFirst:
		return "first"
	case OrdinalSecond:
		return "second"
	case OrdinalThird:
		return "third"
	case OrdinalFourth:
		return "fourth"
	case OrdinalLast:
		return "last"
	default:
		return "unknown"
	}
}

// Rule describes a recurrence configuration for a room series.
//
// Interval is required by every family. Weekday and Ordinal are only
// meaningful for the two relative families; Month additionally binds
// FamilyYearlyRelative to a fixed month of the year.
type Rule struct {
	Family   Family
	Interval int
	Weekday  *time.Weekday
	Ordinal  *OrdinalWeek
	Month    *time.Month
}

// ErrInvalidFamily indicates the rule family is not one of the supported six.
var ErrInvalidFamily = errors.New("recurrence: invalid rule family")

// ErrInvalidInterval indicates the rule interval is below one.
var ErrInvalidInterval = errors.New("recurrence: interval must be at least 1")

// MissingParameterError reports a relative-family parameter that is required
// but absent.
type MissingParameterError struct {
	Field string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("recurrence: missing parameter %q", e.Field)
}

// Validate checks that a rule's parameters are self-consistent for its
// family. Validation is purely structural: it never inspects the anchor date
// or the prototype room.
func Validate(rule Rule) error {
	switch rule.Family {
	case FamilyDaily, FamilyWeekly, FamilyMonthlyFixed, FamilyYearlyFixed:
	case FamilyMonthlyRelative:
		if rule.Weekday == nil {
			return &MissingParameterError{Field: "weekday"}
		}
		if rule.Ordinal == nil {
			return &MissingParameterError{Field: "ordinal"}
		}
	case FamilyYearlyRelative:
		if rule.Weekday == nil {
			return &MissingParameterError{Field: "weekday"}
		}
		if rule.Ordinal == nil {
			return &MissingParameterError{Field: "ordinal"}
		}
		if rule.Month == nil {
			return &MissingParameterError{Field: "month"}
		}
	default:
		return ErrInvalidFamily
	}

	if rule.Interval < 1 {
		return ErrInvalidInterval
	}
	return nil
}
