// Package schedule expands class templates into concrete occurrences.
//
// All times are naive wall-clock times: Naive strips the zone so that values
// read from the database, parsed from requests and taken from the system
// clock compare consistently.
package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/studio-booking-api/internal/models"
)

// DefaultHorizon is how far ahead instances are generated.
const DefaultHorizon = 90 * 24 * time.Hour

var (
	// ErrMissingTemplateID indicates the template has not been persisted yet.
	ErrMissingTemplateID = errors.New("schedule: template id is required")
	// ErrInvalidDuration indicates a non-positive class duration.
	ErrInvalidDuration = errors.New("schedule: duration must be positive")
	// ErrInvalidCapacity indicates a non-positive capacity.
	ErrInvalidCapacity = errors.New("schedule: max capacity must be positive")
	// ErrDuplicateInstance indicates two occurrences mapped to the same id.
	ErrDuplicateInstance = errors.New("schedule: duplicate instance id")
)

// Naive returns t's wall clock reading tagged as UTC.
func Naive(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// Now is the naive current time.
func Now() time.Time {
	return Naive(time.Now())
}

// Expand generates every instance template t should have when expanded at
// now. Recurring patterns stop at now+horizon inclusive; one-time and pop-up
// templates always yield exactly the anchor occurrence.
func Expand(t models.ClassTemplate, now time.Time, horizon time.Duration) ([]models.ClassInstance, error) {
	if t.ID == "" {
		return nil, ErrMissingTemplateID
	}
	if t.DurationMinutes <= 0 {
		return nil, ErrInvalidDuration
	}
	if t.MaxCapacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if horizon <= 0 {
		horizon = DefaultHorizon
	}

	starts := Occurrences(t.RecurrencePattern, Naive(t.StartTime), Naive(now).Add(horizon))
	instances := make([]models.ClassInstance, 0, len(starts))
	seen := make(map[string]struct{}, len(starts))
	for _, start := range starts {
		id := models.InstanceID(t.ID, start)
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateInstance, id)
		}
		seen[id] = struct{}{}
		instances = append(instances, models.ClassInstance{
			InstanceID:  id,
			TemplateID:  t.ID,
			StartTime:   start,
			EndTime:     start.Add(t.Duration()),
			MaxCapacity: t.MaxCapacity,
		})
	}
	return instances, nil
}

// Occurrences lists the start times for pattern beginning at anchor. Recurring
// patterns include every start that is not after until.
func Occurrences(pattern models.RecurrencePattern, anchor, until time.Time) []time.Time {
	switch models.ParseRecurrence(string(pattern)) {
	case models.RecurrenceWeekly:
		return stepDays(anchor, until, 7)
	case models.RecurrenceBiWeekly:
		return stepDays(anchor, until, 14)
	case models.RecurrenceMonthly:
		return monthly(anchor, until)
	default:
		return []time.Time{anchor}
	}
}

func stepDays(anchor, until time.Time, days int) []time.Time {
	var out []time.Time
	for current := anchor; !current.After(until); current = current.AddDate(0, 0, days) {
		out = append(out, current)
	}
	return out
}

// monthly keeps the anchor's weekday and ordinal week of the month, e.g. the
// 2nd Tuesday, rather than its day of month.
func monthly(anchor, until time.Time) []time.Time {
	var out []time.Time
	weekday := anchor.Weekday()
	week := WeekOfMonth(anchor)
	for k := 0; ; k++ {
		current := anchor
		if k > 0 {
			current = NthWeekdayOfMonth(anchor.Year(), anchor.Month()+time.Month(k), weekday, week, anchor)
		}
		if current.After(until) {
			return out
		}
		out = append(out, current)
	}
}

// WeekOfMonth is the 1-based ordinal of t's weekday within its month.
func WeekOfMonth(t time.Time) int {
	return (t.Day() + 6) / 7
}

// NthWeekdayOfMonth returns the week-th weekday of the given month carrying
// clock's time of day. When the month has no such week the previous week is
// used. Month overflow is normalised, so month 13 is January of year+1.
func NthWeekdayOfMonth(year int, month time.Month, weekday time.Weekday, week int, clock time.Time) time.Time {
	first := time.Date(year, month, 1, clock.Hour(), clock.Minute(), clock.Second(), clock.Nanosecond(), clock.Location())
	offset := (int(weekday) - int(first.Weekday()) + 7) % 7
	candidate := first.AddDate(0, 0, offset+7*(week-1))
	if candidate.Month() != first.Month() {
		candidate = candidate.AddDate(0, 0, -7)
	}
	return candidate
}
