package calendar

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// DefaultMaxOccurrences caps one expansion of an unbounded rule.
const DefaultMaxOccurrences = 1000

// maxScan caps the candidates one expansion walks, kept or not.
const maxScan = 100000

// Range bounds an expansion. The end is exclusive unless InclusiveEnd is set.
type Range struct {
	Start        time.Time
	End          time.Time
	InclusiveEnd bool
}

// Contains reports whether t falls in the range.
func (r Range) Contains(t time.Time) bool {
	if t.Before(r.Start) {
		return false
	}
	if r.InclusiveEnd {
		return !t.After(r.End)
	}
	return t.Before(r.End)
}

func (r Range) pastEnd(t time.Time) bool {
	if r.InclusiveEnd {
		return t.After(r.End)
	}
	return !t.Before(r.End)
}

// ExpandOptions tunes an expansion.
type ExpandOptions struct {
	// MaxOccurrences bounds the result; 0 means DefaultMaxOccurrences.
	MaxOccurrences int
}

// Recurrence is the recurrence definition of one event.
type Recurrence struct {
	Start   time.Time
	RRule   string
	RDates  []time.Time
	ExDates []time.Time
}

// IsRecurring reports whether the event repeats.
func (r Recurrence) IsRecurring() bool {
	return r.RRule != "" || len(r.RDates) > 0
}

// Expand returns the occurrence starts within rng in chronological order. A
// non-recurring event yields its own start when it is in range.
func Expand(rec Recurrence, rng Range, opts ExpandOptions) ([]time.Time, error) {
	limit := opts.MaxOccurrences
	if limit <= 0 {
		limit = DefaultMaxOccurrences
	}
	if !rec.IsRecurring() {
		if rng.Contains(rec.Start) && !isExcluded(rec.Start, rec.ExDates) {
			return []time.Time{rec.Start}, nil
		}
		return nil, nil
	}

	set := &rrule.Set{}
	if rec.RRule != "" {
		opt, err := rrule.StrToROption(strings.TrimPrefix(rec.RRule, "RRULE:"))
		if err != nil {
			return nil, fmt.Errorf("failed to parse RRULE '%s': %w", rec.RRule, err)
		}
		opt.Dtstart = fastForward(*opt, rec.Start, rng.Start)
		rule, err := rrule.NewRRule(*opt)
		if err != nil {
			return nil, fmt.Errorf("failed to build RRULE '%s': %w", rec.RRule, err)
		}
		set.RRule(rule)
	} else {
		set.RDate(rec.Start)
	}
	for _, d := range rec.RDates {
		set.RDate(d.In(rec.Start.Location()))
	}

	var out []time.Time
	next := set.Iterator()
	scanned := 0
	for t, ok := next(); ok; t, ok = next() {
		if scanned++; scanned > maxScan || rng.pastEnd(t) {
			break
		}
		if t.Before(rng.Start) || isExcluded(t, rec.ExDates) {
			continue
		}
		out = append(out, t)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// fastForward moves the start of a daily or finer rule without COUNT to a
// period boundary shortly before from, so the iterator does not walk the
// history. Steps are taken in wall-clock time, which keeps the rule's
// lattice and its BYHOUR, BYMINUTE and BYSECOND defaults.
func fastForward(opt rrule.ROption, start, from time.Time) time.Time {
	if opt.Count > 0 || !start.Before(from) {
		return start
	}
	var unit time.Duration
	switch opt.Freq {
	case rrule.DAILY:
		unit = 24 * time.Hour
	case rrule.HOURLY:
		unit = time.Hour
	case rrule.MINUTELY:
		unit = time.Minute
	case rrule.SECONDLY:
		unit = time.Second
	default:
		return start
	}
	interval := opt.Interval
	if interval < 1 {
		interval = 1
	}
	step := unit * time.Duration(interval)

	loc := start.Location()
	wallStart := wallClock(start)
	// A day of slack covers any offset change between the two instants.
	periods := wallClock(from.Add(-24*time.Hour).In(loc)).Sub(wallStart) / step
	if periods <= 0 {
		return start
	}
	w := wallStart.Add(periods * step)
	return time.Date(w.Year(), w.Month(), w.Day(), w.Hour(), w.Minute(), w.Second(), start.Nanosecond(), loc)
}

// wallClock reads t's local date and time as a UTC instant.
func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

// isExcluded matches EXDATE values exactly, and date-only values (midnight
// UTC) against the occurrence's calendar date.
func isExcluded(t time.Time, exdates []time.Time) bool {
	for _, exdate := range exdates {
		if t.Equal(exdate) {
			return true
		}
		if exdate.Location() == time.UTC && exdate.Hour() == 0 && exdate.Minute() == 0 && exdate.Second() == 0 {
			y, m, d := t.Date()
			if time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Equal(exdate) {
				return true
			}
		}
	}
	return false
}

// Occurrence is one concrete instance of an event.
type Occurrence struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Occurrences returns the instances of ev that overlap rng, including those
// that start before the range and are still running at its start.
func Occurrences(ev Event, rng Range, opts ExpandOptions) ([]Occurrence, error) {
	d := ev.Duration()
	if d < 0 {
		d = 0
	}
	widened := Range{Start: rng.Start.Add(-d), End: rng.End, InclusiveEnd: rng.InclusiveEnd}
	starts, err := Expand(ev.Recurrence(), widened, opts)
	if err != nil {
		return nil, err
	}
	out := make([]Occurrence, 0, len(starts))
	for _, s := range starts {
		end := s.Add(d)
		if d > 0 && !end.After(rng.Start) {
			continue
		}
		if d == 0 && s.Before(rng.Start) {
			continue
		}
		out = append(out, Occurrence{Start: s, End: end})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}
