// Package schedule computes free time across calendars and applies filtered
// mutations to many events at once.
package schedule

import (
	"sort"
	"time"
)

// Interval is the half-open span [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// Overlaps reports whether the two spans share any instant.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

func (i Interval) empty() bool {
	return !i.End.After(i.Start)
}

// Clip restricts i to within; ok is false when nothing remains.
func (i Interval) Clip(within Interval) (Interval, bool) {
	if i.Start.Before(within.Start) {
		i.Start = within.Start
	}
	if i.End.After(within.End) {
		i.End = within.End
	}
	return i, !i.empty()
}

// Merge sorts intervals and joins those that overlap or touch.
func Merge(in []Interval) []Interval {
	if len(in) == 0 {
		return nil
	}
	sorted := make([]Interval, 0, len(in))
	for _, i := range in {
		if !i.empty() {
			sorted = append(sorted, i)
		}
	}
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].Start.Before(sorted[b].Start) })

	var out []Interval
	for _, i := range sorted {
		if n := len(out); n > 0 && !i.Start.After(out[n-1].End) {
			if i.End.After(out[n-1].End) {
				out[n-1].End = i.End
			}
			continue
		}
		out = append(out, i)
	}
	return out
}

// Complement returns the gaps of busy within the span.
func Complement(busy []Interval, within Interval) []Interval {
	var out []Interval
	cursor := within.Start
	for _, b := range Merge(busy) {
		b, ok := b.Clip(within)
		if !ok {
			continue
		}
		if b.Start.After(cursor) {
			out = append(out, Interval{Start: cursor, End: b.Start})
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if within.End.After(cursor) {
		out = append(out, Interval{Start: cursor, End: within.End})
	}
	return out
}

// Intersect returns the spans covered by both sets.
func Intersect(a, b []Interval) []Interval {
	a, b = Merge(a), Merge(b)
	var out []Interval
	for i, j := 0, 0; i < len(a) && j < len(b); {
		start := maxTime(a[i].Start, b[j].Start)
		end := minTime(a[i].End, b[j].End)
		if end.After(start) {
			out = append(out, Interval{Start: start, End: end})
		}
		if a[i].End.Before(b[j].End) {
			i++
		} else {
			j++
		}
	}
	return out
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
