package schedule

import (
	"fmt"
	"strings"
	"time"
)

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) minutes() int { return c.Hour*60 + c.Minute }

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// ParseClock parses "HH:MM"; "24:00" is accepted as the end of a day.
func ParseClock(s string) (Clock, error) {
	var c Clock
	if _, err := fmt.Sscanf(strings.TrimSpace(s), "%d:%d", &c.Hour, &c.Minute); err != nil {
		return Clock{}, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	if c.Hour < 0 || c.Minute < 0 || c.Minute > 59 || c.Hour > 24 || (c.Hour == 24 && c.Minute != 0) {
		return Clock{}, fmt.Errorf("invalid time of day %q", s)
	}
	return c, nil
}

// Window is a daily span [From, To).
type Window struct {
	From Clock
	To   Clock
}

// ParseWindow parses "HH:MM-HH:MM".
func ParseWindow(s string) (Window, error) {
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		return Window{}, fmt.Errorf("invalid window %q: want HH:MM-HH:MM", s)
	}
	f, err := ParseClock(from)
	if err != nil {
		return Window{}, err
	}
	t, err := ParseClock(to)
	if err != nil {
		return Window{}, err
	}
	if t.minutes() <= f.minutes() {
		return Window{}, fmt.Errorf("invalid window %q: end must be after start", s)
	}
	return Window{From: f, To: t}, nil
}

func (w Window) on(day time.Time) Interval {
	y, m, d := day.Date()
	return Interval{
		Start: time.Date(y, m, d, w.From.Hour, w.From.Minute, 0, 0, day.Location()),
		End:   time.Date(y, m, d, w.To.Hour, w.To.Minute, 0, 0, day.Location()),
	}
}

// DefaultBusinessHours is used when BusinessHoursOnly is set without hours.
var DefaultBusinessHours = Window{From: Clock{9, 0}, To: Clock{17, 0}}

// Constraints restrict when a slot may fall.
type Constraints struct {
	// Weekdays allowed; empty allows every day.
	Weekdays        []time.Weekday
	ExcludeWeekends bool
	// BusinessHoursOnly limits slots to BusinessHours on each day.
	BusinessHoursOnly bool
	BusinessHours     Window
	// PreferredTimes are "HH:MM-HH:MM" windows; a slot must fall in one.
	PreferredTimes []string
	// Location interprets days and windows; nil means UTC.
	Location *time.Location
}

func (c Constraints) allowsDay(d time.Weekday) bool {
	if c.ExcludeWeekends && (d == time.Saturday || d == time.Sunday) {
		return false
	}
	if len(c.Weekdays) == 0 {
		return true
	}
	for _, w := range c.Weekdays {
		if w == d {
			return true
		}
	}
	return false
}

// allowed returns the spans inside span that satisfy the constraints.
func (c Constraints) allowed(span Interval) ([]Interval, error) {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	preferred := make([]Window, 0, len(c.PreferredTimes))
	for _, p := range c.PreferredTimes {
		w, err := ParseWindow(p)
		if err != nil {
			return nil, err
		}
		preferred = append(preferred, w)
	}
	hours := c.BusinessHours
	if c.BusinessHoursOnly && hours == (Window{}) {
		hours = DefaultBusinessHours
	}

	var out []Interval
	s := span.Start.In(loc)
	for day := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, loc); day.Before(span.End); day = day.AddDate(0, 0, 1) {
		if !c.allowsDay(day.Weekday()) {
			continue
		}
		next := day.AddDate(0, 0, 1)
		today := []Interval{{Start: day, End: next}}
		if c.BusinessHoursOnly {
			today = Intersect(today, []Interval{hours.on(day)})
		}
		if len(preferred) > 0 {
			var prefs []Interval
			for _, w := range preferred {
				prefs = append(prefs, w.on(day))
			}
			today = Intersect(today, prefs)
		}
		for _, i := range today {
			if clipped, ok := i.Clip(span); ok {
				out = append(out, clipped)
			}
		}
	}
	return Merge(out), nil
}
