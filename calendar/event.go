package calendar

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"
)

// Event is the typed view of a VEVENT.
type Event struct {
	UID         string      `json:"uid"`
	Summary     string      `json:"summary"`
	Description string      `json:"description,omitempty"`
	Location    string      `json:"location,omitempty"`
	Start       time.Time   `json:"start"`
	End         time.Time   `json:"end"`
	AllDay      bool        `json:"all_day"`
	RRule       string      `json:"rrule,omitempty"`
	RDates      []time.Time `json:"rdates,omitempty"`
	ExDates     []time.Time `json:"exdates,omitempty"`
	Reminders   []Reminder  `json:"reminders,omitempty"`
	Attendees   []Attendee  `json:"attendees,omitempty"`
	Organizer   string      `json:"organizer,omitempty"`
	Categories  []string    `json:"categories,omitempty"`
	Status      string      `json:"status,omitempty"`
	// Transparency is TRANSP; TRANSPARENT events do not block time.
	Transparency string `json:"transparency,omitempty"`
	Priority     int    `json:"priority,omitempty"`
	Class        string `json:"class,omitempty"`
	URL          string `json:"url,omitempty"`
}

// Duration is End - Start.
func (e Event) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// Recurrence returns the inputs of recurrence expansion.
func (e Event) Recurrence() Recurrence {
	return Recurrence{Start: e.Start, RRule: e.RRule, RDates: e.RDates, ExDates: e.ExDates}
}

// HasParticipant reports whether address is an attendee or the organizer,
// compared case-insensitively without the mailto: scheme.
func (e Event) HasParticipant(address string) bool {
	address = normalizeAddress(address)
	if address == "" {
		return false
	}
	if normalizeAddress(e.Organizer) == address {
		return true
	}
	for _, a := range e.Attendees {
		if normalizeAddress(a.Address) == address {
			return true
		}
	}
	return false
}

// Reminder fires a relative duration before the occurrence start.
type Reminder struct {
	Before time.Duration `json:"before"`
	Action string        `json:"action,omitempty"`
}

// Attendee is one ATTENDEE property.
type Attendee struct {
	Address string `json:"address"`
	Name    string `json:"name,omitempty"`
	Role    string `json:"role,omitempty"`
	Status  string `json:"status,omitempty"`
}

func normalizeAddress(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 7 && strings.EqualFold(s[:7], "mailto:") {
		s = s[7:]
	}
	return strings.ToLower(s)
}

func text(comp *ical.Component, name string) string {
	p := comp.Props.Get(name)
	if p == nil {
		return ""
	}
	v, err := p.Text()
	if err != nil {
		return p.Value
	}
	return v
}

func isDate(p *ical.Prop) bool {
	return p != nil && p.ValueType() == ical.ValueDate
}

func eventFromComponent(comp *ical.Component) (Event, error) {
	ev := Event{
		UID:          text(comp, ical.PropUID),
		Summary:      text(comp, ical.PropSummary),
		Description:  text(comp, ical.PropDescription),
		Location:     text(comp, ical.PropLocation),
		Status:       strings.ToUpper(text(comp, ical.PropStatus)),
		Transparency: strings.ToUpper(text(comp, ical.PropTransparency)),
		Class:        text(comp, ical.PropClass),
		URL:          text(comp, ical.PropURL),
	}

	startProp := comp.Props.Get(ical.PropDateTimeStart)
	if startProp == nil {
		return Event{}, fmt.Errorf("event %q has no DTSTART", ev.UID)
	}
	start, err := startProp.DateTime(time.UTC)
	if err != nil {
		return Event{}, fmt.Errorf("invalid DTSTART: %w", err)
	}
	ev.Start = start
	ev.AllDay = isDate(startProp)

	end, err := eventEnd(comp, startProp, start)
	if err != nil {
		return Event{}, err
	}
	ev.End = end

	if p := comp.Props.Get(ical.PropRecurrenceRule); p != nil {
		ev.RRule = p.Value
	}
	if ev.RDates, err = dateList(comp, ical.PropRecurrenceDates); err != nil {
		return Event{}, fmt.Errorf("invalid RDATE: %w", err)
	}
	if ev.ExDates, err = dateList(comp, ical.PropExceptionDates); err != nil {
		return Event{}, fmt.Errorf("invalid EXDATE: %w", err)
	}
	if p := comp.Props.Get(ical.PropPriority); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			ev.Priority = n
		}
	}
	if p := comp.Props.Get(ical.PropOrganizer); p != nil {
		ev.Organizer = normalizeAddress(p.Value)
	}
	for _, p := range comp.Props.Values(ical.PropAttendee) {
		ev.Attendees = append(ev.Attendees, Attendee{
			Address: normalizeAddress(p.Value),
			Name:    p.Params.Get(ical.ParamCommonName),
			Role:    p.Params.Get(ical.ParamRole),
			Status:  p.Params.Get(ical.ParamParticipationStatus),
		})
	}
	for _, p := range comp.Props.Values(ical.PropCategories) {
		list, err := p.TextList()
		if err != nil {
			continue
		}
		for _, c := range list {
			if c = strings.TrimSpace(c); c != "" {
				ev.Categories = append(ev.Categories, c)
			}
		}
	}
	for _, child := range comp.Children {
		if child.Name != ical.CompAlarm {
			continue
		}
		if before, ok := relativeTrigger(child); ok {
			ev.Reminders = append(ev.Reminders, Reminder{Before: before, Action: text(child, ical.PropAction)})
		}
	}
	return ev, nil
}

// eventEnd resolves DTEND, or DTSTART+DURATION, or the implicit end: one
// day for all-day events, zero length otherwise.
func eventEnd(comp *ical.Component, startProp *ical.Prop, start time.Time) (time.Time, error) {
	if p := comp.Props.Get(ical.PropDateTimeEnd); p != nil {
		end, err := p.DateTime(time.UTC)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid DTEND: %w", err)
		}
		return end, nil
	}
	if p := comp.Props.Get(ical.PropDuration); p != nil {
		d, err := p.Duration()
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid DURATION: %w", err)
		}
		return start.Add(d), nil
	}
	if isDate(startProp) {
		return start.AddDate(0, 0, 1), nil
	}
	return start, nil
}

// dateList reads every value of a multi-valued date property. Date-only
// values become midnight UTC.
func dateList(comp *ical.Component, name string) ([]time.Time, error) {
	var out []time.Time
	for _, p := range comp.Props.Values(name) {
		for _, v := range strings.Split(p.Value, ",") {
			if v = strings.TrimSpace(v); v == "" {
				continue
			}
			single := ical.Prop{Name: p.Name, Params: p.Params, Value: v}
			t, err := single.DateTime(time.UTC)
			if err != nil {
				return nil, err
			}
			out = append(out, t)
		}
	}
	return out, nil
}

// relativeTrigger returns the lead time of an alarm whose TRIGGER is a
// duration relative to the start.
func relativeTrigger(alarm *ical.Component) (time.Duration, bool) {
	p := alarm.Props.Get(ical.PropTrigger)
	if p == nil || p.ValueType() == ical.ValueDateTime {
		return 0, false
	}
	if strings.EqualFold(p.Params.Get("RELATED"), "END") {
		return 0, false
	}
	d, err := p.Duration()
	if err != nil {
		return 0, false
	}
	return -d, true
}
