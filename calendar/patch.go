package calendar

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/samber/mo"
)

// Patch is a partial update. Only present fields are written; everything
// else in the component, including unmodelled properties, is left as read.
type Patch struct {
	Summary     mo.Option[string]    `json:"summary"`
	Description mo.Option[string]    `json:"description"`
	Location    mo.Option[string]    `json:"location"`
	Start       mo.Option[time.Time] `json:"start"`
	End         mo.Option[time.Time] `json:"end"`
	AllDay      mo.Option[bool]      `json:"all_day"`
	// RRule set to "" removes the recurrence.
	RRule      mo.Option[string]     `json:"rrule"`
	Reminders  mo.Option[[]Reminder] `json:"reminders"`
	Attendees  mo.Option[[]Attendee] `json:"attendees"`
	Categories mo.Option[[]string]   `json:"categories"`
	Status     mo.Option[string]     `json:"status"`
	Priority   mo.Option[int]        `json:"priority"`
	Class      mo.Option[string]     `json:"class"`
	URL        mo.Option[string]     `json:"url"`
}

// IsEmpty reports whether the patch would change nothing.
func (p Patch) IsEmpty() bool {
	return p.Summary.IsAbsent() && p.Description.IsAbsent() && p.Location.IsAbsent() &&
		p.Start.IsAbsent() && p.End.IsAbsent() && p.AllDay.IsAbsent() && p.RRule.IsAbsent() &&
		p.Reminders.IsAbsent() && p.Attendees.IsAbsent() && p.Categories.IsAbsent() &&
		p.Status.IsAbsent() && p.Priority.IsAbsent() && p.Class.IsAbsent() && p.URL.IsAbsent()
}

// Apply overlays the patch onto the object's VEVENT.
func (p Patch) Apply(obj *Object) error {
	comp := obj.component()
	if comp == nil {
		return errors.New("calendar has no VEVENT")
	}
	current, err := eventFromComponent(comp)
	if err != nil {
		return err
	}

	setText(comp, ical.PropSummary, p.Summary)
	setText(comp, ical.PropDescription, p.Description)
	setText(comp, ical.PropLocation, p.Location)
	setText(comp, ical.PropClass, p.Class)
	setText(comp, ical.PropURL, p.URL)
	if v, ok := p.Status.Get(); ok {
		setText(comp, ical.PropStatus, mo.Some(strings.ToUpper(v)))
	}
	if v, ok := p.Priority.Get(); ok {
		comp.Props.SetText(ical.PropPriority, strconv.Itoa(v))
	}

	if p.Start.IsPresent() || p.End.IsPresent() || p.AllDay.IsPresent() {
		allDay := p.AllDay.OrElse(current.AllDay)
		start := p.Start.OrElse(current.Start)
		end := p.End.OrElse(time.Time{})
		if p.End.IsAbsent() && comp.Props.Get(ical.PropDateTimeEnd) == nil && comp.Props.Get(ical.PropDuration) == nil {
			end = time.Time{}
		} else if p.End.IsAbsent() {
			// Keep the length when only the start moves.
			end = start.Add(current.Duration())
		}
		if allDay && !end.IsZero() && !dateOf(end).After(dateOf(start)) {
			end = dateOf(start).AddDate(0, 0, 1)
		}
		if !end.IsZero() && end.Before(start) {
			return errors.New("event end is before its start")
		}
		setTime(comp, ical.PropDateTimeStart, start, allDay)
		if !end.IsZero() {
			comp.Props.Del(ical.PropDuration)
			setTime(comp, ical.PropDateTimeEnd, end, allDay)
		}
	}

	if v, ok := p.RRule.Get(); ok {
		comp.Props.Del(ical.PropRecurrenceRule)
		if v = strings.TrimPrefix(strings.TrimSpace(v), "RRULE:"); v != "" {
			prop := ical.NewProp(ical.PropRecurrenceRule)
			prop.Value = v
			comp.Props.Set(prop)
		}
	}

	if v, ok := p.Categories.Get(); ok {
		comp.Props.Del(ical.PropCategories)
		if len(v) > 0 {
			prop := ical.NewProp(ical.PropCategories)
			prop.SetTextList(v)
			comp.Props.Set(prop)
		}
	}

	if v, ok := p.Attendees.Get(); ok {
		comp.Props.Del(ical.PropAttendee)
		for _, a := range v {
			comp.Props.Add(attendeeProp(a))
		}
	}

	if v, ok := p.Reminders.Get(); ok {
		kept := comp.Children[:0]
		for _, child := range comp.Children {
			if child.Name == ical.CompAlarm {
				if _, relative := relativeTrigger(child); relative {
					continue
				}
			}
			kept = append(kept, child)
		}
		comp.Children = kept
		for _, r := range v {
			comp.Children = append(comp.Children, alarm(r))
		}
	}

	touch(comp)
	return nil
}

func setText(comp *ical.Component, name string, v mo.Option[string]) {
	s, ok := v.Get()
	if !ok {
		return
	}
	if s == "" {
		comp.Props.Del(name)
		return
	}
	comp.Props.SetText(name, s)
}

// setTime replaces a date property, writing VALUE=DATE for all-day values.
func setTime(comp *ical.Component, name string, t time.Time, allDay bool) {
	prop := ical.NewProp(name)
	if allDay {
		prop.SetDate(t)
	} else {
		prop.SetDateTime(wireTime(t))
	}
	comp.Props.Set(prop)
}

// wireTime returns t in a zone a TZID can name. Fixed offsets and the
// process-local zone have no IANA name and are written as UTC.
func wireTime(t time.Time) time.Time {
	name := t.Location().String()
	if name == "UTC" {
		return t
	}
	if name == "" || name == "Local" {
		return t.UTC()
	}
	if _, err := time.LoadLocation(name); err != nil {
		return t.UTC()
	}
	return t
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func attendeeProp(a Attendee) *ical.Prop {
	prop := ical.NewProp(ical.PropAttendee)
	prop.Value = "mailto:" + normalizeAddress(a.Address)
	if a.Name != "" {
		prop.Params.Set(ical.ParamCommonName, a.Name)
	}
	if a.Role != "" {
		prop.Params.Set(ical.ParamRole, strings.ToUpper(a.Role))
	}
	status := strings.ToUpper(a.Status)
	if status == "" {
		status = "NEEDS-ACTION"
	}
	prop.Params.Set(ical.ParamParticipationStatus, status)
	return prop
}

func alarm(r Reminder) *ical.Component {
	comp := ical.NewComponent(ical.CompAlarm)
	action := strings.ToUpper(r.Action)
	if action == "" {
		action = "DISPLAY"
	}
	comp.Props.SetText(ical.PropAction, action)
	comp.Props.SetText(ical.PropDescription, "Event reminder")
	trigger := ical.NewProp(ical.PropTrigger)
	trigger.SetDuration(-r.Before)
	comp.Props.Set(trigger)
	return comp
}

// touch records a modification: DTSTAMP, LAST-MODIFIED and SEQUENCE.
func touch(comp *ical.Component) {
	ts := now().UTC()
	comp.Props.SetDateTime(ical.PropDateTimeStamp, ts)
	comp.Props.SetDateTime(ical.PropLastModified, ts)
	seq := 0
	if p := comp.Props.Get(ical.PropSequence); p != nil {
		seq, _ = strconv.Atoi(strings.TrimSpace(p.Value))
	}
	comp.Props.SetText(ical.PropSequence, strconv.Itoa(seq+1))
}

// EventFields are the caller-supplied fields of a new event.
type EventFields struct {
	// UID is generated when empty.
	UID         string     `json:"uid,omitempty"`
	Summary     string     `json:"summary"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	Start       time.Time  `json:"start"`
	End         time.Time  `json:"end,omitempty"`
	AllDay      bool       `json:"all_day,omitempty"`
	RRule       string     `json:"rrule,omitempty"`
	Reminders   []Reminder `json:"reminders,omitempty"`
	Attendees   []Attendee `json:"attendees,omitempty"`
	Categories  []string   `json:"categories,omitempty"`
	Status      string     `json:"status,omitempty"`
	Priority    int        `json:"priority,omitempty"`
	Class       string     `json:"class,omitempty"`
	URL         string     `json:"url,omitempty"`
}

// New builds a calendar object holding one event. Without an end, timed
// events last one hour and all-day events one day. Status, priority and
// class default to CONFIRMED, 5 and PUBLIC.
func New(f EventFields) (*Object, error) {
	if f.Start.IsZero() {
		return nil, errors.New("event start is required")
	}
	uid := f.UID
	if uid == "" {
		uid = uuid.New().String()
	}
	end := f.End
	if end.IsZero() {
		if f.AllDay {
			end = f.Start.AddDate(0, 0, 1)
		} else {
			end = f.Start.Add(time.Hour)
		}
	}
	status := f.Status
	if status == "" {
		status = "CONFIRMED"
	}
	priority := f.Priority
	if priority == 0 {
		priority = 5
	}
	class := f.Class
	if class == "" {
		class = "PUBLIC"
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Props.SetText(ical.PropVersion, "2.0")

	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, uid)
	created := now().UTC()
	event.Props.SetDateTime(ical.PropCreated, created)
	setTime(event.Component, ical.PropDateTimeStart, f.Start, f.AllDay)
	cal.Children = append(cal.Children, event.Component)
	obj := &Object{Cal: cal}

	patch := Patch{
		Summary:    mo.Some(f.Summary),
		End:        mo.Some(end),
		AllDay:     mo.Some(f.AllDay),
		Status:     mo.Some(status),
		Priority:   mo.Some(priority),
		Class:      mo.Some(class),
		Categories: mo.Some(f.Categories),
		Attendees:  mo.Some(f.Attendees),
		Reminders:  mo.Some(f.Reminders),
	}
	if f.Description != "" {
		patch.Description = mo.Some(f.Description)
	}
	if f.Location != "" {
		patch.Location = mo.Some(f.Location)
	}
	if f.RRule != "" {
		patch.RRule = mo.Some(f.RRule)
	}
	if f.URL != "" {
		patch.URL = mo.Some(f.URL)
	}
	if err := patch.Apply(obj); err != nil {
		return nil, err
	}
	// A fresh object starts at sequence 0.
	event.Props.SetText(ical.PropSequence, "0")
	return obj, nil
}
