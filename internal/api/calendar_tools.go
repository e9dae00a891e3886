package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ncmcp/ncclient/caldav"
	"github.com/ncmcp/ncclient/calendar"
	"github.com/ncmcp/ncclient/schedule"
)

// eventView is an event as returned to callers.
type eventView struct {
	Calendar string `json:"calendar"`
	Href     string `json:"href"`
	ETag     string `json:"etag"`
	calendar.Event
}

func viewOf(calendarName string, obj *calendar.Object) (eventView, error) {
	ev, err := obj.Event()
	if err != nil {
		return eventView{}, err
	}
	return eventView{Calendar: calendarName, Href: obj.Href, ETag: obj.ETag, Event: ev}, nil
}

func storedViews(events []schedule.StoredEvent) []eventView {
	out := make([]eventView, 0, len(events))
	for _, e := range events {
		out = append(out, eventView{Calendar: e.Calendar, Href: e.Href, ETag: e.ETag, Event: e.Event})
	}
	return out
}

type eventRef struct {
	Calendar string `json:"calendar"`
	UID      string `json:"uid"`
}

// eventFilter is the shared filter of event search and bulk operations.
// Times are RFC 3339.
type eventFilter struct {
	Calendars        []string  `json:"calendars"`
	Start            time.Time `json:"start"`
	End              time.Time `json:"end"`
	TitleContains    string    `json:"title_contains"`
	LocationContains string    `json:"location_contains"`
	MinAttendees     int       `json:"min_attendees"`
	MinDurationMins  int       `json:"min_duration_minutes"`
	Categories       []string  `json:"categories"`
	Status           string    `json:"status"`
}

func (f eventFilter) bulk() schedule.BulkFilter {
	return schedule.BulkFilter{
		Calendars:        f.Calendars,
		Start:            f.Start,
		End:              f.End,
		TitleContains:    f.TitleContains,
		LocationContains: f.LocationContains,
		MinAttendees:     f.MinAttendees,
		MinDuration:      time.Duration(f.MinDurationMins) * time.Minute,
		Categories:       f.Categories,
		Status:           f.Status,
	}
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

type availabilityArgs struct {
	Attendees         []string  `json:"attendees"`
	DurationMinutes   int       `json:"duration_minutes"`
	Start             time.Time `json:"start"`
	End               time.Time `json:"end"`
	Calendars         []string  `json:"calendars"`
	Weekdays          []string  `json:"weekdays"`
	ExcludeWeekends   bool      `json:"exclude_weekends"`
	BusinessHoursOnly bool      `json:"business_hours_only"`
	BusinessHours     string    `json:"business_hours"`
	PreferredTimes    []string  `json:"preferred_times"`
	Timezone          string    `json:"timezone"`
	MaxSlots          int       `json:"max_slots"`
}

func (a availabilityArgs) query() (schedule.AvailabilityQuery, error) {
	q := schedule.AvailabilityQuery{
		Attendees: a.Attendees,
		Duration:  time.Duration(a.DurationMinutes) * time.Minute,
		Range:     schedule.Interval{Start: a.Start, End: a.End},
		Calendars: a.Calendars,
		MaxSlots:  a.MaxSlots,
		Constraints: schedule.Constraints{
			ExcludeWeekends:   a.ExcludeWeekends,
			BusinessHoursOnly: a.BusinessHoursOnly,
			PreferredTimes:    a.PreferredTimes,
		},
	}
	for _, name := range a.Weekdays {
		d, ok := weekdays[strings.ToLower(name)]
		if !ok {
			return q, fmt.Errorf("unknown weekday %q", name)
		}
		q.Constraints.Weekdays = append(q.Constraints.Weekdays, d)
	}
	if a.BusinessHours != "" {
		w, err := schedule.ParseWindow(a.BusinessHours)
		if err != nil {
			return q, err
		}
		q.Constraints.BusinessHours = w
	}
	if a.Timezone != "" {
		loc, err := time.LoadLocation(a.Timezone)
		if err != nil {
			return q, fmt.Errorf("unknown timezone %q: %w", a.Timezone, err)
		}
		q.Constraints.Location = loc
	}
	return q, nil
}

func (s *Server) registerCalendarTools() {
	s.register("calendar_list", bind(func(ctx context.Context, _ struct{}) (any, error) {
		return s.nc.Calendar.ListCalendars(ctx)
	}))
	s.register("calendar_create", bind(func(ctx context.Context, a caldav.CalendarSpec) (any, error) {
		if err := s.nc.Calendar.CreateCalendar(ctx, a); err != nil {
			return nil, err
		}
		return map[string]string{"created": a.Name}, nil
	}))
	s.register("calendar_delete", bind(func(ctx context.Context, a struct {
		Name string `json:"name"`
	}) (any, error) {
		if err := s.nc.Calendar.DeleteCalendar(ctx, a.Name); err != nil {
			return nil, err
		}
		return map[string]string{"deleted": a.Name}, nil
	}))

	s.register("events_list", bind(func(ctx context.Context, a struct {
		Calendar   string    `json:"calendar"`
		Start      time.Time `json:"start"`
		End        time.Time `json:"end"`
		Summary    string    `json:"summary"`
		Location   string    `json:"location"`
		Categories []string  `json:"categories"`
		Status     string    `json:"status"`
		Limit      int       `json:"limit"`
	}) (any, error) {
		if a.Calendar == "" {
			return nil, invalidArgs("calendar is required")
		}
		q := s.nc.Calendar.Events(a.Calendar)
		if !a.Start.IsZero() || !a.End.IsZero() {
			q = q.TimeRange(a.Start, a.End)
		}
		if a.Summary != "" {
			q = q.Summary(a.Summary)
		}
		if a.Location != "" {
			q = q.Location(a.Location)
		}
		if len(a.Categories) > 0 {
			q = q.Categories(a.Categories...)
		}
		if a.Status != "" {
			q = q.Status(a.Status)
		}
		if a.Limit > 0 {
			q = q.Limit(a.Limit)
		}
		objs, err := q.Do(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]eventView, 0, len(objs))
		for _, obj := range objs {
			v, err := viewOf(a.Calendar, obj)
			if err != nil {
				s.logger.Warn("skipping unreadable event", "calendar", a.Calendar, "href", obj.Href, "error", err)
				continue
			}
			out = append(out, v)
		}
		return out, nil
	}))
	s.register("event_get", bind(func(ctx context.Context, a eventRef) (any, error) {
		obj, err := s.nc.Calendar.GetEvent(ctx, a.Calendar, a.UID)
		if err != nil {
			return nil, err
		}
		return viewOf(a.Calendar, obj)
	}))
	s.register("event_create", bind(func(ctx context.Context, a struct {
		Calendar string `json:"calendar"`
		calendar.EventFields
	}) (any, error) {
		obj, err := s.nc.Calendar.CreateEvent(ctx, a.Calendar, a.EventFields)
		if err != nil {
			return nil, err
		}
		return viewOf(a.Calendar, obj)
	}))
	s.register("event_update", bind(func(ctx context.Context, a struct {
		Calendar string `json:"calendar"`
		UID      string `json:"uid"`
		calendar.Patch
	}) (any, error) {
		if a.Patch.IsEmpty() {
			return nil, invalidArgs("no fields to update")
		}
		obj, err := s.nc.Calendar.UpdateEvent(ctx, a.Calendar, a.UID, a.Patch)
		if err != nil {
			return nil, err
		}
		return viewOf(a.Calendar, obj)
	}))
	s.register("event_delete", bind(func(ctx context.Context, a struct {
		Calendar string `json:"calendar"`
		UID      string `json:"uid"`
		ETag     string `json:"etag"`
	}) (any, error) {
		if err := s.nc.Calendar.DeleteEvent(ctx, a.Calendar, a.UID, a.ETag); err != nil {
			return nil, err
		}
		return map[string]string{"deleted": a.UID}, nil
	}))
	s.register("event_move", bind(func(ctx context.Context, a struct {
		From string `json:"from"`
		To   string `json:"to"`
		UID  string `json:"uid"`
	}) (any, error) {
		if err := s.nc.Calendar.MoveEvent(ctx, a.From, a.To, a.UID); err != nil {
			return nil, err
		}
		return map[string]string{"moved": a.UID, "calendar": a.To}, nil
	}))
	s.register("events_search", bind(func(ctx context.Context, a eventFilter) (any, error) {
		events, err := s.nc.Calendar.SearchEvents(ctx, a.bulk())
		if err != nil {
			return nil, err
		}
		return storedViews(events), nil
	}))
	s.register("availability_find", bind(func(ctx context.Context, a availabilityArgs) (any, error) {
		q, err := a.query()
		if err != nil {
			return nil, &argumentError{err: err}
		}
		slots, err := s.engine.FindAvailability(ctx, s.nc.Calendar, q)
		if err != nil {
			return nil, err
		}
		return map[string]any{"slots": slots}, nil
	}))
	s.register("events_bulk", bind(func(ctx context.Context, a struct {
		eventFilter
		Action string          `json:"action"`
		Patch  *calendar.Patch `json:"patch"`
		Target string          `json:"target"`
	}) (any, error) {
		var action schedule.BulkAction
		switch schedule.ActionKind(a.Action) {
		case schedule.ActionUpdate:
			if a.Patch == nil {
				return nil, invalidArgs("update requires a patch")
			}
			action = schedule.UpdateAction(*a.Patch)
		case schedule.ActionDelete:
			action = schedule.DeleteAction()
		case schedule.ActionMove:
			action = schedule.MoveAction(a.Target)
		default:
			return nil, invalidArgs("unknown action %q", a.Action)
		}
		return s.engine.BulkOperation(ctx, s.nc.Calendar, a.bulk(), action)
	}))
}
