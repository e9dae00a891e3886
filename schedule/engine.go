package schedule

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/ncmcp/ncclient/calendar"
)

// StoredEvent is an event as fetched from one calendar.
type StoredEvent struct {
	Calendar string
	Href     string
	ETag     string
	Event    calendar.Event
}

// EventSource reads events for availability.
type EventSource interface {
	CalendarNames(ctx context.Context) ([]string, error)
	EventsInRange(ctx context.Context, calendarName string, start, end time.Time) ([]StoredEvent, error)
}

// EventStore is an EventSource that can also mutate events.
type EventStore interface {
	EventSource
	UpdateEvent(ctx context.Context, calendarName, uid string, patch calendar.Patch) (*calendar.Object, error)
	DeleteEvent(ctx context.Context, calendarName, uid, etag string) error
	MoveEvent(ctx context.Context, fromCalendar, toCalendar, uid string) error
}

// Engine runs availability searches and bulk operations.
type Engine struct {
	logger *slog.Logger
	expand calendar.ExpandOptions
}

// NewEngine creates an engine. A nil logger discards output.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{logger: logger}
}

// AvailabilityQuery asks for free slots shared by all attendees.
type AvailabilityQuery struct {
	// Attendees are calendar addresses; empty means the calendar owner, for
	// whom every event is busy time.
	Attendees []string
	// Duration is the minimum slot length.
	Duration time.Duration
	// Range is the scanning span.
	Range       Interval
	Constraints Constraints
	// Calendars to read; empty reads every calendar.
	Calendars []string
	// MaxSlots truncates the result; 0 is unlimited.
	MaxSlots int
}

// FindAvailability returns disjoint free intervals in chronological order,
// each at least q.Duration long.
func (e *Engine) FindAvailability(ctx context.Context, src EventSource, q AvailabilityQuery) ([]Interval, error) {
	if q.Duration <= 0 {
		return nil, errors.New("slot duration must be positive")
	}
	if !q.Range.End.After(q.Range.Start) {
		return nil, errors.New("range end must be after its start")
	}
	allowed, err := q.Constraints.allowed(q.Range)
	if err != nil {
		return nil, err
	}

	events, err := e.collect(ctx, src, q.Calendars, q.Range)
	if err != nil {
		return nil, err
	}
	busy := e.busyByAttendee(events, q.Attendees, q.Range)

	free := []Interval{q.Range}
	for _, b := range busy {
		free = Intersect(free, Complement(b, q.Range))
	}
	free = Intersect(free, allowed)

	var slots []Interval
	for _, f := range free {
		if f.Duration() < q.Duration {
			continue
		}
		slots = append(slots, f)
		if q.MaxSlots > 0 && len(slots) == q.MaxSlots {
			break
		}
	}
	e.logger.Debug("availability computed",
		"events", len(events),
		"attendees", len(q.Attendees),
		"slots", len(slots))
	return slots, nil
}

func (e *Engine) collect(ctx context.Context, src EventSource, names []string, span Interval) ([]StoredEvent, error) {
	if len(names) == 0 {
		var err error
		names, err = src.CalendarNames(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list calendars: %w", err)
		}
	}
	var out []StoredEvent
	for _, name := range names {
		events, err := src.EventsInRange(ctx, name, span.Start, span.End)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch events of calendar %q: %w", name, err)
		}
		out = append(out, events...)
	}
	return out, nil
}

// blocksTime reports whether an event occupies its attendees' time.
func blocksTime(ev calendar.Event) bool {
	return ev.Status != "CANCELLED" && ev.Transparency != "TRANSPARENT"
}

// busyByAttendee returns one busy set per attendee, or a single set for the
// owner when attendees is empty.
func (e *Engine) busyByAttendee(events []StoredEvent, attendees []string, span Interval) [][]Interval {
	keys := attendees
	if len(keys) == 0 {
		keys = []string{""}
	}
	busy := make([][]Interval, len(keys))
	rng := calendar.Range{Start: span.Start, End: span.End}

	for _, se := range events {
		if !blocksTime(se.Event) {
			continue
		}
		occurrences, err := calendar.Occurrences(se.Event, rng, e.expand)
		if err != nil {
			e.logger.Warn("skipping event with invalid recurrence",
				"calendar", se.Calendar,
				"uid", se.Event.UID,
				"error", err)
			continue
		}
		for i, key := range keys {
			if key != "" && !se.Event.HasParticipant(key) {
				continue
			}
			for _, o := range occurrences {
				if iv, ok := (Interval{Start: o.Start, End: o.End}).Clip(span); ok {
					busy[i] = append(busy[i], iv)
				}
			}
		}
	}
	for i := range busy {
		busy[i] = Merge(busy[i])
	}
	return busy
}

// BulkFilter selects candidate events. Zero-valued predicates match all.
type BulkFilter struct {
	Calendars        []string
	Start            time.Time
	End              time.Time
	TitleContains    string
	LocationContains string
	MinAttendees     int
	MinDuration      time.Duration
	// Categories match when the event has any of them.
	Categories []string
	Status     string
}

// Matches applies the predicates to one event.
func (f BulkFilter) Matches(ev calendar.Event) bool {
	if f.TitleContains != "" && !strings.Contains(strings.ToLower(ev.Summary), strings.ToLower(f.TitleContains)) {
		return false
	}
	if f.LocationContains != "" && !strings.Contains(strings.ToLower(ev.Location), strings.ToLower(f.LocationContains)) {
		return false
	}
	if len(ev.Attendees) < f.MinAttendees {
		return false
	}
	if f.MinDuration > 0 && ev.Duration() < f.MinDuration {
		return false
	}
	if f.Status != "" && !strings.EqualFold(ev.Status, f.Status) {
		return false
	}
	if len(f.Categories) > 0 && !hasAnyCategory(ev.Categories, f.Categories) {
		return false
	}
	return true
}

func hasAnyCategory(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(strings.TrimSpace(h), strings.TrimSpace(w)) {
				return true
			}
		}
	}
	return false
}

// ActionKind names a bulk action.
type ActionKind string

const (
	ActionUpdate ActionKind = "update"
	ActionDelete ActionKind = "delete"
	ActionMove   ActionKind = "move"
)

// BulkAction is applied to each matching event.
type BulkAction struct {
	Kind   ActionKind
	Patch  calendar.Patch
	Target string
}

func UpdateAction(p calendar.Patch) BulkAction { return BulkAction{Kind: ActionUpdate, Patch: p} }
func DeleteAction() BulkAction                 { return BulkAction{Kind: ActionDelete} }
func MoveAction(target string) BulkAction      { return BulkAction{Kind: ActionMove, Target: target} }

func (a BulkAction) validate() error {
	switch a.Kind {
	case ActionUpdate:
		if a.Patch.IsEmpty() {
			return errors.New("update action needs at least one field")
		}
	case ActionDelete:
	case ActionMove:
		if a.Target == "" {
			return errors.New("move action needs a target calendar")
		}
	default:
		return fmt.Errorf("unknown bulk action %q", a.Kind)
	}
	return nil
}

// Outcome of one bulk item.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// ItemResult reports one event.
type ItemResult struct {
	Calendar string  `json:"calendar"`
	UID      string  `json:"uid"`
	Title    string  `json:"title"`
	Outcome  Outcome `json:"outcome"`
	Error    string  `json:"error,omitempty"`
}

// Report enumerates the outcome of every matched event.
type Report struct {
	Total     int          `json:"total"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Items     []ItemResult `json:"items"`
}

// BulkOperation applies action to every event matching filter. Items are
// independent: a failure is recorded and processing continues.
func (e *Engine) BulkOperation(ctx context.Context, store EventStore, filter BulkFilter, action BulkAction) (Report, error) {
	if err := action.validate(); err != nil {
		return Report{}, err
	}
	if filter.End.IsZero() || !filter.End.After(filter.Start) {
		return Report{}, errors.New("bulk operation needs a date range")
	}

	candidates, err := e.collect(ctx, store, filter.Calendars, Interval{Start: filter.Start, End: filter.End})
	if err != nil {
		return Report{}, err
	}

	report := Report{Items: []ItemResult{}}
	seen := make(map[string]bool)
	for _, c := range candidates {
		key := c.Calendar + "/" + c.Event.UID
		if seen[key] || !filter.Matches(c.Event) {
			continue
		}
		seen[key] = true

		item := ItemResult{Calendar: c.Calendar, UID: c.Event.UID, Title: c.Event.Summary, Outcome: OutcomeSucceeded}
		if err := ctx.Err(); err != nil {
			item.Outcome, item.Error = OutcomeFailed, err.Error()
		} else if err := e.apply(ctx, store, c, action); err != nil {
			item.Outcome, item.Error = OutcomeFailed, err.Error()
			e.logger.Warn("bulk item failed",
				"action", action.Kind,
				"calendar", c.Calendar,
				"uid", c.Event.UID,
				"error", err)
		}

		report.Total++
		if item.Outcome == OutcomeSucceeded {
			report.Succeeded++
		} else {
			report.Failed++
		}
		report.Items = append(report.Items, item)
	}

	e.logger.Info("bulk operation complete",
		"action", action.Kind,
		"total", report.Total,
		"succeeded", report.Succeeded,
		"failed", report.Failed)
	return report, nil
}

func (e *Engine) apply(ctx context.Context, store EventStore, c StoredEvent, action BulkAction) error {
	switch action.Kind {
	case ActionUpdate:
		_, err := store.UpdateEvent(ctx, c.Calendar, c.Event.UID, action.Patch)
		return err
	case ActionDelete:
		return store.DeleteEvent(ctx, c.Calendar, c.Event.UID, c.ETag)
	case ActionMove:
		if action.Target == c.Calendar {
			return nil
		}
		return store.MoveEvent(ctx, c.Calendar, action.Target, c.Event.UID)
	}
	return fmt.Errorf("unknown bulk action %q", action.Kind)
}
