package caldav

import (
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ncmcp/ncclient/calendar"
)

const calDAVNamespace = "urn:ietf:params:xml:ns:caldav"

// EventQuery builds a calendar-query REPORT against one calendar.
type EventQuery interface {
	TimeRange(start, end time.Time) EventQuery
	Summary(summary string) EventQuery
	Description(desc string) EventQuery
	Location(location string) EventQuery
	Status(status string) EventQuery
	NotStatus(status string) EventQuery
	Priority(priority int) EventQuery
	Categories(categories ...string) EventQuery
	Organizer(organizer string) EventQuery
	UID(uid string) EventQuery
	Limit(limit int) EventQuery
	Do(ctx context.Context) ([]*calendar.Object, error)
}

// calendarQuerier runs a built query; implemented by davClient.
type calendarQuerier interface {
	executeCalendarQuery(ctx context.Context, calendarName string, query *calendarQuery) ([]*calendar.Object, error)
}

type eventQuery struct {
	client       calendarQuerier
	calendarName string
	timeRange    *timeSpan
	summary      string
	description  string
	location     string
	status       string
	notStatus    string
	priority     *int
	categories   []string
	organizer    string
	uid          string
	limit        int
}

type timeSpan struct {
	start time.Time
	end   time.Time
}

func (c *davClient) Events(calendarName string) EventQuery {
	return &eventQuery{client: c, calendarName: calendarName}
}

func (q *eventQuery) TimeRange(start, end time.Time) EventQuery {
	q.timeRange = &timeSpan{start: start, end: end}
	return q
}

func (q *eventQuery) Summary(summary string) EventQuery {
	q.summary = summary
	return q
}

func (q *eventQuery) Description(desc string) EventQuery {
	q.description = desc
	return q
}

func (q *eventQuery) Location(location string) EventQuery {
	q.location = location
	return q
}

func (q *eventQuery) Status(status string) EventQuery {
	q.status = status
	return q
}

func (q *eventQuery) NotStatus(status string) EventQuery {
	q.notStatus = status
	return q
}

func (q *eventQuery) Priority(priority int) EventQuery {
	q.priority = &priority
	return q
}

func (q *eventQuery) Categories(categories ...string) EventQuery {
	q.categories = categories
	return q
}

func (q *eventQuery) Organizer(organizer string) EventQuery {
	q.organizer = organizer
	return q
}

func (q *eventQuery) UID(uid string) EventQuery {
	q.uid = uid
	return q
}

func (q *eventQuery) Limit(limit int) EventQuery {
	q.limit = limit
	return q
}

const utcFormat = "20060102T150405Z"

// build converts the query to its CalDAV XML form. A category list of more
// than one entry is matched client-side, since prop-filters are and-ed.
func (q *eventQuery) build() *calendarQuery {
	query := &calendarQuery{
		Prop: prop{
			GetETag:      &struct{}{},
			CalendarData: &struct{}{},
		},
		Filter: filter{
			CompFilter: compFilter{
				Name:       "VCALENDAR",
				CompFilter: &compFilter{Name: "VEVENT"},
			},
		},
	}
	inner := query.Filter.CompFilter.CompFilter

	if q.timeRange != nil {
		inner.TimeRange = &timeRange{
			Start: formatBound(q.timeRange.start),
			End:   formatBound(q.timeRange.end),
		}
	}

	var propFilters []propFilter
	add := func(name, text string, negate bool) {
		if text == "" {
			return
		}
		propFilters = append(propFilters, propFilter{
			Name:      name,
			TextMatch: &textMatch{Text: text, NegateCondition: negateValue(negate)},
		})
	}
	add("UID", q.uid, false)
	add("SUMMARY", q.summary, false)
	add("DESCRIPTION", q.description, false)
	add("LOCATION", q.location, false)
	add("STATUS", q.status, false)
	add("STATUS", q.notStatus, true)
	add("ORGANIZER", q.organizer, false)
	if q.priority != nil {
		add("PRIORITY", strconv.Itoa(*q.priority), false)
	}
	if len(q.categories) == 1 {
		add("CATEGORIES", q.categories[0], false)
	}
	inner.PropFilters = propFilters
	return query
}

// formatBound renders a time-range bound; a zero time leaves that side open.
func formatBound(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(utcFormat)
}

func negateValue(negate bool) string {
	if negate {
		return "yes"
	}
	return ""
}

// XML structs for calendar-query
type calendarQuery struct {
	XMLName xml.Name `xml:"urn:ietf:params:xml:ns:caldav calendar-query"`
	Prop    prop     `xml:"DAV: prop"`
	Filter  filter   `xml:"urn:ietf:params:xml:ns:caldav filter"`
}

type prop struct {
	GetETag      *struct{} `xml:"DAV: getetag"`
	CalendarData *struct{} `xml:"urn:ietf:params:xml:ns:caldav calendar-data"`
}

type filter struct {
	CompFilter compFilter `xml:"urn:ietf:params:xml:ns:caldav comp-filter"`
}

type compFilter struct {
	Name        string       `xml:"name,attr"`
	TimeRange   *timeRange   `xml:"urn:ietf:params:xml:ns:caldav time-range,omitempty"`
	CompFilter  *compFilter  `xml:"urn:ietf:params:xml:ns:caldav comp-filter,omitempty"`
	PropFilters []propFilter `xml:"urn:ietf:params:xml:ns:caldav prop-filter,omitempty"`
}

type propFilter struct {
	Name      string     `xml:"name,attr"`
	TextMatch *textMatch `xml:"urn:ietf:params:xml:ns:caldav text-match,omitempty"`
}

type textMatch struct {
	Text            string `xml:",chardata"`
	NegateCondition string `xml:"negate-condition,attr,omitempty"`
}

type timeRange struct {
	Start string `xml:"start,attr,omitempty"`
	End   string `xml:"end,attr,omitempty"`
}

func (q *calendarQuery) marshal() ([]byte, error) {
	out, err := xml.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("failed to encode calendar query: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// Do executes the query and returns the matching objects.
func (q *eventQuery) Do(ctx context.Context) ([]*calendar.Object, error) {
	objects, err := q.client.executeCalendarQuery(ctx, q.calendarName, q.build())
	if err != nil {
		return nil, fmt.Errorf("failed to execute calendar query: %w", err)
	}

	if len(q.categories) > 1 {
		objects = filterCategories(objects, q.categories)
	}
	if q.limit > 0 && len(objects) > q.limit {
		objects = objects[:q.limit]
	}
	return objects, nil
}

func filterCategories(objects []*calendar.Object, want []string) []*calendar.Object {
	var kept []*calendar.Object
	for _, obj := range objects {
		ev, err := obj.Event()
		if err != nil {
			continue
		}
		if hasAnyCategory(ev.Categories, want) {
			kept = append(kept, obj)
		}
	}
	return kept
}

func hasAnyCategory(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}
