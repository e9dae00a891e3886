// Package caldav talks to Nextcloud's CalDAV endpoint.
package caldav

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ncmcp/ncclient/calendar"
	"github.com/ncmcp/ncclient/internal/httpclient"
	"github.com/ncmcp/ncclient/internal/xml"
	"github.com/ncmcp/ncclient/schedule"
)

// DefaultColor is reported for calendars without calendar-color.
const DefaultColor = "#1976D2"

// Client defines the CalDAV operations.
type Client interface {
	ListCalendars(ctx context.Context) ([]Calendar, error)
	CreateCalendar(ctx context.Context, spec CalendarSpec) error
	DeleteCalendar(ctx context.Context, name string) error

	Events(calendarName string) EventQuery
	GetEvent(ctx context.Context, calendarName, uid string) (*calendar.Object, error)
	CreateEvent(ctx context.Context, calendarName string, fields calendar.EventFields) (*calendar.Object, error)
	UpdateEvent(ctx context.Context, calendarName, uid string, patch calendar.Patch) (*calendar.Object, error)
	DeleteEvent(ctx context.Context, calendarName, uid, etag string) error
	MoveEvent(ctx context.Context, fromCalendar, toCalendar, uid string) error
	SearchEvents(ctx context.Context, filter schedule.BulkFilter) ([]schedule.StoredEvent, error)

	CalendarNames(ctx context.Context) ([]string, error)
	EventsInRange(ctx context.Context, calendarName string, start, end time.Time) ([]schedule.StoredEvent, error)
}

var _ schedule.EventStore = Client(nil)

// Calendar describes one calendar collection.
type Calendar struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description,omitempty"`
	Color       string   `json:"color"`
	Href        string   `json:"href"`
	CTag        string   `json:"ctag,omitempty"`
	Components  []string `json:"components,omitempty"`
}

// CalendarSpec describes a calendar to create.
type CalendarSpec struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description,omitempty"`
	Color       string `json:"color,omitempty"`
}

type davClient struct {
	httpClient httpclient.HttpClientWrapper
	root       string
	logger     *slog.Logger
}

// NewClient creates a CalDAV client for username's calendars.
func NewClient(httpClient httpclient.HttpClientWrapper, username string, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &davClient{
		httpClient: httpClient,
		root:       xml.EncodePath("/remote.php/dav/calendars", username),
		logger:     logger,
	}
}

func (c *davClient) calendarPath(name string) string {
	return c.root + xml.EncodePath(name) + "/"
}

func (c *davClient) objectPath(calendarName, file string) string {
	return c.root + xml.EncodePath(calendarName, file)
}

// rootPath is the unescaped listing root as it appears in hrefs.
func (c *davClient) rootPath(escaped string) string {
	p, err := unescape(c.httpClient.BasePath() + escaped)
	if err != nil {
		return c.httpClient.BasePath() + escaped
	}
	return p
}

func (c *davClient) ListCalendars(ctx context.Context) ([]Calendar, error) {
	body, err := xml.BuildPropfind(
		xml.PropResourceType,
		xml.PropDisplayName,
		xml.PropCalendarDescription,
		xml.PropCalendarColor,
		xml.PropGetCTag,
		xml.PropSupportedComponents,
	)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.DoPROPFIND(ctx, c.root+"/", 1, body)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars: %w", err)
	}
	resources, err := xml.ParseMultistatus(resp.Body, c.rootPath(c.root))
	if err != nil {
		return nil, malformed("PROPFIND", c.root, err)
	}

	var calendars []Calendar
	for _, r := range resources {
		if r.Path == "" || !hasType(r.ResourceTypes, xml.TagCalendar) {
			continue
		}
		cal := Calendar{
			Name:        r.Path,
			DisplayName: r.DisplayName.OrElse(r.Path),
			Description: r.Text(xml.PropCalendarDescription).OrEmpty(),
			Color:       nonEmpty(r.Text(xml.PropCalendarColor).OrEmpty(), DefaultColor),
			Href:        r.Href,
			CTag:        r.Text(xml.PropGetCTag).OrEmpty(),
		}
		if comps, ok := r.Prop(xml.PropSupportedComponents); ok {
			for _, comp := range comps.Children {
				if name := comp.GetAttr("name"); name != "" {
					cal.Components = append(cal.Components, name)
				}
			}
		}
		calendars = append(calendars, cal)
	}
	c.logger.Debug("listed calendars", "count", len(calendars))
	return calendars, nil
}

func (c *davClient) CalendarNames(ctx context.Context) ([]string, error) {
	calendars, err := c.ListCalendars(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(calendars))
	for _, cal := range calendars {
		if supportsEvents(cal) {
			names = append(names, cal.Name)
		}
	}
	return names, nil
}

func (c *davClient) CreateCalendar(ctx context.Context, spec CalendarSpec) error {
	if spec.Name == "" || strings.Contains(spec.Name, "/") {
		return fmt.Errorf("invalid calendar name %q", spec.Name)
	}
	display := nonEmpty(spec.DisplayName, spec.Name)
	body, err := xml.BuildMkcalendar(display, spec.Description, nonEmpty(spec.Color, DefaultColor))
	if err != nil {
		return err
	}
	resp, err := c.httpClient.DoMKCALENDAR(ctx, c.calendarPath(spec.Name), body)
	if err != nil {
		return fmt.Errorf("failed to create calendar %q: %w", spec.Name, err)
	}
	if resp.StatusCode == http.StatusMethodNotAllowed {
		return collectionExists(spec.Name)
	}
	c.logger.Info("created calendar", "name", spec.Name)
	return nil
}

func (c *davClient) DeleteCalendar(ctx context.Context, name string) error {
	if err := c.httpClient.DoDELETE(ctx, c.calendarPath(name), ""); err != nil {
		return fmt.Errorf("failed to delete calendar %q: %w", name, err)
	}
	c.logger.Info("deleted calendar", "name", name)
	return nil
}

func hasType(types []string, want string) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}

func supportsEvents(cal Calendar) bool {
	if len(cal.Components) == 0 {
		return true
	}
	return hasType(cal.Components, "VEVENT")
}

func nonEmpty(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
