package caldav

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/ncmcp/ncclient/calendar"
	"github.com/ncmcp/ncclient/internal/httpclient"
	"github.com/ncmcp/ncclient/internal/mutation"
	"github.com/ncmcp/ncclient/internal/xml"
	"github.com/ncmcp/ncclient/ncerr"
	"github.com/ncmcp/ncclient/schedule"
)

const icsContentType = "text/calendar; charset=utf-8"

// executeCalendarQuery sends a calendar-query REPORT and decodes every
// returned object. Objects that do not parse are logged and skipped.
func (c *davClient) executeCalendarQuery(ctx context.Context, calendarName string, query *calendarQuery) ([]*calendar.Object, error) {
	body, err := query.marshal()
	if err != nil {
		return nil, err
	}
	calPath := c.calendarPath(calendarName)
	resp, err := c.httpClient.DoREPORT(ctx, calPath, 1, body)
	if err != nil {
		return nil, err
	}
	resources, err := xml.ParseMultistatus(resp.Body, c.rootPath(calPath))
	if err != nil {
		return nil, malformed("REPORT", calPath, err)
	}

	var objects []*calendar.Object
	for _, r := range resources {
		data, ok := r.Text(xml.PropCalendarData).Get()
		if !ok || r.IsCollection {
			continue
		}
		obj, err := calendar.Parse([]byte(data))
		if err != nil {
			c.logger.Warn("skipping unparseable calendar object",
				"calendar", calendarName,
				"href", r.Href,
				"error", err)
			continue
		}
		obj.Href = r.Href
		obj.ETag = r.ETag.OrEmpty()
		objects = append(objects, obj)
	}
	c.logger.Debug("calendar query complete", "calendar", calendarName, "count", len(objects))
	return objects, nil
}

// GetEvent fetches an event by UID. The conventional {uid}.ics resource is
// tried first, then a UID calendar-query for objects stored under another
// name.
func (c *davClient) GetEvent(ctx context.Context, calendarName, uid string) (*calendar.Object, error) {
	objPath := c.objectPath(calendarName, uid+".ics")
	resp, err := c.httpClient.DoGET(ctx, objPath, nil)
	if err == nil {
		obj, err := calendar.Parse(resp.Body)
		if err != nil {
			return nil, malformed("GET", objPath, err)
		}
		obj.Href = c.rootPath(objPath)
		obj.ETag = resp.ETag()
		if obj.ETag == "" {
			if obj.ETag, err = c.httpClient.FetchETag(ctx, objPath); err != nil {
				return nil, err
			}
		}
		return obj, nil
	}
	if !errors.Is(err, ncerr.ErrNotFound) {
		return nil, fmt.Errorf("failed to get event %q: %w", uid, err)
	}

	objects, err := c.Events(calendarName).UID(uid).Do(ctx)
	if err != nil {
		return nil, err
	}
	for _, obj := range objects {
		if obj.UID() == uid {
			return obj, nil
		}
	}
	return nil, ncerr.NotFound("GET", calendarName+"/"+uid)
}

func (c *davClient) CreateEvent(ctx context.Context, calendarName string, fields calendar.EventFields) (*calendar.Object, error) {
	obj, err := calendar.New(fields)
	if err != nil {
		return nil, err
	}
	data, err := obj.Bytes()
	if err != nil {
		return nil, err
	}
	objPath := c.objectPath(calendarName, obj.UID()+".ics")
	etag, err := c.httpClient.DoPUT(ctx, objPath, httpclient.Precondition{IfNoneMatch: true}, icsContentType, data)
	if err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}
	// If no etag in response, get it again
	if etag == "" {
		if etag, err = c.httpClient.FetchETag(ctx, objPath); err != nil {
			return nil, err
		}
	}
	obj.Href = c.rootPath(objPath)
	obj.ETag = etag
	c.logger.Info("created event", "calendar", calendarName, "uid", obj.UID(), "etag", etag)
	return obj, nil
}

func (c *davClient) UpdateEvent(ctx context.Context, calendarName, uid string, patch calendar.Patch) (*calendar.Object, error) {
	var objPath string
	res, err := mutation.Apply(ctx, mutation.Ops[*calendar.Object]{
		Resource: calendarName + "/" + uid,
		Read: func(ctx context.Context) (*calendar.Object, string, error) {
			obj, err := c.GetEvent(ctx, calendarName, uid)
			if err != nil {
				return nil, "", err
			}
			objPath = c.objectPath(calendarName, path.Base(obj.Href))
			return obj, obj.ETag, nil
		},
		Merge: func(obj *calendar.Object) (*calendar.Object, error) {
			if err := patch.Apply(obj); err != nil {
				return nil, err
			}
			return obj, nil
		},
		Write: func(ctx context.Context, obj *calendar.Object, etag string) (string, error) {
			data, err := obj.Bytes()
			if err != nil {
				return "", err
			}
			newTag, err := c.httpClient.DoPUT(ctx, objPath, httpclient.Precondition{IfMatch: etag}, icsContentType, data)
			if err != nil {
				return "", err
			}
			if newTag == "" {
				return c.httpClient.FetchETag(ctx, objPath)
			}
			return newTag, nil
		},
	})
	if err != nil {
		return nil, err
	}
	res.Value.ETag = res.Tag
	c.logger.Info("updated event", "calendar", calendarName, "uid", uid, "etag", res.Tag)
	return res.Value, nil
}

// DeleteEvent removes an event. An empty etag deletes whatever version is
// current; otherwise a changed event answers Conflict.
func (c *davClient) DeleteEvent(ctx context.Context, calendarName, uid, etag string) error {
	obj, err := c.GetEvent(ctx, calendarName, uid)
	if err != nil {
		return err
	}
	if etag == "" {
		etag = obj.ETag
	}
	objPath := c.objectPath(calendarName, path.Base(obj.Href))
	if err := c.httpClient.DoDELETE(ctx, objPath, etag); err != nil {
		return fmt.Errorf("failed to delete event %q: %w", uid, err)
	}
	c.logger.Info("deleted event", "calendar", calendarName, "uid", uid)
	return nil
}

// MoveEvent moves an event between calendars without replacing an existing
// object at the destination.
func (c *davClient) MoveEvent(ctx context.Context, fromCalendar, toCalendar, uid string) error {
	obj, err := c.GetEvent(ctx, fromCalendar, uid)
	if err != nil {
		return err
	}
	file := path.Base(obj.Href)
	dest, err := c.httpClient.AbsoluteURL(c.objectPath(toCalendar, file))
	if err != nil {
		return err
	}
	resp, err := c.httpClient.DoMOVE(ctx, c.objectPath(fromCalendar, file), xml.CopyMoveHeader(dest, false))
	if err != nil {
		return fmt.Errorf("failed to move event %q: %w", uid, err)
	}
	c.logger.Info("moved event",
		"uid", uid,
		"from", fromCalendar,
		"to", toCalendar,
		"status", resp.StatusCode)
	return nil
}

func (c *davClient) EventsInRange(ctx context.Context, calendarName string, start, end time.Time) ([]schedule.StoredEvent, error) {
	objects, err := c.Events(calendarName).TimeRange(start, end).Do(ctx)
	if err != nil {
		return nil, err
	}
	events := make([]schedule.StoredEvent, 0, len(objects))
	for _, obj := range objects {
		ev, err := obj.Event()
		if err != nil {
			return nil, err
		}
		events = append(events, schedule.StoredEvent{
			Calendar: calendarName,
			Href:     obj.Href,
			ETag:     obj.ETag,
			Event:    ev,
		})
	}
	return events, nil
}

// SearchEvents scans the filter's calendars, or all of them, for matching
// events; the range defaults to one year from now. A calendar that fails to answer is logged and skipped.
func (c *davClient) SearchEvents(ctx context.Context, f schedule.BulkFilter) ([]schedule.StoredEvent, error) {
	names := f.Calendars
	if len(names) == 0 {
		var err error
		if names, err = c.CalendarNames(ctx); err != nil {
			return nil, err
		}
	}
	start, end := f.Start, f.End
	if start.IsZero() {
		start = time.Now()
	}
	if end.IsZero() {
		end = start.AddDate(1, 0, 0)
	}

	var found []schedule.StoredEvent
	for _, name := range names {
		events, err := c.EventsInRange(ctx, name, start, end)
		if err != nil {
			c.logger.Warn("skipping calendar in search", "calendar", name, "error", err)
			continue
		}
		for _, ev := range events {
			if f.Matches(ev.Event) {
				found = append(found, ev)
			}
		}
	}
	return found, nil
}
