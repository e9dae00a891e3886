package caldav

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ncmcp/ncclient/calendar"
	"github.com/ncmcp/ncclient/internal/httpclient"
	"github.com/ncmcp/ncclient/ncerr"
	"github.com/ncmcp/ncclient/schedule"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const calendarsRoot = "/nc/remote.php/dav/calendars/alice/"

const listingBody = `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:" xmlns:cal="urn:ietf:params:xml:ns:caldav" xmlns:cs="http://calendarserver.org/ns/" xmlns:x1="http://apple.com/ns/ical/">
  <d:response>
    <d:href>/nc/remote.php/dav/calendars/alice/</d:href>
    <d:propstat><d:prop><d:resourcetype><d:collection/></d:resourcetype></d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat>
  </d:response>
  <d:response>
    <d:href>/nc/remote.php/dav/calendars/alice/personal/</d:href>
    <d:propstat>
      <d:prop>
        <d:resourcetype><d:collection/><cal:calendar/></d:resourcetype>
        <d:displayname>Personal</d:displayname>
        <x1:calendar-color>#FF0000</x1:calendar-color>
        <cs:getctag>ctag-1</cs:getctag>
        <cal:supported-calendar-component-set><cal:comp name="VEVENT"/><cal:comp name="VTODO"/></cal:supported-calendar-component-set>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
  <d:response>
    <d:href>/nc/remote.php/dav/calendars/alice/tasks/</d:href>
    <d:propstat>
      <d:prop>
        <d:resourcetype><d:collection/><cal:calendar/></d:resourcetype>
        <cal:supported-calendar-component-set><cal:comp name="VTODO"/></cal:supported-calendar-component-set>
      </d:prop>
      <d:status>HTTP/1.1 200 OK</d:status>
    </d:propstat>
  </d:response>
  <d:response>
    <d:href>/nc/remote.php/dav/calendars/alice/inbox/</d:href>
    <d:propstat><d:prop><d:resourcetype><d:collection/><cal:schedule-inbox/></d:resourcetype></d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat>
  </d:response>
</d:multistatus>`

func eventICS(uid, summary, start string) string {
	return strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//test//EN",
		"BEGIN:VEVENT",
		"UID:" + uid,
		"DTSTAMP:20250701T000000Z",
		"DTSTART:" + start,
		"DTEND:" + strings.Replace(start, "T09", "T10", 1),
		"SUMMARY:" + summary,
		"X-NC-GROUP-ID:7",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")
}

func reportBody(entries ...[3]string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><d:multistatus xmlns:d="DAV:" xmlns:cal="urn:ietf:params:xml:ns:caldav">`)
	for _, e := range entries {
		b.WriteString(`<d:response><d:href>` + e[0] + `</d:href><d:propstat><d:prop>`)
		b.WriteString(`<d:getetag>` + e[1] + `</d:getetag>`)
		b.WriteString(`<cal:calendar-data><![CDATA[` + e[2] + `]]></cal:calendar-data>`)
		b.WriteString(`</d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>`)
	}
	b.WriteString(`</d:multistatus>`)
	return b.String()
}

// fakeServer is a minimal CalDAV store keyed by request path.
type fakeServer struct {
	mu       sync.Mutex
	objects  map[string]string
	etags    map[string]string
	requests []*http.Request
	bodies   []string
	version  int
	noETag   bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{objects: map[string]string{}, etags: map[string]string{}}
}

func (f *fakeServer) put(path, data string) {
	f.version++
	f.objects[path] = data
	f.etags[path] = `"v` + string(rune('0'+f.version)) + `"`
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, _ := io.ReadAll(r.Body)
	f.requests = append(f.requests, r)
	f.bodies = append(f.bodies, string(body))

	p := r.URL.Path
	switch r.Method {
	case "PROPFIND":
		if p == calendarsRoot {
			w.WriteHeader(http.StatusMultiStatus)
			io.WriteString(w, listingBody)
			return
		}
		etag, ok := f.etags[p]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusMultiStatus)
		io.WriteString(w, `<d:multistatus xmlns:d="DAV:"><d:response><d:href>`+p+`</d:href><d:propstat><d:prop><d:getetag>`+etag+`</d:getetag></d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response></d:multistatus>`)
	case "REPORT":
		var entries [][3]string
		for path, data := range f.objects {
			if !strings.HasPrefix(path, p) {
				continue
			}
			if strings.Contains(string(body), "UID") && !strings.Contains(data, "UID:"+uidFilter(string(body))) {
				continue
			}
			entries = append(entries, [3]string{path, f.etags[path], data})
		}
		w.WriteHeader(http.StatusMultiStatus)
		io.WriteString(w, reportBody(entries...))
	case http.MethodGet:
		data, ok := f.objects[p]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("ETag", f.etags[p])
		io.WriteString(w, data)
	case http.MethodPut:
		_, exists := f.objects[p]
		if r.Header.Get("If-None-Match") == "*" && exists {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		if m := r.Header.Get("If-Match"); m != "" && m != f.etags[p] {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		f.put(p, string(body))
		if !f.noETag {
			w.Header().Set("ETag", f.etags[p])
		}
		w.WriteHeader(http.StatusCreated)
	case http.MethodDelete:
		if m := r.Header.Get("If-Match"); m != "" && m != f.etags[p] {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		delete(f.objects, p)
		delete(f.etags, p)
		w.WriteHeader(http.StatusNoContent)
	case "MOVE":
		dest, _ := url.Parse(r.Header.Get("Destination"))
		if _, exists := f.objects[dest.Path]; exists && r.Header.Get("Overwrite") == "F" {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		f.objects[dest.Path] = f.objects[p]
		f.etags[dest.Path] = f.etags[p]
		delete(f.objects, p)
		delete(f.etags, p)
		w.WriteHeader(http.StatusCreated)
	case "MKCALENDAR":
		if strings.HasSuffix(p, "/personal/") {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusCreated)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// uidFilter extracts the UID text-match of a calendar-query body.
func uidFilter(body string) string {
	i := strings.Index(body, `name="UID"`)
	if i < 0 {
		return ""
	}
	rest := body[i:]
	start := strings.Index(rest, ">")
	rest = rest[start+1:]
	start = strings.Index(rest, ">")
	rest = rest[start+1:]
	return rest[:strings.Index(rest, "<")]
}

func (f *fakeServer) lastRequest() (*http.Request, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.requests)
	return f.requests[n-1], f.bodies[n-1]
}

func newTestClient(t *testing.T, handler http.Handler) Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	base, err := url.Parse(server.URL + "/nc")
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	httpClient := &http.Client{Transport: httpclient.NewBasicAuthTransport("alice", "secret", nil, logger)}
	wrapper, err := httpclient.NewHttpClientWrapper(httpClient, *base, logger, httpclient.Options{})
	require.NoError(t, err)
	return NewClient(wrapper, "alice", logger)
}

func TestListCalendars(t *testing.T) {
	client := newTestClient(t, newFakeServer())

	calendars, err := client.ListCalendars(context.Background())
	require.NoError(t, err)
	require.Len(t, calendars, 2)

	assert.Equal(t, Calendar{
		Name:        "personal",
		DisplayName: "Personal",
		Color:       "#FF0000",
		Href:        "/nc/remote.php/dav/calendars/alice/personal/",
		CTag:        "ctag-1",
		Components:  []string{"VEVENT", "VTODO"},
	}, calendars[0])
	assert.Equal(t, "tasks", calendars[1].DisplayName, "display name defaults to the name")
	assert.Equal(t, DefaultColor, calendars[1].Color)

	names, err := client.CalendarNames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"personal"}, names, "calendars without VEVENT support are not event sources")
}

func TestCreateCalendar(t *testing.T) {
	srv := newFakeServer()
	client := newTestClient(t, srv)
	ctx := context.Background()

	require.NoError(t, client.CreateCalendar(ctx, CalendarSpec{Name: "work", DisplayName: "Work"}))
	req, body := srv.lastRequest()
	assert.Equal(t, "MKCALENDAR", req.Method)
	assert.Equal(t, calendarsRoot+"work/", req.URL.Path)
	assert.Contains(t, body, "Work")
	assert.Contains(t, body, DefaultColor)

	err := client.CreateCalendar(ctx, CalendarSpec{Name: "personal"})
	assert.ErrorIs(t, err, ncerr.ErrConflict)

	assert.Error(t, client.CreateCalendar(ctx, CalendarSpec{Name: "a/b"}))
}

func TestEventQueryBuild(t *testing.T) {
	q := &eventQuery{}
	q.TimeRange(time.Date(2025, 7, 28, 0, 0, 0, 0, time.UTC), time.Date(2025, 8, 4, 0, 0, 0, 0, time.UTC)).
		Summary("standup").
		NotStatus("CANCELLED").
		Categories("work")

	body, err := q.build().marshal()
	require.NoError(t, err)
	s := string(body)
	assert.Contains(t, s, `name="VCALENDAR"`)
	assert.Contains(t, s, `name="VEVENT"`)
	assert.Contains(t, s, `start="20250728T000000Z" end="20250804T000000Z"`)
	assert.Contains(t, s, `name="SUMMARY"`)
	assert.Contains(t, s, `negate-condition="yes"`)
	assert.Contains(t, s, `>work<`)

	multi := &eventQuery{}
	multi.Categories("a", "b")
	body, err = multi.build().marshal()
	require.NoError(t, err)
	assert.NotContains(t, string(body), "CATEGORIES", "several categories are matched client-side")

	open := &eventQuery{}
	open.TimeRange(time.Date(2025, 7, 28, 0, 0, 0, 0, time.UTC), time.Time{})
	body, err = open.build().marshal()
	require.NoError(t, err)
	assert.Contains(t, string(body), `start="20250728T000000Z"`)
	assert.NotContains(t, string(body), "end=")
}

func TestEventsQuery(t *testing.T) {
	srv := newFakeServer()
	srv.put(calendarsRoot+"personal/a.ics", eventICS("a", "Standup", "20250728T090000Z"))
	srv.put(calendarsRoot+"personal/b.ics", "BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n")
	client := newTestClient(t, srv)

	objects, err := client.Events("personal").
		TimeRange(time.Date(2025, 7, 28, 0, 0, 0, 0, time.UTC), time.Date(2025, 7, 29, 0, 0, 0, 0, time.UTC)).
		Do(context.Background())
	require.NoError(t, err)
	require.Len(t, objects, 1, "unparseable objects are skipped")
	assert.Equal(t, "a", objects[0].UID())
	assert.Equal(t, `"v1"`, objects[0].ETag)
	assert.Equal(t, calendarsRoot+"personal/a.ics", objects[0].Href)

	req, _ := srv.lastRequest()
	assert.Equal(t, "REPORT", req.Method)
	assert.Equal(t, "1", req.Header.Get("Depth"))
}

func TestGetEventFallsBackToQuery(t *testing.T) {
	srv := newFakeServer()
	srv.put(calendarsRoot+"personal/other-name.ics", eventICS("uid-1", "Review", "20250728T090000Z"))
	client := newTestClient(t, srv)

	obj, err := client.GetEvent(context.Background(), "personal", "uid-1")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", obj.UID())
	assert.Equal(t, calendarsRoot+"personal/other-name.ics", obj.Href)

	_, err = client.GetEvent(context.Background(), "personal", "missing")
	assert.ErrorIs(t, err, ncerr.ErrNotFound)
}

func TestCreateEvent(t *testing.T) {
	srv := newFakeServer()
	client := newTestClient(t, srv)

	obj, err := client.CreateEvent(context.Background(), "personal", calendar.EventFields{
		UID:     "new-1",
		Summary: "Planning",
		Start:   time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, `"v1"`, obj.ETag)

	req, body := srv.lastRequest()
	assert.Equal(t, "*", req.Header.Get("If-None-Match"))
	assert.Equal(t, calendarsRoot+"personal/new-1.ics", req.URL.Path)
	assert.Contains(t, body, "SUMMARY:Planning")

	_, err = client.CreateEvent(context.Background(), "personal", calendar.EventFields{
		UID:   "new-1",
		Start: time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, ncerr.ErrConflict, "create never overwrites")
}

func TestCreateEventFetchesMissingETag(t *testing.T) {
	srv := newFakeServer()
	srv.noETag = true
	client := newTestClient(t, srv)

	obj, err := client.CreateEvent(context.Background(), "personal", calendar.EventFields{
		UID:   "new-2",
		Start: time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, `"v1"`, obj.ETag)

	req, _ := srv.lastRequest()
	assert.Equal(t, "PROPFIND", req.Method)
	assert.Equal(t, "0", req.Header.Get("Depth"))
}

func TestUpdateEvent(t *testing.T) {
	srv := newFakeServer()
	srv.put(calendarsRoot+"personal/a.ics", eventICS("a", "Standup", "20250728T090000Z"))
	client := newTestClient(t, srv)

	obj, err := client.UpdateEvent(context.Background(), "personal", "a", calendar.Patch{
		Summary: mo.Some("Daily standup"),
	})
	require.NoError(t, err)
	assert.Equal(t, `"v2"`, obj.ETag)

	req, body := srv.lastRequest()
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, `"v1"`, req.Header.Get("If-Match"))
	assert.Contains(t, body, "SUMMARY:Daily standup")
	assert.Contains(t, body, "X-NC-GROUP-ID:7", "unmodelled properties survive")
}

// staleServer changes the event between the read and the write.
type staleServer struct {
	*fakeServer
}

func (s staleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPut {
		s.mu.Lock()
		s.put(r.URL.Path, s.objects[r.URL.Path])
		s.mu.Unlock()
	}
	s.fakeServer.ServeHTTP(w, r)
}

func TestUpdateEventConflict(t *testing.T) {
	srv := newFakeServer()
	srv.put(calendarsRoot+"personal/a.ics", eventICS("a", "Standup", "20250728T090000Z"))
	client := newTestClient(t, staleServer{srv})

	_, err := client.UpdateEvent(context.Background(), "personal", "a", calendar.Patch{Summary: mo.Some("x")})
	require.Error(t, err)
	assert.ErrorIs(t, err, ncerr.ErrConflict)
	assert.Contains(t, srv.objects[calendarsRoot+"personal/a.ics"], "SUMMARY:Standup")
}

func TestDeleteEvent(t *testing.T) {
	srv := newFakeServer()
	srv.put(calendarsRoot+"personal/a.ics", eventICS("a", "Standup", "20250728T090000Z"))
	client := newTestClient(t, srv)
	ctx := context.Background()

	err := client.DeleteEvent(ctx, "personal", "a", `"stale"`)
	assert.ErrorIs(t, err, ncerr.ErrConflict)

	require.NoError(t, client.DeleteEvent(ctx, "personal", "a", ""))
	req, _ := srv.lastRequest()
	assert.Equal(t, `"v1"`, req.Header.Get("If-Match"))
	assert.Empty(t, srv.objects)
}

func TestMoveEvent(t *testing.T) {
	srv := newFakeServer()
	srv.put(calendarsRoot+"personal/a.ics", eventICS("a", "Standup", "20250728T090000Z"))
	client := newTestClient(t, srv)

	require.NoError(t, client.MoveEvent(context.Background(), "personal", "work", "a"))
	req, _ := srv.lastRequest()
	assert.Equal(t, "MOVE", req.Method)
	assert.Equal(t, "F", req.Header.Get("Overwrite"))
	assert.True(t, strings.HasSuffix(req.Header.Get("Destination"), "/nc/remote.php/dav/calendars/alice/work/a.ics"))
	assert.Contains(t, srv.objects, calendarsRoot+"work/a.ics")
}

// failingCalendar answers 500 to queries against one calendar.
type failingCalendar struct {
	*fakeServer
	name string
}

func (f failingCalendar) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == "REPORT" && strings.Contains(r.URL.Path, "/"+f.name+"/") {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	f.fakeServer.ServeHTTP(w, r)
}

func TestSearchEventsSkipsFailingCalendar(t *testing.T) {
	srv := newFakeServer()
	srv.put(calendarsRoot+"personal/a.ics", eventICS("a", "Team standup", "20250728T090000Z"))
	srv.put(calendarsRoot+"personal/b.ics", eventICS("b", "Lunch", "20250728T090000Z"))
	client := newTestClient(t, failingCalendar{srv, "broken"})

	found, err := client.SearchEvents(context.Background(), schedule.BulkFilter{
		Calendars:     []string{"broken", "personal"},
		Start:         time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
		End:           time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC),
		TitleContains: "STANDUP",
	})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "a", found[0].Event.UID)
	assert.Equal(t, "personal", found[0].Calendar)
}

func TestEventsInRangeErrors(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	_, err := client.EventsInRange(context.Background(), "personal", time.Now(), time.Now().Add(time.Hour))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ncerr.ErrForbidden))
}
