package httpclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ncmcp/ncclient/ncerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestWrapper points a wrapper at server and records backoff sleeps
// instead of waiting.
func newTestWrapper(t *testing.T, server *httptest.Server, policy RetryPolicy) (*httpClientWrapper, *[]time.Duration) {
	t.Helper()
	base, err := url.Parse(server.URL + "/nc")
	require.NoError(t, err)

	client := &http.Client{Transport: NewBasicAuthTransport("alice", "secret", http.DefaultTransport, discardLogger())}
	w, err := NewHttpClientWrapper(client, *base, discardLogger(), Options{Retry: policy})
	require.NoError(t, err)

	impl := w.(*httpClientWrapper)
	var sleeps []time.Duration
	impl.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return impl, &sleeps
}

func TestNewHttpClientWrapper(t *testing.T) {
	base, _ := url.Parse("https://cloud.example.com")

	_, err := NewHttpClientWrapper(&http.Client{}, *base, nil, Options{})
	assert.Error(t, err, "logger is required")

	_, err = NewHttpClientWrapper(&http.Client{}, url.URL{Path: "/x"}, discardLogger(), Options{})
	assert.Error(t, err, "relative base URL")

	w, err := NewHttpClientWrapper(&http.Client{}, *base, discardLogger(), Options{RequestsPerSecond: 10})
	require.NoError(t, err)
	assert.NotNil(t, w.(*httpClientWrapper).limiter)
}

func TestResolveURL(t *testing.T) {
	base, _ := url.Parse("https://cloud.example.com/nextcloud/")
	w, err := NewHttpClientWrapper(&http.Client{}, *base, discardLogger(), Options{})
	require.NoError(t, err)

	tests := []struct {
		in   string
		want string
	}{
		{"/remote.php/dav/files/alice/", "https://cloud.example.com/nextcloud/remote.php/dav/files/alice/"},
		{"remote.php/dav/files/alice/My%20Doc.txt", "https://cloud.example.com/nextcloud/remote.php/dav/files/alice/My%20Doc.txt"},
		{"/index.php/apps/notes/api/v1/notes?pruneBefore=0", "https://cloud.example.com/nextcloud/index.php/apps/notes/api/v1/notes?pruneBefore=0"},
		{"https://other.example.com/x", "https://other.example.com/x"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := w.AbsoluteURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
	assert.Equal(t, "/nextcloud", w.BasePath())
}

func TestExecuteRetriesRateLimited(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "payload", string(body), "body must be re-sent on every attempt")
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	c, sleeps := newTestWrapper(t, server, RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 8 * time.Second, MaxTotalWait: time.Minute})

	resp, err := c.Execute(context.Background(), &Request{Method: http.MethodPut, Path: "/f.txt", Body: []byte("payload")})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *sleeps)
}

func TestExecuteRateLimitExhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c, sleeps := newTestWrapper(t, server, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 8 * time.Second, MaxTotalWait: time.Minute})

	_, err := c.Execute(context.Background(), &Request{Method: http.MethodGet, Path: "/f.txt"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ncerr.ErrRateLimited))

	var nerr *ncerr.Error
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, 3, nerr.Attempts)
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, *sleeps, 2)
}

func TestExecuteTotalWaitCap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c, sleeps := newTestWrapper(t, server, RetryPolicy{MaxAttempts: 10, BaseDelay: 2 * time.Second, MaxDelay: 8 * time.Second, MaxTotalWait: 5 * time.Second})

	_, err := c.Execute(context.Background(), &Request{Method: http.MethodGet, Path: "/f.txt"})
	require.Error(t, err)
	assert.Equal(t, ncerr.KindRateLimited, ncerr.KindOf(err))
	// 2s, then 4s clamped to the remaining 3s, then nothing left.
	assert.Equal(t, []time.Duration{2 * time.Second, 3 * time.Second}, *sleeps)

	var nerr *ncerr.Error
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, 3, nerr.Attempts)
}

func TestExecuteClassification(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, ncerr.ErrNotFound},
		{http.StatusConflict, ncerr.ErrConflict},
		{http.StatusPreconditionFailed, ncerr.ErrConflict},
		{http.StatusUnauthorized, ncerr.ErrForbidden},
		{http.StatusForbidden, ncerr.ErrForbidden},
		{http.StatusInternalServerError, ncerr.ErrRemote},
		{http.StatusBadRequest, ncerr.ErrRemote},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("failure detail"))
			}))
			defer server.Close()

			c, _ := newTestWrapper(t, server, DefaultRetryPolicy)
			_, err := c.Execute(context.Background(), &Request{Method: http.MethodGet, Path: "/x"})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.status, ncerr.StatusOf(err))
			assert.Contains(t, err.Error(), "failure detail")
			assert.Equal(t, int32(1), calls.Load(), "non-429 failures are not retried")
		})
	}
}

func TestExecuteNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	c, _ := newTestWrapper(t, server, DefaultRetryPolicy)
	server.Close()

	_, err := c.Execute(context.Background(), &Request{Method: http.MethodGet, Path: "/x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ncerr.ErrRemote)
}

func TestTransportAuthAndCookies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "alice", user)
		assert.Equal(t, "secret", pass)
		assert.Empty(t, r.Header.Get("Cookie"))
		http.SetCookie(w, &http.Cookie{Name: "nc_session_id", Value: "abc"})
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c, _ := newTestWrapper(t, server, DefaultRetryPolicy)
	header := http.Header{}
	header.Set("Cookie", "nc_session_id=stale")
	for i := 0; i < 2; i++ {
		resp, err := c.DoGET(context.Background(), "/x", header)
		require.NoError(t, err)
		assert.Empty(t, resp.Header.Values("Set-Cookie"))
	}
}

func TestTransportRejectsEmptyCredentials(t *testing.T) {
	transport := NewBasicAuthTransport("", "secret", nil, nil)
	req := httptest.NewRequest(http.MethodGet, "https://cloud.example.com/", nil)
	_, err := transport.RoundTrip(req)
	assert.Error(t, err)
}

func TestDoPUTPreconditions(t *testing.T) {
	tests := []struct {
		name            string
		cond            Precondition
		wantIfMatch     string
		wantIfNoneMatch string
	}{
		{"unconditional", Precondition{}, "", ""},
		{"bare etag is quoted", Precondition{IfMatch: "abc"}, `"abc"`, ""},
		{"quoted etag kept", Precondition{IfMatch: `"abc"`}, `"abc"`, ""},
		{"create only", Precondition{IfNoneMatch: true}, "", "*"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPut, r.Method)
				assert.Equal(t, tt.wantIfMatch, r.Header.Get("If-Match"))
				assert.Equal(t, tt.wantIfNoneMatch, r.Header.Get("If-None-Match"))
				assert.Equal(t, "text/calendar; charset=utf-8", r.Header.Get("Content-Type"))
				w.Header().Set("ETag", `"new"`)
				w.WriteHeader(http.StatusNoContent)
			}))
			defer server.Close()

			c, _ := newTestWrapper(t, server, DefaultRetryPolicy)
			etag, err := c.DoPUT(context.Background(), "/cal/e.ics", tt.cond, "text/calendar; charset=utf-8", []byte("BEGIN:VCALENDAR"))
			require.NoError(t, err)
			assert.Equal(t, `"new"`, etag)
		})
	}
}

func TestDoPROPFIND(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PROPFIND", r.Method)
		assert.Equal(t, "1", r.Header.Get("Depth"))
		assert.Equal(t, "/nc/remote.php/dav/files/alice/", r.URL.Path)
		w.WriteHeader(http.StatusMultiStatus)
		_, _ = w.Write([]byte(`<d:multistatus xmlns:d="DAV:"/>`))
	}))
	defer server.Close()

	c, _ := newTestWrapper(t, server, DefaultRetryPolicy)
	resp, err := c.DoPROPFIND(context.Background(), "/remote.php/dav/files/alice/", 1, []byte("<d:propfind/>"))
	require.NoError(t, err)
	assert.Contains(t, string(resp.Body), "multistatus")

	_, err = c.DoPROPFIND(context.Background(), "/", 2, nil)
	assert.Error(t, err, "depth infinity is rejected")
}

func TestDoREPORTRequiresMultistatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "REPORT", r.Method)
		assert.Equal(t, "application/xml; charset=utf-8", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c, _ := newTestWrapper(t, server, DefaultRetryPolicy)
	_, err := c.DoREPORT(context.Background(), "/cal/", 1, []byte("<c:calendar-query/>"))
	assert.ErrorIs(t, err, ncerr.ErrRemote)
}

func TestDoMKCOLAlreadyExists(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "MKCOL", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
	}))
	defer server.Close()

	c, _ := newTestWrapper(t, server, DefaultRetryPolicy)
	resp, err := c.DoMKCOL(context.Background(), "/dir/", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestDoDELETE(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		if r.Header.Get("If-Match") != `"v2"` {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c, _ := newTestWrapper(t, server, DefaultRetryPolicy)
	assert.NoError(t, c.DoDELETE(context.Background(), "/e.ics", `"v2"`))
	assert.ErrorIs(t, c.DoDELETE(context.Background(), "/e.ics", `"v1"`), ncerr.ErrConflict)
}

func TestDoJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.Header.Get("OCS-APIRequest"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"title":"x"}`, string(body))
		if r.URL.Path == "/nc/bad" {
			_, _ = w.Write([]byte("not json"))
			return
		}
		_, _ = w.Write([]byte(`{"id":7}`))
	}))
	defer server.Close()

	c, _ := newTestWrapper(t, server, DefaultRetryPolicy)
	var out struct {
		ID int `json:"id"`
	}
	_, err := c.DoJSON(context.Background(), http.MethodPost, "/ok", nil, map[string]string{"title": "x"}, &out)
	require.NoError(t, err)
	assert.Equal(t, 7, out.ID)

	_, err = c.DoJSON(context.Background(), http.MethodPost, "/bad", nil, map[string]string{"title": "x"}, &out)
	assert.ErrorIs(t, err, ncerr.ErrMalformed)
}

func TestFetchETag(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PROPFIND", r.Method)
		assert.Equal(t, "0", r.Header.Get("Depth"))
		w.WriteHeader(http.StatusMultiStatus)
		if r.URL.Path == "/nc/none.ics" {
			_, _ = w.Write([]byte(`<d:multistatus xmlns:d="DAV:"><d:response><d:href>/nc/none.ics</d:href></d:response></d:multistatus>`))
			return
		}
		_, _ = w.Write([]byte(`<d:multistatus xmlns:d="DAV:"><d:response><d:href>/nc/e.ics</d:href><d:propstat><d:prop><d:getetag>"v3"</d:getetag></d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response></d:multistatus>`))
	}))
	defer server.Close()

	c, _ := newTestWrapper(t, server, DefaultRetryPolicy)
	etag, err := c.FetchETag(context.Background(), "/e.ics")
	require.NoError(t, err)
	assert.Equal(t, `"v3"`, etag)

	_, err = c.FetchETag(context.Background(), "/none.ics")
	assert.ErrorIs(t, err, ncerr.ErrMalformed)
}

func TestDoOCS(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.Header.Get("OCS-APIRequest"))
		switch r.URL.Path {
		case "/nc/ok":
			_, _ = w.Write([]byte(`{"ocs":{"meta":{"status":"ok","statuscode":200},"data":[{"id":1},{"id":2}]}}`))
		case "/nc/denied":
			_, _ = w.Write([]byte(`{"ocs":{"meta":{"status":"failure","statuscode":403,"message":"no access"},"data":[]}}`))
		default:
			_, _ = w.Write([]byte(`{"ocs":{"meta":{"statuscode":200},"data":"text"}}`))
		}
	}))
	defer server.Close()

	c, _ := newTestWrapper(t, server, DefaultRetryPolicy)
	var items []struct {
		ID int `json:"id"`
	}
	require.NoError(t, DoOCS(context.Background(), c, http.MethodGet, "/ok", nil, &items))
	assert.Len(t, items, 2)

	err := DoOCS(context.Background(), c, http.MethodGet, "/denied", nil, &items)
	assert.ErrorIs(t, err, ncerr.ErrForbidden)

	err = DoOCS(context.Background(), c, http.MethodGet, "/mismatch", nil, &items)
	assert.ErrorIs(t, err, ncerr.ErrMalformed)
}
