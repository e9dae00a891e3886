package httpclient

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
)

// BasicAuthTransport implements http.RoundTripper. It adds Basic Auth
// credentials to outgoing requests and strips Set-Cookie from responses so
// that no session cookie is ever presented back to the server; Nextcloud
// rejects cookie-authenticated DAV requests that lack a CSRF token.
type BasicAuthTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// NewBasicAuthTransport creates a new BasicAuthTransport with the given
// credentials and optional underlying transport. If transport is nil,
// http.DefaultTransport will be used.
func NewBasicAuthTransport(username, password string, transport http.RoundTripper, logger *slog.Logger) *BasicAuthTransport {
	if transport == nil {
		transport = http.DefaultTransport
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &BasicAuthTransport{
		Username:  username,
		Password:  password,
		Transport: transport,
		Logger:    logger,
	}
}

// RoundTrip implements the http.RoundTripper interface.
func (t *BasicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Username == "" {
		return nil, errors.New("basic auth username cannot be empty")
	}
	if t.Password == "" {
		return nil, errors.New("basic auth password cannot be empty")
	}
	if t.Transport == nil {
		return nil, errors.New("transport cannot be nil")
	}

	// RoundTrippers must not modify the caller's request.
	req = req.Clone(req.Context())
	req.Header.Del("Cookie")
	req.SetBasicAuth(t.Username, t.Password)

	debug := t.Logger.Enabled(req.Context(), slog.LevelDebug)
	if debug {
		t.Logger.Debug("outgoing request",
			"method", req.Method,
			"url", req.URL.String(),
			"headers", redactHeaders(req.Header),
			"body", peekRequestBody(req))
	}

	resp, err := t.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	resp.Header.Del("Set-Cookie")

	if debug {
		t.Logger.Debug("incoming response",
			"status", resp.Status,
			"headers", resp.Header,
			"body", peekResponseBody(resp))
	}
	return resp, nil
}

func redactHeaders(h http.Header) http.Header {
	safe := h.Clone()
	if safe.Get("Authorization") != "" {
		safe.Set("Authorization", "[REDACTED]")
	}
	return safe
}

func peekRequestBody(req *http.Request) string {
	if req.Body == nil || req.Body == http.NoBody {
		return ""
	}
	bodyBytes, err := io.ReadAll(req.Body)
	if err != nil {
		return ""
	}
	req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	return string(bodyBytes)
}

func peekResponseBody(resp *http.Response) string {
	if resp.Body == nil {
		return ""
	}
	bodyBytes, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	if err != nil {
		return ""
	}
	return string(bodyBytes)
}
