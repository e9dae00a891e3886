package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ncmcp/ncclient/internal/metrics"
	"github.com/ncmcp/ncclient/ncerr"
	"golang.org/x/time/rate"
)

// HttpClientWrapper wraps http.Client with Nextcloud/DAV-specific request
// execution: rate-limit retries, failure classification and conditional
// request helpers.
type HttpClientWrapper interface {
	Execute(ctx context.Context, req *Request) (*Response, error)
	DoGET(ctx context.Context, path string, header http.Header) (*Response, error)
	DoPUT(ctx context.Context, path string, cond Precondition, contentType string, data []byte) (newEtag string, err error)
	DoDELETE(ctx context.Context, path string, etag string) error
	DoPROPFIND(ctx context.Context, path string, depth int, body []byte) (*Response, error)
	DoREPORT(ctx context.Context, path string, depth int, body []byte) (*Response, error)
	DoMKCOL(ctx context.Context, path string, body []byte) (*Response, error)
	DoMKCALENDAR(ctx context.Context, path string, body []byte) (*Response, error)
	DoMOVE(ctx context.Context, path string, header http.Header) (*Response, error)
	DoCOPY(ctx context.Context, path string, header http.Header) (*Response, error)
	DoJSON(ctx context.Context, method, path string, header http.Header, in, out any) (*Response, error)
	FetchETag(ctx context.Context, path string) (string, error)
	// AbsoluteURL resolves path against the base URL.
	AbsoluteURL(path string) (*url.URL, error)
	// BasePath is the escaped path prefix of the base URL, without a trailing slash.
	BasePath() string
}

// Request is a single logical request; the body is buffered so it can be
// re-sent on retry.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// Response is a fully read response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// ETag returns the response's entity tag header.
func (r *Response) ETag() string {
	return r.Header.Get("ETag")
}

// Options configures an HttpClientWrapper.
type Options struct {
	Retry RetryPolicy
	// RequestsPerSecond paces outbound requests; 0 disables pacing.
	RequestsPerSecond float64
	Burst             int
}

type httpClientWrapper struct {
	client  *http.Client
	baseURL url.URL
	logger  *slog.Logger
	retry   RetryPolicy
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewHttpClientWrapper creates a new client wrapper. The http.Client should
// carry a BasicAuthTransport and must not have a cookie jar.
func NewHttpClientWrapper(client *http.Client, baseURL url.URL, logger *slog.Logger, opts Options) (HttpClientWrapper, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if client == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if client.Jar != nil {
		return nil, fmt.Errorf("http client must not use a cookie jar")
	}
	if baseURL.Scheme == "" || baseURL.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", baseURL.String())
	}
	w := &httpClientWrapper{
		client:  client,
		baseURL: baseURL,
		logger:  logger,
		retry:   opts.Retry.normalized(),
		sleep:   sleepCtx,
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		w.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return w, nil
}

// resolveURL joins a server-relative path onto the base URL, keeping any
// path prefix the base URL carries (e.g. a sub-directory installation).
func (c *httpClientWrapper) resolveURL(urlStr string) (*url.URL, error) {
	ref, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL %q: %w", urlStr, err)
	}
	if ref.IsAbs() {
		return ref, nil
	}
	resolved := c.baseURL
	escaped := c.BasePath() + "/" + strings.TrimPrefix(ref.EscapedPath(), "/")
	unescaped, err := url.PathUnescape(escaped)
	if err != nil {
		return nil, fmt.Errorf("failed to unescape path %q: %w", escaped, err)
	}
	resolved.Path = unescaped
	resolved.RawPath = escaped
	resolved.RawQuery = ref.RawQuery
	resolved.Fragment = ""
	return &resolved, nil
}

func (c *httpClientWrapper) AbsoluteURL(path string) (*url.URL, error) {
	return c.resolveURL(path)
}

func (c *httpClientWrapper) BasePath() string {
	return strings.TrimSuffix(c.baseURL.EscapedPath(), "/")
}

// Execute performs req, retrying on 429 with capped exponential backoff, and
// classifies any other failure status without retrying.
func (c *httpClientWrapper) Execute(ctx context.Context, req *Request) (*Response, error) {
	resolvedURL, err := c.resolveURL(req.Path)
	if err != nil {
		c.logger.Debug("failed to resolve URL", "url", req.Path, "error", err)
		return nil, fmt.Errorf("failed to resolve URL %q: %w", req.Path, err)
	}

	var waited time.Duration
	for attempt := 1; ; attempt++ {
		resp, err := c.do(ctx, req, resolvedURL)
		if err != nil {
			return nil, &ncerr.Error{Kind: ncerr.KindRemote, Op: req.Method, Resource: req.Path, Err: err}
		}

		if !isRateLimited(resp.StatusCode) {
			if resp.StatusCode >= 400 {
				c.logger.Debug("unexpected response status",
					"method", req.Method,
					"url", req.Path,
					"status_code", resp.StatusCode)
				return resp, classify(req, resp)
			}
			return resp, nil
		}

		if attempt >= c.retry.MaxAttempts {
			c.logger.Warn("rate limit retries exhausted",
				"method", req.Method,
				"url", req.Path,
				"attempts", attempt)
			metrics.ObserveExhausted(req.Method)
			return resp, &ncerr.Error{
				Kind:     ncerr.KindRateLimited,
				Op:       req.Method,
				Resource: req.Path,
				Status:   resp.StatusCode,
				Attempts: attempt,
			}
		}

		delay := c.retry.Backoff(attempt, resp.Header.Get("Retry-After"))
		if remaining := c.retry.MaxTotalWait - waited; delay > remaining {
			delay = remaining
		}
		if delay <= 0 {
			c.logger.Warn("rate limit backoff budget exhausted",
				"method", req.Method,
				"url", req.Path,
				"attempts", attempt,
				"waited", waited)
			metrics.ObserveExhausted(req.Method)
			return resp, &ncerr.Error{
				Kind:     ncerr.KindRateLimited,
				Op:       req.Method,
				Resource: req.Path,
				Status:   resp.StatusCode,
				Attempts: attempt,
			}
		}

		c.logger.Warn("429 Too Many Requests, backing off",
			"method", req.Method,
			"url", req.Path,
			"attempt", attempt,
			"delay", delay)
		metrics.ObserveRetry(req.Method)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, &ncerr.Error{Kind: ncerr.KindRemote, Op: req.Method, Resource: req.Path, Attempts: attempt, Err: err}
		}
		waited += delay
	}
}

func (c *httpClientWrapper) do(ctx context.Context, req *Request, target *url.URL) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	start := time.Now()
	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		metrics.ObserveRequest(req.Method, 0, time.Since(start))
		c.logger.Debug("request failed", "method", req.Method, "url", req.Path, "error", err)
		return nil, err
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	metrics.ObserveRequest(req.Method, httpResp.StatusCode, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	// Set-Cookie is dropped by BasicAuthTransport too; this covers callers
	// that supply their own transport.
	httpResp.Header.Del("Set-Cookie")

	c.logger.Debug("received response",
		"method", req.Method,
		"url", req.Path,
		"status", httpResp.Status)
	return &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: data}, nil
}

func classify(req *Request, resp *Response) error {
	return &ncerr.Error{
		Kind:     ncerr.FromStatus(resp.StatusCode),
		Op:       req.Method,
		Resource: req.Path,
		Status:   resp.StatusCode,
		Detail:   excerpt(resp.Body),
	}
}

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	const limit = 200
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return s
}
