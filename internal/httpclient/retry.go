package httpclient

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryPolicy bounds the rate-limit retry loop.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay seeds the exponential backoff: BaseDelay * 2^(retry-1).
	BaseDelay time.Duration
	// MaxDelay caps a single backoff delay.
	MaxDelay time.Duration
	// MaxTotalWait caps the cumulative sleep of one call.
	MaxTotalWait time.Duration
}

// DefaultRetryPolicy allows five attempts with at most 30s of total backoff.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:  5,
	BaseDelay:    500 * time.Millisecond,
	MaxDelay:     8 * time.Second,
	MaxTotalWait: 30 * time.Second,
}

func (p RetryPolicy) normalized() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultRetryPolicy.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultRetryPolicy.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultRetryPolicy.MaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.MaxTotalWait <= 0 {
		p.MaxTotalWait = DefaultRetryPolicy.MaxTotalWait
	}
	return p
}

// Backoff returns the delay before retry number n (1-based). A Retry-After
// value in seconds replaces the computed delay when it is shorter than
// MaxDelay.
func (p RetryPolicy) Backoff(n int, retryAfter string) time.Duration {
	if n < 1 {
		n = 1
	}
	if d, ok := parseRetryAfter(retryAfter); ok && d <= p.MaxDelay {
		return d
	}
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	return d
}

func parseRetryAfter(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}

func isRateLimited(status int) bool {
	return status == http.StatusTooManyRequests
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
