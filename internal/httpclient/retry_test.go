package httpclient

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: 500 * time.Millisecond, MaxDelay: 3 * time.Second, MaxTotalWait: time.Minute}

	tests := []struct {
		name       string
		n          int
		retryAfter string
		want       time.Duration
	}{
		{"first retry", 1, "", 500 * time.Millisecond},
		{"second retry", 2, "", time.Second},
		{"third retry", 3, "", 2 * time.Second},
		{"capped", 4, "", 3 * time.Second},
		{"retry-after honoured", 1, "2", 2 * time.Second},
		{"retry-after above cap ignored", 1, "60", 500 * time.Millisecond},
		{"retry-after date form ignored", 2, "Wed, 21 Oct 2015 07:28:00 GMT", time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.Backoff(tt.n, tt.retryAfter))
		})
	}
}

func TestRetryPolicyNormalized(t *testing.T) {
	assert.Equal(t, DefaultRetryPolicy, RetryPolicy{}.normalized())
}

func TestSleepCtxCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
}
