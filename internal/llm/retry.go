package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"

	"vendorsec-backend/internal/shared/apperr"
	"vendorsec-backend/internal/shared/metrics"
	"vendorsec-backend/internal/shared/telemetry"
)

// RetryPolicy bounds retries of one logical inference call.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Sleep is replaceable in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy is three attempts with exponential backoff from 2s capped at 60s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 60 * time.Second}
}

// Retry runs fn until it succeeds, fails with a non-retryable error, or the
// attempts run out. The final failure is an apperr.ErrInference.
func Retry(ctx context.Context, p RetryPolicy, op string, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil {
			metrics.IncInference("ok")
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if !ShouldRetry(err) || attempt == attempts {
			break
		}
		metrics.IncInference("retry")
		delay := p.backoff(attempt)
		telemetry.Warn("inference.retry", map[string]any{
			"op":       op,
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
			"err":      err,
		})
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return sleepErr
		}
	}
	metrics.IncInference("error")
	return apperr.Wrap(apperr.ErrInference, fmt.Errorf("%s: %w", op, err))
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	base := p.BaseDelay
	if base <= 0 {
		return 0
	}
	d := base << (attempt - 1)
	if p.MaxDelay > 0 && (d > p.MaxDelay || d <= 0) {
		d = p.MaxDelay
	}
	// up to 25% jitter
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	return d + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ShouldRetry reports whether an inference error is worth another attempt.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotImplemented) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, ErrMalformedOutput) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, needle := range []string{
		"connection reset",
		"connection refused",
		"connection closed",
		"broken pipe",
		"tls handshake timeout",
		"unexpected eof",
		"throttl",
		"rate limit",
		"too many requests",
		"server_error",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}

// NewRetrying wraps a client so every call follows the policy. Streams are
// retried only while opening; a stream that fails midway is not restarted.
func NewRetrying(base Client, p RetryPolicy) Client {
	return &retryingClient{base: base, policy: p}
}

type retryingClient struct {
	base   Client
	policy RetryPolicy
}

func (r *retryingClient) Complete(ctx context.Context, msgs []Message, opts Options) (string, error) {
	var out string
	err := Retry(ctx, r.policy, "complete", func(ctx context.Context) error {
		var err error
		out, err = r.base.Complete(ctx, msgs, opts)
		return err
	})
	return out, err
}

func (r *retryingClient) Stream(ctx context.Context, msgs []Message, opts Options) (Stream, error) {
	var s Stream
	err := Retry(ctx, r.policy, "stream", func(ctx context.Context) error {
		var err error
		s, err = r.base.Stream(ctx, msgs, opts)
		return err
	})
	return s, err
}

func (r *retryingClient) Provider() string { return describe(r.base).provider }

func (r *retryingClient) Model() string { return describe(r.base).model }

type description struct{ provider, model string }

func describe(c Client) description {
	if d, ok := c.(Describer); ok {
		return description{provider: d.Provider(), model: d.Model()}
	}
	return description{provider: "unknown"}
}
