// Package retry classifies upstream failures and schedules bounded
// exponential backoff for the initial connection attempt.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"syscall"
	"time"
)

// Policy describes a bounded exponential backoff schedule.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	Jitter      float64
}

// Default returns the standard schedule: three attempts with delays of
// roughly 1s and 2s between them, capped at 16s, jittered by 20%.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		Multiplier:  2,
		MaxDelay:    16 * time.Second,
		Jitter:      0.2,
	}
}

// Delay computes the pause before retry number attempt (zero-based).
func (p Policy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2
	}
	d := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= mult
	}
	if max := float64(p.MaxDelay); max > 0 && d > max {
		d = max
	}
	if p.Jitter > 0 {
		// additive jitter in [-Jitter, +Jitter] of the computed delay
		d += d * p.Jitter * (2*rand.Float64() - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

type statusCoder interface {
	HTTPStatusCode() int
}

// Retryable reports whether err is a transient upstream failure worth
// another connection attempt. Rate limiting and server-side errors are
// transient; client errors, validation failures, and cancellation are not.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		code := sc.HTTPStatusCode()
		return code == http.StatusTooManyRequests || code >= 500
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// Do runs op up to p.MaxAttempts times, sleeping per the schedule between
// attempts. Non-retryable failures and context cancellation end the loop
// immediately; the last error is returned on exhaustion.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if werr := wait(ctx, p.Delay(attempt-1)); werr != nil {
				return werr
			}
		}
		err = op(ctx)
		if err == nil {
			return nil
		}
		if !Retryable(err) {
			return err
		}
	}
	return err
}

func wait(ctx context.Context, d time.Duration) error {
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
