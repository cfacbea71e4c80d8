// Package retry re-runs operations that fail with a retryable error,
// waiting with exponential backoff between attempts.
package retry

import (
	"context"
	"time"

	perrors "github.com/jmgilman/go/errors"
)

// Config controls the backoff schedule.
type Config struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// DefaultConfig is three retries starting at one second, doubling, capped at ten seconds.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		InitialDelay:      time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2,
	}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the default SleepFunc. It does not block other goroutines.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Policy retries Network-classified failures.
type Policy struct {
	cfg   Config
	sleep SleepFunc
}

// New creates a Policy. A nil sleep uses Sleep.
func New(cfg Config, sleep SleepFunc) *Policy {
	if sleep == nil {
		sleep = Sleep
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 1
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Policy{cfg: cfg, sleep: sleep}
}

// Delays returns the wait before each retry: delay_0 = InitialDelay,
// delay_{i+1} = min(delay_i * BackoffMultiplier, MaxDelay).
func (p *Policy) Delays() []time.Duration {
	delays := make([]time.Duration, 0, p.cfg.MaxRetries)
	d := p.cfg.InitialDelay
	for i := 0; i < p.cfg.MaxRetries; i++ {
		delays = append(delays, d)
		d = p.next(d)
	}
	return delays
}

func (p *Policy) next(d time.Duration) time.Duration {
	n := time.Duration(float64(d) * p.cfg.BackoffMultiplier)
	if p.cfg.MaxDelay > 0 && n > p.cfg.MaxDelay {
		n = p.cfg.MaxDelay
	}
	return n
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// retries are used up. The last error is returned unchanged. If ctx ends
// while waiting, the last operation error is returned.
func Do[T any](ctx context.Context, p *Policy, op func(ctx context.Context) (T, error)) (T, error) {
	delay := p.cfg.InitialDelay
	var (
		result T
		err    error
	)
	for attempt := 0; ; attempt++ {
		result, err = op(ctx)
		if err == nil {
			return result, nil
		}
		if !perrors.IsRetryable(err) || attempt >= p.cfg.MaxRetries {
			return result, err
		}
		if serr := p.sleep(ctx, delay); serr != nil {
			return result, err
		}
		delay = p.next(delay)
	}
}
