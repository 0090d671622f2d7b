package providers

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"adspack/internal/imagedata"
)

// RetryPolicy bounds retries of transient failures. Delays grow linearly:
// Step, 2*Step, ...
type RetryPolicy struct {
	MaxAttempts int
	Step        time.Duration
}

// DefaultRetryPolicy is three attempts with 2s and 4s waits.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Step: 2 * time.Second}

// linearBackOff implements backoff.BackOff with delays n*step.
type linearBackOff struct {
	step    time.Duration
	retries int
	n       int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	if b.n > b.retries {
		return backoff.Stop
	}
	return time.Duration(b.n) * b.step
}

func (b *linearBackOff) Reset() { b.n = 0 }

// Retrying retries transient failures of the wrapped generator.
type Retrying struct {
	next   Generator
	policy RetryPolicy

	// Notify is called before each wait with the failure and the delay.
	Notify func(req Request, err error, delay time.Duration)
	// NewTimer overrides the wait timer. Nil uses a real timer.
	NewTimer func() backoff.Timer
}

// WithRetry decorates next with policy.
func WithRetry(next Generator, policy RetryPolicy) *Retrying {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Step <= 0 {
		policy.Step = DefaultRetryPolicy.Step
	}
	return &Retrying{next: next, policy: policy}
}

func (r *Retrying) Name() string { return r.next.Name() }

// Generate calls the wrapped generator until it succeeds, fails with a
// non-transient error, or the attempt budget is spent. A returned *Error
// records how many attempts were made.
func (r *Retrying) Generate(ctx context.Context, req Request) (imagedata.Image, error) {
	attempts := 0
	op := func() (imagedata.Image, error) {
		attempts++
		img, err := r.next.Generate(ctx, req)
		if err == nil {
			return img, nil
		}
		if !IsTransient(err) {
			return imagedata.Image{}, backoff.Permanent(err)
		}
		return imagedata.Image{}, err
	}

	var notify backoff.Notify
	if r.Notify != nil {
		notify = func(err error, d time.Duration) { r.Notify(req, err, d) }
	}
	var timer backoff.Timer
	if r.NewTimer != nil {
		timer = r.NewTimer()
	}

	b := backoff.WithContext(&linearBackOff{step: r.policy.Step, retries: r.policy.MaxAttempts - 1}, ctx)
	img, err := backoff.RetryNotifyWithTimerAndData[imagedata.Image](op, b, notify, timer)
	if err != nil {
		var pe *Error
		if errors.As(err, &pe) {
			pe.Attempts = attempts
		}
		return imagedata.Image{}, err
	}
	return img, nil
}

var _ Generator = (*Retrying)(nil)
