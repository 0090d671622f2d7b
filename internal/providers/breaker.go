package providers

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"adspack/internal/imagedata"
)

// BreakerSettings configures a provider circuit breaker.
type BreakerSettings struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
	// OnStateChange observes transitions, e.g. for logging or metrics.
	OnStateChange func(provider string, from, to gobreaker.State)
}

// Breaker stops calling a provider after a run of consecutive outages and
// fails fast until the open timeout passes.
type Breaker struct {
	next Generator
	cb   *gobreaker.CircuitBreaker[imagedata.Image]
}

// WithBreaker decorates next with a circuit breaker. Only transient and
// transport failures count toward tripping it.
func WithBreaker(next Generator, s BreakerSettings) *Breaker {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        next.Name(),
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			switch KindOf(err) {
			case KindTransient, KindUnavailable:
				return false
			}
			return true
		},
	}
	if s.OnStateChange != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			s.OnStateChange(name, from, to)
		}
	}
	return &Breaker{next: next, cb: gobreaker.NewCircuitBreaker[imagedata.Image](settings)}
}

func (b *Breaker) Name() string { return b.next.Name() }

// State exposes the current breaker state.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }

func (b *Breaker) Generate(ctx context.Context, req Request) (imagedata.Image, error) {
	img, err := b.cb.Execute(func() (imagedata.Image, error) {
		return b.next.Generate(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return imagedata.Image{}, Unavailable(b.next.Name(), err)
	}
	return img, err
}

var _ Generator = (*Breaker)(nil)
