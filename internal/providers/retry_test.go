package providers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"adspack/internal/format"
	"adspack/internal/imagedata"
)

type fakeTimer struct {
	mu     *sync.Mutex
	delays *[]time.Duration
	c      chan time.Time
}

func (t *fakeTimer) Start(d time.Duration) {
	t.mu.Lock()
	*t.delays = append(*t.delays, d)
	t.mu.Unlock()
	t.c = make(chan time.Time, 1)
	t.c <- time.Time{}
}

func (t *fakeTimer) Stop() {}

func (t *fakeTimer) C() <-chan time.Time { return t.c }

type scripted struct {
	mu    sync.Mutex
	calls int
	errs  []error
}

func (s *scripted) Name() string { return "stub" }

func (s *scripted) Generate(ctx context.Context, req Request) (imagedata.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.calls
	s.calls++
	if idx < len(s.errs) && s.errs[idx] != nil {
		return imagedata.Image{}, s.errs[idx]
	}
	return imagedata.Image{Data: []byte{1}, MIMEType: "image/png", Width: req.Target.Width, Height: req.Target.Height}, nil
}

func recordingRetry(next Generator) (*Retrying, *[]time.Duration) {
	var mu sync.Mutex
	delays := []time.Duration{}
	r := WithRetry(next, DefaultRetryPolicy)
	r.NewTimer = func() backoff.Timer { return &fakeTimer{mu: &mu, delays: &delays} }
	return r, &delays
}

func overloaded() error {
	return FromStatus("stub", http.StatusServiceUnavailable, "", "overloaded")
}

func testRequest() Request {
	return Request{Target: format.Lookup(format.Square), Prompt: "p"}
}

func TestRetrySucceedsOnThirdAttempt(t *testing.T) {
	stub := &scripted{errs: []error{overloaded(), FromStatus("stub", http.StatusTooManyRequests, "", "slow down")}}
	r, delays := recordingRetry(stub)

	img, err := r.Generate(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(img.Data) == 0 {
		t.Fatalf("expected image data")
	}
	if stub.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", stub.calls)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(*delays) != len(want) {
		t.Fatalf("expected %d delays, got %v", len(want), *delays)
	}
	for i, d := range want {
		if (*delays)[i] != d {
			t.Fatalf("delay %d: got %s want %s", i, (*delays)[i], d)
		}
	}
}

func TestRetryExhaustionReturnsFailure(t *testing.T) {
	stub := &scripted{errs: []error{overloaded(), overloaded(), overloaded(), nil}}
	r, delays := recordingRetry(stub)

	_, err := r.Generate(context.Background(), testRequest())
	if err == nil {
		t.Fatalf("expected failure after exhausting retries")
	}
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if pe.Kind != KindTransient || pe.Attempts != 3 {
		t.Fatalf("unexpected failure: kind=%s attempts=%d", pe.Kind, pe.Attempts)
	}
	if stub.calls != 3 || len(*delays) != 2 {
		t.Fatalf("expected 3 calls and 2 delays, got %d and %v", stub.calls, *delays)
	}
}

func TestRetryTerminalIsNotRetried(t *testing.T) {
	stub := &scripted{errs: []error{FromStatus("stub", http.StatusBadRequest, "invalid_request", "bad image")}}
	r, delays := recordingRetry(stub)

	_, err := r.Generate(context.Background(), testRequest())
	if KindOf(err) != KindTerminal {
		t.Fatalf("expected terminal failure, got %v", err)
	}
	if stub.calls != 1 || len(*delays) != 0 {
		t.Fatalf("expected a single call, got %d calls and delays %v", stub.calls, *delays)
	}
}

func TestRetryMalformedIsNotRetried(t *testing.T) {
	stub := &scripted{errs: []error{Malformed("stub", nil)}}
	r, _ := recordingRetry(stub)

	_, err := r.Generate(context.Background(), testRequest())
	if KindOf(err) != KindMalformed || stub.calls != 1 {
		t.Fatalf("expected one malformed failure, got %v after %d calls", err, stub.calls)
	}
}

func TestRetryNotify(t *testing.T) {
	stub := &scripted{errs: []error{overloaded()}}
	r, _ := recordingRetry(stub)
	var notified []time.Duration
	r.Notify = func(req Request, err error, d time.Duration) {
		if !IsTransient(err) {
			t.Errorf("notify got non-transient error %v", err)
		}
		notified = append(notified, d)
	}
	if _, err := r.Generate(context.Background(), testRequest()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notified) != 1 || notified[0] != 2*time.Second {
		t.Fatalf("unexpected notifications: %v", notified)
	}
}

func TestRetryStopsOnCancelledContext(t *testing.T) {
	stub := &scripted{errs: []error{overloaded(), overloaded(), overloaded()}}
	r := WithRetry(stub, RetryPolicy{MaxAttempts: 3, Step: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	r.Notify = func(Request, error, time.Duration) { cancel() }

	_, err := r.Generate(ctx, testRequest())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if stub.calls != 1 {
		t.Fatalf("expected 1 call, got %d", stub.calls)
	}
}
