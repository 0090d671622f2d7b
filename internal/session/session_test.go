package session

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"adspack/internal/domain"
	"adspack/internal/format"
	"adspack/internal/imagedata"
	"adspack/internal/infra"
	"adspack/internal/orchestrator"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleResult() orchestrator.Result {
	return orchestrator.Result{
		Images: map[format.Key]imagedata.Image{
			format.Square: {Data: []byte("sq"), MIMEType: "image/png", Width: 1080, Height: 1080},
		},
		Requested: []format.Key{format.Square, format.Landscape},
		Failures:  []orchestrator.Failure{{Format: format.Landscape, Reason: "provider overloaded"}},
		Provider:  "stub",
	}
}

func TestIsExpiredBoundary(t *testing.T) {
	tests := []struct {
		offset time.Duration
		want   bool
	}{
		{0, false},
		{179 * time.Second, false},
		{179*time.Second + 999*time.Millisecond, false},
		{180 * time.Second, true},
		{181 * time.Second, true},
		{time.Hour, true},
	}
	for _, tt := range tests {
		if got := IsExpired(t0.Add(tt.offset), t0, TTL); got != tt.want {
			t.Fatalf("IsExpired(+%s) = %v, want %v", tt.offset, got, tt.want)
		}
	}
}

func TestRemainingIsMonotonic(t *testing.T) {
	prev := Remaining(t0, t0, TTL)
	if prev != TTL {
		t.Fatalf("Remaining at creation = %s, want %s", prev, TTL)
	}
	zeroes := 0
	for s := 1; s <= 200; s++ {
		cur := Remaining(t0.Add(time.Duration(s)*time.Second), t0, TTL)
		if cur > prev {
			t.Fatalf("remaining increased at +%ds: %s > %s", s, cur, prev)
		}
		if cur == 0 && prev != 0 {
			zeroes++
		}
		prev = cur
	}
	if zeroes != 1 {
		t.Fatalf("remaining should reach zero exactly once, got %d", zeroes)
	}
	if got := Remaining(t0.Add(-time.Minute), t0, TTL); got != TTL {
		t.Fatalf("clock skew should clamp to TTL, got %s", got)
	}
}

func TestFormatRemaining(t *testing.T) {
	tests := map[time.Duration]string{
		TTL:                                    "3:00",
		179*time.Second + 500*time.Millisecond: "2:59",
		65 * time.Second:                       "1:05",
		9 * time.Second:                        "0:09",
		0:                                      "0:00",
		-time.Second:                           "0:00",
	}
	for d, want := range tests {
		if got := FormatRemaining(d); got != want {
			t.Fatalf("FormatRemaining(%s) = %q, want %q", d, got, want)
		}
	}
}

func TestSessionExpiryPurgesImages(t *testing.T) {
	s := New("s1", sampleResult(), t0)

	img, err := s.Image(t0.Add(179*time.Second), format.Square)
	if err != nil || string(img.Data) != "sq" {
		t.Fatalf("expected image while active, got %v", err)
	}
	if _, err := s.Image(t0.Add(time.Minute), format.Landscape); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("failed format should be not found, got %v", err)
	}

	if _, err := s.Images(t0.Add(180 * time.Second)); !errors.Is(err, domain.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	// A clock that goes backwards must not revive the session.
	if s.Check(t0.Add(time.Second)) != StateExpired {
		t.Fatalf("expired session reverted to active")
	}
	if s.images != nil {
		t.Fatalf("image buffers should be dropped on expiry")
	}
}

func TestSessionExpireHookRunsOnce(t *testing.T) {
	var fired atomic.Int32
	store := NewMemoryStore(func(*Session) { fired.Add(1) })
	s := New("s2", sampleResult(), t0)
	if err := store.Put(context.Background(), s); err != nil {
		t.Fatalf("Put: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Check(t0.Add(TTL))
		}()
	}
	wg.Wait()
	if fired.Load() != 1 {
		t.Fatalf("expire hook fired %d times", fired.Load())
	}
}

func TestSessionStatus(t *testing.T) {
	s := New("s3", sampleResult(), t0)

	st := s.Status(t0.Add(61 * time.Second))
	if st.State != StateActive || st.Remaining != "1:59" || st.RemainingSeconds != 119 {
		t.Fatalf("unexpected active status %+v", st)
	}
	if len(st.Formats) != 1 || st.Formats[0] != format.Square {
		t.Fatalf("unexpected formats %v", st.Formats)
	}

	st = s.Status(t0.Add(TTL))
	if !st.Expired || st.Remaining != "0:00" || len(st.Formats) != 0 {
		t.Fatalf("unexpected expired status %+v", st)
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	store := NewMemoryStore(nil)
	ctx := context.Background()
	_ = store.Put(ctx, New("old", sampleResult(), t0))
	_ = store.Put(ctx, New("new", sampleResult(), t0.Add(2*time.Minute)))

	if n := store.Sweep(t0.Add(TTL)); n != 1 {
		t.Fatalf("expected 1 expiry, got %d", n)
	}
	if n := store.Sweep(t0.Add(TTL + time.Second)); n != 0 {
		t.Fatalf("expiry must be counted once, got %d", n)
	}
	if _, err := store.Get(ctx, "old"); err != nil {
		t.Fatalf("expired session should be retained for status calls: %v", err)
	}

	store.Sweep(t0.Add(TTL + Retention))
	if _, err := store.Get(ctx, "old"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected old session to be forgotten, got %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 remaining session, got %d", store.Len())
	}
}

func TestMemoryStoreConcurrentSweepsCountEachExpiryOnce(t *testing.T) {
	store := NewMemoryStore(nil)
	for i := 0; i < 20; i++ {
		_ = store.Put(context.Background(), New(uuid.NewString(), sampleResult(), t0))
	}

	var (
		wg    sync.WaitGroup
		total atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			total.Add(int32(store.Sweep(t0.Add(TTL))))
		}()
	}
	wg.Wait()
	if total.Load() != 20 {
		t.Fatalf("expected 20 expiries across concurrent sweeps, got %d", total.Load())
	}
}

type countingSweeper struct{ n atomic.Int32 }

func (c *countingSweeper) Sweep(time.Time) int {
	c.n.Add(1)
	return 0
}

func TestRunSweeperStopsWithContext(t *testing.T) {
	sw := &countingSweeper{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunSweeper(ctx, sw, 5*time.Millisecond, nil, infra.DiscardLogger())
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for sw.n.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("sweeper did not tick")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("sweeper did not stop")
	}
}

func TestRedisStoreRoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := NewRedisClient(ctx, url)
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	defer client.Close()

	now := time.Now()
	clock := now
	var expiries atomic.Int32
	store := NewRedisStore(client, func() time.Time { return clock }, func(*Session) { expiries.Add(1) })
	id := uuid.NewString()
	defer store.Delete(ctx, id)

	if err := store.Put(ctx, New(id, sampleResult(), now)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	img, err := got.Image(clock, format.Square)
	if err != nil || string(img.Data) != "sq" {
		t.Fatalf("unexpected image %v %q", err, img.Data)
	}
	if len(got.Failures) != 1 || got.Failures[0].Format != format.Landscape {
		t.Fatalf("failures not preserved: %+v", got.Failures)
	}

	clock = now.Add(TTL)
	got, err = store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get after expiry: %v", err)
	}
	if !got.Status(clock).Expired {
		t.Fatalf("expected expired session")
	}
	for i := 0; i < 3; i++ {
		if _, err := store.Get(ctx, id); err != nil {
			t.Fatalf("Get after expiry: %v", err)
		}
	}
	if expiries.Load() != 1 {
		t.Fatalf("expiry must be recorded once, got %d", expiries.Load())
	}
	if _, err := store.Get(ctx, uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
}
