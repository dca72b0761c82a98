package spapi

import (
	"context"
	"sync"
	"time"
)

// throttle enforces the marketplace API's sustained rate and burst size. It
// keeps a rolling log of recent request times; once the burst capacity is
// full, the next caller sleeps until the oldest logged request is at least
// one rate interval old.
type throttle struct {
	rate  float64 // sustained requests per second
	burst int

	mu  sync.Mutex
	log []time.Time

	now func() time.Time
}

func newThrottle(rate float64, burst int) *throttle {
	if burst < 1 {
		burst = 1
	}
	return &throttle{
		rate:  rate,
		burst: burst,
		now:   time.Now,
	}
}

// Wait blocks until a request slot is available, then records the request.
// It honours context cancellation while sleeping.
func (t *throttle) Wait(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if len(t.log) >= t.burst {
		oldest := t.log[0]
		delay := time.Duration(float64(time.Second)/t.rate) - now.Sub(oldest)
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			now = t.now()
		}
		t.log = t.log[1:]
	}

	t.log = append(t.log, now)
	return nil
}
