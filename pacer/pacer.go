// Package pacer enforces a minimum spacing between calls to a shared
// downstream API.
//
// One Pacer is constructed at process start and passed to every caller;
// its cursor is the single process-wide reservation of the next
// available call slot. Scheduling reserves the slot synchronously
// before any waiting happens, so concurrent callers can never race onto
// the same slot.
package pacer

import (
	"context"
	"sync"
	"time"
)

// DefaultInterval is the minimum spacing between gated calls.
const DefaultInterval = time.Second

// Pacer is the shared minimum-interval scheduler.
type Pacer struct {
	mu       sync.Mutex
	next     time.Time // earliest instant the next call may start
	interval time.Duration
	now      func() time.Time // test hook
	sleep    func(context.Context, time.Duration) error
}

// New creates a Pacer. interval <= 0 uses DefaultInterval.
func New(interval time.Duration) *Pacer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Pacer{
		interval: interval,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Schedule reserves the next call slot, waits for it, and runs task.
// The reservation happens before the wait: even if task never runs
// because ctx dies during the wait, the slot stays consumed, which errs
// on the side of spacing calls further apart.
func (p *Pacer) Schedule(ctx context.Context, task func(context.Context) error) error {
	p.mu.Lock()
	start := p.now()
	if p.next.After(start) {
		start = p.next
	}
	p.next = start.Add(p.interval)
	p.mu.Unlock()

	if wait := start.Sub(p.now()); wait > 0 {
		if err := p.sleep(ctx, wait); err != nil {
			return err
		}
	}
	return task(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
