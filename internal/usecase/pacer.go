package usecase

import (
	"context"
	"sync"
	"time"
)

// Pacer enforces a minimum spacing between request starts. It is safe for
// concurrent use; callers are released in the order they reserve a slot.
type Pacer struct {
	mu      sync.Mutex
	spacing time.Duration
	next    time.Time
}

func NewPacer(spacing time.Duration) *Pacer {
	return &Pacer{spacing: spacing}
}

// Wait blocks until the caller's slot arrives or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p == nil || p.spacing <= 0 {
		return nil
	}

	p.mu.Lock()
	now := time.Now()
	slot := p.next
	if slot.Before(now) {
		slot = now
	}
	p.next = slot.Add(p.spacing)
	p.mu.Unlock()

	delay := time.Until(slot)
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
