// internal/poller/runner.go
package poller

import (
	"context"
	"sync"
)

// Handler runs one attempt for a trigger.
type Handler interface {
	Handle(ctx context.Context, t Trigger) Result
}

// Runner is the single background context for one poller.
// Triggers are handed off through a one-slot pending buffer:
// while a trigger is pending, new ones are merged into it.
type Runner struct {
	h   Handler
	out chan<- Result
	tel Telemetry

	mu      sync.Mutex
	pending *Trigger
	signal  chan struct{}
}

// NewRunner builds a runner. out may be nil.
func NewRunner(h Handler, out chan<- Result, tel Telemetry) *Runner {
	if tel == nil {
		tel = nopTelemetry{}
	}
	return &Runner{
		h:      h,
		out:    out,
		tel:    tel,
		signal: make(chan struct{}, 1),
	}
}

// Submit queues t without blocking. It returns false when t was merged into
// an already pending trigger.
func (r *Runner) Submit(t Trigger) bool {
	r.mu.Lock()
	if r.pending != nil {
		merged := mergeTriggers(*r.pending, t)
		r.pending = &merged
		r.mu.Unlock()
		r.tel.Coalesced()
		return false
	}
	r.pending = &t
	r.mu.Unlock()

	select {
	case r.signal <- struct{}{}:
	default:
	}
	return true
}

// Run handles triggers one at a time until ctx is done.
func (r *Runner) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.signal:
		}

		r.mu.Lock()
		t := r.pending
		r.pending = nil
		r.mu.Unlock()

		if t == nil {
			continue
		}

		res := r.h.Handle(ctx, *t)

		if r.out == nil {
			continue
		}
		select {
		case r.out <- res:
		case <-ctx.Done():
			return
		}
	}
}

// mergeTriggers keeps the stronger kind (manual over scheduled) and the larger page hint.
func mergeTriggers(a, b Trigger) Trigger {
	out := a
	if b.Kind == TriggerManual {
		out.Kind = TriggerManual
	}
	if b.Pages > out.Pages {
		out.Pages = b.Pages
	}
	return out
}
