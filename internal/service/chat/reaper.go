package chat

import (
	"context"
	"fmt"
	"log"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// Reaper periodically closes and evicts idle sessions.
type Reaper struct {
	svc     *Service
	ttl     time.Duration
	timeout time.Duration
	cron    *rcron.Cron
}

// NewReaper schedules svc.ReapIdle on schedule, a standard cron expression or
// descriptor such as "@every 1m".
func NewReaper(svc *Service, ttl time.Duration, schedule string) (*Reaper, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("reaper: idle ttl must be positive, got %s", ttl)
	}
	r := &Reaper{
		svc:     svc,
		ttl:     ttl,
		timeout: 2 * time.Minute,
		cron:    rcron.New(),
	}
	if _, err := r.cron.AddFunc(schedule, r.RunOnce); err != nil {
		return nil, fmt.Errorf("reaper: invalid schedule %q: %w", schedule, err)
	}
	return r, nil
}

func (r *Reaper) Start() {
	r.cron.Start()
	log.Printf("[reaper] started, idle ttl=%s", r.ttl)
}

// Stop halts scheduling and waits for a running sweep to finish or ctx to end.
func (r *Reaper) Stop(ctx context.Context) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunOnce performs a single sweep.
func (r *Reaper) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if n := r.svc.ReapIdle(ctx, r.ttl); n > 0 {
		log.Printf("[reaper] evicted %d idle sessions", n)
	}
}
