package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"botkit/internal/logger"
	"botkit/internal/types"
)

// DefaultContinuousInterval paces continuous automations when their
// definition gives no interval.
const DefaultContinuousInterval = time.Second

// Scheduler owns one runner per automation and the goroutines that fire
// them. Continuous and scheduled automations each get a ticker goroutine;
// event automations attach a bus subscription. Pause freezes all fires
// without tearing any of that down.
type Scheduler struct {
	deps   Deps
	paused atomic.Bool

	mu      sync.Mutex
	runners map[string]*Runner
	order   []string
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

// New builds a scheduler for the given automations. Nothing fires until
// Start.
func New(autos []types.Automation, deps Deps) (*Scheduler, error) {
	s := &Scheduler{
		deps:    deps,
		runners: make(map[string]*Runner, len(autos)),
	}
	for _, auto := range autos {
		if auto.ID == "" {
			return nil, fmt.Errorf("scheduler: automation %q has no id", auto.Name)
		}
		if _, dup := s.runners[auto.ID]; dup {
			return nil, fmt.Errorf("scheduler: duplicate automation id %q", auto.ID)
		}
		s.runners[auto.ID] = newRunner(auto, deps, &s.paused)
		s.order = append(s.order, auto.ID)
	}
	return s, nil
}

// Start launches the trigger goroutines. It is idempotent per lifecycle:
// a second Start before Stop is rejected.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler: already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true

	for _, id := range s.order {
		r := s.runners[id]
		switch r.auto.Trigger.Kind {
		case types.TriggerContinuous:
			s.wg.Add(1)
			go s.continuousLoop(ctx, r)
		case types.TriggerScheduled:
			s.wg.Add(1)
			go s.scheduledLoop(ctx, r)
		case types.TriggerEvent:
			s.attachEventTrigger(ctx, r)
		default:
			cancel()
			s.started = false
			return fmt.Errorf("scheduler: automation %s has unknown trigger kind %q", r.auto.ID, r.auto.Trigger.Kind)
		}
	}
	logger.Infof("scheduler: started %d automations", len(s.order))
	return nil
}

// continuousLoop fires as often as the pacing interval allows. Each fire
// waits for the previous cycle because TryFire holds the runner lock for
// the cycle's duration on this goroutine.
func (s *Scheduler) continuousLoop(ctx context.Context, r *Runner) {
	defer s.wg.Done()
	interval := r.interval(DefaultContinuousInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.TryFire(ctx, "continuous")
		}
	}
}

// scheduledLoop fires on wall-clock aligned interval boundaries, so a
// 60s automation runs at :00 of each minute regardless of start time.
func (s *Scheduler) scheduledLoop(ctx context.Context, r *Runner) {
	defer s.wg.Done()
	interval := r.interval(time.Minute)
	for {
		now := time.Now()
		next := now.Truncate(interval).Add(interval)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			r.TryFire(ctx, "scheduled")
		}
	}
}

// attachEventTrigger subscribes the runner to its topic. The fire happens
// on the subscription's delivery goroutine; a cycle already in flight
// suppresses the new fire rather than queueing it.
func (s *Scheduler) attachEventTrigger(ctx context.Context, r *Runner) {
	r.sub = s.deps.Bus.Subscribe(r.auto.Trigger.Topic, func(evt types.Event) error {
		if !r.matchesFilter(evt) {
			return nil
		}
		r.TryFire(ctx, "event:"+evt.Topic)
		return nil
	})
}

func (r *Runner) interval(fallback time.Duration) time.Duration {
	if r.auto.Trigger.IntervalSec > 0 {
		return time.Duration(r.auto.Trigger.IntervalSec * float64(time.Second))
	}
	return fallback
}

// Stop cancels the trigger goroutines and waits for in-flight cycles to
// finish. Event subscriptions are detached so later bus traffic cannot
// fire anything.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.cancel = nil
	runners := make([]*Runner, 0, len(s.runners))
	for _, id := range s.order {
		runners = append(runners, s.runners[id])
	}
	s.mu.Unlock()

	cancel()
	for _, r := range runners {
		if r.sub != nil {
			s.deps.Bus.Unsubscribe(r.sub)
			r.sub = nil
		}
	}
	s.wg.Wait()
	logger.Infof("scheduler: stopped")
}

// SetPaused freezes or resumes firing across all automations. In-flight
// cycles complete.
func (s *Scheduler) SetPaused(paused bool) {
	s.paused.Store(paused)
}

// SetEnabled flips one automation's enabled flag. Unknown ids are an
// error so config reloads surface typos.
func (s *Scheduler) SetEnabled(id string, enabled bool) error {
	s.mu.Lock()
	r, ok := s.runners[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("scheduler: unknown automation %q", id)
	}
	r.SetEnabled(enabled)
	logger.Infof("scheduler: automation %s enabled=%v", id, enabled)
	return nil
}

// Fire attempts one manual cycle of the given automation, subject to the
// same gates as any other trigger.
func (s *Scheduler) Fire(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	r, ok := s.runners[id]
	s.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("scheduler: unknown automation %q", id)
	}
	return r.TryFire(ctx, "manual"), nil
}

// Status snapshots every automation, in definition order.
func (s *Scheduler) Status() []AutomationStatus {
	s.mu.Lock()
	ids := make([]string, len(s.order))
	copy(ids, s.order)
	runners := make([]*Runner, 0, len(ids))
	for _, id := range ids {
		runners = append(runners, s.runners[id])
	}
	s.mu.Unlock()

	out := make([]AutomationStatus, 0, len(runners))
	for _, r := range runners {
		out = append(out, r.Status())
	}
	return out
}

func marshalPayload(payload map[string]any) ([]byte, error) {
	return json.Marshal(payload)
}
