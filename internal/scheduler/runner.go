package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"botkit/internal/bus"
	"botkit/internal/decision"
	"botkit/internal/executor"
	"botkit/internal/logger"
	"botkit/internal/state"
	"botkit/internal/types"

	"github.com/tidwall/gjson"
)

// Result of an automation's most recent cycle.
type Result string

const (
	ResultNone  Result = ""
	ResultYes   Result = "yes"
	ResultNo    Result = "no"
	ResultError Result = "error"
)

// Runner drives one automation. The running flag is the per-automation
// lock: a fire that finds it set is suppressed, never queued, so at most
// one cycle is in flight per automation no matter how triggers race.
type Runner struct {
	auto types.Automation
	deps Deps

	enabled    atomic.Bool
	running    atomic.Bool
	paused     *atomic.Bool
	fires      atomic.Uint64
	suppressed atomic.Uint64

	mu         sync.Mutex
	lastRun    time.Time
	lastResult Result
	lastError  string

	sub *bus.Subscription
}

// Deps are the collaborators a cycle needs, owned by the orchestrator.
type Deps struct {
	State     *state.Manager
	Bus       *bus.Bus
	Evaluator *decision.Evaluator
	Executor  *executor.Executor
	Resolver  decision.Resolver
}

func newRunner(auto types.Automation, deps Deps, paused *atomic.Bool) *Runner {
	r := &Runner{auto: auto, deps: deps, paused: paused}
	r.enabled.Store(auto.Enabled)
	return r
}

// ID returns the automation id.
func (r *Runner) ID() string { return r.auto.ID }

// SetEnabled flips the enabled flag. An in-flight cycle always runs to
// completion; only subsequent fires are suppressed.
func (r *Runner) SetEnabled(enabled bool) {
	r.enabled.Store(enabled)
}

// TryFire attempts one cycle. It returns false when the automation is
// disabled, gated, paused, or already running.
func (r *Runner) TryFire(ctx context.Context, trigger string) bool {
	if !r.enabled.Load() || (r.paused != nil && r.paused.Load()) {
		return false
	}
	if !r.kindGateOpen() {
		return false
	}
	if !r.running.CompareAndSwap(false, true) {
		r.suppressed.Add(1)
		return false
	}
	defer r.running.Store(false)
	r.fires.Add(1)
	r.runCycle(ctx, trigger)
	return true
}

// runCycle is one full evaluate-then-act pass. An evaluation error aborts
// the cycle with no branch taken; the automation stays enabled for its
// next scheduled attempt.
func (r *Runner) runCycle(ctx context.Context, trigger string) {
	r.publish(types.Event{
		Topic:  types.TopicAutomationTriggered,
		Source: r.auto.ID,
		Payload: map[string]any{
			"automation_id": r.auto.ID,
			"trigger":       trigger,
		},
	})

	ec := &decision.Context{
		AutomationID: r.auto.ID,
		State:        r.deps.State,
		Bus:          r.deps.Bus,
		Resolver:     r.deps.Resolver,
	}
	yes, err := r.deps.Evaluator.Evaluate(ctx, r.auto.Decision, ec)
	if err != nil {
		r.recordError(err)
		return
	}

	path := r.auto.Decision.YesPath
	branch := ResultYes
	if !yes {
		path = r.auto.Decision.NoPath
		branch = ResultNo
	}
	if len(path) > 0 {
		r.deps.Executor.Execute(ctx, r.auto.ID, path)
	} else {
		// Nothing to do on this branch; still report the empty completion
		// so observers see the cycle finished.
		r.deps.Executor.Execute(ctx, r.auto.ID, nil)
	}

	r.mu.Lock()
	r.lastRun = time.Now()
	r.lastResult = branch
	r.lastError = ""
	r.mu.Unlock()
}

func (r *Runner) recordError(err error) {
	logger.Warnf("scheduler: automation %s errored: %v", r.auto.ID, err)
	r.mu.Lock()
	r.lastRun = time.Now()
	r.lastResult = ResultError
	r.lastError = err.Error()
	r.mu.Unlock()
	r.publish(types.Event{
		Topic:  types.TopicAutomationError,
		Source: r.auto.ID,
		Payload: map[string]any{
			"automation_id": r.auto.ID,
			"error":         err.Error(),
		},
	})
}

// kindGateOpen applies the scanner/monitor eligibility gate against the
// hot-tier open-position count.
func (r *Runner) kindGateOpen() bool {
	switch r.auto.Kind {
	case types.AutomationScanner:
		limit := r.openPositionLimit()
		return limit <= 0 || r.openPositions() < limit
	case types.AutomationMonitor:
		return r.openPositions() > 0
	default:
		return true
	}
}

func (r *Runner) openPositions() int {
	v, err := r.deps.State.Get(state.TierHot, "open_positions")
	if err != nil {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

func (r *Runner) openPositionLimit() int {
	v, err := r.deps.State.Get(state.TierHot, "max_open_positions")
	if err != nil {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return 0
}

// matchesFilter evaluates the trigger's gjson filter against the event
// payload. No filter matches everything; a filter matches when the path
// exists and is not boolean false.
func (r *Runner) matchesFilter(evt types.Event) bool {
	filter := r.auto.Trigger.Filter
	if filter == "" {
		return true
	}
	raw, err := marshalPayload(evt.Payload)
	if err != nil {
		return false
	}
	res := gjson.GetBytes(raw, filter)
	if !res.Exists() {
		return false
	}
	if res.Type == gjson.False {
		return false
	}
	return true
}

func (r *Runner) publish(evt types.Event) {
	if r.deps.Bus == nil {
		return
	}
	if err := r.deps.Bus.Publish(evt); err != nil && err != bus.ErrClosed {
		logger.Warnf("scheduler: publish %s failed: %v", evt.Topic, err)
	}
}

// Status is a point-in-time snapshot of the runner.
func (r *Runner) Status() AutomationStatus {
	r.mu.Lock()
	lastRun, lastResult, lastError := r.lastRun, r.lastResult, r.lastError
	r.mu.Unlock()
	stateName := "idle"
	if r.running.Load() {
		stateName = "running"
	}
	return AutomationStatus{
		ID:         r.auto.ID,
		Name:       r.auto.Name,
		Trigger:    string(r.auto.Trigger.Kind),
		Enabled:    r.enabled.Load(),
		State:      stateName,
		LastRun:    lastRun,
		LastResult: string(lastResult),
		LastError:  lastError,
		Fires:      r.fires.Load(),
		Suppressed: r.suppressed.Load(),
	}
}

// AutomationStatus is the per-automation slice of BotStatus.
type AutomationStatus struct {
	ID         string    `json:"id"`
	Name       string    `json:"name,omitempty"`
	Trigger    string    `json:"trigger"`
	Enabled    bool      `json:"enabled"`
	State      string    `json:"state"`
	LastRun    time.Time `json:"last_run,omitzero"`
	LastResult string    `json:"last_result,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	Fires      uint64    `json:"fires"`
	Suppressed uint64    `json:"suppressed"`
}
