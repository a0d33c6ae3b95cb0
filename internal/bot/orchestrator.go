package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"botkit/internal/bus"
	"botkit/internal/decision"
	"botkit/internal/executor"
	"botkit/internal/logger"
	"botkit/internal/scheduler"
	"botkit/internal/state"
	"botkit/internal/types"

	"github.com/google/uuid"
)

// Phase is the orchestrator lifecycle state.
type Phase string

const (
	PhaseCreated     Phase = "created"
	PhaseInitialized Phase = "initialized"
	PhaseRunning     Phase = "running"
	PhasePaused      Phase = "paused"
	PhaseStopped     Phase = "stopped"
	PhaseErrored     Phase = "errored"
)

// Options are the pluggable collaborators. Zero values get safe
// defaults: log-backed notifications, stub order routing, hot-state
// recipe resolution.
type Options struct {
	Notifier executor.TextNotifier
	Domain   executor.DomainApplier
	Resolver decision.Resolver

	// BusQueueSize overrides the per-subscriber queue bound when > 0.
	BusQueueSize int
}

// Orchestrator owns one bot: its state manager, event bus, executor and
// scheduler, plus the lifecycle that ties them together. All components
// share the one bus and the one state manager.
type Orchestrator struct {
	cfg  types.BotConfig
	opts Options

	mu        sync.Mutex
	phase     Phase
	startedAt time.Time
	lastErr   string

	stateMgr *state.Manager
	eventBus *bus.Bus
	sched    *scheduler.Scheduler
	auditSub *bus.Subscription
}

// New creates an orchestrator in the created phase. Nothing is allocated
// until Init.
func New(cfg types.BotConfig, opts Options) *Orchestrator {
	return &Orchestrator{cfg: cfg, opts: opts, phase: PhaseCreated}
}

// Init opens the durable stores under dataDir and wires every component.
// After Init the bot holds resources and must eventually be stopped.
func (o *Orchestrator) Init(dataDir string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase != PhaseCreated {
		return fmt.Errorf("bot %s: init from phase %s", o.cfg.Name, o.phase)
	}

	stateMgr, err := state.Open(dataDir)
	if err != nil {
		o.phase = PhaseErrored
		o.lastErr = err.Error()
		return fmt.Errorf("bot %s: %w", o.cfg.Name, err)
	}

	var busOpts []bus.Option
	if o.opts.BusQueueSize > 0 {
		busOpts = append(busOpts, bus.WithQueueSize(o.opts.BusQueueSize))
	}
	eventBus := bus.New(busOpts...)

	resolver := o.opts.Resolver
	if resolver == nil {
		resolver = decision.StateResolver{}
	}
	domain := o.opts.Domain
	if domain == nil {
		domain = executor.StubDomainApplier{}
	}

	deps := scheduler.Deps{
		State:     stateMgr,
		Bus:       eventBus,
		Evaluator: decision.NewEvaluator(),
		Executor:  executor.New(stateMgr, eventBus, domain, o.opts.Notifier),
		Resolver:  resolver,
	}
	sched, err := scheduler.New(o.cfg.Automations, deps)
	if err != nil {
		stateMgr.Close()
		o.phase = PhaseErrored
		o.lastErr = err.Error()
		return fmt.Errorf("bot %s: %w", o.cfg.Name, err)
	}

	o.seedSafeguards(stateMgr)
	o.auditSub = eventBus.Subscribe(types.TopicDecisionEvaluated, auditRecorder(stateMgr),
		bus.WithName("audit"))

	o.stateMgr = stateMgr
	o.eventBus = eventBus
	o.sched = sched
	o.phase = PhaseInitialized
	logger.Infof("bot %s: initialized with %d automations", o.cfg.Name, len(o.cfg.Automations))
	return nil
}

// seedSafeguards publishes the definition's limits into the hot tier so
// the scanner gate and decision recipes can read them.
func (o *Orchestrator) seedSafeguards(st *state.Manager) {
	sg := o.cfg.Safeguards
	if sg.MaxOpenPositions > 0 {
		st.Set(state.TierHot, "max_open_positions", sg.MaxOpenPositions)
	}
	if sg.DailyPositionLimit > 0 {
		st.Set(state.TierHot, "daily_position_limit", sg.DailyPositionLimit)
	}
	if sg.AllocatedCapital > 0 {
		st.Set(state.TierHot, "allocated_capital", sg.AllocatedCapital)
	}
}

// auditRecorder appends every decision event to the cold tier under a
// fresh key, building the immutable evaluation history.
func auditRecorder(st *state.Manager) bus.Handler {
	return func(evt types.Event) error {
		record := map[string]any{
			"event_id": evt.ID,
			"sequence": evt.Sequence,
			"source":   evt.Source,
			"payload":  evt.Payload,
			"at":       evt.Timestamp.Format(time.RFC3339Nano),
		}
		return st.Set(state.TierCold, "audit-"+uuid.NewString(), record)
	}
}

// Start launches the scheduler and announces bot.started.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase != PhaseInitialized {
		return fmt.Errorf("bot %s: start from phase %s", o.cfg.Name, o.phase)
	}
	if err := o.sched.Start(ctx); err != nil {
		o.phase = PhaseErrored
		o.lastErr = err.Error()
		return err
	}
	o.phase = PhaseRunning
	o.startedAt = time.Now()
	o.eventBus.Publish(types.Event{
		Topic:   types.TopicBotStarted,
		Source:  o.cfg.Name,
		Payload: map[string]any{"bot": o.cfg.Name, "automations": len(o.cfg.Automations)},
	})
	logger.Infof("bot %s: running", o.cfg.Name)
	return nil
}

// Pause freezes all automation firing. In-flight cycles complete.
func (o *Orchestrator) Pause() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase != PhaseRunning {
		return fmt.Errorf("bot %s: pause from phase %s", o.cfg.Name, o.phase)
	}
	o.sched.SetPaused(true)
	o.phase = PhasePaused
	logger.Infof("bot %s: paused", o.cfg.Name)
	return nil
}

// Resume reverses Pause.
func (o *Orchestrator) Resume() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.phase != PhasePaused {
		return fmt.Errorf("bot %s: resume from phase %s", o.cfg.Name, o.phase)
	}
	o.sched.SetPaused(false)
	o.phase = PhaseRunning
	logger.Infof("bot %s: resumed", o.cfg.Name)
	return nil
}

// Stop shuts the bot down: the scheduler stops firing and waits for
// in-flight cycles, bot.stopped goes out, the bus drains within grace,
// and the stores close. Stop is terminal; a stopped bot is not restarted.
func (o *Orchestrator) Stop(grace time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.phase {
	case PhaseRunning, PhasePaused, PhaseInitialized, PhaseErrored:
	default:
		return fmt.Errorf("bot %s: stop from phase %s", o.cfg.Name, o.phase)
	}
	if o.sched != nil {
		o.sched.Stop()
	}
	if o.eventBus != nil {
		o.eventBus.Publish(types.Event{
			Topic:   types.TopicBotStopped,
			Source:  o.cfg.Name,
			Payload: map[string]any{"bot": o.cfg.Name},
		})
		o.eventBus.Close(grace)
	}
	var err error
	if o.stateMgr != nil {
		err = o.stateMgr.Close()
	}
	o.phase = PhaseStopped
	logger.Infof("bot %s: stopped", o.cfg.Name)
	return err
}

// SetAutomationEnabled flips one automation's enabled flag at runtime.
func (o *Orchestrator) SetAutomationEnabled(id string, enabled bool) error {
	o.mu.Lock()
	sched := o.sched
	o.mu.Unlock()
	if sched == nil {
		return fmt.Errorf("bot %s: not initialized", o.cfg.Name)
	}
	return sched.SetEnabled(id, enabled)
}

// FireAutomation runs one manual cycle, subject to the usual gates.
func (o *Orchestrator) FireAutomation(ctx context.Context, id string) (bool, error) {
	o.mu.Lock()
	sched := o.sched
	phase := o.phase
	o.mu.Unlock()
	if sched == nil || (phase != PhaseRunning && phase != PhasePaused) {
		return false, fmt.Errorf("bot %s: not running", o.cfg.Name)
	}
	return sched.Fire(ctx, id)
}

// ApplyConfig applies a reloaded definition in place. Only enabled flags
// change at runtime; structural edits (new automations, new triggers)
// need a restart. The reload is announced on config.reloaded.
func (o *Orchestrator) ApplyConfig(cfg types.BotConfig) error {
	o.mu.Lock()
	sched := o.sched
	eventBus := o.eventBus
	o.mu.Unlock()
	if sched == nil {
		return fmt.Errorf("bot %s: not initialized", o.cfg.Name)
	}
	applied := 0
	for _, auto := range cfg.Automations {
		if err := sched.SetEnabled(auto.ID, auto.Enabled); err != nil {
			logger.Warnf("bot %s: reload skipped %s: %v", o.cfg.Name, auto.ID, err)
			continue
		}
		applied++
	}
	if eventBus != nil {
		eventBus.Publish(types.Event{
			Topic:   types.TopicConfigReloaded,
			Source:  o.cfg.Name,
			Payload: map[string]any{"bot": o.cfg.Name, "applied": applied},
		})
	}
	logger.Infof("bot %s: config reload applied %d automation flags", o.cfg.Name, applied)
	return nil
}

// State exposes the shared state manager for transports and feeders.
func (o *Orchestrator) State() *state.Manager {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stateMgr
}

// Bus exposes the shared event bus.
func (o *Orchestrator) Bus() *bus.Bus {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.eventBus
}

// Status is a pure read: it never mutates lifecycle state and is safe to
// call from any phase.
func (o *Orchestrator) Status() BotStatus {
	o.mu.Lock()
	phase := o.phase
	startedAt := o.startedAt
	lastErr := o.lastErr
	sched := o.sched
	eventBus := o.eventBus
	o.mu.Unlock()

	st := BotStatus{
		Name:    o.cfg.Name,
		Account: o.cfg.Account,
		Phase:   string(phase),
		Error:   lastErr,
	}
	if !startedAt.IsZero() && (phase == PhaseRunning || phase == PhasePaused) {
		st.StartedAt = startedAt
		st.UptimeSec = time.Since(startedAt).Seconds()
	}
	if sched != nil {
		st.Automations = sched.Status()
	}
	if eventBus != nil {
		bs := eventBus.Status()
		st.Bus = &bs
	}
	return st
}

// BotStatus is the full observable snapshot of one bot.
type BotStatus struct {
	Name        string                       `json:"name"`
	Account     string                       `json:"account,omitempty"`
	Phase       string                       `json:"phase"`
	Error       string                       `json:"error,omitempty"`
	StartedAt   time.Time                    `json:"started_at,omitzero"`
	UptimeSec   float64                      `json:"uptime_sec,omitempty"`
	Automations []scheduler.AutomationStatus `json:"automations,omitempty"`
	Bus         *bus.Status                  `json:"bus,omitempty"`
}
