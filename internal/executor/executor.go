package executor

import (
	"context"
	"fmt"
	"time"

	"botkit/internal/bus"
	"botkit/internal/logger"
	"botkit/internal/state"
	"botkit/internal/types"
)

// Executor runs an automation's chosen action path. Actions execute
// strictly in list order, one at a time; a failing action is recorded and
// published but never stops the rest of the list (a failed notification
// must not block a subsequent close_position).
type Executor struct {
	state    *state.Manager
	eventBus *bus.Bus
	registry *Registry
}

// New wires the executor with its collaborators. A nil domain applier or
// notifier degrades those action types to failed results, not panics.
func New(st *state.Manager, b *bus.Bus, domain DomainApplier, notifier TextNotifier) *Executor {
	reg := NewRegistry()
	RegisterBuiltins(reg, st, notifier)
	RegisterDomainActions(reg, st, domain)
	return &Executor{state: st, eventBus: b, registry: reg}
}

// Registry exposes the applier registry so callers can add custom action
// types before the first cycle runs.
func (e *Executor) Registry() *Registry { return e.registry }

// Execute applies the list in order and returns one result per action.
// After the list completes, automation.completed carries the full result
// sequence.
func (e *Executor) Execute(ctx context.Context, automationID string, actions []types.Action) []types.ActionResult {
	results := make([]types.ActionResult, 0, len(actions))
	for i, action := range actions {
		res := e.applyOne(ctx, automationID, action)
		results = append(results, res)
		if !res.Success {
			e.publishFailed(automationID, i, action, res)
		}
	}
	e.publishCompleted(automationID, results)
	return results
}

func (e *Executor) applyOne(ctx context.Context, automationID string, action types.Action) types.ActionResult {
	start := time.Now()
	applier, ok := e.registry.Get(action.Type)
	if !ok {
		return types.ActionResult{
			Action:   action.Type,
			Success:  false,
			Message:  fmt.Sprintf("no applier registered for action type %q", action.Type),
			Duration: time.Since(start),
		}
	}
	res := applier.Apply(ctx, automationID, action)
	res.Action = action.Type
	res.Duration = time.Since(start)
	return res
}

func (e *Executor) publishFailed(automationID string, idx int, action types.Action, res types.ActionResult) {
	logger.Warnf("executor: %s action[%d] %s failed: %s", automationID, idx, action.Type, res.Message)
	e.publish(types.Event{
		Topic:  types.TopicActionFailed,
		Source: automationID,
		Payload: map[string]any{
			"automation_id": automationID,
			"index":         idx,
			"action":        string(action.Type),
			"message":       res.Message,
		},
	})
}

func (e *Executor) publishCompleted(automationID string, results []types.ActionResult) {
	encoded := make([]map[string]any, 0, len(results))
	failures := 0
	for _, r := range results {
		if !r.Success {
			failures++
		}
		encoded = append(encoded, map[string]any{
			"action":  string(r.Action),
			"success": r.Success,
			"message": r.Message,
			"payload": r.Payload,
		})
	}
	e.publish(types.Event{
		Topic:  types.TopicAutomationCompleted,
		Source: automationID,
		Payload: map[string]any{
			"automation_id": automationID,
			"actions":       len(results),
			"failures":      failures,
			"results":       encoded,
		},
	})
}

func (e *Executor) publish(evt types.Event) {
	if e.eventBus == nil {
		return
	}
	if err := e.eventBus.Publish(evt); err != nil && err != bus.ErrClosed {
		logger.Warnf("executor: publish %s failed: %v", evt.Topic, err)
	}
}
