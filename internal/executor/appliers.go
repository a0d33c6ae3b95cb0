package executor

import (
	"context"
	"fmt"
	"time"

	"botkit/internal/logger"
	"botkit/internal/state"
	"botkit/internal/types"

	"github.com/google/uuid"
)

// TextNotifier is the notification collaborator. Concrete transports
// (Telegram, email) live outside this module.
type TextNotifier interface {
	SendText(text string) error
}

// DomainApplier is the position collaborator: it carries out open/close
// effects against whatever broker or simulator backs the bot.
type DomainApplier interface {
	Apply(ctx context.Context, action types.Action) (map[string]any, error)
}

// StubDomainApplier acknowledges every position action without side
// effects. It stands in for real order routing.
type StubDomainApplier struct{}

func (StubDomainApplier) Apply(_ context.Context, action types.Action) (map[string]any, error) {
	return map[string]any{"acknowledged": true, "action": string(action.Type)}, nil
}

// RegisterBuiltins wires the action types the engine handles itself:
// tagging hot state, logging, notifying, waiting.
func RegisterBuiltins(reg *Registry, st *state.Manager, notifier TextNotifier) {
	reg.Register(types.ActionSetTag, ApplierFunc(func(_ context.Context, automationID string, action types.Action) types.ActionResult {
		tag := action.StringParam("tag")
		if tag == "" {
			return failed("set_tag requires a tag parameter")
		}
		value := any(true)
		if v, ok := action.Params["value"]; ok {
			value = v
		}
		if err := st.Set(state.TierHot, tagKey(tag), value); err != nil {
			return failed(err.Error())
		}
		return ok(map[string]any{"tag": tag})
	}))

	reg.Register(types.ActionClearTag, ApplierFunc(func(_ context.Context, automationID string, action types.Action) types.ActionResult {
		tag := action.StringParam("tag")
		if tag == "" {
			return failed("clear_tag requires a tag parameter")
		}
		if err := st.Delete(state.TierHot, tagKey(tag)); err != nil {
			return failed(err.Error())
		}
		return ok(map[string]any{"tag": tag})
	}))

	reg.Register(types.ActionLogMessage, ApplierFunc(func(_ context.Context, automationID string, action types.Action) types.ActionResult {
		msg := action.StringParam("message")
		logger.Infof("automation %s: %s", automationID, msg)
		return ok(nil)
	}))

	reg.Register(types.ActionNotify, ApplierFunc(func(_ context.Context, automationID string, action types.Action) types.ActionResult {
		if notifier == nil {
			return failed("no notifier configured")
		}
		msg := action.StringParam("message")
		if msg == "" {
			return failed("notify requires a message parameter")
		}
		if err := notifier.SendText(msg); err != nil {
			return failed(fmt.Sprintf("notify failed: %v", err))
		}
		return ok(nil)
	}))

	reg.Register(types.ActionWait, ApplierFunc(func(ctx context.Context, automationID string, action types.Action) types.ActionResult {
		secs, has := action.FloatParam("seconds")
		if !has || secs <= 0 {
			return failed("wait requires a positive seconds parameter")
		}
		timer := time.NewTimer(time.Duration(secs * float64(time.Second)))
		defer timer.Stop()
		select {
		case <-timer.C:
			return ok(nil)
		case <-ctx.Done():
			return failed("wait cancelled")
		}
	}))
}

// RegisterDomainActions wires open/close position through the domain
// collaborator and appends the outcome to the cold tier under a fresh
// trade key, so the audit record of a completed trade can never be
// overwritten.
func RegisterDomainActions(reg *Registry, st *state.Manager, domain DomainApplier) {
	apply := func(ctx context.Context, automationID string, action types.Action) types.ActionResult {
		if domain == nil {
			return failed("no domain applier configured")
		}
		payload, err := domain.Apply(ctx, action)
		if err != nil {
			return failed(fmt.Sprintf("%s failed: %v", action.Type, err))
		}
		record := map[string]any{
			"automation_id": automationID,
			"action":        string(action.Type),
			"params":        action.Params,
			"result":        payload,
			"recorded_at":   time.Now().Format(time.RFC3339Nano),
		}
		key := fmt.Sprintf("trade-%s", uuid.NewString())
		if err := st.Set(state.TierCold, key, record); err != nil {
			logger.Warnf("executor: cold trade record %s failed: %v", key, err)
		}
		return ok(payload)
	}
	reg.Register(types.ActionOpenPosition, ApplierFunc(apply))
	reg.Register(types.ActionClosePosition, ApplierFunc(apply))
}

func tagKey(tag string) string { return "tag:" + tag }

func ok(payload map[string]any) types.ActionResult {
	return types.ActionResult{Success: true, Payload: payload}
}

func failed(msg string) types.ActionResult {
	return types.ActionResult{Success: false, Message: msg}
}
