package bot

import (
	"context"
	"testing"
	"time"

	"botkit/internal/decision"
	"botkit/internal/state"
	"botkit/internal/types"

	"github.com/stretchr/testify/assert"
)

func testBotConfig() types.BotConfig {
	return types.BotConfig{
		Name:       "test-bot",
		Account:    "paper",
		Safeguards: types.Safeguards{MaxOpenPositions: 3},
		Automations: []types.Automation{
			{
				ID:      "auto-1",
				Trigger: types.Trigger{Kind: types.TriggerContinuous, IntervalSec: 0.02},
				Decision: &types.DecisionNode{
					Recipe:   "signal",
					Operator: types.CmpGreaterThan,
					Value:    0,
					YesPath:  []types.Action{{Type: types.ActionSetTag, Params: map[string]any{"tag": "cycled"}}},
				},
				Enabled: true,
			},
		},
	}
}

func newRunningBot(t *testing.T) *Orchestrator {
	t.Helper()
	o := New(testBotConfig(), Options{Resolver: decision.StaticResolver{Value: 1}})
	if err := o.Init(t.TempDir()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { o.Stop(time.Second) })
	return o
}

func TestLifecyclePhases(t *testing.T) {
	o := New(testBotConfig(), Options{Resolver: decision.StaticResolver{Value: 1}})
	assert.Equal(t, string(PhaseCreated), o.Status().Phase)

	// Start before Init is rejected.
	assert.Error(t, o.Start(context.Background()))

	assert.NoError(t, o.Init(t.TempDir()))
	assert.Equal(t, string(PhaseInitialized), o.Status().Phase)

	// Init twice is rejected.
	assert.Error(t, o.Init(t.TempDir()))

	assert.NoError(t, o.Start(context.Background()))
	assert.Equal(t, string(PhaseRunning), o.Status().Phase)

	assert.NoError(t, o.Pause())
	assert.Equal(t, string(PhasePaused), o.Status().Phase)
	assert.Error(t, o.Pause())

	assert.NoError(t, o.Resume())
	assert.Equal(t, string(PhaseRunning), o.Status().Phase)

	assert.NoError(t, o.Stop(time.Second))
	assert.Equal(t, string(PhaseStopped), o.Status().Phase)
	assert.Error(t, o.Stop(time.Second))
	assert.Error(t, o.Start(context.Background()))
}

func TestRunningBotExecutesAutomations(t *testing.T) {
	o := newRunningBot(t)

	st := o.State()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := st.Get(state.TierHot, "tag:cycled"); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("automation never completed a cycle")
}

func TestSafeguardsSeededIntoHotState(t *testing.T) {
	o := newRunningBot(t)
	v, err := o.State().Get(state.TierHot, "max_open_positions")
	assert.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestAuditRecordsDecisionEvents(t *testing.T) {
	o := newRunningBot(t)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		count := 0
		for range o.State().Query(state.TierCold, func(key string, _ any) bool {
			return len(key) > 6 && key[:6] == "audit-"
		}) {
			count++
		}
		if count > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("no audit records reached the cold tier")
}

func TestPauseStopsCycles(t *testing.T) {
	o := newRunningBot(t)
	assert.NoError(t, o.Pause())

	// Drain the cycle that may have been in flight, then confirm silence.
	time.Sleep(100 * time.Millisecond)
	before := o.Status()
	var fires uint64
	if len(before.Automations) > 0 {
		fires = before.Automations[0].Fires
	}
	time.Sleep(150 * time.Millisecond)
	after := o.Status()
	if assert.Len(t, after.Automations, 1) {
		assert.Equal(t, fires, after.Automations[0].Fires)
	}
}

func TestSetAutomationEnabled(t *testing.T) {
	o := newRunningBot(t)
	assert.NoError(t, o.SetAutomationEnabled("auto-1", false))
	assert.Error(t, o.SetAutomationEnabled("ghost", true))

	st := o.Status()
	if assert.Len(t, st.Automations, 1) {
		assert.False(t, st.Automations[0].Enabled)
	}
}

func TestApplyConfigFlipsEnabledFlags(t *testing.T) {
	o := newRunningBot(t)

	reloaded := testBotConfig()
	reloaded.Automations[0].Enabled = false
	assert.NoError(t, o.ApplyConfig(reloaded))

	st := o.Status()
	if assert.Len(t, st.Automations, 1) {
		assert.False(t, st.Automations[0].Enabled)
	}
}

func TestLifecycleEventsOnBus(t *testing.T) {
	o := New(testBotConfig(), Options{Resolver: decision.StaticResolver{Value: 1}})
	assert.NoError(t, o.Init(t.TempDir()))

	started := make(chan struct{}, 1)
	o.Bus().Subscribe(types.TopicBotStarted, func(evt types.Event) error {
		assert.Equal(t, "test-bot", evt.Payload["bot"])
		started <- struct{}{}
		return nil
	})

	assert.NoError(t, o.Start(context.Background()))
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("bot.started was never published")
	}
	assert.NoError(t, o.Stop(time.Second))
}

func TestStatusIsPureRead(t *testing.T) {
	o := New(testBotConfig(), Options{Resolver: decision.StaticResolver{Value: 1}})
	for i := 0; i < 3; i++ {
		st := o.Status()
		assert.Equal(t, string(PhaseCreated), st.Phase)
		assert.Equal(t, "test-bot", st.Name)
	}
}

func TestManualFire(t *testing.T) {
	o := New(testBotConfig(), Options{Resolver: decision.StaticResolver{Value: 1}})
	// Not running yet.
	_, err := o.FireAutomation(context.Background(), "auto-1")
	assert.Error(t, err)

	assert.NoError(t, o.Init(t.TempDir()))
	assert.NoError(t, o.Start(context.Background()))
	defer o.Stop(time.Second)

	_, err = o.FireAutomation(context.Background(), "ghost")
	assert.Error(t, err)
}
