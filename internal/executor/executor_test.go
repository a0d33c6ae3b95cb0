package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"botkit/internal/bus"
	"botkit/internal/state"
	"botkit/internal/types"

	"github.com/stretchr/testify/assert"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
	fail     bool
}

func (n *recordingNotifier) SendText(text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("transport down")
	}
	n.messages = append(n.messages, text)
	return nil
}

func newTestExecutor(t *testing.T, notifier TextNotifier) (*Executor, *state.Manager, *bus.Bus) {
	t.Helper()
	st, err := state.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open state: %v", err)
	}
	b := bus.New()
	t.Cleanup(func() {
		b.Close(time.Second)
		st.Close()
	})
	return New(st, b, StubDomainApplier{}, notifier), st, b
}

func TestExecuteRunsActionsInOrder(t *testing.T) {
	e, _, _ := newTestExecutor(t, nil)

	var mu sync.Mutex
	var order []string
	e.Registry().Register("step_a", ApplierFunc(func(context.Context, string, types.Action) types.ActionResult {
		mu.Lock()
		order = append(order, "a")
		mu.Unlock()
		return types.ActionResult{Success: true}
	}))
	e.Registry().Register("step_b", ApplierFunc(func(context.Context, string, types.Action) types.ActionResult {
		mu.Lock()
		order = append(order, "b")
		mu.Unlock()
		return types.ActionResult{Success: true}
	}))

	results := e.Execute(context.Background(), "auto-1", []types.Action{
		{Type: "step_a"}, {Type: "step_b"}, {Type: "step_a"},
	})
	assert.Equal(t, []string{"a", "b", "a"}, order)
	assert.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.Success)
	}
}

func TestExecuteContinuesPastFailures(t *testing.T) {
	notifier := &recordingNotifier{fail: true}
	e, st, _ := newTestExecutor(t, notifier)

	results := e.Execute(context.Background(), "auto-1", []types.Action{
		{Type: types.ActionNotify, Params: map[string]any{"message": "hello"}},
		{Type: types.ActionSetTag, Params: map[string]any{"tag": "ran-anyway"}},
	})
	assert.Len(t, results, 2)
	assert.False(t, results[0].Success)
	assert.True(t, results[1].Success)

	v, err := st.Get(state.TierHot, "tag:ran-anyway")
	assert.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestExecuteUnknownActionType(t *testing.T) {
	e, _, _ := newTestExecutor(t, nil)
	results := e.Execute(context.Background(), "auto-1", []types.Action{{Type: "teleport"}})
	assert.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Message, "teleport")
}

func TestExecutePublishesFailureAndCompletion(t *testing.T) {
	e, _, b := newTestExecutor(t, &recordingNotifier{fail: true})

	var mu sync.Mutex
	var failed []types.Event
	var completed []types.Event
	b.Subscribe(types.TopicActionFailed, func(evt types.Event) error {
		mu.Lock()
		failed = append(failed, evt)
		mu.Unlock()
		return nil
	})
	b.Subscribe(types.TopicAutomationCompleted, func(evt types.Event) error {
		mu.Lock()
		completed = append(completed, evt)
		mu.Unlock()
		return nil
	})

	e.Execute(context.Background(), "auto-1", []types.Action{
		{Type: types.ActionNotify, Params: map[string]any{"message": "x"}},
		{Type: types.ActionLogMessage, Params: map[string]any{"message": "y"}},
	})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := len(failed) == 1 && len(completed) == 1
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	if assert.Len(t, failed, 1) {
		assert.Equal(t, "auto-1", failed[0].Payload["automation_id"])
		assert.Equal(t, 0, failed[0].Payload["index"])
	}
	if assert.Len(t, completed, 1) {
		assert.Equal(t, 2, completed[0].Payload["actions"])
		assert.Equal(t, 1, completed[0].Payload["failures"])
	}
}

func TestTagActions(t *testing.T) {
	e, st, _ := newTestExecutor(t, nil)

	results := e.Execute(context.Background(), "auto-1", []types.Action{
		{Type: types.ActionSetTag, Params: map[string]any{"tag": "entered", "value": "SPY"}},
	})
	assert.True(t, results[0].Success)
	v, err := st.Get(state.TierHot, "tag:entered")
	assert.NoError(t, err)
	assert.Equal(t, "SPY", v)

	results = e.Execute(context.Background(), "auto-1", []types.Action{
		{Type: types.ActionClearTag, Params: map[string]any{"tag": "entered"}},
	})
	assert.True(t, results[0].Success)
	_, err = st.Get(state.TierHot, "tag:entered")
	assert.ErrorIs(t, err, state.ErrNotFound)

	// Missing parameter is a failed result, not a panic.
	results = e.Execute(context.Background(), "auto-1", []types.Action{{Type: types.ActionSetTag}})
	assert.False(t, results[0].Success)
}

func TestNotifyAction(t *testing.T) {
	notifier := &recordingNotifier{}
	e, _, _ := newTestExecutor(t, notifier)

	results := e.Execute(context.Background(), "auto-1", []types.Action{
		{Type: types.ActionNotify, Params: map[string]any{"message": "position opened"}},
	})
	assert.True(t, results[0].Success)
	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	assert.Equal(t, []string{"position opened"}, notifier.messages)
}

func TestWaitActionHonorsContext(t *testing.T) {
	e, _, _ := newTestExecutor(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	results := e.Execute(ctx, "auto-1", []types.Action{
		{Type: types.ActionWait, Params: map[string]any{"seconds": 10.0}},
	})
	assert.False(t, results[0].Success)
	assert.Less(t, time.Since(start), 2*time.Second)

	results = e.Execute(context.Background(), "auto-1", []types.Action{
		{Type: types.ActionWait, Params: map[string]any{"seconds": 0.01}},
	})
	assert.True(t, results[0].Success)
}

func TestPositionActionsRecordColdTrades(t *testing.T) {
	e, st, _ := newTestExecutor(t, nil)

	results := e.Execute(context.Background(), "auto-1", []types.Action{
		{Type: types.ActionOpenPosition, Params: map[string]any{"symbol": "SPY", "side": "long"}},
		{Type: types.ActionClosePosition, Params: map[string]any{"symbol": "SPY"}},
	})
	assert.True(t, results[0].Success)
	assert.True(t, results[1].Success)

	count := 0
	for _, v := range st.Query(state.TierCold, func(key string, _ any) bool {
		return len(key) > 6 && key[:6] == "trade-"
	}) {
		record := v.(map[string]any)
		assert.Equal(t, "auto-1", record["automation_id"])
		count++
	}
	assert.Equal(t, 2, count)
}
