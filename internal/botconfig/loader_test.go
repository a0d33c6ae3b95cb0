package botconfig

import (
	"os"
	"path/filepath"
	"testing"

	"botkit/internal/types"

	"github.com/stretchr/testify/assert"
)

func writeDefinition(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write definition: %v", err)
	}
	return path
}

const validJSON = `{
  "name": "test-bot",
  "account": "paper",
  "safeguards": {"max_open_positions": 2},
  "automations": [
    {
      "id": "scan-1",
      "kind": "scanner",
      "enabled": true,
      "trigger": {"kind": "scheduled", "interval_sec": 60},
      "decision": {
        "combinator": "and",
        "children": [
          {"recipe": "quote:SPY", "field": "last", "operator": "greater_than", "value": 450},
          {"recipe": "quote:SPY", "field": "volume", "operator": "between", "value": 1000, "value2": 5000}
        ],
        "yes_path": [{"type": "open_position", "params": {"symbol": "SPY"}}],
        "no_path": [{"type": "log_message", "params": {"message": "skip"}}]
      }
    }
  ]
}`

func TestLoadValidJSON(t *testing.T) {
	path := writeDefinition(t, "bot.json", validJSON)
	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, "test-bot", cfg.Name)
	assert.Equal(t, 2, cfg.Safeguards.MaxOpenPositions)
	if assert.Len(t, cfg.Automations, 1) {
		auto := cfg.Automations[0]
		assert.Equal(t, "scan-1", auto.ID)
		assert.Equal(t, types.AutomationScanner, auto.Kind)
		assert.Equal(t, types.TriggerScheduled, auto.Trigger.Kind)
		assert.True(t, auto.Decision.IsGroup())
		assert.Len(t, auto.Decision.Children, 2)
		assert.Len(t, auto.Decision.YesPath, 1)
		assert.Len(t, auto.Decision.NoPath, 1)
	}
}

func TestLoadValidYAML(t *testing.T) {
	path := writeDefinition(t, "bot.yaml", `
name: yaml-bot
automations:
  - id: mon-1
    kind: monitor
    enabled: true
    trigger:
      kind: continuous
      interval_sec: 5
    decision:
      recipe: "position:SPY"
      field: pnl_pct
      operator: less_than
      value: -2
      yes_path:
        - type: close_position
          params:
            symbol: SPY
`)
	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, "yaml-bot", cfg.Name)
	if assert.Len(t, cfg.Automations, 1) {
		assert.Equal(t, types.CmpLessThan, cfg.Automations[0].Decision.Operator)
		assert.Equal(t, float64(-2), cfg.Automations[0].Decision.Value)
	}
}

func TestLoadRejectsBadDefinitions(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing name", `{"automations": []}`},
		{"automation without id", `{"name": "b", "automations": [
			{"trigger": {"kind": "continuous"}, "decision": {"recipe": "x", "operator": "equal_to", "value": 1}}]}`},
		{"unknown operator", `{"name": "b", "automations": [
			{"id": "a", "trigger": {"kind": "continuous"},
			 "decision": {"recipe": "x", "operator": "almost_equal", "value": 1}}]}`},
		{"unknown trigger kind", `{"name": "b", "automations": [
			{"id": "a", "trigger": {"kind": "telepathic"},
			 "decision": {"recipe": "x", "operator": "equal_to", "value": 1}}]}`},
		{"scheduled without interval", `{"name": "b", "automations": [
			{"id": "a", "trigger": {"kind": "scheduled"},
			 "decision": {"recipe": "x", "operator": "equal_to", "value": 1}}]}`},
		{"event without topic", `{"name": "b", "automations": [
			{"id": "a", "trigger": {"kind": "event"},
			 "decision": {"recipe": "x", "operator": "equal_to", "value": 1}}]}`},
		{"group without children", `{"name": "b", "automations": [
			{"id": "a", "trigger": {"kind": "continuous"},
			 "decision": {"combinator": "and", "children": []}}]}`},
		{"leaf without operator", `{"name": "b", "automations": [
			{"id": "a", "trigger": {"kind": "continuous"},
			 "decision": {"recipe": "x", "value": 1}}]}`},
		{"unknown action type", `{"name": "b", "automations": [
			{"id": "a", "trigger": {"kind": "continuous"},
			 "decision": {"recipe": "x", "operator": "equal_to", "value": 1,
			   "yes_path": [{"type": "launch_rocket"}]}}]}`},
		{"duplicate ids", `{"name": "b", "automations": [
			{"id": "a", "trigger": {"kind": "continuous"},
			 "decision": {"recipe": "x", "operator": "equal_to", "value": 1}},
			{"id": "a", "trigger": {"kind": "continuous"},
			 "decision": {"recipe": "x", "operator": "equal_to", "value": 1}}]}`},
		{"paths on child node", `{"name": "b", "automations": [
			{"id": "a", "trigger": {"kind": "continuous"},
			 "decision": {"combinator": "and", "children": [
			   {"recipe": "x", "operator": "equal_to", "value": 1,
			    "yes_path": [{"type": "notify", "params": {"message": "m"}}]}]}}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeDefinition(t, "bad.json", tc.body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
