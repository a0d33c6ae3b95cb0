package types

import "time"

// ActionType identifies what an action does. Position actions are delegated
// to the external position collaborator; the rest are built-ins.
type ActionType string

const (
	ActionOpenPosition  ActionType = "open_position"
	ActionClosePosition ActionType = "close_position"
	ActionNotify        ActionType = "notify"
	ActionSetTag        ActionType = "set_tag"
	ActionClearTag      ActionType = "clear_tag"
	ActionLogMessage    ActionType = "log_message"
	ActionWait          ActionType = "wait"
)

// Action is one immutable step of a yes/no path.
type Action struct {
	Type   ActionType     `json:"type"`
	Params map[string]any `json:"params,omitempty"`
}

// StringParam returns a string parameter, or "" when absent.
func (a Action) StringParam(key string) string {
	if a.Params == nil {
		return ""
	}
	s, _ := a.Params[key].(string)
	return s
}

// FloatParam returns a numeric parameter, handling the float64/int values
// JSON and YAML decoders produce.
func (a Action) FloatParam(key string) (float64, bool) {
	if a.Params == nil {
		return 0, false
	}
	switch v := a.Params[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// ActionResult is the transient outcome of executing one action. It is
// reported through events and the automation's last result, never stored
// as part of the configuration.
type ActionResult struct {
	Action   ActionType     `json:"action"`
	Success  bool           `json:"success"`
	Message  string         `json:"message,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
	Duration time.Duration  `json:"duration"`
}
