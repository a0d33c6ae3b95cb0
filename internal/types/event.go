package types

import "time"

// Well-known event topics. Subscribers match on the exact topic string.
const (
	TopicBotStarted          = "bot.started"
	TopicBotStopped          = "bot.stopped"
	TopicAutomationTriggered = "automation.triggered"
	TopicAutomationCompleted = "automation.completed"
	TopicAutomationError     = "automation.error"
	TopicDecisionEvaluated   = "decision.evaluated"
	TopicActionFailed        = "action.failed"
	TopicConfigReloaded      = "config.reloaded"
)

// Event is an immutable message published on the bus. Sequence is assigned
// by the bus at publish time and increases monotonically per bus.
type Event struct {
	ID        string         `json:"id"`
	Topic     string         `json:"topic"`
	Sequence  uint64         `json:"sequence"`
	Source    string         `json:"source,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
