package types

// TriggerKind selects how an automation fires.
type TriggerKind string

const (
	TriggerContinuous TriggerKind = "continuous"
	TriggerScheduled  TriggerKind = "scheduled"
	TriggerEvent      TriggerKind = "event"
)

// Trigger describes when the scheduler fires an automation.
// IntervalSec is the period for scheduled triggers and the optional rate
// limit for continuous ones. Topic/Filter apply to event triggers; Filter
// is a gjson path evaluated against the event payload.
type Trigger struct {
	Kind        TriggerKind `json:"kind"`
	IntervalSec float64     `json:"interval_sec,omitempty"`
	Topic       string      `json:"topic,omitempty"`
	Filter      string      `json:"filter,omitempty"`
}

// AutomationKind gates when an automation is eligible to run: scanners only
// under the position limit, monitors only with open positions. Empty means
// no gate.
type AutomationKind string

const (
	AutomationScanner AutomationKind = "scanner"
	AutomationMonitor AutomationKind = "monitor"
)

// Automation is one trigger + decision tree + action paths unit of a bot.
// The runtime last-run/last-result state lives with the scheduler runner,
// not here; the definition stays immutable after load.
type Automation struct {
	ID       string         `json:"id"`
	Name     string         `json:"name,omitempty"`
	Kind     AutomationKind `json:"kind,omitempty"`
	Trigger  Trigger        `json:"trigger"`
	Decision *DecisionNode  `json:"decision"`
	Enabled  bool           `json:"enabled"`
}

// Safeguards are bot-level capital and position limits.
type Safeguards struct {
	MaxOpenPositions   int     `json:"max_open_positions,omitempty"`
	DailyPositionLimit int     `json:"daily_position_limit,omitempty"`
	AllocatedCapital   float64 `json:"allocated_capital,omitempty"`
}

// BotConfig is the immutable definition of one bot, owned by its
// orchestrator once loaded.
type BotConfig struct {
	Name        string       `json:"name"`
	Account     string       `json:"account"`
	Symbols     []string     `json:"symbols,omitempty"`
	Safeguards  Safeguards   `json:"safeguards,omitempty"`
	Automations []Automation `json:"automations"`
}

// Automation returns the definition with the given id, or nil.
func (c *BotConfig) Automation(id string) *Automation {
	for i := range c.Automations {
		if c.Automations[i].ID == id {
			return &c.Automations[i]
		}
	}
	return nil
}
