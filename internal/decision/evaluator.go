package decision

import (
	"context"
	"fmt"

	"botkit/internal/bus"
	"botkit/internal/logger"
	"botkit/internal/state"
	"botkit/internal/types"
)

// Context bundles what a cycle needs: the shared state manager, the bus for
// audit events, and the recipe resolver collaborator.
type Context struct {
	AutomationID string
	State        *state.Manager
	Bus          *bus.Bus
	Resolver     Resolver
}

// EvalError aborts an automation cycle: no branch is taken and the
// automation's last result is set to errored. It is never coerced to a
// boolean result.
type EvalError struct {
	AutomationID string
	NodePath     string
	Reason       string
	Err          error
}

func (e *EvalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decision %s at %s: %s: %v", e.AutomationID, e.NodePath, e.Reason, e.Err)
	}
	return fmt.Sprintf("decision %s at %s: %s", e.AutomationID, e.NodePath, e.Reason)
}

func (e *EvalError) Unwrap() error { return e.Err }

// Evaluator walks a decision tree against current state.
type Evaluator struct{}

// NewEvaluator returns a stateless evaluator; all per-cycle inputs arrive
// through the Context.
func NewEvaluator() *Evaluator { return &Evaluator{} }

// Evaluate resolves the tree to a boolean. Group nodes short-circuit: AND
// stops at the first false child, OR at the first true one, so children
// past the deciding one are never resolved (resolution can be a priced
// market-data call). Every node visit publishes a decision.evaluated event
// before returning, errors included.
func (ev *Evaluator) Evaluate(ctx context.Context, node *types.DecisionNode, ec *Context) (bool, error) {
	return ev.eval(ctx, node, ec, "root")
}

func (ev *Evaluator) eval(ctx context.Context, node *types.DecisionNode, ec *Context, path string) (result bool, err error) {
	defer func() {
		ev.publishEvaluated(ec, path, result, err)
	}()

	if node == nil {
		return false, &EvalError{AutomationID: ec.AutomationID, NodePath: path, Reason: "nil decision node"}
	}
	if err := ctx.Err(); err != nil {
		return false, &EvalError{AutomationID: ec.AutomationID, NodePath: path, Reason: "cycle cancelled", Err: err}
	}
	if node.IsGroup() {
		return ev.evalGroup(ctx, node, ec, path)
	}
	return ev.evalLeaf(ctx, node, ec, path)
}

func (ev *Evaluator) evalLeaf(ctx context.Context, node *types.DecisionNode, ec *Context, path string) (bool, error) {
	if node.Recipe == "" || node.Operator == "" {
		return false, &EvalError{AutomationID: ec.AutomationID, NodePath: path, Reason: "leaf missing recipe or operator"}
	}
	if ec.Resolver == nil {
		return false, &EvalError{AutomationID: ec.AutomationID, NodePath: path, Reason: "no resolver configured"}
	}
	operand, err := ec.Resolver.Resolve(ctx, node.Recipe, node.Field, ec)
	if err != nil {
		return false, &EvalError{
			AutomationID: ec.AutomationID,
			NodePath:     path,
			Reason:       fmt.Sprintf("resolve %s.%s failed", node.Recipe, node.Field),
			Err:          err,
		}
	}
	ok, err := Compare(node.Operator, operand, node.Value, node.Value2)
	if err != nil {
		return false, &EvalError{AutomationID: ec.AutomationID, NodePath: path, Reason: "comparison failed", Err: err}
	}
	logger.Debugf("decision: %s %s %s.%s=%v %s %v -> %v",
		ec.AutomationID, path, node.Recipe, node.Field, operand, node.Operator, node.Value, ok)
	return ok, nil
}

func (ev *Evaluator) evalGroup(ctx context.Context, node *types.DecisionNode, ec *Context, path string) (bool, error) {
	if len(node.Children) == 0 {
		return false, &EvalError{AutomationID: ec.AutomationID, NodePath: path, Reason: "group has no children"}
	}
	switch node.Combinator {
	case types.CombinatorAnd:
		for i, child := range node.Children {
			ok, err := ev.eval(ctx, child, ec, childPath(path, i))
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case types.CombinatorOr:
		for i, child := range node.Children {
			ok, err := ev.eval(ctx, child, ec, childPath(path, i))
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, &EvalError{
			AutomationID: ec.AutomationID,
			NodePath:     path,
			Reason:       fmt.Sprintf("unknown combinator %q", node.Combinator),
		}
	}
}

func (ev *Evaluator) publishEvaluated(ec *Context, path string, result bool, err error) {
	if ec == nil || ec.Bus == nil {
		return
	}
	payload := map[string]any{
		"automation_id": ec.AutomationID,
		"node_path":     path,
		"result":        result,
	}
	if err != nil {
		payload["error"] = err.Error()
	}
	pubErr := ec.Bus.Publish(types.Event{
		Topic:   types.TopicDecisionEvaluated,
		Source:  ec.AutomationID,
		Payload: payload,
	})
	if pubErr != nil && pubErr != bus.ErrClosed {
		logger.Warnf("decision: publish evaluated event failed: %v", pubErr)
	}
}

func childPath(parent string, idx int) string {
	return fmt.Sprintf("%s.children[%d]", parent, idx)
}
