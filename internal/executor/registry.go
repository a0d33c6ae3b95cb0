package executor

import (
	"context"

	"botkit/internal/types"
)

// Applier executes one action kind. Implementations return a result rather
// than an error: action failure is data, not control flow.
type Applier interface {
	Apply(ctx context.Context, automationID string, action types.Action) types.ActionResult
}

// ApplierFunc adapts a function to the Applier interface.
type ApplierFunc func(ctx context.Context, automationID string, action types.Action) types.ActionResult

func (f ApplierFunc) Apply(ctx context.Context, automationID string, action types.Action) types.ActionResult {
	return f(ctx, automationID, action)
}

// Registry maps action types to appliers. Registering an existing type
// replaces it.
type Registry struct {
	appliers map[types.ActionType]Applier
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{appliers: make(map[types.ActionType]Applier)}
}

// Register adds an applier for the given action type.
func (r *Registry) Register(t types.ActionType, a Applier) {
	if a == nil {
		return
	}
	r.appliers[t] = a
}

// Get returns the applier for the given action type.
func (r *Registry) Get(t types.ActionType) (Applier, bool) {
	a, ok := r.appliers[t]
	return a, ok
}
