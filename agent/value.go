package agent

import "context"

// Value is a user-defined agent record. The core treats it opaquely except
// for ID, State, and the metadata reachable through its Module descriptor.
type Value interface {
	// ID returns the agent's own notion of its identifier, used only as a
	// fallback when Options.ID is empty (spec.md §4.2).
	ID() string
	// State returns the agent's freely-shaped state mapping. Actions receive
	// the live Value; the Server merges returned effects into the map State
	// returns (§4.6 step 5).
	State() map[string]any
}

// Module describes an agent's static metadata: its routes, plugins,
// strategy, and hooks. Capabilities are optional and detected with a type
// assertion against the narrower *Provider interfaces below, mirroring the
// source's "implements signal_routes/1 if defined" pattern.
type Module interface {
	// New constructs a fresh Value, deep-merging initialState on top of
	// whatever defaults the module applies.
	New(id string, initialState map[string]any) (Value, error)
}

// RouteProvider is implemented by a Module, Strategy, Plugin, or Skill that
// contributes routes to the router.
type RouteProvider interface {
	SignalRoutes(ctx context.Context) []Route
}

// PluginProvider is implemented by a Module that declares plugins/skills to
// mount during post_init.
type PluginProvider interface {
	Plugins() []Plugin
}

// StrategyProvider is implemented by a Module that delegates scheduler
// snapshot computation and route contribution to a Strategy.
type StrategyProvider interface {
	Strategy() Strategy
}

// HookProvider is implemented by a Module whose Value wants a chance to
// observe or rewrite the action and directives chosen for a signal.
type HookProvider interface {
	OnBeforeCmd(v Value, action ActionID) ActionID
	OnAfterCmd(v Value, action ActionID, directives []Directive) []Directive
}

// ActionProvider is implemented by a Module that registers the Actions a
// route Target can name. A Target whose Action is absent from this map (or
// whose Module doesn't implement ActionProvider at all) fails routing with
// ErrRoutingFailed, the same outcome as no route matching at all.
type ActionProvider interface {
	Actions() map[ActionID]Action
}

// SchemaProvider is implemented by a Module that exposes a validation
// schema for its state shape. The core never validates against it itself;
// it is exposed for external tooling (e.g. the out-of-scope code
// generator) to introspect.
type SchemaProvider interface {
	Schema() map[string]any
}

// Strategy is a policy module that can contribute routes and compute
// scheduler snapshots for Status (§4.11, glossary).
type Strategy interface {
	RouteProvider
	// Snapshot computes the scheduler-visible status from the agent's
	// current state.
	Snapshot(v Value) Snapshot
}

// Snapshot is the strategy-produced piece of a Status result (§4.11).
type Snapshot struct {
	Status  RunStatus
	Done    bool
	Result  any
	Details map[string]any
}

// RunStatus is the strategy-computed run status, distinct from the
// server-level Status field on State (initializing/idle/processing/shutting_down).
type RunStatus string

const (
	RunIdle    RunStatus = "idle"
	RunRunning RunStatus = "running"
	RunWaiting RunStatus = "waiting"
	RunSuccess RunStatus = "success"
	RunFailure RunStatus = "failure"
)

// Action is a user-supplied pure-ish function from params+context to a
// result and a set of directives.
type Action interface {
	Run(ctx context.Context, params map[string]any, actx ActionContext) (ActionResult, error)
}

// ActionFunc adapts a function to the Action interface.
type ActionFunc func(ctx context.Context, params map[string]any, actx ActionContext) (ActionResult, error)

// Run calls f.
func (f ActionFunc) Run(ctx context.Context, params map[string]any, actx ActionContext) (ActionResult, error) {
	return f(ctx, params, actx)
}

// ActionContext carries the state, agent, signal, and trace visible to an
// Action invocation (§4.6 step 5).
type ActionContext struct {
	AgentID string
	Agent   Value
	Signal  Signal
	Trace   TraceEnvelope
}

// ActionResult is what an Action returns: effects to shallow-merge into
// agent state, plus any directives to enqueue.
type ActionResult struct {
	// Effects are shallow-merged into agent state unless an internal state
	// op directive specifies a targeted update path.
	Effects    map[string]any
	Directives []Directive
}
