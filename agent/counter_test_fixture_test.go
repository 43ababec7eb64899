package agent

import (
	"context"
	"sync"
)

// fakeRegistry is a minimal in-memory agent.Registry for tests that need to
// observe whether a spawned child registered itself.
type fakeRegistry struct {
	mu     sync.Mutex
	agents map[string]*Server
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{agents: make(map[string]*Server)}
}

func (r *fakeRegistry) Lookup(id string) (*Server, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.agents[id]
	return s, ok
}

func (r *fakeRegistry) Register(id string, s *Server) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[id] = s
}

func (r *fakeRegistry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, id)
}

func (r *fakeRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.agents)
}

var _ Registry = (*fakeRegistry)(nil)

// counterValue is a minimal Value used by server/pipeline tests: a mutable
// map-backed state plus an id.
type counterValue struct {
	id    string
	state map[string]any
}

func newCounterValue(id string, initial map[string]any) *counterValue {
	st := make(map[string]any, len(initial))
	for k, v := range initial {
		st[k] = v
	}
	if _, ok := st["count"]; !ok {
		st["count"] = 0
	}
	return &counterValue{id: id, state: st}
}

func (v *counterValue) ID() string             { return v.id }
func (v *counterValue) State() map[string]any  { return v.state }

// counterModule routes "counter.increment" to an action that bumps
// state["count"] by the signal's data (an int), and exposes no strategy or
// plugins unless a test overrides it.
type counterModule struct {
	routes  []Route
	actions map[ActionID]Action
}

func newCounterModule() *counterModule {
	m := &counterModule{}
	m.actions = map[ActionID]Action{
		"increment": ActionFunc(func(ctx context.Context, params map[string]any, actx ActionContext) (ActionResult, error) {
			by := 1
			if n, ok := actx.Signal.Data().(int); ok {
				by = n
			}
			cv := actx.Agent.(*counterValue)
			next := cv.state["count"].(int) + by
			return ActionResult{Effects: map[string]any{"count": next}}, nil
		}),
		"run_directives": ActionFunc(func(ctx context.Context, params map[string]any, actx ActionContext) (ActionResult, error) {
			ds, _ := actx.Signal.Data().([]Directive)
			return ActionResult{Directives: ds}, nil
		}),
	}
	m.routes = []Route{
		NewRoute("counter.increment", Target{Action: "increment"}, PriorityAgent),
		NewRoute("counter.directives", Target{Action: "run_directives"}, PriorityAgent),
	}
	return m
}

func (m *counterModule) New(id string, initialState map[string]any) (Value, error) {
	return newCounterValue(id, initialState), nil
}

func (m *counterModule) SignalRoutes(ctx context.Context) []Route { return m.routes }
func (m *counterModule) Actions() map[ActionID]Action             { return m.actions }

var (
	_ Module         = (*counterModule)(nil)
	_ RouteProvider  = (*counterModule)(nil)
	_ ActionProvider = (*counterModule)(nil)
	_ Value          = (*counterValue)(nil)
)
