package instance

import (
	"context"

	"github.com/agentsignal/agentserver/agent"
)

// echoValue is a minimal agent.Value used by instance package tests.
type echoValue struct {
	id    string
	state map[string]any
}

func (v *echoValue) ID() string            { return v.id }
func (v *echoValue) State() map[string]any { return v.state }

// echoModule routes "echo.ping" to an action that bumps state["pings"].
type echoModule struct{}

func (echoModule) New(id string, initialState map[string]any) (agent.Value, error) {
	st := make(map[string]any, len(initialState))
	for k, v := range initialState {
		st[k] = v
	}
	if _, ok := st["pings"]; !ok {
		st["pings"] = 0
	}
	return &echoValue{id: id, state: st}, nil
}

func (echoModule) SignalRoutes(ctx context.Context) []agent.Route {
	return []agent.Route{agent.NewRoute("echo.ping", agent.Target{Action: "ping"}, agent.PriorityAgent)}
}

func (echoModule) Actions() map[agent.ActionID]agent.Action {
	return map[agent.ActionID]agent.Action{
		"ping": agent.ActionFunc(func(ctx context.Context, params map[string]any, actx agent.ActionContext) (agent.ActionResult, error) {
			ev := actx.Agent.(*echoValue)
			next := ev.state["pings"].(int) + 1
			return agent.ActionResult{Effects: map[string]any{"pings": next}}, nil
		}),
	}
}

var (
	_ agent.Module         = echoModule{}
	_ agent.RouteProvider  = echoModule{}
	_ agent.ActionProvider = echoModule{}
	_ agent.Value          = (*echoValue)(nil)
)
