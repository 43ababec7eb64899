package agent

import (
	"context"
	"testing"
	"time"
)

// demoCronPlugin declares a single cron schedule during post_init and
// contributes no explicit routes, so router_build.go synthesizes one for it
// (the "one route per registered cron job with a synthesised internal
// signal type" case, spec.md §4.4 route source 4).
type demoCronPlugin struct{}

func (demoCronPlugin) Key() string        { return "demo" }
func (demoCronPlugin) Patterns() []string { return nil }
func (demoCronPlugin) CronSchedules() []CronRegister {
	return []CronRegister{{CronExpr: "@every 20ms", Message: map[string]any{"tick": true}, JobID: "tick"}}
}

var _ Plugin = demoCronPlugin{}
var _ CronScheduleProvider = demoCronPlugin{}

// cronPluginModule wraps counterModule's value/action shape but mounts
// demoCronPlugin and registers the catch-all action the plugin's
// synthesized route targets (Target{} leaves Action as the zero ActionID).
type cronPluginModule struct {
	actions map[ActionID]Action
}

func newCronPluginModule() *cronPluginModule {
	return &cronPluginModule{
		actions: map[ActionID]Action{
			"": ActionFunc(func(ctx context.Context, params map[string]any, actx ActionContext) (ActionResult, error) {
				cv := actx.Agent.(*counterValue)
				return ActionResult{Effects: map[string]any{"count": cv.state["count"].(int) + 1}}, nil
			}),
		},
	}
}

func (m *cronPluginModule) New(id string, initialState map[string]any) (Value, error) {
	return newCounterValue(id, initialState), nil
}
func (m *cronPluginModule) Actions() map[ActionID]Action { return m.actions }
func (m *cronPluginModule) Plugins() []Plugin             { return []Plugin{demoCronPlugin{}} }

var (
	_ Module         = (*cronPluginModule)(nil)
	_ ActionProvider = (*cronPluginModule)(nil)
	_ PluginProvider = (*cronPluginModule)(nil)
)

// TestPluginDeclaredCronScheduleFiresAndRoutesEndToEnd verifies a plugin's
// post_init-registered cron schedule actually reaches its own action: the
// signal type onCronFire synthesizes on fire (PluginScheduleType(job's
// declaring plugin key, job id)) must match the route router_build.go
// synthesized for that same plugin/job at startup (§4.4, §4.6).
func TestPluginDeclaredCronScheduleFiresAndRoutesEndToEnd(t *testing.T) {
	s, err := NewServer(Options{Module: newCronPluginModule()})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	s.Start()
	t.Cleanup(func() { s.Stop("test cleanup") })

	ctx := context.Background()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		fs, err := s.State(ctx)
		if err != nil {
			t.Fatalf("State: %v", err)
		}
		if n, ok := fs.AgentState["count"].(int); ok && n >= 1 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("plugin-declared cron schedule never routed a fire through to its action")
}
