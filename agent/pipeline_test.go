package agent

import (
	"context"
	"testing"
	"time"
)

// countingTransformPlugin counts every TransformResult invocation so tests
// can assert whether the view-transform pass ran at all.
type countingTransformPlugin struct {
	calls chan struct{}
}

func (p *countingTransformPlugin) Key() string        { return "counting_transform" }
func (p *countingTransformPlugin) Patterns() []string { return nil }
func (p *countingTransformPlugin) TransformResult(ctx context.Context, action ActionID, v Value) (Value, error) {
	p.calls <- struct{}{}
	return v, nil
}

var _ Plugin = (*countingTransformPlugin)(nil)
var _ ResultTransformer = (*countingTransformPlugin)(nil)

// transformCountingModule wraps counterModule, mounting a
// countingTransformPlugin so tests can observe whether transformView ran.
type transformCountingModule struct {
	*counterModule
	plugin *countingTransformPlugin
}

func newTransformCountingModule() *transformCountingModule {
	return &transformCountingModule{
		counterModule: newCounterModule(),
		plugin:        &countingTransformPlugin{calls: make(chan struct{}, 16)},
	}
}

func (m *transformCountingModule) Plugins() []Plugin { return []Plugin{m.plugin} }

var _ PluginProvider = (*transformCountingModule)(nil)

func startTransformCountingServer(t *testing.T) (*Server, *transformCountingModule) {
	t.Helper()
	mod := newTransformCountingModule()
	s, err := NewServer(Options{Module: mod})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	s.Start()
	t.Cleanup(func() { s.Stop("test cleanup") })
	return s, mod
}

// TestCallRunsResultTransform verifies a synchronous Call still runs every
// plugin's TransformResult pass (§4.6 step 7).
func TestCallRunsResultTransform(t *testing.T) {
	s, mod := startTransformCountingServer(t)
	ctx := context.Background()

	if _, err := s.Call(ctx, MustSignal("counter.increment", "test", 1)); err != nil {
		t.Fatalf("Call: %v", err)
	}

	select {
	case <-mod.plugin.calls:
	case <-time.After(time.Second):
		t.Fatalf("expected TransformResult to run for a synchronous Call")
	}
}

// TestCastSkipsResultTransform verifies a fire-and-forget Cast never runs
// plugin TransformResult passes, since there is no synchronous caller to
// hand a view to (§4.6 step 7: "Fire-and-forget calls skip this step").
func TestCastSkipsResultTransform(t *testing.T) {
	s, mod := startTransformCountingServer(t)
	ctx := context.Background()

	if err := s.Cast(ctx, MustSignal("counter.increment", "test", 1)); err != nil {
		t.Fatalf("Cast: %v", err)
	}

	// Give the signal a chance to fully drain, then confirm no transform
	// call ever arrives.
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		fs, err := s.State(ctx)
		if err != nil {
			t.Fatalf("State: %v", err)
		}
		if fs.AgentState["count"] == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	select {
	case <-mod.plugin.calls:
		t.Fatalf("expected TransformResult to be skipped for a Cast-originated signal")
	case <-time.After(50 * time.Millisecond):
	}
}
