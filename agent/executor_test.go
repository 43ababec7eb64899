package agent

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSpawnDirectiveTracksChildAndStopChildCancelsIt(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	spawnFunc := SpawnFunc(func(spec ChildSpec) (func(), <-chan struct{}, error) {
		done := make(chan struct{})
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			defer close(done)
			close(started)
			select {
			case <-release:
			case <-ctx.Done():
			}
		}()
		return cancel, done, nil
	})

	s := startCounterServer(t, Options{SpawnFunc: spawnFunc})
	ctx := context.Background()

	tag := SpawnTag("worker-1")
	directives := []Directive{Spawn{Spec: ChildSpec{Module: "worker"}, Tag: tag}}
	if _, err := s.Call(ctx, MustSignal("counter.directives", "test", directives)); err != nil {
		t.Fatalf("Call: %v", err)
	}

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatalf("spawned child never started")
	}

	stDirectives := []Directive{StopChild{Tag: tag, Reason: "test"}}
	if _, err := s.Call(ctx, MustSignal("counter.directives", "test", stDirectives)); err != nil {
		t.Fatalf("Call: %v", err)
	}

	select {
	case <-release:
		t.Fatalf("release should not be closed by StopChild; cancellation happens via context")
	default:
	}
}

func TestStopDirectiveTerminatesServer(t *testing.T) {
	s := startCounterServer(t, Options{})
	ctx := context.Background()

	directives := []Directive{Stop{Reason: "done"}}
	_, err := s.Call(ctx, MustSignal("counter.directives", "test", directives))
	if err != nil && err != ErrShutdown {
		t.Fatalf("Call: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && s.Alive() {
		time.Sleep(time.Millisecond)
	}
	if s.Alive() {
		t.Fatalf("expected server to terminate after a Stop directive")
	}
}

func TestEmitDirectiveCallsConfiguredDispatch(t *testing.T) {
	var dispatched []Signal
	opts := Options{
		DefaultDispatch: func(sig Signal, hint *DispatchHint) {
			dispatched = append(dispatched, sig)
		},
	}
	s := startCounterServer(t, opts)
	ctx := context.Background()

	emitted := MustSignal("downstream.event", "test", nil)
	directives := []Directive{Emit{Signal: emitted}}
	if _, err := s.Call(ctx, MustSignal("counter.directives", "test", directives)); err != nil {
		t.Fatalf("Call: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && len(dispatched) == 0 {
		time.Sleep(time.Millisecond)
	}
	if len(dispatched) != 1 || dispatched[0].Type() != "downstream.event" {
		t.Fatalf("expected the Emit directive's signal to reach the dispatch sink, got %+v", dispatched)
	}
}

func TestParentDeathStopTerminatesChild(t *testing.T) {
	parent := startCounterServer(t, Options{})

	child, err := NewServer(Options{
		Module:        newCounterModule(),
		OnParentDeath: ParentDeathStop,
		Parent:        &ParentRef{ID: parent.ID(), notify: parent.exited},
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	child.Start()
	t.Cleanup(func() { child.Stop("test cleanup") })

	parent.Stop("parent done")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && child.Alive() {
		time.Sleep(time.Millisecond)
	}
	if child.Alive() {
		t.Fatalf("expected child with OnParentDeath=stop to terminate when its parent exits")
	}
}

func TestParentDeathReasonDistinguishesBenignFromAbnormal(t *testing.T) {
	benignParent := startCounterServer(t, Options{})
	benignChild, err := NewServer(Options{
		Module:        newCounterModule(),
		OnParentDeath: ParentDeathStop,
		Parent:        &ParentRef{ID: benignParent.ID(), notify: benignParent.exited, reason: func() string { return benignParent.exitReason }},
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	benignChild.Start()
	t.Cleanup(func() { benignChild.Stop("test cleanup") })

	benignParent.Stop("shutdown")
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && benignChild.Alive() {
		time.Sleep(time.Millisecond)
	}
	if benignChild.Alive() {
		t.Fatalf("expected child to terminate after its parent's benign shutdown")
	}
	if benignChild.exitReason != "shutdown: parent_down: shutdown" {
		t.Errorf("expected a wrapped benign reason, got %q", benignChild.exitReason)
	}

	abnormalParent := startCounterServer(t, Options{})
	abnormalChild, err := NewServer(Options{
		Module:        newCounterModule(),
		OnParentDeath: ParentDeathStop,
		Parent:        &ParentRef{ID: abnormalParent.ID(), notify: abnormalParent.exited, reason: func() string { return abnormalParent.exitReason }},
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	abnormalChild.Start()
	t.Cleanup(func() { abnormalChild.Stop("test cleanup") })

	abnormalParent.Stop("killed")
	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) && abnormalChild.Alive() {
		time.Sleep(time.Millisecond)
	}
	if abnormalChild.Alive() {
		t.Fatalf("expected child to terminate after its parent's abnormal exit")
	}
	if abnormalChild.exitReason != "parent_down: killed" {
		t.Errorf("expected an unwrapped abnormal reason, got %q", abnormalChild.exitReason)
	}
}

// TestSpawnFailureEnqueuesErrorDirective verifies a SpawnFunc failure is
// routed through the error policy as an ErrorDirective{context: "spawn"}
// rather than only surfacing as a logged Go error (§4.8).
func TestSpawnFailureEnqueuesErrorDirective(t *testing.T) {
	boom := errors.New("spawn boom")
	var seen []ErrorDirective
	spawnFunc := SpawnFunc(func(spec ChildSpec) (func(), <-chan struct{}, error) {
		return nil, nil, boom
	})

	s := startCounterServer(t, Options{
		SpawnFunc:   spawnFunc,
		ErrorPolicy: LogOnlyPolicy(func(d ErrorDirective) { seen = append(seen, d) }),
	})
	ctx := context.Background()

	directives := []Directive{Spawn{Spec: ChildSpec{Module: "worker"}}}
	if _, err := s.Call(ctx, MustSignal("counter.directives", "test", directives)); err != nil {
		t.Fatalf("Call: %v", err)
	}

	if len(seen) != 1 || seen[0].Context != "spawn" || !errors.Is(seen[0].Err, boom) {
		t.Fatalf("expected one spawn ErrorDirective wrapping the spawn failure, got %+v", seen)
	}
}

// TestSpawnFailureRespectsMaxErrorsBoundary verifies a spawn failure counts
// against {max_errors, n} the same as any other ErrorDirective, so repeated
// spawn failures eventually stop the agent (§8 boundary behaviours).
func TestSpawnFailureRespectsMaxErrorsBoundary(t *testing.T) {
	boom := errors.New("spawn boom")
	spawnFunc := SpawnFunc(func(spec ChildSpec) (func(), <-chan struct{}, error) {
		return nil, nil, boom
	})

	s := startCounterServer(t, Options{
		SpawnFunc:   spawnFunc,
		ErrorPolicy: MaxErrorsPolicy(2),
	})
	ctx := context.Background()

	directives := []Directive{Spawn{Spec: ChildSpec{Module: "worker"}}}
	if _, err := s.Call(ctx, MustSignal("counter.directives", "test", directives)); err != nil {
		t.Fatalf("Call (first spawn failure): %v", err)
	}
	if !s.Alive() {
		t.Fatalf("expected agent to survive the first of two allowed spawn failures")
	}

	_, err := s.Call(ctx, MustSignal("counter.directives", "test", directives))
	if err != nil && err != ErrShutdown {
		t.Fatalf("Call (second spawn failure): %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && s.Alive() {
		time.Sleep(time.Millisecond)
	}
	if s.Alive() {
		t.Fatalf("expected the second spawn failure to trip max_errors and stop the agent")
	}
}

// TestSpawnAgentFailureEnqueuesErrorDirective verifies a SpawnAgent failure
// (here, an invalid child Options with neither Module nor Value set) is
// routed through the error policy as an ErrorDirective{context: "spawn_agent"}.
func TestSpawnAgentFailureEnqueuesErrorDirective(t *testing.T) {
	var seen []ErrorDirective
	s := startCounterServer(t, Options{
		ErrorPolicy: LogOnlyPolicy(func(d ErrorDirective) { seen = append(seen, d) }),
	})
	ctx := context.Background()

	directives := []Directive{SpawnAgent{}}
	if _, err := s.Call(ctx, MustSignal("counter.directives", "test", directives)); err != nil {
		t.Fatalf("Call: %v", err)
	}

	if len(seen) != 1 || seen[0].Context != "spawn_agent" {
		t.Fatalf("expected one spawn_agent ErrorDirective, got %+v", seen)
	}
}

// TestSpawnNamedInstanceNotFoundFails verifies a Spawn directive naming an
// instance that was never Started fails distinctly with ErrInstanceNotFound
// rather than silently falling back to this agent's own supervisor (§4.1).
func TestSpawnNamedInstanceNotFoundFails(t *testing.T) {
	var seen []ErrorDirective
	spawnFunc := SpawnFunc(func(spec ChildSpec) (func(), <-chan struct{}, error) {
		done := make(chan struct{})
		close(done)
		return func() {}, done, nil
	})

	s := startCounterServer(t, Options{
		SpawnFunc:   spawnFunc,
		ErrorPolicy: LogOnlyPolicy(func(d ErrorDirective) { seen = append(seen, d) }),
	})
	ctx := context.Background()

	directives := []Directive{Spawn{Spec: ChildSpec{Module: "worker"}, Instance: "never-started"}}
	if _, err := s.Call(ctx, MustSignal("counter.directives", "test", directives)); err != nil {
		t.Fatalf("Call: %v", err)
	}

	if len(seen) != 1 || seen[0].Context != "spawn" || !errors.Is(seen[0].Err, ErrInstanceNotFound) {
		t.Fatalf("expected a spawn ErrorDirective wrapping ErrInstanceNotFound, got %+v", seen)
	}
}

// TestSpawnAgentInheritsParentRegistryAndSpawnFunc verifies an unnamed
// SpawnAgent defaults its child's Registry/SpawnFunc from the parent's own
// (§3 invariant 4: every spawned child is supervised by the instance's
// agent supervisor) rather than leaving them nil.
func TestSpawnAgentInheritsParentRegistryAndSpawnFunc(t *testing.T) {
	reg := newFakeRegistry()
	spawnFunc := SpawnFunc(func(spec ChildSpec) (func(), <-chan struct{}, error) {
		done := make(chan struct{})
		close(done)
		return func() {}, done, nil
	})

	s := startCounterServer(t, Options{SpawnFunc: spawnFunc, Registry: reg})
	ctx := context.Background()

	before := reg.len() // the parent itself, registered at construction

	directives := []Directive{SpawnAgent{Module: newCounterModule()}}
	if _, err := s.Call(ctx, MustSignal("counter.directives", "test", directives)); err != nil {
		t.Fatalf("Call: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && reg.len() <= before {
		time.Sleep(time.Millisecond)
	}
	if reg.len() <= before {
		t.Fatalf("expected the spawned child to register against the parent's own Registry")
	}
}

func TestParentDeathContinueSurvivesParentExit(t *testing.T) {
	parent := startCounterServer(t, Options{})

	child, err := NewServer(Options{
		Module:        newCounterModule(),
		OnParentDeath: ParentDeathContinue,
		Parent:        &ParentRef{ID: parent.ID(), notify: parent.exited},
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	child.Start()
	t.Cleanup(func() { child.Stop("test cleanup") })

	parent.Stop("parent done")
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && parent.Alive() {
		time.Sleep(time.Millisecond)
	}

	time.Sleep(50 * time.Millisecond)
	if !child.Alive() {
		t.Fatalf("expected child with OnParentDeath=continue to survive its parent's exit")
	}
}
