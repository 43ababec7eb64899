package agent

import (
	"context"
	"testing"
	"time"
)

func startCounterServer(t *testing.T, opts Options) *Server {
	t.Helper()
	opts.Module = newCounterModule()
	s, err := NewServer(opts)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	s.Start()
	t.Cleanup(func() { s.Stop("test cleanup") })
	return s
}

func TestCallRoutesAndReturnsUpdatedView(t *testing.T) {
	s := startCounterServer(t, Options{})
	ctx := context.Background()

	sig := MustSignal("counter.increment", "test", 5)
	v, err := s.Call(ctx, sig)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if v.State()["count"] != 5 {
		t.Errorf("expected count=5, got %v", v.State()["count"])
	}
}

func TestCastDoesNotBlockOrReturnView(t *testing.T) {
	s := startCounterServer(t, Options{})
	ctx := context.Background()

	if err := s.Cast(ctx, MustSignal("counter.increment", "test", 1)); err != nil {
		t.Fatalf("Cast: %v", err)
	}

	// Cast must eventually be reflected in State even though Cast itself
	// returns no view.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		fs, err := s.State(ctx)
		if err != nil {
			t.Fatalf("State: %v", err)
		}
		if fs.AgentState["count"] == 1 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("Cast effect never observed in State")
}

func TestFIFOOrderingOfEnqueuedSignals(t *testing.T) {
	s := startCounterServer(t, Options{})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := s.Cast(ctx, MustSignal("counter.increment", "test", 1)); err != nil {
			t.Fatalf("Cast %d: %v", i, err)
		}
	}
	v, err := s.Call(ctx, MustSignal("counter.increment", "test", 1))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if v.State()["count"] != 11 {
		t.Errorf("expected all 11 increments applied in order, got count=%v", v.State()["count"])
	}
}

func TestRoutingFailureForUnknownSignalType(t *testing.T) {
	s := startCounterServer(t, Options{})
	ctx := context.Background()
	_, err := s.Call(ctx, MustSignal("nothing.matches", "test", nil))
	if err == nil {
		t.Fatalf("expected an error for an unroutable signal")
	}
}

func TestAliveReflectsLifecycle(t *testing.T) {
	s := startCounterServer(t, Options{})
	if !s.Alive() {
		t.Fatalf("expected a freshly started server to be alive")
	}
	s.Stop("done")
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && s.Alive() {
		time.Sleep(time.Millisecond)
	}
	if s.Alive() {
		t.Errorf("expected server to report not alive after Stop")
	}
}
