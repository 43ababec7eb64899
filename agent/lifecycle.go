package agent

import "context"

// LifecycleEvent names a point in the Server's life the Lifecycle record is
// consulted at.
type LifecycleEvent string

const (
	LifecycleInit      LifecycleEvent = "init"
	LifecycleIdle      LifecycleEvent = "idle"
	LifecycleSpawn     LifecycleEvent = "spawn"
	LifecycleTerminate LifecycleEvent = "terminate"
)

// Lifecycle is the single source of truth for optional pooling/idle-timeout
// behaviour. The Server consults it; it never duplicates Pool/PoolKey/
// IdleTimeout bookkeeping itself.
type Lifecycle interface {
	Init(ctx context.Context, agentID string) error
	HandleEvent(ctx context.Context, agentID string, event LifecycleEvent, meta map[string]any) error
	Terminate(ctx context.Context, agentID string, reason string) error
}

// Storage is the optional persistence seam a Lifecycle implementation may
// use to survive process restarts for pool/idle-timeout bookkeeping (never
// for mailbox contents -- spec.md's non-goals explicitly exclude mailbox
// persistence).
type Storage interface {
	SaveLifecycleState(ctx context.Context, agentID string, state map[string]any) error
	LoadLifecycleState(ctx context.Context, agentID string) (map[string]any, error)
	DeleteLifecycleState(ctx context.Context, agentID string) error
}

// NoopLifecycle implements Lifecycle with no pooling/idle-timeout behaviour,
// used when Options.LifecycleMod is unset.
type NoopLifecycle struct{}

func (NoopLifecycle) Init(context.Context, string) error { return nil }
func (NoopLifecycle) HandleEvent(context.Context, string, LifecycleEvent, map[string]any) error {
	return nil
}
func (NoopLifecycle) Terminate(context.Context, string, string) error { return nil }

// PooledLifecycle records pool-key occupancy, optionally persisting through
// Storage so pool membership survives a process restart. It is the
// lifecycle implementation selected when Options.Pool is set without a
// user-supplied LifecycleMod.
type PooledLifecycle struct {
	PoolKey     string
	IdleTimeout int64 // milliseconds; stored only, no idle timer is armed
	Store       Storage
}

func (l *PooledLifecycle) Init(ctx context.Context, agentID string) error {
	if l.Store == nil {
		return nil
	}
	_, err := l.Store.LoadLifecycleState(ctx, agentID)
	if err != nil {
		return nil // absence of prior state is not an error
	}
	return nil
}

func (l *PooledLifecycle) HandleEvent(ctx context.Context, agentID string, event LifecycleEvent, meta map[string]any) error {
	if l.Store == nil {
		return nil
	}
	state := map[string]any{"pool_key": l.PoolKey, "event": string(event)}
	for k, v := range meta {
		state[k] = v
	}
	return l.Store.SaveLifecycleState(ctx, agentID, state)
}

func (l *PooledLifecycle) Terminate(ctx context.Context, agentID string, reason string) error {
	if l.Store == nil {
		return nil
	}
	return l.Store.DeleteLifecycleState(ctx, agentID)
}
