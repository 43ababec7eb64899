package instance

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"goa.design/pulse/rmap"

	"github.com/agentsignal/agentserver/agent"
)

// StatusMirrorConfig configures the optional cross-instance status mirror.
// The instance's in-process registry remains the sole routing authority
// (spec.md's non-goal of no distributed consensus); this only publishes a
// read-only snapshot other processes can observe.
type StatusMirrorConfig struct {
	// Redis is the client used to join the replicated status map. Required.
	Redis *redis.Client
	// PollInterval is how often each watched agent's Status is re-published.
	// Defaults to 5s.
	PollInterval time.Duration
}

// StatusMirror publishes agent.Status snapshots to a Pulse replicated map
// so a dashboard or a sibling instance can observe status without
// participating in routing, adapted from the teacher's
// registry.Registry/HealthTracker pulse pool + rmap pattern.
type StatusMirror struct {
	instanceName string
	interval     time.Duration
	m            *rmap.Map

	cancels map[string]context.CancelFunc
}

func newStatusMirror(ctx context.Context, instanceName string, cfg StatusMirrorConfig) (*StatusMirror, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("instance: status mirror requires a Redis client")
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	m, err := rmap.Join(ctx, instanceName+":status", cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("instance: join status map: %w", err)
	}
	return &StatusMirror{
		instanceName: instanceName,
		interval:     interval,
		m:            m,
		cancels:      make(map[string]context.CancelFunc),
	}, nil
}

// watch starts a goroutine that republishes s's Status at PollInterval
// until ctx is canceled or the agent exits.
func (sm *StatusMirror) watch(ctx context.Context, s *agent.Server) {
	wctx, cancel := context.WithCancel(ctx)
	sm.cancels[s.ID()] = cancel

	go func() {
		ticker := time.NewTicker(sm.interval)
		defer ticker.Stop()
		for {
			select {
			case <-wctx.Done():
				return
			case <-ticker.C:
				if !s.Alive() {
					return
				}
				st, err := s.Status(wctx)
				if err != nil {
					continue
				}
				sm.publish(wctx, s.ID(), st)
			}
		}
	}()
}

func (sm *StatusMirror) publish(ctx context.Context, agentID string, st agent.Status) {
	payload, err := json.Marshal(struct {
		AgentModule string
		RunStatus   agent.RunStatus
		Done        bool
	}{AgentModule: st.AgentModule, RunStatus: st.Snapshot.Status, Done: st.Snapshot.Done})
	if err != nil {
		return
	}
	_, _ = sm.m.Set(ctx, agentID, string(payload))
}

func (sm *StatusMirror) remove(agentID string) {
	if cancel, ok := sm.cancels[agentID]; ok {
		cancel()
		delete(sm.cancels, agentID)
	}
	_, _ = sm.m.Delete(context.Background(), agentID)
}
