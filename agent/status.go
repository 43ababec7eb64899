package agent

import (
	"context"
	"time"
)

// Status is the Status() snapshot (§4.11): module/id identity, the
// strategy-produced Snapshot, and the raw FullState for escape-hatch access.
type Status struct {
	AgentModule string
	AgentID     string
	Snapshot    Snapshot
	Raw         FullState
}

func (s *Server) computeStatus() Status {
	snap := Snapshot{Status: RunIdle}
	if s.st.strategy != nil {
		snap = s.st.strategy.Snapshot(s.st.value)
	} else {
		snap = Snapshot{
			Status: serverStatusToRunStatus(s.st.status),
			Done:   s.st.done,
			Result: s.st.result,
		}
	}
	return Status{
		AgentModule: moduleName(s.st.module),
		AgentID:     s.st.id,
		Snapshot:    snap,
		Raw:         s.st.snapshot(),
	}
}

func serverStatusToRunStatus(st ServerStatus) RunStatus {
	switch st {
	case StatusProcessing:
		return RunRunning
	case StatusInitializing:
		return RunWaiting
	default:
		return RunIdle
	}
}

func moduleName(m Module) string {
	if m == nil {
		return ""
	}
	return typeName(m)
}

// StreamStatus produces a restartable, infinite lazy sequence of Status by
// polling at interval. The returned channel is closed when ctx is canceled
// or the agent dies; callers "halt" the stream simply by cancelling ctx,
// the idiomatic Go equivalent of halting a lazy sequence.
func (s *Server) StreamStatus(ctx context.Context, interval time.Duration) <-chan Status {
	out := make(chan Status)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			st, err := s.Status(ctx)
			if err != nil {
				return
			}
			select {
			case out <- st:
			case <-ctx.Done():
				return
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
