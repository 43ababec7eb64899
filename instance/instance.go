// Package instance provides the local runtime container an application
// starts once per process: a registry mapping agent ids to live servers, an
// agent supervisor tracking spawned children, and a bounded task pool
// backing the default SpawnFunc. The instance's registry is the sole source
// of truth for routing; no package-level default supervisor exists, so a
// Spawn/SpawnAgent directive naming an instance that was never Start-ed
// fails with agent.ErrInstanceNotFound rather than silently falling back
// to some other instance.
package instance

import (
	"context"
	"fmt"
	"sync"

	"github.com/agentsignal/agentserver/agent"
)

// Handle is a started instance: a registry plus an agent supervisor.
// Callers obtain one from Start and construct servers that belong to it
// with Handle.StartAgent, which wires the Handle in as their Registry and
// its supervisor as their default SpawnFunc.
type Handle struct {
	name string

	mu     sync.RWMutex
	agents map[string]*agent.Server

	sup *supervisor

	mirror *StatusMirror
}

var (
	instancesMu sync.Mutex
	instances   = map[string]*Handle{}
)

// Start creates and registers a named instance. Starting the same name
// twice returns the existing handle: instances are process-wide singletons
// keyed by name, mirroring how the teacher's registry.Registry is one per
// cluster name.
func Start(name string) (*Handle, error) {
	if name == "" {
		return nil, fmt.Errorf("agent: instance name is required")
	}
	instancesMu.Lock()
	defer instancesMu.Unlock()
	if h, ok := instances[name]; ok {
		return h, nil
	}
	h := &Handle{
		name:   name,
		agents: make(map[string]*agent.Server),
		sup:    newSupervisor(),
	}
	instances[name] = h
	return h, nil
}

// Lookup finds an already-started instance by name.
func Lookup(name string) (*Handle, bool) {
	instancesMu.Lock()
	defer instancesMu.Unlock()
	h, ok := instances[name]
	return h, ok
}

// Stop tears the instance down: every tracked agent is asked to stop and
// the instance is removed from the process-wide registry.
func (h *Handle) Stop(reason string) {
	h.mu.Lock()
	agents := make([]*agent.Server, 0, len(h.agents))
	for _, a := range h.agents {
		agents = append(agents, a)
	}
	h.agents = make(map[string]*agent.Server)
	h.mu.Unlock()

	for _, a := range agents {
		a.Stop(reason)
	}
	h.sup.stopAll()

	instancesMu.Lock()
	delete(instances, h.name)
	instancesMu.Unlock()
}

// Lookup resolves id to its Server within this instance, satisfying
// agent.Registry.
func (h *Handle) Lookup(id string) (*agent.Server, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.agents[id]
	return s, ok
}

// Register satisfies agent.Registry; called by agent.NewServer itself.
func (h *Handle) Register(id string, s *agent.Server) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.agents[id] = s
}

// Unregister satisfies agent.Registry; called by Server.terminate.
func (h *Handle) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.agents, id)
	if h.mirror != nil {
		h.mirror.remove(id)
	}
}

// StartAgent validates opts against this instance (wiring its Registry, a
// default SpawnFunc backed by the instance's task supervisor, and the
// package-wide InstanceResolver for named Spawn/SpawnAgent directives,
// unless opts already supplies them) and starts the resulting Server.
func (h *Handle) StartAgent(opts agent.Options) (*agent.Server, error) {
	if opts.Registry == nil {
		opts.Registry = h
	}
	if opts.SpawnFunc == nil {
		opts.SpawnFunc = h.sup.spawnFunc()
	}
	if opts.InstanceResolver == nil {
		opts.InstanceResolver = resolveInstance
	}
	s, err := agent.NewServer(opts)
	if err != nil {
		return nil, err
	}
	s.Start()
	if h.mirror != nil {
		h.mirror.watch(context.Background(), s)
	}
	return s, nil
}

// EnableStatusMirror wires an optional cross-instance status mirror backed
// by Redis/Pulse (see statusmirror.go). Safe to call at most once; a second
// call is a no-op.
func (h *Handle) EnableStatusMirror(ctx context.Context, cfg StatusMirrorConfig) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.mirror != nil {
		return nil
	}
	m, err := newStatusMirror(ctx, h.name, cfg)
	if err != nil {
		return err
	}
	h.mirror = m
	return nil
}

// Name returns the instance's name.
func (h *Handle) Name() string { return h.name }

// resolveInstance implements agent.InstanceResolver against the process-wide
// instance registry: it backs Spawn/SpawnAgent directives that name an
// instance explicitly, so a child is supervised by (and registered
// against) that instance rather than the spawning agent's own. Looking up
// an instance that was never Start-ed (or has since Stop-ped) reports
// ok=false, which agent.Server turns into ErrInstanceNotFound.
func resolveInstance(name string) (agent.SpawnFunc, agent.Registry, bool) {
	h, ok := Lookup(name)
	if !ok {
		return nil, nil, false
	}
	return h.sup.spawnFunc(), h, true
}
