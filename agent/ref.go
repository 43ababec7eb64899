package agent

// ServerRef identifies an Agent Server for Spawn/SpawnAgent/directive
// targets that need to name a server outside their own process. It has
// deliberately no string-only constructor: the only way to build one is
// ViaTuple, which requires a Registry alongside the id. This makes the
// "bare name without a registry to resolve it against" failure mode from
// spec.md §4.10 a compile-time impossibility rather than a runtime check.
type ServerRef struct {
	id  string
	reg Registry
}

// ViaTuple builds a ServerRef from an id and the registry it should be
// resolved against.
func ViaTuple(id string, reg Registry) ServerRef {
	return ServerRef{id: id, reg: reg}
}

// Resolve looks the ref up in its registry, returning ErrRequiresRegistry
// if none was supplied and ErrNotFound if the id isn't registered.
func (r ServerRef) Resolve() (*Server, error) {
	if r.reg == nil {
		return nil, ErrRequiresRegistry
	}
	s, ok := r.reg.Lookup(r.id)
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Whereis looks up id in reg directly, returning nil if absent.
func Whereis(reg Registry, id string) *Server {
	if reg == nil {
		return nil
	}
	s, _ := reg.Lookup(id)
	return s
}
