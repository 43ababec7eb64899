package agent

import (
	"sort"
	"strings"
)

// Default route priorities, used when a route tuple omits one (§4.4).
const (
	PriorityStrategy = 50
	PriorityAgent    = 0
	PriorityPlugin   = -10
)

// Target is what a matched route invokes: either a direct Action identifier
// or a nested Instruction (an action plus pre-bound params), matching the
// "(an Action identifier or a nested instruction)" shape in the data model.
type Target struct {
	Action ActionID
	// Params are bound into the action invocation when the route itself
	// (rather than the signal data) supplies them, e.g. plugin-synthesized
	// routes of the shape pattern -> action.
	Params map[string]any
}

// ActionID names a registered Action within an agent's module.
type ActionID string

// Predicate further filters whether a route applies to a given signal,
// beyond pattern matching alone.
type Predicate func(Signal) bool

// Route binds a pattern to a Target with a priority. Patterns are literal
// dotted strings or globs using "*" (exactly one segment) and "**" (zero or
// more segments).
type Route struct {
	Pattern   string
	Predicate Predicate
	Target    Target
	Priority  int
	seq       int // insertion order, for stable tie-break
}

// RouteOption customizes a Route built via NewRoute.
type RouteOption func(*Route)

// WithPriority overrides a route's default priority.
func WithPriority(p int) RouteOption { return func(r *Route) { r.Priority = p } }

// WithPredicate attaches a predicate to a route.
func WithPredicate(p Predicate) RouteOption { return func(r *Route) { r.Predicate = p } }

// NewRoute builds a Route from a pattern, target, and options, applying
// defaultPriority when no WithPriority option is given. This is the single
// constructor behind all four route tuple shapes enumerated in spec.md §4.4
// -- callers destructure their tuple and call this.
func NewRoute(pattern string, target Target, defaultPriority int, opts ...RouteOption) Route {
	r := Route{Pattern: pattern, Target: target, Priority: defaultPriority}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// patternMatches reports whether pattern matches the dotted signal type. "*"
// matches exactly one segment; "**" matches zero or more segments.
func patternMatches(pattern, signalType string) bool {
	pSegs := strings.Split(pattern, ".")
	sSegs := strings.Split(signalType, ".")
	return matchSegs(pSegs, sSegs)
}

func matchSegs(p, s []string) bool {
	if len(p) == 0 {
		return len(s) == 0
	}
	head := p[0]
	if head == "**" {
		if matchSegs(p[1:], s) {
			return true
		}
		if len(s) == 0 {
			return false
		}
		return matchSegs(p, s[1:])
	}
	if len(s) == 0 {
		return false
	}
	if head != "*" && head != s[0] {
		return false
	}
	return matchSegs(p[1:], s[1:])
}

// Router is the immutable, priority-ordered routing table built once at
// agent startup (§4.4). It is read-only after BuildRouter returns.
type Router struct {
	routes []Route
}

// BuildRouter assembles the routing table from all four sources in the
// order spec.md §4.4 mandates: strategy routes, agent routes, plugin/skill
// routes, plugin schedule routes. Later entries with an identical
// pattern+priority pair override earlier ones; all other pairs simply
// coexist and are ranked by priority (desc) then insertion order at match
// time.
func BuildRouter(strategyRoutes, agentRoutes, pluginRoutes, scheduleRoutes []Route) *Router {
	var all []Route
	seq := 0
	appendStamped := func(rs []Route) {
		for _, r := range rs {
			r.seq = seq
			seq++
			all = append(all, r)
		}
	}
	appendStamped(strategyRoutes)
	appendStamped(agentRoutes)
	appendStamped(pluginRoutes)
	appendStamped(scheduleRoutes)

	// Later entries override earlier ones on identical pattern+priority.
	keyOf := func(r Route) string {
		return r.Pattern + "\x00" + itoa(r.Priority)
	}
	byKey := make(map[string]int) // key -> index in deduped
	var deduped []Route
	for _, r := range all {
		k := keyOf(r)
		if idx, ok := byKey[k]; ok {
			deduped[idx] = r
			continue
		}
		byKey[k] = len(deduped)
		deduped = append(deduped, r)
	}
	return &Router{routes: deduped}
}

func itoa(n int) string {
	neg := n < 0
	if neg {
		n = -n
	}
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Match returns every route matching sig, ordered by priority descending,
// ties broken by insertion order. An empty result means routing failed.
func (r *Router) Match(sig Signal) []Route {
	var hits []Route
	for _, rt := range r.routes {
		if !patternMatches(rt.Pattern, sig.Type()) {
			continue
		}
		if rt.Predicate != nil && !rt.Predicate(sig) {
			continue
		}
		hits = append(hits, rt)
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Priority != hits[j].Priority {
			return hits[i].Priority > hits[j].Priority
		}
		return hits[i].seq < hits[j].seq
	})
	return hits
}
