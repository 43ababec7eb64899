package agent

import "testing"

func TestPatternMatchesSingleSegmentWildcard(t *testing.T) {
	cases := []struct {
		pattern, signal string
		want            bool
	}{
		{"user.*.created", "user.123.created", true},
		{"user.*.created", "user.123.456.created", false},
		{"user.*", "user.created", true},
		{"user.*", "user", false},
		{"user.created", "user.created", true},
		{"user.created", "user.updated", false},
	}
	for _, c := range cases {
		if got := patternMatches(c.pattern, c.signal); got != c.want {
			t.Errorf("patternMatches(%q, %q) = %v, want %v", c.pattern, c.signal, got, c.want)
		}
	}
}

func TestPatternMatchesDoubleWildcard(t *testing.T) {
	cases := []struct {
		pattern, signal string
		want            bool
	}{
		{"user.**", "user", true},
		{"user.**", "user.created", true},
		{"user.**", "user.a.b.c", true},
		{"**", "anything.at.all", true},
		{"a.**.z", "a.z", true},
		{"a.**.z", "a.b.c.z", true},
		{"a.**.z", "a.b.c.y", false},
	}
	for _, c := range cases {
		if got := patternMatches(c.pattern, c.signal); got != c.want {
			t.Errorf("patternMatches(%q, %q) = %v, want %v", c.pattern, c.signal, got, c.want)
		}
	}
}

func TestBuildRouterOverridesOnIdenticalPatternAndPriority(t *testing.T) {
	agentRoutes := []Route{NewRoute("order.created", Target{Action: "handle_v1"}, PriorityAgent)}
	pluginRoutes := []Route{NewRoute("order.created", Target{Action: "handle_v2"}, PriorityAgent)}

	r := BuildRouter(nil, agentRoutes, pluginRoutes, nil)
	sig := MustSignal("order.created", "test", nil)
	matches := r.Match(sig)
	if len(matches) != 1 {
		t.Fatalf("expected exactly one route to survive the override, got %d", len(matches))
	}
	if matches[0].Target.Action != "handle_v2" {
		t.Errorf("expected the later-registered route to win, got action %q", matches[0].Target.Action)
	}
}

func TestRouterMatchOrdersByPriorityThenSeq(t *testing.T) {
	r := BuildRouter(
		[]Route{NewRoute("x.y", Target{Action: "strategy"}, PriorityStrategy)},
		[]Route{NewRoute("x.y", Target{Action: "agent"}, PriorityAgent)},
		[]Route{NewRoute("x.y", Target{Action: "plugin"}, PriorityPlugin)},
		nil,
	)
	matches := r.Match(MustSignal("x.y", "test", nil))
	if len(matches) != 3 {
		t.Fatalf("expected 3 distinct-priority routes to all match, got %d", len(matches))
	}
	if matches[0].Target.Action != "strategy" || matches[1].Target.Action != "agent" || matches[2].Target.Action != "plugin" {
		t.Errorf("unexpected priority order: %+v", matches)
	}
}

func TestRouterMatchAppliesPredicate(t *testing.T) {
	always := NewRoute("x.y", Target{Action: "no"}, PriorityAgent, WithPredicate(func(Signal) bool { return false }))
	r := BuildRouter(nil, []Route{always}, nil, nil)
	if matches := r.Match(MustSignal("x.y", "test", nil)); len(matches) != 0 {
		t.Errorf("expected predicate=false route to be filtered out, got %d matches", len(matches))
	}
}
