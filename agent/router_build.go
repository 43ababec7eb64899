package agent

import "context"

// buildRouterFor assembles the four route sources in spec.md §4.4 order.
// Missing providers simply contribute no routes.
func buildRouterFor(mod Module, value Value, strategy Strategy, plugins []Plugin, skipSchedules bool) *Router {
	ctx := context.Background()

	var strategyRoutes []Route
	if strategy != nil {
		strategyRoutes = withDefaultPriority(strategy.SignalRoutes(ctx), PriorityStrategy)
	}

	var agentRoutes []Route
	if rp, ok := mod.(RouteProvider); ok {
		agentRoutes = withDefaultPriority(rp.SignalRoutes(ctx), PriorityAgent)
	}

	var pluginRoutes []Route
	var scheduleRoutes []Route
	for _, p := range plugins {
		if rp, ok := p.(RouteProvider); ok {
			explicit := rp.SignalRoutes(ctx)
			if len(explicit) > 0 {
				pluginRoutes = append(pluginRoutes, withDefaultPriority(explicit, PriorityPlugin)...)
			}
		}
		// No route is synthesized from a plugin's Patterns(), since a pattern
		// names no action: plugins without explicit routes only contribute
		// schedule routes.

		if csp, ok := p.(CronScheduleProvider); ok && !skipSchedules {
			for _, reg := range csp.CronSchedules() {
				sigType := PluginScheduleType(p.Key(), reg.JobID)
				scheduleRoutes = append(scheduleRoutes, NewRoute(sigType, Target{}, PriorityPlugin))
			}
		}
	}

	return BuildRouter(strategyRoutes, agentRoutes, pluginRoutes, scheduleRoutes)
}

func withDefaultPriority(routes []Route, def int) []Route {
	out := make([]Route, len(routes))
	for i, r := range routes {
		if r.Priority == 0 && def != 0 {
			r.Priority = def
		}
		out[i] = r
	}
	return out
}
