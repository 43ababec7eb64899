// Package agent implements the Agent Server runtime: a per-agent,
// single-goroutine actor with a bounded mailbox, a priority-ordered router,
// a directive executor, parent/child supervision, and timer/cron
// subsystems.
package agent

// Ident is the strong type for fully qualified agent identifiers. Use this
// type in maps and APIs instead of a bare string to avoid accidentally
// mixing agent ids with unrelated strings (tool names, signal types, etc.).
type Ident string
