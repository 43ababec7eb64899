package agent

import (
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// cronJob is one registered cron schedule (§4.6). One cron.Cron per Server,
// created on first registration, backs every job of that agent; robfig/cron's own concurrency-safe
// scheduler does the actual waking, firing a func() that posts a
// cronFireMsg, so cron cadence never competes with the drain goroutine for
// anything but the control channel.
type cronJob struct {
	id      string
	expr    string
	message any
	entryID cron.EntryID
	// pluginKey is the declaring plugin's Key() for a schedule registered
	// via CronScheduleProvider during post_init; empty for an ad-hoc
	// CronRegister directive issued by an action. It determines which
	// reserved signal type a non-Signal message is wrapped in on fire, so
	// it must match the type router_build.go synthesized a route for.
	pluginKey string
	// originTrace is the trace envelope of the signal whose action produced
	// this CronRegister directive, or the zero value for a plugin-declared
	// schedule (registered during post_init, with no triggering signal) or
	// a directly-enqueued one. Every fire derives the delivered signal's
	// trace from it (§8 invariant 5).
	originTrace TraceEnvelope
}

// cronScheduler lazily backs a Server's cron jobs. Expressions are parsed
// as the standard 5-field spec (no seconds field) or a descriptor such as
// "@every 1h"; registerCron applies a timezone through a CRON_TZ= prefix.
type cronScheduler struct {
	c *cron.Cron
}

func newCronScheduler() *cronScheduler {
	return &cronScheduler{c: cron.New(cron.WithParser(cron.NewParser(
		cron.Minute|cron.Hour|cron.Dom|cron.Month|cron.Dow|cron.Descriptor,
	)))}
}

func (s *Server) ensureCronScheduler() *cronScheduler {
	if s.cron == nil {
		s.cron = newCronScheduler()
		s.cron.c.Start()
	}
	return s.cron
}

// registerCron upserts a cron job: re-registering an existing JobID removes
// the stale entry first (§4.6 "re-registering the same job id replaces the
// previous schedule"). pluginKey is the declaring plugin's Key() when this
// registration comes from a CronScheduleProvider at post_init, or "" for an
// ad-hoc CronRegister directive issued by an action. parentTrace is the
// trace of the signal that produced the directive (zero for post_init
// registrations), stored so every future fire can derive from it.
func (s *Server) registerCron(d CronRegister, pluginKey string, parentTrace TraceEnvelope) error {
	sched := s.ensureCronScheduler()

	jobID := d.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}
	if existing, ok := s.st.cronJobs[jobID]; ok {
		sched.c.Remove(existing.entryID)
		delete(s.st.cronJobs, jobID)
	}

	expr := d.CronExpr
	if d.Timezone != "" {
		expr = "CRON_TZ=" + d.Timezone + " " + expr
	}

	entryID, err := sched.c.AddFunc(expr, func() {
		select {
		case s.ctrl <- cronFireMsg{jobID: jobID, message: d.Message}:
		case <-s.exited:
		}
	})
	if err != nil {
		return err
	}
	s.st.cronJobs[jobID] = &cronJob{id: jobID, expr: d.CronExpr, message: d.Message, entryID: entryID, pluginKey: pluginKey, originTrace: parentTrace}
	return nil
}

func (s *Server) cancelCron(d CronCancel) {
	if s.cron == nil {
		return
	}
	job, ok := s.st.cronJobs[d.JobID]
	if !ok {
		return
	}
	s.cron.c.Remove(job.entryID)
	delete(s.st.cronJobs, d.JobID)
}

// onCronFire enqueues the cron job's message as a new ingress signal. A
// message that is already a Signal passes through unwrapped, keeping its
// own type and route, mirroring Schedule's firing semantics (§4.6). A
// non-Signal message from a plugin-declared schedule (job.pluginKey set) is
// wrapped in that plugin's reserved `<plugin_key>.__schedule__.<job_id>`
// type, matching the route router_build.go synthesized for it; an ad-hoc
// CronRegister directive (no declaring plugin) wraps in jido.scheduled
// instead, the same reserved type a one-shot Schedule uses.
func (s *Server) onCronFire(jobID string, message any) {
	job, ok := s.st.cronJobs[jobID]
	if !ok {
		return
	}
	var sig Signal
	if already, ok := message.(Signal); ok {
		sig = already
	} else {
		sigType := SignalScheduled
		if job.pluginKey != "" {
			sigType = PluginScheduleType(job.pluginKey, jobID)
		}
		var err error
		sig, err = NewSignal(sigType, s.id, message)
		if err != nil {
			return
		}
	}
	sig = sig.WithTrace(deriveFromTrace(job.originTrace))
	if err := s.st.enqueue(workItem{signal: &sig}); err != nil {
		s.emitQueueOverflow()
	}
}

// stopCronScheduler stops the underlying robfig/cron scheduler without
// waiting for in-flight jobs (those already posted on s.ctrl are simply
// dropped once s.exited closes).
func (s *Server) stopCronScheduler() {
	if s.cron == nil {
		return
	}
	s.cron.c.Stop()
}
