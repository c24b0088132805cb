package metrics

// Collector wraps metrics and provides helper methods. A nil *Collector is
// valid and records nothing, so callers do not need to guard every call site.
type Collector struct{}

// NewCollector creates a new Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// IncRunsStarted increments the runs started counter.
func (c *Collector) IncRunsStarted(queue string) {
	if c == nil {
		return
	}
	RunsStartedTotal.WithLabelValues(queue).Inc()
}

// IncRunsFinished increments the runs finished counter for a terminal status.
func (c *Collector) IncRunsFinished(queue, status string) {
	if c == nil {
		return
	}
	RunsFinishedTotal.WithLabelValues(queue, status).Inc()
}

// AddTasksPlanned adds to the tasks planned counter.
func (c *Collector) AddTasksPlanned(queue string, count int) {
	if c == nil {
		return
	}
	TasksPlannedTotal.WithLabelValues(queue).Add(float64(count))
}

// IncTaskFailures increments the task failures counter.
func (c *Collector) IncTaskFailures(queue string) {
	if c == nil {
		return
	}
	TaskFailuresTotal.WithLabelValues(queue).Inc()
}

// IncVerdicts increments the verdicts counter.
func (c *Collector) IncVerdicts(queue, verdict string) {
	if c == nil {
		return
	}
	VerdictsTotal.WithLabelValues(queue, verdict).Inc()
}

// IncEventsProjected increments the events projected counter for an entity type.
func (c *Collector) IncEventsProjected(entityType string) {
	if c == nil {
		return
	}
	EventsProjectedTotal.WithLabelValues(entityType).Inc()
}

// IncProjectionErrors increments the projection errors counter for an entity type.
func (c *Collector) IncProjectionErrors(entityType string) {
	if c == nil {
		return
	}
	ProjectionErrorsTotal.WithLabelValues(entityType).Inc()
}

// AddActiveRuns adjusts the active runs gauge by delta.
func (c *Collector) AddActiveRuns(delta int) {
	if c == nil {
		return
	}
	ActiveRuns.Add(float64(delta))
}

// ObserveEvaluatorDuration records one evaluator call duration.
func (c *Collector) ObserveEvaluatorDuration(judge string, seconds float64) {
	if c == nil {
		return
	}
	EvaluatorDuration.WithLabelValues(judge).Observe(seconds)
}
