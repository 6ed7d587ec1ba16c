// Package metrics exposes runtime counters via expvar.
package metrics

import "expvar"

var (
	EventsAccepted     = expvar.NewInt("events_accepted")
	EventsDropped      = expvar.NewInt("events_dropped")
	DispatchesTotal    = expvar.NewInt("dispatches_total")
	ExecutionsSuccess  = expvar.NewInt("executions_success")
	ExecutionsFailed   = expvar.NewInt("executions_failed")
	ExecutionsSkipped  = expvar.NewInt("executions_skipped")
	ActionRetries      = expvar.NewInt("action_retries")
	TransitionsApplied = expvar.NewInt("transitions_applied")
	TransitionsInvalid = expvar.NewInt("transitions_invalid")
	SchedulesFired     = expvar.NewInt("schedules_fired")
	SchedulesMissed    = expvar.NewInt("schedules_missed")
	SLABreaches        = expvar.NewInt("sla_breaches")
	DepthGuardTrips    = expvar.NewInt("depth_guard_trips")
)
