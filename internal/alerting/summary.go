package alerting

import "time"

// RolloverReport aggregates the outcome of one expiry-day rollover sweep
// for the operator digest.
type RolloverReport struct {
	Date               time.Time
	Attempted          int
	RolledOver         int
	ExitFailures       int
	ReentryFailures    int
	ManualIntervention []string
}

// NewRolloverReport builds a report from per-system outcomes. Each entry in
// manualIntervention names a system id left flat or partially exposed.
func NewRolloverReport(date time.Time, attempted, rolledOver, exitFailures, reentryFailures int, manualIntervention []string) RolloverReport {
	return RolloverReport{
		Date:               date,
		Attempted:          attempted,
		RolledOver:         rolledOver,
		ExitFailures:       exitFailures,
		ReentryFailures:    reentryFailures,
		ManualIntervention: manualIntervention,
	}
}

// Clean reports whether the sweep completed with no failures.
func (r RolloverReport) Clean() bool {
	return r.ExitFailures == 0 && r.ReentryFailures == 0 && len(r.ManualIntervention) == 0
}

// Severity returns the alert severity the report warrants.
func (r RolloverReport) Severity() Severity {
	if r.ReentryFailures > 0 || len(r.ManualIntervention) > 0 {
		return SeverityCritical
	}
	if r.ExitFailures > 0 {
		return SeverityHigh
	}
	return SeverityInfo
}
