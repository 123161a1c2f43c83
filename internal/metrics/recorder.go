package metrics

import (
	"time"
)

// Recorder provides methods for recording metrics.
type Recorder struct{}

// NewRecorder creates a new metrics recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordOrder records a leg submission outcome.
func (r *Recorder) RecordOrder(side, outcome string) {
	OrdersTotal.WithLabelValues(side, outcome).Inc()
}

// RecordGateRejection records a pre-trade gate rejection.
func (r *Recorder) RecordGateRejection(gate string) {
	GateRejectionsTotal.WithLabelValues(gate).Inc()
}

// RecordSignal records an inbound signal outcome.
func (r *Recorder) RecordSignal(action, outcome string) {
	SignalsTotal.WithLabelValues(action, outcome).Inc()
}

// RecordPositionOpened records a persisted position by status.
func (r *Recorder) RecordPositionOpened(status string) {
	PositionsOpen.WithLabelValues(status).Inc()
}

// RecordPositionClosed records a position removal.
func (r *Recorder) RecordPositionClosed(status string) {
	PositionsOpen.WithLabelValues(status).Dec()
}

// RecordNakedLeg records an entry that left a naked long leg.
func (r *Recorder) RecordNakedLeg() {
	NakedLegsTotal.Inc()
}

// RecordRollover records a rollover attempt outcome.
func (r *Recorder) RecordRollover(outcome string) {
	RolloversTotal.WithLabelValues(outcome).Inc()
}

// RecordStoreError records a persistence failure.
func (r *Recorder) RecordStoreError() {
	StoreErrorsTotal.Inc()
}

// RecordHeartbeat records signal-processing liveness.
func (r *Recorder) RecordHeartbeat() {
	HeartbeatTimestamp.Set(float64(time.Now().Unix()))
}

// Timer measures a duration from its creation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveOrderSubmit records elapsed time as submission latency.
func (t *Timer) ObserveOrderSubmit() {
	OrderSubmitLatency.Observe(time.Since(t.start).Seconds())
}

// ObserveFillWait records elapsed time as fill wait.
func (t *Timer) ObserveFillWait() {
	FillWaitSeconds.Observe(time.Since(t.start).Seconds())
}
