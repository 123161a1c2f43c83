// Package engine owns the synthetic position state machine: ordered two-leg
// entry and exit, naked-leg handling, and expiry-day rollover.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"synthbot/internal/alerting"
	"synthbot/internal/broker"
	"synthbot/internal/execution"
	"synthbot/internal/metrics"
	"synthbot/internal/persistence"
	"synthbot/internal/types"
)

// OrderSubmitter places a single leg and optionally waits for its fill.
// Satisfied by execution.Executor.
type OrderSubmitter interface {
	Submit(ctx context.Context, side types.Side, securityID string, qty int, waitForFill bool) execution.Result
}

// EnterResult reports the outcome of a synthetic entry.
type EnterResult struct {
	// Entered is true when the long leg filled and a position was
	// persisted, including the partial (naked long) case.
	Entered bool
	// Partial is true when the short leg could not be placed.
	Partial bool
	Reason  string
}

// ExitResult reports the outcome of a synthetic exit.
type ExitResult struct {
	Exited bool
	Reason string
}

// Manager orchestrates two-leg entries and exits. The long call leg always
// leads: on entry it must fully fill before the short put is attempted, and
// on exit the short put is closed before the call is sold.
type Manager struct {
	store    persistence.Store
	exec     OrderSubmitter
	broker   broker.Broker
	alerter  alerting.Alerter
	logger   *slog.Logger
	recorder *metrics.Recorder
	locks    *keyedMutex
	now      func() time.Time
}

// NewManager creates a synthetic position manager.
func NewManager(
	store persistence.Store,
	exec OrderSubmitter,
	brk broker.Broker,
	alerter alerting.Alerter,
	logger *slog.Logger,
) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if alerter == nil {
		alerter = alerting.NewConsoleAlerter(logger)
	}

	return &Manager{
		store:    store,
		exec:     exec,
		broker:   brk,
		alerter:  alerter,
		logger:   logger,
		recorder: metrics.NewRecorder(),
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
}

// Enter opens a synthetic long for systemID: BUY the call leg with a fill
// wait, then SELL the put leg best-effort. A duplicate entry for a system
// that already holds a position is ignored. Once the long leg is confirmed
// filled the position is always persisted, as PARTIAL_OPEN with a warning
// when the short leg could not be placed.
func (m *Manager) Enter(ctx context.Context, systemID string, contract types.Contract, qty int) (EnterResult, error) {
	m.locks.Lock(systemID)
	defer m.locks.Unlock(systemID)

	logger := m.logger.With("system_id", systemID, "underlying", contract.Underlying, "qty", qty)

	existing, err := m.store.Get(ctx, systemID)
	if err != nil {
		return EnterResult{}, fmt.Errorf("read position: %w", err)
	}
	if existing != nil {
		logger.Info("entry ignored, position exists", "status", existing.Status)
		m.recorder.RecordSignal("BUY", "ignored")
		return EnterResult{Reason: "position already exists"}, nil
	}

	longLeg := m.exec.Submit(ctx, types.SideBuy, contract.CallSecurityID, qty, true)
	if !longLeg.FilledCompletely {
		reason := "long leg unfilled"
		if longLeg.Reason != "" {
			reason = "long leg: " + longLeg.Reason
		}
		logger.Warn("entry aborted", "reason", reason, "order_id", longLeg.OrderID, "status", longLeg.Status)
		m.recorder.RecordSignal("BUY", "aborted")
		return EnterResult{Reason: reason}, nil
	}

	shortLeg := m.exec.Submit(ctx, types.SideSell, contract.PutSecurityID, qty, false)

	pos := types.SystemPosition{
		SystemID:   systemID,
		Underlying: contract.Underlying,
		Contract:   contract,
		Quantity:   qty,
		Status:     types.PositionOpen,
		EnteredAt:  m.now(),
	}
	result := EnterResult{Entered: true}

	if !shortLeg.Placed {
		// Real exposure exists on the long leg. Record the naked
		// position rather than drop it; the put leg is cleared so a
		// later exit does not try to close a leg that was never placed.
		pos.Status = types.PositionPartialOpen
		pos.Contract.PutSecurityID = ""
		pos.Warning = "naked long call: short put leg was not placed (" + shortLeg.Reason + ")"
		result.Partial = true
		result.Reason = pos.Warning

		logger.Error("short leg not placed, position is naked", "reason", shortLeg.Reason)
		m.recorder.RecordNakedLeg()
		if err := m.alerter.Alert(ctx, alerting.SeverityCritical,
			"Naked long leg: short put could not be placed",
			"system_id", systemID,
			"underlying", contract.Underlying,
			"call_security_id", contract.CallSecurityID,
			"qty", qty,
			"reason", shortLeg.Reason,
		); err != nil {
			logger.Warn("naked leg alert failed", "error", err)
		}
	}

	ok, err := m.store.PutIfAbsent(ctx, pos)
	if err != nil {
		m.recorder.RecordStoreError()
		if alertErr := m.alerter.Alert(ctx, alerting.SeverityHigh,
			"Position state could not be persisted",
			"system_id", systemID, "error", err.Error(),
		); alertErr != nil {
			logger.Warn("persistence alert failed", "error", alertErr)
		}
		return result, fmt.Errorf("%w: %v", types.ErrStatePersistence, err)
	}
	if !ok {
		// Cannot happen while the per-system lock is held.
		return result, fmt.Errorf("%w: %s", types.ErrPositionExists, systemID)
	}

	m.recorder.RecordSignal("BUY", "entered")
	m.recorder.RecordPositionOpened(string(pos.Status))
	logger.Info("synthetic position entered",
		"status", pos.Status,
		"strike", contract.Strike,
		"expiry", contract.Expiry.Format("2006-01-02"),
	)
	return result, nil
}

// Exit closes the synthetic position for systemID: buy back the put leg
// first, then sell the call. The call leg is never touched while a recorded
// put leg remains open, so a failed short close leaves state intact for a
// clean retry. A leg the broker reports no exposure for is treated as
// already closed.
func (m *Manager) Exit(ctx context.Context, systemID string) (ExitResult, error) {
	m.locks.Lock(systemID)
	defer m.locks.Unlock(systemID)

	logger := m.logger.With("system_id", systemID)

	pos, err := m.store.Get(ctx, systemID)
	if err != nil {
		return ExitResult{}, fmt.Errorf("read position: %w", err)
	}
	if pos == nil {
		logger.Info("exit ignored, no position")
		m.recorder.RecordSignal("EXIT", "ignored")
		return ExitResult{Reason: "no position"}, nil
	}

	live := m.livePositions(ctx, logger)

	// Each leg closes with the opposite of the side that opened it.
	if put := pos.Contract.PutSecurityID; put != "" {
		if live.flat(put) {
			logger.Info("put leg already flat at broker, skipping close", "security_id", put)
		} else {
			leg := m.exec.Submit(ctx, types.SideSell.Opposite(), put, pos.Quantity, true)
			if !leg.FilledCompletely {
				reason := "short leg close failed"
				if leg.Reason != "" {
					reason = "short leg close failed: " + leg.Reason
				}
				logger.Warn("exit aborted before long leg", "reason", reason, "status", leg.Status)
				m.recorder.RecordSignal("EXIT", "aborted")
				return ExitResult{Reason: reason}, nil
			}
		}
	}

	call := pos.Contract.CallSecurityID
	if live.flat(call) {
		logger.Info("call leg already flat at broker, skipping close", "security_id", call)
	} else {
		leg := m.exec.Submit(ctx, types.SideBuy.Opposite(), call, pos.Quantity, true)
		if !leg.FilledCompletely {
			reason := "long leg close failed"
			if leg.Reason != "" {
				reason = "long leg close failed: " + leg.Reason
			}
			logger.Warn("exit incomplete, position retained", "reason", reason, "status", leg.Status)
			m.recorder.RecordSignal("EXIT", "aborted")
			return ExitResult{Reason: reason}, nil
		}
	}

	if err := m.store.Delete(ctx, systemID); err != nil {
		m.recorder.RecordStoreError()
		return ExitResult{Exited: true}, fmt.Errorf("%w: %v", types.ErrStatePersistence, err)
	}

	m.recorder.RecordSignal("EXIT", "exited")
	m.recorder.RecordPositionClosed(string(pos.Status))
	logger.Info("synthetic position exited", "underlying", pos.Underlying, "qty", pos.Quantity)
	return ExitResult{Exited: true}, nil
}

// Status returns the current position for systemID, or nil when absent.
func (m *Manager) Status(ctx context.Context, systemID string) (*types.SystemPosition, error) {
	return m.store.Get(ctx, systemID)
}

// livePositions is a snapshot of broker net quantities per security id.
// When the snapshot could not be fetched every leg is assumed exposed, so
// closing orders are still attempted.
type livePositions struct {
	known bool
	net   map[string]int
}

func (l livePositions) flat(securityID string) bool {
	if !l.known {
		return false
	}
	return l.net[securityID] == 0
}

func (m *Manager) livePositions(ctx context.Context, logger *slog.Logger) livePositions {
	positions, err := m.broker.GetPositions(ctx)
	if err != nil {
		logger.Warn("broker positions unavailable, assuming exposure on all legs", "error", err)
		return livePositions{}
	}

	net := make(map[string]int, len(positions))
	for _, p := range positions {
		net[p.SecurityID] = p.NetQty
	}
	return livePositions{known: true, net: net}
}
