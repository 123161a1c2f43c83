package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"synthbot/internal/alerting"
	"synthbot/internal/contracts"
	"synthbot/internal/metrics"
	"synthbot/internal/persistence"
	"synthbot/internal/types"
)

// IST is the exchange timezone. The rollover cutoff is evaluated against it
// regardless of the host clock's zone.
var IST = time.FixedZone("IST", 5*3600+30*60)

// RolloverConfig holds rollover scheduling settings.
type RolloverConfig struct {
	// CutoffHour and CutoffMinute define the earliest time of day, in
	// IST, at which a rollover sweep may act.
	CutoffHour   int
	CutoffMinute int

	// MaxConcurrent bounds how many positions roll in parallel.
	MaxConcurrent int
}

// DefaultRolloverConfig returns the standard 15:00 IST cutoff.
func DefaultRolloverConfig() RolloverConfig {
	return RolloverConfig{
		CutoffHour:    15,
		CutoffMinute:  0,
		MaxConcurrent: 4,
	}
}

// RolloverOutcome records what happened to one expiring position.
type RolloverOutcome struct {
	SystemID   string
	Underlying string
	Exited     bool
	Entered    bool
	// ManualIntervention is set when the old position was closed but no
	// new one exists, so the account is flat with no automatic re-entry.
	ManualIntervention bool
	Reason             string
}

// RolloverSummary aggregates one sweep.
type RolloverSummary struct {
	RunAt           time.Time
	Attempted       int
	RolledOver      int
	ExitFailures    int
	ReentryFailures int
	Outcomes        []RolloverOutcome
}

// Report converts the summary into the operator digest form.
func (s RolloverSummary) Report() alerting.RolloverReport {
	var manual []string
	for _, o := range s.Outcomes {
		if o.ManualIntervention {
			manual = append(manual, o.SystemID)
		}
	}
	return alerting.NewRolloverReport(s.RunAt, s.Attempted, s.RolledOver,
		s.ExitFailures, s.ReentryFailures, manual)
}

// RolloverScheduler sweeps stored positions whose contract expires today and
// rolls each into the next expiry: exit the old contract first, and only
// enter the new one when the exit succeeded.
type RolloverScheduler struct {
	cfg      RolloverConfig
	store    persistence.Store
	manager  *Manager
	resolver contracts.Resolver
	alerter  alerting.Alerter
	logger   *slog.Logger
	recorder *metrics.Recorder
}

// NewRolloverScheduler creates a rollover scheduler.
func NewRolloverScheduler(
	cfg RolloverConfig,
	store persistence.Store,
	manager *Manager,
	resolver contracts.Resolver,
	alerter alerting.Alerter,
	logger *slog.Logger,
) *RolloverScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if alerter == nil {
		alerter = alerting.NewConsoleAlerter(logger)
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}

	return &RolloverScheduler{
		cfg:      cfg,
		store:    store,
		manager:  manager,
		resolver: resolver,
		alerter:  alerter,
		logger:   logger,
		recorder: metrics.NewRecorder(),
	}
}

// Run performs one sweep at the given wall time. Before the cutoff no
// position is touched and the empty summary carries types.ErrBeforeCutoff.
// Positions expiring on a later date are left alone.
func (s *RolloverScheduler) Run(ctx context.Context, now time.Time) (RolloverSummary, error) {
	ist := now.In(IST)
	summary := RolloverSummary{RunAt: ist}

	cutoff := time.Date(ist.Year(), ist.Month(), ist.Day(),
		s.cfg.CutoffHour, s.cfg.CutoffMinute, 0, 0, IST)
	if ist.Before(cutoff) {
		s.logger.Info("rollover skipped, before cutoff",
			"now", ist.Format("15:04"),
			"cutoff", cutoff.Format("15:04"),
		)
		return summary, fmt.Errorf("%w: now %s, cutoff %s",
			types.ErrBeforeCutoff, ist.Format("15:04"), cutoff.Format("15:04"))
	}

	all, err := s.store.All(ctx)
	if err != nil {
		return summary, fmt.Errorf("list positions: %w", err)
	}

	var expiring []string
	for id, pos := range all {
		if pos.Contract.ExpiresOn(ist) {
			expiring = append(expiring, id)
		}
	}
	sort.Strings(expiring)

	if len(expiring) == 0 {
		s.logger.Info("rollover sweep found no expiring positions", "stored", len(all))
		return summary, nil
	}

	summary.Attempted = len(expiring)
	s.logger.Info("rollover sweep starting",
		"expiring", len(expiring),
		"date", ist.Format("2006-01-02"),
	)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxConcurrent)

	for _, id := range expiring {
		pos := all[id]
		g.Go(func() error {
			outcome := s.rollOne(gctx, pos.SystemID, pos.Underlying, pos.Quantity, ist)

			mu.Lock()
			defer mu.Unlock()
			summary.Outcomes = append(summary.Outcomes, outcome)
			switch {
			case outcome.Entered:
				summary.RolledOver++
				s.recorder.RecordRollover("rolled")
			case !outcome.Exited:
				summary.ExitFailures++
				s.recorder.RecordRollover("exit_failed")
			default:
				summary.ReentryFailures++
				s.recorder.RecordRollover("reentry_failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(summary.Outcomes, func(i, j int) bool {
		return summary.Outcomes[i].SystemID < summary.Outcomes[j].SystemID
	})
	return summary, nil
}

// rollOne rolls a single system: exit old, resolve next contract, enter new.
func (s *RolloverScheduler) rollOne(ctx context.Context, systemID, underlying string, qty int, now time.Time) RolloverOutcome {
	outcome := RolloverOutcome{SystemID: systemID, Underlying: underlying}
	logger := s.logger.With("system_id", systemID, "underlying", underlying)

	exit, err := s.manager.Exit(ctx, systemID)
	if err != nil || !exit.Exited {
		reason := exit.Reason
		if err != nil {
			reason = err.Error()
		}
		outcome.Reason = "exit failed: " + reason
		logger.Warn("rollover exit failed, position retained", "reason", reason)
		s.alertf(ctx, alerting.SeverityHigh, "Rollover could not close expiring position",
			"system_id", systemID, "reason", reason)
		return outcome
	}
	outcome.Exited = true

	contract, err := s.nextContract(ctx, underlying, now)
	if err != nil {
		outcome.ManualIntervention = true
		outcome.Reason = "next contract unresolved: " + err.Error()
		logger.Error("rollover re-entry impossible, account left flat", "error", err)
		s.alertf(ctx, alerting.SeverityCritical,
			"Rollover exited but could not resolve the next contract, manual re-entry required",
			"system_id", systemID, "underlying", underlying, "error", err.Error())
		return outcome
	}

	enter, err := s.manager.Enter(ctx, systemID, *contract, qty)
	if err != nil || !enter.Entered {
		reason := enter.Reason
		if err != nil {
			reason = err.Error()
		}
		outcome.ManualIntervention = true
		outcome.Reason = "re-entry failed: " + reason
		logger.Error("rollover re-entry failed, account left flat", "reason", reason)
		s.alertf(ctx, alerting.SeverityCritical,
			"Rollover exited but re-entry failed, manual intervention required",
			"system_id", systemID,
			"underlying", underlying,
			"expiry", contract.Expiry.Format("2006-01-02"),
			"reason", reason)
		return outcome
	}

	outcome.Entered = true
	if enter.Partial {
		outcome.Reason = "rolled with naked long leg: " + enter.Reason
	}
	logger.Info("position rolled over",
		"expiry", contract.Expiry.Format("2006-01-02"),
		"strike", contract.Strike,
		"partial", enter.Partial,
	)
	return outcome
}

// nextContract resolves the ATM pair at the earliest expiry after today.
func (s *RolloverScheduler) nextContract(ctx context.Context, underlying string, now time.Time) (*types.Contract, error) {
	expiries, err := s.resolver.ListExpiries(ctx, underlying)
	if err != nil {
		return nil, fmt.Errorf("list expiries: %w", err)
	}
	next, ok := contracts.NextExpiryAfter(expiries, now)
	if !ok {
		return nil, fmt.Errorf("no expiry after %s", now.Format("2006-01-02"))
	}
	contract, err := s.resolver.ResolveATM(ctx, underlying, next)
	if err != nil {
		return nil, fmt.Errorf("resolve ATM: %w", err)
	}
	return contract, nil
}

func (s *RolloverScheduler) alertf(ctx context.Context, severity alerting.Severity, message string, fields ...any) {
	if err := s.alerter.Alert(ctx, severity, message, fields...); err != nil {
		s.logger.Warn("rollover alert failed", "error", err)
	}
}
