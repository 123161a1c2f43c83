package engine

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"synthbot/internal/alerting"
	"synthbot/internal/broker/paper"
	"synthbot/internal/contracts"
	"synthbot/internal/execution"
	"synthbot/internal/persistence"
	"synthbot/internal/types"
)

var (
	expiryToday = time.Date(2025, 6, 26, 0, 0, 0, 0, time.UTC)
	expiryNext  = time.Date(2025, 7, 3, 0, 0, 0, 0, time.UTC)

	afterCutoff  = time.Date(2025, 6, 26, 15, 30, 0, 0, IST)
	beforeCutoff = time.Date(2025, 6, 26, 11, 0, 0, 0, IST)
)

type rolloverFixture struct {
	scheduler *RolloverScheduler
	manager   *Manager
	store     persistence.Store
	exec      *fakeExec
	broker    *paper.Broker
	resolver  *contracts.StaticResolver
	alerter   *alerting.MockAlerter
}

func newRolloverFixture(t *testing.T) *rolloverFixture {
	t.Helper()

	store, err := persistence.NewFileStore(filepath.Join(t.TempDir(), "positions.json"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	exec := newFakeExec()
	brk := paper.NewBroker(paper.DefaultConfig(), nil)
	mock := alerting.NewMockAlerter()
	manager := NewManager(store, exec, brk, mock, nil)

	resolver := contracts.NewStaticResolver()
	resolver.Add(types.Contract{
		Underlying:     "NIFTY",
		Expiry:         expiryToday,
		Strike:         decimal.NewFromInt(24800),
		CallSecurityID: "49081",
		PutSecurityID:  "49082",
	})
	resolver.Add(types.Contract{
		Underlying:     "NIFTY",
		Expiry:         expiryNext,
		Strike:         decimal.NewFromInt(24900),
		CallSecurityID: "50001",
		PutSecurityID:  "50002",
	})

	return &rolloverFixture{
		scheduler: NewRolloverScheduler(DefaultRolloverConfig(), store, manager, resolver, mock, nil),
		manager:   manager,
		store:     store,
		exec:      exec,
		broker:    brk,
		resolver:  resolver,
		alerter:   mock,
	}
}

// seedPosition stores an open position in the expiring contract and marks
// the broker as holding both legs.
func (f *rolloverFixture) seedPosition(t *testing.T, systemID string) {
	t.Helper()

	contract, err := f.resolver.ResolveATM(context.Background(), "NIFTY", expiryToday)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	pos := types.SystemPosition{
		SystemID:   systemID,
		Underlying: "NIFTY",
		Contract:   *contract,
		Quantity:   75,
		Status:     types.PositionOpen,
		EnteredAt:  time.Date(2025, 6, 20, 10, 0, 0, 0, IST),
	}
	if err := f.store.Put(context.Background(), pos); err != nil {
		t.Fatalf("seed position: %v", err)
	}
	f.broker.SetPosition(contract.CallSecurityID, 75)
	f.broker.SetPosition(contract.PutSecurityID, -75)
}

func TestRollover_BeforeCutoffIsNoOp(t *testing.T) {
	f := newRolloverFixture(t)
	f.seedPosition(t, "sys-1")

	summary, err := f.scheduler.Run(context.Background(), beforeCutoff)
	if !errors.Is(err, types.ErrBeforeCutoff) {
		t.Fatalf("Run() = %v, want ErrBeforeCutoff", err)
	}
	if summary.Attempted != 0 || len(summary.Outcomes) != 0 {
		t.Errorf("summary = %+v, want empty before cutoff", summary)
	}
	if len(f.exec.submissions()) != 0 {
		t.Error("no orders may be submitted before the cutoff")
	}
}

func TestRollover_RollsExpiringPosition(t *testing.T) {
	f := newRolloverFixture(t)
	f.seedPosition(t, "sys-1")

	summary, err := f.scheduler.Run(context.Background(), afterCutoff)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Attempted != 1 || summary.RolledOver != 1 {
		t.Fatalf("summary = %+v, want 1 attempted, 1 rolled", summary)
	}

	pos, err := f.store.Get(context.Background(), "sys-1")
	if err != nil || pos == nil {
		t.Fatalf("rolled position missing: %v", err)
	}
	if !pos.Contract.Expiry.Equal(expiryNext) {
		t.Errorf("expiry = %v, want %v", pos.Contract.Expiry, expiryNext)
	}
	if pos.Quantity != 75 {
		t.Errorf("qty = %d, want 75 carried over", pos.Quantity)
	}

	// Old contract closed put-first, new contract entered call-first.
	calls := f.exec.submissions()
	want := []string{"BUY:49082", "SELL:49081", "BUY:50001", "SELL:50002"}
	if len(calls) != len(want) {
		t.Fatalf("submissions = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Fatalf("submissions = %v, want %v", calls, want)
		}
	}
}

func TestRollover_SkipsNonExpiringPosition(t *testing.T) {
	f := newRolloverFixture(t)

	contract, _ := f.resolver.ResolveATM(context.Background(), "NIFTY", expiryNext)
	pos := types.SystemPosition{
		SystemID:   "sys-far",
		Underlying: "NIFTY",
		Contract:   *contract,
		Quantity:   75,
		Status:     types.PositionOpen,
		EnteredAt:  time.Now(),
	}
	if err := f.store.Put(context.Background(), pos); err != nil {
		t.Fatalf("seed: %v", err)
	}

	summary, err := f.scheduler.Run(context.Background(), afterCutoff)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Attempted != 0 {
		t.Errorf("attempted = %d, want 0", summary.Attempted)
	}
	if len(f.exec.submissions()) != 0 {
		t.Error("non-expiring position must not be touched")
	}
}

func TestRollover_ExitFailureSkipsReentry(t *testing.T) {
	f := newRolloverFixture(t)
	f.seedPosition(t, "sys-1")

	f.exec.script(types.SideBuy, "49082", execution.Result{
		Placed: true,
		Status: types.OrderStatusRejected,
		Reason: "rejected",
	})

	summary, err := f.scheduler.Run(context.Background(), afterCutoff)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.ExitFailures != 1 || summary.RolledOver != 0 {
		t.Fatalf("summary = %+v, want 1 exit failure", summary)
	}

	for _, call := range f.exec.submissions() {
		if call == "BUY:50001" || call == "SELL:50002" {
			t.Fatal("new contract entered despite failed exit")
		}
	}

	pos, _ := f.store.Get(context.Background(), "sys-1")
	if pos == nil {
		t.Fatal("position must be retained after a failed exit")
	}
	if !pos.Contract.Expiry.Equal(expiryToday) {
		t.Errorf("expiry = %v, want unchanged %v", pos.Contract.Expiry, expiryToday)
	}
}

func TestRollover_ReentryFailureFlagsManualIntervention(t *testing.T) {
	f := newRolloverFixture(t)
	f.seedPosition(t, "sys-1")

	// New long leg never fills.
	f.exec.script(types.SideBuy, "50001", execution.Result{
		Placed:  true,
		OrderID: "ord-50001",
		Status:  types.OrderStatusPlaced,
	})

	summary, err := f.scheduler.Run(context.Background(), afterCutoff)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.ReentryFailures != 1 {
		t.Fatalf("summary = %+v, want 1 re-entry failure", summary)
	}
	if len(summary.Outcomes) != 1 || !summary.Outcomes[0].ManualIntervention {
		t.Fatalf("outcomes = %+v, want manual intervention flagged", summary.Outcomes)
	}

	pos, _ := f.store.Get(context.Background(), "sys-1")
	if pos != nil {
		t.Errorf("store must be empty after exit without re-entry, got %+v", pos)
	}
	if !f.alerter.HasAlertWithSeverity(alerting.SeverityCritical) {
		t.Error("failed re-entry must raise a critical alert")
	}

	report := summary.Report()
	if report.Clean() {
		t.Error("report must not be clean")
	}
	if len(report.ManualIntervention) != 1 || report.ManualIntervention[0] != "sys-1" {
		t.Errorf("report manual list = %v", report.ManualIntervention)
	}
}

func TestRollover_NoNextExpiry(t *testing.T) {
	f := newRolloverFixture(t)

	// Only the expiring contract is known; nothing to roll into.
	resolver := contracts.NewStaticResolver()
	contract, _ := f.resolver.ResolveATM(context.Background(), "NIFTY", expiryToday)
	resolver.Add(*contract)
	f.scheduler = NewRolloverScheduler(DefaultRolloverConfig(), f.store, f.manager, resolver, f.alerter, nil)
	f.seedPosition(t, "sys-1")

	summary, err := f.scheduler.Run(context.Background(), afterCutoff)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.ReentryFailures != 1 {
		t.Fatalf("summary = %+v, want 1 re-entry failure", summary)
	}
	if !summary.Outcomes[0].ManualIntervention {
		t.Error("unresolvable next contract must flag manual intervention")
	}
}

func TestRollover_MultipleSystems(t *testing.T) {
	f := newRolloverFixture(t)
	f.seedPosition(t, "sys-1")
	f.seedPosition(t, "sys-2")
	f.seedPosition(t, "sys-3")

	summary, err := f.scheduler.Run(context.Background(), afterCutoff)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Attempted != 3 || summary.RolledOver != 3 {
		t.Fatalf("summary = %+v, want 3 rolled", summary)
	}

	all, _ := f.store.All(context.Background())
	for id, pos := range all {
		if !pos.Contract.Expiry.Equal(expiryNext) {
			t.Errorf("%s expiry = %v, want %v", id, pos.Contract.Expiry, expiryNext)
		}
	}
}
