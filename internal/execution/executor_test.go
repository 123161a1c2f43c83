package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"synthbot/internal/broker"
	"synthbot/internal/broker/paper"
	"synthbot/internal/risk"
	"synthbot/internal/types"
)

func fastConfig() Config {
	return Config{
		LiquidityRetryBackoff: 10 * time.Millisecond,
		PollInterval:          5 * time.Millisecond,
		MaxFillWait:           100 * time.Millisecond,
	}
}

func newTestExecutor(t *testing.T, brk *paper.Broker, marginOn bool) *Executor {
	t.Helper()

	liquidity := risk.NewLiquidityGate(risk.DefaultLiquidityConfig(), brk, nil)
	margin := risk.NewMarginGate(risk.MarginConfig{Enabled: marginOn}, brk, nil)
	return NewExecutor(fastConfig(), brk, liquidity, margin, nil, nil)
}

func TestExecutor_SubmitAndFill(t *testing.T) {
	brk := paper.NewBroker(paper.DefaultConfig(), nil)
	exec := newTestExecutor(t, brk, false)

	res := exec.Submit(context.Background(), types.SideBuy, "49081", 75, true)

	if !res.Placed {
		t.Fatalf("not placed: %s", res.Reason)
	}
	if !res.FilledCompletely {
		t.Errorf("not filled: %s", res.Reason)
	}
	if res.Status != types.OrderStatusTraded {
		t.Errorf("status = %s, want TRADED", res.Status)
	}
	if res.OrderID == "" {
		t.Error("missing order id")
	}
}

func TestExecutor_HardLiquidityRejectNeverSubmits(t *testing.T) {
	brk := paper.NewBroker(paper.DefaultConfig(), nil)
	brk.SetQuote("49081", types.LiquidityQuote{}) // no bid, no ask
	exec := newTestExecutor(t, brk, false)

	res := exec.Submit(context.Background(), types.SideBuy, "49081", 75, true)

	if res.Placed {
		t.Error("hard liquidity reject must not place an order")
	}
	if len(brk.Orders()) != 0 {
		t.Errorf("broker received %d orders, want 0", len(brk.Orders()))
	}
	if !errors.Is(res.Err, types.ErrLiquidityRejected) {
		t.Errorf("Err = %v, want ErrLiquidityRejected", res.Err)
	}
}

func TestExecutor_SoftRejectRetriesOnceThenAborts(t *testing.T) {
	brk := paper.NewBroker(paper.DefaultConfig(), nil)
	// Spread 10 with max 5: soft reject on both checks.
	brk.SetQuote("49081", types.LiquidityQuote{
		Bid: types.QuoteLevel{Price: decimal.NewFromInt(100), Qty: 500},
		Ask: types.QuoteLevel{Price: decimal.NewFromInt(110), Qty: 500},
	})
	exec := newTestExecutor(t, brk, false)

	res := exec.Submit(context.Background(), types.SideBuy, "49081", 75, true)

	if res.Placed {
		t.Error("persistent wide spread must abort the order")
	}
	if len(brk.Orders()) != 0 {
		t.Errorf("broker received %d orders, want 0", len(brk.Orders()))
	}
}

// seqQuotes serves a different quote per call, for retry paths.
type seqQuotes struct {
	quotes []types.LiquidityQuote
	calls  int
}

func (s *seqQuotes) GetQuote(ctx context.Context, securityID string) (*types.LiquidityQuote, error) {
	i := s.calls
	if i >= len(s.quotes) {
		i = len(s.quotes) - 1
	}
	s.calls++
	q := s.quotes[i]
	return &q, nil
}

func TestExecutor_SoftRejectThenRecovers(t *testing.T) {
	brk := paper.NewBroker(paper.DefaultConfig(), nil)
	thin := types.LiquidityQuote{
		Bid: types.QuoteLevel{Price: decimal.NewFromInt(100), Qty: 10},
		Ask: types.QuoteLevel{Price: decimal.NewFromInt(101), Qty: 10},
	}
	deep := types.LiquidityQuote{
		Bid: types.QuoteLevel{Price: decimal.NewFromInt(100), Qty: 500},
		Ask: types.QuoteLevel{Price: decimal.NewFromInt(101), Qty: 500},
	}
	quotes := &seqQuotes{quotes: []types.LiquidityQuote{thin, deep}}

	liquidity := risk.NewLiquidityGate(risk.DefaultLiquidityConfig(), quotes, nil)
	margin := risk.NewMarginGate(risk.MarginConfig{}, brk, nil)
	exec := NewExecutor(fastConfig(), brk, liquidity, margin, nil, nil)

	res := exec.Submit(context.Background(), types.SideBuy, "49081", 75, true)

	if !res.Placed {
		t.Fatalf("recovered liquidity should place: %s", res.Reason)
	}
	if quotes.calls != 2 {
		t.Errorf("quote checks = %d, want 2", quotes.calls)
	}
}

func TestExecutor_MarginReject(t *testing.T) {
	brk := paper.NewBroker(paper.DefaultConfig(), nil)
	brk.SetMargin(broker.MarginEstimate{
		TotalMargin:      decimal.NewFromInt(500000),
		AvailableBalance: decimal.NewFromInt(1000),
	})
	exec := newTestExecutor(t, brk, true)

	res := exec.Submit(context.Background(), types.SideSell, "49082", 75, true)

	if res.Placed {
		t.Error("margin reject must not place an order")
	}
	if len(brk.Orders()) != 0 {
		t.Errorf("broker received %d orders, want 0", len(brk.Orders()))
	}
	if !errors.Is(res.Err, types.ErrMarginRejected) {
		t.Errorf("Err = %v, want ErrMarginRejected", res.Err)
	}
}

func TestExecutor_SubmitFailure(t *testing.T) {
	brk := paper.NewBroker(paper.DefaultConfig(), nil)
	brk.FailNextSubmits(1)
	exec := newTestExecutor(t, brk, false)

	res := exec.Submit(context.Background(), types.SideBuy, "49081", 75, true)

	if res.Placed {
		t.Error("broker submit failure must report not placed")
	}
	if !errors.Is(res.Err, types.ErrOrderNotPlaced) {
		t.Errorf("Err = %v, want ErrOrderNotPlaced", res.Err)
	}
}

func TestExecutor_NoWaitReturnsPlaced(t *testing.T) {
	brk := paper.NewBroker(paper.DefaultConfig(), nil)
	brk.NeverFill(true)
	exec := newTestExecutor(t, brk, false)

	start := time.Now()
	res := exec.Submit(context.Background(), types.SideSell, "49082", 75, false)

	if !res.Placed {
		t.Fatalf("not placed: %s", res.Reason)
	}
	if res.Status != types.OrderStatusPlaced {
		t.Errorf("status = %s, want PLACED", res.Status)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Error("no-wait submission should return immediately")
	}
}

func TestExecutor_FillTimeout(t *testing.T) {
	brk := paper.NewBroker(paper.DefaultConfig(), nil)
	brk.NeverFill(true)
	exec := newTestExecutor(t, brk, false)

	res := exec.Submit(context.Background(), types.SideBuy, "49081", 75, true)

	if !res.Placed {
		t.Fatalf("order was submitted, must report placed: %s", res.Reason)
	}
	if res.FilledCompletely {
		t.Error("unfilled order must not report complete fill")
	}
	if res.Status.IsFinal() {
		t.Errorf("status = %s, expected non-terminal at timeout", res.Status)
	}
	if !errors.Is(res.Err, types.ErrFillTimeout) {
		t.Errorf("Err = %v, want ErrFillTimeout", res.Err)
	}
}

func TestExecutor_RejectedOrder(t *testing.T) {
	brk := paper.NewBroker(paper.DefaultConfig(), nil)
	brk.RejectFills(true)
	exec := newTestExecutor(t, brk, false)

	res := exec.Submit(context.Background(), types.SideBuy, "49081", 75, true)

	if !res.Placed {
		t.Fatal("rejected-after-submit still counts as placed")
	}
	if res.FilledCompletely {
		t.Error("rejected order must not report filled")
	}
	if res.Status != types.OrderStatusRejected {
		t.Errorf("status = %s, want REJECTED", res.Status)
	}
	if !errors.Is(res.Err, types.ErrOrderRejected) {
		t.Errorf("Err = %v, want ErrOrderRejected", res.Err)
	}
}

func TestPollingObserver_DelayedFill(t *testing.T) {
	cfg := paper.DefaultConfig()
	cfg.FillAfterPolls = 3
	brk := paper.NewBroker(cfg, nil)

	orderID, err := brk.PlaceOrder(context.Background(), broker.OrderRequest{
		SecurityID: "49081", Side: types.SideBuy, Qty: 75,
	})
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	obs := NewPollingObserver(brk, 5*time.Millisecond, time.Second)
	state, err := obs.WaitForFill(context.Background(), orderID)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if state.Status != types.OrderStatusTraded {
		t.Errorf("status = %s, want TRADED", state.Status)
	}
}
