// Package execution provides single-leg order execution with pre-trade
// gating and fill confirmation.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"synthbot/internal/broker"
	"synthbot/internal/metrics"
	"synthbot/internal/risk"
	"synthbot/internal/types"
)

// Config holds executor timing settings.
type Config struct {
	// LiquidityRetryBackoff is the fixed wait before the single re-check
	// after a soft liquidity rejection.
	LiquidityRetryBackoff time.Duration

	// PollInterval is the order-status polling cadence.
	PollInterval time.Duration

	// MaxFillWait bounds how long a waitForFill submission blocks.
	MaxFillWait time.Duration
}

// DefaultConfig returns the standard executor timings.
func DefaultConfig() Config {
	return Config{
		LiquidityRetryBackoff: 5 * time.Second,
		PollInterval:          1 * time.Second,
		MaxFillWait:           20 * time.Second,
	}
}

// Result is the outcome of one leg submission.
type Result struct {
	// Placed is true once the broker accepted the submission.
	Placed bool

	// FilledCompletely is true only when the order reached TRADED with the
	// full requested quantity. Meaningless when the caller did not wait.
	FilledCompletely bool

	OrderID string
	Status  types.OrderStatus
	Reason  string

	// Err classifies a failed submission with the matching sentinel
	// (types.ErrLiquidityRejected, ErrMarginRejected, ErrOrderNotPlaced,
	// ErrOrderRejected, ErrFillTimeout). Nil on success.
	Err error
}

// Executor submits one leg at a time: liquidity gate, margin gate, broker
// submission, then optional fill confirmation.
type Executor struct {
	cfg       Config
	broker    broker.Broker
	liquidity *risk.LiquidityGate
	margin    *risk.MarginGate
	observer  FillObserver
	logger    *slog.Logger
	recorder  *metrics.Recorder
}

// NewExecutor creates an order executor. When observer is nil a polling
// observer over the broker is used.
func NewExecutor(
	cfg Config,
	brk broker.Broker,
	liquidity *risk.LiquidityGate,
	margin *risk.MarginGate,
	observer FillObserver,
	logger *slog.Logger,
) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = NewPollingObserver(brk, cfg.PollInterval, cfg.MaxFillWait)
	}

	return &Executor{
		cfg:       cfg,
		broker:    brk,
		liquidity: liquidity,
		margin:    margin,
		observer:  observer,
		logger:    logger,
		recorder:  metrics.NewRecorder(),
	}
}

// Submit runs the full single-leg sequence for securityID. With waitForFill
// the call blocks until the order terminates or the wait window expires;
// without it the call returns as soon as the broker accepts the submission.
func (e *Executor) Submit(ctx context.Context, side types.Side, securityID string, qty int, waitForFill bool) Result {
	correlationID := uuid.NewString()
	logger := e.logger.With(
		"correlation_id", correlationID,
		"security_id", securityID,
		"side", side,
		"qty", qty,
	)

	liq, ok := e.checkLiquidity(ctx, logger, securityID, qty)
	if !ok {
		e.recorder.RecordGateRejection("liquidity")
		return Result{
			Reason: fmt.Sprintf("liquidity rejected: %s", liq.Reason),
			Err:    fmt.Errorf("%w: %s", types.ErrLiquidityRejected, liq.Reason),
		}
	}

	if ref := referencePrice(side, liq.Quote); ref.IsPositive() {
		mres := e.margin.Check(ctx, broker.MarginRequest{
			SecurityID:     securityID,
			Side:           side,
			Qty:            qty,
			ReferencePrice: ref,
		})
		if !mres.OK {
			logger.Warn("margin rejected", "reason", mres.Reason)
			e.recorder.RecordGateRejection("margin")
			return Result{
				Reason: fmt.Sprintf("margin rejected: %s", mres.Reason),
				Err:    fmt.Errorf("%w: %s", types.ErrMarginRejected, mres.Reason),
			}
		}
	}

	timer := metrics.NewTimer()
	orderID, err := e.broker.PlaceOrder(ctx, broker.OrderRequest{
		CorrelationID: correlationID,
		SecurityID:    securityID,
		Side:          side,
		Qty:           qty,
	})
	timer.ObserveOrderSubmit()

	if err != nil {
		logger.Error("order submission failed", "err", err)
		e.recorder.RecordOrder(side.String(), "submit_failed")
		return Result{
			Reason: fmt.Sprintf("submit failed: %v", err),
			Err:    fmt.Errorf("%w: %v", types.ErrOrderNotPlaced, err),
		}
	}

	logger.Info("order placed", "order_id", orderID, "wait_for_fill", waitForFill)
	e.recorder.RecordOrder(side.String(), "placed")

	if !waitForFill {
		return Result{Placed: true, OrderID: orderID, Status: types.OrderStatusPlaced}
	}

	waitTimer := metrics.NewTimer()
	state, err := e.observer.WaitForFill(ctx, orderID)
	waitTimer.ObserveFillWait()

	if state == nil {
		logger.Error("no order state observed within wait window", "order_id", orderID, "err", err)
		e.recorder.RecordOrder(side.String(), "fill_unknown")
		return Result{
			Placed:  true,
			OrderID: orderID,
			Status:  types.OrderStatusPending,
			Reason:  "fill confirmation unavailable",
			Err:     fmt.Errorf("%w: no order state observed", types.ErrFillTimeout),
		}
	}

	filled := state.Status == types.OrderStatusTraded && state.FilledQty == qty
	result := Result{
		Placed:           true,
		FilledCompletely: filled,
		OrderID:          orderID,
		Status:           state.Status,
	}

	if filled {
		logger.Info("order filled", "order_id", orderID, "avg_price", state.AvgPrice)
		e.recorder.RecordOrder(side.String(), "filled")
	} else {
		result.Reason = fmt.Sprintf("not filled: status %s, filled %d/%d", state.Status, state.FilledQty, qty)
		if state.Status == types.OrderStatusRejected {
			result.Err = fmt.Errorf("%w: %s", types.ErrOrderRejected, result.Reason)
		} else {
			result.Err = fmt.Errorf("%w: %s", types.ErrFillTimeout, result.Reason)
		}
		logger.Warn("order not completely filled",
			"order_id", orderID,
			"status", state.Status,
			"filled_qty", state.FilledQty,
		)
		e.recorder.RecordOrder(side.String(), "unfilled")
	}

	return result
}

// checkLiquidity runs the gate, with exactly one backoff-then-recheck for
// soft rejections.
func (e *Executor) checkLiquidity(ctx context.Context, logger *slog.Logger, securityID string, qty int) (risk.LiquidityResult, bool) {
	res := e.liquidity.Check(ctx, securityID, qty)
	if res.OK {
		return res, true
	}
	if !res.Retryable {
		logger.Warn("liquidity rejected", "reason", res.Reason)
		return res, false
	}

	logger.Info("liquidity soft-rejected, retrying once",
		"reason", res.Reason,
		"backoff", e.cfg.LiquidityRetryBackoff,
	)

	select {
	case <-ctx.Done():
		return res, false
	case <-time.After(e.cfg.LiquidityRetryBackoff):
	}

	res = e.liquidity.Check(ctx, securityID, qty)
	if !res.OK {
		logger.Warn("liquidity rejected after retry", "reason", res.Reason)
	}
	return res, res.OK
}

// referencePrice picks the side of the book an estimated market order would
// hit: ask for BUY, bid for SELL.
func referencePrice(side types.Side, quote *types.LiquidityQuote) decimal.Decimal {
	if quote == nil {
		return decimal.Zero
	}
	if side == types.SideBuy {
		return quote.Ask.Price
	}
	return quote.Bid.Price
}
