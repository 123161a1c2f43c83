// Package paper provides a simulated broker for paper trading.
package paper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"synthbot/internal/broker"
	"synthbot/internal/types"
)

// Config holds paper broker configuration.
type Config struct {
	// FillAfterPolls delays the TRADED status until an order has been
	// polled this many times. Zero fills immediately.
	FillAfterPolls int

	// DefaultQuote is returned for instruments with no scripted quote.
	DefaultQuote types.LiquidityQuote
}

// DefaultConfig returns default paper broker config: deep book, tight spread.
func DefaultConfig() Config {
	return Config{
		DefaultQuote: types.LiquidityQuote{
			Bid: types.QuoteLevel{Price: decimal.NewFromFloat(100.0), Qty: 10000},
			Ask: types.QuoteLevel{Price: decimal.NewFromFloat(100.5), Qty: 10000},
		},
	}
}

type paperOrder struct {
	state broker.OrderState
	qty   int
	side  types.Side
	secID string
	polls int
}

// Broker implements broker.Broker, broker.QuoteProvider and
// broker.MarginEstimator in memory. Every knob is scriptable so the
// execution tests can stage rejections, timeouts and stale state.
type Broker struct {
	cfg    Config
	logger *slog.Logger

	nextOrderID atomic.Int64

	mu        sync.Mutex
	orders    map[string]*paperOrder
	positions map[string]int // securityID -> net qty
	quotes    map[string]types.LiquidityQuote
	margin    broker.MarginEstimate

	// Failure scripting
	failSubmits  int  // fail the next N submissions
	rejectFills  bool // submitted orders go REJECTED instead of TRADED
	neverFill    bool // submitted orders stay PLACED forever
	failQuotes   bool
	failMargin   bool
	failPosition bool
}

// NewBroker creates a new paper broker.
func NewBroker(cfg Config, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}

	b := &Broker{
		cfg:       cfg,
		logger:    logger,
		orders:    make(map[string]*paperOrder),
		positions: make(map[string]int),
		quotes:    make(map[string]types.LiquidityQuote),
		margin: broker.MarginEstimate{
			TotalMargin:      decimal.NewFromInt(100000),
			AvailableBalance: decimal.NewFromInt(1000000),
		},
	}
	b.nextOrderID.Store(1)
	return b
}

// PlaceOrder records the order and applies it to the simulated book.
func (b *Broker) PlaceOrder(ctx context.Context, req broker.OrderRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failSubmits > 0 {
		b.failSubmits--
		return "", fmt.Errorf("%w: simulated submit failure", broker.ErrSubmitFailed)
	}

	orderID := fmt.Sprintf("paper-%d", b.nextOrderID.Add(1))

	status := types.OrderStatusPlaced
	filled := 0
	switch {
	case b.rejectFills:
		status = types.OrderStatusRejected
	case b.neverFill || b.cfg.FillAfterPolls > 0:
		// Stays PLACED until polled enough (or forever).
	default:
		status = types.OrderStatusTraded
		filled = req.Qty
		b.applyFill(req)
	}

	b.orders[orderID] = &paperOrder{
		state: broker.OrderState{
			OrderID:   orderID,
			Status:    status,
			FilledQty: filled,
			AvgPrice:  b.quoteLocked(req.SecurityID).Ask.Price,
			UpdatedAt: time.Now(),
		},
		qty:   req.Qty,
		side:  req.Side,
		secID: req.SecurityID,
	}

	b.logger.Debug("paper order placed",
		"order_id", orderID,
		"security_id", req.SecurityID,
		"side", req.Side,
		"qty", req.Qty,
		"status", status,
	)

	return orderID, nil
}

// GetOrder returns order state, advancing delayed fills by one poll.
func (b *Broker) GetOrder(ctx context.Context, orderID string) (*broker.OrderState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.orders[orderID]
	if !ok {
		return nil, broker.ErrOrderNotFound
	}

	if o.state.Status == types.OrderStatusPlaced && !b.neverFill && b.cfg.FillAfterPolls > 0 {
		o.polls++
		if o.polls >= b.cfg.FillAfterPolls {
			o.state.Status = types.OrderStatusTraded
			o.state.FilledQty = o.qty
			o.state.UpdatedAt = time.Now()
			b.applyFill(broker.OrderRequest{SecurityID: o.secID, Side: o.side, Qty: o.qty})
		}
	}

	state := o.state
	return &state, nil
}

// GetPositions returns the simulated net position book.
func (b *Broker) GetPositions(ctx context.Context) ([]broker.NetPosition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failPosition {
		return nil, fmt.Errorf("simulated position book failure")
	}

	out := make([]broker.NetPosition, 0, len(b.positions))
	for secID, qty := range b.positions {
		if qty == 0 {
			continue
		}
		out = append(out, broker.NetPosition{SecurityID: secID, NetQty: qty})
	}
	return out, nil
}

// GetQuote returns the scripted quote for an instrument.
func (b *Broker) GetQuote(ctx context.Context, securityID string) (*types.LiquidityQuote, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failQuotes {
		return nil, broker.ErrQuoteUnavailable
	}

	q := b.quoteLocked(securityID)
	q.SecurityID = securityID
	q.FetchedAt = time.Now()
	return &q, nil
}

// EstimateMargin returns the scripted margin estimate.
func (b *Broker) EstimateMargin(ctx context.Context, req broker.MarginRequest) (*broker.MarginEstimate, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failMargin {
		return nil, fmt.Errorf("simulated margin estimator outage")
	}

	est := b.margin
	return &est, nil
}

func (b *Broker) quoteLocked(securityID string) types.LiquidityQuote {
	if q, ok := b.quotes[securityID]; ok {
		return q
	}
	return b.cfg.DefaultQuote
}

func (b *Broker) applyFill(req broker.OrderRequest) {
	if req.Side == types.SideBuy {
		b.positions[req.SecurityID] += req.Qty
	} else {
		b.positions[req.SecurityID] -= req.Qty
	}
}

// SetQuote scripts the top of book for an instrument.
func (b *Broker) SetQuote(securityID string, quote types.LiquidityQuote) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quotes[securityID] = quote
}

// SetMargin scripts the margin estimate.
func (b *Broker) SetMargin(est broker.MarginEstimate) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.margin = est
}

// SetPosition scripts the net position for an instrument.
func (b *Broker) SetPosition(securityID string, netQty int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positions[securityID] = netQty
}

// FailNextSubmits makes the next n PlaceOrder calls fail.
func (b *Broker) FailNextSubmits(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failSubmits = n
}

// RejectFills makes submitted orders terminate REJECTED.
func (b *Broker) RejectFills(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejectFills = v
}

// NeverFill leaves submitted orders PLACED forever so fill waits time out.
func (b *Broker) NeverFill(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.neverFill = v
}

// FailQuotes makes GetQuote return an error.
func (b *Broker) FailQuotes(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failQuotes = v
}

// FailMargin makes EstimateMargin return an error.
func (b *Broker) FailMargin(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failMargin = v
}

// FailPositions makes GetPositions return an error.
func (b *Broker) FailPositions(v bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failPosition = v
}

// Orders returns a copy of all recorded orders, in no particular order.
func (b *Broker) Orders() []broker.OrderState {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]broker.OrderState, 0, len(b.orders))
	for _, o := range b.orders {
		out = append(out, o.state)
	}
	return out
}

// Interface checks.
var (
	_ broker.Broker          = (*Broker)(nil)
	_ broker.QuoteProvider   = (*Broker)(nil)
	_ broker.MarginEstimator = (*Broker)(nil)
)
