// Package broker provides brokerage connectivity for order execution.
package broker

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"synthbot/internal/types"
)

// Common broker errors.
var (
	ErrSubmitFailed     = errors.New("order submission failed")
	ErrOrderNotFound    = errors.New("order not found")
	ErrQuoteUnavailable = errors.New("quote unavailable")
	ErrRateLimited      = errors.New("rate limited by broker")
)

// OrderRequest is a single-leg order submission.
type OrderRequest struct {
	CorrelationID string // engine-generated id for log/audit correlation
	SecurityID    string
	Side          types.Side
	Qty           int
}

// OrderState is the broker's view of a submitted order.
type OrderState struct {
	OrderID   string
	Status    types.OrderStatus
	FilledQty int
	AvgPrice  decimal.Decimal
	UpdatedAt time.Time
}

// NetPosition is one line of the broker's live position book.
type NetPosition struct {
	SecurityID string
	NetQty     int
}

// MarginRequest asks the broker to estimate the margin for an order.
type MarginRequest struct {
	SecurityID     string
	Side           types.Side
	Qty            int
	ReferencePrice decimal.Decimal
}

// MarginEstimate is the broker's margin calculation result.
type MarginEstimate struct {
	TotalMargin         decimal.Decimal
	AvailableBalance    decimal.Decimal
	InsufficientBalance decimal.Decimal
}

// Broker is the order-management collaborator. One implementation talks to
// the live brokerage REST API, another simulates fills for paper trading.
type Broker interface {
	// PlaceOrder submits an order and returns the broker order id.
	PlaceOrder(ctx context.Context, req OrderRequest) (string, error)

	// GetOrder returns the current state of a submitted order.
	GetOrder(ctx context.Context, orderID string) (*OrderState, error)

	// GetPositions returns the live net position book.
	GetPositions(ctx context.Context) ([]NetPosition, error)
}

// QuoteProvider is the market-data collaborator: top of book for one
// instrument.
type QuoteProvider interface {
	GetQuote(ctx context.Context, securityID string) (*types.LiquidityQuote, error)
}

// MarginEstimator is the margin collaborator.
type MarginEstimator interface {
	EstimateMargin(ctx context.Context, req MarginRequest) (*MarginEstimate, error)
}
