// Package types defines shared types used across the execution engine.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side represents the direction of an order.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideSell {
		return "SELL"
	}
	return "BUY"
}

// Opposite returns the opposite side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderStatus represents the broker-side state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusPlaced     OrderStatus = "PLACED"
	OrderStatusPartTraded OrderStatus = "PART_TRADED"
	OrderStatusTraded     OrderStatus = "TRADED"
	OrderStatusRejected   OrderStatus = "REJECTED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
	OrderStatusExpired    OrderStatus = "EXPIRED"
)

// IsFinal returns true if the order is in a terminal state.
func (s OrderStatus) IsFinal() bool {
	switch s {
	case OrderStatusTraded, OrderStatusPartTraded, OrderStatusRejected,
		OrderStatusCancelled, OrderStatusExpired:
		return true
	default:
		return false
	}
}

// PositionStatus represents the lifecycle state of a synthetic position.
type PositionStatus string

const (
	// PositionOpen means both legs were accepted by the broker.
	PositionOpen PositionStatus = "OPEN"
	// PositionPartialOpen means the long leg filled but the short leg was
	// never placed. The account carries a naked long option.
	PositionPartialOpen PositionStatus = "PARTIAL_OPEN"
	// PositionClosed means both legs are flat.
	PositionClosed PositionStatus = "CLOSED"
)

// Contract identifies one synthetic pair: a call and a put at the same
// strike and expiry. Immutable once resolved.
type Contract struct {
	Underlying     string          `json:"underlying"`
	Expiry         time.Time       `json:"expiry"`
	Strike         decimal.Decimal `json:"strike"`
	CallSecurityID string          `json:"call_security_id"`
	PutSecurityID  string          `json:"put_security_id"`
}

// ExpiresOn reports whether the contract expires on the calendar date of t.
func (c Contract) ExpiresOn(t time.Time) bool {
	y1, m1, d1 := c.Expiry.Date()
	y2, m2, d2 := t.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// SystemPosition is the persisted unit of state: one synthetic position
// owned by one trading system.
type SystemPosition struct {
	SystemID   string         `json:"system_id"`
	Underlying string         `json:"underlying"`
	Contract   Contract       `json:"contract"`
	Quantity   int            `json:"quantity"`
	Status     PositionStatus `json:"status"`
	EnteredAt  time.Time      `json:"entered_at"`
	// Warning is set when the position needs operator attention,
	// e.g. a naked long leg after a failed short-leg placement.
	Warning string `json:"warning,omitempty"`
}

// QuoteLevel is one side of the top of book.
type QuoteLevel struct {
	Price decimal.Decimal
	Qty   int
}

// Valid reports whether the level carries a usable price.
func (l QuoteLevel) Valid() bool {
	return l.Price.IsPositive()
}

// LiquidityQuote is a top-of-book snapshot for one instrument.
type LiquidityQuote struct {
	SecurityID string
	Bid        QuoteLevel
	Ask        QuoteLevel
	FetchedAt  time.Time
}

// Spread returns ask price minus bid price.
func (q LiquidityQuote) Spread() decimal.Decimal {
	return q.Ask.Price.Sub(q.Bid.Price)
}

// SignalAction enumerates the accepted inbound actions.
type SignalAction string

const (
	SignalBuy   SignalAction = "BUY"
	SignalSell  SignalAction = "SELL"
	SignalExit  SignalAction = "EXIT"
	SignalCheck SignalAction = "CHECK"
)

// ParseSignalAction maps a raw string to a SignalAction.
func ParseSignalAction(raw string) (SignalAction, bool) {
	switch SignalAction(raw) {
	case SignalBuy, SignalSell, SignalExit, SignalCheck:
		return SignalAction(raw), true
	default:
		return "", false
	}
}

// Signal is a decoded inbound trading signal.
type Signal struct {
	Action     SignalAction
	SystemID   string
	Underlying string
	Qty        int
	ReceivedAt time.Time
}

// DefaultLotSize is the NIFTY option lot size.
const DefaultLotSize = 75

// ValidLotQty reports whether qty is a positive multiple of lotSize.
func ValidLotQty(qty, lotSize int) bool {
	if lotSize <= 0 {
		return false
	}
	return qty > 0 && qty%lotSize == 0
}
