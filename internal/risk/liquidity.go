// Package risk provides the pre-trade gates: top-of-book liquidity and
// margin sufficiency.
package risk

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"synthbot/internal/broker"
	"synthbot/internal/types"
)

// LiquidityConfig holds liquidity gate thresholds.
type LiquidityConfig struct {
	// MinQtyMultiplier requires both sides of the book to show at least
	// qty * multiplier resting quantity.
	MinQtyMultiplier int

	// MaxSpreadPoints is the widest acceptable ask-bid spread.
	MaxSpreadPoints decimal.Decimal
}

// DefaultLiquidityConfig returns the standard thresholds.
func DefaultLiquidityConfig() LiquidityConfig {
	return LiquidityConfig{
		MinQtyMultiplier: 1,
		MaxSpreadPoints:  decimal.NewFromInt(5),
	}
}

// LiquidityResult is the outcome of one liquidity check.
type LiquidityResult struct {
	OK     bool
	Reason string
	// Retryable marks soft rejections (thin book, wide spread) that are
	// worth exactly one re-check. Missing or invalid quotes are hard
	// no-liquidity signals and are never retried.
	Retryable bool
	Quote     *types.LiquidityQuote
}

// LiquidityGate checks top-of-book depth and spread before an order.
type LiquidityGate struct {
	cfg    LiquidityConfig
	quotes broker.QuoteProvider
	logger *slog.Logger
}

// NewLiquidityGate creates a liquidity gate over a quote provider.
func NewLiquidityGate(cfg LiquidityConfig, quotes broker.QuoteProvider, logger *slog.Logger) *LiquidityGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &LiquidityGate{cfg: cfg, quotes: quotes, logger: logger}
}

// Check fetches the top of book for securityID and accepts iff both sides
// carry enough quantity and the spread is within bounds.
func (g *LiquidityGate) Check(ctx context.Context, securityID string, qty int) LiquidityResult {
	quote, err := g.quotes.GetQuote(ctx, securityID)
	if err != nil {
		g.logger.Warn("quote fetch failed", "security_id", securityID, "err", err)
		return LiquidityResult{Reason: fmt.Sprintf("quote unavailable: %v", err)}
	}

	if !quote.Bid.Valid() || !quote.Ask.Valid() {
		return LiquidityResult{
			Reason: "missing or invalid bid/ask",
			Quote:  quote,
		}
	}

	required := qty * g.cfg.MinQtyMultiplier
	if quote.Bid.Qty < required || quote.Ask.Qty < required {
		return LiquidityResult{
			Reason: fmt.Sprintf("thin book: bid qty %d, ask qty %d, need %d",
				quote.Bid.Qty, quote.Ask.Qty, required),
			Retryable: true,
			Quote:     quote,
		}
	}

	if spread := quote.Spread(); spread.GreaterThan(g.cfg.MaxSpreadPoints) {
		return LiquidityResult{
			Reason: fmt.Sprintf("spread %s exceeds max %s",
				spread.String(), g.cfg.MaxSpreadPoints.String()),
			Retryable: true,
			Quote:     quote,
		}
	}

	return LiquidityResult{OK: true, Quote: quote}
}
