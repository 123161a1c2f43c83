package risk

import (
	"context"
	"fmt"
	"log/slog"

	"synthbot/internal/broker"
)

// MarginConfig holds margin gate settings.
type MarginConfig struct {
	Enabled bool
}

// MarginResult is the outcome of one margin check.
type MarginResult struct {
	OK       bool
	Reason   string
	Estimate *broker.MarginEstimate
}

// MarginGate checks estimated margin against available balance before an
// order. When disabled it always accepts.
type MarginGate struct {
	cfg       MarginConfig
	estimator broker.MarginEstimator
	logger    *slog.Logger
}

// NewMarginGate creates a margin gate over a margin estimator.
func NewMarginGate(cfg MarginConfig, estimator broker.MarginEstimator, logger *slog.Logger) *MarginGate {
	if logger == nil {
		logger = slog.Default()
	}
	return &MarginGate{cfg: cfg, estimator: estimator, logger: logger}
}

// Check accepts iff the estimator reports enough available balance. An
// estimator failure fails open: a transient margin-service outage must not
// block trading.
func (g *MarginGate) Check(ctx context.Context, req broker.MarginRequest) MarginResult {
	if !g.cfg.Enabled {
		return MarginResult{OK: true, Reason: "margin gate disabled"}
	}

	est, err := g.estimator.EstimateMargin(ctx, req)
	if err != nil {
		g.logger.Warn("margin estimator unavailable, failing open",
			"security_id", req.SecurityID,
			"err", err,
		)
		return MarginResult{OK: true, Reason: "estimator unavailable, failed open"}
	}

	if est.AvailableBalance.LessThan(est.TotalMargin) {
		return MarginResult{
			Reason: fmt.Sprintf("available balance %s below required margin %s",
				est.AvailableBalance.StringFixed(2), est.TotalMargin.StringFixed(2)),
			Estimate: est,
		}
	}
	if est.InsufficientBalance.IsPositive() {
		return MarginResult{
			Reason:   fmt.Sprintf("insufficient balance %s", est.InsufficientBalance.StringFixed(2)),
			Estimate: est,
		}
	}

	return MarginResult{OK: true, Estimate: est}
}
