package risk

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"synthbot/internal/broker"
	"synthbot/internal/types"
)

type stubEstimator struct {
	est *broker.MarginEstimate
	err error
}

func (s *stubEstimator) EstimateMargin(ctx context.Context, req broker.MarginRequest) (*broker.MarginEstimate, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.est, nil
}

func marginReq() broker.MarginRequest {
	return broker.MarginRequest{
		SecurityID:     "49082",
		Side:           types.SideSell,
		Qty:            75,
		ReferencePrice: decimal.NewFromFloat(148.2),
	}
}

func TestMarginGate_Disabled(t *testing.T) {
	gate := NewMarginGate(MarginConfig{Enabled: false}, &stubEstimator{err: errors.New("should not be called")}, nil)

	res := gate.Check(context.Background(), marginReq())
	if !res.OK {
		t.Error("disabled gate must always accept")
	}
}

func TestMarginGate_Accepts(t *testing.T) {
	gate := NewMarginGate(MarginConfig{Enabled: true}, &stubEstimator{est: &broker.MarginEstimate{
		TotalMargin:      decimal.NewFromInt(112500),
		AvailableBalance: decimal.NewFromInt(200000),
	}}, nil)

	res := gate.Check(context.Background(), marginReq())
	if !res.OK {
		t.Errorf("expected accept: %s", res.Reason)
	}
}

func TestMarginGate_RejectsLowBalance(t *testing.T) {
	gate := NewMarginGate(MarginConfig{Enabled: true}, &stubEstimator{est: &broker.MarginEstimate{
		TotalMargin:      decimal.NewFromInt(112500),
		AvailableBalance: decimal.NewFromInt(50000),
	}}, nil)

	res := gate.Check(context.Background(), marginReq())
	if res.OK {
		t.Error("expected reject when balance < margin")
	}
}

func TestMarginGate_RejectsInsufficientBalance(t *testing.T) {
	gate := NewMarginGate(MarginConfig{Enabled: true}, &stubEstimator{est: &broker.MarginEstimate{
		TotalMargin:         decimal.NewFromInt(100000),
		AvailableBalance:    decimal.NewFromInt(100000),
		InsufficientBalance: decimal.NewFromInt(2500),
	}}, nil)

	res := gate.Check(context.Background(), marginReq())
	if res.OK {
		t.Error("expected reject when insufficientBalance > 0")
	}
}

func TestMarginGate_FailsOpenOnEstimatorError(t *testing.T) {
	gate := NewMarginGate(MarginConfig{Enabled: true}, &stubEstimator{err: errors.New("estimator down")}, nil)

	res := gate.Check(context.Background(), marginReq())
	if !res.OK {
		t.Error("estimator outage must fail open")
	}
}
