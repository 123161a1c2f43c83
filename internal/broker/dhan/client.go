package dhan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
	"synthbot/internal/broker"
	"synthbot/internal/types"
)

// Client implements broker.Broker, broker.QuoteProvider and
// broker.MarginEstimator against the Dhan v2 REST API.
type Client struct {
	cfg    Config
	logger *slog.Logger
	http   *http.Client

	// Rate limiting
	limiter *rate.Limiter
}

// NewClient creates a new Dhan API client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:     cfg,
		logger:  logger,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.MaxRequestsPerSecond), cfg.MaxRequestsPerSecond),
	}
}

// PlaceOrder submits a market order on the NSE derivatives segment.
func (c *Client) PlaceOrder(ctx context.Context, req broker.OrderRequest) (string, error) {
	body := orderRequest{
		DhanClientID:    c.cfg.ClientID,
		CorrelationID:   req.CorrelationID,
		TransactionType: req.Side.String(),
		ExchangeSegment: segmentFNO,
		ProductType:     productIntraday,
		OrderType:       orderTypeMarket,
		SecurityID:      req.SecurityID,
		Quantity:        req.Qty,
		Validity:        validityDay,
	}

	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, "/v2/orders", body, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", broker.ErrSubmitFailed, err)
	}
	if resp.OrderID == "" {
		return "", fmt.Errorf("%w: empty order id in response", broker.ErrSubmitFailed)
	}

	c.logger.Info("order submitted",
		"order_id", resp.OrderID,
		"correlation_id", req.CorrelationID,
		"security_id", req.SecurityID,
		"side", req.Side,
		"qty", req.Qty,
	)

	return resp.OrderID, nil
}

// GetOrder fetches the current state of an order.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*broker.OrderState, error) {
	var detail orderDetail
	if err := c.do(ctx, http.MethodGet, "/v2/orders/"+orderID, nil, &detail); err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	if detail.OrderID == "" {
		return nil, broker.ErrOrderNotFound
	}

	state := &broker.OrderState{
		OrderID:   detail.OrderID,
		Status:    mapOrderStatus(detail.OrderStatus),
		FilledQty: detail.FilledQty,
		AvgPrice:  decimal.NewFromFloat(detail.AveragePrice),
		UpdatedAt: time.Now(),
	}
	if detail.UpdateTime != "" {
		if ts, err := time.Parse("2006-01-02 15:04:05", detail.UpdateTime); err == nil {
			state.UpdatedAt = ts
		}
	}
	return state, nil
}

// GetPositions returns the live net position book for the F&O segment.
func (c *Client) GetPositions(ctx context.Context) ([]broker.NetPosition, error) {
	var entries []positionEntry
	if err := c.do(ctx, http.MethodGet, "/v2/positions", nil, &entries); err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}

	positions := make([]broker.NetPosition, 0, len(entries))
	for _, e := range entries {
		if e.ExchangeSegment != segmentFNO {
			continue
		}
		positions = append(positions, broker.NetPosition{
			SecurityID: e.SecurityID,
			NetQty:     e.NetQty,
		})
	}
	return positions, nil
}

// EstimateMargin queries the margin calculator for an estimated order.
func (c *Client) EstimateMargin(ctx context.Context, req broker.MarginRequest) (*broker.MarginEstimate, error) {
	body := marginRequest{
		DhanClientID:    c.cfg.ClientID,
		ExchangeSegment: segmentFNO,
		TransactionType: req.Side.String(),
		Quantity:        req.Qty,
		ProductType:     productIntraday,
		SecurityID:      req.SecurityID,
		Price:           req.ReferencePrice.InexactFloat64(),
	}

	var resp marginResponse
	if err := c.do(ctx, http.MethodPost, "/v2/margincalculator", body, &resp); err != nil {
		return nil, fmt.Errorf("estimate margin: %w", err)
	}

	return &broker.MarginEstimate{
		TotalMargin:         decimal.NewFromFloat(resp.TotalMargin),
		AvailableBalance:    decimal.NewFromFloat(resp.AvailableBalance),
		InsufficientBalance: decimal.NewFromFloat(resp.InsufficientBalance),
	}, nil
}

// GetQuote fetches the top of book for one instrument. Bounded by the
// shorter quote timeout: stale liquidity data is worse than none.
func (c *Client) GetQuote(ctx context.Context, securityID string) (*types.LiquidityQuote, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.QuoteTimeout)
	defer cancel()

	body := quoteRequest{segmentFNO: []string{securityID}}

	var resp quoteResponse
	if err := c.do(ctx, http.MethodPost, "/v2/marketfeed/quote", body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", broker.ErrQuoteUnavailable, err)
	}

	entry, ok := resp.Data[segmentFNO][securityID]
	if !ok {
		return nil, fmt.Errorf("%w: no data for security %s", broker.ErrQuoteUnavailable, securityID)
	}

	quote := &types.LiquidityQuote{
		SecurityID: securityID,
		FetchedAt:  time.Now(),
	}
	if len(entry.Depth.Buy) > 0 {
		quote.Bid = types.QuoteLevel{
			Price: decimal.NewFromFloat(entry.Depth.Buy[0].Price),
			Qty:   entry.Depth.Buy[0].Quantity,
		}
	}
	if len(entry.Depth.Sell) > 0 {
		quote.Ask = types.QuoteLevel{
			Price: decimal.NewFromFloat(entry.Depth.Sell[0].Price),
			Qty:   entry.Depth.Sell[0].Quantity,
		}
	}
	return quote, nil
}

// do performs one rate-limited API call, decoding the JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", broker.ErrRateLimited, err)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("access-token", c.cfg.AccessToken)
	req.Header.Set("client-id", c.cfg.ClientID)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("api error response",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"body", truncate(string(data), 256),
		)
		return fmt.Errorf("http status %d", resp.StatusCode)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "... (" + strconv.Itoa(len(s)) + " bytes)"
}

func mapOrderStatus(raw string) types.OrderStatus {
	switch types.OrderStatus(raw) {
	case types.OrderStatusPending, types.OrderStatusPlaced, types.OrderStatusPartTraded,
		types.OrderStatusTraded, types.OrderStatusRejected, types.OrderStatusCancelled,
		types.OrderStatusExpired:
		return types.OrderStatus(raw)
	case "TRANSIT":
		return types.OrderStatusPending
	default:
		return types.OrderStatusPending
	}
}

// Interface checks.
var (
	_ broker.Broker          = (*Client)(nil)
	_ broker.QuoteProvider   = (*Client)(nil)
	_ broker.MarginEstimator = (*Client)(nil)
)
