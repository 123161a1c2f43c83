// Package marketdata provides quote access helpers on top of the broker's
// market data collaborator.
package marketdata

import (
	"context"
	"sync"
	"time"

	"synthbot/internal/broker"
	"synthbot/internal/types"
)

// CachedQuoteProvider decorates a QuoteProvider with a short TTL
// read-through cache. A cached quote is never served past its TTL: liquidity
// decisions on stale depth are worse than the extra round trip.
type CachedQuoteProvider struct {
	upstream broker.QuoteProvider
	ttl      time.Duration
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]cachedQuote
}

type cachedQuote struct {
	quote    types.LiquidityQuote
	storedAt time.Time
}

// NewCachedQuoteProvider wraps upstream with a TTL cache.
func NewCachedQuoteProvider(upstream broker.QuoteProvider, ttl time.Duration) *CachedQuoteProvider {
	return &CachedQuoteProvider{
		upstream: upstream,
		ttl:      ttl,
		now:      time.Now,
		cache:    make(map[string]cachedQuote),
	}
}

// GetQuote returns a cached quote when fresh, otherwise fetches upstream.
// Upstream errors are never cached.
func (p *CachedQuoteProvider) GetQuote(ctx context.Context, securityID string) (*types.LiquidityQuote, error) {
	p.mu.Lock()
	if entry, ok := p.cache[securityID]; ok && p.now().Sub(entry.storedAt) < p.ttl {
		quote := entry.quote
		p.mu.Unlock()
		return &quote, nil
	}
	p.mu.Unlock()

	quote, err := p.upstream.GetQuote(ctx, securityID)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[securityID] = cachedQuote{quote: *quote, storedAt: p.now()}
	p.mu.Unlock()

	return quote, nil
}

// Ensure CachedQuoteProvider implements broker.QuoteProvider.
var _ broker.QuoteProvider = (*CachedQuoteProvider)(nil)
