// Package contracts resolves option contracts for synthetic positions.
package contracts

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"synthbot/internal/types"
)

var (
	// ErrNoExpiries means the underlying has no known expiry dates.
	ErrNoExpiries = errors.New("no expiries for underlying")
	// ErrNoContract means no contract is known for the requested expiry.
	ErrNoContract = errors.New("no contract for expiry")
)

// Resolver discovers tradable contracts. Implementations are backed by the
// broker's instrument master or, for paper mode and tests, a static table.
type Resolver interface {
	// ListExpiries returns the known expiry dates for an underlying,
	// earliest first.
	ListExpiries(ctx context.Context, underlying string) ([]time.Time, error)

	// ResolveATM returns the at-the-money synthetic pair for an
	// underlying at the given expiry.
	ResolveATM(ctx context.Context, underlying string, expiry time.Time) (*types.Contract, error)
}

// StaticResolver serves contracts from an in-memory table.
type StaticResolver struct {
	mu        sync.RWMutex
	contracts map[string][]types.Contract
}

// NewStaticResolver creates an empty static resolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{
		contracts: make(map[string][]types.Contract),
	}
}

// Add registers a contract as the ATM pair for its underlying and expiry.
func (r *StaticResolver) Add(c types.Contract) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contracts[c.Underlying] = append(r.contracts[c.Underlying], c)
	sort.Slice(r.contracts[c.Underlying], func(i, j int) bool {
		return r.contracts[c.Underlying][i].Expiry.Before(r.contracts[c.Underlying][j].Expiry)
	})
}

// ListExpiries returns the registered expiry dates, earliest first.
func (r *StaticResolver) ListExpiries(ctx context.Context, underlying string) ([]time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cs := r.contracts[underlying]
	if len(cs) == 0 {
		return nil, ErrNoExpiries
	}

	expiries := make([]time.Time, 0, len(cs))
	for _, c := range cs {
		expiries = append(expiries, c.Expiry)
	}
	return expiries, nil
}

// ResolveATM returns the registered contract whose expiry falls on the same
// calendar date as expiry.
func (r *StaticResolver) ResolveATM(ctx context.Context, underlying string, expiry time.Time) (*types.Contract, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.contracts[underlying] {
		if c.ExpiresOn(expiry) {
			contract := c
			return &contract, nil
		}
	}
	return nil, ErrNoContract
}

// NextExpiryAfter returns the earliest expiry strictly after the calendar
// date of t, used to pick the rollover target.
func NextExpiryAfter(expiries []time.Time, t time.Time) (time.Time, bool) {
	y, m, d := t.Date()
	cut := time.Date(y, m, d, 0, 0, 0, 0, t.Location()).AddDate(0, 0, 1)
	for _, e := range expiries {
		if !e.Before(cut) {
			return e, true
		}
	}
	return time.Time{}, false
}

var _ Resolver = (*StaticResolver)(nil)
