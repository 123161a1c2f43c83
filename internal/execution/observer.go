package execution

import (
	"context"
	"time"

	"synthbot/internal/broker"
)

// FillObserver waits for an order to reach a terminal state. The polling
// implementation is the default; an event-driven broker callback can satisfy
// the same wait earlier without changing any execution decision logic.
type FillObserver interface {
	// WaitForFill blocks until the order reaches a terminal state or the
	// observer's wait window expires, and returns the last observed state.
	// The returned state may be non-terminal when the window expires.
	WaitForFill(ctx context.Context, orderID string) (*broker.OrderState, error)
}

// PollingObserver implements FillObserver by polling order status at a
// fixed interval up to a bounded maximum wait.
type PollingObserver struct {
	broker   broker.Broker
	interval time.Duration
	maxWait  time.Duration
}

// NewPollingObserver creates a polling fill observer.
func NewPollingObserver(brk broker.Broker, interval, maxWait time.Duration) *PollingObserver {
	return &PollingObserver{broker: brk, interval: interval, maxWait: maxWait}
}

// WaitForFill polls until a terminal status or the wait window expires.
func (o *PollingObserver) WaitForFill(ctx context.Context, orderID string) (*broker.OrderState, error) {
	deadline := time.Now().Add(o.maxWait)

	var last *broker.OrderState
	for {
		state, err := o.broker.GetOrder(ctx, orderID)
		if err == nil {
			last = state
			if state.Status.IsFinal() {
				return state, nil
			}
		}
		// A failed poll is not terminal; keep polling until the window
		// closes and let the caller decide on the last known state.

		if time.Now().After(deadline) {
			return last, err
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(o.interval):
		}
	}
}

// Ensure PollingObserver implements FillObserver.
var _ FillObserver = (*PollingObserver)(nil)
