package types

import "errors"

// Sentinel errors for the execution engine.
var (
	// Position state errors
	ErrPositionExists = errors.New("position already exists for system")

	// Pre-trade gate errors
	ErrLiquidityRejected = errors.New("liquidity check rejected")
	ErrMarginRejected    = errors.New("margin check rejected")

	// Order errors
	ErrOrderNotPlaced = errors.New("order not placed")
	ErrFillTimeout    = errors.New("order fill confirmation timed out")
	ErrOrderRejected  = errors.New("order rejected by broker")

	// Persistence errors
	ErrStatePersistence = errors.New("position state persistence failed")

	// Validation errors
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrInvalidSignal = errors.New("invalid signal")
	ErrInvalidQty    = errors.New("quantity must be a positive lot-size multiple")

	// Rollover errors
	ErrBeforeCutoff = errors.New("rollover called before cutoff")
)
