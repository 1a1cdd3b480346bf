package core

import "errors"

// ErrNotFound is returned when a requested object does not exist in storage.
var ErrNotFound = errors.New("not found")

// Economy failures. Every one of them aborts the call with no partial mutation.
var (
	ErrTooEarly              = errors.New("key claim is not yet available")
	ErrInsufficientResources = errors.New("insufficient resources")
	ErrMaxTierReached        = errors.New("max tier reached")
	ErrNoGiftsAvailable      = errors.New("no gifts available")
	ErrExternalCallFailed    = errors.New("external call failed")
	ErrSettlementInFlight    = errors.New("gift swap already in flight")
	ErrSwapNotPending        = errors.New("swap is not pending")
	ErrZeroPayout            = errors.New("token payout rounds to zero")
	ErrUnauthorized          = errors.New("caller not authorised")
)
