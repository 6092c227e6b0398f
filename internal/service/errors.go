package service

import "errors"

// Failures the engine itself decides; data-absence and write-conflict
// sentinels come from the repository package and propagate unchanged.
var (
	// ErrValidation is always wrapped with a detail message.
	ErrValidation = errors.New("invalid input")

	ErrEmptyCart               = errors.New("cart is empty, nothing to order")
	ErrSpinNotEligible         = errors.New("cart total must be at least 1500 to play spin")
	ErrNoActiveRewards         = errors.New("no active spin rewards available")
	ErrNotAllowed              = errors.New("not allowed")
	ErrIllegalStatusTransition = errors.New("illegal order status transition")

	// ErrIntegrity hides internal faults (unresolvable prices, broken
	// invariants) from callers; the full context goes to the log instead.
	ErrIntegrity = errors.New("internal error")
)
