package domain

import "errors"

// Boundary validation errors. Feed payloads failing validation are treated as
// fetch failures: logged, the previous store value retained.
var (
	// ErrInvalidPayload marks a feed response missing required fields.
	ErrInvalidPayload = errors.New("invalid payload")

	// ErrMissingSymbol marks a payload without a symbol identifier.
	ErrMissingSymbol = errors.New("missing symbol")

	// ErrInsufficientData marks a feed with fewer data points than a derived
	// metric needs. Consumers degrade to a neutral default.
	ErrInsufficientData = errors.New("insufficient data")
)
