package service

// AuthMetrics records the outcome of authentication operations.
type AuthMetrics interface {
	// ObserveOutcome counts one call of operation ending with outcome, which is
	// "success" or a business error code.
	ObserveOutcome(operation, outcome string)
}
