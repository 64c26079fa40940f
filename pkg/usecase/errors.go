package usecase

import "errors"

// Sentinel errors for use case layer
var (
	// Enrichment errors
	ErrEnrichmentInFlight = errors.New("enrichment already in flight")
	ErrContactLocked      = errors.New("contact is locked by another enrichment worker")
	ErrLeaseLost          = errors.New("enrichment lease lost")

	// Processor errors
	ErrProcessorStopped = errors.New("event processor is stopped")

	// Command errors
	ErrInvalidLookback = errors.New("lookback window must be positive")
	ErrEmptyEventTag   = errors.New("event tag is required")
)

// Context keys for error values
const (
	TenantIDKey      = "tenant_id"
	CounterpartIDKey = "counterpart_id"
	MessageIDKey     = "message_id"
	OperationKey     = "operation"
)
