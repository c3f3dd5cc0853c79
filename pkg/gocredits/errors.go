package gocredits

import "errors"

var (
	// ErrInvalidTier is returned when a checkout is requested for a tier that is not in the catalog
	ErrInvalidTier = errors.New("invalid pricing tier")

	// ErrInvalidCatalog is returned when a catalog is built from inconsistent tiers
	ErrInvalidCatalog = errors.New("invalid pricing catalog")

	// ErrInvalidMetadata is returned when a session lacks userId or tierId metadata
	ErrInvalidMetadata = errors.New("invalid session metadata")

	// ErrUnknownTier is returned when session metadata references a retired or unknown tier
	ErrUnknownTier = errors.New("unknown pricing tier")

	// ErrPaymentIncomplete is returned for sessions that are not fully paid yet
	ErrPaymentIncomplete = errors.New("payment incomplete")

	// ErrDuplicateSession is returned when a session has already been processed
	ErrDuplicateSession = errors.New("session already processed")

	// ErrAmountMismatch is returned when the charged amount is below the catalog price
	ErrAmountMismatch = errors.New("charged amount below catalog price")

	// ErrStoreRequired is returned when a processor is built without a session store
	ErrStoreRequired = errors.New("processed session store is required")
)

// IsValidationFailure reports whether err is a permanent rejection of a session.
// Retrying the same delivery cannot change the outcome of these errors.
func IsValidationFailure(err error) bool {
	return errors.Is(err, ErrInvalidMetadata) ||
		errors.Is(err, ErrUnknownTier) ||
		errors.Is(err, ErrAmountMismatch)
}
