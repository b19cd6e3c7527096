package metadata

import "errors"

// Error taxonomy for one refresh cycle. All of these are terminal for
// the federation being processed; the next scheduled run is the retry
// mechanism.
var (
	// ErrNoSource means the federation has no metadata source
	// configured. Callers treat this as "no data available", not as a
	// failure.
	ErrNoSource = errors.New("no metadata source configured")

	// ErrTransient covers network-level fetch failures (timeout, DNS,
	// connection refused, local read errors)
	ErrTransient = errors.New("transient fetch failure")

	// ErrRemoteRejected covers HTTP 4xx/5xx responses
	ErrRemoteRejected = errors.New("metadata source rejected request")

	// ErrBadFormat covers malformed XML and unexpected root elements
	ErrBadFormat = errors.New("malformed metadata document")

	// ErrEntityNotFound is the control signal for an entity that is
	// absent from the current document
	ErrEntityNotFound = errors.New("entity not found in document")
)
