// Package notify delivers per-federation refresh error reports. The
// orchestrator never lets a delivery failure propagate; errors returned
// here are logged and dropped at the call site.
package notify

import "context"

// Notifier delivers an error report to the operators
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// Noop is the notifier used when no mail transport is configured
type Noop struct{}

func (Noop) Notify(ctx context.Context, subject, body string) error {
	return nil
}
