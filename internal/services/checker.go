package services

import (
	"context"
)

// Checker is a backing service whose availability gates readiness
type Checker interface {
	// HealthCheck checks if the service is available
	HealthCheck(ctx context.Context) error
}

// CheckerFunc adapts a ping function to Checker
type CheckerFunc func(ctx context.Context) error

// HealthCheck calls f
func (f CheckerFunc) HealthCheck(ctx context.Context) error {
	return f(ctx)
}
