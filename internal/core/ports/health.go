package ports

import "context"

// HealthChecker is one dependency reported by GET /health. Name is the key
// in the response's dependencies map.
type HealthChecker interface {
	Name() string
	Ping(ctx context.Context) error
}
