package adapter

import "context"

// FeatureGate is the killswitch surface checked once per invocation. A
// tripped switch is a hard stop: no work, no continuation. Implementations
// must fail open (not killed) when the flag store is unreachable, so a flaky
// flag backend cannot silently halt a cohort walk.
type FeatureGate interface {
	GloballyKilled(ctx context.Context) bool
	ProjectKilled(ctx context.Context, projectID int64) bool
}
