// Package engine decides how strictly a refresh token's device binding is enforced.
package engine

import (
	"context"

	devicedomain "election-voting/auth/internal/device/domain"
)

// Decision says which parts of the device binding must match on refresh.
type Decision struct {
	EnforceIP        bool
	EnforceUserAgent bool
}

// StrictDecision enforces both IP and user-agent. It is the default and the fallback on any policy error.
var StrictDecision = Decision{EnforceIP: true, EnforceUserAgent: true}

// BindingPolicy evaluates the binding rules for one refresh attempt.
type BindingPolicy interface {
	// Evaluate compares the binding captured at issuance with the one presented now.
	// Implementations return StrictDecision when they cannot decide.
	Evaluate(ctx context.Context, issued, presented devicedomain.Binding) Decision
}

// StaticPolicy always returns the same decision. Used in tests and when OPA is not wanted.
type StaticPolicy Decision

// Evaluate implements BindingPolicy.
func (p StaticPolicy) Evaluate(context.Context, devicedomain.Binding, devicedomain.Binding) Decision {
	return Decision(p)
}
