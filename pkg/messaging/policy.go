package messaging

import (
	"context"

	"github.com/qshield/qshield-go/pkg/lifecycle"
)

// PolicyRequest carries the facts a policy may weigh for one send. The
// trust score runs 0..100 with higher meaning safer; how it is produced is
// the caller's business.
type PolicyRequest struct {
	RecipientID   string
	TrustScore    int
	PlaintextSize int

	// ExceptionFlag marks a send that needs human review regardless of
	// score, e.g. a recipient outside the usual exchange pattern.
	ExceptionFlag bool
}

// Decision is a policy verdict: the initial lifecycle state for the message
// and a short reason for the audit trail.
type Decision struct {
	State  lifecycle.MessageState
	Reason string
}

// Policy decides the initial state of a message at send time. The lifecycle
// treats the verdict as opaque; StateBlocked rejects the send entirely.
type Policy interface {
	Decide(ctx context.Context, req PolicyRequest) Decision
}

// AllowAll admits every message directly into the stored state.
type AllowAll struct{}

// Decide returns a stored verdict unconditionally.
func (AllowAll) Decide(ctx context.Context, req PolicyRequest) Decision {
	return Decision{State: lifecycle.StateStored, Reason: "allow-all policy"}
}

// ThresholdPolicy maps trust scores to verdicts:
//
//	score >= AllowAt              -> stored
//	ReauthAt <= score < AllowAt   -> require_reauth
//	score < ReauthAt              -> blocked
//
// The exception flag softens a block into a pending_approval hold so an
// admin can review the send; scores that already pass the thresholds keep
// their verdict, with the exception noted for the audit trail.
type ThresholdPolicy struct {
	AllowAt  int
	ReauthAt int
}

// DefaultThresholdPolicy returns the standard 70/40 mapping.
func DefaultThresholdPolicy() ThresholdPolicy {
	return ThresholdPolicy{AllowAt: 70, ReauthAt: 40}
}

// Decide maps the request's trust score onto an initial state. The raw
// threshold verdict is computed first; the exception flag only converts a
// block into a pending_approval hold.
func (p ThresholdPolicy) Decide(ctx context.Context, req PolicyRequest) Decision {
	var d Decision
	switch {
	case req.TrustScore >= p.AllowAt:
		d = Decision{State: lifecycle.StateStored, Reason: "trust score above allow threshold"}
	case req.TrustScore >= p.ReauthAt:
		d = Decision{State: lifecycle.StateRequireReauth, Reason: "trust score in reauth range"}
	default:
		d = Decision{State: lifecycle.StateBlocked, Reason: "trust score below reauth threshold"}
	}
	if req.ExceptionFlag {
		if d.State == lifecycle.StateBlocked {
			return Decision{State: lifecycle.StatePendingApproval, Reason: "exception requested; queued for review"}
		}
		d.Reason += "; exception noted"
	}
	return d
}
