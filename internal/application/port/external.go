package port

import (
	"context"
	"errors"
	"time"

	"github.com/trungvu/tripflow/internal/domain/entity"
)

var (
	// ErrTokenInvalid is returned when a token fails signature or shape checks
	ErrTokenInvalid = errors.New("approval token invalid")

	// ErrTokenExpired is returned when a token's validity window has lapsed.
	// The verifier still returns the decoded claims alongside this error so
	// the caller can identify which trip the stale link pointed at.
	ErrTokenExpired = errors.New("approval token expired")
)

// ApprovalToken is the decoded content of a signed approval link token.
type ApprovalToken struct {
	TripID   string
	Action   entity.DecisionAction
	Manager  string
	IssuedAt time.Time
}

// TokenCodec issues and verifies the time-limited signed tokens embedded in
// approval email links.
type TokenCodec interface {
	Issue(tripID string, action entity.DecisionAction, manager string, issuedAt time.Time) (string, error)
	Verify(raw string) (*ApprovalToken, error)
}

// ApprovalLinks carries the pair of one-click decision URLs for one trip.
type ApprovalLinks struct {
	ApproveURL string
	RejectURL  string
}

// NotificationGateway sends outbound email. Delivery is best-effort: every
// implementation error is logged by the caller and never rolls back a state
// transition.
type NotificationGateway interface {
	SendApprovalRequest(ctx context.Context, trip *entity.Trip, links ApprovalLinks) error
	SendUrgentApprovalRequest(ctx context.Context, trip *entity.Trip, links ApprovalLinks) error
	SendDecisionConfirmation(ctx context.Context, trip *entity.Trip) error
	SendExpiryEscalation(ctx context.Context, trip *entity.Trip) error
	SendOptimizationNotice(ctx context.Context, trip *entity.Trip, group *entity.OptimizationGroup) error
}
