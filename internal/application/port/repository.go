package port

import (
	"context"
	"time"

	"github.com/trungvu/tripflow/internal/domain/entity"
	"github.com/trungvu/tripflow/internal/domain/workflow"
)

// TripRepository defines persistence operations for Trip.
//
// Methods returning (bool, error) are guarded writes: the condition is
// re-checked inside the UPDATE's WHERE clause, so of two concurrent racers
// exactly one observes true. Callers translate false into a state conflict.
type TripRepository interface {
	Create(ctx context.Context, trip *entity.Trip) error
	GetByID(ctx context.Context, id string) (*entity.Trip, error)

	// FindActiveDuplicate looks for a trip by the same requester on the same
	// route at the same departure time whose status is not terminal.
	FindActiveDuplicate(ctx context.Context, requesterID, departure, destination string, departureTime time.Time) (*entity.Trip, error)

	List(ctx context.Context, status workflow.State, limit, offset int) ([]*entity.Trip, error)

	// ListOptimizationCandidates returns approved-family trips not linked to
	// any group, ordered by creation time then ID for deterministic grouping.
	ListOptimizationCandidates(ctx context.Context) ([]*entity.Trip, error)

	// ListStalePending returns trips still awaiting a decision whose token
	// was issued at or before the cutoff and that have not yet triggered the
	// expiry notification.
	ListStalePending(ctx context.Context, cutoff time.Time) ([]*entity.Trip, error)

	// ApplyDecision commits a manager/admin decision, guarded on the current
	// approval status.
	ApplyDecision(ctx context.Context, tripID string, expected entity.ApprovalStatus, decision entity.Decision) (bool, error)

	// UpdateStatusIf moves the trip from one lifecycle state to another,
	// guarded on the current state.
	UpdateStatusIf(ctx context.Context, tripID string, from, to workflow.State) (bool, error)

	// MarkExpired flips the trip to EXPIRED with the one-shot notification
	// flag, guarded on a still-pending approval and an unset flag.
	MarkExpired(ctx context.Context, tripID string) (bool, error)

	// MarkExpiryNotified sets only the one-shot notification flag, guarded
	// on the flag being unset.
	MarkExpiryNotified(ctx context.Context, tripID string) (bool, error)

	// LinkToGroup attaches an ungrouped trip to a proposal, guarded on the
	// link being absent.
	LinkToGroup(ctx context.Context, tripID, groupID string) (bool, error)

	// UnlinkGroup clears the group link for every member of the group
	// without touching any other trip field.
	UnlinkGroup(ctx context.Context, groupID string) error

	// Finalize applies an approved group's schedule to a member trip:
	// status OPTIMIZED, shifted departure time with the original preserved,
	// group vehicle type and discounted actual cost. Guarded on the trip
	// still being in an approved-family state and linked to the group.
	Finalize(ctx context.Context, tripID, groupID string, departureTime time.Time, vehicleType entity.VehicleType, actualCost float64) (bool, error)
}

// GroupRepository defines persistence operations for OptimizationGroup.
type GroupRepository interface {
	Create(ctx context.Context, group *entity.OptimizationGroup) error
	GetByID(ctx context.Context, id string) (*entity.OptimizationGroup, error)

	// Decide settles a proposed group, guarded on status still being
	// PROPOSED. Concurrent approve/reject resolve here: the loser gets false.
	Decide(ctx context.Context, id string, status entity.GroupStatus, actor string, decidedAt time.Time) (bool, error)
}

// AuditFilter narrows an audit query. Zero values mean "any".
type AuditFilter struct {
	TripID string
	Actor  string
	Action entity.AuditAction
	Limit  int
}

// AuditRepository is the append-only audit log.
type AuditRepository interface {
	Append(ctx context.Context, e *entity.AuditEntry) error
	Query(ctx context.Context, filter AuditFilter) ([]*entity.AuditEntry, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
