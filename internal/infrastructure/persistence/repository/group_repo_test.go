package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/trungvu/tripflow/internal/application/port"
	"github.com/trungvu/tripflow/internal/domain/entity"
	"github.com/trungvu/tripflow/internal/domain/workflow"
)

func seedGroup(t *testing.T, repo port.GroupRepository, id string, tripIDs []string) *entity.OptimizationGroup {
	t.Helper()

	now := time.Now().UTC().Truncate(time.Second)
	group := &entity.OptimizationGroup{
		ID:                    id,
		TripIDs:               tripIDs,
		Departure:             "Hanoi",
		Destination:           "Haiphong",
		DepartureDate:         "2026-09-10",
		ProposedDepartureTime: now.Add(72 * time.Hour),
		VehicleType:           entity.VehicleLargeCar,
		PassengerCount:        5,
		EstimatedSavings:      250_000,
		Status:                entity.GroupProposed,
		CreatedBy:             "admin@corp.test",
		CreatedAt:             now,
	}
	require.NoError(t, repo.Create(context.Background(), group))
	return group
}

func TestGroupRepositoryRoundTrip(t *testing.T) {
	db := openTestDB(t)
	tripRepo := NewTripRepository(db, zap.NewNop()).(*TripRepository)
	groupRepo := NewGroupRepository(db, zap.NewNop())
	ctx := context.Background()

	// Members must exist for the member-row foreign keys.
	seedTrip(t, tripRepo, "trip-1", workflow.StateApproved, entity.ApprovalApproved)
	seedTrip(t, tripRepo, "trip-2", workflow.StateApproved, entity.ApprovalApproved)

	seeded := seedGroup(t, groupRepo, "group-1", []string{"trip-2", "trip-1"})

	got, err := groupRepo.GetByID(ctx, "group-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, seeded.Departure, got.Departure)
	assert.Equal(t, entity.GroupProposed, got.Status)
	assert.Equal(t, entity.VehicleLargeCar, got.VehicleType)
	assert.Equal(t, 250_000.0, got.EstimatedSavings)
	assert.Equal(t, []string{"trip-1", "trip-2"}, got.TripIDs)
	assert.Empty(t, got.DecidedBy)
	assert.Nil(t, got.DecidedAt)

	missing, err := groupRepo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGroupDecideSettlesExactlyOnce(t *testing.T) {
	db := openTestDB(t)
	tripRepo := NewTripRepository(db, zap.NewNop()).(*TripRepository)
	groupRepo := NewGroupRepository(db, zap.NewNop())
	ctx := context.Background()

	seedTrip(t, tripRepo, "trip-1", workflow.StateApproved, entity.ApprovalApproved)
	seedTrip(t, tripRepo, "trip-2", workflow.StateApproved, entity.ApprovalApproved)
	seedGroup(t, groupRepo, "group-1", []string{"trip-1", "trip-2"})

	now := time.Now().UTC()
	ok, err := groupRepo.Decide(ctx, "group-1", entity.GroupApproved, "admin@corp.test", now)
	require.NoError(t, err)
	assert.True(t, ok)

	// The racing reject finds the group already settled.
	ok, err = groupRepo.Decide(ctx, "group-1", entity.GroupRejected, "other@corp.test", now)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := groupRepo.GetByID(ctx, "group-1")
	require.NoError(t, err)
	assert.Equal(t, entity.GroupApproved, got.Status)
	assert.Equal(t, "admin@corp.test", got.DecidedBy)
	require.NotNil(t, got.DecidedAt)
}

func TestAuditAppendAndQueryFilters(t *testing.T) {
	db := openTestDB(t)
	auditRepo := NewAuditRepository(db, zap.NewNop())
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	entries := []*entity.AuditEntry{
		{TripID: "trip-1", Action: entity.AuditSubmit, ActorEmail: "binh@corp.test", ActorRole: "requester", NewStatus: "PENDING_APPROVAL", Timestamp: base},
		{TripID: "trip-1", Action: entity.AuditManagerApprove, ActorEmail: "mgr@corp.test", ActorRole: "manager", PreviousStatus: "PENDING_APPROVAL", NewStatus: "APPROVED", Timestamp: base.Add(time.Minute)},
		{TripID: "trip-2", Action: entity.AuditSubmit, ActorEmail: "chi@corp.test", ActorRole: "requester", NewStatus: "PENDING_URGENT", Timestamp: base.Add(2 * time.Minute)},
	}
	for _, e := range entries {
		require.NoError(t, auditRepo.Append(ctx, e))
		assert.NotZero(t, e.ID)
	}

	byTrip, err := auditRepo.Query(ctx, port.AuditFilter{TripID: "trip-1"})
	require.NoError(t, err)
	require.Len(t, byTrip, 2)
	assert.Equal(t, entity.AuditSubmit, byTrip[0].Action, "chronological order")
	assert.Equal(t, entity.AuditManagerApprove, byTrip[1].Action)

	byActor, err := auditRepo.Query(ctx, port.AuditFilter{Actor: "mgr@corp.test"})
	require.NoError(t, err)
	require.Len(t, byActor, 1)
	assert.Equal(t, "trip-1", byActor[0].TripID)

	byAction, err := auditRepo.Query(ctx, port.AuditFilter{Action: entity.AuditSubmit})
	require.NoError(t, err)
	assert.Len(t, byAction, 2)

	limited, err := auditRepo.Query(ctx, port.AuditFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
