package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trungvu/tripflow/internal/application/port"
	"github.com/trungvu/tripflow/internal/domain/entity"
	"github.com/trungvu/tripflow/internal/domain/workflow"
)

// ProposeResult summarizes one optimization run.
type ProposeResult struct {
	ProposalsCreated int    `json:"proposals_created"`
	TripsAffected    int    `json:"trips_affected"`
	Message          string `json:"message"`
}

// OptimizerConfig holds optimization policy.
type OptimizerConfig struct {
	// DiscountRatio is the fraction of the solo estimated cost charged to a
	// combined trip. The savings heuristic inherited from operations; a
	// policy constant, not route-sharing math.
	DiscountRatio float64
}

// OptimizerService groups compatible approved trips into shared vehicle
// dispatches and settles the resulting proposals.
type OptimizerService interface {
	Propose(ctx context.Context, actor string) (*ProposeResult, error)
	ApproveGroup(ctx context.Context, groupID, actor string) (*entity.OptimizationGroup, error)
	RejectGroup(ctx context.Context, groupID, actor string) (*entity.OptimizationGroup, error)
	GetGroup(ctx context.Context, groupID string) (*entity.OptimizationGroup, error)
}

type optimizerServiceImpl struct {
	tripRepo  port.TripRepository
	groupRepo port.GroupRepository
	auditRepo port.AuditRepository
	txManager port.TransactionManager
	gateway   port.NotificationGateway
	cfg       OptimizerConfig
	now       func() time.Time
	logger    Logger
}

// NewOptimizerService creates a new OptimizerService
func NewOptimizerService(
	tripRepo port.TripRepository,
	groupRepo port.GroupRepository,
	auditRepo port.AuditRepository,
	txManager port.TransactionManager,
	gateway port.NotificationGateway,
	cfg OptimizerConfig,
	logger Logger,
) OptimizerService {
	return &optimizerServiceImpl{
		tripRepo:  tripRepo,
		groupRepo: groupRepo,
		auditRepo: auditRepo,
		txManager: txManager,
		gateway:   gateway,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger,
	}
}

// routeKey is the compatibility key: exact match on departure, destination
// and departure date.
type routeKey struct {
	departure   string
	destination string
	date        string
}

// Propose reads one consistent snapshot of ungrouped approved trips, clusters
// them by route and date, and persists one proposal per qualifying cluster.
// The pool is ordered by creation time, so repeated runs over an unchanged
// pool produce the same groupings.
func (s *optimizerServiceImpl) Propose(ctx context.Context, actor string) (*ProposeResult, error) {
	pool, err := s.tripRepo.ListOptimizationCandidates(ctx)
	if err != nil {
		s.logger.Error("Failed to load optimization candidates", "error", err)
		return nil, err
	}
	if len(pool) < 2 {
		return &ProposeResult{Message: "no eligible trips: at least 2 ungrouped approved trips required"}, nil
	}

	clusters := clusterByRoute(pool)

	created := 0
	affected := 0
	for _, cluster := range clusters {
		for _, members := range splitByCapacity(cluster) {
			if len(members) < 2 {
				continue
			}
			group := s.buildProposal(members, actor)
			if group.EstimatedSavings <= 0 {
				continue
			}
			ok, err := s.persistProposal(ctx, group)
			if err != nil {
				s.logger.Error("Failed to persist proposal", "error", err,
					"departure", group.Departure, "destination", group.Destination)
				return nil, err
			}
			if !ok {
				// A concurrent run grabbed one of the members first.
				s.logger.Info("Skipped proposal, member already linked",
					"departure", group.Departure, "destination", group.Destination)
				continue
			}
			created++
			affected += len(members)
			s.logger.Info("Optimization proposal created",
				"group_id", group.ID,
				"members", len(members),
				"savings", group.EstimatedSavings)
		}
	}

	result := &ProposeResult{ProposalsCreated: created, TripsAffected: affected}
	if created == 0 {
		result.Message = "no savings found: no compatible combination beats solo dispatch"
	} else {
		result.Message = fmt.Sprintf("created %d proposal(s) covering %d trip(s)", created, affected)
	}
	return result, nil
}

// clusterByRoute groups the pool by exact (departure, destination, date),
// preserving first-appearance order for determinism.
func clusterByRoute(pool []*entity.Trip) [][]*entity.Trip {
	byKey := make(map[routeKey][]*entity.Trip)
	var order []routeKey
	for _, trip := range pool {
		key := routeKey{
			departure:   trip.Departure,
			destination: trip.Destination,
			date:        trip.DepartureTime.Format("2006-01-02"),
		}
		if _, seen := byKey[key]; !seen {
			order = append(order, key)
		}
		byKey[key] = append(byKey[key], trip)
	}

	clusters := make([][]*entity.Trip, 0, len(order))
	for _, key := range order {
		if len(byKey[key]) >= 2 {
			clusters = append(clusters, byKey[key])
		}
	}
	return clusters
}

// splitByCapacity slices a cluster into chunks that fit the largest vehicle
// rather than overflowing it. Trips too large for any vehicle are dropped.
func splitByCapacity(cluster []*entity.Trip) [][]*entity.Trip {
	maxCap := entity.MaxVehicleCapacity()
	var chunks [][]*entity.Trip
	var current []*entity.Trip
	seats := 0
	for _, trip := range cluster {
		if trip.PassengerCount > maxCap {
			continue
		}
		if seats+trip.PassengerCount > maxCap && len(current) > 0 {
			chunks = append(chunks, current)
			current = nil
			seats = 0
		}
		current = append(current, trip)
		seats += trip.PassengerCount
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// buildProposal assembles the group record: earliest member departure as the
// unified time, the smallest vehicle that fits, and the discount savings.
func (s *optimizerServiceImpl) buildProposal(members []*entity.Trip, actor string) *entity.OptimizationGroup {
	passengers := 0
	savings := 0.0
	earliest := members[0].DepartureTime
	ids := make([]string, 0, len(members))
	for _, trip := range members {
		ids = append(ids, trip.ID)
		passengers += trip.PassengerCount
		if trip.EstimatedCost > 0 {
			savings += trip.EstimatedCost * (1 - s.cfg.DiscountRatio)
		}
		if trip.DepartureTime.Before(earliest) {
			earliest = trip.DepartureTime
		}
	}
	vehicle, _ := entity.VehicleFor(passengers)

	if actor == "" {
		actor = "system"
	}
	return &entity.OptimizationGroup{
		ID:                    uuid.NewString(),
		TripIDs:               ids,
		Departure:             members[0].Departure,
		Destination:           members[0].Destination,
		DepartureDate:         members[0].DepartureTime.Format("2006-01-02"),
		ProposedDepartureTime: earliest,
		VehicleType:           vehicle,
		PassengerCount:        passengers,
		EstimatedSavings:      savings,
		Status:                entity.GroupProposed,
		CreatedBy:             actor,
		CreatedAt:             s.now(),
	}
}

// persistProposal writes the group and links every member inside one
// transaction. The link write is guarded on "not yet linked": if any member
// was claimed by a concurrent run, the whole proposal rolls back.
func (s *optimizerServiceImpl) persistProposal(ctx context.Context, group *entity.OptimizationGroup) (bool, error) {
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.groupRepo.Create(txCtx, group); err != nil {
			return fmt.Errorf("create group: %w", err)
		}
		for _, tripID := range group.TripIDs {
			ok, err := s.tripRepo.LinkToGroup(txCtx, tripID, group.ID)
			if err != nil {
				return fmt.Errorf("link trip %s: %w", tripID, err)
			}
			if !ok {
				return errAlreadyProcessed
			}
		}
		return nil
	})
	if errors.Is(err, errAlreadyProcessed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ApproveGroup finalizes a proposal: the group settles to approved and every
// member trip becomes OPTIMIZED on the unified schedule with its discounted
// actual cost. Re-approving a settled group is a conflict, never a repeat.
func (s *optimizerServiceImpl) ApproveGroup(ctx context.Context, groupID, actor string) (*entity.OptimizationGroup, error) {
	group, err := s.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, ErrNotFound
	}
	if group.Status != entity.GroupProposed {
		return nil, fmt.Errorf("%w: group is %s", ErrStateConflict, group.Status)
	}

	now := s.now()
	members := make([]*entity.Trip, 0, len(group.TripIDs))
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		ok, err := s.groupRepo.Decide(txCtx, group.ID, entity.GroupApproved, actor, now)
		if err != nil {
			return fmt.Errorf("decide group: %w", err)
		}
		if !ok {
			return errAlreadyProcessed
		}

		for _, tripID := range group.TripIDs {
			trip, err := s.tripRepo.GetByID(txCtx, tripID)
			if err != nil {
				return err
			}
			if trip == nil || !trip.Status.IsApproved() {
				return fmt.Errorf("%w: member %s left the approved pool", ErrStateConflict, tripID)
			}

			actualCost := trip.EstimatedCost * s.cfg.DiscountRatio
			ok, err := s.tripRepo.Finalize(txCtx, trip.ID, group.ID, group.ProposedDepartureTime, group.VehicleType, actualCost)
			if err != nil {
				return fmt.Errorf("finalize trip %s: %w", trip.ID, err)
			}
			if !ok {
				return fmt.Errorf("%w: member %s changed concurrently", ErrStateConflict, trip.ID)
			}

			if err := s.auditRepo.Append(txCtx, &entity.AuditEntry{
				TripID:         trip.ID,
				Action:         entity.AuditGroupApprove,
				ActorEmail:     actor,
				ActorRole:      "admin",
				PreviousStatus: trip.Status.String(),
				NewStatus:      workflow.StateOptimized.String(),
				Note:           fmt.Sprintf("combined into group %s", group.ID),
				Timestamp:      now,
			}); err != nil {
				return err
			}

			original := trip.DepartureTime
			trip.OriginalDepartureTime = &original
			trip.DepartureTime = group.ProposedDepartureTime
			trip.VehicleType = group.VehicleType
			trip.Status = workflow.StateOptimized
			trip.ActualCost = &actualCost
			gid := group.ID
			trip.OptimizedGroupID = &gid
			members = append(members, trip)
		}
		return nil
	})
	if errors.Is(err, errAlreadyProcessed) {
		return nil, fmt.Errorf("%w: group already settled", ErrStateConflict)
	}
	if err != nil {
		if errors.Is(err, ErrStateConflict) {
			return nil, err
		}
		s.logger.Error("Failed to approve group", "error", err, "group_id", groupID)
		return nil, err
	}

	group.Status = entity.GroupApproved
	group.DecidedBy = actor
	group.DecidedAt = &now

	s.logger.Info("Optimization group approved",
		"group_id", group.ID,
		"members", len(members),
		"savings", group.EstimatedSavings)

	for _, trip := range members {
		if err := s.gateway.SendOptimizationNotice(ctx, trip, group); err != nil {
			s.logger.Error("Failed to send optimization notice", "error", err,
				"trip_id", trip.ID, "group_id", group.ID)
		}
	}
	return group, nil
}

// RejectGroup settles a proposal without touching member trips: they keep
// their approved status, schedule and costs, and only the group link is
// cleared so they rejoin the candidate pool.
func (s *optimizerServiceImpl) RejectGroup(ctx context.Context, groupID, actor string) (*entity.OptimizationGroup, error) {
	group, err := s.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, ErrNotFound
	}
	if group.Status != entity.GroupProposed {
		return nil, fmt.Errorf("%w: group is %s", ErrStateConflict, group.Status)
	}

	now := s.now()
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		ok, err := s.groupRepo.Decide(txCtx, group.ID, entity.GroupRejected, actor, now)
		if err != nil {
			return fmt.Errorf("decide group: %w", err)
		}
		if !ok {
			return errAlreadyProcessed
		}
		if err := s.tripRepo.UnlinkGroup(txCtx, group.ID); err != nil {
			return fmt.Errorf("unlink members: %w", err)
		}
		for _, tripID := range group.TripIDs {
			trip, err := s.tripRepo.GetByID(txCtx, tripID)
			if err != nil {
				return err
			}
			if trip == nil {
				continue
			}
			if err := s.auditRepo.Append(txCtx, &entity.AuditEntry{
				TripID:         tripID,
				Action:         entity.AuditGroupReject,
				ActorEmail:     actor,
				ActorRole:      "admin",
				PreviousStatus: trip.Status.String(),
				NewStatus:      trip.Status.String(),
				Note:           fmt.Sprintf("group %s rejected, trip stays solo", group.ID),
				Timestamp:      now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, errAlreadyProcessed) {
		return nil, fmt.Errorf("%w: group already settled", ErrStateConflict)
	}
	if err != nil {
		s.logger.Error("Failed to reject group", "error", err, "group_id", groupID)
		return nil, err
	}

	group.Status = entity.GroupRejected
	group.DecidedBy = actor
	group.DecidedAt = &now
	s.logger.Info("Optimization group rejected", "group_id", group.ID, "actor", actor)
	return group, nil
}

// GetGroup retrieves a group by ID
func (s *optimizerServiceImpl) GetGroup(ctx context.Context, groupID string) (*entity.OptimizationGroup, error) {
	group, err := s.groupRepo.GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if group == nil {
		return nil, ErrNotFound
	}
	return group, nil
}
