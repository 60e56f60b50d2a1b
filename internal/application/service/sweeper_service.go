package service

import (
	"context"
	"fmt"
	"time"

	"github.com/trungvu/tripflow/internal/application/port"
	"github.com/trungvu/tripflow/internal/domain/entity"
	"github.com/trungvu/tripflow/internal/domain/workflow"
)

// SweeperService scans for trips whose pending decision outlived the token
// validity window and runs the expiry path for each, exactly once per trip.
type SweeperService interface {
	ExpireStale(ctx context.Context) (int, error)
}

type sweeperServiceImpl struct {
	tripRepo  port.TripRepository
	auditRepo port.AuditRepository
	txManager port.TransactionManager
	gateway   port.NotificationGateway
	tokenTTL  time.Duration
	now       func() time.Time
	logger    Logger
}

// NewSweeperService creates a new SweeperService. tokenTTL must match the
// validity window the token codec stamps into issued tokens.
func NewSweeperService(
	tripRepo port.TripRepository,
	auditRepo port.AuditRepository,
	txManager port.TransactionManager,
	gateway port.NotificationGateway,
	tokenTTL time.Duration,
	logger Logger,
) SweeperService {
	return &sweeperServiceImpl{
		tripRepo:  tripRepo,
		auditRepo: auditRepo,
		txManager: txManager,
		gateway:   gateway,
		tokenTTL:  tokenTTL,
		now:       time.Now,
		logger:    logger,
	}
}

// ExpireStale marks aged-out pending trips EXPIRED and escalates each to the
// requester and admins. The status flip and the one-shot notification flag
// commit together, so a trip can never be escalated twice. Per-trip failures
// are logged and retried on the next sweep.
func (s *sweeperServiceImpl) ExpireStale(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.tokenTTL)
	stale, err := s.tripRepo.ListStalePending(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale pending trips: %w", err)
	}

	expired := 0
	for _, trip := range stale {
		if err := s.expireOne(ctx, trip); err != nil {
			s.logger.Error("Failed to expire trip", "error", err, "trip_id", trip.ID)
			continue
		}
		expired++
	}

	if expired > 0 {
		s.logger.Info("Expiry sweep complete", "expired", expired, "scanned", len(stale))
	}
	return expired, nil
}

func (s *sweeperServiceImpl) expireOne(ctx context.Context, trip *entity.Trip) error {
	now := s.now()
	var flipped bool
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		ok, err := s.tripRepo.MarkExpired(txCtx, trip.ID)
		if err != nil {
			return err
		}
		flipped = ok
		if !ok {
			// Lost to a concurrent decision or an earlier sweep.
			return nil
		}
		return s.auditRepo.Append(txCtx, &entity.AuditEntry{
			TripID:         trip.ID,
			Action:         entity.AuditTokenExpired,
			ActorEmail:     "system",
			ActorRole:      "system",
			PreviousStatus: trip.Status.String(),
			NewStatus:      workflow.StateExpired.String(),
			Note:           "approval window lapsed without a manager decision",
			Timestamp:      now,
		})
	})
	if err != nil {
		return err
	}
	if !flipped {
		return nil
	}

	trip.Status = workflow.StateExpired
	trip.ApprovalStatus = entity.ApprovalExpired
	if err := s.gateway.SendExpiryEscalation(ctx, trip); err != nil {
		s.logger.Error("Failed to send expiry escalation", "error", err, "trip_id", trip.ID)
	}
	return nil
}
