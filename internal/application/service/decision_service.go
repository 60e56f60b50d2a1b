package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/trungvu/tripflow/internal/application/port"
	"github.com/trungvu/tripflow/internal/domain/entity"
	"github.com/trungvu/tripflow/internal/domain/workflow"
)

// DecideOutcome classifies the result of an approval-link click for the
// rendered outcome page.
type DecideOutcome string

const (
	OutcomeApproved         DecideOutcome = "APPROVED"
	OutcomeRejected         DecideOutcome = "REJECTED"
	OutcomeAlreadyProcessed DecideOutcome = "ALREADY_PROCESSED"
	OutcomeExpired          DecideOutcome = "EXPIRED"
	OutcomeInvalid          DecideOutcome = "INVALID"
)

// DecideResult is the outcome of a token-borne decision attempt.
type DecideResult struct {
	Outcome DecideOutcome
	Trip    *entity.Trip
}

// errAlreadyProcessed aborts a decision transaction when the guarded write
// finds the approval no longer pending. Internal to this package.
var errAlreadyProcessed = errors.New("decision already processed")

// OptimizeTrigger fires an optimization run after an approval. Failures are
// the trigger's own problem; the approval has already committed.
type OptimizeTrigger interface {
	Propose(ctx context.Context, actor string) (*ProposeResult, error)
}

// DecisionService processes manager decisions arriving by token link,
// admin overrides and cancellations.
type DecisionService interface {
	DecideByToken(ctx context.Context, rawToken string) (*DecideResult, error)
	AdminOverride(ctx context.Context, tripID string, action entity.DecisionAction, reason, actor string) (*entity.Trip, error)
	Cancel(ctx context.Context, tripID, actor string) (*entity.Trip, error)
	IsAdmin(actor string) bool
}

type decisionServiceImpl struct {
	tripRepo  port.TripRepository
	auditRepo port.AuditRepository
	txManager port.TransactionManager
	codec     port.TokenCodec
	gateway   port.NotificationGateway
	optimizer OptimizeTrigger
	admins    []string
	now       func() time.Time
	logger    Logger
}

// NewDecisionService creates a new DecisionService. The optimizer trigger
// may be nil, in which case approvals do not kick off optimization runs.
func NewDecisionService(
	tripRepo port.TripRepository,
	auditRepo port.AuditRepository,
	txManager port.TransactionManager,
	codec port.TokenCodec,
	gateway port.NotificationGateway,
	optimizer OptimizeTrigger,
	admins []string,
	logger Logger,
) DecisionService {
	return &decisionServiceImpl{
		tripRepo:  tripRepo,
		auditRepo: auditRepo,
		txManager: txManager,
		codec:     codec,
		gateway:   gateway,
		optimizer: optimizer,
		admins:    admins,
		now:       time.Now,
		logger:    logger,
	}
}

// DecideByToken verifies the token, re-checks the approval is still pending
// immediately before the write, and applies the embedded decision. Invalid
// or expired tokens never mutate trip state beyond the one-shot expiry
// notification flag.
func (s *decisionServiceImpl) DecideByToken(ctx context.Context, rawToken string) (*DecideResult, error) {
	token, err := s.codec.Verify(rawToken)
	if err != nil {
		if errors.Is(err, port.ErrTokenExpired) && token != nil {
			return s.handleExpiredToken(ctx, token)
		}
		s.logger.Info("Rejected approval token", "error", err)
		return &DecideResult{Outcome: OutcomeInvalid}, nil
	}

	trip, err := s.tripRepo.GetByID(ctx, token.TripID)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return &DecideResult{Outcome: OutcomeInvalid}, nil
	}
	if trip.ApprovalStatus != entity.ApprovalPending {
		return &DecideResult{Outcome: OutcomeAlreadyProcessed, Trip: trip}, nil
	}

	trigger := workflow.TriggerManagerApprove
	auditAction := entity.AuditManagerApprove
	outcome := OutcomeApproved
	if token.Action == entity.ActionReject {
		trigger = workflow.TriggerManagerReject
		auditAction = entity.AuditManagerReject
		outcome = OutcomeRejected
	}

	newState, err := workflow.Next(trip.Status, trigger)
	if err != nil {
		// Status moved underneath the link, e.g. the trip was cancelled.
		return &DecideResult{Outcome: OutcomeAlreadyProcessed, Trip: trip}, nil
	}

	actor := token.Manager
	if actor == "" {
		actor = trip.ManagerEmail
	}
	decision := entity.Decision{
		Status:         newState,
		ApprovalStatus: approvalStatusFor(token.Action),
		Actor:          actor,
		DecidedAt:      s.now(),
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		ok, err := s.tripRepo.ApplyDecision(txCtx, trip.ID, entity.ApprovalPending, decision)
		if err != nil {
			return fmt.Errorf("apply decision: %w", err)
		}
		if !ok {
			return errAlreadyProcessed
		}
		return s.auditRepo.Append(txCtx, &entity.AuditEntry{
			TripID:         trip.ID,
			Action:         auditAction,
			ActorEmail:     actor,
			ActorRole:      "manager",
			PreviousStatus: trip.Status.String(),
			NewStatus:      newState.String(),
			Timestamp:      decision.DecidedAt,
		})
	})
	if errors.Is(err, errAlreadyProcessed) {
		return &DecideResult{Outcome: OutcomeAlreadyProcessed, Trip: trip}, nil
	}
	if err != nil {
		s.logger.Error("Failed to commit decision", "error", err, "trip_id", trip.ID)
		return nil, err
	}

	s.applyDecisionLocally(trip, decision)
	s.logger.Info("Manager decision committed",
		"trip_id", trip.ID,
		"action", string(token.Action),
		"status", newState)

	if err := s.gateway.SendDecisionConfirmation(ctx, trip); err != nil {
		s.logger.Error("Failed to send decision confirmation", "error", err, "trip_id", trip.ID)
	}
	if outcome == OutcomeApproved {
		s.triggerOptimization(actor)
	}

	return &DecideResult{Outcome: outcome, Trip: trip}, nil
}

// handleExpiredToken records the expiry exactly once per trip, guarded by
// the notification flag, and escalates to requester and admins.
func (s *decisionServiceImpl) handleExpiredToken(ctx context.Context, token *port.ApprovalToken) (*DecideResult, error) {
	trip, err := s.tripRepo.GetByID(ctx, token.TripID)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return &DecideResult{Outcome: OutcomeInvalid}, nil
	}
	if trip.ApprovalStatus != entity.ApprovalPending && trip.ApprovalStatus != entity.ApprovalExpired {
		return &DecideResult{Outcome: OutcomeAlreadyProcessed, Trip: trip}, nil
	}

	var flipped bool
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		ok, err := s.tripRepo.MarkExpiryNotified(txCtx, trip.ID)
		if err != nil {
			return fmt.Errorf("mark expiry notified: %w", err)
		}
		flipped = ok
		if !ok {
			return nil
		}
		return s.auditRepo.Append(txCtx, &entity.AuditEntry{
			TripID:         trip.ID,
			Action:         entity.AuditTokenExpired,
			ActorEmail:     "system",
			ActorRole:      "system",
			PreviousStatus: trip.Status.String(),
			NewStatus:      trip.Status.String(),
			Note:           "approval token expired, manual override required",
			Timestamp:      s.now(),
		})
	})
	if err != nil {
		s.logger.Error("Failed to record token expiry", "error", err, "trip_id", trip.ID)
		return nil, err
	}

	if flipped {
		s.logger.Info("Approval token expired", "trip_id", trip.ID)
		if err := s.gateway.SendExpiryEscalation(ctx, trip); err != nil {
			s.logger.Error("Failed to send expiry escalation", "error", err, "trip_id", trip.ID)
		}
	}

	return &DecideResult{Outcome: OutcomeExpired, Trip: trip}, nil
}

// AdminOverride settles a trip whose manager decision never arrived.
// Approval lands in APPROVED_SOLO, not APPROVED, so audit queries can tell
// the two apart. Requires administrative authority and a non-empty reason.
func (s *decisionServiceImpl) AdminOverride(ctx context.Context, tripID string, action entity.DecisionAction, reason, actor string) (*entity.Trip, error) {
	if !s.IsAdmin(actor) {
		return nil, ErrUnauthorized
	}
	if strings.TrimSpace(reason) == "" {
		return nil, &ValidationError{Field: "reason", Reason: "required for override audit"}
	}
	if !action.IsValid() {
		return nil, &ValidationError{Field: "action", Reason: "must be APPROVE or REJECT"}
	}

	trip, err := s.tripRepo.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, ErrNotFound
	}
	expected := trip.ApprovalStatus
	if expected != entity.ApprovalPending && expected != entity.ApprovalExpired {
		return nil, fmt.Errorf("%w: approval is %s", ErrStateConflict, expected)
	}

	trigger := workflow.TriggerAdminApprove
	auditAction := entity.AuditAdminOverrideApprove
	if action == entity.ActionReject {
		trigger = workflow.TriggerAdminReject
		auditAction = entity.AuditAdminOverrideReject
	}
	newState, err := workflow.Next(trip.Status, trigger)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrStateConflict, trip.Status)
	}

	decision := entity.Decision{
		Status:         newState,
		ApprovalStatus: approvalStatusFor(action),
		Actor:          actor,
		DecidedAt:      s.now(),
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		ok, err := s.tripRepo.ApplyDecision(txCtx, trip.ID, expected, decision)
		if err != nil {
			return fmt.Errorf("apply override: %w", err)
		}
		if !ok {
			return errAlreadyProcessed
		}
		return s.auditRepo.Append(txCtx, &entity.AuditEntry{
			TripID:         trip.ID,
			Action:         auditAction,
			ActorEmail:     actor,
			ActorRole:      "admin",
			PreviousStatus: trip.Status.String(),
			NewStatus:      newState.String(),
			Note:           reason,
			Timestamp:      decision.DecidedAt,
		})
	})
	if errors.Is(err, errAlreadyProcessed) {
		return nil, fmt.Errorf("%w: decision already processed", ErrStateConflict)
	}
	if err != nil {
		s.logger.Error("Failed to commit admin override", "error", err, "trip_id", trip.ID)
		return nil, err
	}

	s.applyDecisionLocally(trip, decision)
	s.logger.Info("Admin override committed",
		"trip_id", trip.ID,
		"action", string(action),
		"actor", actor,
		"reason", reason)

	if err := s.gateway.SendDecisionConfirmation(ctx, trip); err != nil {
		s.logger.Error("Failed to send override confirmation", "error", err, "trip_id", trip.ID)
	}
	if action == entity.ActionApprove {
		s.triggerOptimization(actor)
	}

	return trip, nil
}

// Cancel terminates a trip that has not yet been optimized or settled.
func (s *decisionServiceImpl) Cancel(ctx context.Context, tripID, actor string) (*entity.Trip, error) {
	trip, err := s.tripRepo.GetByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if trip == nil {
		return nil, ErrNotFound
	}
	if !workflow.Allowed(trip.Status, workflow.TriggerCancel) {
		return nil, fmt.Errorf("%w: cannot cancel from %s", ErrStateConflict, trip.Status)
	}

	now := s.now()
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		ok, err := s.tripRepo.UpdateStatusIf(txCtx, trip.ID, trip.Status, workflow.StateCancelled)
		if err != nil {
			return fmt.Errorf("cancel trip: %w", err)
		}
		if !ok {
			return errAlreadyProcessed
		}
		return s.auditRepo.Append(txCtx, &entity.AuditEntry{
			TripID:         trip.ID,
			Action:         entity.AuditCancel,
			ActorEmail:     actor,
			ActorRole:      "requester",
			PreviousStatus: trip.Status.String(),
			NewStatus:      workflow.StateCancelled.String(),
			Timestamp:      now,
		})
	})
	if errors.Is(err, errAlreadyProcessed) {
		return nil, fmt.Errorf("%w: status changed concurrently", ErrStateConflict)
	}
	if err != nil {
		s.logger.Error("Failed to cancel trip", "error", err, "trip_id", trip.ID)
		return nil, err
	}

	trip.Status = workflow.StateCancelled
	trip.UpdatedAt = now
	s.logger.Info("Trip cancelled", "trip_id", trip.ID, "actor", actor)
	return trip, nil
}

// IsAdmin reports whether the actor is on the configured admin list.
func (s *decisionServiceImpl) IsAdmin(actor string) bool {
	for _, a := range s.admins {
		if strings.EqualFold(a, actor) {
			return true
		}
	}
	return false
}

// triggerOptimization fires an optimization run over the approved pool in
// the background. The approval transition has already committed; a failed
// run is logged and retried by the next trigger.
func (s *decisionServiceImpl) triggerOptimization(actor string) {
	if s.optimizer == nil {
		return
	}
	go func() {
		defer func() {
			if p := recover(); p != nil {
				s.logger.Error("Optimization trigger panicked", "panic", p)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := s.optimizer.Propose(ctx, actor); err != nil {
			s.logger.Error("Post-approval optimization run failed", "error", err)
		}
	}()
}

func (s *decisionServiceImpl) applyDecisionLocally(trip *entity.Trip, d entity.Decision) {
	trip.Status = d.Status
	trip.ApprovalStatus = d.ApprovalStatus
	trip.DecisionActor = d.Actor
	t := d.DecidedAt
	trip.DecisionTime = &t
	trip.UpdatedAt = t
}

func approvalStatusFor(action entity.DecisionAction) entity.ApprovalStatus {
	if action == entity.ActionReject {
		return entity.ApprovalRejected
	}
	return entity.ApprovalApproved
}
