package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/trungvu/tripflow/internal/application/port"
	"github.com/trungvu/tripflow/internal/domain/entity"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// SubmitRequest carries the itinerary and requester profile for a new trip.
type SubmitRequest struct {
	Requester      RequesterProfile
	Departure      string
	Destination    string
	DepartureTime  time.Time
	ReturnTime     time.Time
	DistanceKm     float64
	VehicleType    entity.VehicleType
	PassengerCount int
	CCEmails       []string
}

// SubmitResult is returned to the submitter with a human-readable message
// distinguishing the auto-approved, urgent and routine paths.
type SubmitResult struct {
	Trip    *entity.Trip
	Message string
}

// SubmissionConfig holds submission-time policy.
type SubmissionConfig struct {
	UrgencyWindow time.Duration
	ExemptRoles   []string
	PerKmRate     float64
	BaseURL       string
}

// SubmissionService accepts new trip requests and computes their initial
// lifecycle status.
type SubmissionService interface {
	Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error)
	GetTrip(ctx context.Context, id string) (*entity.Trip, error)
	ListTrips(ctx context.Context, status string, limit, offset int) ([]*entity.Trip, error)
}

type submissionServiceImpl struct {
	tripRepo  port.TripRepository
	auditRepo port.AuditRepository
	txManager port.TransactionManager
	codec     port.TokenCodec
	gateway   port.NotificationGateway
	cfg       SubmissionConfig
	now       func() time.Time
	logger    Logger
}

// NewSubmissionService creates a new SubmissionService
func NewSubmissionService(
	tripRepo port.TripRepository,
	auditRepo port.AuditRepository,
	txManager port.TransactionManager,
	codec port.TokenCodec,
	gateway port.NotificationGateway,
	cfg SubmissionConfig,
	logger Logger,
) SubmissionService {
	return &submissionServiceImpl{
		tripRepo:  tripRepo,
		auditRepo: auditRepo,
		txManager: txManager,
		codec:     codec,
		gateway:   gateway,
		cfg:       cfg,
		now:       time.Now,
		logger:    logger,
	}
}

// Submit validates and persists a new trip request. The trip row and its
// submission audit entry commit atomically; the approval email is attempted
// afterwards and never fails the submission.
func (s *submissionServiceImpl) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if err := validateSubmit(req); err != nil {
		return nil, err
	}

	existing, err := s.tripRepo.FindActiveDuplicate(ctx, req.Requester.ID, req.Departure, req.Destination, req.DepartureTime)
	if err != nil {
		s.logger.Error("Duplicate lookup failed", "error", err, "requester_id", req.Requester.ID)
		return nil, err
	}
	if existing != nil {
		return nil, &DuplicateError{ExistingTripID: existing.ID}
	}

	now := s.now()
	policy := ClassifyPolicy{UrgencyWindow: s.cfg.UrgencyWindow, ExemptRoles: s.cfg.ExemptRoles}
	decision := policy.ClassifyNewTrip(req.Requester, req.DepartureTime, now)

	passengers := req.PassengerCount
	if passengers == 0 {
		passengers = 1
	}

	trip := &entity.Trip{
		ID:             uuid.NewString(),
		RequesterID:    req.Requester.ID,
		RequesterName:  req.Requester.Name,
		RequesterEmail: req.Requester.Email,
		ManagerEmail:   req.Requester.ManagerEmail,
		Departure:      req.Departure,
		Destination:    req.Destination,
		DepartureTime:  req.DepartureTime,
		ReturnTime:     req.ReturnTime,
		VehicleType:    req.VehicleType,
		PassengerCount: passengers,
		EstimatedCost:  req.DistanceKm * s.cfg.PerKmRate * 2,
		Status:         decision.Status,
		ApprovalStatus: decision.ApprovalStatus,
		Urgent:         decision.Urgent,
		AutoApproved:   decision.AutoApproved,
		CCEmails:       req.CCEmails,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if decision.AutoApproved {
		trip.DecisionActor = "system"
		trip.DecisionTime = &now
	}
	if decision.NeedsToken {
		trip.TokenIssuedAt = &now
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.tripRepo.Create(txCtx, trip); err != nil {
			return fmt.Errorf("create trip: %w", err)
		}
		audit := &entity.AuditEntry{
			TripID:     trip.ID,
			Action:     entity.AuditSubmit,
			ActorEmail: trip.RequesterEmail,
			ActorRole:  "requester",
			NewStatus:  trip.Status.String(),
			Timestamp:  now,
		}
		if err := s.auditRepo.Append(txCtx, audit); err != nil {
			return fmt.Errorf("append audit: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to create trip", "error", err, "requester_id", req.Requester.ID)
		return nil, err
	}

	s.logger.Info("Trip submitted",
		"trip_id", trip.ID,
		"status", trip.Status,
		"urgent", trip.Urgent,
		"auto_approved", trip.AutoApproved)

	if decision.NeedsToken {
		s.notifyManager(ctx, trip, now)
	}

	return &SubmitResult{Trip: trip, Message: submitMessage(decision)}, nil
}

// notifyManager issues the decision token pair and emails the approval
// request. Best-effort: failures are logged, the submission stands.
func (s *submissionServiceImpl) notifyManager(ctx context.Context, trip *entity.Trip, issuedAt time.Time) {
	links, err := s.buildLinks(trip, issuedAt)
	if err != nil {
		s.logger.Error("Failed to issue approval tokens", "error", err, "trip_id", trip.ID)
		return
	}

	if trip.Urgent {
		err = s.gateway.SendUrgentApprovalRequest(ctx, trip, links)
	} else {
		err = s.gateway.SendApprovalRequest(ctx, trip, links)
	}
	if err != nil {
		s.logger.Error("Failed to send approval request", "error", err, "trip_id", trip.ID)
	}
}

func (s *submissionServiceImpl) buildLinks(trip *entity.Trip, issuedAt time.Time) (port.ApprovalLinks, error) {
	approve, err := s.codec.Issue(trip.ID, entity.ActionApprove, trip.ManagerEmail, issuedAt)
	if err != nil {
		return port.ApprovalLinks{}, err
	}
	reject, err := s.codec.Issue(trip.ID, entity.ActionReject, trip.ManagerEmail, issuedAt)
	if err != nil {
		return port.ApprovalLinks{}, err
	}
	return port.ApprovalLinks{
		ApproveURL: fmt.Sprintf("%s/approval/decide?token=%s", s.cfg.BaseURL, approve),
		RejectURL:  fmt.Sprintf("%s/approval/decide?token=%s", s.cfg.BaseURL, reject),
	}, nil
}

// GetTrip retrieves a trip by ID
func (s *submissionServiceImpl) GetTrip(ctx context.Context, id string) (*entity.Trip, error) {
	trip, err := s.tripRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get trip", "error", err, "trip_id", id)
		return nil, err
	}
	if trip == nil {
		return nil, ErrNotFound
	}
	return trip, nil
}

// ListTrips retrieves trips, optionally filtered by status
func (s *submissionServiceImpl) ListTrips(ctx context.Context, status string, limit, offset int) ([]*entity.Trip, error) {
	state := workflowState(status)
	if status != "" && state == "" {
		return nil, &ValidationError{Field: "status", Reason: "unknown status"}
	}
	trips, err := s.tripRepo.List(ctx, state, limit, offset)
	if err != nil {
		s.logger.Error("Failed to list trips", "error", err, "status", status)
		return nil, err
	}
	return trips, nil
}

func validateSubmit(req SubmitRequest) error {
	switch {
	case req.Requester.ID == "":
		return &ValidationError{Field: "requester_id", Reason: "required"}
	case req.Requester.Email == "":
		return &ValidationError{Field: "requester_email", Reason: "required"}
	case req.Departure == "":
		return &ValidationError{Field: "departure", Reason: "required"}
	case req.Destination == "":
		return &ValidationError{Field: "destination", Reason: "required"}
	case req.Destination == req.Departure:
		return &ValidationError{Field: "destination", Reason: "must differ from departure"}
	case req.DepartureTime.IsZero():
		return &ValidationError{Field: "departure_time", Reason: "required"}
	case req.ReturnTime.IsZero():
		return &ValidationError{Field: "return_time", Reason: "required"}
	case !req.ReturnTime.After(req.DepartureTime):
		return &ValidationError{Field: "return_time", Reason: "must be after departure time"}
	case !req.VehicleType.IsValid():
		return &ValidationError{Field: "vehicle_type", Reason: "unknown vehicle type"}
	case req.PassengerCount < 0:
		return &ValidationError{Field: "passenger_count", Reason: "must be positive"}
	case req.DistanceKm < 0:
		return &ValidationError{Field: "distance_km", Reason: "must not be negative"}
	}
	return nil
}

func submitMessage(d InitialDecision) string {
	switch {
	case d.AutoApproved:
		return "Trip auto-approved: no manager approval required."
	case d.Urgent:
		return "Urgent trip submitted: manager and administrators have been notified for expedited approval."
	default:
		return "Trip submitted: awaiting manager approval."
	}
}
