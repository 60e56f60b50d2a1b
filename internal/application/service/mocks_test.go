package service

import (
	"context"
	"time"

	"github.com/trungvu/tripflow/internal/application/port"
	"github.com/trungvu/tripflow/internal/domain/entity"
	"github.com/trungvu/tripflow/internal/domain/workflow"
)

// Mock repositories and gateways. Each method delegates to an optional func
// field so tests override only what they assert on.

type mockTripRepo struct {
	createFunc              func(ctx context.Context, trip *entity.Trip) error
	getByIDFunc             func(ctx context.Context, id string) (*entity.Trip, error)
	findActiveDuplicateFunc func(ctx context.Context, requesterID, departure, destination string, departureTime time.Time) (*entity.Trip, error)
	listFunc                func(ctx context.Context, status workflow.State, limit, offset int) ([]*entity.Trip, error)
	listCandidatesFunc      func(ctx context.Context) ([]*entity.Trip, error)
	listStalePendingFunc    func(ctx context.Context, cutoff time.Time) ([]*entity.Trip, error)
	applyDecisionFunc       func(ctx context.Context, tripID string, expected entity.ApprovalStatus, decision entity.Decision) (bool, error)
	updateStatusIfFunc      func(ctx context.Context, tripID string, from, to workflow.State) (bool, error)
	markExpiredFunc         func(ctx context.Context, tripID string) (bool, error)
	markExpiryNotifiedFunc  func(ctx context.Context, tripID string) (bool, error)
	linkToGroupFunc         func(ctx context.Context, tripID, groupID string) (bool, error)
	unlinkGroupFunc         func(ctx context.Context, groupID string) error
	finalizeFunc            func(ctx context.Context, tripID, groupID string, departureTime time.Time, vehicleType entity.VehicleType, actualCost float64) (bool, error)
}

func (m *mockTripRepo) Create(ctx context.Context, trip *entity.Trip) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, trip)
	}
	return nil
}

func (m *mockTripRepo) GetByID(ctx context.Context, id string) (*entity.Trip, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockTripRepo) FindActiveDuplicate(ctx context.Context, requesterID, departure, destination string, departureTime time.Time) (*entity.Trip, error) {
	if m.findActiveDuplicateFunc != nil {
		return m.findActiveDuplicateFunc(ctx, requesterID, departure, destination, departureTime)
	}
	return nil, nil
}

func (m *mockTripRepo) List(ctx context.Context, status workflow.State, limit, offset int) ([]*entity.Trip, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, status, limit, offset)
	}
	return nil, nil
}

func (m *mockTripRepo) ListOptimizationCandidates(ctx context.Context) ([]*entity.Trip, error) {
	if m.listCandidatesFunc != nil {
		return m.listCandidatesFunc(ctx)
	}
	return nil, nil
}

func (m *mockTripRepo) ListStalePending(ctx context.Context, cutoff time.Time) ([]*entity.Trip, error) {
	if m.listStalePendingFunc != nil {
		return m.listStalePendingFunc(ctx, cutoff)
	}
	return nil, nil
}

func (m *mockTripRepo) ApplyDecision(ctx context.Context, tripID string, expected entity.ApprovalStatus, decision entity.Decision) (bool, error) {
	if m.applyDecisionFunc != nil {
		return m.applyDecisionFunc(ctx, tripID, expected, decision)
	}
	return true, nil
}

func (m *mockTripRepo) UpdateStatusIf(ctx context.Context, tripID string, from, to workflow.State) (bool, error) {
	if m.updateStatusIfFunc != nil {
		return m.updateStatusIfFunc(ctx, tripID, from, to)
	}
	return true, nil
}

func (m *mockTripRepo) MarkExpired(ctx context.Context, tripID string) (bool, error) {
	if m.markExpiredFunc != nil {
		return m.markExpiredFunc(ctx, tripID)
	}
	return true, nil
}

func (m *mockTripRepo) MarkExpiryNotified(ctx context.Context, tripID string) (bool, error) {
	if m.markExpiryNotifiedFunc != nil {
		return m.markExpiryNotifiedFunc(ctx, tripID)
	}
	return true, nil
}

func (m *mockTripRepo) LinkToGroup(ctx context.Context, tripID, groupID string) (bool, error) {
	if m.linkToGroupFunc != nil {
		return m.linkToGroupFunc(ctx, tripID, groupID)
	}
	return true, nil
}

func (m *mockTripRepo) UnlinkGroup(ctx context.Context, groupID string) error {
	if m.unlinkGroupFunc != nil {
		return m.unlinkGroupFunc(ctx, groupID)
	}
	return nil
}

func (m *mockTripRepo) Finalize(ctx context.Context, tripID, groupID string, departureTime time.Time, vehicleType entity.VehicleType, actualCost float64) (bool, error) {
	if m.finalizeFunc != nil {
		return m.finalizeFunc(ctx, tripID, groupID, departureTime, vehicleType, actualCost)
	}
	return true, nil
}

type mockGroupRepo struct {
	createFunc  func(ctx context.Context, group *entity.OptimizationGroup) error
	getByIDFunc func(ctx context.Context, id string) (*entity.OptimizationGroup, error)
	decideFunc  func(ctx context.Context, id string, status entity.GroupStatus, actor string, decidedAt time.Time) (bool, error)
}

func (m *mockGroupRepo) Create(ctx context.Context, group *entity.OptimizationGroup) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, group)
	}
	return nil
}

func (m *mockGroupRepo) GetByID(ctx context.Context, id string) (*entity.OptimizationGroup, error) {
	if m.getByIDFunc != nil {
		return m.getByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockGroupRepo) Decide(ctx context.Context, id string, status entity.GroupStatus, actor string, decidedAt time.Time) (bool, error) {
	if m.decideFunc != nil {
		return m.decideFunc(ctx, id, status, actor, decidedAt)
	}
	return true, nil
}

// mockAuditRepo records appended entries in order.
type mockAuditRepo struct {
	appendFunc func(ctx context.Context, e *entity.AuditEntry) error
	entries    []*entity.AuditEntry
}

func (m *mockAuditRepo) Append(ctx context.Context, e *entity.AuditEntry) error {
	if m.appendFunc != nil {
		return m.appendFunc(ctx, e)
	}
	e.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockAuditRepo) Query(ctx context.Context, filter port.AuditFilter) ([]*entity.AuditEntry, error) {
	return m.entries, nil
}

// mockTxManager runs the function directly; there is no real transaction.
type mockTxManager struct{}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockCodec struct {
	issueFunc  func(tripID string, action entity.DecisionAction, manager string, issuedAt time.Time) (string, error)
	verifyFunc func(raw string) (*port.ApprovalToken, error)
}

func (m *mockCodec) Issue(tripID string, action entity.DecisionAction, manager string, issuedAt time.Time) (string, error) {
	if m.issueFunc != nil {
		return m.issueFunc(tripID, action, manager, issuedAt)
	}
	return "token-" + tripID + "-" + string(action), nil
}

func (m *mockCodec) Verify(raw string) (*port.ApprovalToken, error) {
	if m.verifyFunc != nil {
		return m.verifyFunc(raw)
	}
	return nil, port.ErrTokenInvalid
}

// mockGateway counts sends per kind.
type mockGateway struct {
	approvalRequests  int
	urgentRequests    int
	confirmations     int
	escalations       int
	optimizationNotes int
	lastLinks         port.ApprovalLinks
	sendErr           error
}

func (m *mockGateway) SendApprovalRequest(ctx context.Context, trip *entity.Trip, links port.ApprovalLinks) error {
	m.approvalRequests++
	m.lastLinks = links
	return m.sendErr
}

func (m *mockGateway) SendUrgentApprovalRequest(ctx context.Context, trip *entity.Trip, links port.ApprovalLinks) error {
	m.urgentRequests++
	m.lastLinks = links
	return m.sendErr
}

func (m *mockGateway) SendDecisionConfirmation(ctx context.Context, trip *entity.Trip) error {
	m.confirmations++
	return m.sendErr
}

func (m *mockGateway) SendExpiryEscalation(ctx context.Context, trip *entity.Trip) error {
	m.escalations++
	return m.sendErr
}

func (m *mockGateway) SendOptimizationNotice(ctx context.Context, trip *entity.Trip, group *entity.OptimizationGroup) error {
	m.optimizationNotes++
	return m.sendErr
}

type noopLogger struct{}

func (noopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (noopLogger) Error(msg string, keysAndValues ...interface{}) {}
