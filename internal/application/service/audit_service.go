package service

import (
	"context"

	"github.com/trungvu/tripflow/internal/application/port"
	"github.com/trungvu/tripflow/internal/domain/entity"
)

// AuditService exposes read-only access to the transition audit trail.
type AuditService interface {
	Query(ctx context.Context, filter port.AuditFilter) ([]*entity.AuditEntry, error)
}

type auditServiceImpl struct {
	auditRepo port.AuditRepository
	logger    Logger
}

// NewAuditService creates a new AuditService
func NewAuditService(auditRepo port.AuditRepository, logger Logger) AuditService {
	return &auditServiceImpl{auditRepo: auditRepo, logger: logger}
}

// Query returns audit entries matching the filter in chronological order.
func (s *auditServiceImpl) Query(ctx context.Context, filter port.AuditFilter) ([]*entity.AuditEntry, error) {
	entries, err := s.auditRepo.Query(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to query audit log", "error", err)
		return nil, err
	}
	return entries, nil
}
