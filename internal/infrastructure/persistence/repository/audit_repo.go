package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/trungvu/tripflow/internal/application/port"
	"github.com/trungvu/tripflow/internal/domain/entity"
	"github.com/trungvu/tripflow/internal/infrastructure/persistence/sqlite"
)

// AuditRepository implements port.AuditRepository. Rows are append-only;
// there is intentionally no update or delete.
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) port.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Append writes one audit entry
func (r *AuditRepository) Append(ctx context.Context, e *entity.AuditEntry) error {
	query := `
		INSERT INTO audit_entries (
			trip_id, action, actor_email, actor_role,
			previous_status, new_status, note, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		e.TripID,
		string(e.Action),
		e.ActorEmail,
		e.ActorRole,
		e.PreviousStatus,
		e.NewStatus,
		e.Note,
		e.Timestamp,
	)
	if err != nil {
		r.logger.Error("Failed to append audit entry",
			zap.String("trip_id", e.TripID), zap.String("action", string(e.Action)), zap.Error(err))
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	e.ID = id
	return nil
}

// Query returns entries matching the filter in chronological order
func (r *AuditRepository) Query(ctx context.Context, filter port.AuditFilter) ([]*entity.AuditEntry, error) {
	query := `
		SELECT id, trip_id, action, actor_email, actor_role,
			previous_status, new_status, note, timestamp
		FROM audit_entries
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.TripID != "" {
		query += ` AND trip_id = ?`
		args = append(args, filter.TripID)
	}
	if filter.Actor != "" {
		query += ` AND actor_email = ?`
		args = append(args, filter.Actor)
	}
	if filter.Action != "" {
		query += ` AND action = ?`
		args = append(args, string(filter.Action))
	}

	query += ` ORDER BY timestamp, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query audit entries", zap.Error(err))
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*entity.AuditEntry
	for rows.Next() {
		var (
			e      entity.AuditEntry
			action string
		)
		if err := rows.Scan(
			&e.ID,
			&e.TripID,
			&action,
			&e.ActorEmail,
			&e.ActorRole,
			&e.PreviousStatus,
			&e.NewStatus,
			&e.Note,
			&e.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Action = entity.AuditAction(action)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit entries: %w", err)
	}

	return entries, nil
}

// getExecutor returns the ambient transaction when present, the pool otherwise
func (r *AuditRepository) getExecutor(ctx context.Context) executor {
	if tx := sqlite.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.db
}

// Verify interface compliance
var _ port.AuditRepository = (*AuditRepository)(nil)
