package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/trungvu/tripflow/internal/application/port"
	"github.com/trungvu/tripflow/internal/domain/entity"
	"github.com/trungvu/tripflow/internal/infrastructure/persistence/sqlite"
)

// GroupRepository implements port.GroupRepository
type GroupRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewGroupRepository creates a new group repository
func NewGroupRepository(db *sql.DB, logger *zap.Logger) port.GroupRepository {
	return &GroupRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists a group together with its member rows
func (r *GroupRepository) Create(ctx context.Context, group *entity.OptimizationGroup) error {
	query := `
		INSERT INTO optimization_groups (
			id, departure, destination, departure_date,
			proposed_departure_time, vehicle_type, passenger_count,
			estimated_savings, status, created_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	ex := r.getExecutor(ctx)
	_, err := ex.ExecContext(ctx, query,
		group.ID,
		group.Departure,
		group.Destination,
		group.DepartureDate,
		group.ProposedDepartureTime,
		string(group.VehicleType),
		group.PassengerCount,
		group.EstimatedSavings,
		string(group.Status),
		group.CreatedBy,
		group.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create group", zap.String("group_id", group.ID), zap.Error(err))
		return fmt.Errorf("failed to create group: %w", err)
	}

	for _, tripID := range group.TripIDs {
		_, err := ex.ExecContext(ctx,
			`INSERT INTO optimization_group_members (group_id, trip_id) VALUES (?, ?)`,
			group.ID, tripID)
		if err != nil {
			r.logger.Error("Failed to add group member",
				zap.String("group_id", group.ID), zap.String("trip_id", tripID), zap.Error(err))
			return fmt.Errorf("failed to add group member: %w", err)
		}
	}

	return nil
}

// GetByID retrieves a group with its member trip IDs, nil when absent
func (r *GroupRepository) GetByID(ctx context.Context, id string) (*entity.OptimizationGroup, error) {
	query := `
		SELECT id, departure, destination, departure_date,
			proposed_departure_time, vehicle_type, passenger_count,
			estimated_savings, status, created_by, decided_by,
			created_at, decided_at
		FROM optimization_groups
		WHERE id = ?
	`

	var (
		group       entity.OptimizationGroup
		vehicleType string
		status      string
		decidedBy   sql.NullString
		decidedAt   sql.NullTime
	)

	ex := r.getExecutor(ctx)
	err := ex.QueryRowContext(ctx, query, id).Scan(
		&group.ID,
		&group.Departure,
		&group.Destination,
		&group.DepartureDate,
		&group.ProposedDepartureTime,
		&vehicleType,
		&group.PassengerCount,
		&group.EstimatedSavings,
		&status,
		&group.CreatedBy,
		&decidedBy,
		&group.CreatedAt,
		&decidedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get group", zap.String("group_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	group.VehicleType = entity.VehicleType(vehicleType)
	group.Status = entity.GroupStatus(status)
	if decidedBy.Valid {
		group.DecidedBy = decidedBy.String
	}
	if decidedAt.Valid {
		group.DecidedAt = &decidedAt.Time
	}

	rows, err := ex.QueryContext(ctx,
		`SELECT trip_id FROM optimization_group_members WHERE group_id = ? ORDER BY trip_id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get group members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tripID string
		if err := rows.Scan(&tripID); err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}
		group.TripIDs = append(group.TripIDs, tripID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate group members: %w", err)
	}

	return &group, nil
}

// Decide settles a proposed group. Guarded on status still being PROPOSED, so
// concurrent approve/reject resolve to exactly one winner.
func (r *GroupRepository) Decide(ctx context.Context, id string, status entity.GroupStatus, actor string, decidedAt time.Time) (bool, error) {
	query := `
		UPDATE optimization_groups
		SET status = ?, decided_by = ?, decided_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		string(status), actor, decidedAt, id, string(entity.GroupProposed))
	if err != nil {
		r.logger.Error("Failed to decide group", zap.String("group_id", id), zap.Error(err))
		return false, fmt.Errorf("failed to decide group: %w", err)
	}
	return oneRowChanged(result)
}

// getExecutor returns the ambient transaction when present, the pool otherwise
func (r *GroupRepository) getExecutor(ctx context.Context) executor {
	if tx := sqlite.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.db
}

// Verify interface compliance
var _ port.GroupRepository = (*GroupRepository)(nil)
