package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/trungvu/tripflow/internal/application/port"
	"github.com/trungvu/tripflow/internal/domain/entity"
	"github.com/trungvu/tripflow/internal/domain/workflow"
	"github.com/trungvu/tripflow/internal/infrastructure/persistence/sqlite"
)

const tripColumns = `
	id, requester_id, requester_name, requester_email, manager_email,
	departure, destination, departure_time, return_time,
	vehicle_type, passenger_count, estimated_cost, actual_cost,
	status, approval_status, decision_actor, decision_time,
	urgent, auto_approved, token_issued_at, expired_notification_sent,
	optimized_group_id, original_departure_time, cc_emails,
	created_at, updated_at`

// TripRepository implements port.TripRepository
type TripRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTripRepository creates a new trip repository
func NewTripRepository(db *sql.DB, logger *zap.Logger) port.TripRepository {
	return &TripRepository{
		db:     db,
		logger: logger,
	}
}

// Create persists a new trip
func (r *TripRepository) Create(ctx context.Context, trip *entity.Trip) error {
	query := `
		INSERT INTO trips (` + tripColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.getExecutor(ctx).ExecContext(ctx, query,
		trip.ID,
		trip.RequesterID,
		trip.RequesterName,
		trip.RequesterEmail,
		trip.ManagerEmail,
		trip.Departure,
		trip.Destination,
		trip.DepartureTime,
		trip.ReturnTime,
		string(trip.VehicleType),
		trip.PassengerCount,
		trip.EstimatedCost,
		trip.ActualCost,
		trip.Status.String(),
		string(trip.ApprovalStatus),
		trip.DecisionActor,
		trip.DecisionTime,
		trip.Urgent,
		trip.AutoApproved,
		trip.TokenIssuedAt,
		trip.ExpiredNotificationSent,
		trip.OptimizedGroupID,
		trip.OriginalDepartureTime,
		strings.Join(trip.CCEmails, ","),
		trip.CreatedAt,
		trip.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create trip", zap.String("trip_id", trip.ID), zap.Error(err))
		return fmt.Errorf("failed to create trip: %w", err)
	}

	return nil
}

// GetByID retrieves a trip by ID, returning nil when it does not exist
func (r *TripRepository) GetByID(ctx context.Context, id string) (*entity.Trip, error) {
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = ?`

	trip, err := scanTrip(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get trip", zap.String("trip_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}
	return trip, nil
}

// FindActiveDuplicate looks up a non-terminal trip with the same requester,
// route and departure time.
func (r *TripRepository) FindActiveDuplicate(ctx context.Context, requesterID, departure, destination string, departureTime time.Time) (*entity.Trip, error) {
	query := `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE requester_id = ? AND departure = ? AND destination = ?
			AND departure_time = ?
			AND status NOT IN (?, ?)
		LIMIT 1
	`

	trip, err := scanTrip(r.getExecutor(ctx).QueryRowContext(ctx, query,
		requesterID, departure, destination, departureTime,
		workflow.StateRejected.String(), workflow.StateCancelled.String(),
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to check duplicate trip", zap.String("requester_id", requesterID), zap.Error(err))
		return nil, fmt.Errorf("failed to check duplicate: %w", err)
	}
	return trip, nil
}

// List retrieves trips ordered by creation time, optionally filtered by status
func (r *TripRepository) List(ctx context.Context, status workflow.State, limit, offset int) ([]*entity.Trip, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + tripColumns + ` FROM trips`
	args := []interface{}{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status.String())
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list trips", zap.Error(err))
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	defer rows.Close()

	return collectTrips(rows)
}

// ListOptimizationCandidates returns the ungrouped approved pool in a stable
// order: creation time, then ID.
func (r *TripRepository) ListOptimizationCandidates(ctx context.Context) ([]*entity.Trip, error) {
	query := `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE status IN (?, ?, ?) AND optimized_group_id IS NULL
		ORDER BY created_at, id
	`

	states := workflow.ApprovedStates()
	rows, err := r.getExecutor(ctx).QueryContext(ctx, query,
		states[0].String(), states[1].String(), states[2].String())
	if err != nil {
		r.logger.Error("Failed to list optimization candidates", zap.Error(err))
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	defer rows.Close()

	return collectTrips(rows)
}

// ListStalePending returns trips still pending whose token was issued at or
// before the cutoff and that have not yet triggered the expiry notification.
func (r *TripRepository) ListStalePending(ctx context.Context, cutoff time.Time) ([]*entity.Trip, error) {
	query := `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE approval_status = ?
			AND token_issued_at IS NOT NULL AND token_issued_at <= ?
			AND expired_notification_sent = 0
		ORDER BY token_issued_at, id
	`

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, string(entity.ApprovalPending), cutoff)
	if err != nil {
		r.logger.Error("Failed to list stale pending trips", zap.Error(err))
		return nil, fmt.Errorf("failed to list stale pending trips: %w", err)
	}
	defer rows.Close()

	return collectTrips(rows)
}

// ApplyDecision commits an approval decision. The WHERE clause re-checks the
// expected approval status, so of two racing decisions only one returns true.
func (r *TripRepository) ApplyDecision(ctx context.Context, tripID string, expected entity.ApprovalStatus, decision entity.Decision) (bool, error) {
	query := `
		UPDATE trips
		SET status = ?, approval_status = ?, decision_actor = ?, decision_time = ?, updated_at = ?
		WHERE id = ? AND approval_status = ?
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		decision.Status.String(),
		string(decision.ApprovalStatus),
		decision.Actor,
		decision.DecidedAt,
		decision.DecidedAt,
		tripID,
		string(expected),
	)
	if err != nil {
		r.logger.Error("Failed to apply decision", zap.String("trip_id", tripID), zap.Error(err))
		return false, fmt.Errorf("failed to apply decision: %w", err)
	}
	return oneRowChanged(result)
}

// UpdateStatusIf moves a trip between lifecycle states, guarded on the
// current state.
func (r *TripRepository) UpdateStatusIf(ctx context.Context, tripID string, from, to workflow.State) (bool, error) {
	query := `UPDATE trips SET status = ?, updated_at = ? WHERE id = ? AND status = ?`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		to.String(), time.Now(), tripID, from.String())
	if err != nil {
		r.logger.Error("Failed to update trip status", zap.String("trip_id", tripID), zap.Error(err))
		return false, fmt.Errorf("failed to update status: %w", err)
	}
	return oneRowChanged(result)
}

// MarkExpired flips a still-pending trip to EXPIRED together with the
// one-shot notification flag.
func (r *TripRepository) MarkExpired(ctx context.Context, tripID string) (bool, error) {
	query := `
		UPDATE trips
		SET status = ?, approval_status = ?, expired_notification_sent = 1, updated_at = ?
		WHERE id = ? AND approval_status = ? AND expired_notification_sent = 0
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		workflow.StateExpired.String(),
		string(entity.ApprovalExpired),
		time.Now(),
		tripID,
		string(entity.ApprovalPending),
	)
	if err != nil {
		r.logger.Error("Failed to mark trip expired", zap.String("trip_id", tripID), zap.Error(err))
		return false, fmt.Errorf("failed to mark expired: %w", err)
	}
	return oneRowChanged(result)
}

// MarkExpiryNotified sets only the notification flag, guarded on it being unset.
func (r *TripRepository) MarkExpiryNotified(ctx context.Context, tripID string) (bool, error) {
	query := `
		UPDATE trips
		SET expired_notification_sent = 1, updated_at = ?
		WHERE id = ? AND expired_notification_sent = 0
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query, time.Now(), tripID)
	if err != nil {
		r.logger.Error("Failed to mark expiry notified", zap.String("trip_id", tripID), zap.Error(err))
		return false, fmt.Errorf("failed to mark expiry notified: %w", err)
	}
	return oneRowChanged(result)
}

// LinkToGroup attaches an ungrouped approved trip to a proposal.
func (r *TripRepository) LinkToGroup(ctx context.Context, tripID, groupID string) (bool, error) {
	query := `
		UPDATE trips
		SET optimized_group_id = ?, updated_at = ?
		WHERE id = ? AND optimized_group_id IS NULL AND status IN (?, ?, ?)
	`

	states := workflow.ApprovedStates()
	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		groupID, time.Now(), tripID,
		states[0].String(), states[1].String(), states[2].String())
	if err != nil {
		r.logger.Error("Failed to link trip to group",
			zap.String("trip_id", tripID), zap.String("group_id", groupID), zap.Error(err))
		return false, fmt.Errorf("failed to link trip: %w", err)
	}
	return oneRowChanged(result)
}

// UnlinkGroup clears the group link for all members without touching any
// other field.
func (r *TripRepository) UnlinkGroup(ctx context.Context, groupID string) error {
	query := `UPDATE trips SET optimized_group_id = NULL, updated_at = ? WHERE optimized_group_id = ?`

	_, err := r.getExecutor(ctx).ExecContext(ctx, query, time.Now(), groupID)
	if err != nil {
		r.logger.Error("Failed to unlink group members", zap.String("group_id", groupID), zap.Error(err))
		return fmt.Errorf("failed to unlink group members: %w", err)
	}
	return nil
}

// Finalize applies an approved group's schedule to a member trip. Guarded on
// the trip still being approved-family and linked to this group.
func (r *TripRepository) Finalize(ctx context.Context, tripID, groupID string, departureTime time.Time, vehicleType entity.VehicleType, actualCost float64) (bool, error) {
	query := `
		UPDATE trips
		SET status = ?,
			original_departure_time = departure_time,
			departure_time = ?,
			vehicle_type = ?,
			actual_cost = ?,
			updated_at = ?
		WHERE id = ? AND optimized_group_id = ? AND status IN (?, ?, ?)
	`

	states := workflow.ApprovedStates()
	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		workflow.StateOptimized.String(),
		departureTime,
		string(vehicleType),
		actualCost,
		time.Now(),
		tripID,
		groupID,
		states[0].String(), states[1].String(), states[2].String())
	if err != nil {
		r.logger.Error("Failed to finalize trip",
			zap.String("trip_id", tripID), zap.String("group_id", groupID), zap.Error(err))
		return false, fmt.Errorf("failed to finalize trip: %w", err)
	}
	return oneRowChanged(result)
}

// rowScanner covers both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrip(row rowScanner) (*entity.Trip, error) {
	var (
		trip          entity.Trip
		vehicleType   string
		status        string
		approval      string
		actualCost    sql.NullFloat64
		decisionTime  sql.NullTime
		tokenIssuedAt sql.NullTime
		groupID       sql.NullString
		originalTime  sql.NullTime
		ccEmails      string
	)

	err := row.Scan(
		&trip.ID,
		&trip.RequesterID,
		&trip.RequesterName,
		&trip.RequesterEmail,
		&trip.ManagerEmail,
		&trip.Departure,
		&trip.Destination,
		&trip.DepartureTime,
		&trip.ReturnTime,
		&vehicleType,
		&trip.PassengerCount,
		&trip.EstimatedCost,
		&actualCost,
		&status,
		&approval,
		&trip.DecisionActor,
		&decisionTime,
		&trip.Urgent,
		&trip.AutoApproved,
		&tokenIssuedAt,
		&trip.ExpiredNotificationSent,
		&groupID,
		&originalTime,
		&ccEmails,
		&trip.CreatedAt,
		&trip.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	trip.VehicleType = entity.VehicleType(vehicleType)
	trip.Status = workflow.State(status)
	trip.ApprovalStatus = entity.ApprovalStatus(approval)
	if actualCost.Valid {
		trip.ActualCost = &actualCost.Float64
	}
	if decisionTime.Valid {
		trip.DecisionTime = &decisionTime.Time
	}
	if tokenIssuedAt.Valid {
		trip.TokenIssuedAt = &tokenIssuedAt.Time
	}
	if groupID.Valid {
		trip.OptimizedGroupID = &groupID.String
	}
	if originalTime.Valid {
		trip.OriginalDepartureTime = &originalTime.Time
	}
	if ccEmails != "" {
		trip.CCEmails = strings.Split(ccEmails, ",")
	}

	return &trip, nil
}

func collectTrips(rows *sql.Rows) ([]*entity.Trip, error) {
	var trips []*entity.Trip
	for rows.Next() {
		trip, err := scanTrip(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trip: %w", err)
		}
		trips = append(trips, trip)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trips: %w", err)
	}
	return trips, nil
}

func oneRowChanged(result sql.Result) (bool, error) {
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// getExecutor returns the ambient transaction when present, the pool otherwise
func (r *TripRepository) getExecutor(ctx context.Context) executor {
	if tx := sqlite.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.db
}

// executor interface covers both *sql.DB and *sql.Tx
type executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Verify interface compliance
var _ port.TripRepository = (*TripRepository)(nil)
