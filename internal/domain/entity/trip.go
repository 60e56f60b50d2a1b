package entity

import (
	"time"

	"github.com/trungvu/tripflow/internal/domain/workflow"
)

// ApprovalStatus tracks the manager/admin decision on a trip, independently
// of the trip's lifecycle status.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "PENDING"
	ApprovalApproved ApprovalStatus = "APPROVED"
	ApprovalRejected ApprovalStatus = "REJECTED"
	ApprovalExpired  ApprovalStatus = "EXPIRED"
)

// Trip represents a single employee travel request.
type Trip struct {
	ID             string `json:"id"`
	RequesterID    string `json:"requester_id"`
	RequesterName  string `json:"requester_name"`
	RequesterEmail string `json:"requester_email"`
	ManagerEmail   string `json:"manager_email,omitempty"`

	Departure     string    `json:"departure"`
	Destination   string    `json:"destination"`
	DepartureTime time.Time `json:"departure_time"`
	ReturnTime    time.Time `json:"return_time"`

	VehicleType    VehicleType `json:"vehicle_type"`
	PassengerCount int         `json:"passenger_count"`
	EstimatedCost  float64     `json:"estimated_cost"`
	ActualCost     *float64    `json:"actual_cost,omitempty"`

	Status         workflow.State `json:"status"`
	ApprovalStatus ApprovalStatus `json:"approval_status"`
	DecisionActor  string         `json:"decision_actor,omitempty"`
	DecisionTime   *time.Time     `json:"decision_time,omitempty"`
	Urgent         bool           `json:"urgent"`
	AutoApproved   bool           `json:"auto_approved"`

	// TokenIssuedAt anchors the token validity window for the background
	// expiry sweep. Nil for auto-approved trips, which never get a token.
	TokenIssuedAt           *time.Time `json:"token_issued_at,omitempty"`
	ExpiredNotificationSent bool       `json:"expired_notification_sent"`

	OptimizedGroupID      *string    `json:"optimized_group_id,omitempty"`
	OriginalDepartureTime *time.Time `json:"original_departure_time,omitempty"`

	CCEmails []string `json:"cc_emails,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Decision captures the mutation applied by a guarded approval write.
type Decision struct {
	Status         workflow.State
	ApprovalStatus ApprovalStatus
	Actor          string
	DecidedAt      time.Time
}

// DecisionAction is the action a manager or admin takes on a pending trip.
type DecisionAction string

const (
	ActionApprove DecisionAction = "APPROVE"
	ActionReject  DecisionAction = "REJECT"
)

// IsValid reports whether the action is one of the two decision verbs.
func (a DecisionAction) IsValid() bool {
	return a == ActionApprove || a == ActionReject
}
