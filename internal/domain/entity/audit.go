package entity

import "time"

// AuditAction identifies the kind of transition an audit entry records.
type AuditAction string

const (
	AuditSubmit               AuditAction = "SUBMIT"
	AuditManagerApprove       AuditAction = "MANAGER_APPROVE"
	AuditManagerReject        AuditAction = "MANAGER_REJECT"
	AuditAdminOverrideApprove AuditAction = "ADMIN_OVERRIDE_APPROVE"
	AuditAdminOverrideReject  AuditAction = "ADMIN_OVERRIDE_REJECT"
	AuditCancel               AuditAction = "CANCEL"
	AuditTokenExpired         AuditAction = "TOKEN_EXPIRED"
	AuditGroupApprove         AuditAction = "GROUP_APPROVE"
	AuditGroupReject          AuditAction = "GROUP_REJECT"
)

// AuditEntry is the immutable record of one state transition. Entries are
// append-only; nothing in the system updates or deletes them.
type AuditEntry struct {
	ID             int64       `json:"id"`
	TripID         string      `json:"trip_id"`
	Action         AuditAction `json:"action"`
	ActorEmail     string      `json:"actor_email"`
	ActorRole      string      `json:"actor_role"`
	PreviousStatus string      `json:"previous_status"`
	NewStatus      string      `json:"new_status"`
	Note           string      `json:"note,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
}
