package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	TriggerManagerApprove Trigger = "MANAGER_APPROVE"
	TriggerManagerReject  Trigger = "MANAGER_REJECT"
	TriggerAdminApprove   Trigger = "ADMIN_APPROVE"
	TriggerAdminReject    Trigger = "ADMIN_REJECT"
	TriggerOptimize       Trigger = "OPTIMIZE"
	TriggerCancel         Trigger = "CANCEL"
	TriggerExpire         Trigger = "EXPIRE"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
