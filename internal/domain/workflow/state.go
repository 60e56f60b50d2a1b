package workflow

// State represents a trip's position in the approval lifecycle
type State string

const (
	StatePendingApproval State = "PENDING_APPROVAL"
	StatePendingUrgent   State = "PENDING_URGENT"
	StateAutoApproved    State = "AUTO_APPROVED"
	StateApproved        State = "APPROVED"
	StateApprovedSolo    State = "APPROVED_SOLO"
	StateOptimized       State = "OPTIMIZED"
	StateRejected        State = "REJECTED"
	StateCancelled       State = "CANCELLED"
	StateExpired         State = "EXPIRED"
)

var validStates = map[State]bool{
	StatePendingApproval: true,
	StatePendingUrgent:   true,
	StateAutoApproved:    true,
	StateApproved:        true,
	StateApprovedSolo:    true,
	StateOptimized:       true,
	StateRejected:        true,
	StateCancelled:       true,
	StateExpired:         true,
}

/// Terminal states admit no further transitions. EXPIRED is not terminal:
// an admin override can still settle an expired request.
var terminalStates = map[State]bool{
	StateRejected:  true,
	StateCancelled: true,
}

// Approved family: trips in these states are eligible for optimization.
var approvedStates = map[State]bool{
	StateApproved:     true,
	StateAutoApproved: true,
	StateApprovedSolo: true,
}

// IsTerminal returns true if no further transitions are allowed from the state
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsApproved returns true if the state belongs to the approved family
func (s State) IsApproved() bool {
	return approvedStates[s]
}

// IsValid returns true if the state is a known lifecycle state
func (s State) IsValid() bool {
	return validStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// ApprovedStates returns the approved-family states in a stable order.
func ApprovedStates() []State {
	return []State{StateApproved, StateAutoApproved, StateApprovedSolo}
}
