package workflow

import "fmt"

// transition is a single allowed edge in the lifecycle state machine.
type transition struct {
	from    State
	to      State
	trigger Trigger
}

// transitionsTable enumerates every legal edge. Anything not listed here is
// rejected; business logic never sees an unrecognized state/trigger pair.
var transitionsTable = []transition{
	// Manager decision via token link
	{from: StatePendingApproval, to: StateApproved, trigger: TriggerManagerApprove},
	{from: StatePendingApproval, to: StateRejected, trigger: TriggerManagerReject},
	{from: StatePendingUrgent, to: StateApproved, trigger: TriggerManagerApprove},
	{from: StatePendingUrgent, to: StateRejected, trigger: TriggerManagerReject},

	// Admin override. Approval lands in APPROVED_SOLO, keeping
	// manager-approved and admin-approved trips distinguishable.
	{from: StatePendingApproval, to: StateApprovedSolo, trigger: TriggerAdminApprove},
	{from: StatePendingApproval, to: StateRejected, trigger: TriggerAdminReject},
	{from: StatePendingUrgent, to: StateApprovedSolo, trigger: TriggerAdminApprove},
	{from: StatePendingUrgent, to: StateRejected, trigger: TriggerAdminReject},
	{from: StateExpired, to: StateApprovedSolo, trigger: TriggerAdminApprove},
	{from: StateExpired, to: StateRejected, trigger: TriggerAdminReject},

	// Optimization finalizes approved trips into a shared dispatch
	{from: StateApproved, to: StateOptimized, trigger: TriggerOptimize},
	{from: StateAutoApproved, to: StateOptimized, trigger: TriggerOptimize},
	{from: StateApprovedSolo, to: StateOptimized, trigger: TriggerOptimize},

	// Cancellation by the requester
	{from: StatePendingApproval, to: StateCancelled, trigger: TriggerCancel},
	{from: StatePendingUrgent, to: StateCancelled, trigger: TriggerCancel},
	{from: StateApproved, to: StateCancelled, trigger: TriggerCancel},
	{from: StateAutoApproved, to: StateCancelled, trigger: TriggerCancel},

	// Background sweep after the token validity window lapses
	{from: StatePendingApproval, to: StateExpired, trigger: TriggerExpire},
	{from: StatePendingUrgent, to: StateExpired, trigger: TriggerExpire},
}

// edges is the table indexed for lookup.
var edges = func() map[State]map[Trigger]State {
	m := make(map[State]map[Trigger]State)
	for _, t := range transitionsTable {
		if !t.from.IsValid() || !t.to.IsValid() {
			panic(fmt.Sprintf("transitions table references invalid state: %s -> %s", t.from, t.to))
		}
		if m[t.from] == nil {
			m[t.from] = make(map[Trigger]State)
		}
		m[t.from][t.trigger] = t.to
	}
	return m
}()

// Allowed returns true if the trigger is permitted in the given state.
func Allowed(from State, trigger Trigger) bool {
	_, ok := edges[from][trigger]
	return ok
}

// Next resolves the target state for a trigger fired from the given state.
func Next(from State, trigger Trigger) (State, error) {
	if !from.IsValid() {
		return "", fmt.Errorf("%w: %s", ErrInvalidState, from)
	}
	to, ok := edges[from][trigger]
	if !ok {
		return "", fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, trigger, from)
	}
	return to, nil
}

// PermittedTriggers returns all triggers that can be fired from the state.
func PermittedTriggers(from State) []Trigger {
	triggers := make([]Trigger, 0, len(edges[from]))
	for t := range edges[from] {
		triggers = append(triggers, t)
	}
	return triggers
}
