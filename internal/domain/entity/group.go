package entity

import "time"

// GroupStatus is the lifecycle of an optimization proposal. Proposed groups
// settle exactly once, to approved or rejected, and are never reopened.
type GroupStatus string

const (
	GroupProposed GroupStatus = "PROPOSED"
	GroupApproved GroupStatus = "APPROVED"
	GroupRejected GroupStatus = "REJECTED"
)

// OptimizationGroup is a candidate or finalized combination of trips
// sharing one vehicle dispatch.
type OptimizationGroup struct {
	ID      string   `json:"id"`
	TripIDs []string `json:"trip_ids"`

	Departure     string `json:"departure"`
	Destination   string `json:"destination"`
	DepartureDate string `json:"departure_date"`

	ProposedDepartureTime time.Time   `json:"proposed_departure_time"`
	VehicleType           VehicleType `json:"vehicle_type"`
	PassengerCount        int         `json:"passenger_count"`
	EstimatedSavings      float64     `json:"estimated_savings"`

	Status    GroupStatus `json:"status"`
	CreatedBy string      `json:"created_by"`
	DecidedBy string      `json:"decided_by,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
}
