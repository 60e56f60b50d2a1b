package service

import (
	"strings"
	"time"

	"github.com/trungvu/tripflow/internal/domain/entity"
	"github.com/trungvu/tripflow/internal/domain/workflow"
)

// RequesterProfile is the slice of a user's profile the state machine needs
// at submission time. Authentication and profile storage live elsewhere.
type RequesterProfile struct {
	ID           string
	Name         string
	Email        string
	ManagerEmail string
	Role         string
}

// InitialDecision is the outcome of classifying a new trip request.
type InitialDecision struct {
	Status         workflow.State
	ApprovalStatus entity.ApprovalStatus
	Urgent         bool
	AutoApproved   bool
	NeedsToken     bool
}

// ClassifyPolicy holds the knobs for initial trip classification.
type ClassifyPolicy struct {
	// UrgencyWindow is the strict upper bound on time-to-departure below
	// which a trip is urgent. Evaluated once, at submission.
	UrgencyWindow time.Duration

	// ExemptRoles are requester roles approved without manager review.
	ExemptRoles []string
}

// ClassifyNewTrip decides the initial status of a submission. Pure: the
// same profile, departure time and clock always yield the same decision.
func (p ClassifyPolicy) ClassifyNewTrip(profile RequesterProfile, departureTime, now time.Time) InitialDecision {
	if profile.ManagerEmail == "" || p.roleExempt(profile.Role) {
		return InitialDecision{
			Status:         workflow.StateAutoApproved,
			ApprovalStatus: entity.ApprovalApproved,
			AutoApproved:   true,
		}
	}

	// Strict less-than: departure exactly at the window boundary is routine.
	if departureTime.Sub(now) < p.UrgencyWindow {
		return InitialDecision{
			Status:         workflow.StatePendingUrgent,
			ApprovalStatus: entity.ApprovalPending,
			Urgent:         true,
			NeedsToken:     true,
		}
	}

	return InitialDecision{
		Status:         workflow.StatePendingApproval,
		ApprovalStatus: entity.ApprovalPending,
		NeedsToken:     true,
	}
}

func (p ClassifyPolicy) roleExempt(role string) bool {
	for _, r := range p.ExemptRoles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}
