package domain

import "time"

type ApplicationStatus string

const (
	StatusDraft          ApplicationStatus = "draft"
	StatusInProgress     ApplicationStatus = "in_progress"
	StatusReadyForReview ApplicationStatus = "ready_for_review"
	StatusApproved       ApplicationStatus = "approved"
	StatusRejected       ApplicationStatus = "rejected"
	StatusOnHold         ApplicationStatus = "on_hold"
)

// KnownStatuses lists every status an application may hold, in workflow order.
var KnownStatuses = []ApplicationStatus{
	StatusDraft,
	StatusInProgress,
	StatusReadyForReview,
	StatusApproved,
	StatusRejected,
	StatusOnHold,
}

func ValidStatus(s ApplicationStatus) bool {
	for _, known := range KnownStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// AuditEvent records one state mutation. Events are created exactly once
// per mutation and never updated or deleted. EventID doubles as the
// conflict key for idempotent re-appends after a partial commit.
type AuditEvent struct {
	EventID       string    `json:"event_id"`
	ApplicationID int64     `json:"application_id"`
	ActorID       string    `json:"actor_id"`
	Action        string    `json:"action"`
	Notes         *string   `json:"notes,omitempty"`
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
}

type DecisionType string

const (
	DecisionApprove DecisionType = "approve"
	DecisionReject  DecisionType = "reject"
	DecisionHold    DecisionType = "hold"
	DecisionResume  DecisionType = "resume"
)
