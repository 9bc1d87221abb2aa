package models

import "time"

// AccessStatus captures the workflow state of an access request.
type AccessStatus string

const (
	AccessStatusPending  AccessStatus = "pending"
	AccessStatusApproved AccessStatus = "approved"
	AccessStatusRejected AccessStatus = "rejected"
)

// AccessOutcome is the admin decision applied to a pending request.
type AccessOutcome string

const (
	AccessOutcomeApprove AccessOutcome = "approve"
	AccessOutcomeReject  AccessOutcome = "reject"
)

// Status maps the decision onto the terminal request state.
func (o AccessOutcome) Status() (AccessStatus, bool) {
	switch o {
	case AccessOutcomeApprove:
		return AccessStatusApproved, true
	case AccessOutcomeReject:
		return AccessStatusRejected, true
	default:
		return "", false
	}
}

// AccessRequest gates whether a user may ever join a live batch. Rows are never
// deleted; rejected requests stay as audit trail.
type AccessRequest struct {
	ID          string       `db:"id" json:"id"`
	UserID      string       `db:"user_id" json:"userId"`
	DisplayName string       `db:"display_name" json:"displayName"`
	Email       string       `db:"email" json:"email"`
	Status      AccessStatus `db:"status" json:"status"`
	RequestedAt time.Time    `db:"requested_at" json:"requestedAt"`
	DecidedAt   *time.Time   `db:"decided_at" json:"decidedAt,omitempty"`
	DecidedBy   *string      `db:"decided_by" json:"decidedBy,omitempty"`
}

// IsPending checks if request is awaiting a decision.
func (r *AccessRequest) IsPending() bool {
	return r.Status == AccessStatusPending
}

// AccessStatusView is what a user sees about their own gate.
type AccessStatusView struct {
	HasAccess      bool `json:"hasAccess"`
	PendingRequest bool `json:"pendingRequest"`
}
