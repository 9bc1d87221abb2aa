package dto

import "github.com/noah-isme/tilawah-live-api/internal/models"

// RequestAccessRequest is submitted by a user asking to join live sessions.
type RequestAccessRequest struct {
	DisplayName string `json:"displayName" validate:"required,max=120"`
	Email       string `json:"email" validate:"required,email"`
}

// DecideAccessRequest is the admin decision payload.
type DecideAccessRequest struct {
	Outcome models.AccessOutcome `json:"outcome" validate:"required,oneof=approve reject"`
}

// AccessRequestFilter narrows the admin listing.
type AccessRequestFilter struct {
	Status models.AccessStatus `validate:"omitempty,oneof=pending approved rejected"`
	Limit  int
}

// RequestAccessResponse mirrors the client contract of the access form.
type RequestAccessResponse struct {
	PendingRequest bool                  `json:"pendingRequest"`
	Request        *models.AccessRequest `json:"request"`
}

// DecideAccessResponse reports the resulting request state.
type DecideAccessResponse struct {
	Status  models.AccessStatus   `json:"status"`
	Request *models.AccessRequest `json:"request"`
}
