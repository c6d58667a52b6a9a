// Package access provides the access-request workflow: a researcher asks
// for a dataset, the patient decides once, and approval produces exactly
// one consent grant.
package access

import (
	"time"
)

// Status is the lifecycle state of an access request. The only legal
// transitions are Pending -> Approved and Pending -> Rejected, each at
// most once.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ResearcherProfile is the requesting researcher's identity as submitted.
type ResearcherProfile struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Institution string `json:"institution"`
}

// Request is a researcher's ask to use a dataset. Requests are never
// deleted; the decision is recorded once.
type Request struct {
	ID              string            `json:"id"` // sequential, human-readable (AR-0001)
	Patient         string            `json:"patient"`
	Researcher      ResearcherProfile `json:"researcher"`
	DatasetID       string            `json:"dataset_id"`
	Purpose         string            `json:"purpose"`
	DurationDays    int               `json:"duration_days"`
	Status          Status            `json:"status"`
	SubmitToken     string            `json:"submit_token"`               // offline-style; submission never touches the ledger
	ResolutionToken string            `json:"resolution_token,omitempty"` // token of the decision
	ConsentID       string            `json:"consent_id,omitempty"`       // grant created on approval
	CreatedAt       time.Time         `json:"created_at"`
	DecidedAt       *time.Time        `json:"decided_at,omitempty"`
}
