package models

import (
	"time"
)

// ReviewResolution is the manual disposition applied to a flagged decision
type ReviewResolution string

const (
	ReviewResolutionLink   ReviewResolution = "link"
	ReviewResolutionReject ReviewResolution = "reject"
)

// ReviewItem is one flagged decision awaiting manual disposition
type ReviewItem struct {
	DecisionID string           `json:"decision_id"`
	SignalID   string           `json:"signal_id"`
	Confidence float64          `json:"confidence"`
	Candidates []CandidateScore `json:"candidates"`
	FlaggedAt  time.Time        `json:"flagged_at"`
}

// ReviewDisposition records the manual outcome for a flagged decision
type ReviewDisposition struct {
	ID         string           `json:"id" db:"id"`
	TenantID   string           `json:"tenant_id" db:"tenant_id"`
	DecisionID string           `json:"decision_id" db:"decision_id"`
	Resolution ReviewResolution `json:"resolution" db:"resolution"`
	ActorID    *string          `json:"actor_id,omitempty" db:"actor_id"`
	DecidedBy  string           `json:"decided_by" db:"decided_by"`
	DecidedAt  time.Time        `json:"decided_at" db:"decided_at"`
}

// ResolveReviewRequest is the request to dispose of a flagged decision
type ResolveReviewRequest struct {
	Resolution ReviewResolution `json:"resolution" validate:"required,oneof=link reject"`
	ActorID    *string          `json:"actor_id,omitempty" validate:"required_if=Resolution link"`
}

// ReviewListResponse is the response for listing the review queue
type ReviewListResponse struct {
	Items      []ReviewItem `json:"items"`
	TotalCount int          `json:"total_count"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
}
