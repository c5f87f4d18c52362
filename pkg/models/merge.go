package models

import (
	"encoding/json"
	"time"
)

// MergeRecord is the append-only audit record of one actor merge
type MergeRecord struct {
	ID             string          `json:"id" db:"id"`
	TenantID       string          `json:"tenant_id" db:"tenant_id"`
	PrimaryActorID string          `json:"primary_actor_id" db:"primary_actor_id"`
	MergedActorID  string          `json:"merged_actor_id" db:"merged_actor_id"`
	Reason         string          `json:"reason" db:"reason"`
	Confidence     float64         `json:"confidence" db:"confidence"`
	Evidence       json.RawMessage `json:"evidence,omitempty" db:"evidence"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
}

// DiscardedIdentifier records an identifier copy retired during a merge
// because the surviving actor already held a higher-confidence copy
type DiscardedIdentifier struct {
	IdentifierID   string         `json:"identifier_id"`
	Type           IdentifierType `json:"type"`
	Value          string         `json:"value"`
	Confidence     float64        `json:"confidence"`
	KeptConfidence float64        `json:"kept_confidence"`
}

// MergeEvidence is the structured payload stored in MergeRecord.Evidence
type MergeEvidence struct {
	SharedIdentifiers    []CandidateOverlap    `json:"shared_identifiers,omitempty"`
	DiscardedIdentifiers []DiscardedIdentifier `json:"discarded_identifiers,omitempty"`
}

// CandidateOverlap is one identifier value held by both merge participants
type CandidateOverlap struct {
	Type       IdentifierType `json:"type"`
	Value      string         `json:"value"`
	Confidence float64        `json:"confidence"`
}

// MergeCandidateGroup is a set of active actors suspected to be one person
type MergeCandidateGroup struct {
	TenantID   string             `json:"tenant_id"`
	ActorIDs   []string           `json:"actor_ids"`
	Overlaps   []CandidateOverlap `json:"overlaps"`
	Confidence float64            `json:"confidence"`
	AutoMerged bool               `json:"auto_merged"`
}

// ApplyMergeRequest is the request to merge one actor into another
type ApplyMergeRequest struct {
	PrimaryActorID string  `json:"primary_actor_id" validate:"required"`
	MergeActorID   string  `json:"merge_actor_id" validate:"required,nefield=PrimaryActorID"`
	Reason         string  `json:"reason" validate:"required"`
	Confidence     float64 `json:"confidence" validate:"omitempty,gte=0,lte=1"`
}

// MergeRecordListResponse is the response for listing merge records
type MergeRecordListResponse struct {
	Items      []MergeRecord `json:"items"`
	TotalCount int           `json:"total_count"`
	Page       int           `json:"page"`
	PageSize   int           `json:"page_size"`
}
