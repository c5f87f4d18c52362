package models

import (
	"encoding/json"
	"time"
)

// Decision is the outcome class of one resolution
type Decision string

const (
	DecisionMatched          Decision = "matched"
	DecisionCreatedNew       Decision = "created_new"
	DecisionFlaggedForReview Decision = "flagged_for_review"
)

// MatchDecision is the append-only audit record of one resolution outcome.
// Written exactly once per processed signal; immutable thereafter.
type MatchDecision struct {
	ID               string          `json:"id" db:"id"`
	TenantID         string          `json:"tenant_id" db:"tenant_id"`
	SignalID         string          `json:"signal_id" db:"signal_id"`
	CandidateActorID *string         `json:"candidate_actor_id,omitempty" db:"candidate_actor_id"`
	ResultingActorID *string         `json:"resulting_actor_id,omitempty" db:"resulting_actor_id"`
	Confidence       float64         `json:"confidence" db:"confidence"`
	Method           LinkMethod      `json:"method" db:"method"`
	Decision         Decision        `json:"decision" db:"decision"`
	Evidence         json.RawMessage `json:"evidence,omitempty" db:"evidence"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

// CandidateScore is one scored candidate actor considered during resolution
type CandidateScore struct {
	ActorID              string  `json:"actor_id"`
	Score                float64 `json:"score"`
	NameSimilarity       float64 `json:"name_similarity"`
	BehavioralSimilarity float64 `json:"behavioral_similarity"`
}

// ExactConflict records a signal whose identifiers exactly matched two
// different actors; the higher signal_count actor won
type ExactConflict struct {
	WinnerActorID string         `json:"winner_actor_id"`
	LoserActorID  string         `json:"loser_actor_id"`
	WinnerIDType  IdentifierType `json:"winner_id_type"`
	LoserIDType   IdentifierType `json:"loser_id_type"`
	WinnerIDValue string         `json:"winner_id_value"`
	LoserIDValue  string         `json:"loser_id_value"`
	WinnerSignals int            `json:"winner_signals"`
	LoserSignals  int            `json:"loser_signals"`
}

// DecisionEvidence is the structured payload stored in MatchDecision.Evidence
type DecisionEvidence struct {
	Candidates          []CandidateScore `json:"candidates,omitempty"`
	Conflicts           []ExactConflict  `json:"conflicts,omitempty"`
	NormalizationErrors []string         `json:"normalization_errors,omitempty"`
}

// MatchResult is the outcome of resolving one signal
type MatchResult struct {
	Decision   Decision         `json:"decision"`
	ActorID    string           `json:"actor_id,omitempty"`
	Confidence float64          `json:"confidence"`
	Method     LinkMethod       `json:"method,omitempty"`
	Candidates []CandidateScore `json:"candidates,omitempty"`
	DecisionID string           `json:"decision_id"`

	// Conflicted is true when exact identifiers pointed at different actors
	Conflicted bool `json:"conflicted,omitempty"`

	// Replayed is true when the signal had already been resolved and the
	// prior result was returned unchanged
	Replayed bool `json:"replayed,omitempty"`
}

// MatchDecisionListResponse is the response for listing match decisions
type MatchDecisionListResponse struct {
	Items      []MatchDecision `json:"items"`
	TotalCount int             `json:"total_count"`
	Page       int             `json:"page"`
	PageSize   int             `json:"page_size"`
}
