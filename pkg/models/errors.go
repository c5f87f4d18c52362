package models

import (
	"errors"
)

var (
	// ErrIdentifierConflict signals a lost race on identifier creation.
	// Callers retry resolution once; the retry observes the winner's actor.
	ErrIdentifierConflict = errors.New("identifier is already owned by another active actor")

	// ErrStoreUnavailable signals a transient persistence failure; the
	// signal is requeued, not dropped
	ErrStoreUnavailable = errors.New("actor store is unavailable")

	// ErrMergeInconsistency signals violated merge preconditions; the merge
	// is aborted and reported, never partially applied
	ErrMergeInconsistency = errors.New("merge preconditions violated")

	// ErrActorNotFound signals a lookup for an unknown actor id
	ErrActorNotFound = errors.New("actor not found")

	// ErrDecisionNotFound signals a lookup for an unknown match decision
	ErrDecisionNotFound = errors.New("match decision not found")
)
