// Package store is the authoritative, transactional repository of actors,
// identifiers, and signal links. It is the only path that can create an
// actor or identifier, and it enforces the single-active-owner invariant.
package store

import (
	"context"
	"database/sql"

	"github.com/Gobusters/ectologger"
	"github.com/lib/pq"

	"github.com/Ramsey-B/aster/internal/repositories/actor"
	"github.com/Ramsey-B/aster/internal/repositories/identifier"
	"github.com/Ramsey-B/aster/internal/repositories/signal"
	"github.com/Ramsey-B/aster/internal/repositories/signallink"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/scoring"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// completenessFacets are the identifier facets counted toward profile
// completeness: phone, email, name, verified handle
const completenessFacets = 4

// redirect chains are short lived; a longer chain means merge bookkeeping
// is broken and the walk must not spin
const maxRedirectDepth = 10

// NormalizedIdentifier is one canonicalized identifier ready for storage
type NormalizedIdentifier struct {
	Type       models.IdentifierType
	Value      string
	Confidence float64
	IsVerified bool
}

// Projector mirrors committed actors and links into a secondary
// projection, such as the graph database
type Projector interface {
	SyncActor(ctx context.Context, a *models.Actor) error
	SyncLink(ctx context.Context, link *models.ActorSignalLink) error
}

// ActorStore composes the actor, identifier, signal, and link repositories
// into atomic match-or-create operations
type ActorStore struct {
	actorRepo      *actor.Repository
	identifierRepo *identifier.Repository
	linkRepo       *signallink.Repository
	signalRepo     *signal.Repository
	projector      Projector
	logger         ectologger.Logger
}

// NewActorStore creates a new actor store
func NewActorStore(
	actorRepo *actor.Repository,
	identifierRepo *identifier.Repository,
	linkRepo *signallink.Repository,
	signalRepo *signal.Repository,
	logger ectologger.Logger,
) *ActorStore {
	return &ActorStore{
		actorRepo:      actorRepo,
		identifierRepo: identifierRepo,
		linkRepo:       linkRepo,
		signalRepo:     signalRepo,
		logger:         logger,
	}
}

// SetProjector attaches an optional secondary projection. Projection runs
// after commit and is best effort; the relational store stays authoritative.
func (s *ActorStore) SetProjector(p Projector) {
	s.projector = p
}

func (s *ActorStore) project(ctx context.Context, a *models.Actor, link *models.ActorSignalLink) {
	if s.projector == nil {
		return
	}
	if err := s.projector.SyncActor(ctx, a); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("Failed to project actor")
		return
	}
	if link != nil {
		if err := s.projector.SyncLink(ctx, link); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Failed to project signal link")
		}
	}
}

// FindByIdentifier returns the active actor owning a normalized
// (type, value) identifier, or nil when nobody owns it
func (s *ActorStore) FindByIdentifier(ctx context.Context, tenantID string, idType models.IdentifierType, value string) (*models.Actor, error) {
	ctx, span := tracing.StartSpan(ctx, "store.ActorStore.FindByIdentifier")
	defer span.End()

	id, err := s.identifierRepo.FindActive(ctx, tenantID, idType, value)
	if err != nil {
		return nil, err
	}
	if id == nil {
		return nil, nil
	}

	return s.ResolveActive(ctx, tenantID, id.ActorID)
}

// ResolveActive loads an actor and follows merged_into redirects until it
// reaches the active primary. Merged actors are never returned.
func (s *ActorStore) ResolveActive(ctx context.Context, tenantID string, actorID string) (*models.Actor, error) {
	ctx, span := tracing.StartSpan(ctx, "store.ActorStore.ResolveActive")
	defer span.End()

	id := actorID
	for depth := 0; depth < maxRedirectDepth; depth++ {
		a, err := s.actorRepo.Find(ctx, tenantID, id)
		if err != nil {
			return nil, err
		}
		if a == nil {
			return nil, models.ErrActorNotFound
		}
		if a.IsActive() {
			return a, nil
		}
		if a.MergedInto == nil {
			s.logger.WithContext(ctx).WithFields(map[string]any{"actor_id": id}).Error("Merged actor has no redirect target")
			return nil, models.ErrMergeInconsistency
		}
		id = *a.MergedInto
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{"actor_id": actorID}).Error("Actor redirect chain exceeded maximum depth")
	return nil, models.ErrMergeInconsistency
}

// CreateActorForSignal atomically creates a new actor, attaches the
// signal's identifiers, and links the signal. A concurrent creation of the
// same identifier value rolls everything back with ErrIdentifierConflict.
func (s *ActorStore) CreateActorForSignal(ctx context.Context, sig *models.Signal, ids []NormalizedIdentifier, confidence float64, method models.LinkMethod) (*models.Actor, *models.ActorSignalLink, error) {
	ctx, span := tracing.StartSpan(ctx, "store.ActorStore.CreateActorForSignal")
	defer span.End()

	ctxTx, tx, err := s.actorRepo.DB().GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, nil, models.ErrStoreUnavailable
	}
	defer tx.Rollback(ctx)

	a := &models.Actor{
		TenantID:             sig.TenantID,
		FirstSeen:            sig.OccurredAt,
		LastSeen:             sig.OccurredAt,
		SignalSources:        pq.StringArray{},
		ConfidenceInIdentity: confidence,
	}
	created, err := s.actorRepo.Create(ctxTx, a)
	if err != nil {
		return nil, nil, err
	}

	link, err := s.linkTx(ctxTx, created, sig, ids, confidence, method)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctxTx); err != nil {
		return nil, nil, models.ErrStoreUnavailable
	}

	s.project(ctx, created, link)

	return created, link, nil
}

// LinkSignalToActor atomically links a signal to an existing actor,
// attaching any identifiers the actor does not yet hold and updating the
// actor's aggregates. Linking against a merged actor follows the redirect.
func (s *ActorStore) LinkSignalToActor(ctx context.Context, tenantID string, actorID string, sig *models.Signal, ids []NormalizedIdentifier, confidence float64, method models.LinkMethod) (*models.Actor, *models.ActorSignalLink, error) {
	ctx, span := tracing.StartSpan(ctx, "store.ActorStore.LinkSignalToActor")
	defer span.End()

	ctxTx, tx, err := s.actorRepo.DB().GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, nil, models.ErrStoreUnavailable
	}
	defer tx.Rollback(ctx)

	a, err := s.ResolveActive(ctxTx, tenantID, actorID)
	if err != nil {
		return nil, nil, err
	}

	link, err := s.linkTx(ctxTx, a, sig, ids, confidence, method)
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctxTx); err != nil {
		return nil, nil, models.ErrStoreUnavailable
	}

	s.project(ctx, a, link)

	return a, link, nil
}

// GetLinkBySignal returns the existing link for a signal, or nil
func (s *ActorStore) GetLinkBySignal(ctx context.Context, tenantID string, signalID string) (*models.ActorSignalLink, error) {
	return s.linkRepo.GetBySignal(ctx, tenantID, signalID)
}

// linkTx performs the link steps inside the caller's transaction: store the
// signal, create the link, attach missing identifiers, fold aggregates.
func (s *ActorStore) linkTx(ctx context.Context, a *models.Actor, sig *models.Signal, ids []NormalizedIdentifier, confidence float64, method models.LinkMethod) (*models.ActorSignalLink, error) {
	if err := s.signalRepo.Upsert(ctx, sig); err != nil {
		return nil, err
	}

	link := &models.ActorSignalLink{
		TenantID:       sig.TenantID,
		ActorID:        a.ActorID,
		SignalID:       sig.SignalID,
		LinkConfidence: confidence,
		LinkMethod:     method,
	}
	link, err := s.linkRepo.Create(ctx, link)
	if err != nil {
		return nil, err
	}

	for _, nid := range ids {
		existing, err := s.identifierRepo.FindActive(ctx, sig.TenantID, nid.Type, nid.Value)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			// already owned; ownership never moves outside a merge
			continue
		}
		if _, err := s.identifierRepo.Create(ctx, &models.Identifier{
			TenantID:       sig.TenantID,
			ActorID:        a.ActorID,
			Type:           nid.Type,
			Value:          nid.Value,
			Confidence:     nid.Confidence,
			SourceSignalID: sig.SignalID,
			IsVerified:     nid.IsVerified,
		}); err != nil {
			return nil, err
		}
	}

	return link, s.foldAggregates(ctx, a, sig, confidence)
}

// foldAggregates updates signal_count, the seen window, the source set, the
// behavior mean, and profile completeness after a successful link
func (s *ActorStore) foldAggregates(ctx context.Context, a *models.Actor, sig *models.Signal, confidence float64) error {
	a.SignalCount++
	if sig.OccurredAt.Before(a.FirstSeen) || a.FirstSeen.IsZero() {
		a.FirstSeen = sig.OccurredAt
	}
	if sig.OccurredAt.After(a.LastSeen) {
		a.LastSeen = sig.OccurredAt
	}

	hasSource := false
	for _, src := range a.SignalSources {
		if src == sig.Source {
			hasSource = true
			break
		}
	}
	if !hasSource && sig.Source != "" {
		a.SignalSources = append(a.SignalSources, sig.Source)
	}

	if len(sig.Behavior) > 0 {
		a.Behavior = scoring.RunningMean(a.Behavior, sig.Behavior, a.SignalCount-1)
	}

	if confidence > a.ConfidenceInIdentity {
		a.ConfidenceInIdentity = confidence
	}

	owned, err := s.identifierRepo.ListByActor(ctx, a.TenantID, a.ActorID, true)
	if err != nil {
		return err
	}
	a.ProfileCompleteness = ProfileCompleteness(owned)

	return s.actorRepo.RecordLink(ctx, a)
}

// ProfileCompleteness is the fraction of {phone, email, name, verified
// handle} facets present among an actor's active identifiers
func ProfileCompleteness(ids []models.Identifier) float64 {
	have := make(map[models.IdentifierType]bool, completenessFacets)
	for _, id := range ids {
		if id.Type == models.IdentifierTypeHandle && !id.IsVerified {
			continue
		}
		have[id.Type] = true
	}
	return float64(len(have)) / float64(completenessFacets)
}
