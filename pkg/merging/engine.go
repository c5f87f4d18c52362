// Package merging folds a duplicate actor into its surviving primary:
// identifier and link migration, aggregate consolidation, audit recording.
package merging

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/internal/repositories/actor"
	"github.com/Ramsey-B/aster/internal/repositories/identifier"
	"github.com/Ramsey-B/aster/internal/repositories/mergerecord"
	"github.com/Ramsey-B/aster/internal/repositories/signallink"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/redis"
	"github.com/Ramsey-B/aster/pkg/store"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// Locker serializes merges against per-signal linking and other merges
type Locker interface {
	WithLock(ctx context.Context, key string, ttl, timeout time.Duration, fn func(ctx context.Context) error) error
}

// Projector mirrors committed merges into a secondary projection
type Projector interface {
	SyncMerge(ctx context.Context, record *models.MergeRecord) error
}

// Config holds merge engine settings
type Config struct {
	// LockTTL bounds how long the actor-pair lock is held
	LockTTL time.Duration

	// LockTimeout bounds how long a merge waits for a contended pair
	LockTimeout time.Duration
}

// DefaultConfig returns the default merge settings
func DefaultConfig() Config {
	return Config{
		LockTTL:     30 * time.Second,
		LockTimeout: 10 * time.Second,
	}
}

// Engine executes actor merges
type Engine struct {
	actorRepo  *actor.Repository
	idRepo     *identifier.Repository
	linkRepo   *signallink.Repository
	recordRepo *mergerecord.Repository
	locker     Locker
	projector  Projector
	config     Config
	logger     ectologger.Logger
}

// SetProjector attaches an optional secondary projection. Projection runs
// after commit and is best effort.
func (e *Engine) SetProjector(p Projector) {
	e.projector = p
}

// NewEngine creates a new merge engine
func NewEngine(
	actorRepo *actor.Repository,
	idRepo *identifier.Repository,
	linkRepo *signallink.Repository,
	recordRepo *mergerecord.Repository,
	locker Locker,
	config Config,
	logger ectologger.Logger,
) *Engine {
	return &Engine{
		actorRepo:  actorRepo,
		idRepo:     idRepo,
		linkRepo:   linkRepo,
		recordRepo: recordRepo,
		locker:     locker,
		config:     config,
		logger:     logger,
	}
}

// ChoosePrimary selects the merge survivor: highest signal_count, ties
// broken by earliest first_seen, then lowest actor_id
func ChoosePrimary(a, b *models.Actor) (primary, merge *models.Actor) {
	if a.SignalCount != b.SignalCount {
		if a.SignalCount > b.SignalCount {
			return a, b
		}
		return b, a
	}
	if !a.FirstSeen.Equal(b.FirstSeen) {
		if a.FirstSeen.Before(b.FirstSeen) {
			return a, b
		}
		return b, a
	}
	if a.ActorID < b.ActorID {
		return a, b
	}
	return b, a
}

// Apply merges mergeID into primaryID under the actor-pair lock. The merge
// is all-or-nothing; re-applying a completed merge returns the original
// record without changing state.
func (e *Engine) Apply(ctx context.Context, tenantID, primaryID, mergeID, reason string, confidence float64) (*models.MergeRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "merging.Engine.Apply")
	defer span.End()

	if primaryID == mergeID {
		return nil, models.ErrMergeInconsistency
	}

	var record *models.MergeRecord
	run := func(ctx context.Context) error {
		var err error
		record, err = e.apply(ctx, tenantID, primaryID, mergeID, reason, confidence)
		return err
	}

	if e.locker == nil {
		if err := run(ctx); err != nil {
			return nil, err
		}
		return record, nil
	}

	key := redis.PairKey(tenantID, primaryID, mergeID)
	if err := e.locker.WithLock(ctx, key, e.config.LockTTL, e.config.LockTimeout, run); err != nil {
		return nil, err
	}
	return record, nil
}

func (e *Engine) apply(ctx context.Context, tenantID, primaryID, mergeID, reason string, confidence float64) (*models.MergeRecord, error) {
	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":        tenantID,
		"primary_actor_id": primaryID,
		"merged_actor_id":  mergeID,
	})

	mergeActor, err := e.actorRepo.Find(ctx, tenantID, mergeID)
	if err != nil {
		return nil, err
	}
	if mergeActor == nil {
		return nil, models.ErrActorNotFound
	}

	if mergeActor.Status == models.ActorStatusMerged {
		if mergeActor.MergedInto != nil && *mergeActor.MergedInto == primaryID {
			// already applied; return the original record unchanged
			existing, err := e.recordRepo.GetByPair(ctx, tenantID, primaryID, mergeID)
			if err != nil {
				return nil, err
			}
			if existing != nil {
				log.Info("Merge already applied, returning existing record")
				return existing, nil
			}
		}
		return nil, models.ErrMergeInconsistency
	}

	primary, err := e.actorRepo.Find(ctx, tenantID, primaryID)
	if err != nil {
		return nil, err
	}
	if primary == nil {
		return nil, models.ErrActorNotFound
	}
	if !primary.IsActive() {
		return nil, models.ErrMergeInconsistency
	}

	ctxTx, tx, err := e.actorRepo.DB().GetTx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, models.ErrStoreUnavailable
	}
	defer tx.Rollback(ctx)

	primaryIDs, err := e.idRepo.ListByActor(ctxTx, tenantID, primaryID, true)
	if err != nil {
		return nil, err
	}
	mergeIDs, err := e.idRepo.ListByActor(ctxTx, tenantID, mergeID, true)
	if err != nil {
		return nil, err
	}

	evidence := planDuplicates(primaryIDs, mergeIDs)
	if len(evidence.retire) > 0 {
		if err := e.idRepo.Retire(ctxTx, tenantID, evidence.retire); err != nil {
			return nil, err
		}
	}

	if err := e.idRepo.RepointToActor(ctxTx, tenantID, mergeID, primaryID, nil); err != nil {
		return nil, err
	}
	if err := e.linkRepo.RepointToActor(ctxTx, tenantID, mergeID, primaryID); err != nil {
		return nil, err
	}

	primary.SignalCount += mergeActor.SignalCount
	for _, src := range mergeActor.SignalSources {
		found := false
		for _, existing := range primary.SignalSources {
			if existing == src {
				found = true
				break
			}
		}
		if !found {
			primary.SignalSources = append(primary.SignalSources, src)
		}
	}
	if mergeActor.FirstSeen.Before(primary.FirstSeen) {
		primary.FirstSeen = mergeActor.FirstSeen
	}
	if mergeActor.LastSeen.After(primary.LastSeen) {
		primary.LastSeen = mergeActor.LastSeen
	}
	if mergeActor.ConfidenceInIdentity > primary.ConfidenceInIdentity {
		primary.ConfidenceInIdentity = mergeActor.ConfidenceInIdentity
	}

	combined, err := e.idRepo.ListByActor(ctxTx, tenantID, primaryID, true)
	if err != nil {
		return nil, err
	}
	primary.ProfileCompleteness = store.ProfileCompleteness(combined)

	if err := e.actorRepo.ApplyMergeTotals(ctxTx, primary); err != nil {
		return nil, err
	}
	if err := e.actorRepo.MarkMerged(ctxTx, tenantID, mergeID, primaryID); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(models.MergeEvidence{
		SharedIdentifiers:    evidence.shared,
		DiscardedIdentifiers: evidence.discarded,
	})
	if err != nil {
		return nil, err
	}

	record, err := e.recordRepo.Create(ctxTx, &models.MergeRecord{
		TenantID:       tenantID,
		PrimaryActorID: primaryID,
		MergedActorID:  mergeID,
		Reason:         reason,
		Confidence:     confidence,
		Evidence:       payload,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctxTx); err != nil {
		return nil, models.ErrStoreUnavailable
	}

	if e.projector != nil {
		if perr := e.projector.SyncMerge(ctx, record); perr != nil {
			log.WithError(perr).Warn("Failed to project merge")
		}
	}

	log.WithFields(map[string]any{"signal_count": primary.SignalCount, "discarded_identifiers": len(evidence.discarded)}).Info("Merged actor into primary")

	return record, nil
}

// duplicatePlan is the resolution of identifier overlaps between the merge
// participants: which copies to retire and the audit evidence
type duplicatePlan struct {
	retire    []string
	discarded []models.DiscardedIdentifier
	shared    []models.CandidateOverlap
}

// planDuplicates keeps the higher-confidence copy of every identifier held
// by both actors; the loser is retired and recorded, never silently dropped
func planDuplicates(primaryIDs, mergeIDs []models.Identifier) duplicatePlan {
	plan := duplicatePlan{}

	type key struct {
		idType models.IdentifierType
		value  string
	}
	byKey := make(map[key]models.Identifier, len(primaryIDs))
	for _, id := range primaryIDs {
		byKey[key{id.Type, id.Value}] = id
	}

	for _, dup := range mergeIDs {
		kept, ok := byKey[key{dup.Type, dup.Value}]
		if !ok {
			continue
		}

		plan.shared = append(plan.shared, models.CandidateOverlap{
			Type:       dup.Type,
			Value:      dup.Value,
			Confidence: maxFloat(kept.Confidence, dup.Confidence),
		})

		loser, winner := dup, kept
		if dup.Confidence > kept.Confidence {
			loser, winner = kept, dup
		}
		plan.retire = append(plan.retire, loser.ID)
		plan.discarded = append(plan.discarded, models.DiscardedIdentifier{
			IdentifierID:   loser.ID,
			Type:           loser.Type,
			Value:          loser.Value,
			Confidence:     loser.Confidence,
			KeptConfidence: winner.Confidence,
		})
	}

	return plan
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
