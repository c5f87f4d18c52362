// Package matching implements the tiered decision policy that resolves a
// signal to an existing actor, a new actor, or the manual review queue.
package matching

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/internal/repositories/actor"
	"github.com/Ramsey-B/aster/internal/repositories/identifier"
	"github.com/Ramsey-B/aster/internal/repositories/matchdecision"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/normalizers"
	"github.com/Ramsey-B/aster/pkg/scoring"
	"github.com/Ramsey-B/aster/pkg/store"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// EngineConfig holds the named tier boundaries and score weights
type EngineConfig struct {
	// CountryDefault is the region used for bare national phone numbers
	CountryDefault string

	// Tier2Floor is the minimum combined score for an automatic weak link
	Tier2Floor float64

	// Tier3Floor is the minimum combined score to flag for manual review;
	// anything below creates a new actor
	Tier3Floor float64

	// WeakScoreCap bounds the combined score; weak evidence can never
	// reach exact-match certainty
	WeakScoreCap float64

	// NameWeight and BehaviorWeight combine the two weak signals
	NameWeight     float64
	BehaviorWeight float64

	// HandleConfidence is the link confidence of an exact handle match.
	// Handles are reused across platforms, so they stay below Tier 1.
	HandleConfidence float64

	// TieBreakWindow is the score distance within which candidates are
	// considered tied and broken by first_seen then actor_id
	TieBreakWindow float64

	// MaxCandidates bounds the weak-signal candidate pool per resolution
	MaxCandidates int

	// ReviewCandidates is how many top candidates a flagged decision records
	ReviewCandidates int
}

// DefaultConfig returns the default tier thresholds
func DefaultConfig() EngineConfig {
	return EngineConfig{
		CountryDefault:   "GB",
		Tier2Floor:       0.70,
		Tier3Floor:       0.50,
		WeakScoreCap:     0.94,
		NameWeight:       0.6,
		BehaviorWeight:   0.4,
		HandleConfidence: 0.9,
		TieBreakWindow:   0.02,
		MaxCandidates:    50,
		ReviewCandidates: 3,
	}
}

// Engine resolves signals against the actor store
type Engine struct {
	actors       *store.ActorStore
	actorRepo    *actor.Repository
	idRepo       *identifier.Repository
	decisionRepo *matchdecision.Repository
	scorer       *scoring.Scorer
	config       EngineConfig
	logger       ectologger.Logger
}

// NewEngine creates a new matching engine
func NewEngine(
	actors *store.ActorStore,
	actorRepo *actor.Repository,
	idRepo *identifier.Repository,
	decisionRepo *matchdecision.Repository,
	scorer *scoring.Scorer,
	config EngineConfig,
	logger ectologger.Logger,
) *Engine {
	return &Engine{
		actors:       actors,
		actorRepo:    actorRepo,
		idRepo:       idRepo,
		decisionRepo: decisionRepo,
		scorer:       scorer,
		config:       config,
		logger:       logger,
	}
}

// exactMatch is one identifier that exactly matched an existing actor
type exactMatch struct {
	actor      *models.Actor
	idType     models.IdentifierType
	value      string
	method     models.LinkMethod
	confidence float64
}

// Resolve runs the tiered decision policy for one signal. Exactly one
// MatchDecision is written per fresh outcome; replays return the first
// decision unchanged.
func (e *Engine) Resolve(ctx context.Context, sig *models.Signal) (*models.MatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.Resolve")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{"signal_id": sig.SignalID, "tenant_id": sig.TenantID})

	if replay, err := e.replay(ctx, sig); err != nil {
		return nil, err
	} else if replay != nil {
		log.Debug("Signal already resolved, returning prior decision")
		return replay, nil
	}

	normalized, evidence := e.normalizeAll(sig)

	result, err := e.resolveOnce(ctx, sig, normalized, evidence, log)
	if err == models.ErrIdentifierConflict {
		// lost a creation race; the retry observes the winner's actor
		log.Warn("Identifier conflict during resolution, retrying once")
		result, err = e.resolveOnce(ctx, sig, normalized, evidence, log)
	}
	return result, err
}

// replay returns the prior result when this signal was already resolved
func (e *Engine) replay(ctx context.Context, sig *models.Signal) (*models.MatchResult, error) {
	link, err := e.actors.GetLinkBySignal(ctx, sig.TenantID, sig.SignalID)
	if err != nil {
		return nil, err
	}
	decision, derr := e.decisionRepo.GetFirstBySignal(ctx, sig.TenantID, sig.SignalID)
	if derr != nil {
		return nil, derr
	}

	if link == nil && (decision == nil || decision.Decision != models.DecisionFlaggedForReview) {
		return nil, nil
	}

	result := &models.MatchResult{Replayed: true}
	if decision != nil {
		result.Decision = decision.Decision
		result.Confidence = decision.Confidence
		result.Method = decision.Method
		result.DecisionID = decision.ID
		if decision.ResultingActorID != nil {
			result.ActorID = *decision.ResultingActorID
		}
		if len(decision.Evidence) > 0 {
			var ev models.DecisionEvidence
			if err := json.Unmarshal(decision.Evidence, &ev); err == nil {
				result.Candidates = ev.Candidates
			}
		}
	} else {
		// link without a decision should not happen; fall back to the link
		result.Decision = models.DecisionMatched
		result.ActorID = link.ActorID
		result.Confidence = link.LinkConfidence
		result.Method = link.LinkMethod
	}
	return result, nil
}

// NormalizeSignal canonicalizes a signal's identifiers for storage,
// dropping malformed ones. Used by manual review links, which reuse the
// stored signal.
func (e *Engine) NormalizeSignal(sig *models.Signal) []store.NormalizedIdentifier {
	normalized, _ := e.normalizeAll(sig)
	return normalized
}

// normalizeAll canonicalizes every identifier on the signal. Malformed
// identifiers are dropped and recorded; they never abort resolution.
func (e *Engine) normalizeAll(sig *models.Signal) ([]store.NormalizedIdentifier, *models.DecisionEvidence) {
	evidence := &models.DecisionEvidence{}
	normalized := make([]store.NormalizedIdentifier, 0, len(sig.RawIdentifiers))

	for idType, raw := range sig.RawIdentifiers {
		value, err := normalizers.Normalize(idType, raw, e.config.CountryDefault)
		if err != nil {
			evidence.NormalizationErrors = append(evidence.NormalizationErrors, string(idType)+": "+err.Error())
			continue
		}
		if value == "" {
			continue
		}
		normalized = append(normalized, store.NormalizedIdentifier{
			Type:       idType,
			Value:      value,
			Confidence: identifierConfidence(idType),
		})
	}

	return normalized, evidence
}

func (e *Engine) resolveOnce(ctx context.Context, sig *models.Signal, normalized []store.NormalizedIdentifier, evidence *models.DecisionEvidence, log ectologger.Logger) (*models.MatchResult, error) {
	exact, err := e.findExactMatches(ctx, sig.TenantID, normalized)
	if err != nil {
		return nil, err
	}

	if len(exact) > 0 {
		winner := e.pickExactWinner(exact, evidence)
		return e.link(ctx, sig, normalized, winner.actor.ActorID, winner.confidence, winner.method, evidence, log)
	}

	candidates, err := e.scoreCandidates(ctx, sig, normalized)
	if err != nil {
		return nil, err
	}

	if len(candidates) > 0 {
		best := candidates[0]
		switch {
		case best.Score >= e.config.Tier2Floor:
			evidence.Candidates = topN(candidates, e.config.ReviewCandidates)
			return e.link(ctx, sig, normalized, best.ActorID, best.Score, models.LinkMethodNameBehavior, evidence, log)
		case best.Score >= e.config.Tier3Floor:
			return e.flag(ctx, sig, candidates, evidence, log)
		}
	}

	return e.createNew(ctx, sig, normalized, evidence, log)
}

// findExactMatches queries the store for active owners of the signal's
// phone, email, and handle identifiers
func (e *Engine) findExactMatches(ctx context.Context, tenantID string, normalized []store.NormalizedIdentifier) ([]exactMatch, error) {
	var matches []exactMatch
	for _, nid := range normalized {
		var method models.LinkMethod
		var confidence float64
		switch nid.Type {
		case models.IdentifierTypePhone:
			method, confidence = models.LinkMethodExactPhone, 1.0
		case models.IdentifierTypeEmail:
			method, confidence = models.LinkMethodExactEmail, 1.0
		case models.IdentifierTypeHandle:
			method, confidence = models.LinkMethodExactHandle, e.config.HandleConfidence
		default:
			continue
		}

		owner, err := e.actors.FindByIdentifier(ctx, tenantID, nid.Type, nid.Value)
		if err != nil {
			return nil, err
		}
		if owner == nil {
			continue
		}
		matches = append(matches, exactMatch{
			actor:      owner,
			idType:     nid.Type,
			value:      nid.Value,
			method:     method,
			confidence: confidence,
		})
	}
	return matches, nil
}

// pickExactWinner resolves conflicting exact matches to different actors by
// preferring the higher signal_count, recording each conflict in evidence
func (e *Engine) pickExactWinner(matches []exactMatch, evidence *models.DecisionEvidence) exactMatch {
	winner := matches[0]
	for _, m := range matches[1:] {
		if m.actor.ActorID == winner.actor.ActorID {
			// same actor via a second identifier; keep the stronger method
			if m.confidence > winner.confidence {
				winner = m
			}
			continue
		}

		loser := m
		if m.actor.SignalCount > winner.actor.SignalCount ||
			(m.actor.SignalCount == winner.actor.SignalCount && beatsTie(m.actor, winner.actor)) {
			loser = winner
			winner = m
		}

		evidence.Conflicts = append(evidence.Conflicts, models.ExactConflict{
			WinnerActorID: winner.actor.ActorID,
			LoserActorID:  loser.actor.ActorID,
			WinnerIDType:  winner.idType,
			LoserIDType:   loser.idType,
			WinnerIDValue: winner.value,
			LoserIDValue:  loser.value,
			WinnerSignals: winner.actor.SignalCount,
			LoserSignals:  loser.actor.SignalCount,
		})
	}
	return winner
}

// scoreCandidates computes the combined weak score for every active actor
// with a name identifier, sorted best first with deterministic tie-breaks
func (e *Engine) scoreCandidates(ctx context.Context, sig *models.Signal, normalized []store.NormalizedIdentifier) ([]models.CandidateScore, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.scoreCandidates")
	defer span.End()

	name := ""
	for _, nid := range normalized {
		if nid.Type == models.IdentifierTypeName {
			name = nid.Value
			break
		}
	}
	if name == "" && sig.BehavioralSimilarity == nil && len(sig.Behavior) == 0 {
		return nil, nil
	}

	names, err := e.idRepo.ListActiveNames(ctx, sig.TenantID, e.config.MaxCandidates*20)
	if err != nil {
		return nil, err
	}

	bestName := make(map[string]float64)
	for _, id := range names {
		sim := e.scorer.NameSimilarity(name, id.Value)
		if sim > bestName[id.ActorID] {
			bestName[id.ActorID] = sim
		}
	}

	actorIDs := make([]string, 0, len(bestName))
	for actorID := range bestName {
		actorIDs = append(actorIDs, actorID)
	}
	sort.Slice(actorIDs, func(i, j int) bool {
		if bestName[actorIDs[i]] != bestName[actorIDs[j]] {
			return bestName[actorIDs[i]] > bestName[actorIDs[j]]
		}
		return actorIDs[i] < actorIDs[j]
	})
	if len(actorIDs) > e.config.MaxCandidates {
		actorIDs = actorIDs[:e.config.MaxCandidates]
	}

	actors, err := e.actorRepo.GetByIDs(ctx, sig.TenantID, actorIDs)
	if err != nil {
		return nil, err
	}

	candidates := make([]models.CandidateScore, 0, len(actors))
	byID := make(map[string]*models.Actor, len(actors))
	for i := range actors {
		a := &actors[i]
		if !a.IsActive() {
			continue
		}
		byID[a.ActorID] = a

		behaviorSim := 0.0
		if sig.BehavioralSimilarity != nil {
			behaviorSim = *sig.BehavioralSimilarity
		} else if len(sig.Behavior) > 0 {
			behaviorSim = e.scorer.Cosine(a.Behavior, sig.Behavior)
		}

		nameSim := bestName[a.ActorID]

		candidates = append(candidates, models.CandidateScore{
			ActorID:              a.ActorID,
			Score:                e.combinedScore(nameSim, behaviorSim),
			NameSimilarity:       nameSim,
			BehavioralSimilarity: behaviorSim,
		})
	}

	e.sortCandidates(candidates, byID)
	return candidates, nil
}

// combinedScore weighs the two weak signals, capped below Tier-1 certainty
func (e *Engine) combinedScore(nameSim, behaviorSim float64) float64 {
	combined := e.config.NameWeight*nameSim + e.config.BehaviorWeight*behaviorSim
	if combined > e.config.WeakScoreCap {
		combined = e.config.WeakScoreCap
	}
	return combined
}

// sortCandidates orders best first; candidates within the tie-break window
// prefer the earliest first_seen, then the lowest actor_id
func (e *Engine) sortCandidates(candidates []models.CandidateScore, actors map[string]*models.Actor) {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		diff := a.Score - b.Score
		if diff < 0 {
			diff = -diff
		}
		if diff <= e.config.TieBreakWindow {
			aa, okA := actors[a.ActorID]
			ab, okB := actors[b.ActorID]
			if okA && okB {
				if !aa.FirstSeen.Equal(ab.FirstSeen) {
					return aa.FirstSeen.Before(ab.FirstSeen)
				}
				return aa.ActorID < ab.ActorID
			}
		}
		return a.Score > b.Score
	})
}

func (e *Engine) link(ctx context.Context, sig *models.Signal, normalized []store.NormalizedIdentifier, actorID string, confidence float64, method models.LinkMethod, evidence *models.DecisionEvidence, log ectologger.Logger) (*models.MatchResult, error) {
	a, _, err := e.actors.LinkSignalToActor(ctx, sig.TenantID, actorID, sig, normalized, confidence, method)
	if err != nil {
		return nil, err
	}

	decision, err := e.record(ctx, sig, &actorID, &a.ActorID, confidence, method, models.DecisionMatched, evidence)
	if err != nil {
		return nil, err
	}

	log.WithFields(map[string]any{"actor_id": a.ActorID, "method": method, "confidence": confidence}).Info("Signal matched to actor")

	return &models.MatchResult{
		Decision:   models.DecisionMatched,
		ActorID:    a.ActorID,
		Confidence: confidence,
		Method:     method,
		Candidates: evidence.Candidates,
		DecisionID: decision.ID,
		Conflicted: len(evidence.Conflicts) > 0,
	}, nil
}

func (e *Engine) flag(ctx context.Context, sig *models.Signal, candidates []models.CandidateScore, evidence *models.DecisionEvidence, log ectologger.Logger) (*models.MatchResult, error) {
	top := topN(candidates, e.config.ReviewCandidates)
	evidence.Candidates = top

	candidateID := &top[0].ActorID

	decision, err := e.record(ctx, sig, candidateID, nil, top[0].Score, models.LinkMethodFuzzyName, models.DecisionFlaggedForReview, evidence)
	if err != nil {
		return nil, err
	}

	log.WithFields(map[string]any{"confidence": top[0].Score, "candidates": len(top)}).Info("Signal flagged for review")

	return &models.MatchResult{
		Decision:   models.DecisionFlaggedForReview,
		Confidence: top[0].Score,
		Candidates: top,
		DecisionID: decision.ID,
	}, nil
}

func (e *Engine) createNew(ctx context.Context, sig *models.Signal, normalized []store.NormalizedIdentifier, evidence *models.DecisionEvidence, log ectologger.Logger) (*models.MatchResult, error) {
	a, _, err := e.actors.CreateActorForSignal(ctx, sig, normalized, 1.0, models.LinkMethodNewActor)
	if err != nil {
		return nil, err
	}

	decision, err := e.record(ctx, sig, nil, &a.ActorID, 1.0, models.LinkMethodNewActor, models.DecisionCreatedNew, evidence)
	if err != nil {
		return nil, err
	}

	log.WithFields(map[string]any{"actor_id": a.ActorID}).Info("Created new actor for signal")

	return &models.MatchResult{
		Decision:   models.DecisionCreatedNew,
		ActorID:    a.ActorID,
		Confidence: 1.0,
		Method:     models.LinkMethodNewActor,
		DecisionID: decision.ID,
	}, nil
}

// record appends the single MatchDecision for this outcome
func (e *Engine) record(ctx context.Context, sig *models.Signal, candidateID, resultingID *string, confidence float64, method models.LinkMethod, outcome models.Decision, evidence *models.DecisionEvidence) (*models.MatchDecision, error) {
	var payload json.RawMessage
	if evidence != nil && (len(evidence.Candidates) > 0 || len(evidence.Conflicts) > 0 || len(evidence.NormalizationErrors) > 0) {
		if data, err := json.Marshal(evidence); err == nil {
			payload = data
		}
	}

	return e.decisionRepo.Create(ctx, &models.MatchDecision{
		TenantID:         sig.TenantID,
		SignalID:         sig.SignalID,
		CandidateActorID: candidateID,
		ResultingActorID: resultingID,
		Confidence:       confidence,
		Method:           method,
		Decision:         outcome,
		Evidence:         payload,
	})
}

// identifierConfidence is the storage confidence for a fresh identifier
func identifierConfidence(idType models.IdentifierType) float64 {
	switch idType {
	case models.IdentifierTypePhone, models.IdentifierTypeEmail:
		return 1.0
	case models.IdentifierTypeHandle:
		return 0.9
	default:
		return 0.5
	}
}

func topN(candidates []models.CandidateScore, n int) []models.CandidateScore {
	if len(candidates) <= n {
		return candidates
	}
	return candidates[:n]
}

func beatsTie(a, b *models.Actor) bool {
	if !a.FirstSeen.Equal(b.FirstSeen) {
		return a.FirstSeen.Before(b.FirstSeen)
	}
	return a.ActorID < b.ActorID
}
