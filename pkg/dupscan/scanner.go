// Package dupscan finds active actor pairs that look like the same person
// and merges the confident ones.
package dupscan

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/internal/repositories/actor"
	"github.com/Ramsey-B/aster/internal/repositories/identifier"
	"github.com/Ramsey-B/aster/internal/repositories/matchdecision"
	"github.com/Ramsey-B/aster/pkg/events"
	"github.com/Ramsey-B/aster/pkg/merging"
	"github.com/Ramsey-B/aster/pkg/metrics"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// Config holds duplicate scan settings
type Config struct {
	// MergeThreshold is the minimum pair confidence for an automatic merge;
	// pairs below it are reported only
	MergeThreshold float64

	// ConflictLookback bounds how far back conflict decisions are read
	ConflictLookback time.Duration

	// MaxPairs bounds the overlap rows examined per run
	MaxPairs int
}

// DefaultConfig returns the default scan settings
func DefaultConfig() Config {
	return Config{
		MergeThreshold:   0.85,
		ConflictLookback: 24 * time.Hour,
		MaxPairs:         1000,
	}
}

// ScanReport summarizes one duplicate scan run for a tenant
type ScanReport struct {
	TenantID   string                       `json:"tenant_id"`
	Groups     []models.MergeCandidateGroup `json:"groups"`
	AutoMerged int                          `json:"auto_merged"`
	Failed     int                          `json:"failed"`
	ScannedAt  time.Time                    `json:"scanned_at"`
}

// Scanner detects and resolves duplicate actors
type Scanner struct {
	idRepo       *identifier.Repository
	decisionRepo *matchdecision.Repository
	actorRepo    *actor.Repository
	mergeEngine  *merging.Engine
	emitter      *events.Emitter
	config       Config
	logger       ectologger.Logger
}

// NewScanner creates a new duplicate scanner
func NewScanner(
	idRepo *identifier.Repository,
	decisionRepo *matchdecision.Repository,
	actorRepo *actor.Repository,
	mergeEngine *merging.Engine,
	emitter *events.Emitter,
	config Config,
	logger ectologger.Logger,
) *Scanner {
	return &Scanner{
		idRepo:       idRepo,
		decisionRepo: decisionRepo,
		actorRepo:    actorRepo,
		mergeEngine:  mergeEngine,
		emitter:      emitter,
		config:       config,
		logger:       logger,
	}
}

// overlapWeight is how strongly a shared identifier of each type suggests
// the two actors are the same person
func overlapWeight(idType models.IdentifierType) float64 {
	switch idType {
	case models.IdentifierTypePhone, models.IdentifierTypeEmail:
		return 1.0
	case models.IdentifierTypeHandle:
		return 0.8
	default:
		return 0.5
	}
}

type pairKey struct {
	a, b string
}

type pairEvidence struct {
	overlaps   []models.CandidateOverlap
	confidence float64
}

// addOverlap folds one shared identifier into the pair confidence.
// Each additional overlap closes part of the remaining gap to certainty.
func (p *pairEvidence) addOverlap(o models.CandidateOverlap) {
	p.overlaps = append(p.overlaps, o)
	p.confidence = p.confidence + overlapWeight(o.Type)*(1-p.confidence)
}

// Preview reports suspected duplicate pairs without merging anything
func (s *Scanner) Preview(ctx context.Context, tenantID string) ([]models.MergeCandidateGroup, error) {
	ctx, span := tracing.StartSpan(ctx, "dupscan.Scanner.Preview")
	defer span.End()

	pairs, err := s.collectPairs(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	groups := make([]models.MergeCandidateGroup, 0, len(pairs))
	for _, k := range sortedKeys(pairs) {
		ev := pairs[k]
		groups = append(groups, models.MergeCandidateGroup{
			TenantID:   tenantID,
			ActorIDs:   []string{k.a, k.b},
			Overlaps:   ev.overlaps,
			Confidence: ev.confidence,
		})
	}
	return groups, nil
}

func sortedKeys(pairs map[pairKey]*pairEvidence) []pairKey {
	keys := make([]pairKey, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].a != keys[j].a {
			return keys[i].a < keys[j].a
		}
		return keys[i].b < keys[j].b
	})
	return keys
}

// Scan examines one tenant for duplicate actor pairs and merges the
// confident ones under the merge engine's pair lock
func (s *Scanner) Scan(ctx context.Context, tenantID string) (*ScanReport, error) {
	ctx, span := tracing.StartSpan(ctx, "dupscan.Scanner.Scan")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{"tenant_id": tenantID})

	pairs, err := s.collectPairs(ctx, tenantID)
	if err != nil {
		metrics.ScanRunsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	report := &ScanReport{TenantID: tenantID, ScannedAt: time.Now().UTC()}

	for _, k := range sortedKeys(pairs) {
		ev := pairs[k]
		group := models.MergeCandidateGroup{
			TenantID:   tenantID,
			ActorIDs:   []string{k.a, k.b},
			Overlaps:   ev.overlaps,
			Confidence: ev.confidence,
		}

		if ev.confidence >= s.config.MergeThreshold {
			merged, err := s.autoMerge(ctx, tenantID, k, ev.confidence)
			if err != nil {
				report.Failed++
				log.WithError(err).WithFields(map[string]any{
					"actor_a": k.a,
					"actor_b": k.b,
				}).Error("Failed to auto-merge duplicate pair")
			} else if merged {
				group.AutoMerged = true
				report.AutoMerged++
			}
		}

		report.Groups = append(report.Groups, group)
	}

	log.WithFields(map[string]any{
		"pairs":       len(report.Groups),
		"auto_merged": report.AutoMerged,
		"failed":      report.Failed,
	}).Info("Duplicate scan completed")
	metrics.ScanRunsTotal.WithLabelValues("ok").Inc()

	return report, nil
}

// collectPairs gathers suspected duplicate pairs from identifier overlaps
// and from recent exact-match conflict evidence. Conflict pairs never show
// up as overlaps because the conflicting identifier was skipped at link time.
func (s *Scanner) collectPairs(ctx context.Context, tenantID string) (map[pairKey]*pairEvidence, error) {
	pairs := make(map[pairKey]*pairEvidence)

	add := func(a, b string, o models.CandidateOverlap) {
		if a > b {
			a, b = b, a
		}
		k := pairKey{a, b}
		ev, ok := pairs[k]
		if !ok {
			ev = &pairEvidence{}
			pairs[k] = ev
		}
		for _, existing := range ev.overlaps {
			if existing.Type == o.Type && existing.Value == o.Value {
				return
			}
		}
		ev.addOverlap(o)
	}

	overlaps, err := s.idRepo.ListOverlaps(ctx, tenantID, s.config.MaxPairs)
	if err != nil {
		return nil, err
	}
	for _, o := range overlaps {
		conf := o.ConfidenceA
		if o.ConfidenceB > conf {
			conf = o.ConfidenceB
		}
		add(o.ActorA, o.ActorB, models.CandidateOverlap{Type: o.Type, Value: o.Value, Confidence: conf})
	}

	since := time.Now().UTC().Add(-s.config.ConflictLookback)
	decisions, err := s.decisionRepo.ListRecentConflicts(ctx, tenantID, since, s.config.MaxPairs)
	if err != nil {
		return nil, err
	}
	for i := range decisions {
		var ev models.DecisionEvidence
		if err := json.Unmarshal(decisions[i].Evidence, &ev); err != nil {
			continue
		}
		for _, c := range ev.Conflicts {
			add(c.WinnerActorID, c.LoserActorID, models.CandidateOverlap{
				Type:       c.LoserIDType,
				Value:      c.LoserIDValue,
				Confidence: 1.0,
			})
		}
	}

	return pairs, nil
}

// autoMerge merges a confident duplicate pair. Returns false without error
// when the pair was already merged or one side is gone, which happens when
// an earlier group in the same run consumed one of the actors.
func (s *Scanner) autoMerge(ctx context.Context, tenantID string, k pairKey, confidence float64) (bool, error) {
	a, err := s.actorRepo.Find(ctx, tenantID, k.a)
	if err != nil {
		return false, err
	}
	b, err := s.actorRepo.Find(ctx, tenantID, k.b)
	if err != nil {
		return false, err
	}
	if a == nil || b == nil || !a.IsActive() || !b.IsActive() {
		return false, nil
	}

	primary, merge := merging.ChoosePrimary(a, b)
	record, err := s.mergeEngine.Apply(ctx, tenantID, primary.ActorID, merge.ActorID, "duplicate_scan", confidence)
	if err != nil {
		if errors.Is(err, models.ErrMergeInconsistency) {
			return false, nil
		}
		return false, err
	}

	metrics.MergesTotal.WithLabelValues("scan").Inc()

	if s.emitter != nil {
		if err := s.emitter.EmitActorMerged(ctx, record); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Failed to emit actor.merged event")
		}
	}

	return true, nil
}
