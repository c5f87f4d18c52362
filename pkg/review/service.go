// Package review manages the manual disposition of flagged decisions.
package review

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/aster/internal/repositories/matchdecision"
	reviewrepo "github.com/Ramsey-B/aster/internal/repositories/review"
	signalrepo "github.com/Ramsey-B/aster/internal/repositories/signal"
	"github.com/Ramsey-B/aster/pkg/matching"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/store"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// Service handles the review queue and its manual dispositions
type Service struct {
	decisionRepo    *matchdecision.Repository
	dispositionRepo *reviewrepo.Repository
	signalRepo      *signalrepo.Repository
	actors          *store.ActorStore
	engine          *matching.Engine
	logger          ectologger.Logger
}

// NewService creates a new review service
func NewService(
	decisionRepo *matchdecision.Repository,
	dispositionRepo *reviewrepo.Repository,
	signalRepo *signalrepo.Repository,
	actors *store.ActorStore,
	engine *matching.Engine,
	logger ectologger.Logger,
) *Service {
	return &Service{
		decisionRepo:    decisionRepo,
		dispositionRepo: dispositionRepo,
		signalRepo:      signalRepo,
		actors:          actors,
		engine:          engine,
		logger:          logger,
	}
}

// List returns undisposed flagged decisions, oldest first
func (s *Service) List(ctx context.Context, tenantID string, page, pageSize int) (*models.ReviewListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.List")
	defer span.End()

	decisions, total, err := s.decisionRepo.ListUndisposedFlagged(ctx, tenantID, page, pageSize)
	if err != nil {
		return nil, err
	}

	items := make([]models.ReviewItem, 0, len(decisions))
	for i := range decisions {
		d := &decisions[i]
		item := models.ReviewItem{
			DecisionID: d.ID,
			SignalID:   d.SignalID,
			Confidence: d.Confidence,
			FlaggedAt:  d.CreatedAt,
		}
		if len(d.Evidence) > 0 {
			var ev models.DecisionEvidence
			if err := json.Unmarshal(d.Evidence, &ev); err == nil {
				item.Candidates = ev.Candidates
			}
		}
		items = append(items, item)
	}

	return &models.ReviewListResponse{
		Items:      items,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// Resolve applies a manual disposition to a flagged decision. Linking
// attaches the signal to the chosen actor with full confidence; rejecting
// the candidates creates a new actor for the signal.
func (s *Service) Resolve(ctx context.Context, tenantID, decisionID string, req *models.ResolveReviewRequest, decidedBy string) (*models.ReviewDisposition, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Service.Resolve")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":   tenantID,
		"decision_id": decisionID,
		"resolution":  req.Resolution,
	})

	decision, err := s.decisionRepo.Get(ctx, tenantID, decisionID)
	if err != nil {
		if err == models.ErrDecisionNotFound {
			return nil, httperror.NewHTTPError(http.StatusNotFound, "decision not found")
		}
		return nil, err
	}
	if decision.Decision != models.DecisionFlaggedForReview {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "decision is not flagged for review")
	}

	existing, err := s.dispositionRepo.GetByDecision(ctx, tenantID, decisionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, httperror.NewHTTPError(http.StatusConflict, "decision has already been disposed")
	}

	sig, err := s.signalRepo.Get(ctx, tenantID, decision.SignalID)
	if err != nil {
		return nil, err
	}
	if sig == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "signal not found")
	}

	disposition := &models.ReviewDisposition{
		TenantID:   tenantID,
		DecisionID: decisionID,
		Resolution: req.Resolution,
		DecidedBy:  decidedBy,
	}

	normalized := s.engine.NormalizeSignal(sig)

	switch req.Resolution {
	case models.ReviewResolutionLink:
		a, _, err := s.actors.LinkSignalToActor(ctx, tenantID, *req.ActorID, sig, normalized, 1.0, models.LinkMethodManual)
		if err != nil {
			return nil, err
		}
		disposition.ActorID = &a.ActorID
		log.WithFields(map[string]any{"actor_id": a.ActorID}).Info("Flagged signal manually linked")

	case models.ReviewResolutionReject:
		a, _, err := s.actors.CreateActorForSignal(ctx, sig, normalized, 1.0, models.LinkMethodNewActor)
		if err != nil {
			return nil, err
		}
		disposition.ActorID = &a.ActorID
		log.WithFields(map[string]any{"actor_id": a.ActorID}).Info("Flagged candidates rejected, new actor created")

	default:
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "unknown resolution")
	}

	return s.dispositionRepo.Create(ctx, disposition)
}
