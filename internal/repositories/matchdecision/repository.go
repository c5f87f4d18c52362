package matchdecision

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

const columns = "id, tenant_id, signal_id, candidate_actor_id, resulting_actor_id, confidence, method, decision, evidence, created_at"

// Repository handles the append-only match decision audit log
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new match decision repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// DB exposes the underlying database handle for transactional operations.
func (r *Repository) DB() database.DB {
	return r.db
}

// Create appends one decision. Rows are never updated or deleted.
func (r *Repository) Create(ctx context.Context, decision *models.MatchDecision) (*models.MatchDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "matchdecision.Repository.Create")
	defer span.End()

	if decision.ID == "" {
		decision.ID = uuid.New().String()
	}
	decision.CreatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("match_decisions")
	sb.Cols("id", "tenant_id", "signal_id", "candidate_actor_id", "resulting_actor_id", "confidence", "method", "decision", "evidence", "created_at")
	sb.Values(decision.ID, decision.TenantID, decision.SignalID, decision.CandidateActorID, decision.ResultingActorID, decision.Confidence, decision.Method, decision.Decision, decision.Evidence, decision.CreatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"signal_id": decision.SignalID}).Error("Failed to create match decision")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create match decision")
	}

	return decision, nil
}

// Get retrieves a decision by ID
func (r *Repository) Get(ctx context.Context, tenantID string, id string) (*models.MatchDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "matchdecision.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("match_decisions")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var decision models.MatchDecision
	if err := r.db.GetContext(ctx, &decision, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, models.ErrDecisionNotFound
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get match decision")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get match decision")
	}

	return &decision, nil
}

// GetFirstBySignal retrieves the earliest decision for a signal, or nil.
// The first decision is the authoritative one for idempotent replays.
func (r *Repository) GetFirstBySignal(ctx context.Context, tenantID string, signalID string) (*models.MatchDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "matchdecision.Repository.GetFirstBySignal")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("match_decisions")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("signal_id", signalID),
	)
	sb.OrderBy("created_at ASC")
	sb.Limit(1)

	query, args := sb.Build()
	var decision models.MatchDecision
	if err := r.db.GetContext(ctx, &decision, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get decision by signal")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get decision by signal")
	}

	return &decision, nil
}

// List retrieves decisions for a tenant, newest first
func (r *Repository) List(ctx context.Context, tenantID string, decision string, page, pageSize int) ([]models.MatchDecision, int, error) {
	ctx, span := tracing.StartSpan(ctx, "matchdecision.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("match_decisions")
	where := []string{sb.Equal("tenant_id", tenantID)}
	if decision != "" {
		where = append(where, sb.Equal("decision", decision))
	}
	sb.Where(where...)
	sb.OrderBy("created_at DESC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()
	var decisions []models.MatchDecision
	if err := r.db.SelectContext(ctx, &decisions, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list match decisions")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list match decisions")
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From("match_decisions")
	cwhere := []string{cb.Equal("tenant_id", tenantID)}
	if decision != "" {
		cwhere = append(cwhere, cb.Equal("decision", decision))
	}
	cb.Where(cwhere...)

	countQuery, countArgs := cb.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count match decisions")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count match decisions")
	}

	return decisions, total, nil
}

// ListRecentConflicts retrieves recent decisions whose evidence recorded
// exact identifiers pointing at different actors. These pairs never show up
// as identifier overlaps because the losing identifier was skipped, so the
// duplicate scanner reads them from here.
func (r *Repository) ListRecentConflicts(ctx context.Context, tenantID string, since time.Time, limit int) ([]models.MatchDecision, error) {
	ctx, span := tracing.StartSpan(ctx, "matchdecision.Repository.ListRecentConflicts")
	defer span.End()

	if limit < 1 || limit > 5000 {
		limit = 1000
	}

	query := `
		SELECT ` + columns + `
		FROM match_decisions
		WHERE tenant_id = $1
		AND created_at >= $2
		AND evidence -> 'conflicts' IS NOT NULL
		ORDER BY created_at DESC
		LIMIT $3
	`

	var decisions []models.MatchDecision
	if err := r.db.SelectContext(ctx, &decisions, query, tenantID, since, limit); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list conflict decisions")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list conflict decisions")
	}

	return decisions, nil
}

// ListUndisposedFlagged retrieves flagged decisions without a manual
// disposition yet, oldest first, for the review queue
func (r *Repository) ListUndisposedFlagged(ctx context.Context, tenantID string, page, pageSize int) ([]models.MatchDecision, int, error) {
	ctx, span := tracing.StartSpan(ctx, "matchdecision.Repository.ListUndisposedFlagged")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 100
	}

	query := `
		SELECT d.id, d.tenant_id, d.signal_id, d.candidate_actor_id, d.resulting_actor_id, d.confidence, d.method, d.decision, d.evidence, d.created_at
		FROM match_decisions d
		LEFT JOIN review_dispositions rd ON rd.decision_id = d.id AND rd.tenant_id = d.tenant_id
		WHERE d.tenant_id = $1
		AND d.decision = $2
		AND rd.id IS NULL
		ORDER BY d.created_at ASC
		LIMIT $3 OFFSET $4
	`

	var decisions []models.MatchDecision
	if err := r.db.SelectContext(ctx, &decisions, query, tenantID, models.DecisionFlaggedForReview, pageSize, (page-1)*pageSize); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list flagged decisions")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list flagged decisions")
	}

	countQuery := `
		SELECT COUNT(*)
		FROM match_decisions d
		LEFT JOIN review_dispositions rd ON rd.decision_id = d.id AND rd.tenant_id = d.tenant_id
		WHERE d.tenant_id = $1
		AND d.decision = $2
		AND rd.id IS NULL
	`

	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, tenantID, models.DecisionFlaggedForReview); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count flagged decisions")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count flagged decisions")
	}

	return decisions, total, nil
}
