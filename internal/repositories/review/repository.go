package review

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

// DecisionConstraint is the unique index enforcing one disposition per decision
const DecisionConstraint = "uq_review_dispositions_decision"

const columns = "id, tenant_id, decision_id, resolution, actor_id, decided_by, decided_at"

// Repository handles review disposition persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new review disposition repository
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

// Create records the manual outcome for a flagged decision. A decision can
// only be disposed once.
func (r *Repository) Create(ctx context.Context, disposition *models.ReviewDisposition) (*models.ReviewDisposition, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Repository.Create")
	defer span.End()

	if disposition.ID == "" {
		disposition.ID = uuid.New().String()
	}
	disposition.DecidedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("review_dispositions")
	sb.Cols("id", "tenant_id", "decision_id", "resolution", "actor_id", "decided_by", "decided_at")
	sb.Values(disposition.ID, disposition.TenantID, disposition.DecisionID, disposition.Resolution, disposition.ActorID, disposition.DecidedBy, disposition.DecidedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err, DecisionConstraint) {
			return nil, httperror.NewHTTPError(http.StatusConflict, "decision has already been disposed")
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"decision_id": disposition.DecisionID}).Error("Failed to create review disposition")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create review disposition")
	}

	return disposition, nil
}

// GetByDecision retrieves the disposition for a decision, or nil
func (r *Repository) GetByDecision(ctx context.Context, tenantID string, decisionID string) (*models.ReviewDisposition, error) {
	ctx, span := tracing.StartSpan(ctx, "review.Repository.GetByDecision")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("review_dispositions")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("decision_id", decisionID),
	)

	query, args := sb.Build()
	var disposition models.ReviewDisposition
	if err := r.db.GetContext(ctx, &disposition, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get review disposition")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get review disposition")
	}

	return &disposition, nil
}
