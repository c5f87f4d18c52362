package signallink

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

// SignalConstraint is the unique index enforcing one link per signal
const SignalConstraint = "uq_actor_signal_links_signal"

const columns = "id, tenant_id, actor_id, signal_id, link_confidence, link_method, created_at, updated_at"

// Repository handles actor-signal link persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new signal link repository
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

// Create inserts the single link for a resolved signal. A second link for
// the same signal violates the unique index and is rejected.
func (r *Repository) Create(ctx context.Context, link *models.ActorSignalLink) (*models.ActorSignalLink, error) {
	ctx, span := tracing.StartSpan(ctx, "signallink.Repository.Create")
	defer span.End()

	if link.ID == "" {
		link.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	link.CreatedAt = now
	link.UpdatedAt = now

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("actor_signal_links")
	sb.Cols("id", "tenant_id", "actor_id", "signal_id", "link_confidence", "link_method", "created_at", "updated_at")
	sb.Values(link.ID, link.TenantID, link.ActorID, link.SignalID, link.LinkConfidence, link.LinkMethod, link.CreatedAt, link.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err, SignalConstraint) {
			return nil, models.ErrIdentifierConflict
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"signal_id": link.SignalID}).Error("Failed to create signal link")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create signal link")
	}

	return link, nil
}

// GetBySignal retrieves the link for a signal, or nil when unresolved
func (r *Repository) GetBySignal(ctx context.Context, tenantID string, signalID string) (*models.ActorSignalLink, error) {
	ctx, span := tracing.StartSpan(ctx, "signallink.Repository.GetBySignal")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("actor_signal_links")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("signal_id", signalID),
	)

	query, args := sb.Build()
	var link models.ActorSignalLink
	if err := r.db.GetContext(ctx, &link, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get signal link")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get signal link")
	}

	return &link, nil
}

// ListByActor retrieves all links owned by an actor
func (r *Repository) ListByActor(ctx context.Context, tenantID string, actorID string) ([]models.ActorSignalLink, error) {
	ctx, span := tracing.StartSpan(ctx, "signallink.Repository.ListByActor")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("actor_signal_links")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("actor_id", actorID),
	)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var links []models.ActorSignalLink
	if err := r.db.SelectContext(ctx, &links, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list signal links by actor")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list signal links")
	}

	return links, nil
}

// RepointToActor rewrites every link from one actor to another. Links are
// never deleted; merges only rewrite ownership.
func (r *Repository) RepointToActor(ctx context.Context, tenantID string, fromActorID, toActorID string) error {
	ctx, span := tracing.StartSpan(ctx, "signallink.Repository.RepointToActor")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("actor_signal_links")
	sb.Set(
		sb.Assign("actor_id", toActorID),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("actor_id", fromActorID),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to repoint signal links")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to repoint signal links")
	}

	return nil
}
