package actor

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/lib/pq"

	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

const columns = "actor_id, tenant_id, first_seen, last_seen, signal_count, signal_sources, profile_completeness, confidence_in_identity, status, merged_into, behavior, created_at, updated_at"

// Repository handles actor persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new actor repository
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

// Create inserts a new active actor
func (r *Repository) Create(ctx context.Context, actor *models.Actor) (*models.Actor, error) {
	ctx, span := tracing.StartSpan(ctx, "actor.Repository.Create")
	defer span.End()

	if actor.ActorID == "" {
		actor.ActorID = uuid.New().String()
	}
	now := time.Now().UTC()
	actor.CreatedAt = now
	actor.UpdatedAt = now
	actor.Status = models.ActorStatusActive
	if actor.SignalSources == nil {
		actor.SignalSources = pq.StringArray{}
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("actors")
	sb.Cols("actor_id", "tenant_id", "first_seen", "last_seen", "signal_count", "signal_sources", "profile_completeness", "confidence_in_identity", "status", "merged_into", "behavior", "created_at", "updated_at")
	sb.Values(actor.ActorID, actor.TenantID, actor.FirstSeen, actor.LastSeen, actor.SignalCount, actor.SignalSources, actor.ProfileCompleteness, actor.ConfidenceInIdentity, actor.Status, actor.MergedInto, actor.Behavior, actor.CreatedAt, actor.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"actor_id": actor.ActorID}).Error("Failed to create actor")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create actor")
	}

	return actor, nil
}

// Get retrieves an actor by ID
func (r *Repository) Get(ctx context.Context, tenantID string, actorID string) (*models.Actor, error) {
	ctx, span := tracing.StartSpan(ctx, "actor.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("actors")
	sb.Where(
		sb.Equal("actor_id", actorID),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var actor models.Actor
	if err := r.db.GetContext(ctx, &actor, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("actor %s not found", actorID))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get actor")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get actor")
	}

	return &actor, nil
}

// Find retrieves an actor by ID, returning nil when it does not exist
func (r *Repository) Find(ctx context.Context, tenantID string, actorID string) (*models.Actor, error) {
	ctx, span := tracing.StartSpan(ctx, "actor.Repository.Find")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("actors")
	sb.Where(
		sb.Equal("actor_id", actorID),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var actor models.Actor
	if err := r.db.GetContext(ctx, &actor, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find actor")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find actor")
	}

	return &actor, nil
}

// GetByIDs retrieves multiple actors by ID
func (r *Repository) GetByIDs(ctx context.Context, tenantID string, actorIDs []string) ([]models.Actor, error) {
	ctx, span := tracing.StartSpan(ctx, "actor.Repository.GetByIDs")
	defer span.End()

	if len(actorIDs) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("actors")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.In("actor_id", idsToAny(actorIDs)...),
	)

	query, args := sb.Build()
	var actors []models.Actor
	if err := r.db.SelectContext(ctx, &actors, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get actors by ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get actors")
	}

	return actors, nil
}

// List retrieves actors for a tenant, optionally filtered by status
func (r *Repository) List(ctx context.Context, tenantID string, status string, page, pageSize int) ([]models.Actor, int, error) {
	ctx, span := tracing.StartSpan(ctx, "actor.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("actors")
	where := []string{sb.Equal("tenant_id", tenantID)}
	if status != "" {
		where = append(where, sb.Equal("status", status))
	}
	sb.Where(where...)
	sb.OrderBy("first_seen ASC", "actor_id ASC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()
	var actors []models.Actor
	if err := r.db.SelectContext(ctx, &actors, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list actors")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list actors")
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From("actors")
	cwhere := []string{cb.Equal("tenant_id", tenantID)}
	if status != "" {
		cwhere = append(cwhere, cb.Equal("status", status))
	}
	cb.Where(cwhere...)

	countQuery, countArgs := cb.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count actors")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count actors")
	}

	return actors, total, nil
}

// RecordLink folds one linked signal into the actor's aggregates: counts,
// seen window, source set, behavior mean, and profile completeness.
func (r *Repository) RecordLink(ctx context.Context, actor *models.Actor) error {
	ctx, span := tracing.StartSpan(ctx, "actor.Repository.RecordLink")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("actors")
	sb.Set(
		sb.Assign("signal_count", actor.SignalCount),
		sb.Assign("first_seen", actor.FirstSeen),
		sb.Assign("last_seen", actor.LastSeen),
		sb.Assign("signal_sources", actor.SignalSources),
		sb.Assign("profile_completeness", actor.ProfileCompleteness),
		sb.Assign("confidence_in_identity", actor.ConfidenceInIdentity),
		sb.Assign("behavior", actor.Behavior),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("actor_id", actor.ActorID),
		sb.Equal("tenant_id", actor.TenantID),
		sb.Equal("status", models.ActorStatusActive),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"actor_id": actor.ActorID}).Error("Failed to update actor aggregates")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update actor")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.ErrActorNotFound
	}

	return nil
}

// MarkMerged transitions an actor to its terminal merged state, pointing it
// at its surviving primary. Fails if the actor is not currently active.
func (r *Repository) MarkMerged(ctx context.Context, tenantID string, actorID string, primaryActorID string) error {
	ctx, span := tracing.StartSpan(ctx, "actor.Repository.MarkMerged")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("actors")
	sb.Set(
		sb.Assign("status", models.ActorStatusMerged),
		sb.Assign("merged_into", primaryActorID),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("actor_id", actorID),
		sb.Equal("tenant_id", tenantID),
		sb.Equal("status", models.ActorStatusActive),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"actor_id": actorID}).Error("Failed to mark actor merged")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark actor merged")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.ErrMergeInconsistency
	}

	return nil
}

// ApplyMergeTotals writes the combined aggregates onto the surviving actor
func (r *Repository) ApplyMergeTotals(ctx context.Context, actor *models.Actor) error {
	ctx, span := tracing.StartSpan(ctx, "actor.Repository.ApplyMergeTotals")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("actors")
	sb.Set(
		sb.Assign("signal_count", actor.SignalCount),
		sb.Assign("signal_sources", actor.SignalSources),
		sb.Assign("first_seen", actor.FirstSeen),
		sb.Assign("last_seen", actor.LastSeen),
		sb.Assign("profile_completeness", actor.ProfileCompleteness),
		sb.Assign("confidence_in_identity", actor.ConfidenceInIdentity),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("actor_id", actor.ActorID),
		sb.Equal("tenant_id", actor.TenantID),
		sb.Equal("status", models.ActorStatusActive),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"actor_id": actor.ActorID}).Error("Failed to apply merge totals")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to apply merge totals")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return models.ErrMergeInconsistency
	}

	return nil
}

// ListTenants returns every tenant with at least one actor, for the
// duplicate scan schedule
func (r *Repository) ListTenants(ctx context.Context) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "actor.Repository.ListTenants")
	defer span.End()

	var tenants []string
	if err := r.db.SelectContext(ctx, &tenants, "SELECT DISTINCT tenant_id FROM actors ORDER BY tenant_id"); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list tenants")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list tenants")
	}

	return tenants, nil
}

func idsToAny(ids []string) []any {
	result := make([]any, len(ids))
	for i, id := range ids {
		result[i] = id
	}
	return result
}
