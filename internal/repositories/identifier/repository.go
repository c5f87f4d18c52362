package identifier

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

// ActiveValueConstraint is the partial unique index enforcing single active
// ownership of a (tenant, type, value) identifier
const ActiveValueConstraint = "uq_identifiers_active_value"

const columns = "id, tenant_id, actor_id, type, value, confidence, source_signal_id, is_verified, is_active, created_at, updated_at"

// Repository handles identifier persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new identifier repository
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

// Create inserts a new active identifier. A concurrent insert of the same
// (tenant, type, value) loses the race and receives ErrIdentifierConflict.
func (r *Repository) Create(ctx context.Context, identifier *models.Identifier) (*models.Identifier, error) {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.Create")
	defer span.End()

	if identifier.ID == "" {
		identifier.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	identifier.CreatedAt = now
	identifier.UpdatedAt = now
	identifier.IsActive = true

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("identifiers")
	sb.Cols("id", "tenant_id", "actor_id", "type", "value", "confidence", "source_signal_id", "is_verified", "is_active", "created_at", "updated_at")
	sb.Values(identifier.ID, identifier.TenantID, identifier.ActorID, identifier.Type, identifier.Value, identifier.Confidence, identifier.SourceSignalID, identifier.IsVerified, identifier.IsActive, identifier.CreatedAt, identifier.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err, ActiveValueConstraint) {
			return nil, models.ErrIdentifierConflict
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"identifier_id": identifier.ID}).Error("Failed to create identifier")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create identifier")
	}

	return identifier, nil
}

// FindActive retrieves the single active identifier for a (type, value)
// pair, or nil when nobody owns it
func (r *Repository) FindActive(ctx context.Context, tenantID string, idType models.IdentifierType, value string) (*models.Identifier, error) {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.FindActive")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("identifiers")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("type", idType),
		sb.Equal("value", value),
		sb.Equal("is_active", true),
	)

	query, args := sb.Build()
	var identifier models.Identifier
	if err := r.db.GetContext(ctx, &identifier, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find identifier")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find identifier")
	}

	return &identifier, nil
}

// ListByActor retrieves all identifiers owned by an actor
func (r *Repository) ListByActor(ctx context.Context, tenantID string, actorID string, activeOnly bool) ([]models.Identifier, error) {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.ListByActor")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("identifiers")
	where := []string{
		sb.Equal("tenant_id", tenantID),
		sb.Equal("actor_id", actorID),
	}
	if activeOnly {
		where = append(where, sb.Equal("is_active", true))
	}
	sb.Where(where...)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var identifiers []models.Identifier
	if err := r.db.SelectContext(ctx, &identifiers, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list identifiers by actor")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list identifiers")
	}

	return identifiers, nil
}

// ListActiveNames retrieves the active name identifiers for all active
// actors of a tenant, for weak-signal candidate scoring
func (r *Repository) ListActiveNames(ctx context.Context, tenantID string, limit int) ([]models.Identifier, error) {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.ListActiveNames")
	defer span.End()

	if limit < 1 {
		limit = 1000
	}

	query := `
		SELECT i.id, i.tenant_id, i.actor_id, i.type, i.value, i.confidence, i.source_signal_id, i.is_verified, i.is_active, i.created_at, i.updated_at
		FROM identifiers i
		JOIN actors a ON a.actor_id = i.actor_id AND a.tenant_id = i.tenant_id
		WHERE i.tenant_id = $1
		AND i.type = $2
		AND i.is_active = true
		AND a.status = $3
		LIMIT $4
	`

	var identifiers []models.Identifier
	if err := r.db.SelectContext(ctx, &identifiers, query, tenantID, models.IdentifierTypeName, models.ActorStatusActive, limit); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list active name identifiers")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list identifiers")
	}

	return identifiers, nil
}

// RepointToActor rewrites ownership of all identifiers from one actor to
// another, excluding the listed identifier ids
func (r *Repository) RepointToActor(ctx context.Context, tenantID string, fromActorID, toActorID string, excludeIDs []string) error {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.RepointToActor")
	defer span.End()

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("identifiers")
	sb.Set(
		sb.Assign("actor_id", toActorID),
		sb.Assign("updated_at", now),
	)
	where := []string{
		sb.Equal("tenant_id", tenantID),
		sb.Equal("actor_id", fromActorID),
	}
	if len(excludeIDs) > 0 {
		where = append(where, sb.NotIn("id", idsToAny(excludeIDs)...))
	}
	sb.Where(where...)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to repoint identifiers")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to repoint identifiers")
	}

	return nil
}

// Retire deactivates duplicate identifier copies discarded during a merge.
// They keep their rows for the audit trail but leave the active index.
func (r *Repository) Retire(ctx context.Context, tenantID string, ids []string) error {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.Retire")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("identifiers")
	sb.Set(
		sb.Assign("is_active", false),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.In("id", idsToAny(ids)...),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to retire identifiers")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to retire identifiers")
	}

	return nil
}

// IdentifierOverlap is one identifier value held by two different active actors
type IdentifierOverlap struct {
	Type        models.IdentifierType `db:"type"`
	Value       string                `db:"value"`
	ActorA      string                `db:"actor_a"`
	ActorB      string                `db:"actor_b"`
	ConfidenceA float64               `db:"confidence_a"`
	ConfidenceB float64               `db:"confidence_b"`
}

// ListOverlaps finds identifier values held by more than one active actor.
// Duplicate splits can only arise for types outside the active-unique index,
// but the self-join covers all types in case the index was introduced late.
func (r *Repository) ListOverlaps(ctx context.Context, tenantID string, limit int) ([]IdentifierOverlap, error) {
	ctx, span := tracing.StartSpan(ctx, "identifier.Repository.ListOverlaps")
	defer span.End()

	if limit < 1 || limit > 5000 {
		limit = 1000
	}

	query := `
		SELECT x.type, x.value, x.actor_id AS actor_a, y.actor_id AS actor_b, x.confidence AS confidence_a, y.confidence AS confidence_b
		FROM identifiers x
		JOIN identifiers y
			ON x.tenant_id = y.tenant_id
			AND x.type = y.type
			AND x.value = y.value
			AND x.actor_id < y.actor_id
		JOIN actors ax ON ax.actor_id = x.actor_id AND ax.tenant_id = x.tenant_id AND ax.status = $2
		JOIN actors ay ON ay.actor_id = y.actor_id AND ay.tenant_id = y.tenant_id AND ay.status = $2
		WHERE x.tenant_id = $1
		AND x.value <> ''
		ORDER BY x.type, x.value
		LIMIT $3
	`

	var overlaps []IdentifierOverlap
	if err := r.db.SelectContext(ctx, &overlaps, query, tenantID, models.ActorStatusActive, limit); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list identifier overlaps")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list identifier overlaps")
	}

	return overlaps, nil
}

func idsToAny(ids []string) []any {
	result := make([]any, len(ids))
	for i, id := range ids {
		result[i] = id
	}
	return result
}
