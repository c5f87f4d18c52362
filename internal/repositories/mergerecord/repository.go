package mergerecord

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

const columns = "id, tenant_id, primary_actor_id, merged_actor_id, reason, confidence, evidence, created_at"

// Repository handles the append-only merge audit log
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new merge record repository
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

// Create appends one merge record. Rows are never updated or deleted.
func (r *Repository) Create(ctx context.Context, record *models.MergeRecord) (*models.MergeRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "mergerecord.Repository.Create")
	defer span.End()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	record.CreatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("merge_records")
	sb.Cols("id", "tenant_id", "primary_actor_id", "merged_actor_id", "reason", "confidence", "evidence", "created_at")
	sb.Values(record.ID, record.TenantID, record.PrimaryActorID, record.MergedActorID, record.Reason, record.Confidence, record.Evidence, record.CreatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"primary_actor_id": record.PrimaryActorID, "merged_actor_id": record.MergedActorID}).Error("Failed to create merge record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create merge record")
	}

	return record, nil
}

// GetByPair retrieves the merge record for a primary/merged pair, or nil
func (r *Repository) GetByPair(ctx context.Context, tenantID string, primaryActorID, mergedActorID string) (*models.MergeRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "mergerecord.Repository.GetByPair")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("merge_records")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("primary_actor_id", primaryActorID),
		sb.Equal("merged_actor_id", mergedActorID),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var record models.MergeRecord
	if err := r.db.GetContext(ctx, &record, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get merge record by pair")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get merge record")
	}

	return &record, nil
}

// List retrieves merge records for a tenant, newest first
func (r *Repository) List(ctx context.Context, tenantID string, page, pageSize int) ([]models.MergeRecord, int, error) {
	ctx, span := tracing.StartSpan(ctx, "mergerecord.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 500 {
		pageSize = 100
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("merge_records")
	sb.Where(sb.Equal("tenant_id", tenantID))
	sb.OrderBy("created_at DESC")
	sb.Limit(pageSize)
	sb.Offset((page - 1) * pageSize)

	query, args := sb.Build()
	var records []models.MergeRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list merge records")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list merge records")
	}

	cb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	cb.Select("COUNT(*)")
	cb.From("merge_records")
	cb.Where(cb.Equal("tenant_id", tenantID))

	countQuery, countArgs := cb.Build()
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count merge records")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count merge records")
	}

	return records, total, nil
}
