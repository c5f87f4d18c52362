package signal

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/aster/pkg/database"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

const columns = "signal_id, tenant_id, type, raw_identifiers, text, occurred_at, source, behavior, created_at"

// Repository handles signal persistence. Signals are immutable; re-ingesting
// a known signal_id is a no-op.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new signal repository
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

// Upsert stores a signal if it has not been seen before
func (r *Repository) Upsert(ctx context.Context, sig *models.Signal) error {
	ctx, span := tracing.StartSpan(ctx, "signal.Repository.Upsert")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("signals")
	sb.Cols("signal_id", "tenant_id", "type", "raw_identifiers", "text", "occurred_at", "source", "behavior", "created_at")
	sb.Values(sig.SignalID, sig.TenantID, sig.Type, sig.RawIdentifiers, sig.Text, sig.OccurredAt, sig.Source, sig.Behavior, time.Now().UTC())

	query, args := sb.Build()
	query += " ON CONFLICT (tenant_id, signal_id) DO NOTHING"

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"signal_id": sig.SignalID}).Error("Failed to upsert signal")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to store signal")
	}

	return nil
}

// Get retrieves a signal by ID, or nil when unknown
func (r *Repository) Get(ctx context.Context, tenantID string, signalID string) (*models.Signal, error) {
	ctx, span := tracing.StartSpan(ctx, "signal.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("signals")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("signal_id", signalID),
	)

	query, args := sb.Build()
	var sig models.Signal
	if err := r.db.GetContext(ctx, &sig, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get signal")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get signal")
	}

	return &sig, nil
}
