package signal

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/aster/pkg/appcontext"
	"github.com/Ramsey-B/aster/pkg/events"
	"github.com/Ramsey-B/aster/pkg/matching"
	"github.com/Ramsey-B/aster/pkg/metrics"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/processor"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

var validate = validator.New()

// Register registers signal resolution routes
func Register(g *echo.Group) {
	g.POST("/resolve", Resolve)
	g.POST("/batch", ResolveBatch)
}

// Resolve resolves a single signal to an actor
func Resolve(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "signal_handler.Resolve")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req models.ResolveSignalRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, engine, err := ectoinject.GetContext[*matching.Engine](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get matching engine")
	}

	sig := req.ToSignal(tenantID)
	result, err := engine.Resolve(ctx, sig)
	if err != nil {
		if err == models.ErrStoreUnavailable {
			return httperror.NewHTTPError(http.StatusServiceUnavailable, "actor store unavailable")
		}
		return err
	}

	if !result.Replayed {
		metrics.DecisionsTotal.WithLabelValues(string(result.Decision), string(result.Method)).Inc()
		if result.Conflicted {
			metrics.ExactConflictsTotal.Inc()
		}
	} else {
		metrics.ReplaysTotal.Inc()
	}

	if ctx, emitter, err := ectoinject.GetContext[*events.Emitter](ctx); err == nil && emitter != nil {
		_ = emitter.EmitDecision(ctx, tenantID, sig.SignalID, result)
	}

	return c.JSON(http.StatusOK, result)
}

// BatchRequest carries a batch of signals to resolve
type BatchRequest struct {
	Signals []models.ResolveSignalRequest `json:"signals" validate:"required,min=1,max=1000,dive"`
}

// ResolveBatch resolves a batch of signals with per-signal isolation
func ResolveBatch(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "signal_handler.ResolveBatch")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	var req BatchRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, proc, err := ectoinject.GetContext[*processor.Processor](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get processor")
	}

	signals := make([]*models.Signal, len(req.Signals))
	for i := range req.Signals {
		signals[i] = req.Signals[i].ToSignal(tenantID)
	}

	summary := proc.ProcessBatch(ctx, signals)
	return c.JSON(http.StatusOK, summary)
}
