package duplicate

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/aster/pkg/appcontext"
	"github.com/Ramsey-B/aster/pkg/dupscan"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// Register registers duplicate detection routes
func Register(g *echo.Group) {
	g.GET("", Preview)
	g.POST("/scan", Scan)
}

// Preview reports suspected duplicate actor pairs without merging
func Preview(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "duplicate_handler.Preview")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, scanner, err := ectoinject.GetContext[*dupscan.Scanner](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get scanner")
	}

	groups, err := scanner.Preview(ctx, tenantID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, groups)
}

// Scan runs a duplicate scan for the tenant, merging confident pairs
func Scan(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "duplicate_handler.Scan")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	ctx, scanner, err := ectoinject.GetContext[*dupscan.Scanner](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get scanner")
	}

	report, err := scanner.Scan(ctx, tenantID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, report)
}
