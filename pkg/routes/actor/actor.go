package actor

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	actorrepo "github.com/Ramsey-B/aster/internal/repositories/actor"
	identifierrepo "github.com/Ramsey-B/aster/internal/repositories/identifier"
	signallinkrepo "github.com/Ramsey-B/aster/internal/repositories/signallink"
	"github.com/Ramsey-B/aster/pkg/appcontext"
	"github.com/Ramsey-B/aster/pkg/graph"
	"github.com/Ramsey-B/aster/pkg/models"
	"github.com/Ramsey-B/aster/pkg/tracing"
)

// Register registers actor routes
func Register(g *echo.Group) {
	g.GET("", List)
	g.GET("/:id", Get)
	g.GET("/:id/identifiers", GetIdentifiers)
	g.GET("/:id/signals", GetSignals)
	g.GET("/:id/graph", GetGraph)
}

// List returns actors for the tenant, optionally filtered by status
func List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "actor_handler.List")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	status := c.QueryParam("status")

	ctx, repo, err := ectoinject.GetContext[*actorrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	items, totalCount, err := repo.List(ctx, tenantID, status, page, pageSize)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.ActorListResponse{
		Items:      items,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	})
}

// Get returns one actor with its identifiers and signal links
func Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "actor_handler.Get")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*actorrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	a, err := repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	ctx, idRepo, err := ectoinject.GetContext[*identifierrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	identifiers, err := idRepo.ListByActor(ctx, tenantID, id, false)
	if err != nil {
		return err
	}

	ctx, linkRepo, err := ectoinject.GetContext[*signallinkrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}
	links, err := linkRepo.ListByActor(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, models.ActorDetailResponse{
		Actor:       *a,
		Identifiers: identifiers,
		Links:       links,
	})
}

// GetIdentifiers returns the actor's identifiers
func GetIdentifiers(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "actor_handler.GetIdentifiers")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	id := c.Param("id")
	activeOnly := c.QueryParam("active") == "true"

	ctx, idRepo, err := ectoinject.GetContext[*identifierrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	identifiers, err := idRepo.ListByActor(ctx, tenantID, id, activeOnly)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, identifiers)
}

// GetSignals returns the actor's signal links
func GetSignals(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "actor_handler.GetSignals")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	id := c.Param("id")

	ctx, linkRepo, err := ectoinject.GetContext[*signallinkrepo.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get repository")
	}

	links, err := linkRepo.ListByActor(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, links)
}

// GetGraph returns the actor's graph neighborhood
func GetGraph(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "actor_handler.GetGraph")
	defer span.End()

	tenantID := appcontext.GetTenantID(ctx)
	if tenantID == "" {
		return httperror.NewHTTPError(http.StatusUnauthorized, "tenant_id is required")
	}
	id := c.Param("id")
	depth, _ := strconv.Atoi(c.QueryParam("depth"))

	ctx, projection, err := ectoinject.GetContext[*graph.Projection](ctx)
	if err != nil || projection == nil {
		return httperror.NewHTTPError(http.StatusServiceUnavailable, "graph projection not available")
	}

	hood, err := projection.GetNeighborhood(ctx, tenantID, id, depth)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to query actor neighborhood")
	}

	return c.JSON(http.StatusOK, hood)
}
