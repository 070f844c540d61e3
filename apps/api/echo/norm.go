package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/normbook/normbook/core"
	"github.com/normbook/normbook/core/grading"
	"github.com/normbook/normbook/core/norm"
)

type normAPI struct {
	svc norm.Service
}

func registerNormAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc norm.Service, conf *core.Config) {
	api := normAPI{svc: svc}

	// every endpoint is authed
	ag := g.Group("", jwt, actorMiddleware(conf))

	ag.POST("/grades/preview", api.preview)

	ag.POST("/norms", api.create)
	ag.GET("/norms", api.query)
	ag.GET("/norms/:id", api.retrieve)
	ag.PUT("/norms/:id", api.update)

	ag.POST("/group-norms/:id/regrade", api.regrade, adminMiddleware)
	ag.GET("/group-norms/:id/audit", api.auditGroupNorm)
	ag.GET("/templates/:id/audit", api.auditTemplate)
}

type (
	RegradeResponse struct {
		GroupNormID string `json:"group_norm_id"`
		Changed     int    `json:"changed"`
	}

	AuditResponse struct {
		ID     string          `json:"id"`
		Valid  bool            `json:"valid"`
		Issues []grading.Issue `json:"issues"`
	}
)

// Handlers

func (api *normAPI) preview(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data norm.GradeRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to GradeRequest")
	}

	ev, err := api.svc.Preview(ctx.Request().Context(), data, actor)
	if err != nil {
		return errors.Wrap(err, "previewing grade")
	}
	return ctx.JSON(http.StatusOK, ev)
}

func (api *normAPI) create(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data norm.NewNorm
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewNorm")
	}

	n, err := api.svc.Record(ctx.Request().Context(), data, actor)
	if err != nil {
		return errors.Wrap(err, "recording norm")
	}
	return ctx.JSON(http.StatusCreated, n)
}

func (api *normAPI) query(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	filter := new(norm.QueryFilter)
	if err = ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []norm.Norm{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	norms, err := api.svc.Query(ctx.Request().Context(), *filter, actor, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying norms")
	}
	if norms == nil {
		norms = []norm.Norm{}
	}
	return ctx.JSON(http.StatusOK, norms)
}

func (api *normAPI) retrieve(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	n, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"), actor)
	if err != nil {
		return errors.Wrap(err, "finding norm")
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api *normAPI) update(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	var data norm.UpdateNorm
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateNorm")
	}

	n, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data, actor)
	if err != nil {
		return errors.Wrap(err, "updating norm")
	}
	return ctx.JSON(http.StatusOK, n)
}

func (api *normAPI) regrade(ctx echo.Context) error {
	id := ctx.Param("id")
	changed, err := api.svc.Regrade(ctx.Request().Context(), id)
	if err != nil {
		return errors.Wrap(err, "regrading group norm")
	}
	return ctx.JSON(http.StatusOK, RegradeResponse{GroupNormID: id, Changed: changed})
}

func (api *normAPI) auditTemplate(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	id := ctx.Param("id")
	issues, err := api.svc.AuditTemplate(ctx.Request().Context(), id, actor)
	if err != nil {
		return errors.Wrap(err, "auditing template")
	}
	return ctx.JSON(http.StatusOK, AuditResponse{ID: id, Valid: len(issues) == 0, Issues: issues})
}

func (api *normAPI) auditGroupNorm(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return err
	}
	id := ctx.Param("id")
	issues, err := api.svc.AuditGroupNorm(ctx.Request().Context(), id, actor)
	if err != nil {
		return errors.Wrap(err, "auditing group norm")
	}
	return ctx.JSON(http.StatusOK, AuditResponse{ID: id, Valid: len(issues) == 0, Issues: issues})
}
