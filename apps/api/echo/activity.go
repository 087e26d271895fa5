package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/academia-dev/academia/core/activity"
)

type activityApi struct {
	svc *activity.Service
}

func registerActivityAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := activityApi{svc: deps.ActSvc}

	ag := g.Group("/activity", jwt, adminMiddleware())
	ag.GET("", api.query)
}

func (api *activityApi) query(ctx echo.Context) error {
	filter := new(activity.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []activity.Entry{})
	}

	entries, err := api.svc.Query(requestCtx(ctx), filter)
	if err != nil {
		return errors.Wrap(err, "querying activity log")
	}
	if entries == nil {
		entries = []activity.Entry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}
