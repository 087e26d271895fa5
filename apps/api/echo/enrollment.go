package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/academia-dev/academia/core/enrollment"
	"github.com/academia-dev/academia/core/user"
)

type enrollmentApi struct {
	svc      enrollment.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerEnrollmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := enrollmentApi{
		svc:      deps.EnrollSvc,
		usrSvc:   deps.UserSvc,
		validate: deps.Validate,
	}

	eg := g.Group("/enrollment/applications")

	// applicants have no account yet; submission is un-authed
	eg.POST("", api.submit)

	// registrar endpoints
	sg := eg.Group("", jwt, staffMiddleware())
	sg.GET("", api.query)
	sg.GET("/:id", api.retrieve)
	sg.PUT("/:id/decision", api.decide)
}

// Handlers

func (api *enrollmentApi) submit(ctx echo.Context) error {
	var data enrollment.NewApplication
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewApplication")
	}
	data.Clean()
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	app, err := api.svc.Submit(requestCtx(ctx), data)
	if err != nil {
		return errors.Wrap(err, "submitting application")
	}
	return ctx.JSON(http.StatusCreated, app)
}

func (api *enrollmentApi) query(ctx echo.Context) error {
	filter := new(enrollment.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []enrollment.Application{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	apps, err := api.svc.Query(requestCtx(ctx), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying applications")
	}
	if apps == nil {
		apps = []enrollment.Application{}
	}
	return ctx.JSON(http.StatusOK, apps)
}

func (api *enrollmentApi) retrieve(ctx echo.Context) error {
	app, err := api.svc.GetByID(requestCtx(ctx), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding application by ID")
	}
	return ctx.JSON(http.StatusOK, app)
}

func (api *enrollmentApi) decide(ctx echo.Context) error {
	var data enrollment.Decision
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Decision")
	}
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	app, err := api.svc.Decide(requestCtx(ctx), ctx.Param("id"), data.Status, actor)
	if err != nil {
		return errors.Wrap(err, "deciding application")
	}
	return ctx.JSON(http.StatusOK, app)
}
