package echoapi

import (
	"time"

	"github.com/labstack/echo/v4"

	metricsvc "github.com/normbook/normbook/services/metrics"
)

func adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		actor, err := getContextActor(ctx)
		if err != nil {
			return err
		}
		if !actor.IsAdmin() {
			return errHttpForbidden
		}
		return next(ctx)
	}
}

// metricsMiddleware records every request against its route pattern.
func metricsMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		start := time.Now()
		if err := next(ctx); err != nil {
			ctx.Error(err) // sets the final status
		}
		metricsvc.ObserveRequest(ctx.Request().Method, ctx.Path(), ctx.Response().Status, time.Since(start))
		return nil
	}
}
