package echoapi

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/institutohope/platform/services/metrics"
)

// mentorMiddleware restricts a route to the signed-in mentor.
func mentorMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsMentor {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// metricsMiddleware records request latency per route.
func metricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)
			path := ctx.Path()
			if path == "" {
				path = "unmatched"
			}
			metrics.HTTPRequests.WithLabelValues(path, ctx.Request().Method).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

func loginOutcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
