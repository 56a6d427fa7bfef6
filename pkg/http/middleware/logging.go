package middleware

import (
	"time"

	applogger "AirView/pkg/logger"

	"github.com/labstack/echo/v4"
)

// RequestLogging logs one line per request: 5xx at error, 4xx at warn, the
// rest at debug.
func RequestLogging(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			fields := []applogger.Field{
				applogger.String("method", req.Method),
				applogger.String("route", c.Path()),
				applogger.String("uri", req.RequestURI),
				applogger.String("remote_ip", c.RealIP()),
				applogger.Int("status", status),
				applogger.Int64("bytes", c.Response().Size),
				applogger.Duration("duration_ms", time.Since(start)),
			}
			if err != nil {
				fields = append(fields, applogger.Error(err))
			}

			switch {
			case status >= 500:
				l.Error("http request failed", fields...)
			case status >= 400:
				l.Warn("http request rejected", fields...)
			default:
				l.Debug("http request", fields...)
			}
			return nil
		}
	}
}
