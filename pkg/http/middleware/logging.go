package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"ExoScan/pkg/logger"
)

// RequestLogging logs one line per request at debug level, warn for 4xx
// and error for 5xx.
func RequestLogging(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			status := c.Response().Status
			fields := []logger.Field{
				logger.String("method", req.Method),
				logger.String("route", c.Path()),
				logger.String("remote", c.RealIP()),
				logger.Int("status", status),
				logger.Duration("latency_ms", time.Since(start)),
			}
			switch {
			case status >= 500:
				log.Error("http request failed", fields...)
			case status >= 400:
				log.Warn("http request rejected", fields...)
			default:
				log.Debug("http request", fields...)
			}
			return nil
		}
	}
}
