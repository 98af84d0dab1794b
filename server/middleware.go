package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Logger logs one line per served request.
func Logger(log *zap.Logger) echo.MiddlewareFunc {
	log = log.WithOptions(zap.WithCaller(false))
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			herr := next(c)
			if herr != nil {
				c.Error(herr)
			}

			resp := c.Response()
			req := c.Request()

			fields := []zap.Field{
				zap.Int("status", resp.Status),
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Duration("latency", time.Since(start)),
				zap.Int64("bytes_out", resp.Size),
			}
			if herr != nil {
				fields = append(fields, zap.Error(herr))
			}

			if resp.Status >= 500 {
				log.Error("served", fields...)
			} else {
				log.Info("served", fields...)
			}
			return nil
		}
	}
}

// Recover converts handler panics into 500 responses.
func Recover(log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("handler panic", zap.Any("panic", r), zap.Stack("stack"))
					err = echo.NewHTTPError(http.StatusInternalServerError, fmt.Sprint(r))
				}
			}()
			return next(c)
		}
	}
}
