// Package server exposes the signing workflow over HTTP: four JSON endpoints
// mirroring the prepare, pre-sign, finalize and verify calls. Octet fields
// travel as base64.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/evidensys/padessign"
)

// Server hosts the workflow endpoints.
type Server struct {
	workflow *padessign.Workflow
	log      *zap.Logger
	echo     *echo.Echo
}

// New assembles the echo instance with the request logging and recovery
// middlewares.
func New(workflow *padessign.Workflow, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(Logger(log))
	e.Use(Recover(log))

	s := &Server{workflow: workflow, log: log, echo: e}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.POST("/pdf/prepare", s.Prepare)
	s.echo.POST("/pdf/presign", s.PreSign)
	s.echo.POST("/pdf/finalize", s.Finalize)
	s.echo.POST("/pdf/verify", s.Verify)
	s.echo.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}

// Handler returns the http.Handler, used directly by tests.
func (s *Server) Handler() http.Handler { return s.echo }

// Start serves until the context is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	errc := make(chan error, 1)
	go func() {
		errc <- s.echo.Start(addr)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}
