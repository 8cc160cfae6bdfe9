package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mohammad-safakhou/lessonplanner/internal/agent/telemetry"
	"github.com/mohammad-safakhou/lessonplanner/internal/logger"
	"github.com/mohammad-safakhou/lessonplanner/internal/prompts"
	"github.com/mohammad-safakhou/lessonplanner/internal/wizard"
	"github.com/mohammad-safakhou/lessonplanner/session/session_models"
	"go.opentelemetry.io/otel"
)

var serverTracer = otel.Tracer("lessonplanner/internal/server")

// Deps are the services the HTTP API exposes.
type Deps struct {
	Sessions     session_models.Store
	Wizard       *wizard.Service
	Workflow     wizard.Runner
	Metrics      *telemetry.Metrics
	Log          *logger.Logger
	StepTimeout  time.Duration
	AllowOrigins []string
}

type requestValidator struct {
	v *validator.Validate
}

func (rv *requestValidator) Validate(i interface{}) error {
	if err := rv.v.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

// New builds the echo instance with every route registered.
func New(d Deps) *echo.Echo {
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{v: validator.New()}
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = errorHandler(d.Log)

	origins := d.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, headerUserID},
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}

	api := e.Group("/api")
	sh := &SessionsHandler{Store: d.Sessions, Wizard: d.Wizard, StepTimeout: d.StepTimeout}
	sh.Register(api.Group("/sessions"))
	wh := &WorkflowHandler{Runner: d.Workflow, Timeout: d.StepTimeout}
	wh.Register(api.Group("/workflow"))
	return e
}

// Unified HTTP error handler with structured JSON and logging
func errorHandler(log *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		code, msg := statusFor(err)
		req := c.Request()
		if code >= http.StatusInternalServerError {
			log.Error("request failed", "status", code, "method", req.Method, "path", req.URL.Path, "remote", c.RealIP(), "error", err)
		} else {
			log.Debug("request rejected", "status", code, "method", req.Method, "path", req.URL.Path, "error", err)
		}
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
}

func statusFor(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg := http.StatusText(he.Code)
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
		return he.Code, msg
	}
	switch {
	case errors.Is(err, session_models.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, session_models.ErrConflict):
		return http.StatusConflict, err.Error()
	case errors.Is(err, prompts.ErrUnknownStep), errors.Is(err, wizard.ErrEmptyTask):
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusInternalServerError, err.Error()
}

// Run serves e on addr until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, e *echo.Echo, addr string, log *logger.Logger) error {
	if log == nil {
		log = logger.Nop()
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "address", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
