package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/lessonplanner/internal/agent/core"
	"github.com/mohammad-safakhou/lessonplanner/internal/wizard"
	"github.com/mohammad-safakhou/lessonplanner/session/session_models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const headerUserID = "X-User-ID"

type SessionsHandler struct {
	Store       session_models.Store
	Wizard      *wizard.Service
	StepTimeout time.Duration
}

type createSessionRequest struct {
	UserID string `json:"userId"`
}

type stepRequest struct {
	StepType string `json:"stepType" validate:"required"`
	Task     string `json:"task" validate:"required"`
}

type responseRequest struct {
	Response string `json:"response" validate:"required"`
}

type stepResponse struct {
	Session session_models.Session `json:"session"`
	Result  core.WorkflowResult    `json:"result"`
}

func (h *SessionsHandler) Register(g *echo.Group) {
	g.POST("", h.create)
	g.GET("/current", h.current)
	g.GET("/:id", h.get)
	g.POST("/:id/steps", h.step)
	g.PUT("/:id/responses/:step", h.saveResponse)
}

func (h *SessionsHandler) create(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = strings.TrimSpace(c.Request().Header.Get(headerUserID))
	}
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "userId or X-User-ID header required")
	}
	ctx := c.Request().Context()
	id, err := h.Store.Create(ctx, session_models.Session{UserID: userID, Step: 1})
	if err != nil {
		return err
	}
	sess, err := h.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, sess)
}

func (h *SessionsHandler) get(c echo.Context) error {
	sess, err := h.Store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *SessionsHandler) current(c echo.Context) error {
	userID := strings.TrimSpace(c.Request().Header.Get(headerUserID))
	if userID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "X-User-ID header required")
	}
	sess, err := h.Store.FindByUser(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *SessionsHandler) step(c echo.Context) error {
	var req stepRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	id := c.Param("id")
	ctx, span := serverTracer.Start(c.Request().Context(), "http.session_step",
		trace.WithAttributes(attribute.String("wizard.step_type", req.StepType)))
	defer span.End()
	ctx, cancel := withTimeout(ctx, h.StepTimeout)
	defer cancel()

	sess, res, err := h.Wizard.Advance(ctx, id, req.StepType, req.Task)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return c.JSON(http.StatusOK, stepResponse{Session: sess, Result: res})
}

func (h *SessionsHandler) saveResponse(c echo.Context) error {
	var req responseRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	sess, err := h.Wizard.SaveResponse(c.Request().Context(), c.Param("id"), c.Param("step"), req.Response)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sess)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
