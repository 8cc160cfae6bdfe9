package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/lessonplanner/internal/agent/core"
	"github.com/mohammad-safakhou/lessonplanner/internal/wizard"
)

// WorkflowHandler exposes a raw orchestrator run without a session.
type WorkflowHandler struct {
	Runner  wizard.Runner
	Timeout time.Duration
}

func (h *WorkflowHandler) Register(g *echo.Group) {
	g.POST("/run", h.run)
}

func (h *WorkflowHandler) run(c echo.Context) error {
	var in core.WorkflowInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&in); err != nil {
		return err
	}
	ctx, cancel := withTimeout(c.Request().Context(), h.Timeout)
	defer cancel()
	return c.JSON(http.StatusOK, h.Runner.Run(ctx, in))
}
