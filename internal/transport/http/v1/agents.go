package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// ListAgents lists the agent directory.
// GET /agents?health=true
func (h *Handler) ListAgents(c echo.Context) error {
	probe, _ := strconv.ParseBool(c.QueryParam("health"))
	agents := h.service.ListAgents(c.Request().Context(), probe)
	return c.JSON(http.StatusOK, map[string]interface{}{
		"agents": agents,
	})
}
