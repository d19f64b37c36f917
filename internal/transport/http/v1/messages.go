package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// GetMessages retrieves the transcript of a conversation.
// GET /messages?context_id=
func (h *Handler) GetMessages(c echo.Context) error {
	contextID := c.QueryParam("context_id")
	if contextID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "context_id is required"})
	}

	messages, err := h.service.GetMessages(c.Request().Context(), contextID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"context_id": contextID,
		"messages":   messages,
	})
}
