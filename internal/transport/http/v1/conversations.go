package v1

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mcpeeps/coordinator/internal/domain"
	"github.com/mcpeeps/coordinator/internal/service"
)

// Trigger starts a conversation in the background.
// POST /trigger
func (h *Handler) Trigger(c echo.Context) error {
	var req domain.TriggerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	resp, err := h.service.Trigger(c.Request().Context(), req)
	switch {
	case errors.Is(err, service.ErrEmptyMessage):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrConversationActive):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error(), "context_id": req.ContextID})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, resp)
}

// Cancel requests cancellation of a conversation.
// POST /cancel
func (h *Handler) Cancel(c echo.Context) error {
	var req domain.CancelRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"status": "error", "message": "invalid request body"})
	}

	resp, err := h.service.RequestCancel(c.Request().Context(), req)
	switch {
	case errors.Is(err, service.ErrContextRequired):
		return c.JSON(http.StatusBadRequest, map[string]string{"status": "error", "message": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"status": "not_found", "context_id": req.ContextID})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, map[string]string{"status": "error", "message": err.Error()})
	}
	return c.JSON(http.StatusOK, resp)
}

// ConversationStatus returns the in-memory state of a conversation.
// GET /conversation-status?context_id=
func (h *Handler) ConversationStatus(c echo.Context) error {
	contextID := c.QueryParam("context_id")
	st, err := h.service.GetStatus(contextID)
	switch {
	case errors.Is(err, service.ErrContextRequired):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"status": "not_found", "context_id": contextID})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, st)
}

// TaskStatus returns a task record.
// GET /task-status?task_id=
func (h *Handler) TaskStatus(c echo.Context) error {
	taskID := c.QueryParam("task_id")
	if taskID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "task_id is required"})
	}
	task, err := h.service.GetTask(c.Request().Context(), taskID)
	switch {
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, map[string]string{"status": "not_found", "task_id": taskID})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, task)
}

// Watch streams live events of a conversation over a websocket.
// GET /ws?context_id=
func (h *Handler) Watch(c echo.Context) error {
	contextID := c.QueryParam("context_id")
	if contextID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "context_id is required"})
	}

	var initial [][]byte
	if st, err := h.service.GetStatus(contextID); err == nil {
		data, err := json.Marshal(domain.Event{
			Type:      domain.EventTypeStatus,
			ContextID: contextID,
			Ts:        time.Now().UnixMilli(),
			Status:    st.Status,
			Round:     st.Round,
		})
		if err == nil {
			initial = append(initial, data)
		}
	}
	return h.hub.Serve(c.Response(), c.Request(), contextID, initial...)
}
