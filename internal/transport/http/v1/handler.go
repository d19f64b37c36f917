// Package v1 provides HTTP handlers for the coordinator.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mcpeeps/coordinator/internal/hub"
	"github.com/mcpeeps/coordinator/internal/metrics"
	"github.com/mcpeeps/coordinator/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	hub     *hub.Hub
	metrics *metrics.Metrics
}

// NewHandler creates a new handler.
func NewHandler(svc *service.Service, h *hub.Hub, m *metrics.Metrics) *Handler {
	return &Handler{
		service: svc,
		hub:     h,
		metrics: m,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Conversation API
	e.POST("/trigger", h.Trigger)
	e.POST("/cancel", h.Cancel)
	e.GET("/conversation-status", h.ConversationStatus)
	e.GET("/task-status", h.TaskStatus)
	e.GET("/messages", h.GetMessages)
	e.GET("/ws", h.Watch)

	// Directory
	e.GET("/agents", h.ListAgents)

	e.GET("/health", h.Health)
	if h.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.metrics.Handler()))
	}
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}
