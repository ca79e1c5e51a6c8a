package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taskflow/taskflow/internal/models"
)

// AddDependencyRequest is the body of POST /api/v1/tasks/:id/dependencies
type AddDependencyRequest struct {
	DependsOnTaskID int64  `json:"depends_on_task_id" binding:"required"`
	Type            string `json:"dependency_type"`
	LagDays         int    `json:"lag_days"`
}

// AddDependency handles POST /api/v1/tasks/:id/dependencies
func (h *Handlers) AddDependency(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req AddDependencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	dep, err := h.engine.AddDependency(c.Request.Context(), id, req.DependsOnTaskID,
		models.DependencyType(req.Type), req.LagDays)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: dep})
}

// ListDependencies handles GET /api/v1/tasks/:id/dependencies
func (h *Handlers) ListDependencies(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	deps, err := h.engine.ListDependencies(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: deps})
}

// RemoveDependency handles DELETE /api/v1/dependencies/:id
func (h *Handlers) RemoveDependency(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.engine.RemoveDependency(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// ListNotifications handles GET /api/v1/users/:id/notifications
func (h *Handlers) ListNotifications(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}

	unreadOnly := c.Query("unread") == "true"
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 200 {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid limit"})
			return
		}
		limit = n
	}

	list, err := h.notifications.ListByUser(c.Request.Context(), userID, unreadOnly, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: list})
}

// MarkNotificationRead handles POST /api/v1/notifications/:id/read
func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.notifications.MarkRead(c.Request.Context(), id, time.Now()); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// MarkAllNotificationsRead handles POST /api/v1/users/:id/notifications/read-all
func (h *Handlers) MarkAllNotificationsRead(c *gin.Context) {
	userID, ok := pathID(c)
	if !ok {
		return
	}

	count, err := h.notifications.MarkAllRead(c.Request.Context(), userID, time.Now())
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: gin.H{"marked": count}})
}
