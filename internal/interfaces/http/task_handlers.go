package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taskflow/taskflow/internal/models"
	"github.com/taskflow/taskflow/internal/port"
)

// CreateTaskRequest is the body of POST /api/v1/tasks
type CreateTaskRequest struct {
	FlowID               int64      `json:"flow_id" binding:"required"`
	ParentTaskID         *int64     `json:"parent_task_id"`
	Title                string     `json:"title" binding:"required"`
	Description          string     `json:"description"`
	Priority             string     `json:"priority"`
	Status               string     `json:"status"`
	IsMilestone          bool       `json:"is_milestone"`
	AssigneeID           *int64     `json:"assignee_id"`
	DependsOnTaskID      *int64     `json:"depends_on_task_id"`
	DependsOnMilestoneID *int64     `json:"depends_on_milestone_id"`
	Order                int        `json:"order"`
	EstimatedStartAt     *time.Time `json:"estimated_start_at"`
	EstimatedEndAt       *time.Time `json:"estimated_end_at"`
}

// UpdateTaskRequest is the body of PUT /api/v1/tasks/:id. Omitted fields
// keep their stored values; the Clear flags null the matching columns.
type UpdateTaskRequest struct {
	Title                *string    `json:"title"`
	Description          *string    `json:"description"`
	Priority             *string    `json:"priority"`
	Status               *string    `json:"status"`
	Progress             *int       `json:"progress"`
	Order                *int       `json:"order"`
	ParentTaskID         *int64     `json:"parent_task_id"`
	AssigneeID           *int64     `json:"assignee_id"`
	DependsOnTaskID      *int64     `json:"depends_on_task_id"`
	DependsOnMilestoneID *int64     `json:"depends_on_milestone_id"`
	EstimatedStartAt     *time.Time `json:"estimated_start_at"`
	EstimatedEndAt       *time.Time `json:"estimated_end_at"`
	LastUpdatedBy        *int64     `json:"last_updated_by"`

	ClearAssignee           bool `json:"clear_assignee"`
	ClearDependsOnTask      bool `json:"clear_depends_on_task"`
	ClearDependsOnMilestone bool `json:"clear_depends_on_milestone"`
	ClearEstimatedStartAt   bool `json:"clear_estimated_start_at"`
	ClearEstimatedEndAt     bool `json:"clear_estimated_end_at"`
}

// CreateTask handles POST /api/v1/tasks
func (h *Handlers) CreateTask(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	task := &models.Task{
		FlowID:               req.FlowID,
		ParentTaskID:         req.ParentTaskID,
		Title:                req.Title,
		Description:          req.Description,
		Priority:             req.Priority,
		Status:               models.TaskStatus(req.Status),
		IsMilestone:          req.IsMilestone,
		AssigneeID:           req.AssigneeID,
		DependsOnTaskID:      req.DependsOnTaskID,
		DependsOnMilestoneID: req.DependsOnMilestoneID,
		Order:                req.Order,
		EstimatedStartAt:     req.EstimatedStartAt,
		EstimatedEndAt:       req.EstimatedEndAt,
	}

	if err := h.engine.CreateTask(c.Request.Context(), task); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: task})
}

// GetTask handles GET /api/v1/tasks/:id
func (h *Handlers) GetTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	task, err := h.tasks.GetByID(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if task == nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "task not found"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: task})
}

// ListTasks handles GET /api/v1/tasks
func (h *Handlers) ListTasks(c *gin.Context) {
	var filter port.TaskFilter

	if v := c.Query("flow_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid flow_id"})
			return
		}
		filter.FlowID = &id
	}
	if v := c.Query("assignee_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid assignee_id"})
			return
		}
		filter.AssigneeID = &id
	}
	if v := c.Query("status"); v != "" {
		status := models.TaskStatus(v)
		if !status.IsValid() {
			c.JSON(http.StatusBadRequest, Response{Success: false, Error: "invalid status"})
			return
		}
		filter.Status = &status
	}
	filter.MilestonesOnly = c.Query("milestones") == "true"
	filter.RootOnly = c.Query("root") == "true"

	tasks, err := h.tasks.List(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: tasks})
}

// UpdateTask handles PUT /api/v1/tasks/:id
func (h *Handlers) UpdateTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	current, err := h.tasks.GetByID(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if current == nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "task not found"})
		return
	}

	incoming := current.Clone()
	applyTaskPatch(incoming, &req)

	updated, err := h.engine.UpdateTask(c.Request.Context(), incoming)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: updated})
}

// DeleteTask handles DELETE /api/v1/tasks/:id
func (h *Handlers) DeleteTask(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.engine.DeleteTask(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// CheckBlocked handles GET /api/v1/tasks/:id/blocked
func (h *Handlers) CheckBlocked(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	blocked, reasons, err := h.engine.CheckBlocked(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"is_blocked": blocked,
			"reasons":    reasons,
		},
	})
}

func applyTaskPatch(task *models.Task, req *UpdateTaskRequest) {
	if req.Title != nil {
		task.Title = *req.Title
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.Priority != nil {
		task.Priority = *req.Priority
	}
	if req.Status != nil {
		task.Status = models.TaskStatus(*req.Status)
	}
	if req.Progress != nil {
		task.Progress = *req.Progress
	}
	if req.Order != nil {
		task.Order = *req.Order
	}
	if req.ParentTaskID != nil {
		task.ParentTaskID = req.ParentTaskID
	}
	if req.AssigneeID != nil {
		task.AssigneeID = req.AssigneeID
	}
	if req.DependsOnTaskID != nil {
		task.DependsOnTaskID = req.DependsOnTaskID
	}
	if req.DependsOnMilestoneID != nil {
		task.DependsOnMilestoneID = req.DependsOnMilestoneID
	}
	if req.EstimatedStartAt != nil {
		task.EstimatedStartAt = req.EstimatedStartAt
	}
	if req.EstimatedEndAt != nil {
		task.EstimatedEndAt = req.EstimatedEndAt
	}
	if req.LastUpdatedBy != nil {
		task.LastUpdatedBy = req.LastUpdatedBy
	}

	if req.ClearAssignee {
		task.AssigneeID = nil
	}
	if req.ClearDependsOnTask {
		task.DependsOnTaskID = nil
	}
	if req.ClearDependsOnMilestone {
		task.DependsOnMilestoneID = nil
	}
	if req.ClearEstimatedStartAt {
		task.EstimatedStartAt = nil
	}
	if req.ClearEstimatedEndAt {
		task.EstimatedEndAt = nil
	}
}
