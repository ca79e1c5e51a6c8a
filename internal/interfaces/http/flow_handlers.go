package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taskflow/taskflow/internal/models"
	"github.com/taskflow/taskflow/internal/port"
)

// CreateFlowRequest is the body of POST /api/v1/flows
type CreateFlowRequest struct {
	Name          string `json:"name" binding:"required"`
	Description   string `json:"description"`
	CreatedBy     int64  `json:"created_by" binding:"required"`
	ResponsibleID *int64 `json:"responsible_id"`
}

// UpdateFlowRequest is the body of PUT /api/v1/flows/:id
type UpdateFlowRequest struct {
	Name             *string `json:"name"`
	Description      *string `json:"description"`
	Status           *string `json:"status"`
	ResponsibleID    *int64  `json:"responsible_id"`
	LastUpdatedBy    *int64  `json:"last_updated_by"`
	ClearResponsible bool    `json:"clear_responsible"`
}

// CreateFlow handles POST /api/v1/flows
func (h *Handlers) CreateFlow(c *gin.Context) {
	var req CreateFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	flow := &models.Flow{
		Name:          req.Name,
		Description:   req.Description,
		CreatedBy:     req.CreatedBy,
		ResponsibleID: req.ResponsibleID,
		Status:        models.FlowStatusActive,
	}

	if err := h.engine.CreateFlow(c.Request.Context(), flow); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: flow})
}

// ListFlows handles GET /api/v1/flows
func (h *Handlers) ListFlows(c *gin.Context) {
	flows, err := h.flows.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: flows})
}

// GetFlow handles GET /api/v1/flows/:id
func (h *Handlers) GetFlow(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	flow, err := h.flows.GetByID(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if flow == nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "flow not found"})
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: flow})
}

// UpdateFlow handles PUT /api/v1/flows/:id
func (h *Handlers) UpdateFlow(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req UpdateFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
		return
	}

	current, err := h.flows.GetByID(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if current == nil {
		c.JSON(http.StatusNotFound, Response{Success: false, Error: "flow not found"})
		return
	}

	incoming := current.Clone()
	if req.Name != nil {
		incoming.Name = *req.Name
	}
	if req.Description != nil {
		incoming.Description = *req.Description
	}
	if req.Status != nil {
		incoming.Status = models.FlowStatus(*req.Status)
	}
	if req.ResponsibleID != nil {
		incoming.ResponsibleID = req.ResponsibleID
	}
	if req.LastUpdatedBy != nil {
		incoming.LastUpdatedBy = req.LastUpdatedBy
	}
	if req.ClearResponsible {
		incoming.ResponsibleID = nil
	}

	updated, err := h.engine.UpdateFlow(c.Request.Context(), incoming)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: updated})
}

// DeleteFlow handles DELETE /api/v1/flows/:id
func (h *Handlers) DeleteFlow(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.engine.DeleteFlow(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// RestoreFlow handles POST /api/v1/flows/:id/restore
func (h *Handlers) RestoreFlow(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.engine.RestoreFlow(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true})
}

// ListFlowTasks handles GET /api/v1/flows/:id/tasks
func (h *Handlers) ListFlowTasks(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	tasks, err := h.tasks.List(c.Request.Context(), port.TaskFilter{FlowID: &id})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: tasks})
}
