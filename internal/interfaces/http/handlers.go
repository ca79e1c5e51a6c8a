package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/engine"
	"github.com/taskflow/taskflow/internal/port"
	"github.com/taskflow/taskflow/internal/sla"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine        *engine.Engine
	tasks         port.TaskRepository
	flows         port.FlowRepository
	notifications port.NotificationRepository
	sweeper       *sla.Sweeper
	logger        *zap.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(
	eng *engine.Engine,
	tasks port.TaskRepository,
	flows port.FlowRepository,
	notifications port.NotificationRepository,
	sweeper *sla.Sweeper,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		engine:        eng,
		tasks:         tasks,
		flows:         flows,
		notifications: notifications,
		sweeper:       sweeper,
		logger:        logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Reasons any    `json:"reasons,omitempty"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// RunSweep handles POST /api/v1/sla/sweep: one manual pass over the
// deadline-carrying tasks
func (h *Handlers) RunSweep(c *gin.Context) {
	stats, ran := h.sweeper.Sweep(c.Request.Context())
	if !ran {
		c.JSON(http.StatusConflict, Response{
			Success: false,
			Error:   "a sweep is already running",
		})
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: stats})
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid id",
		})
		return 0, false
	}
	return id, true
}

// respondError maps engine errors onto HTTP status codes
func (h *Handlers) respondError(c *gin.Context, err error) {
	if blocked, ok := engine.IsBlocked(err); ok {
		c.JSON(http.StatusConflict, Response{
			Success: false,
			Error:   "task is blocked by incomplete precedents",
			Reasons: blocked.Reasons,
		})
		return
	}

	switch {
	case errors.Is(err, engine.ErrTaskNotFound), errors.Is(err, engine.ErrFlowNotFound):
		c.JSON(http.StatusNotFound, Response{Success: false, Error: err.Error()})
	case errors.Is(err, engine.ErrInvalidStatus),
		errors.Is(err, engine.ErrSelfDependency),
		errors.Is(err, engine.ErrCrossFlowDependency),
		errors.Is(err, engine.ErrInvalidDependencyType):
		c.JSON(http.StatusBadRequest, Response{Success: false, Error: err.Error()})
	case errors.Is(err, engine.ErrDependencyExists), errors.Is(err, engine.ErrDependencyCycle):
		c.JSON(http.StatusConflict, Response{Success: false, Error: err.Error()})
	default:
		h.logger.Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, Response{Success: false, Error: "internal error"})
	}
}
