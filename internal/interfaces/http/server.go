// Package http is the HTTP adapter: it translates requests into engine
// and repository calls and owns nothing of the lifecycle semantics.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/config"
	"github.com/taskflow/taskflow/internal/engine"
	"github.com/taskflow/taskflow/internal/interfaces/websocket"
	"github.com/taskflow/taskflow/internal/port"
	"github.com/taskflow/taskflow/internal/sla"
)

// Server is the HTTP server adapter
type Server struct {
	config     config.ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	handlers   *Handlers
	hub        *websocket.Hub
	logger     *zap.Logger
}

// NewServer creates the HTTP server and wires its routes
func NewServer(
	cfg config.ServerConfig,
	eng *engine.Engine,
	tasks port.TaskRepository,
	flows port.FlowRepository,
	notifications port.NotificationRepository,
	sweeper *sla.Sweeper,
	hub *websocket.Hub,
	logger *zap.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config:   cfg,
		router:   gin.New(),
		handlers: NewHandlers(eng, tasks, flows, notifications, sweeper, logger),
		hub:      hub,
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(s.corsMiddleware())
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handlers.HealthCheck)
	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.Handle(c.Writer, c.Request)
	})

	api := s.router.Group("/api/v1")
	{
		api.POST("/flows", s.handlers.CreateFlow)
		api.GET("/flows", s.handlers.ListFlows)
		api.GET("/flows/:id", s.handlers.GetFlow)
		api.PUT("/flows/:id", s.handlers.UpdateFlow)
		api.DELETE("/flows/:id", s.handlers.DeleteFlow)
		api.POST("/flows/:id/restore", s.handlers.RestoreFlow)
		api.GET("/flows/:id/tasks", s.handlers.ListFlowTasks)

		api.POST("/tasks", s.handlers.CreateTask)
		api.GET("/tasks", s.handlers.ListTasks)
		api.GET("/tasks/:id", s.handlers.GetTask)
		api.PUT("/tasks/:id", s.handlers.UpdateTask)
		api.DELETE("/tasks/:id", s.handlers.DeleteTask)
		api.GET("/tasks/:id/blocked", s.handlers.CheckBlocked)

		api.POST("/tasks/:id/dependencies", s.handlers.AddDependency)
		api.GET("/tasks/:id/dependencies", s.handlers.ListDependencies)
		api.DELETE("/dependencies/:id", s.handlers.RemoveDependency)

		api.GET("/users/:id/notifications", s.handlers.ListNotifications)
		api.POST("/users/:id/notifications/read-all", s.handlers.MarkAllNotificationsRead)
		api.POST("/notifications/:id/read", s.handlers.MarkNotificationRead)

		api.POST("/sla/sweep", s.handlers.RunSweep)
	}
}

// Start runs the server until the context is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.config.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", zap.String("address", s.config.Addr()))

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", zap.Error(err))
		return err
	}
}

// Stop gracefully shuts the server down
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the gin engine for tests
func (s *Server) Router() http.Handler {
	return s.router
}
