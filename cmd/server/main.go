package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/config"
	"github.com/taskflow/taskflow/internal/email"
	"github.com/taskflow/taskflow/internal/engine"
	httpserver "github.com/taskflow/taskflow/internal/interfaces/http"
	"github.com/taskflow/taskflow/internal/interfaces/websocket"
	"github.com/taskflow/taskflow/internal/notify"
	"github.com/taskflow/taskflow/internal/port"
	"github.com/taskflow/taskflow/internal/repository"
	"github.com/taskflow/taskflow/internal/sla"
	"github.com/taskflow/taskflow/internal/worker"
	"github.com/taskflow/taskflow/pkg/database"
	"github.com/taskflow/taskflow/pkg/utils"
)

func main() {
	gotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting TaskFlow",
		zap.Int("port", cfg.Server.Port),
		zap.Bool("sla_enabled", cfg.SLA.Enabled))

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	migrator := database.NewMigrator(db, logger)
	if err := migrator.RunMigrations(cfg.Database.MigrationsDir); err != nil {
		logger.Fatal("Failed to run database migrations", zap.Error(err))
	}

	// Repositories
	taskRepo := repository.NewTaskRepository(db, logger)
	flowRepo := repository.NewFlowRepository(db, logger)
	depRepo := repository.NewDependencyRepository(db, logger)
	notificationRepo := repository.NewNotificationRepository(db, logger)
	userRepo := repository.NewUserRepository(db, logger)

	// Realtime hub
	hub := websocket.NewHub(logger)
	defer hub.Close()

	// Notifications
	dispatcher := notify.NewDispatcher(notificationRepo, userRepo, flowRepo, taskRepo, hub, logger)

	// SLA policy
	var mailer port.Mailer
	if cfg.Email.Enabled {
		mailer = email.NewSender(cfg.Email, logger)
	}
	evaluator := sla.NewEvaluator(cfg.SLA.WarningHours, cfg.SLA.EscalationHours)
	alerts := sla.NewNotifier(taskRepo, flowRepo, userRepo, notificationRepo, dispatcher, mailer, evaluator,
		sla.NotifierOptions{
			DedupWindow: cfg.SLA.DedupWindow,
			AutoResolve: cfg.SLA.AutoResolve,
		}, logger)

	// Lifecycle engine
	eng := engine.New(db, taskRepo, flowRepo, depRepo, dispatcher, evaluator, alerts, logger)

	// Background workers
	sweeper := sla.NewSweeper(alerts, cfg.SLA.SweepSchedule, cfg.SLA.Enabled, logger)
	workers := worker.NewManager(logger)
	workers.Register(sweeper)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := workers.StartAll(ctx); err != nil {
		logger.Fatal("Failed to start workers", zap.Error(err))
	}

	server := httpserver.NewServer(cfg.Server, eng, taskRepo, flowRepo, notificationRepo, sweeper, hub, logger)
	go func() {
		if err := server.Start(ctx); err != nil {
			logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	cancel()
	workers.StopAll()
	if err := server.Stop(); err != nil {
		logger.Error("Failed to stop HTTP server", zap.Error(err))
	}
	logger.Info("Shutdown complete")
}
