package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"autoflow"
	"autoflow/internal/api/handler/endpoints"
	"autoflow/internal/api/handler/websocket"
	"autoflow/internal/api/models"
	"autoflow/internal/api/service"
	"autoflow/internal/realtime"
	"autoflow/internal/workflow"
	"autoflow/internal/workflow/nodes"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/graceful"
	"github.com/gin-gonic/gin"
)

func main() {
	autoflow.InitConfig(".env")
	cfg := autoflow.GetConfig()
	gin.SetMode(gin.ReleaseMode)

	if cfg.Mode == "dev" {
		if err := autoflow.DB.AutoMigrate(
			&models.Connection{},
			&models.Workflow{},
			&models.WorkflowRun{},
		); err != nil {
			autoflow.Logger.Fatal().Err(err).Msg("Failed to migrate database")
		}
		autoflow.Logger.Info().Msg("Database migrated successfully")
		gin.SetMode(gin.DebugMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	router, err := graceful.Default(graceful.WithAddr(cfg.ApiPort))
	if err != nil {
		panic(err)
	}
	defer stop()
	defer router.Close()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	connectionService := service.NewConnectionService()
	engine := workflow.NewEngine(autoflow.Logger)
	nodes.Register(engine, nodes.DepsFromConfig(cfg, connectionService))

	nc, err := realtime.Connect(cfg.NatsURL, "autoflow-api", autoflow.Logger)
	if err != nil {
		// runs still work, the editor just gets no live progress
		autoflow.Logger.Warn().Err(err).Msg("NATS unavailable, run progress will not be streamed")
	} else {
		defer nc.Drain()
		engine.Observe(realtime.NewPublisher(nc, cfg.TenantID, autoflow.Logger))
	}

	workflowService := service.NewWorkflowService(engine)

	scheduler := service.NewSchedulerService(workflowService)
	scheduler.Start()
	defer scheduler.Stop()

	hub := websocket.NewHub(autoflow.Logger)
	processor := websocket.NewMessageProcessor(hub, workflowService)
	go hub.Run(ctx)
	autoflow.Logger.Info().Msg("WebSocket hub started")

	initAPI(router, workflowService, connectionService, hub, processor)

	autoflow.Logger.Debug().Str("version", autoflow.Version).Msgf("Starting autoflow API on port %s", cfg.ApiPort)
	if err = router.RunWithContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		autoflow.Logger.Fatal().Msg(err.Error())
	}
}

func initAPI(router *graceful.Graceful, workflowService *service.WorkflowService, connectionService *service.ConnectionService, hub *websocket.Hub, processor *websocket.MessageProcessor) {
	endpoints.WorkflowHandler(router, workflowService)
	endpoints.ConnectionHandler(router, connectionService)
	endpoints.WebSocketHandler(router, hub, processor)
}
