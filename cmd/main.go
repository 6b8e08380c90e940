package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/eburondeveloperph-gif/engr/adapters"
	"github.com/eburondeveloperph-gif/engr/adapters/device"
	"github.com/eburondeveloperph-gif/engr/adapters/llm"
	"github.com/eburondeveloperph-gif/engr/adapters/mongo"
	"github.com/eburondeveloperph-gif/engr/domain"
	"github.com/eburondeveloperph-gif/engr/domain/entities"
	"github.com/eburondeveloperph-gif/engr/domain/repositories"
	"github.com/eburondeveloperph-gif/engr/internal/api"
	"github.com/eburondeveloperph-gif/engr/internal/auth"
	"github.com/eburondeveloperph-gif/engr/internal/config"
	"github.com/eburondeveloperph-gif/engr/internal/websocket"
	"github.com/eburondeveloperph-gif/engr/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("Invalid configuration", zap.Error(err))
	}

	// Initialize logger
	var logger *zap.Logger
	if cfg.IsDevelopment() {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	cfg = cfg.WithDefaults(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize storage
	store, sessionLog, closeStore := initStorage(ctx, cfg, logger)
	defer closeStore()

	// Initialize the remote assistant transport
	liveConfig := llm.NewLiveConfigFromEnv().WithDefaults(logger)
	connector := initConnector(cfg, liveConfig, logger)

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, 0)
	if err != nil {
		logger.Fatal("JWT_SECRET is required", zap.Error(err))
	}

	// The hub and the controller reference each other; events and audio
	// reach the hub through these closures once it exists.
	var hub *websocket.Hub
	publish := func(ev domain.AssistantEvent) { hub.Publish(ev) }
	speaker := device.NewStreamingSpeaker(func(pcm []byte, rate int) { hub.PlayAudio(pcm, rate) }, logger)

	terminalMic := websocket.NewTerminalMicrophone(logger)
	terminalCamera := websocket.NewTerminalCamera()

	var (
		mic    repositories.Microphone = terminalMic
		camera repositories.Camera     = terminalCamera
	)
	if cfg.DeviceBackend == config.DevicesMock {
		mic = device.NewSineMicrophone(logger)
		camera = device.NewStillCamera()
		logger.Info("Using simulated microphone and camera")
	}

	broker := usecase.NewToolBroker(store, usecase.ToolBrokerConfig{
		LowStockThreshold: cfg.LowStockThreshold,
		QueryTimeout:      cfg.ToolQueryTimeout,
	}, logger)

	controller := usecase.NewSessionController(
		connector, mic, camera, speaker, broker, sessionLog, publish,
		usecase.SessionControllerConfig{
			Model: liveConfig.Model,
			Voice: liveConfig.Voice,
		},
		logger,
	)

	hub = websocket.NewHub(controller, terminalMic, terminalCamera, logger)
	go hub.Run(ctx)

	controllerDone := make(chan struct{})
	go func() {
		defer close(controllerDone)
		if err := controller.Run(ctx); err != nil {
			logger.Error("Session controller exited", zap.Error(err))
		}
	}()

	cleanup := websocket.NewSessionCleanupService(sessionLog, cfg.SessionLogRetention, logger)
	cleanup.Start()
	defer cleanup.Stop()

	// Create Echo instance
	e := echo.New()

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	// Initialize API routes
	api.InitRoutes(e, api.Dependencies{
		Hub:               hub,
		Assistant:         controller,
		Store:             store,
		SessionLog:        sessionLog,
		Tokens:            tokens,
		OperatorPIN:       cfg.OperatorPIN,
		LowStockThreshold: cfg.LowStockThreshold,
	}, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Hardy assistant server started",
		zap.String("port", cfg.Port),
		zap.String("transport", cfg.AssistantTransport),
		zap.String("store", cfg.StoreBackend),
		zap.String("devices", cfg.DeviceBackend))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	// Ends any live session before the HTTP server goes away
	cancel()
	<-controllerDone
	controller.WaitForSaves()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

// initStorage returns the store and session log selected by STORE_BACKEND
func initStorage(ctx context.Context, cfg config.Config, logger *zap.Logger) (repositories.Store, repositories.SessionLogRepository, func()) {
	if cfg.StoreBackend != config.StoreMongo {
		logger.Info("Using in-memory store with the opening inventory")
		return adapters.NewSeededMemoryStore(), adapters.NewMemorySessionLog(), func() {}
	}

	client, err := mongo.NewClient(ctx, mongo.ClientConfig{
		URI:      cfg.MongoURI,
		Database: cfg.MongoDatabase,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}

	if err := client.EnsureIndexes(ctx); err != nil {
		logger.Warn("Failed to ensure MongoDB indexes", zap.Error(err))
	}

	store := mongo.NewStoreRepository(client.Database)
	seeded, err := store.SeedProducts(ctx, entities.InitialInventory())
	if err != nil {
		logger.Fatal("Failed to seed products", zap.Error(err))
	}
	if seeded > 0 {
		logger.Info("Seeded opening inventory", zap.Int("products", seeded))
	}

	closeStore := func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		client.Close(closeCtx)
	}
	return store, mongo.NewSessionLogRepository(client.Database), closeStore
}

// initConnector returns the transport selected by ASSISTANT_TRANSPORT
func initConnector(cfg config.Config, liveConfig llm.LiveConfig, logger *zap.Logger) repositories.LiveConnector {
	switch cfg.AssistantTransport {
	case config.TransportMock:
		mock := llm.NewMockLive(logger)
		mock.Greeting = llm.GreetingTone()
		logger.Info("Using scripted assistant transport")
		return mock
	case config.TransportWebSocket:
		return llm.NewGeminiWebSocket(liveConfig, logger)
	default:
		return llm.NewGeminiLive(liveConfig, logger)
	}
}
