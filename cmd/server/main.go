package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/auditflow/callpipe/internal/audit"
	"github.com/auditflow/callpipe/internal/auth"
	"github.com/auditflow/callpipe/internal/compute"
	"github.com/auditflow/callpipe/internal/config"
	"github.com/auditflow/callpipe/internal/database"
	"github.com/auditflow/callpipe/internal/dispatch"
	"github.com/auditflow/callpipe/internal/drain"
	"github.com/auditflow/callpipe/internal/inference"
	"github.com/auditflow/callpipe/internal/ingest"
	"github.com/auditflow/callpipe/internal/matching"
	"github.com/auditflow/callpipe/internal/orchestrator"
	"github.com/auditflow/callpipe/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main wires the pipeline services, starts the background loops and serves
// the internal API with graceful shutdown support.
func main() {
	cfg, err := config.Load()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.Store)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	// Compute lifecycle client and the exclusive GPU group
	computeClient := compute.NewMediatorClient(cfg.Compute.MediatorURL, cfg.Compute.WarmupWait)
	if cfg.Compute.UseReadyProbe {
		computeClient = computeClient.WithReadinessProbe(computeClient.IsRunning)
	}
	gpu := compute.NewExclusiveGroup(computeClient, cfg.Compute.ReadyTimeout,
		compute.ServiceLID,
		compute.ServiceDenoise,
		compute.ServiceIVR,
		compute.ServiceSTT,
		compute.ServiceVAD,
	)

	// Inference clients shared by the loops
	sttClient := inference.NewSTTClient(cfg.Stages.STTEndpoint)
	llmClient := inference.NewLLMClient(cfg.Stages.LLMEndpoint, cfg.Stages.TranslateEndpoint)
	supported := config.LanguageSet(cfg.Pipeline.SupportedLanguages)

	// Initialize services and handlers
	authService := auth.NewService(cfg.Server.JWTSecret)
	authHandlers := auth.NewGinHandlers(authService)
	authService.RegisterAPICredentials(cfg.Server.APIKey, cfg.Server.APISecret)

	dispatcher := dispatch.NewDispatcher(db, cfg.Stages.PoolSize)

	engine := matching.NewEngine(db, supported)
	matchingHandlers := matching.NewGinHandlers(engine)

	// Metadata collaborators are optional; an unset URL leaves the
	// interface nil so the intake service skips the trigger.
	var callMeta, tradeMeta ingest.MetadataIngester
	if c := ingest.NewHTTPIngester(cfg.Ingest.CallMetadataURL); c != nil {
		callMeta = c
	}
	if c := ingest.NewHTTPIngester(cfg.Ingest.TradeMetadataURL); c != nil {
		tradeMeta = c
	}
	intake := ingest.NewService(db, cfg.Paths, callMeta, tradeMeta)

	notifier := audit.NewNotifier(cfg.Audit.WebhookURL)
	auditor := audit.NewAuditor(db, llmClient)
	webhookHandlers := audit.NewGinHandlers()

	gates := orchestrator.NewGates()
	orch := orchestrator.New(db, cfg, dispatcher, engine, intake, gpu, gates)
	batchHandlers := orchestrator.NewGinHandlers(db)

	// Start the background loops
	loopCtx, loopCancel := context.WithCancel(context.Background())
	defer loopCancel()

	go orch.Start(loopCtx)
	go orchestrator.NewRefresher(db, cfg.Pipeline.RefreshInterval).Start(loopCtx)
	for i := 0; i < cfg.Pipeline.DrainInstances; i++ {
		instance := fmt.Sprintf("drain-%d", i+1)
		d := drain.New(db, instance, sttClient, llmClient, auditor, notifier, gpu, gates, supported, cfg.Pipeline.DrainInterval)
		go d.Start(loopCtx)
	}

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, cfg.Server.JWTSecret, authHandlers, matchingHandlers, batchHandlers, webhookHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Stop the loops first so no new stage work begins mid-shutdown
	loopCancel()

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - Internal routes: Protected by JWT, used by cooperating machines and the dashboard
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	matchingHandlers *matching.GinHandlers,
	batchHandlers *orchestrator.GinHandlers,
	webhookHandlers *audit.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		auth := v1.Group("/auth")
		{
			auth.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Internal routes (should be protected by internal network)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/matching/run", matchingHandlers.RunSliceHandler())
			internal.POST("/matching/reevaluate", matchingHandlers.ReevaluateHandler())
			internal.GET("/batches/current", batchHandlers.CurrentBatchHandler())
			internal.POST("/webhook/call-status", webhookHandlers.ReceiveCallStatusHandler())
		}
	}
}
