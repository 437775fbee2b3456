package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"

	"github.com/invoq-hq/be-approvals/internal/client"
	"github.com/invoq-hq/be-approvals/internal/config"
	"github.com/invoq-hq/be-approvals/internal/database"
	"github.com/invoq-hq/be-approvals/internal/handler"
	"github.com/invoq-hq/be-approvals/internal/logger"
	"github.com/invoq-hq/be-approvals/internal/middleware"
	"github.com/invoq-hq/be-approvals/internal/natsclient"
	"github.com/invoq-hq/be-approvals/internal/repository"
	"github.com/invoq-hq/be-approvals/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Msg("Starting Approvals Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		Database: cfg.Database.Database,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize NATS (optional; empty URL disables notifications)
	var nats *natsclient.Client
	if cfg.Nats.URL != "" {
		nats, err = natsclient.Connect(natsclient.Config{
			URL:  cfg.Nats.URL,
			Name: cfg.Service.Name,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nats.Close()
		log.Info().Str("url", cfg.Nats.URL).Msg("NATS connection established")
	} else {
		log.Warn().Msg("NATS_URL not set; notification publishing disabled")
	}

	// Initialize repositories
	definitionRepo := repository.NewDefinitionRepository(db)
	instanceRepo := repository.NewInstanceRepository(db)
	actionRepo := repository.NewActionRepository(db)
	statsRepo := repository.NewStatsRepository(db)

	// Initialize collaborator clients
	documents := client.NewDocumentClient(cfg.Clients.DocumentsURL)
	notifier := client.NewNotificationPublisher(nats, log.Logger)

	var identity client.IdentityResolver = client.SnapshotIdentityResolver{}
	if cfg.Clients.IdentityURL != "" {
		identity = client.NewIdentityClient(cfg.Clients.IdentityURL)
		log.Info().Str("url", cfg.Clients.IdentityURL).Msg("Identity service client initialized")
	} else {
		log.Info().Msg("IDENTITY_URL not set; authorizing against snapshot approver sets")
	}

	// Initialize services
	definitionService := service.NewDefinitionService(definitionRepo, log)
	submissionService := service.NewSubmissionService(definitionRepo, instanceRepo, documents, notifier, log)
	actionService := service.NewActionService(instanceRepo, actionRepo, documents, identity, notifier, log)
	statsService := service.NewStatsService(instanceRepo, actionRepo, statsRepo, identity)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(definitionService, submissionService, actionService, statsService, log)
	router := mux.NewRouter()
	httpHandler.Register(router)

	// Apply middleware
	var h http.Handler = router
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Timeout(cfg.RequestTimeout())(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
		IdleTimeout:  cfg.IdleTimeout(),
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
