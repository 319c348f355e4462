package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog"

	"github.com/ferryline/ferryline-api/internal/config"
	"github.com/ferryline/ferryline-api/internal/handlers"
	"github.com/ferryline/ferryline-api/internal/middleware"
	"github.com/ferryline/ferryline-api/internal/migration"
	"github.com/ferryline/ferryline-api/internal/notification"
	"github.com/ferryline/ferryline-api/internal/repository"
	"github.com/ferryline/ferryline-api/internal/routes"
	syncer "github.com/ferryline/ferryline-api/internal/sync"
	"github.com/ferryline/ferryline-api/internal/transfer"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type application struct {
	config *config.Config
	db     *sql.DB
	logger zerolog.Logger
}

func main() {
	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.SetFlags(0)
	log.SetOutput(logger)

	gooseAdapter := migration.NewGooseAdapter(logger)
	goose.SetLogger(gooseAdapter)

	// Load configuration.
	cfg := config.Load()

	// Initialize database connection.
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to the database")
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to ping database")
	}

	// Run database migrations.
	migration.RunMigrations(cfg.DatabaseURL, logger)

	app := &application{
		config: cfg,
		db:     db,
		logger: logger,
	}

	// Repositories
	userRepo := repository.NewUserRepository(db)
	historyRepo := repository.NewHistoryRepository(db)
	prefRepo := repository.NewPreferenceRepository(db)

	// Upstream transfer API client with cached client-credentials tokens.
	httpClient := &http.Client{Timeout: cfg.Transfer.RequestTimeout}
	tokens := transfer.NewTokenCache(cfg.Transfer.TokenURL, cfg.Transfer.ClientID, cfg.Transfer.ClientSecret, httpClient, logger)
	transferClient := transfer.NewClient(cfg.Transfer.BaseURL, tokens, httpClient, cfg.Transfer.PageSize)

	// Notification dispatcher for detected status transitions.
	mailer, err := notification.NewSMTPMailer(cfg.Email)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure mailer")
	}
	dispatcher := notification.NewDispatcher(prefRepo, userRepo, mailer, logger)

	// One polling synchronizer per active user.
	manager := syncer.NewManager(userRepo, transferClient, historyRepo, dispatcher, syncer.Options{
		PollInterval:     cfg.Transfer.PollInterval,
		RequestTimeout:   cfg.Transfer.RequestTimeout,
		TickBudget:       cfg.Transfer.TickBudget,
		FetchConcurrency: cfg.Transfer.FetchConcurrency,
	}, logger)

	syncCtx, stopSync := context.WithCancel(context.Background())
	syncDone := make(chan struct{})
	go func() {
		manager.Run(syncCtx)
		close(syncDone)
	}()

	// Initialize the HTTP router and middleware.
	router := app.initRouter(userRepo, historyRepo, prefRepo, transferClient, logger)
	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	corsHandler := h.CORS(
		h.AllowedOrigins([]string{"http://localhost:3000"}),
		h.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		h.AllowCredentials(),
	)(loggedRouter)

	// Start the HTTP server and handle graceful shutdown.
	app.startServer(corsHandler, logger)

	// Stop the polling synchronizers.
	logger.Info().Msg("Stopping synchronizers...")
	stopSync()
	<-syncDone

	logger.Info().Msg("Application terminated.")
}

// initRouter sets up all HTTP handlers and returns the router.
func (app *application) initRouter(
	userRepo repository.UserRepository,
	historyRepo repository.HistoryRepository,
	prefRepo repository.PreferenceRepository,
	transferClient *transfer.Client,
	logger zerolog.Logger,
) http.Handler {
	authHandler := handlers.NewAuthHandler(userRepo, app.config.JWTSecret, logger)
	jobHandler := handlers.NewJobHandler(transferClient, app.config.Transfer.FetchConcurrency, logger)
	historyHandler := handlers.NewHistoryHandler(historyRepo, logger)
	prefHandler := handlers.NewPreferenceHandler(prefRepo, logger)

	return routes.NewRouter(authHandler, jobHandler, historyHandler, prefHandler)
}

// startServer launches the HTTP server and blocks until shutdown.
func (app *application) startServer(handler http.Handler, logger zerolog.Logger) {
	server := &http.Server{
		Addr:    ":" + app.config.ServerPort,
		Handler: handler,
	}

	// Channel to listen for server errors
	serverErrCh := make(chan error, 1)
	go func() {
		logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	// Wait for an interrupt signal or a server error.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Msgf("Received signal: %s. Shutting down...", sig)
	case err := <-serverErrCh:
		logger.Error().Err(err).Msg("Server error occurred")
	}

	// Gracefully shut down the HTTP server.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		logger.Info().Msg("HTTP server shutdown complete.")
	}
}
