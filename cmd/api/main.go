package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/loyalty-points-engine/internal/config"
	"github.com/fairyhunter13/loyalty-points-engine/internal/handler"
	"github.com/fairyhunter13/loyalty-points-engine/internal/repository"
	"github.com/fairyhunter13/loyalty-points-engine/internal/service"
	"github.com/fairyhunter13/loyalty-points-engine/internal/validator"
	"github.com/fairyhunter13/loyalty-points-engine/pkg/database"
)

func main() {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to read .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	initLogger(cfg)

	ctx := context.Background()

	// Initialize database pool with retry
	pool, err := database.NewPool(ctx, cfg.DB.DSN(), cfg.DB.LockTimeout(), 5)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	service.RegisterMetrics(prometheus.DefaultRegisterer)

	app := fiber.New(fiber.Config{
		AppName:      "Loyalty Points Engine",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    1 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(requestid.New()) // Adds X-Request-ID header to all requests
	app.Use(logger.New())

	validate := validator.New()
	retry := service.RetryPolicy{
		MaxAttempts: cfg.Loyalty.MaxRetries,
		Backoff:     cfg.Loyalty.RetryBackoff(),
	}

	accountRepo := repository.NewAccountRepository(pool)
	programRepo := repository.NewProgramRepository(pool)
	txnRepo := repository.NewTransactionRepository(pool)

	loyaltyService := service.NewLoyaltyService(pool, accountRepo, programRepo, txnRepo, service.Options{
		Retry:        retry,
		HistoryLimit: cfg.Loyalty.HistoryLimit,
	})
	programService := service.NewProgramService(pool, programRepo)
	sweeper := service.NewExpirationSweeper(pool, accountRepo, txnRepo, service.SweeperOptions{
		BatchSize:     cfg.Loyalty.SweepBatchSize,
		RatePerSecond: cfg.Loyalty.SweepRatePerSecond,
		Retry:         retry,
	})

	loyaltyHandler := handler.NewLoyaltyHandler(loyaltyService, validate)
	programHandler := handler.NewProgramHandler(programService, sweeper, validate)
	healthHandler := handler.NewHealthHandler(pool, sweeper)

	app.Get("/health", healthHandler.Check)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Post("/api/programs", programHandler.CreateProgram)
	app.Get("/api/programs/:id", programHandler.GetProgram)
	app.Post("/api/programs/:id/tiers", programHandler.AppendTier)
	app.Delete("/api/programs/:id", programHandler.DeactivateProgram)

	loyalty := app.Group("/api/loyalty")
	loyalty.Post("/accounts", loyaltyHandler.Enroll)
	loyalty.Get("/accounts/:program_id/:customer_id", loyaltyHandler.GetAccount)
	loyalty.Delete("/accounts/:program_id/:customer_id", loyaltyHandler.DeactivateAccount)
	loyalty.Get("/accounts/:program_id/:customer_id/transactions", loyaltyHandler.ListTransactions)
	loyalty.Post("/earn", loyaltyHandler.EarnPoints)
	loyalty.Post("/redeem", loyaltyHandler.RedeemPoints)
	loyalty.Post("/expirations", programHandler.ProcessExpirations)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	sweeperDone := make(chan struct{})
	if cfg.Loyalty.SweepInterval > 0 {
		go func() {
			defer close(sweeperDone)
			sweeper.Run(sweepCtx, cfg.Loyalty.SweepInterval)
		}()
	} else {
		log.Info().Msg("background expiration sweeper disabled")
		close(sweeperDone)
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("starting server")
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	log.Info().Int("timeout_seconds", cfg.Server.ShutdownTimeout).Msg("shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()

	// Stop taking new sweeps first; an in-flight account transaction finishes or rolls back.
	stopSweeper()

	log.Info().Msg("waiting for in-flight requests to complete...")
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	select {
	case <-sweeperDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("expiration sweeper did not stop before shutdown timeout")
	}

	// Close database pool AFTER server shutdown (even if shutdown timed out)
	log.Info().Msg("closing database connections...")
	pool.Close()
	log.Info().Msg("server stopped")
}

// initLogger configures zerolog based on the application configuration.
func initLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Log.Pretty {
		// Human-readable output for development
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
			With().Timestamp().Logger()
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
