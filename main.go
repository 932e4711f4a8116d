package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"paysync-backend/config"
	"paysync-backend/controllers"
	"paysync-backend/database"
	"paysync-backend/events"
	"paysync-backend/gateway"
	"paysync-backend/ledger"
	"paysync-backend/middlewares"
	"paysync-backend/queue"
	"paysync-backend/routes"
	"paysync-backend/staging"
	"paysync-backend/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const reconcileQueue = "reconcile"

// envInt reads an int env var with a default fallback.
func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func main() {
	// .env is optional outside of local dev.
	_ = godotenv.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg := config.Load()

	// ---- Database
	db, err := database.Connect()
	if err != nil {
		log.Fatal("database connect failed", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("database migrate failed", zap.Error(err))
	}

	// ---- Pipeline components (leaves first)
	ledgerStore := ledger.NewStore(db, log.Named("ledger"))
	stagingStore := staging.NewStore(db, log.Named("staging"))
	balanceStore := staging.NewBalanceStore(db)

	q := queue.New(db, reconcileQueue, queue.Options{
		Concurrency:  cfg.QueueConcurrency,
		MaxAttempts:  cfg.QueueMaxAttempts,
		BackoffBase:  cfg.QueueBackoffBase,
		BackoffCap:   cfg.QueueBackoffCap,
		Visibility:   cfg.QueueVisibility,
		PollInterval: cfg.QueuePollInterval,
	}, log.Named("queue"))

	reconciler := worker.New(ledgerStore, log.Named("worker"))
	bus := events.NewBus(cfg.BusBuffer, q, log.Named("events"))

	client := gateway.NewHTTPClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.PollTimeout)
	poller := gateway.NewPoller(client, stagingStore, bus, balanceStore,
		cfg.GatewayAccount, cfg.PollInterval, cfg.PollWindow, cfg.PollTimeout, log.Named("poller"))

	// ---- Background pipeline
	ctx, stop := context.WithCancel(context.Background())
	q.Start(ctx, reconciler.Handle)

	busDone := make(chan struct{})
	go func() {
		defer close(busDone)
		bus.Run(ctx)
	}()
	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		poller.Run(ctx)
	}()

	// ---- Fiber app with global error handler
	app := fiber.New(fiber.Config{
		ErrorHandler: middlewares.NewErrorHandler(log.Named("http")),
	})

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowCredentials: false, // Bearer tokens, not cookies
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
	}))

	// Global rate limiter (client-IP keyed; tune via env)
	rlMax := envInt("RATE_LIMIT_MAX", 60)
	rlWindow := time.Duration(envInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second
	app.Use(limiter.New(limiter.Config{
		Max:        rlMax,
		Expiration: rlWindow,
	}))

	routes.Register(app, routes.Handlers{
		Transactions: controllers.NewTransactionHandler(ledgerStore),
		Balance:      controllers.NewBalanceHandler(balanceStore, cfg.GatewayAccount),
		DeadLetters:  controllers.NewDeadLetterHandler(q),
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	go func() {
		log.Info("API server starting", zap.String("port", port))
		if err := app.Listen(":" + port); err != nil {
			log.Error("server stopped", zap.Error(err))
		}
	}()

	// ---- Graceful shutdown: stop polling, drain bus and workers, then HTTP
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	stop()
	<-pollerDone
	<-busDone
	q.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	log.Info("exited")
}
