package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/media-jobs/internal/assets"
	"github.com/cuongbtq/media-jobs/internal/config"
	"github.com/cuongbtq/media-jobs/internal/notify"
	"github.com/cuongbtq/media-jobs/internal/orchestrator"
	"github.com/cuongbtq/media-jobs/internal/poller"
	"github.com/cuongbtq/media-jobs/internal/publish"
	"github.com/cuongbtq/media-jobs/internal/vendor"
	"github.com/cuongbtq/media-jobs/internal/vendor/avatar"
	"github.com/cuongbtq/media-jobs/internal/vendor/faceswap"
	"github.com/cuongbtq/media-jobs/internal/vendor/render"
	"github.com/cuongbtq/media-jobs/internal/worker"
	"github.com/cuongbtq/media-jobs/internal/worker/domain"
	"github.com/cuongbtq/media-jobs/internal/worker/storage"
	"github.com/cuongbtq/media-jobs/shared/logger"
	"github.com/cuongbtq/media-jobs/shared/objectstore"
	"github.com/cuongbtq/media-jobs/shared/postgresql"
	"github.com/cuongbtq/media-jobs/shared/rabbitmq"
	"github.com/cuongbtq/media-jobs/shared/redislock"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	// Parse command-line flags
	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize logger
	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	workerID := newWorkerID()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("worker_id", workerID),
	)

	// Initialize PostgreSQL client
	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	appLogger.Info("Database connection established")

	// Initialize RabbitMQ client
	rabbitClient, err := initRabbitMQ(cfg, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	appLogger.Info("RabbitMQ connection established")

	// Initialize Redis lock store
	locker, err := redislock.NewLocker(&redislock.Config{
		Addr:      cfg.Redis.Addr,
		Password:  cfg.Redis.Password,
		DB:        cfg.Redis.DB,
		KeyPrefix: "media-jobs:lock:",
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	defer locker.Close()

	// Initialize object store
	blobs, err := objectstore.NewClient(&objectstore.Config{
		Endpoint:  cfg.ObjectStore.Endpoint,
		AccessKey: cfg.ObjectStore.AccessKey,
		SecretKey: cfg.ObjectStore.SecretKey,
		Region:    cfg.ObjectStore.Region,
		UseSSL:    cfg.ObjectStore.UseSSL,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize object store: %w", err)
	}

	orch := buildOrchestrator(cfg, workerID, dbClient, rabbitClient, locker, blobs, appLogger.Logger)

	// One pool per served kind
	kinds := cfg.Worker.EnabledKinds()
	workers := make([]*worker.Worker, 0, len(kinds))
	for _, kind := range kinds {
		workers = append(workers, worker.NewWorker(&worker.Config{
			Logger:          appLogger.Logger,
			Source:          rabbitClient,
			Processor:       orch,
			Kind:            kind,
			Queue:           cfg.RabbitMQ.Queues.ForKind(kind).Name,
			WorkerID:        workerID,
			Concurrency:     cfg.Worker.ConcurrencyFor(kind),
			JobTimeout:      cfg.Worker.JobTimeout,
			ShutdownTimeout: cfg.Worker.ShutdownTimeout,
		}))
	}

	rt := worker.NewRuntime(worker.RuntimeConfig{
		Workers:   workers,
		Feed:      notify.NewFeedConsumer(storage.NewStorage(dbClient.GetDB(), appLogger.Logger), appLogger.Logger),
		Source:    rabbitClient,
		FeedQueue: cfg.RabbitMQ.Queues.Notifications.Name,
		WorkerID:  workerID,
		Logger:    appLogger.Logger,
	})

	// Create context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metricsServer := startMetricsServer(cfg.Worker.MetricsPort, dbClient, locker, appLogger.Logger)

	// Start runtime in a goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- rt.Run(ctx)
	}()

	appLogger.Info("Worker service started successfully",
		slog.Int("kinds", len(workers)),
	)

	var runErr error
	select {
	case <-ctx.Done():
		appLogger.Info("Received signal, shutting down gracefully")
		// Run returns once every pool has drained or hit its shutdown timeout
		runErr = <-errChan
	case runErr = <-errChan:
		if runErr != nil {
			appLogger.Error("Worker runtime error", slog.Any("error", runErr))
		}
	}

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Warn("Metrics server shutdown failed", slog.Any("error", err))
		}
	}

	appLogger.Info("Worker service shutdown complete")
	return runErr
}

// buildOrchestrator wires the job pipeline collaborators
func buildOrchestrator(
	cfg *config.Config,
	workerID string,
	dbClient *postgresql.Client,
	rabbitClient *rabbitmq.Client,
	locker *redislock.Locker,
	blobs *objectstore.Client,
	logger *slog.Logger,
) *orchestrator.Orchestrator {
	jobStore := storage.NewStorage(dbClient.GetDB(), logger)

	deps := orchestrator.Deps{
		Store:     jobStore,
		Locker:    orchestrator.NewRedisLocker(locker),
		Resolver:  assets.NewResolver(blobs, cfg.ObjectStore.SignedURLTTL, logger),
		Blobs:     blobs,
		Fetcher:   vendor.NewHTTP(vendor.Options{Name: "assets", Logger: logger}),
		Poller:    poller.New(poller.Config{Interval: cfg.Polling.Interval, Timeout: cfg.Polling.Timeout}, logger),
		Publisher: publish.NewPublisher(jobStore, cfg.Share.SiteURL, logger),
		Notifier:  notify.NewDispatcher(rabbitClient, cfg.RabbitMQ.Queues.Notifications.RoutingKeyOrName(), logger),
	}

	// Vendor clients only for configured vendors; ValidateWorkerConfig
	// already checked that served kinds have theirs.
	if v := cfg.Vendors.FaceSwap; v.BaseURL != "" {
		deps.FaceSwap = faceswap.NewClient(vendorOptions(v, logger))
	}
	if v := cfg.Vendors.Avatar; v.BaseURL != "" {
		deps.Avatar = avatar.NewClient(vendorOptions(v, logger))
	}
	if v := cfg.Vendors.Render; v.BaseURL != "" {
		opts := vendorOptions(v.VendorConfig, logger)
		opts.OwnerID = v.OwnerID
		deps.Render = render.NewClient(opts)
	}

	return orchestrator.New(orchestrator.Config{
		WorkerID:          workerID,
		LockTTL:           cfg.Redis.LockTTL,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
		StaleAfter:        cfg.Worker.StaleAfter,
		SignedURLTTL:      cfg.ObjectStore.SignedURLTTL,
		Buckets: orchestrator.Buckets{
			Characters:        cfg.ObjectStore.Buckets.Characters,
			Voices:            cfg.ObjectStore.Buckets.Voices,
			Music:             cfg.ObjectStore.Buckets.Music,
			FaceSwapTemplates: cfg.ObjectStore.Buckets.FaceSwapTemplates,
			UserContent:       cfg.ObjectStore.Buckets.UserContent,
		},
		Templates: cfg.Vendors.Render.Templates,
	}, deps, logger)
}

func vendorOptions(v config.VendorConfig, logger *slog.Logger) vendor.Options {
	return vendor.Options{
		BaseURL:        v.BaseURL,
		APIKey:         v.APIKey,
		RequestTimeout: v.RequestTimeout,
		RatePerSecond:  v.RatePerSecond,
		Logger:         logger,
	}
}

// startMetricsServer serves /metrics and /health on port; 0 disables it
func startMetricsServer(port int, dbClient *postgresql.Client, locker *redislock.Locker, logger *slog.Logger) *http.Server {
	if port <= 0 {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := dbClient.HealthCheck(ctx); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		if err := locker.HealthCheck(ctx); err != nil {
			http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("Metrics server listening", slog.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", slog.Any("error", err))
		}
	}()

	return srv
}

// newWorkerID is hostname plus a short random suffix, unique per process
func newWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	}

	return logger.New(loggerCfg)
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	dbConfig := &postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}

	return postgresql.NewClient(dbConfig, logger)
}

// initRabbitMQ declares the job queues of the served kinds plus the notification queue
func initRabbitMQ(cfg *config.Config, logger *slog.Logger) (*rabbitmq.Client, error) {
	rc := cfg.RabbitMQ

	queues := make([]rabbitmq.QueueBinding, 0, len(domain.AllKinds)+1)
	for _, kind := range cfg.Worker.EnabledKinds() {
		queues = append(queues, queueBinding(rc.Queues.ForKind(kind)))
	}
	queues = append(queues, queueBinding(rc.Queues.Notifications))

	rabbitConfig := &rabbitmq.Config{
		Host:               rc.Host,
		Port:               rc.Port,
		User:               rc.User,
		Password:           rc.Password,
		VHost:              rc.VHost,
		ExchangeName:       rc.Exchange.Name,
		ExchangeType:       rc.Exchange.Type,
		ExchangeDurable:    rc.Exchange.Durable,
		ExchangeAutoDelete: rc.Exchange.AutoDelete,
		DeadLetterExchange: rc.DeadLetter,
		Queues:             queues,
		RetryAttempts:      rc.Connection.RetryAttempts,
		RetryInterval:      rc.Connection.RetryInterval,
		Heartbeat:          rc.Connection.Heartbeat,
		ConnectionTimeout:  rc.Connection.ConnectionTimeout,
	}

	return rabbitmq.NewClient(rabbitConfig, logger)
}

func queueBinding(q config.QueueConfig) rabbitmq.QueueBinding {
	return rabbitmq.QueueBinding{
		Name:       q.Name,
		RoutingKey: q.RoutingKey,
		Durable:    q.Durable,
		AutoDelete: q.AutoDelete,
		Exclusive:  q.Exclusive,
	}
}
