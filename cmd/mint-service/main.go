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

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/cuongbtq/mintgate/internal/api/handler"
	"github.com/cuongbtq/mintgate/internal/api/router"
	apistorage "github.com/cuongbtq/mintgate/internal/api/storage"
	"github.com/cuongbtq/mintgate/internal/config"
	"github.com/cuongbtq/mintgate/internal/ledger"
	"github.com/cuongbtq/mintgate/internal/metrics"
	"github.com/cuongbtq/mintgate/internal/minter"
	"github.com/cuongbtq/mintgate/internal/payment"
	"github.com/cuongbtq/mintgate/internal/slot"
	"github.com/cuongbtq/mintgate/internal/status"
	"github.com/cuongbtq/mintgate/internal/worker"
	workerstorage "github.com/cuongbtq/mintgate/internal/worker/storage"
	"github.com/cuongbtq/mintgate/shared/logger"
	"github.com/cuongbtq/mintgate/shared/postgresql"
	"github.com/cuongbtq/mintgate/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("MINT_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/mint-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting mint service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	wallet, err := minter.LoadWallet(cfg.Chain.WalletKeypair)
	if err != nil {
		return fmt.Errorf("failed to load wallet: %w", err)
	}

	statuses, err := status.NewCache(cfg.Worker.StatusTTL)
	if err != nil {
		return err
	}

	rpcClient := ledger.NewRPCClient(cfg.Chain.RPCEndpoint)
	reader := ledger.NewReader(&ledger.Config{
		Logger:           appLogger.Logger,
		RPC:              rpcClient,
		PaymentProgramID: cfg.Chain.PaymentProgramID,
	})

	mintService := minter.NewService(
		minter.NewUploader(&minter.UploaderConfig{
			Endpoint:   cfg.Uploader.Endpoint,
			APIKey:     cfg.Uploader.APIKey,
			Timeout:    cfg.Uploader.Timeout,
			RetryCount: cfg.Uploader.RetryCount,
			RetryWait:  cfg.Uploader.RetryWait,
		}, appLogger.Logger),
		minter.NewChainMinter(rpcClient, wallet, &minter.ChainConfig{
			CandyProgramID:  cfg.Chain.CandyProgramID,
			ConfigAddress:   cfg.Chain.ConfigAddress,
			CreatorAddress:  cfg.Chain.CreatorAddress,
			ConfirmInterval: cfg.Chain.ConfirmInterval,
			ConfirmTimeout:  cfg.Chain.ConfirmTimeout,
		}, appLogger.Logger),
		appLogger.Logger,
	)

	creator := cfg.Chain.CreatorAddress
	if creator == "" {
		creator = wallet.PublicKey.ToBase58()
	}

	workerCfg := &worker.Config{
		Logger:   appLogger.Logger,
		Chain:    reader,
		Verifier: payment.NewVerifier(cfg.Chain.PaymentProgramID),
		Slots:    slot.NewLedger(appLogger.Logger, reader, cfg.Chain.ConfigAddress),
		Minter:   mintService,
		Statuses: statuses,
		Metrics:  metrics.Mint(),
		Collection: minter.Collection{
			Symbol:               cfg.Mint.Symbol,
			Name:                 cfg.Mint.CollectionName,
			Family:               cfg.Mint.CollectionFamily,
			CreatorAddress:       creator,
			SellerFeeBasisPoints: cfg.Mint.SellerFeeBasisPoints,
		},
		QueueCapacity: cfg.Worker.QueueCapacity,
		JobTimeout:    cfg.Worker.JobTimeout,
		MaxNameLength: cfg.Mint.MaxNameLength,
		MaxFileSize:   cfg.Mint.MaxFileSizeKB * 1024,
	}

	handlerDeps := &handler.Dependencies{
		Logger:         appLogger.Logger,
		Statuses:       statuses,
		MaxUploadBytes: cfg.Mint.MaxFileSizeKB * 1024,
		Certificates: &handler.CertificateConfig{
			CollectionName:  cfg.Mint.CollectionName,
			AssetGatewayURL: cfg.Mint.AssetGatewayURL,
			UIURL:           cfg.App.UIURL,
		},
	}

	var dbClient *postgresql.Client
	if cfg.Database.Enabled {
		dbClient, err = initPostgreSQL(&cfg.Database, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		defer dbClient.Close()

		workerCfg.Journal = workerstorage.NewStorage(dbClient.GetDB(), appLogger.Logger)
		handlerDeps.Journal = apistorage.NewStorage(dbClient.GetDB())
		appLogger.Info("Mint journal enabled")
	}

	if cfg.RabbitMQ.Enabled {
		rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()

		workerCfg.Events = rabbitClient
		appLogger.Info("Mint events enabled")
	}

	mintWorker := worker.NewWorker(workerCfg)
	handlerDeps.Worker = mintWorker

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mintWorker.Start(ctx)

	var limiter *router.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = router.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	}

	if cfg.App.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router.SetupRouter(handlerDeps, limiter),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	appLogger.Info("Mint service is running",
		slog.String("address", addr),
		slog.Int("queue_capacity", cfg.Worker.QueueCapacity),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		appLogger.Info("Received signal, shutting down gracefully",
			slog.String("signal", sig.String()),
		)
	case err := <-errChan:
		appLogger.Error("Server failed",
			slog.Any("error", err),
		)
		mintWorker.Stop()
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown",
			slog.Any("error", err),
		)
	}

	// the job in flight runs to completion; waiting jobs are failed
	done := make(chan struct{})
	go func() {
		mintWorker.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Mint worker stopped gracefully")
	case <-time.After(cfg.Worker.ShutdownTimeout):
		appLogger.Warn("Mint worker shutdown timeout exceeded, forcing exit")
	}

	appLogger.Info("Mint service shutdown complete")
	return nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// initPostgreSQL initializes the mint journal database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(&postgresql.Config{
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
	}, logger)
}

// initRabbitMQ initializes the mint event publisher
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, logger)
}
