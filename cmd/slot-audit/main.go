package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/cuongbtq/mintgate/internal/config"
	"github.com/cuongbtq/mintgate/internal/ledger"
	"github.com/cuongbtq/mintgate/internal/slot"
	"github.com/cuongbtq/mintgate/shared/logger"
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
	timeout := flag.Duration("timeout", 30*time.Second, "RPC timeout")
	verbose := flag.Bool("v", false, "List every minted slot")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateAudit(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := logger.New(&logger.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cfg.Logging.Output,
		EnableSource: cfg.Logging.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	reader := ledger.NewReader(&ledger.Config{
		Logger:           appLogger.Logger,
		RPC:              ledger.NewRPCClient(cfg.Chain.RPCEndpoint),
		PaymentProgramID: cfg.Chain.PaymentProgramID,
	})
	slots := slot.NewLedger(appLogger.Logger, reader, cfg.Chain.ConfigAddress)

	appLogger.Info("Auditing collection slots",
		slog.String("config_address", cfg.Chain.ConfigAddress),
		slog.String("rpc_endpoint", cfg.Chain.RPCEndpoint),
	)

	report, err := slots.Audit(ctx)
	if err != nil {
		return fmt.Errorf("failed to audit slots: %w", err)
	}

	if *verbose {
		for _, line := range report.Used {
			fmt.Printf("%5d  %-32s  %s\n", line.Slot, line.Name, line.URI)
		}
	}

	fmt.Printf("total: %d\nminted: %d\navailable: %d\n", report.Total, report.Minted, report.Available)

	appLogger.Info("Slot audit complete",
		slog.Int("total", report.Total),
		slog.Int("minted", report.Minted),
		slog.Int("available", report.Available),
	)

	return nil
}
