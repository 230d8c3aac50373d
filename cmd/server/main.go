package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/garyjia/viaticos/internal/config"
	"github.com/garyjia/viaticos/internal/container"
	httpapi "github.com/garyjia/viaticos/internal/interfaces/http"
	"github.com/garyjia/viaticos/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
		Service:    "viaticos",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("Server exited successfully")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting travel expense service",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port))

	containerCfg, err := cfg.ToContainerConfig()
	if err != nil {
		return fmt.Errorf("invalid per-diem table: %w", err)
	}

	c, err := container.NewContainer(containerCfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := c.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Failed to close container", zap.Error(err))
		}
	}()

	services := c.Services()
	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:         containerCfg.Server.Host,
		Port:         containerCfg.Server.Port,
		ReadTimeout:  containerCfg.Server.ReadTimeout,
		WriteTimeout: containerCfg.Server.WriteTimeout,
		AllowOrigins: containerCfg.Server.AllowOrigins,
	}, httpapi.Services{
		Requests:     services.Requests,
		Approvals:    services.Approvals,
		Liquidations: services.Liquidations,
		Rules:        c.Rules(),
	}, c.ServiceLogger())

	// Blocks until SIGINT/SIGTERM, then shuts down gracefully
	return server.Start(ctx)
}
