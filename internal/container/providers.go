package container

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/garyjia/viaticos/internal/application/dispatcher"
	"github.com/garyjia/viaticos/internal/application/port"
	"github.com/garyjia/viaticos/internal/application/service"
	"github.com/garyjia/viaticos/internal/domain/perdiem"
	"github.com/garyjia/viaticos/internal/infrastructure/directory"
	"github.com/garyjia/viaticos/internal/infrastructure/messaging"
	"github.com/garyjia/viaticos/internal/infrastructure/persistence/repository"
	"github.com/garyjia/viaticos/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/viaticos/internal/infrastructure/report"
	"github.com/garyjia/viaticos/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Conn           *database.DB
	TransactionMgr *sqlite.DB
}

// DirectoryBundle holds the employee and city lookups.
type DirectoryBundle struct {
	Employees port.EmployeeDirectory
	Cities    port.CityDirectory
}

// ProvideDatabase applies pending migrations, then opens the database.
// Returns DatabaseBundle containing the connection and TransactionManager.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	if err := database.NewMigrator(cfg.Path, logger).Up(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	conn, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	return &DatabaseBundle{
		Conn:           conn,
		TransactionMgr: sqlite.NewDB(conn.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories on top of the transaction manager.
func ProvideRepositories(db *sqlite.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Requests:     repository.NewRequestRepository(db, logger),
		Liquidations: repository.NewLiquidationRepository(db, logger),
	}, nil
}

// ProvideRules validates the per-diem table and wraps it for sharing.
func ProvideRules(rules *perdiem.RuleSet) (port.RuleSetProvider, error) {
	provider, err := perdiem.NewProvider(rules)
	if err != nil {
		return nil, fmt.Errorf("invalid per-diem rules: %w", err)
	}
	return provider, nil
}

// ProvideDirectory creates the admin backend client or the static lists.
func ProvideDirectory(cfg *DirectoryConfig, logger *zap.Logger) (*DirectoryBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("directory config is required")
	}

	if cfg.UseHTTP {
		client, err := directory.NewHTTPDirectory(directory.HTTPConfig{
			BaseURL: cfg.BaseURL,
			Token:   cfg.Token,
			Timeout: cfg.Timeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Using HTTP directory", zap.String("base_url", cfg.BaseURL))
		return &DirectoryBundle{Employees: client, Cities: client}, nil
	}

	static := directory.NewStatic(cfg.Employees, cfg.Cities)
	logger.Info("Using static directory",
		zap.Int("employees", len(cfg.Employees)),
		zap.Int("cities", len(cfg.Cities)))
	return &DirectoryBundle{Employees: static, Cities: static}, nil
}

// ProvidePublisher connects the AMQP publisher. Returns nil when no broker
// is configured.
func ProvidePublisher(cfg *EventsConfig, logger *zap.Logger) (port.EventPublisher, error) {
	if cfg == nil || cfg.AMQPURL == "" {
		return nil, nil
	}

	publisher, err := messaging.NewAMQPPublisher(messaging.AMQPConfig{
		URL:            cfg.AMQPURL,
		Exchange:       cfg.Exchange,
		RoutingPrefix:  cfg.RoutingPrefix,
		PublishTimeout: cfg.PublishTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect event publisher: %w", err)
	}
	return publisher, nil
}

// ProvideDispatcher creates the event dispatcher and registers subscribers.
func ProvideDispatcher(cfg *EventsConfig, publisher port.EventPublisher, logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	// Create dispatcher logger adapter
	dispatcherLogger := &dispatcherLoggerAdapter{logger: logger}

	disp := dispatcher.NewDispatcher(
		dispatcher.WithLogger(dispatcherLogger),
	)

	if cfg != nil && cfg.AuditLog {
		disp.SubscribeAll("audit-log", messaging.NewAuditLogHandler(logger))
	}
	if publisher != nil {
		disp.SubscribeAll("amqp-publisher", publisher.Publish)
	}

	return disp, nil
}

// ProvideReport creates the liquidation report writer.
func ProvideReport(cfg *ReportConfig, logger *zap.Logger) port.ReportWriter {
	return report.NewExcelWriter(cfg.CompanyName, logger)
}

// ServiceDeps holds dependencies required for creating services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Rules      port.RuleSetProvider
	Directory  *DirectoryBundle
	Report     port.ReportWriter
	Dispatcher dispatcher.Dispatcher
	Logger     *zap.Logger
}

// ProvideServices creates all application services.
// Returns ServiceBundle containing all service implementations.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Directory == nil {
		return nil, fmt.Errorf("directory is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	// Create service logger adapter
	serviceLogger := &zapLoggerAdapter{logger: deps.Logger}

	return &ServiceBundle{
		Requests: service.NewRequestService(
			deps.Repos.Requests,
			deps.TxManager,
			deps.Rules,
			deps.Directory.Employees,
			deps.Directory.Cities,
			deps.Dispatcher,
			serviceLogger,
		),
		Approvals: service.NewApprovalService(
			deps.Repos.Requests,
			deps.Repos.Liquidations,
			deps.TxManager,
			deps.Dispatcher,
			serviceLogger,
		),
		Liquidations: service.NewLiquidationService(
			deps.Repos.Requests,
			deps.Repos.Liquidations,
			deps.TxManager,
			deps.Report,
			deps.Dispatcher,
			serviceLogger,
		),
	}, nil
}
