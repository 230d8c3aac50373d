// Package container provides dependency injection and lifecycle management
// for the travel-expense service following Clean Architecture principles.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/viaticos/internal/application/port"
	"github.com/garyjia/viaticos/internal/domain/perdiem"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Per-diem rate table, already converted and validated
	Rules *perdiem.RuleSet

	// Employee and city lookups
	Directory DirectoryConfig

	// Domain event delivery
	Events EventsConfig

	// Liquidation report
	Report ReportConfig

	// Server configuration
	Server ServerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file
	Path string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration
}

// DirectoryConfig holds directory settings.
type DirectoryConfig struct {
	// UseHTTP selects the admin backend client over the static lists
	UseHTTP bool

	BaseURL string
	Token   string
	Timeout time.Duration

	// Static lists used when UseHTTP is false
	Employees []port.Employee
	Cities    []port.City
}

// EventsConfig holds event subscriber settings.
type EventsConfig struct {
	// AuditLog logs every domain event
	AuditLog bool

	// AMQPURL enables the broker publisher when set
	AMQPURL        string
	Exchange       string
	RoutingPrefix  string
	PublishTimeout time.Duration
}

// ReportConfig holds report settings.
type ReportConfig struct {
	// CompanyName is printed on the liquidation sheet
	CompanyName string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind to
	Host string

	// Port to listen on
	Port int

	// ReadTimeout for HTTP server
	ReadTimeout time.Duration

	// WriteTimeout for HTTP server
	WriteTimeout time.Duration

	// AllowOrigins lists CORS origins; "*" allows any
	AllowOrigins []string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/viaticos.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Directory: DirectoryConfig{
			Timeout: 5 * time.Second,
		},
		Events: EventsConfig{
			AuditLog:       true,
			Exchange:       "viaticos.events",
			PublishTimeout: 5 * time.Second,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Rules == nil {
		return fmt.Errorf("perdiem rule set is required")
	}
	if err := c.Rules.Validate(); err != nil {
		return fmt.Errorf("perdiem: %w", err)
	}

	if c.Directory.UseHTTP && c.Directory.BaseURL == "" {
		return fmt.Errorf("directory.base_url is required")
	}

	return nil
}
