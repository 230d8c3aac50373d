package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
	"go.uber.org/multierr"

	"github.com/garyjia/viaticos/internal/domain/perdiem"
	"github.com/garyjia/viaticos/internal/domain/shared"
	"github.com/garyjia/viaticos/internal/domain/valueobject"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	PerDiem   PerDiemConfig   `mapstructure:"perdiem"`
	Directory DirectoryConfig `mapstructure:"directory"`
	Events    EventsConfig    `mapstructure:"events"`
	Report    ReportConfig    `mapstructure:"report"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	AllowOrigins []string      `mapstructure:"allow_origins"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// TollConfig is one caseta of the rate table
type TollConfig struct {
	ID   string `mapstructure:"id"`
	Name string `mapstructure:"name"`
	Rate string `mapstructure:"rate"`
}

// PerDiemConfig is the rate table as written in the config file.
// Amounts are decimal strings in Currency.
type PerDiemConfig struct {
	Currency string            `mapstructure:"currency"`
	Meals    map[string]string `mapstructure:"meals"`
	Lodging  map[string]string `mapstructure:"lodging"`
	Tolls    []TollConfig      `mapstructure:"tolls"`
}

// EmployeeConfig seeds the static directory
type EmployeeConfig struct {
	ID          string `mapstructure:"id"`
	DisplayName string `mapstructure:"display_name"`
}

// CityConfig seeds the static directory
type CityConfig struct {
	ID   string `mapstructure:"id"`
	Name string `mapstructure:"name"`
}

// DirectoryConfig selects where employees and cities are looked up
type DirectoryConfig struct {
	Mode      string           `mapstructure:"mode"` // static or http
	BaseURL   string           `mapstructure:"base_url"`
	Token     string           `mapstructure:"token"`
	Timeout   time.Duration    `mapstructure:"timeout"`
	Employees []EmployeeConfig `mapstructure:"employees"`
	Cities    []CityConfig     `mapstructure:"cities"`
}

// EventsConfig holds domain event delivery settings.
// An empty AMQPURL disables the broker publisher.
type EventsConfig struct {
	AuditLog       bool          `mapstructure:"audit_log"`
	AMQPURL        string        `mapstructure:"amqp_url"`
	Exchange       string        `mapstructure:"exchange"`
	RoutingPrefix  string        `mapstructure:"routing_prefix"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
}

// ReportConfig holds liquidation report settings
type ReportConfig struct {
	CompanyName string `mapstructure:"company_name"`
}

// Directory modes
const (
	DirectoryStatic = "static"
	DirectoryHTTP   = "http"
)

// Load loads configuration from file and environment variables.
// Variables in envFiles (default ".env") are loaded first and never
// override the real environment; missing files are skipped.
func Load(configPath string, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := gotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("VIATICOS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind env vars: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.allow_origins", []string{})

	// Database defaults
	v.SetDefault("database.path", "data/viaticos.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	v.SetDefault("perdiem.currency", "MXN")

	v.SetDefault("directory.mode", DirectoryStatic)
	v.SetDefault("directory.timeout", 5*time.Second)

	v.SetDefault("events.audit_log", true)
	v.SetDefault("events.amqp_url", "")
	v.SetDefault("events.exchange", "viaticos.events")
	v.SetDefault("events.routing_prefix", "")
	v.SetDefault("events.publish_timeout", 5*time.Second)

	v.SetDefault("report.company_name", "")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) error {
	// Credentials come from the environment
	return multierr.Combine(
		v.BindEnv("directory.token", "DIRECTORY_TOKEN"),
		v.BindEnv("events.amqp_url", "AMQP_URL"),
		v.BindEnv("report.company_name", "COMPANY_NAME"),
	)
}

// Validate validates the configuration and reports every problem found
func (c *Config) Validate() error {
	var err error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		err = multierr.Append(err, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if c.Database.Path == "" {
		err = multierr.Append(err, fmt.Errorf("database.path is required"))
	}
	if c.Logger.Format != "json" && c.Logger.Format != "console" {
		err = multierr.Append(err, fmt.Errorf("logger.format must be json or console, got %q", c.Logger.Format))
	}
	if c.Report.CompanyName == "" {
		err = multierr.Append(err, fmt.Errorf("report.company_name is required"))
	}

	switch c.Directory.Mode {
	case DirectoryStatic:
		if len(c.Directory.Employees) == 0 {
			err = multierr.Append(err, fmt.Errorf("directory.employees is required in static mode"))
		}
	case DirectoryHTTP:
		if c.Directory.BaseURL == "" {
			err = multierr.Append(err, fmt.Errorf("directory.base_url is required in http mode"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("directory.mode must be %s or %s, got %q", DirectoryStatic, DirectoryHTTP, c.Directory.Mode))
	}

	if _, rerr := c.PerDiem.RuleSet(); rerr != nil {
		err = multierr.Append(err, rerr)
	}

	return err
}

// RuleSet converts the configured table into the domain rule set.
// Lodging tiers are folded to lower case.
func (p PerDiemConfig) RuleSet() (*perdiem.RuleSet, error) {
	currency, err := valueobject.ParseCurrency(p.Currency)
	if err != nil {
		return nil, shared.NewConfigurationError("perdiem.currency", "%v", err)
	}

	parse := func(key, amount string) (valueobject.Money, error) {
		m, err := valueobject.NewMoneyFromString(amount, currency)
		if err != nil {
			return valueobject.Money{}, shared.NewConfigurationError(key, "invalid amount %q", amount)
		}
		return m, nil
	}

	rules := &perdiem.RuleSet{
		Currency: currency,
		Meals:    make(map[perdiem.MealType]valueobject.Money, len(p.Meals)),
		Lodging:  make(map[string]valueobject.Money, len(p.Lodging)),
		Tolls:    make([]perdiem.TollStation, 0, len(p.Tolls)),
	}
	for meal, amount := range p.Meals {
		key := strings.ToLower(meal)
		rate, err := parse("perdiem.meals."+key, amount)
		if err != nil {
			return nil, err
		}
		rules.Meals[perdiem.MealType(key)] = rate
	}
	for tier, amount := range p.Lodging {
		key := perdiem.NormalizeTier(tier)
		rate, err := parse("perdiem.lodging."+key, amount)
		if err != nil {
			return nil, err
		}
		rules.Lodging[key] = rate
	}
	for _, toll := range p.Tolls {
		rate, err := parse("perdiem.tolls."+toll.ID, toll.Rate)
		if err != nil {
			return nil, err
		}
		rules.Tolls = append(rules.Tolls, perdiem.TollStation{ID: toll.ID, Name: toll.Name, Rate: rate})
	}

	if err := rules.Validate(); err != nil {
		return nil, err
	}
	return rules, nil
}
