package config

import (
	"github.com/garyjia/viaticos/internal/application/port"
	"github.com/garyjia/viaticos/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() (*container.Config, error) {
	rules, err := c.PerDiem.RuleSet()
	if err != nil {
		return nil, err
	}

	employees := make([]port.Employee, 0, len(c.Directory.Employees))
	for _, e := range c.Directory.Employees {
		employees = append(employees, port.Employee{ID: e.ID, DisplayName: e.DisplayName})
	}
	cities := make([]port.City, 0, len(c.Directory.Cities))
	for _, city := range c.Directory.Cities {
		cities = append(cities, port.City{ID: city.ID, Name: city.Name})
	}

	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Rules: rules,
		Directory: container.DirectoryConfig{
			UseHTTP:   c.Directory.Mode == DirectoryHTTP,
			BaseURL:   c.Directory.BaseURL,
			Token:     c.Directory.Token,
			Timeout:   c.Directory.Timeout,
			Employees: employees,
			Cities:    cities,
		},
		Events: container.EventsConfig{
			AuditLog:       c.Events.AuditLog,
			AMQPURL:        c.Events.AMQPURL,
			Exchange:       c.Events.Exchange,
			RoutingPrefix:  c.Events.RoutingPrefix,
			PublishTimeout: c.Events.PublishTimeout,
		},
		Report: container.ReportConfig{
			CompanyName: c.Report.CompanyName,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
			AllowOrigins: c.Server.AllowOrigins,
		},
	}, nil
}
