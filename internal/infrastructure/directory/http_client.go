package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/garyjia/viaticos/internal/application/port"
	"github.com/garyjia/viaticos/internal/domain/shared"
	"go.uber.org/zap"
)

// HTTPConfig configures the admin backend client
type HTTPConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// HTTPDirectory reads employees and cities from the admin backend
type HTTPDirectory struct {
	baseURL string
	token   string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPDirectory creates a directory client
func NewHTTPDirectory(cfg HTTPConfig, logger *zap.Logger) (*HTTPDirectory, error) {
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, shared.NewConfigurationError("directory.base_url", "invalid url %q", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPDirectory{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}, nil
}

// GetEmployee implements port.EmployeeDirectory
func (d *HTTPDirectory) GetEmployee(ctx context.Context, id string) (*port.Employee, error) {
	var emp port.Employee
	if err := d.get(ctx, "employees", id, &emp); err != nil {
		return nil, err
	}
	if emp.ID == "" {
		emp.ID = id
	}
	return &emp, nil
}

// GetCity implements port.CityDirectory
func (d *HTTPDirectory) GetCity(ctx context.Context, id string) (*port.City, error) {
	var city port.City
	if err := d.get(ctx, "cities", id, &city); err != nil {
		return nil, err
	}
	if city.ID == "" {
		city.ID = id
	}
	return &city, nil
}

func (d *HTTPDirectory) get(ctx context.Context, resource, id string, out interface{}) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%s: empty id: %w", resource, shared.ErrNotFound)
	}
	endpoint := fmt.Sprintf("%s/%s/%s", d.baseURL, resource, url.PathEscape(id))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if d.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		d.logger.Error("Directory request failed",
			zap.String("resource", resource),
			zap.String("id", id),
			zap.Error(err))
		return fmt.Errorf("directory %s: %w", resource, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s %s: %w", resource, id, shared.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		d.logger.Error("Directory returned error",
			zap.String("resource", resource),
			zap.Int("status", resp.StatusCode),
			zap.String("response", string(body)))
		return fmt.Errorf("directory %s: unexpected status %d", resource, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", resource, err)
	}
	return nil
}

// Verify interface compliance
var (
	_ port.EmployeeDirectory = (*HTTPDirectory)(nil)
	_ port.CityDirectory     = (*HTTPDirectory)(nil)
)
