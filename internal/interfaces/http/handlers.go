package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/garyjia/viaticos/internal/application/service"
	"github.com/garyjia/viaticos/internal/domain/shared"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	requests     service.RequestService
	approvals    service.ApprovalService
	liquidations service.LiquidationService
	services     Services
	logger       Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger Logger) *Handlers {
	return &Handlers{
		requests:     services.Requests,
		approvals:    services.Approvals,
		liquidations: services.Liquidations,
		services:     services,
		logger:       logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody describes a failed call
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Error codes returned in ErrorBody.Code
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeInvalidState    = "INVALID_STATE"
	CodeVersionConflict = "VERSION_CONFLICT"
	CodeInternal        = "INTERNAL_ERROR"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// GetRules handles GET /api/v1/perdiem/rules
func (h *Handlers) GetRules(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    h.services.Rules.Rules(),
	})
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

// fail maps an error to its HTTP status and writes the envelope
func (h *Handlers) fail(c *gin.Context, err error) {
	status, body := h.classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err,
		)
	}
	c.JSON(status, Response{Success: false, Error: &body})
}

func (h *Handlers) classify(err error) (int, ErrorBody) {
	var (
		verr      *shared.ValidationError
		stateErr  *shared.InvalidStateError
		conflict  *shared.ConcurrentModificationError
		fieldErrs validator.ValidationErrors
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)

	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, ErrorBody{Code: CodeValidation, Message: verr.Message, Field: verr.Field}
	case errors.As(err, &fieldErrs) && len(fieldErrs) > 0:
		fe := fieldErrs[0]
		return http.StatusBadRequest, ErrorBody{Code: CodeValidation, Message: validationMessage(fe), Field: fe.Field()}
	case errors.As(err, &typeErr):
		return http.StatusBadRequest, ErrorBody{Code: CodeValidation, Message: "has the wrong type", Field: typeErr.Field}
	case errors.As(err, &syntaxErr), errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return http.StatusBadRequest, ErrorBody{Code: CodeValidation, Message: "malformed JSON body", Field: "body"}
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound, ErrorBody{Code: CodeNotFound, Message: err.Error()}
	case errors.As(err, &stateErr):
		return http.StatusConflict, ErrorBody{Code: CodeInvalidState, Message: stateErr.Error()}
	case errors.As(err, &conflict):
		return http.StatusConflict, ErrorBody{Code: CodeVersionConflict, Message: conflict.Error()}
	case errors.Is(err, shared.ErrConfiguration):
		return http.StatusInternalServerError, ErrorBody{Code: CodeInternal, Message: "service is misconfigured"}
	default:
		return http.StatusInternalServerError, ErrorBody{Code: CodeInternal, Message: "internal error"}
	}
}

// pathID parses a UUID path parameter
func pathID(c *gin.Context, name string) (uuid.UUID, error) {
	raw := c.Param(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, shared.NewValidationError(name, "invalid id %q", raw)
	}
	return id, nil
}

// ifMatchVersion reads the expected version from the If-Match header.
// Both quoted and weak forms ("3", W/"3") are accepted.
func ifMatchVersion(c *gin.Context) (int, error) {
	raw := strings.TrimSpace(c.GetHeader("If-Match"))
	if raw == "" {
		return 0, shared.NewValidationError("If-Match", "is required")
	}
	raw = strings.Trim(strings.TrimPrefix(raw, "W/"), `"`)
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return 0, shared.NewValidationError("If-Match", "must be a positive version number")
	}
	return v, nil
}

// actor identifies the caller for history rows and events
func actor(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader("X-User-ID")); id != "" {
		return id
	}
	return "anonymous"
}

func setETag(c *gin.Context, version int) {
	c.Header("ETag", strconv.Quote(strconv.Itoa(version)))
}
