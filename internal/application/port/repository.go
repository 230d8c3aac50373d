package port

import (
	"context"

	"github.com/garyjia/viaticos/internal/domain/entity"
	"github.com/garyjia/viaticos/internal/domain/workflow"
	"github.com/google/uuid"
)

// RequestFilter narrows a request listing; zero values match everything
type RequestFilter struct {
	State       workflow.State
	RequesterID string
	ApproverID  string
	Limit       int
	Offset      int
}

// RequestRepository persists the request aggregate with its line items.
// Update and the history append enforce the stored version.
type RequestRepository interface {
	Create(ctx context.Context, req *entity.Request) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Request, error)
	// Update saves req if the stored version still equals expectedVersion
	Update(ctx context.Context, req *entity.Request, expectedVersion int) error
	List(ctx context.Context, filter RequestFilter) ([]*entity.Request, int, error)
	AppendHistory(ctx context.Context, t *entity.Transition) error
	GetHistory(ctx context.Context, requestID uuid.UUID) ([]*entity.Transition, error)
}

// LiquidationRepository persists the liquidation aggregate with its comprobantes.
// Create fails with shared.ErrAlreadyExists when the request already has one.
type LiquidationRepository interface {
	Create(ctx context.Context, liq *entity.Liquidation) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Liquidation, error)
	GetByRequestID(ctx context.Context, requestID uuid.UUID) (*entity.Liquidation, error)
	Update(ctx context.Context, liq *entity.Liquidation, expectedVersion int) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
