package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/garyjia/viaticos/internal/application/dispatcher"
	"github.com/garyjia/viaticos/internal/application/port"
	"github.com/garyjia/viaticos/internal/domain/entity"
	"github.com/garyjia/viaticos/internal/domain/event"
	"github.com/garyjia/viaticos/internal/domain/shared"
	"github.com/garyjia/viaticos/internal/domain/workflow"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Decision is a supervisor's verdict on a Submitted request
type Decision struct {
	Approve          bool
	AuthorizedAmount *decimal.Decimal
	Reason           string
	DecidedBy        string
	ExpectedVersion  int
}

// DecisionResult carries the decided request and, on approval, its liquidation
type DecisionResult struct {
	Request     *entity.Request
	Liquidation *entity.Liquidation
}

// ApprovalService applies approve/reject decisions
type ApprovalService interface {
	Decide(ctx context.Context, requestID uuid.UUID, d Decision) (*DecisionResult, error)
}

type approvalServiceImpl struct {
	requestRepo     port.RequestRepository
	liquidationRepo port.LiquidationRepository
	txManager       port.TransactionManager
	events          eventEmitter
	logger          Logger
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(
	requestRepo port.RequestRepository,
	liquidationRepo port.LiquidationRepository,
	txManager port.TransactionManager,
	events dispatcher.Dispatcher,
	logger Logger,
) ApprovalService {
	return &approvalServiceImpl{
		requestRepo:     requestRepo,
		liquidationRepo: liquidationRepo,
		txManager:       txManager,
		events:          eventEmitter{dispatcher: events, logger: logger},
		logger:          logger,
	}
}

// Validate checks the decision before the aggregate applies its own guards
func (d Decision) Validate() error {
	if err := requireVersion(d.ExpectedVersion); err != nil {
		return err
	}
	if d.Approve {
		if d.AuthorizedAmount == nil {
			return shared.NewValidationError("authorized_amount", "is required to approve")
		}
		if d.AuthorizedAmount.IsNegative() {
			return shared.NewValidationError("authorized_amount", "must not be negative")
		}
		return nil
	}
	if strings.TrimSpace(d.Reason) == "" {
		return shared.NewValidationError("reason", "is required to reject")
	}
	return nil
}

// Decide approves or rejects a request. Approval opens the liquidation in the
// same transaction, so an Approved request always has one.
func (s *approvalServiceImpl) Decide(ctx context.Context, requestID uuid.UUID, d Decision) (*DecisionResult, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	action := workflow.TriggerReject
	if d.Approve {
		action = workflow.TriggerApprove
	}

	var (
		result  DecisionResult
		created bool
	)
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := s.requestRepo.GetByID(txCtx, requestID)
		if err != nil {
			return err
		}
		if err := req.CheckVersion(d.ExpectedVersion); err != nil {
			return err
		}

		previous := req.State
		if d.Approve {
			err = req.Approve(*d.AuthorizedAmount, d.DecidedBy)
		} else {
			err = req.Reject(d.Reason, d.DecidedBy)
		}
		if err != nil {
			return err
		}

		if err := s.requestRepo.Update(txCtx, req, d.ExpectedVersion); err != nil {
			return err
		}
		tr := entity.NewTransition(req, previous, action.String(), d.DecidedBy, req.RejectionReason)
		if err := s.requestRepo.AppendHistory(txCtx, &tr); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		result.Request = req

		if d.Approve {
			liq, isNew, err := openLiquidation(txCtx, s.liquidationRepo, req)
			if err != nil {
				return err
			}
			result.Liquidation = liq
			created = isNew
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Decision failed", "error", err, "request_id", requestID, "action", action)
		return nil, err
	}

	if d.Approve {
		s.logger.Info("Request approved",
			"id", requestID,
			"authorized_total", result.Request.AuthorizedTotal.String(),
			"liquidation_id", result.Liquidation.ID,
		)
		approved := requestEvent(event.TypeRequestApproved, result.Request, d.DecidedBy)
		events := []*event.Event{approved}
		if created {
			events = append(events, liquidationEvent(event.TypeLiquidationOpened, result.Liquidation, d.DecidedBy, approved.CorrelationID))
		}
		s.events.emit(ctx, events...)
	} else {
		s.logger.Info("Request rejected", "id", requestID, "reason", result.Request.RejectionReason)
		s.events.emit(ctx, requestEvent(event.TypeRequestRejected, result.Request, d.DecidedBy))
	}

	return &result, nil
}
