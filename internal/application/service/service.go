package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/viaticos/internal/application/dispatcher"
	"github.com/garyjia/viaticos/internal/application/port"
	"github.com/garyjia/viaticos/internal/domain/entity"
	"github.com/garyjia/viaticos/internal/domain/event"
	"github.com/garyjia/viaticos/internal/domain/shared"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// eventEmitter delivers events after commit. Delivery failures are logged
// and never undo the committed change.
type eventEmitter struct {
	dispatcher dispatcher.Dispatcher
	logger     Logger
}

func (e eventEmitter) emit(ctx context.Context, events ...*event.Event) {
	if e.dispatcher == nil {
		return
	}
	for _, evt := range events {
		if err := e.dispatcher.Dispatch(ctx, evt); err != nil {
			e.logger.Error("Event delivery failed",
				"error", err,
				"event_type", evt.Type,
				"aggregate_id", evt.AggregateID,
			)
		}
	}
}

func requestEvent(t event.Type, req *entity.Request, actor string) *event.Event {
	payload := map[string]interface{}{
		"state":           string(req.State),
		"requester_id":    req.RequesterID,
		"estimated_total": req.EstimatedTotal.StringFixed(),
		"currency":        string(req.Currency),
	}
	if req.AuthorizedTotal != nil {
		payload["authorized_total"] = req.AuthorizedTotal.StringFixed()
	}
	if req.RejectionReason != "" {
		payload["rejection_reason"] = req.RejectionReason
	}
	return event.NewEvent(t, entity.AggregateRequest, req.ID.String(), req.Version, payload).WithActor(actor)
}

func liquidationEvent(t event.Type, liq *entity.Liquidation, actor, correlationID string) *event.Event {
	payload := map[string]interface{}{
		"request_id":     liq.RequestID.String(),
		"state":          string(liq.State),
		"assigned_total": liq.AssignedTotal.StringFixed(),
		"spent_total":    liq.SpentTotal.StringFixed(),
		"difference":     liq.Difference.StringFixed(),
		"currency":       string(liq.Currency),
	}
	var evt *event.Event
	if correlationID != "" {
		evt = event.NewEventWithCorrelation(t, entity.AggregateLiquidation, liq.ID.String(), liq.Version, payload, correlationID)
	} else {
		evt = event.NewEvent(t, entity.AggregateLiquidation, liq.ID.String(), liq.Version, payload)
	}
	return evt.WithActor(actor)
}

func requireVersion(expected int) error {
	if expected < 1 {
		return shared.NewValidationError("expected_version", "is required")
	}
	return nil
}

// openLiquidation returns the request's liquidation, creating it when absent.
// Must run inside the caller's transaction.
func openLiquidation(ctx context.Context, repo port.LiquidationRepository, req *entity.Request) (*entity.Liquidation, bool, error) {
	existing, err := repo.GetByRequestID(ctx, req.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, false, fmt.Errorf("find liquidation: %w", err)
	}

	liq, err := entity.NewLiquidation(req)
	if err != nil {
		return nil, false, err
	}
	if err := repo.Create(ctx, liq); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			existing, getErr := repo.GetByRequestID(ctx, req.ID)
			if getErr != nil {
				return nil, false, fmt.Errorf("find liquidation: %w", getErr)
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("create liquidation: %w", err)
	}
	return liq, true, nil
}
