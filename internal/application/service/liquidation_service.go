package service

import (
	"context"
	"fmt"
	"io"

	"github.com/garyjia/viaticos/internal/application/dispatcher"
	"github.com/garyjia/viaticos/internal/application/port"
	"github.com/garyjia/viaticos/internal/domain/entity"
	"github.com/garyjia/viaticos/internal/domain/event"
	"github.com/garyjia/viaticos/internal/domain/shared"
	"github.com/garyjia/viaticos/internal/domain/workflow"
	"github.com/google/uuid"
)

// CloseResult carries the closed liquidation and its now-closed request
type CloseResult struct {
	Liquidation *entity.Liquidation
	Request     *entity.Request
}

// LiquidationService manages post-trip reconciliation
type LiquidationService interface {
	Open(ctx context.Context, requestID uuid.UUID, actor string) (*entity.Liquidation, error)
	Get(ctx context.Context, id uuid.UUID) (*entity.Liquidation, error)
	GetByRequest(ctx context.Context, requestID uuid.UUID) (*entity.Liquidation, error)
	AddComprobante(ctx context.Context, id uuid.UUID, expectedVersion int, in entity.ComprobanteInput, actor string) (*entity.Liquidation, error)
	UpdateComprobante(ctx context.Context, id, comprobanteID uuid.UUID, expectedVersion int, patch entity.ComprobantePatch, actor string) (*entity.Liquidation, error)
	RemoveComprobante(ctx context.Context, id, comprobanteID uuid.UUID, expectedVersion int, actor string) (*entity.Liquidation, error)
	Close(ctx context.Context, id uuid.UUID, expectedVersion int, actor string) (*CloseResult, error)
	ExportReport(ctx context.Context, id uuid.UUID, w io.Writer) error
}

type liquidationServiceImpl struct {
	requestRepo     port.RequestRepository
	liquidationRepo port.LiquidationRepository
	txManager       port.TransactionManager
	report          port.ReportWriter
	events          eventEmitter
	logger          Logger
}

// NewLiquidationService creates a new LiquidationService
func NewLiquidationService(
	requestRepo port.RequestRepository,
	liquidationRepo port.LiquidationRepository,
	txManager port.TransactionManager,
	report port.ReportWriter,
	events dispatcher.Dispatcher,
	logger Logger,
) LiquidationService {
	return &liquidationServiceImpl{
		requestRepo:     requestRepo,
		liquidationRepo: liquidationRepo,
		txManager:       txManager,
		report:          report,
		events:          eventEmitter{dispatcher: events, logger: logger},
		logger:          logger,
	}
}

// Open returns the request's liquidation, creating it if the request is
// Approved and has none yet. Repeated calls return the same liquidation.
func (s *liquidationServiceImpl) Open(ctx context.Context, requestID uuid.UUID, actor string) (*entity.Liquidation, error) {
	var (
		liq     *entity.Liquidation
		created bool
	)
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		req, err := s.requestRepo.GetByID(txCtx, requestID)
		if err != nil {
			return err
		}
		liq, created, err = openLiquidation(txCtx, s.liquidationRepo, req)
		return err
	})
	if err != nil {
		s.logger.Error("Failed to open liquidation", "error", err, "request_id", requestID)
		return nil, err
	}

	if created {
		s.logger.Info("Liquidation opened", "id", liq.ID, "request_id", requestID)
		s.events.emit(ctx, liquidationEvent(event.TypeLiquidationOpened, liq, actor, ""))
	}
	return liq, nil
}

// Get retrieves a liquidation by ID
func (s *liquidationServiceImpl) Get(ctx context.Context, id uuid.UUID) (*entity.Liquidation, error) {
	return s.liquidationRepo.GetByID(ctx, id)
}

// GetByRequest retrieves the liquidation of a request
func (s *liquidationServiceImpl) GetByRequest(ctx context.Context, requestID uuid.UUID) (*entity.Liquidation, error) {
	return s.liquidationRepo.GetByRequestID(ctx, requestID)
}

// AddComprobante records a receipt
func (s *liquidationServiceImpl) AddComprobante(ctx context.Context, id uuid.UUID, expectedVersion int, in entity.ComprobanteInput, actor string) (*entity.Liquidation, error) {
	var added entity.Comprobante
	liq, err := s.mutate(ctx, id, expectedVersion, func(liq *entity.Liquidation) error {
		var err error
		added, err = liq.AddComprobante(in)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.emitRecorded(ctx, liq, "add", added.ID, actor)
	return liq, nil
}

// UpdateComprobante edits a receipt
func (s *liquidationServiceImpl) UpdateComprobante(ctx context.Context, id, comprobanteID uuid.UUID, expectedVersion int, patch entity.ComprobantePatch, actor string) (*entity.Liquidation, error) {
	liq, err := s.mutate(ctx, id, expectedVersion, func(liq *entity.Liquidation) error {
		return liq.UpdateComprobante(comprobanteID, patch)
	})
	if err != nil {
		return nil, err
	}

	s.emitRecorded(ctx, liq, "update", comprobanteID, actor)
	return liq, nil
}

// RemoveComprobante deletes a receipt
func (s *liquidationServiceImpl) RemoveComprobante(ctx context.Context, id, comprobanteID uuid.UUID, expectedVersion int, actor string) (*entity.Liquidation, error) {
	liq, err := s.mutate(ctx, id, expectedVersion, func(liq *entity.Liquidation) error {
		return liq.RemoveComprobante(comprobanteID)
	})
	if err != nil {
		return nil, err
	}

	s.emitRecorded(ctx, liq, "remove", comprobanteID, actor)
	return liq, nil
}

// Close ends the liquidation and marks its request Closed in one transaction.
// Overspent liquidations close like any other; the difference is recorded.
func (s *liquidationServiceImpl) Close(ctx context.Context, id uuid.UUID, expectedVersion int, actor string) (*CloseResult, error) {
	if err := requireVersion(expectedVersion); err != nil {
		return nil, err
	}

	var result CloseResult
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		liq, err := s.liquidationRepo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if err := liq.CheckVersion(expectedVersion); err != nil {
			return err
		}
		if err := liq.Close(); err != nil {
			return err
		}
		if err := s.liquidationRepo.Update(txCtx, liq, expectedVersion); err != nil {
			return err
		}

		req, err := s.requestRepo.GetByID(txCtx, liq.RequestID)
		if err != nil {
			return fmt.Errorf("load request %s: %w", liq.RequestID, err)
		}
		loaded := req.Version
		previous := req.State
		if err := req.MarkClosed(); err != nil {
			return err
		}
		if err := s.requestRepo.Update(txCtx, req, loaded); err != nil {
			return err
		}
		note := fmt.Sprintf("liquidation closed, difference %s", liq.Difference)
		tr := entity.NewTransition(req, previous, workflow.TriggerClose.String(), actor, note)
		if err := s.requestRepo.AppendHistory(txCtx, &tr); err != nil {
			return fmt.Errorf("append history: %w", err)
		}

		result = CloseResult{Liquidation: liq, Request: req}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to close liquidation", "error", err, "id", id)
		return nil, err
	}

	s.logger.Info("Liquidation closed",
		"id", id,
		"request_id", result.Request.ID,
		"difference", result.Liquidation.Difference.String(),
		"overspent", result.Liquidation.IsOverspent(),
	)
	closed := liquidationEvent(event.TypeLiquidationClosed, result.Liquidation, actor, "")
	reqClosed := requestEvent(event.TypeRequestClosed, result.Request, actor)
	reqClosed.CorrelationID = closed.CorrelationID
	s.events.emit(ctx, closed, reqClosed)
	return &result, nil
}

// ExportReport writes the reconciliation workbook of a liquidation
func (s *liquidationServiceImpl) ExportReport(ctx context.Context, id uuid.UUID, w io.Writer) error {
	if s.report == nil {
		return shared.NewConfigurationError("report", "no report writer configured")
	}

	liq, err := s.liquidationRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	req, err := s.requestRepo.GetByID(ctx, liq.RequestID)
	if err != nil {
		return fmt.Errorf("load request %s: %w", liq.RequestID, err)
	}

	if err := s.report.WriteLiquidation(w, req, liq); err != nil {
		s.logger.Error("Failed to write report", "error", err, "id", id)
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

func (s *liquidationServiceImpl) mutate(ctx context.Context, id uuid.UUID, expectedVersion int, fn func(liq *entity.Liquidation) error) (*entity.Liquidation, error) {
	if err := requireVersion(expectedVersion); err != nil {
		return nil, err
	}

	var liq *entity.Liquidation
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		current, err := s.liquidationRepo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if err := current.CheckVersion(expectedVersion); err != nil {
			return err
		}
		if err := fn(current); err != nil {
			return err
		}
		if err := s.liquidationRepo.Update(txCtx, current, expectedVersion); err != nil {
			return err
		}
		liq = current
		return nil
	})
	if err != nil {
		s.logger.Error("Liquidation update failed", "error", err, "id", id)
		return nil, err
	}
	return liq, nil
}

func (s *liquidationServiceImpl) emitRecorded(ctx context.Context, liq *entity.Liquidation, op string, comprobanteID uuid.UUID, actor string) {
	s.logger.Info("Comprobante recorded",
		"liquidation_id", liq.ID,
		"operation", op,
		"comprobante_id", comprobanteID,
		"spent_total", liq.SpentTotal.String(),
	)
	evt := liquidationEvent(event.TypeComprobanteRecorded, liq, actor, "").
		WithPayload("operation", op).
		WithPayload("comprobante_id", comprobanteID.String())
	s.events.emit(ctx, evt)
}
