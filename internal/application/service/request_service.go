package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/garyjia/viaticos/internal/application/dispatcher"
	"github.com/garyjia/viaticos/internal/application/port"
	"github.com/garyjia/viaticos/internal/domain/entity"
	"github.com/garyjia/viaticos/internal/domain/event"
	"github.com/garyjia/viaticos/internal/domain/perdiem"
	"github.com/garyjia/viaticos/internal/domain/shared"
	"github.com/garyjia/viaticos/internal/domain/workflow"
	"github.com/google/uuid"
)

// CreateRequestInput is the header plus the options used to generate items
type CreateRequestInput struct {
	Header  entity.Header
	Options perdiem.Options
	Actor   string
}

// RequestService manages travel requests while they are drafted and submitted
type RequestService interface {
	Create(ctx context.Context, in CreateRequestInput) (*entity.Request, error)
	Get(ctx context.Context, id uuid.UUID) (*entity.Request, error)
	List(ctx context.Context, filter port.RequestFilter) ([]*entity.Request, int, error)
	History(ctx context.Context, id uuid.UUID) ([]*entity.Transition, error)
	UpdateHeader(ctx context.Context, id uuid.UUID, expectedVersion int, patch entity.HeaderPatch, actor string) (*entity.Request, error)
	UpdateItem(ctx context.Context, id, itemID uuid.UUID, expectedVersion int, patch entity.ItemPatch, actor string) (*entity.Request, error)
	RemoveItem(ctx context.Context, id, itemID uuid.UUID, expectedVersion int, actor string) (*entity.Request, error)
	Submit(ctx context.Context, id uuid.UUID, expectedVersion int, actor string) (*entity.Request, error)
}

type requestServiceImpl struct {
	requestRepo port.RequestRepository
	txManager   port.TransactionManager
	rules       port.RuleSetProvider
	employees   port.EmployeeDirectory
	cities      port.CityDirectory
	events      eventEmitter
	logger      Logger
}

// NewRequestService creates a new RequestService
func NewRequestService(
	requestRepo port.RequestRepository,
	txManager port.TransactionManager,
	rules port.RuleSetProvider,
	employees port.EmployeeDirectory,
	cities port.CityDirectory,
	events dispatcher.Dispatcher,
	logger Logger,
) RequestService {
	return &requestServiceImpl{
		requestRepo: requestRepo,
		txManager:   txManager,
		rules:       rules,
		employees:   employees,
		cities:      cities,
		events:      eventEmitter{dispatcher: events, logger: logger},
		logger:      logger,
	}
}

// Create generates line items from the options and stores a new Draft
func (s *requestServiceImpl) Create(ctx context.Context, in CreateRequestInput) (*entity.Request, error) {
	rules := s.rules.Rules()
	header := in.Header
	if header.Currency == "" {
		header.Currency = rules.Currency
	}
	if header.Currency != rules.Currency {
		return nil, shared.NewValidationError("currency", "must be %s, the per-diem table currency", rules.Currency)
	}
	if err := header.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkReferences(ctx, header); err != nil {
		return nil, err
	}

	items, err := perdiem.Generate(rules, in.Options, header.TripLengthDays())
	if err != nil {
		if errors.Is(err, shared.ErrConfiguration) {
			s.logger.Error("Per-diem table is missing an entry", "error", err, "requester_id", header.RequesterID)
		}
		return nil, err
	}

	req, err := entity.NewRequest(header, items)
	if err != nil {
		return nil, err
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.requestRepo.Create(txCtx, req); err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		tr := entity.NewTransition(req, "", entity.ActionCreate, in.Actor, "")
		if err := s.requestRepo.AppendHistory(txCtx, &tr); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to create request", "error", err, "requester_id", header.RequesterID)
		return nil, err
	}

	s.logger.Info("Request created",
		"id", req.ID,
		"items", len(req.LineItems),
		"estimated_total", req.EstimatedTotal.String(),
	)
	s.events.emit(ctx, requestEvent(event.TypeRequestCreated, req, in.Actor))
	return req, nil
}

// Get retrieves a request by ID
func (s *requestServiceImpl) Get(ctx context.Context, id uuid.UUID) (*entity.Request, error) {
	req, err := s.requestRepo.GetByID(ctx, id)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			s.logger.Error("Failed to get request", "error", err, "id", id)
		}
		return nil, err
	}
	return req, nil
}

// List returns a page of requests and the total match count
func (s *requestServiceImpl) List(ctx context.Context, filter port.RequestFilter) ([]*entity.Request, int, error) {
	if filter.State != "" && !filter.State.IsValid() {
		return nil, 0, shared.NewValidationError("state", "unknown state %q", filter.State)
	}
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	reqs, total, err := s.requestRepo.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list requests", "error", err, "limit", filter.Limit, "offset", filter.Offset)
		return nil, 0, err
	}
	return reqs, total, nil
}

// History returns the request's transitions, oldest first
func (s *requestServiceImpl) History(ctx context.Context, id uuid.UUID) ([]*entity.Transition, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.requestRepo.GetHistory(ctx, id)
}

// UpdateHeader edits header fields of a Draft
func (s *requestServiceImpl) UpdateHeader(ctx context.Context, id uuid.UUID, expectedVersion int, patch entity.HeaderPatch, actor string) (*entity.Request, error) {
	return s.mutate(ctx, id, expectedVersion, workflow.TriggerEdit, actor, event.TypeRequestUpdated, func(ctx context.Context, req *entity.Request) error {
		if err := req.UpdateHeader(patch); err != nil {
			return err
		}
		return s.checkReferences(ctx, req.Header)
	})
}

// UpdateItem edits one line item of a Draft
func (s *requestServiceImpl) UpdateItem(ctx context.Context, id, itemID uuid.UUID, expectedVersion int, patch entity.ItemPatch, actor string) (*entity.Request, error) {
	if patch.IsEmpty() {
		return nil, shared.NewValidationError("item", "no fields to update")
	}
	return s.mutate(ctx, id, expectedVersion, workflow.TriggerEdit, actor, event.TypeRequestUpdated, func(_ context.Context, req *entity.Request) error {
		return req.UpdateItem(itemID, patch)
	})
}

// RemoveItem deletes one line item of a Draft
func (s *requestServiceImpl) RemoveItem(ctx context.Context, id, itemID uuid.UUID, expectedVersion int, actor string) (*entity.Request, error) {
	return s.mutate(ctx, id, expectedVersion, workflow.TriggerEdit, actor, event.TypeRequestUpdated, func(_ context.Context, req *entity.Request) error {
		return req.RemoveItem(itemID)
	})
}

// Submit sends a Draft for approval
func (s *requestServiceImpl) Submit(ctx context.Context, id uuid.UUID, expectedVersion int, actor string) (*entity.Request, error) {
	return s.mutate(ctx, id, expectedVersion, workflow.TriggerSubmit, actor, event.TypeRequestSubmitted, func(_ context.Context, req *entity.Request) error {
		return req.Submit()
	})
}

// mutate loads, version-checks, changes and saves a request in one transaction
func (s *requestServiceImpl) mutate(
	ctx context.Context,
	id uuid.UUID,
	expectedVersion int,
	action workflow.Trigger,
	actor string,
	eventType event.Type,
	fn func(ctx context.Context, req *entity.Request) error,
) (*entity.Request, error) {
	if err := requireVersion(expectedVersion); err != nil {
		return nil, err
	}

	var req *entity.Request
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		current, err := s.requestRepo.GetByID(txCtx, id)
		if err != nil {
			return err
		}
		if err := current.CheckVersion(expectedVersion); err != nil {
			return err
		}

		previous := current.State
		if err := fn(txCtx, current); err != nil {
			return err
		}
		if err := s.requestRepo.Update(txCtx, current, expectedVersion); err != nil {
			return err
		}
		tr := entity.NewTransition(current, previous, action.String(), actor, "")
		if err := s.requestRepo.AppendHistory(txCtx, &tr); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		req = current
		return nil
	})
	if err != nil {
		s.logger.Error("Request update failed", "error", err, "id", id, "action", action)
		return nil, err
	}

	s.logger.Info("Request updated", "id", id, "action", action, "state", req.State, "version", req.Version)
	s.events.emit(ctx, requestEvent(eventType, req, actor))
	return req, nil
}

// checkReferences verifies people and cities against the directories.
// City ids may still be blank on a Draft.
func (s *requestServiceImpl) checkReferences(ctx context.Context, h entity.Header) error {
	for _, ref := range []struct{ field, id string }{
		{"requester_id", h.RequesterID},
		{"approver_id", h.ApproverID},
	} {
		if _, err := s.employees.GetEmployee(ctx, ref.id); err != nil {
			return directoryError(ref.field, ref.id, err)
		}
	}

	for _, ref := range []struct{ field, id string }{
		{"origin_city_id", h.OriginCityID},
		{"destination_city_id", h.DestinationCityID},
	} {
		if ref.id == "" {
			continue
		}
		if _, err := s.cities.GetCity(ctx, ref.id); err != nil {
			return directoryError(ref.field, ref.id, err)
		}
	}
	return nil
}

func directoryError(field, id string, err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NewValidationError(field, "unknown reference %q", id)
	}
	return fmt.Errorf("directory lookup %s: %w", field, err)
}
