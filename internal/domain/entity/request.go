package entity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/viaticos/internal/domain/shared"
	"github.com/garyjia/viaticos/internal/domain/valueobject"
	"github.com/garyjia/viaticos/internal/domain/workflow"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Header holds the trip data a traveler fills in for a request (solicitud)
type Header struct {
	RequesterID       string               `json:"requester_id"`
	ApproverID        string               `json:"approver_id"`
	OriginCityID      string               `json:"origin_city_id"`
	DestinationCityID string               `json:"destination_city_id"`
	DepartureAt       time.Time            `json:"departure_at"`
	ReturnAt          time.Time            `json:"return_at"`
	Currency          valueobject.Currency `json:"currency"`
	PurposeNote       string               `json:"purpose_note,omitempty"`
}

// Validate checks the header fields a draft must always satisfy.
// City references are only required at submission.
func (h Header) Validate() error {
	if strings.TrimSpace(h.RequesterID) == "" {
		return shared.NewValidationError("requester_id", "is required")
	}
	if strings.TrimSpace(h.ApproverID) == "" {
		return shared.NewValidationError("approver_id", "is required")
	}
	if h.DepartureAt.IsZero() {
		return shared.NewValidationError("departure_at", "is required")
	}
	if h.ReturnAt.IsZero() {
		return shared.NewValidationError("return_at", "is required")
	}
	if h.ReturnAt.Before(h.DepartureAt) {
		return shared.NewValidationError("return_at", "must not precede departure_at")
	}
	if !h.Currency.IsValid() {
		return shared.NewValidationError("currency", "invalid currency code %q", h.Currency)
	}
	return nil
}

// TripLengthDays counts calendar days from departure to return, both inclusive
func (h Header) TripLengthDays() int {
	dep := time.Date(h.DepartureAt.Year(), h.DepartureAt.Month(), h.DepartureAt.Day(), 0, 0, 0, 0, time.UTC)
	ret := time.Date(h.ReturnAt.Year(), h.ReturnAt.Month(), h.ReturnAt.Day(), 0, 0, 0, 0, time.UTC)
	if ret.Before(dep) {
		return 0
	}
	return int(ret.Sub(dep).Hours()/24) + 1
}

// HeaderPatch carries header changes; nil fields are unchanged.
// Currency is fixed at creation because items are priced in it.
type HeaderPatch struct {
	ApproverID        *string
	OriginCityID      *string
	DestinationCityID *string
	DepartureAt       *time.Time
	ReturnAt          *time.Time
	PurposeNote       *string
}

// Apply returns the patched header
func (p HeaderPatch) Apply(h Header) Header {
	if p.ApproverID != nil {
		h.ApproverID = *p.ApproverID
	}
	if p.OriginCityID != nil {
		h.OriginCityID = *p.OriginCityID
	}
	if p.DestinationCityID != nil {
		h.DestinationCityID = *p.DestinationCityID
	}
	if p.DepartureAt != nil {
		h.DepartureAt = *p.DepartureAt
	}
	if p.ReturnAt != nil {
		h.ReturnAt = *p.ReturnAt
	}
	if p.PurposeNote != nil {
		h.PurposeNote = *p.PurposeNote
	}
	return h
}

// Request is the travel-expense request aggregate
type Request struct {
	ID uuid.UUID `json:"id"`
	Header
	State           workflow.State     `json:"state"`
	LineItems       []LineItem         `json:"line_items"`
	EstimatedTotal  valueobject.Money  `json:"estimated_total"`
	AuthorizedTotal *valueobject.Money `json:"authorized_total,omitempty"`
	RejectionReason string             `json:"rejection_reason,omitempty"`
	DecidedBy       string             `json:"decided_by,omitempty"`
	Version         int                `json:"version"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	SubmittedAt     *time.Time         `json:"submitted_at,omitempty"`
	DecidedAt       *time.Time         `json:"decided_at,omitempty"`
	ClosedAt        *time.Time         `json:"closed_at,omitempty"`
}

// NewRequest creates a Draft request from a header and its generated items
func NewRequest(header Header, items []LineItem) (*Request, error) {
	if err := header.Validate(); err != nil {
		return nil, err
	}

	owned := make([]LineItem, len(items))
	for i, item := range items {
		if item.UnitAmount.Currency() != header.Currency {
			return nil, shared.NewValidationError("line_items", "item %d is priced in %s, request uses %s",
				i, item.UnitAmount.Currency(), header.Currency)
		}
		item.Editable = true
		owned[i] = item
	}

	total, err := sumItems(header.Currency, owned)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Request{
		ID:             uuid.New(),
		Header:         header,
		State:          workflow.StateDraft,
		LineItems:      owned,
		EstimatedTotal: total,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// CheckVersion fails with ConcurrentModificationError when expected is stale
func (r *Request) CheckVersion(expected int) error {
	if r.Version != expected {
		return shared.NewConcurrentModificationError(AggregateRequest, r.ID.String(), expected, r.Version)
	}
	return nil
}

// AllowedActions lists the triggers the current state permits
func (r *Request) AllowedActions() []workflow.Trigger {
	if !r.State.IsValid() {
		return nil
	}
	return workflow.RequestMachine(r.State).PermittedTriggers()
}

// UpdateHeader edits header fields while Draft. A date change that shortens
// the trip must still cover every meal and lodging quantity.
func (r *Request) UpdateHeader(patch HeaderPatch) error {
	return r.transition(workflow.TriggerEdit, func() error {
		next := patch.Apply(r.Header)
		if err := next.Validate(); err != nil {
			return err
		}
		if days := next.TripLengthDays(); days < r.TripLengthDays() {
			field := "departure_at"
			if patch.ReturnAt != nil {
				field = "return_at"
			}
			if err := itemsFitTrip(field, r.LineItems, days); err != nil {
				return err
			}
		}
		r.Header = next
		return nil
	})
}

// UpdateItem edits one line item while Draft and recomputes the total
func (r *Request) UpdateItem(id uuid.UUID, patch ItemPatch) error {
	return r.transition(workflow.TriggerEdit, func() error {
		idx := r.indexOf(id)
		if idx < 0 {
			return fmt.Errorf("line item %s: %w", id, shared.ErrNotFound)
		}
		updated, err := r.LineItems[idx].apply(patch)
		if err != nil {
			return err
		}

		items := make([]LineItem, len(r.LineItems))
		copy(items, r.LineItems)
		items[idx] = updated
		return r.replaceItems(items)
	})
}

// RemoveItem deletes one line item while Draft and recomputes the total
func (r *Request) RemoveItem(id uuid.UUID) error {
	return r.transition(workflow.TriggerEdit, func() error {
		idx := r.indexOf(id)
		if idx < 0 {
			return fmt.Errorf("line item %s: %w", id, shared.ErrNotFound)
		}

		items := make([]LineItem, 0, len(r.LineItems)-1)
		items = append(items, r.LineItems[:idx]...)
		items = append(items, r.LineItems[idx+1:]...)
		return r.replaceItems(items)
	})
}

// Submit moves a Draft request to Submitted and freezes its items
func (r *Request) Submit() error {
	return r.transition(workflow.TriggerSubmit, func() error {
		if len(r.LineItems) == 0 {
			return shared.NewValidationError("line_items", "at least one line item is required")
		}
		if !r.DepartureAt.Before(r.ReturnAt) {
			return shared.NewValidationError("return_at", "must be after departure_at")
		}
		if strings.TrimSpace(r.OriginCityID) == "" {
			return shared.NewValidationError("origin_city_id", "is required")
		}
		if strings.TrimSpace(r.DestinationCityID) == "" {
			return shared.NewValidationError("destination_city_id", "is required")
		}

		for i := range r.LineItems {
			r.LineItems[i].Editable = false
		}
		now := time.Now().UTC()
		r.SubmittedAt = &now
		return nil
	})
}

// Approve records the supervisor's decision and the authorized amount,
// which may differ from the estimate
func (r *Request) Approve(authorized decimal.Decimal, decidedBy string) error {
	return r.transition(workflow.TriggerApprove, func() error {
		if authorized.IsNegative() {
			return shared.NewValidationError("authorized_amount", "must not be negative")
		}
		amount, err := valueobject.NewMoney(authorized, r.Currency)
		if err != nil {
			return shared.NewValidationError("authorized_amount", "%v", err)
		}
		if !amount.HasCurrencyPrecision() {
			return shared.NewValidationError("authorized_amount", "has more decimals than %s allows", r.Currency)
		}
		if !amount.FitsMinorUnits() {
			return shared.NewValidationError("authorized_amount", "is out of range")
		}

		now := time.Now().UTC()
		r.AuthorizedTotal = &amount
		r.DecidedBy = decidedBy
		r.DecidedAt = &now
		return nil
	})
}

// Reject terminates a Submitted request
func (r *Request) Reject(reason, decidedBy string) error {
	return r.transition(workflow.TriggerReject, func() error {
		reason = strings.TrimSpace(reason)
		if reason == "" {
			return shared.NewValidationError("reason", "is required")
		}

		now := time.Now().UTC()
		r.RejectionReason = reason
		r.DecidedBy = decidedBy
		r.DecidedAt = &now
		return nil
	})
}

// MarkClosed mirrors the closing of the request's liquidation
func (r *Request) MarkClosed() error {
	return r.transition(workflow.TriggerClose, func() error {
		now := time.Now().UTC()
		r.ClosedAt = &now
		return nil
	})
}

// transition checks the trigger against the lifecycle, runs apply, then fires.
// apply must leave the request untouched when it returns an error.
func (r *Request) transition(trigger workflow.Trigger, apply func() error) error {
	if !r.State.IsValid() {
		return shared.NewInvalidStateError(AggregateRequest, r.State.String(), trigger.String())
	}

	machine := workflow.RequestMachine(r.State)
	if !machine.CanFire(trigger) {
		return shared.NewInvalidStateError(AggregateRequest, r.State.String(), trigger.String())
	}

	if err := apply(); err != nil {
		return err
	}

	if err := machine.Fire(context.Background(), trigger); err != nil {
		return fmt.Errorf("request %s: %w", r.ID, err)
	}

	r.State = machine.State()
	r.Version++
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// replaceItems swaps the item list and total together
func (r *Request) replaceItems(items []LineItem) error {
	total, err := sumItems(r.Currency, items)
	if err != nil {
		return err
	}
	r.LineItems = items
	r.EstimatedTotal = total
	return nil
}

func (r *Request) indexOf(id uuid.UUID) int {
	for i, item := range r.LineItems {
		if item.ID == id {
			return i
		}
	}
	return -1
}

// itemsFitTrip checks day-based items against the trip length
func itemsFitTrip(field string, items []LineItem, days int) error {
	limit := decimal.NewFromInt(int64(days))
	for _, item := range items {
		if !item.Type.IsDayBased() {
			continue
		}
		if item.Quantity.GreaterThan(limit) {
			return shared.NewValidationError(field, "trip of %d days is shorter than %s %s", days, item.Quantity, item.Type)
		}
	}
	return nil
}

func sumItems(currency valueobject.Currency, items []LineItem) (valueobject.Money, error) {
	total := valueobject.Zero(currency)
	for _, item := range items {
		var err error
		total, err = total.Add(item.ComputedAmount)
		if err != nil {
			return valueobject.Money{}, shared.NewValidationError("line_items", "%v", err)
		}
	}
	if !total.FitsMinorUnits() {
		return valueobject.Money{}, shared.NewValidationError("line_items", "estimated total is out of range")
	}
	return total, nil
}
