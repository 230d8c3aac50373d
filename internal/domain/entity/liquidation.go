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

// Comprobante is one expense receipt recorded against a liquidation
type Comprobante struct {
	ID            uuid.UUID         `json:"id"`
	LiquidationID uuid.UUID         `json:"liquidation_id"`
	Type          ItemType          `json:"type"`
	Subtype       string            `json:"subtype,omitempty"`
	Date          time.Time         `json:"date"`
	Amount        valueobject.Money `json:"amount"`
	Vendor        string            `json:"vendor,omitempty"`
	InvoiceNumber string            `json:"invoice_number,omitempty"`
	Note          string            `json:"note,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// ComprobanteInput is the caller-supplied data for a new receipt
type ComprobanteInput struct {
	Type          ItemType
	Subtype       string
	Date          time.Time
	Amount        decimal.Decimal
	Vendor        string
	InvoiceNumber string
	Note          string
}

// ComprobantePatch carries receipt changes; nil fields are unchanged
type ComprobantePatch struct {
	Type          *ItemType
	Subtype       *string
	Date          *time.Time
	Amount        *decimal.Decimal
	Vendor        *string
	InvoiceNumber *string
	Note          *string
}

func (c Comprobante) validate() error {
	if !c.Type.IsValid() {
		return shared.NewValidationError("type", "unknown item type %q", c.Type)
	}
	if c.Date.IsZero() {
		return shared.NewValidationError("date", "is required")
	}
	if c.Amount.IsNegative() {
		return shared.NewValidationError("amount", "must not be negative")
	}
	if !c.Amount.HasCurrencyPrecision() {
		return shared.NewValidationError("amount", "has more decimals than %s allows", c.Amount.Currency())
	}
	if !c.Amount.FitsMinorUnits() {
		return shared.NewValidationError("amount", "is out of range")
	}
	return nil
}

// Liquidation reconciles an approved request's authorized budget against receipts
type Liquidation struct {
	ID            uuid.UUID            `json:"id"`
	RequestID     uuid.UUID            `json:"request_id"`
	Currency      valueobject.Currency `json:"currency"`
	AssignedTotal valueobject.Money    `json:"assigned_total"`
	Comprobantes  []Comprobante        `json:"comprobantes"`
	SpentTotal    valueobject.Money    `json:"spent_total"`
	Difference    valueobject.Money    `json:"difference"`
	State         workflow.State       `json:"state"`
	Version       int                  `json:"version"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	ClosedAt      *time.Time           `json:"closed_at,omitempty"`
}

// NewLiquidation opens a liquidation for an Approved request; the assigned
// total is the request's authorized amount
func NewLiquidation(req *Request) (*Liquidation, error) {
	if req.State != workflow.StateApproved {
		return nil, shared.NewInvalidStateError(AggregateRequest, req.State.String(), workflow.TriggerOpenLiquidation.String())
	}
	if req.AuthorizedTotal == nil {
		return nil, shared.NewValidationError("authorized_total", "approved request %s has no authorized amount", req.ID)
	}

	now := time.Now().UTC()
	l := &Liquidation{
		ID:            uuid.New(),
		RequestID:     req.ID,
		Currency:      req.Currency,
		AssignedTotal: *req.AuthorizedTotal,
		Comprobantes:  []Comprobante{},
		State:         workflow.StateOpen,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := l.recalculate(l.Comprobantes); err != nil {
		return nil, err
	}
	return l, nil
}

// CheckVersion fails with ConcurrentModificationError when expected is stale
func (l *Liquidation) CheckVersion(expected int) error {
	if l.Version != expected {
		return shared.NewConcurrentModificationError(AggregateLiquidation, l.ID.String(), expected, l.Version)
	}
	return nil
}

// AllowedActions lists the triggers the current state permits
func (l *Liquidation) AllowedActions() []workflow.Trigger {
	if !l.State.IsValid() {
		return nil
	}
	return workflow.LiquidationMachine(l.State).PermittedTriggers()
}

// AddComprobante appends a receipt while Open
func (l *Liquidation) AddComprobante(in ComprobanteInput) (Comprobante, error) {
	var added Comprobante
	err := l.transition(workflow.TriggerRecordComprobante, func() error {
		amount, err := valueobject.NewMoney(in.Amount, l.Currency)
		if err != nil {
			return shared.NewValidationError("amount", "%v", err)
		}
		c := Comprobante{
			ID:            uuid.New(),
			LiquidationID: l.ID,
			Type:          in.Type,
			Subtype:       strings.TrimSpace(in.Subtype),
			Date:          in.Date,
			Amount:        amount,
			Vendor:        strings.TrimSpace(in.Vendor),
			InvoiceNumber: strings.TrimSpace(in.InvoiceNumber),
			Note:          in.Note,
			CreatedAt:     time.Now().UTC(),
		}
		if err := c.validate(); err != nil {
			return err
		}

		list := make([]Comprobante, 0, len(l.Comprobantes)+1)
		list = append(list, l.Comprobantes...)
		list = append(list, c)
		if err := l.recalculate(list); err != nil {
			return err
		}
		added = c
		return nil
	})
	return added, err
}

// UpdateComprobante edits a receipt while Open
func (l *Liquidation) UpdateComprobante(id uuid.UUID, patch ComprobantePatch) error {
	return l.transition(workflow.TriggerRecordComprobante, func() error {
		idx := l.indexOf(id)
		if idx < 0 {
			return fmt.Errorf("comprobante %s: %w", id, shared.ErrNotFound)
		}

		c := l.Comprobantes[idx]
		if patch.Type != nil {
			c.Type = *patch.Type
		}
		if patch.Subtype != nil {
			c.Subtype = strings.TrimSpace(*patch.Subtype)
		}
		if patch.Date != nil {
			c.Date = *patch.Date
		}
		if patch.Amount != nil {
			amount, err := valueobject.NewMoney(*patch.Amount, l.Currency)
			if err != nil {
				return shared.NewValidationError("amount", "%v", err)
			}
			c.Amount = amount
		}
		if patch.Vendor != nil {
			c.Vendor = strings.TrimSpace(*patch.Vendor)
		}
		if patch.InvoiceNumber != nil {
			c.InvoiceNumber = strings.TrimSpace(*patch.InvoiceNumber)
		}
		if patch.Note != nil {
			c.Note = *patch.Note
		}
		if err := c.validate(); err != nil {
			return err
		}

		list := make([]Comprobante, len(l.Comprobantes))
		copy(list, l.Comprobantes)
		list[idx] = c
		return l.recalculate(list)
	})
}

// RemoveComprobante deletes a receipt while Open
func (l *Liquidation) RemoveComprobante(id uuid.UUID) error {
	return l.transition(workflow.TriggerRecordComprobante, func() error {
		idx := l.indexOf(id)
		if idx < 0 {
			return fmt.Errorf("comprobante %s: %w", id, shared.ErrNotFound)
		}

		list := make([]Comprobante, 0, len(l.Comprobantes)-1)
		list = append(list, l.Comprobantes[:idx]...)
		list = append(list, l.Comprobantes[idx+1:]...)
		return l.recalculate(list)
	})
}

// Close ends the liquidation permanently. The difference may have either
// sign; it is recorded, not enforced.
func (l *Liquidation) Close() error {
	return l.transition(workflow.TriggerClose, func() error {
		now := time.Now().UTC()
		l.ClosedAt = &now
		return nil
	})
}

// IsOverspent reports whether receipts exceed the assigned total
func (l *Liquidation) IsOverspent() bool {
	return l.Difference.IsNegative()
}

func (l *Liquidation) transition(trigger workflow.Trigger, apply func() error) error {
	if !l.State.IsValid() {
		return shared.NewInvalidStateError(AggregateLiquidation, l.State.String(), trigger.String())
	}

	machine := workflow.LiquidationMachine(l.State)
	if !machine.CanFire(trigger) {
		return shared.NewInvalidStateError(AggregateLiquidation, l.State.String(), trigger.String())
	}

	if err := apply(); err != nil {
		return err
	}

	if err := machine.Fire(context.Background(), trigger); err != nil {
		return fmt.Errorf("liquidation %s: %w", l.ID, err)
	}

	l.State = machine.State()
	l.Version++
	l.UpdatedAt = time.Now().UTC()
	return nil
}

// recalculate derives spent and difference from the given list and swaps it in
func (l *Liquidation) recalculate(list []Comprobante) error {
	spent := valueobject.Zero(l.Currency)
	for _, c := range list {
		var err error
		spent, err = spent.Add(c.Amount)
		if err != nil {
			return shared.NewValidationError("amount", "%v", err)
		}
	}
	diff, err := l.AssignedTotal.Subtract(spent)
	if err != nil {
		return shared.NewValidationError("amount", "%v", err)
	}
	if !spent.FitsMinorUnits() || !diff.FitsMinorUnits() {
		return shared.NewValidationError("amount", "spent total is out of range")
	}

	l.Comprobantes = list
	l.SpentTotal = spent
	l.Difference = diff
	return nil
}

func (l *Liquidation) indexOf(id uuid.UUID) int {
	for i, c := range l.Comprobantes {
		if c.ID == id {
			return i
		}
	}
	return -1
}
