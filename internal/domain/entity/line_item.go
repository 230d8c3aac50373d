package entity

import (
	"time"

	"github.com/garyjia/viaticos/internal/domain/shared"
	"github.com/garyjia/viaticos/internal/domain/valueobject"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineItem is one entry of a request's per-diem budget.
// ComputedAmount is always Quantity × UnitAmount rounded once to the currency.
type LineItem struct {
	ID             uuid.UUID         `json:"id"`
	Type           ItemType          `json:"type"`
	Subtype        string            `json:"subtype,omitempty"`
	Date           *time.Time        `json:"date,omitempty"`
	Quantity       decimal.Decimal   `json:"quantity"`
	UnitAmount     valueobject.Money `json:"unit_amount"`
	ComputedAmount valueobject.Money `json:"computed_amount"`
	Note           string            `json:"note,omitempty"`
	Editable       bool              `json:"editable"`
}

// NewLineItem creates an editable line item and computes its amount
func NewLineItem(itemType ItemType, subtype string, date *time.Time, quantity decimal.Decimal, unit valueobject.Money) (LineItem, error) {
	item := LineItem{
		ID:         uuid.New(),
		Type:       itemType,
		Subtype:    subtype,
		Date:       date,
		Quantity:   quantity,
		UnitAmount: unit,
		Editable:   true,
	}
	if err := item.validate(); err != nil {
		return LineItem{}, err
	}
	item.compute()
	return item, nil
}

func (i *LineItem) validate() error {
	if !i.Type.IsValid() {
		return shared.NewValidationError("type", "unknown item type %q", i.Type)
	}
	if i.Quantity.IsNegative() {
		return shared.NewValidationError("quantity", "must not be negative")
	}
	if i.UnitAmount.IsNegative() {
		return shared.NewValidationError("unit_amount", "must not be negative")
	}
	if !i.UnitAmount.HasCurrencyPrecision() {
		return shared.NewValidationError("unit_amount", "has more decimals than %s allows", i.UnitAmount.Currency())
	}
	if !i.UnitAmount.Multiply(i.Quantity).RoundToCurrency().FitsMinorUnits() {
		return shared.NewValidationError("quantity", "computed amount is out of range")
	}
	return nil
}

func (i *LineItem) compute() {
	i.ComputedAmount = i.UnitAmount.Multiply(i.Quantity).RoundToCurrency()
}

// ItemPatch carries the editable fields of a line item; nil fields are unchanged
type ItemPatch struct {
	Subtype    *string
	Date       *time.Time
	Quantity   *decimal.Decimal
	UnitAmount *decimal.Decimal
	Note       *string
}

// IsEmpty reports whether the patch changes nothing
func (p ItemPatch) IsEmpty() bool {
	return p.Subtype == nil && p.Date == nil && p.Quantity == nil && p.UnitAmount == nil && p.Note == nil
}

// apply returns a patched copy; the receiver is left untouched
func (i LineItem) apply(p ItemPatch) (LineItem, error) {
	out := i
	if p.Subtype != nil {
		out.Subtype = *p.Subtype
	}
	if p.Date != nil {
		d := *p.Date
		out.Date = &d
	}
	if p.Quantity != nil {
		out.Quantity = *p.Quantity
	}
	if p.UnitAmount != nil {
		unit, err := valueobject.NewMoney(*p.UnitAmount, i.UnitAmount.Currency())
		if err != nil {
			return LineItem{}, shared.NewValidationError("unit_amount", "%v", err)
		}
		out.UnitAmount = unit
	}
	if p.Note != nil {
		out.Note = *p.Note
	}
	if err := out.validate(); err != nil {
		return LineItem{}, err
	}
	out.compute()
	return out, nil
}
