package entity

import (
	"errors"
	"testing"
	"time"

	"github.com/garyjia/viaticos/internal/domain/shared"
	"github.com/garyjia/viaticos/internal/domain/valueobject"
	"github.com/garyjia/viaticos/internal/domain/workflow"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHeader() Header {
	return Header{
		RequesterID:       "emp-001",
		ApproverID:        "emp-900",
		OriginCityID:      "MTY",
		DestinationCityID: "CDMX",
		DepartureAt:       time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		ReturnAt:          time.Date(2026, 3, 3, 19, 0, 0, 0, time.UTC),
		Currency:          valueobject.DefaultCurrency,
	}
}

func testItems(t *testing.T) []LineItem {
	t.Helper()
	breakfast, err := NewLineItem(ItemTypeBreakfast, "", nil, decimal.NewFromInt(2), valueobject.MustMoney("50", "MXN"))
	require.NoError(t, err)
	lodging, err := NewLineItem(ItemTypeLodging, "normal", nil, decimal.NewFromInt(1), valueobject.MustMoney("800", "MXN"))
	require.NoError(t, err)
	return []LineItem{breakfast, lodging}
}

func itemByID(t *testing.T, req *Request, id uuid.UUID) LineItem {
	t.Helper()
	for _, item := range req.LineItems {
		if item.ID == id {
			return item
		}
	}
	t.Fatalf("item %s not found", id)
	return LineItem{}
}

func newDraft(t *testing.T) *Request {
	t.Helper()
	req, err := NewRequest(testHeader(), testItems(t))
	require.NoError(t, err)
	return req
}

func newSubmitted(t *testing.T) *Request {
	t.Helper()
	req := newDraft(t)
	require.NoError(t, req.Submit())
	return req
}

func TestNewRequest(t *testing.T) {
	req := newDraft(t)

	assert.NotEqual(t, uuid.Nil, req.ID)
	assert.Equal(t, workflow.StateDraft, req.State)
	assert.Equal(t, 1, req.Version)
	assert.Equal(t, "900.00 MXN", req.EstimatedTotal.String())
	assert.Nil(t, req.AuthorizedTotal)
	for _, item := range req.LineItems {
		assert.True(t, item.Editable)
	}
}

func TestNewRequest_AllowsNoItems(t *testing.T) {
	req, err := NewRequest(testHeader(), nil)
	require.NoError(t, err)
	assert.True(t, req.EstimatedTotal.IsZero())
	assert.Empty(t, req.LineItems)
}

func TestNewRequest_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(h *Header)
		field  string
	}{
		{"missing requester", func(h *Header) { h.RequesterID = " " }, "requester_id"},
		{"missing approver", func(h *Header) { h.ApproverID = "" }, "approver_id"},
		{"missing departure", func(h *Header) { h.DepartureAt = time.Time{} }, "departure_at"},
		{"return before departure", func(h *Header) { h.ReturnAt = h.DepartureAt.Add(-time.Hour) }, "return_at"},
		{"bad currency", func(h *Header) { h.Currency = "pesos" }, "currency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testHeader()
			tt.mutate(&h)
			_, err := NewRequest(h, nil)

			var verr *shared.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestNewRequest_RejectsForeignCurrencyItems(t *testing.T) {
	item, err := NewLineItem(ItemTypeFuel, "", nil, decimal.NewFromInt(1), valueobject.MustMoney("20", "USD"))
	require.NoError(t, err)

	_, err = NewRequest(testHeader(), []LineItem{item})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestHeader_TripLengthDays(t *testing.T) {
	h := testHeader()
	assert.Equal(t, 2, h.TripLengthDays())

	h.ReturnAt = h.DepartureAt
	assert.Equal(t, 1, h.TripLengthDays())

	h.ReturnAt = time.Date(2026, 3, 9, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, 8, h.TripLengthDays())
}

func TestRequest_UpdateItemRecomputesTotal(t *testing.T) {
	req := newDraft(t)
	breakfast := req.LineItems[0]

	qty := decimal.NewFromInt(3)
	require.NoError(t, req.UpdateItem(breakfast.ID, ItemPatch{Quantity: &qty}))

	updated := itemByID(t, req, breakfast.ID)
	assert.Equal(t, "150.00 MXN", updated.ComputedAmount.String())
	assert.Equal(t, "950.00 MXN", req.EstimatedTotal.String())
	assert.Equal(t, 2, req.Version)
	assert.Equal(t, workflow.StateDraft, req.State)
}

func TestRequest_UpdateItemRoundsOnce(t *testing.T) {
	req := newDraft(t)
	id := req.LineItems[0].ID

	qty := decimal.RequireFromString("0.5")
	unit := decimal.RequireFromString("33.33")
	require.NoError(t, req.UpdateItem(id, ItemPatch{Quantity: &qty, UnitAmount: &unit}))

	item := itemByID(t, req, id)
	// 16.665 rounds half away from zero
	assert.Equal(t, "16.67", item.ComputedAmount.StringFixed())
}

func TestRequest_UpdateItemRejectsInvalidPatch(t *testing.T) {
	req := newDraft(t)
	id := req.LineItems[0].ID
	before := req.EstimatedTotal

	negative := decimal.NewFromInt(-1)
	err := req.UpdateItem(id, ItemPatch{Quantity: &negative})
	assert.ErrorIs(t, err, shared.ErrValidation)

	tooPrecise := decimal.RequireFromString("10.001")
	err = req.UpdateItem(id, ItemPatch{UnitAmount: &tooPrecise})
	assert.ErrorIs(t, err, shared.ErrValidation)

	assert.True(t, before.Equals(req.EstimatedTotal))
	assert.Equal(t, 1, req.Version)
}

func TestRequest_UpdateUnknownItem(t *testing.T) {
	req := newDraft(t)
	note := "x"
	err := req.UpdateItem(uuid.New(), ItemPatch{Note: &note})
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRequest_RemoveItem(t *testing.T) {
	req := newDraft(t)
	require.NoError(t, req.RemoveItem(req.LineItems[1].ID))

	assert.Len(t, req.LineItems, 1)
	assert.Equal(t, "100.00 MXN", req.EstimatedTotal.String())
}

func TestRequest_UpdateHeader(t *testing.T) {
	req := newDraft(t)
	dest := "GDL"
	require.NoError(t, req.UpdateHeader(HeaderPatch{DestinationCityID: &dest}))
	assert.Equal(t, "GDL", req.DestinationCityID)

	bad := req.DepartureAt.Add(-48 * time.Hour)
	err := req.UpdateHeader(HeaderPatch{ReturnAt: &bad})
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Equal(t, testHeader().ReturnAt, req.ReturnAt)
}

func TestRequest_UpdateHeaderKeepsItemsWithinTrip(t *testing.T) {
	tests := []struct {
		name  string
		patch func(h Header) HeaderPatch
		field string
	}{
		{
			name: "earlier return",
			patch: func(h Header) HeaderPatch {
				ret := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
				return HeaderPatch{ReturnAt: &ret}
			},
			field: "return_at",
		},
		{
			name: "later departure",
			patch: func(h Header) HeaderPatch {
				dep := time.Date(2026, 3, 3, 6, 0, 0, 0, time.UTC)
				return HeaderPatch{DepartureAt: &dep}
			},
			field: "departure_at",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newDraft(t)
			before := req.Header

			err := req.UpdateHeader(tt.patch(req.Header))

			var verr *shared.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, before, req.Header)
			assert.Equal(t, 1, req.Version)
		})
	}
}

func TestRequest_UpdateHeaderLengtheningTrip(t *testing.T) {
	req := newDraft(t)

	ret := time.Date(2026, 3, 5, 19, 0, 0, 0, time.UTC)
	require.NoError(t, req.UpdateHeader(HeaderPatch{ReturnAt: &ret}))
	assert.Equal(t, 4, req.TripLengthDays())

	// two breakfasts still fit a two-day trip
	ret = time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC)
	require.NoError(t, req.UpdateHeader(HeaderPatch{ReturnAt: &ret}))
	assert.Equal(t, 3, req.Version)
}

func TestRequest_Submit(t *testing.T) {
	req := newSubmitted(t)

	assert.Equal(t, workflow.StateSubmitted, req.State)
	assert.Equal(t, 2, req.Version)
	assert.NotNil(t, req.SubmittedAt)
	for _, item := range req.LineItems {
		assert.False(t, item.Editable)
	}
}

func TestRequest_SubmitPreconditions(t *testing.T) {
	tests := []struct {
		name  string
		build func(t *testing.T) *Request
		field string
	}{
		{
			name: "no items",
			build: func(t *testing.T) *Request {
				req, err := NewRequest(testHeader(), nil)
				require.NoError(t, err)
				return req
			},
			field: "line_items",
		},
		{
			name: "same instant",
			build: func(t *testing.T) *Request {
				h := testHeader()
				h.ReturnAt = h.DepartureAt
				req, err := NewRequest(h, testItems(t))
				require.NoError(t, err)
				return req
			},
			field: "return_at",
		},
		{
			name: "missing destination",
			build: func(t *testing.T) *Request {
				h := testHeader()
				h.DestinationCityID = ""
				req, err := NewRequest(h, testItems(t))
				require.NoError(t, err)
				return req
			},
			field: "destination_city_id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.build(t)
			err := req.Submit()

			var verr *shared.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, workflow.StateDraft, req.State)
			assert.Equal(t, 1, req.Version)
		})
	}
}

func TestRequest_EditsRejectedAfterSubmit(t *testing.T) {
	req := newSubmitted(t)
	id := req.LineItems[0].ID
	qty := decimal.NewFromInt(5)

	err := req.UpdateItem(id, ItemPatch{Quantity: &qty})
	assert.ErrorIs(t, err, shared.ErrInvalidState)

	err = req.RemoveItem(id)
	assert.ErrorIs(t, err, shared.ErrInvalidState)

	dest := "GDL"
	err = req.UpdateHeader(HeaderPatch{DestinationCityID: &dest})
	assert.ErrorIs(t, err, shared.ErrInvalidState)

	assert.Equal(t, "900.00 MXN", req.EstimatedTotal.String())
}

func TestRequest_ApproveWithDifferentAmount(t *testing.T) {
	req := newSubmitted(t)
	require.NoError(t, req.Approve(decimal.NewFromInt(700), "emp-900"))

	assert.Equal(t, workflow.StateApproved, req.State)
	require.NotNil(t, req.AuthorizedTotal)
	assert.Equal(t, "700.00 MXN", req.AuthorizedTotal.String())
	assert.Equal(t, "900.00 MXN", req.EstimatedTotal.String())
	assert.Equal(t, "emp-900", req.DecidedBy)
	assert.NotNil(t, req.DecidedAt)
	assert.Equal(t, 3, req.Version)
}

func TestRequest_ApproveValidation(t *testing.T) {
	req := newSubmitted(t)

	assert.ErrorIs(t, req.Approve(decimal.NewFromInt(-1), "emp-900"), shared.ErrValidation)
	assert.ErrorIs(t, req.Approve(decimal.RequireFromString("1.005"), "emp-900"), shared.ErrValidation)
	assert.Equal(t, workflow.StateSubmitted, req.State)
}

func TestRequest_ApproveRejectsUnstorableAmount(t *testing.T) {
	req := newSubmitted(t)

	err := req.Approve(decimal.RequireFromString("100000000000000000000"), "emp-900")

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "authorized_amount", verr.Field)
	assert.Equal(t, workflow.StateSubmitted, req.State)
	assert.Nil(t, req.AuthorizedTotal)
}

func TestRequest_UpdateItemRejectsUnstorableAmount(t *testing.T) {
	req := newDraft(t)
	lodging := req.LineItems[1]

	unit := decimal.RequireFromString("100000000000000000")
	err := req.UpdateItem(lodging.ID, ItemPatch{UnitAmount: &unit})
	assert.ErrorIs(t, err, shared.ErrValidation)

	// each item fits on its own but the sum does not
	breakfast := req.LineItems[0]
	half := decimal.RequireFromString("50000000000000000")
	one := decimal.NewFromInt(1)
	require.NoError(t, req.UpdateItem(lodging.ID, ItemPatch{UnitAmount: &half}))
	err = req.UpdateItem(breakfast.ID, ItemPatch{UnitAmount: &half, Quantity: &one})

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "line_items", verr.Field)
	assert.Equal(t, "100.00", itemByID(t, req, breakfast.ID).ComputedAmount.StringFixed())
	assert.Equal(t, 2, req.Version)
}

func TestRequest_ApproveDraftIsInvalidState(t *testing.T) {
	req := newDraft(t)
	err := req.Approve(decimal.NewFromInt(100), "emp-900")

	var serr *shared.InvalidStateError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "DRAFT", serr.Current)
	assert.Equal(t, "APPROVE", serr.Attempted)
}

func TestRequest_RejectIsTerminal(t *testing.T) {
	req := newSubmitted(t)

	assert.ErrorIs(t, req.Reject("   ", "emp-900"), shared.ErrValidation)
	require.NoError(t, req.Reject("sin presupuesto", "emp-900"))

	assert.Equal(t, workflow.StateRejected, req.State)
	assert.Equal(t, "sin presupuesto", req.RejectionReason)
	assert.Empty(t, req.AllowedActions())

	for name, op := range map[string]func() error{
		"submit":  req.Submit,
		"approve": func() error { return req.Approve(decimal.NewFromInt(1), "x") },
		"close":   req.MarkClosed,
	} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, op(), shared.ErrInvalidState)
		})
	}
}

func TestRequest_CheckVersion(t *testing.T) {
	req := newDraft(t)
	assert.NoError(t, req.CheckVersion(1))

	err := req.CheckVersion(4)
	var cerr *shared.ConcurrentModificationError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, 4, cerr.Expected)
	assert.Equal(t, 1, cerr.Actual)
}

func TestRequest_AllowedActions(t *testing.T) {
	req := newDraft(t)
	assert.Equal(t, []workflow.Trigger{workflow.TriggerEdit, workflow.TriggerSubmit}, req.AllowedActions())

	require.NoError(t, req.Submit())
	assert.Equal(t, []workflow.Trigger{workflow.TriggerApprove, workflow.TriggerReject}, req.AllowedActions())

	req.State = workflow.State("BOGUS")
	assert.Nil(t, req.AllowedActions())
	assert.ErrorIs(t, req.Submit(), shared.ErrInvalidState)
}

func TestNewTransition(t *testing.T) {
	req := newSubmitted(t)
	tr := NewTransition(req, workflow.StateDraft, workflow.TriggerSubmit.String(), "emp-001", "")

	assert.Equal(t, req.ID, tr.RequestID)
	assert.Equal(t, workflow.StateDraft, tr.PreviousState)
	assert.Equal(t, workflow.StateSubmitted, tr.NewState)
	assert.Equal(t, req.Version, tr.Version)
}
