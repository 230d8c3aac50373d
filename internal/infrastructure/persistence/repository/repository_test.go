package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/garyjia/viaticos/internal/application/port"
	"github.com/garyjia/viaticos/internal/domain/entity"
	"github.com/garyjia/viaticos/internal/domain/shared"
	"github.com/garyjia/viaticos/internal/domain/valueobject"
	"github.com/garyjia/viaticos/internal/domain/workflow"
	"github.com/garyjia/viaticos/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/viaticos/pkg/database"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDB(t *testing.T) *sqlite.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "viaticos.db")
	logger := zap.NewNop()

	require.NoError(t, database.NewMigrator(path, logger).Up())
	db, err := database.New(database.Config{Path: path, MaxOpenConns: 1}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return sqlite.NewDB(db.DB, logger)
}

func newRequest(t *testing.T, requester string) *entity.Request {
	t.Helper()
	mxn := func(s string) valueobject.Money { return valueobject.MustMoney(s, "MXN") }

	breakfast, err := entity.NewLineItem(entity.ItemTypeBreakfast, "", nil, decimal.NewFromInt(2), mxn("50"))
	require.NoError(t, err)
	day := time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC)
	lodging, err := entity.NewLineItem(entity.ItemTypeLodging, "Normal", &day, decimal.RequireFromString("1.5"), mxn("800.33"))
	require.NoError(t, err)

	req, err := entity.NewRequest(entity.Header{
		RequesterID:       requester,
		ApproverID:        "emp-900",
		OriginCityID:      "MTY",
		DestinationCityID: "CDMX",
		DepartureAt:       time.Date(2026, 4, 6, 7, 0, 0, 0, time.UTC),
		ReturnAt:          time.Date(2026, 4, 7, 20, 0, 0, 0, time.UTC),
		Currency:          "MXN",
		PurposeNote:       "Auditoría",
	}, []entity.LineItem{breakfast, lodging})
	require.NoError(t, err)
	return req
}

func TestRequestRepository_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	repo := NewRequestRepository(db, zap.NewNop())
	ctx := context.Background()
	req := newRequest(t, "emp-001")

	require.NoError(t, repo.Create(ctx, req))

	got, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)
	assert.Equal(t, req.Header.PurposeNote, got.PurposeNote)
	assert.True(t, req.DepartureAt.Equal(got.DepartureAt))
	assert.Equal(t, workflow.StateDraft, got.State)
	assert.Equal(t, 1, got.Version)
	assert.True(t, req.EstimatedTotal.Equals(got.EstimatedTotal), got.EstimatedTotal.String())
	assert.Nil(t, got.AuthorizedTotal)

	require.Len(t, got.LineItems, 2)
	assert.Equal(t, req.LineItems[0].ID, got.LineItems[0].ID)
	assert.Nil(t, got.LineItems[0].Date)
	assert.True(t, got.LineItems[1].Quantity.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, "800.33 MXN", got.LineItems[1].UnitAmount.String())
	assert.Equal(t, "1200.50 MXN", got.LineItems[1].ComputedAmount.String())
	assert.True(t, got.LineItems[1].Editable)
	require.NotNil(t, got.LineItems[1].Date)
	assert.True(t, req.LineItems[1].Date.Equal(*got.LineItems[1].Date))

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)

	assert.ErrorIs(t, repo.Create(ctx, req), shared.ErrAlreadyExists)
}

func TestRequestRepository_OptimisticUpdate(t *testing.T) {
	db := newTestDB(t)
	repo := NewRequestRepository(db, zap.NewNop())
	ctx := context.Background()
	req := newRequest(t, "emp-001")
	require.NoError(t, repo.Create(ctx, req))

	require.NoError(t, req.RemoveItem(req.LineItems[0].ID))
	require.NoError(t, req.Submit())
	require.NoError(t, req.Approve(decimal.NewFromInt(1000), "emp-900"))
	require.NoError(t, repo.Update(ctx, req, 1))

	got, err := repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateApproved, got.State)
	assert.Equal(t, 4, got.Version)
	require.Len(t, got.LineItems, 1)
	assert.False(t, got.LineItems[0].Editable)
	require.NotNil(t, got.AuthorizedTotal)
	assert.Equal(t, "1000.00 MXN", got.AuthorizedTotal.String())
	assert.NotNil(t, got.SubmittedAt)
	assert.NotNil(t, got.DecidedAt)

	err = repo.Update(ctx, req, 1)
	var cerr *shared.ConcurrentModificationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 1, cerr.Expected)
	assert.Equal(t, 4, cerr.Actual)

	ghost := newRequest(t, "emp-002")
	assert.ErrorIs(t, repo.Update(ctx, ghost, 1), shared.ErrNotFound)
}

func TestRequestRepository_ListAndHistory(t *testing.T) {
	db := newTestDB(t)
	repo := NewRequestRepository(db, zap.NewNop())
	ctx := context.Background()

	var ids []uuid.UUID
	for _, requester := range []string{"emp-001", "emp-001", "emp-002"} {
		req := newRequest(t, requester)
		require.NoError(t, repo.Create(ctx, req))
		tr := entity.NewTransition(req, "", entity.ActionCreate, requester, "")
		require.NoError(t, repo.AppendHistory(ctx, &tr))
		assert.NotZero(t, tr.ID)
		ids = append(ids, req.ID)
	}

	all, total, err := repo.List(ctx, port.RequestFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, all, 3)
	assert.Len(t, all[0].LineItems, 2)

	page, total, err := repo.List(ctx, port.RequestFilter{RequesterID: "emp-001", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, page, 1)

	none, total, err := repo.List(ctx, port.RequestFilter{State: workflow.StateApproved})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, none)

	history, err := repo.GetHistory(ctx, ids[0])
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, entity.ActionCreate, history[0].Action)
	assert.Equal(t, workflow.StateDraft, history[0].NewState)
	assert.Equal(t, workflow.State(""), history[0].PreviousState)
}

func approvedRequest(t *testing.T, repo port.RequestRepository) *entity.Request {
	t.Helper()
	req := newRequest(t, "emp-001")
	require.NoError(t, repo.Create(context.Background(), req))
	require.NoError(t, req.Submit())
	require.NoError(t, req.Approve(decimal.NewFromInt(900), "emp-900"))
	require.NoError(t, repo.Update(context.Background(), req, 1))
	return req
}

func TestLiquidationRepository_Lifecycle(t *testing.T) {
	db := newTestDB(t)
	requests := NewRequestRepository(db, zap.NewNop())
	repo := NewLiquidationRepository(db, zap.NewNop())
	ctx := context.Background()

	req := approvedRequest(t, requests)
	liq, err := entity.NewLiquidation(req)
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, liq))

	dup, err := entity.NewLiquidation(req)
	require.NoError(t, err)
	assert.ErrorIs(t, repo.Create(ctx, dup), shared.ErrAlreadyExists)

	_, err = liq.AddComprobante(entity.ComprobanteInput{
		Type:   entity.ItemTypeBreakfast,
		Date:   time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC),
		Amount: decimal.NewFromInt(300),
		Vendor: "Cafetería",
	})
	require.NoError(t, err)
	_, err = liq.AddComprobante(entity.ComprobanteInput{
		Type:          entity.ItemTypeLodging,
		Date:          time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC),
		Amount:        decimal.NewFromInt(700),
		InvoiceNumber: "F-123",
	})
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, liq, 1))

	got, err := repo.GetByRequestID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, liq.ID, got.ID)
	assert.Equal(t, 3, got.Version)
	assert.Equal(t, "900.00 MXN", got.AssignedTotal.String())
	assert.Equal(t, "1000.00 MXN", got.SpentTotal.String())
	assert.Equal(t, "-100.00 MXN", got.Difference.String())
	require.Len(t, got.Comprobantes, 2)
	assert.Equal(t, "Cafetería", got.Comprobantes[0].Vendor)
	assert.Equal(t, "F-123", got.Comprobantes[1].InvoiceNumber)
	assert.Equal(t, liq.ID, got.Comprobantes[1].LiquidationID)

	require.NoError(t, got.Close())
	require.NoError(t, repo.Update(ctx, got, 3))
	closed, err := repo.GetByID(ctx, liq.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateClosed, closed.State)
	assert.NotNil(t, closed.ClosedAt)

	assert.ErrorIs(t, repo.Update(ctx, got, 3), shared.ErrConcurrentModification)
	_, err = repo.GetByRequestID(ctx, uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDB_WithTransactionRollsBack(t *testing.T) {
	db := newTestDB(t)
	requests := NewRequestRepository(db, zap.NewNop())
	liquidations := NewLiquidationRepository(db, zap.NewNop())
	ctx := context.Background()

	req := newRequest(t, "emp-001")
	require.NoError(t, requests.Create(ctx, req))
	require.NoError(t, req.Submit())
	require.NoError(t, req.Approve(decimal.NewFromInt(900), "emp-900"))

	boom := errors.New("boom")
	err := db.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := requests.Update(txCtx, req, 1); err != nil {
			return err
		}
		liq, err := entity.NewLiquidation(req)
		if err != nil {
			return err
		}
		if err := liquidations.Create(txCtx, liq); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StateDraft, got.State)
	assert.Equal(t, 1, got.Version)

	_, err = liquidations.GetByRequestID(ctx, req.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
