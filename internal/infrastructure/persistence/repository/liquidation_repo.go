package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garyjia/viaticos/internal/application/port"
	"github.com/garyjia/viaticos/internal/domain/entity"
	"github.com/garyjia/viaticos/internal/domain/shared"
	"github.com/garyjia/viaticos/internal/domain/valueobject"
	"github.com/garyjia/viaticos/internal/domain/workflow"
	"github.com/garyjia/viaticos/internal/infrastructure/persistence/sqlite"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const liquidationColumns = `
	id, request_id, currency, assigned_total_minor, spent_total_minor, difference_minor,
	state, version, created_at, updated_at, closed_at`

// LiquidationRepository implements port.LiquidationRepository
type LiquidationRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewLiquidationRepository creates a new liquidation repository
func NewLiquidationRepository(db *sqlite.DB, logger *zap.Logger) port.LiquidationRepository {
	return &LiquidationRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a liquidation; a second one for the same request fails
// with shared.ErrAlreadyExists
func (r *LiquidationRepository) Create(ctx context.Context, liq *entity.Liquidation) error {
	return r.db.WithTransaction(ctx, func(ctx context.Context) error {
		query := `INSERT INTO liquidations (` + liquidationColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

		_, err := r.db.Executor(ctx).ExecContext(ctx, query,
			liq.ID.String(),
			liq.RequestID.String(),
			string(liq.Currency),
			liq.AssignedTotal.MinorUnits(),
			liq.SpentTotal.MinorUnits(),
			liq.Difference.MinorUnits(),
			string(liq.State),
			liq.Version,
			liq.CreatedAt.UTC(),
			liq.UpdatedAt.UTC(),
			nullTime(liq.ClosedAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("liquidation for request %s: %w", liq.RequestID, shared.ErrAlreadyExists)
			}
			r.logger.Error("Failed to create liquidation", zap.String("request_id", liq.RequestID.String()), zap.Error(err))
			return fmt.Errorf("failed to create liquidation: %w", err)
		}

		return r.insertComprobantes(ctx, liq)
	})
}

// GetByID retrieves a liquidation with its comprobantes
func (r *LiquidationRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Liquidation, error) {
	return r.getOne(ctx, `id = ?`, id)
}

// GetByRequestID retrieves the liquidation of a request
func (r *LiquidationRepository) GetByRequestID(ctx context.Context, requestID uuid.UUID) (*entity.Liquidation, error) {
	return r.getOne(ctx, `request_id = ?`, requestID)
}

// Update overwrites the liquidation when the stored version equals expectedVersion
func (r *LiquidationRepository) Update(ctx context.Context, liq *entity.Liquidation, expectedVersion int) error {
	return r.db.WithTransaction(ctx, func(ctx context.Context) error {
		query := `
			UPDATE liquidations SET
				spent_total_minor = ?, difference_minor = ?, state = ?,
				version = ?, updated_at = ?, closed_at = ?
			WHERE id = ? AND version = ?
		`

		result, err := r.db.Executor(ctx).ExecContext(ctx, query,
			liq.SpentTotal.MinorUnits(),
			liq.Difference.MinorUnits(),
			string(liq.State),
			liq.Version,
			liq.UpdatedAt.UTC(),
			nullTime(liq.ClosedAt),
			liq.ID.String(),
			expectedVersion,
		)
		if err != nil {
			r.logger.Error("Failed to update liquidation", zap.String("id", liq.ID.String()), zap.Error(err))
			return fmt.Errorf("failed to update liquidation: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return r.versionConflict(ctx, liq.ID, expectedVersion)
		}

		if _, err := r.db.Executor(ctx).ExecContext(ctx, `DELETE FROM comprobantes WHERE liquidation_id = ?`, liq.ID.String()); err != nil {
			return fmt.Errorf("failed to clear comprobantes: %w", err)
		}
		return r.insertComprobantes(ctx, liq)
	})
}

func (r *LiquidationRepository) getOne(ctx context.Context, cond string, id uuid.UUID) (*entity.Liquidation, error) {
	query := `SELECT ` + liquidationColumns + ` FROM liquidations WHERE ` + cond

	liq, err := scanLiquidation(r.db.Executor(ctx).QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("liquidation %s: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get liquidation", zap.String("key", id.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get liquidation: %w", err)
	}

	if err := r.loadComprobantes(ctx, liq); err != nil {
		return nil, err
	}
	return liq, nil
}

func (r *LiquidationRepository) insertComprobantes(ctx context.Context, liq *entity.Liquidation) error {
	query := `
		INSERT INTO comprobantes (
			id, liquidation_id, position, type, subtype, expense_date, amount_minor,
			vendor, invoice_number, note, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for i, c := range liq.Comprobantes {
		_, err := r.db.Executor(ctx).ExecContext(ctx, query,
			c.ID.String(),
			liq.ID.String(),
			i,
			string(c.Type),
			c.Subtype,
			c.Date.UTC(),
			c.Amount.MinorUnits(),
			c.Vendor,
			c.InvoiceNumber,
			c.Note,
			c.CreatedAt.UTC(),
		)
		if err != nil {
			r.logger.Error("Failed to insert comprobante", zap.String("liquidation_id", liq.ID.String()), zap.Error(err))
			return fmt.Errorf("failed to insert comprobante %d: %w", i, err)
		}
	}
	return nil
}

func (r *LiquidationRepository) loadComprobantes(ctx context.Context, liq *entity.Liquidation) error {
	query := `
		SELECT id, type, subtype, expense_date, amount_minor, vendor, invoice_number, note, created_at
		FROM comprobantes
		WHERE liquidation_id = ?
		ORDER BY position ASC
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, liq.ID.String())
	if err != nil {
		return fmt.Errorf("failed to load comprobantes: %w", err)
	}
	defer rows.Close()

	list := []entity.Comprobante{}
	for rows.Next() {
		var (
			c            entity.Comprobante
			id, itemType string
			amount       int64
		)
		if err := rows.Scan(&id, &itemType, &c.Subtype, &c.Date, &amount, &c.Vendor, &c.InvoiceNumber, &c.Note, &c.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan comprobante: %w", err)
		}
		if c.ID, err = uuid.Parse(id); err != nil {
			return fmt.Errorf("corrupt comprobante id %q: %w", id, err)
		}
		c.LiquidationID = liq.ID
		c.Type = entity.ItemType(itemType)
		c.Date = c.Date.UTC()
		c.CreatedAt = c.CreatedAt.UTC()
		if c.Amount, err = money(amount, liq.Currency); err != nil {
			return err
		}
		list = append(list, c)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	liq.Comprobantes = list
	return nil
}

func (r *LiquidationRepository) versionConflict(ctx context.Context, id uuid.UUID, expected int) error {
	var actual int
	err := r.db.Executor(ctx).QueryRowContext(ctx, `SELECT version FROM liquidations WHERE id = ?`, id.String()).Scan(&actual)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("liquidation %s: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read liquidation version: %w", err)
	}
	return shared.NewConcurrentModificationError(entity.AggregateLiquidation, id.String(), expected, actual)
}

func scanLiquidation(row rowScanner) (*entity.Liquidation, error) {
	var (
		liq                           entity.Liquidation
		id, requestID, currency, state string
		assigned, spent, difference   int64
		closedAt                      sql.NullTime
	)
	err := row.Scan(
		&id,
		&requestID,
		&currency,
		&assigned,
		&spent,
		&difference,
		&state,
		&liq.Version,
		&liq.CreatedAt,
		&liq.UpdatedAt,
		&closedAt,
	)
	if err != nil {
		return nil, err
	}

	if liq.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("corrupt liquidation id %q: %w", id, err)
	}
	if liq.RequestID, err = uuid.Parse(requestID); err != nil {
		return nil, fmt.Errorf("corrupt request id %q: %w", requestID, err)
	}
	liq.Currency = valueobject.Currency(currency)
	liq.State = workflow.State(state)
	if liq.AssignedTotal, err = money(assigned, liq.Currency); err != nil {
		return nil, err
	}
	if liq.SpentTotal, err = money(spent, liq.Currency); err != nil {
		return nil, err
	}
	if liq.Difference, err = money(difference, liq.Currency); err != nil {
		return nil, err
	}
	liq.CreatedAt = liq.CreatedAt.UTC()
	liq.UpdatedAt = liq.UpdatedAt.UTC()
	liq.ClosedAt = timePtr(closedAt)
	return &liq, nil
}

// Verify interface compliance
var _ port.LiquidationRepository = (*LiquidationRepository)(nil)
