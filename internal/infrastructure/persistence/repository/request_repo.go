package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/garyjia/viaticos/internal/application/port"
	"github.com/garyjia/viaticos/internal/domain/entity"
	"github.com/garyjia/viaticos/internal/domain/shared"
	"github.com/garyjia/viaticos/internal/domain/valueobject"
	"github.com/garyjia/viaticos/internal/domain/workflow"
	"github.com/garyjia/viaticos/internal/infrastructure/persistence/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const requestColumns = `
	id, requester_id, approver_id, origin_city_id, destination_city_id,
	departure_at, return_at, currency, purpose_note, state,
	estimated_total_minor, authorized_total_minor, rejection_reason, decided_by,
	version, created_at, updated_at, submitted_at, decided_at, closed_at`

// RequestRepository implements port.RequestRepository
type RequestRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *sqlite.DB, logger *zap.Logger) port.RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a request and its line items
func (r *RequestRepository) Create(ctx context.Context, req *entity.Request) error {
	return r.db.WithTransaction(ctx, func(ctx context.Context) error {
		query := `INSERT INTO requests (` + requestColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

		_, err := r.db.Executor(ctx).ExecContext(ctx, query,
			req.ID.String(),
			req.RequesterID,
			req.ApproverID,
			req.OriginCityID,
			req.DestinationCityID,
			req.DepartureAt.UTC(),
			req.ReturnAt.UTC(),
			string(req.Currency),
			req.PurposeNote,
			string(req.State),
			req.EstimatedTotal.MinorUnits(),
			nullMinor(req.AuthorizedTotal),
			req.RejectionReason,
			req.DecidedBy,
			req.Version,
			req.CreatedAt.UTC(),
			req.UpdatedAt.UTC(),
			nullTime(req.SubmittedAt),
			nullTime(req.DecidedAt),
			nullTime(req.ClosedAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("request %s: %w", req.ID, shared.ErrAlreadyExists)
			}
			r.logger.Error("Failed to create request", zap.String("id", req.ID.String()), zap.Error(err))
			return fmt.Errorf("failed to create request: %w", err)
		}

		return r.insertItems(ctx, req)
	})
}

// GetByID retrieves a request with its line items in position order
func (r *RequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE id = ?`

	req, err := scanRequest(r.db.Executor(ctx).QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("request %s: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		r.logger.Error("Failed to get request", zap.String("id", id.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}

	if err := r.loadItems(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// Update overwrites the request when the stored version equals expectedVersion
func (r *RequestRepository) Update(ctx context.Context, req *entity.Request, expectedVersion int) error {
	return r.db.WithTransaction(ctx, func(ctx context.Context) error {
		query := `
			UPDATE requests SET
				approver_id = ?, origin_city_id = ?, destination_city_id = ?,
				departure_at = ?, return_at = ?, purpose_note = ?, state = ?,
				estimated_total_minor = ?, authorized_total_minor = ?,
				rejection_reason = ?, decided_by = ?, version = ?, updated_at = ?,
				submitted_at = ?, decided_at = ?, closed_at = ?
			WHERE id = ? AND version = ?
		`

		result, err := r.db.Executor(ctx).ExecContext(ctx, query,
			req.ApproverID,
			req.OriginCityID,
			req.DestinationCityID,
			req.DepartureAt.UTC(),
			req.ReturnAt.UTC(),
			req.PurposeNote,
			string(req.State),
			req.EstimatedTotal.MinorUnits(),
			nullMinor(req.AuthorizedTotal),
			req.RejectionReason,
			req.DecidedBy,
			req.Version,
			req.UpdatedAt.UTC(),
			nullTime(req.SubmittedAt),
			nullTime(req.DecidedAt),
			nullTime(req.ClosedAt),
			req.ID.String(),
			expectedVersion,
		)
		if err != nil {
			r.logger.Error("Failed to update request", zap.String("id", req.ID.String()), zap.Error(err))
			return fmt.Errorf("failed to update request: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if affected == 0 {
			return r.versionConflict(ctx, req.ID, expectedVersion)
		}

		if _, err := r.db.Executor(ctx).ExecContext(ctx, `DELETE FROM line_items WHERE request_id = ?`, req.ID.String()); err != nil {
			return fmt.Errorf("failed to clear line items: %w", err)
		}
		return r.insertItems(ctx, req)
	})
}

// List returns one page of requests, newest first, plus the total match count
func (r *RequestRepository) List(ctx context.Context, filter port.RequestFilter) ([]*entity.Request, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.State != "" {
		conds = append(conds, "state = ?")
		args = append(args, string(filter.State))
	}
	if filter.RequesterID != "" {
		conds = append(conds, "requester_id = ?")
		args = append(args, filter.RequesterID)
	}
	if filter.ApproverID != "" {
		conds = append(conds, "approver_id = ?")
		args = append(args, filter.ApproverID)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.Executor(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM requests`+where, args...).Scan(&total); err != nil {
		r.logger.Error("Failed to count requests", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to count requests: %w", err)
	}

	query := `SELECT ` + requestColumns + ` FROM requests` + where + ` ORDER BY created_at DESC, id`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list requests", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	var requests []*entity.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan request: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	rows.Close()

	for _, req := range requests {
		if err := r.loadItems(ctx, req); err != nil {
			return nil, 0, err
		}
	}
	return requests, total, nil
}

// AppendHistory records one transition of the request
func (r *RequestRepository) AppendHistory(ctx context.Context, t *entity.Transition) error {
	query := `
		INSERT INTO request_history (
			request_id, actor, action, previous_state, new_state, version, note, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		t.RequestID.String(),
		t.Actor,
		t.Action,
		string(t.PreviousState),
		string(t.NewState),
		t.Version,
		t.Note,
		t.OccurredAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to append history", zap.String("request_id", t.RequestID.String()), zap.Error(err))
		return fmt.Errorf("failed to append history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	t.ID = id
	return nil
}

// GetHistory retrieves a request's transitions, oldest first
func (r *RequestRepository) GetHistory(ctx context.Context, requestID uuid.UUID) ([]*entity.Transition, error) {
	query := `
		SELECT id, request_id, actor, action, previous_state, new_state, version, note, occurred_at
		FROM request_history
		WHERE request_id = ?
		ORDER BY id ASC
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, requestID.String())
	if err != nil {
		r.logger.Error("Failed to get history", zap.String("request_id", requestID.String()), zap.Error(err))
		return nil, fmt.Errorf("failed to get history: %w", err)
	}
	defer rows.Close()

	var records []*entity.Transition
	for rows.Next() {
		var (
			t         entity.Transition
			id        string
			prev, nxt string
		)
		if err := rows.Scan(&t.ID, &id, &t.Actor, &t.Action, &prev, &nxt, &t.Version, &t.Note, &t.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		if t.RequestID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("corrupt request id %q: %w", id, err)
		}
		t.PreviousState = workflow.State(prev)
		t.NewState = workflow.State(nxt)
		t.OccurredAt = t.OccurredAt.UTC()
		records = append(records, &t)
	}

	return records, rows.Err()
}

func (r *RequestRepository) insertItems(ctx context.Context, req *entity.Request) error {
	query := `
		INSERT INTO line_items (
			id, request_id, position, type, subtype, item_date, quantity,
			unit_amount_minor, computed_amount_minor, note, editable
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	for i, item := range req.LineItems {
		_, err := r.db.Executor(ctx).ExecContext(ctx, query,
			item.ID.String(),
			req.ID.String(),
			i,
			string(item.Type),
			item.Subtype,
			nullTime(item.Date),
			item.Quantity.String(),
			item.UnitAmount.MinorUnits(),
			item.ComputedAmount.MinorUnits(),
			item.Note,
			item.Editable,
		)
		if err != nil {
			r.logger.Error("Failed to insert line item", zap.String("request_id", req.ID.String()), zap.Error(err))
			return fmt.Errorf("failed to insert line item %d: %w", i, err)
		}
	}
	return nil
}

func (r *RequestRepository) loadItems(ctx context.Context, req *entity.Request) error {
	query := `
		SELECT id, type, subtype, item_date, quantity, unit_amount_minor,
			computed_amount_minor, note, editable
		FROM line_items
		WHERE request_id = ?
		ORDER BY position ASC
	`

	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, req.ID.String())
	if err != nil {
		return fmt.Errorf("failed to load line items: %w", err)
	}
	defer rows.Close()

	items := []entity.LineItem{}
	for rows.Next() {
		var (
			item           entity.LineItem
			id, itemType   string
			quantity       string
			date           sql.NullTime
			unit, computed int64
		)
		if err := rows.Scan(&id, &itemType, &item.Subtype, &date, &quantity, &unit, &computed, &item.Note, &item.Editable); err != nil {
			return fmt.Errorf("failed to scan line item: %w", err)
		}
		if item.ID, err = uuid.Parse(id); err != nil {
			return fmt.Errorf("corrupt line item id %q: %w", id, err)
		}
		item.Type = entity.ItemType(itemType)
		item.Date = timePtr(date)
		if item.Quantity, err = decimal.NewFromString(quantity); err != nil {
			return fmt.Errorf("corrupt quantity %q: %w", quantity, err)
		}
		if item.UnitAmount, err = money(unit, req.Currency); err != nil {
			return err
		}
		if item.ComputedAmount, err = money(computed, req.Currency); err != nil {
			return err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	req.LineItems = items
	return nil
}

func (r *RequestRepository) versionConflict(ctx context.Context, id uuid.UUID, expected int) error {
	var actual int
	err := r.db.Executor(ctx).QueryRowContext(ctx, `SELECT version FROM requests WHERE id = ?`, id.String()).Scan(&actual)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("request %s: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to read request version: %w", err)
	}
	return shared.NewConcurrentModificationError(entity.AggregateRequest, id.String(), expected, actual)
}

func scanRequest(row rowScanner) (*entity.Request, error) {
	var (
		req                            entity.Request
		id, currency, state            string
		estimated                      int64
		authorized                     sql.NullInt64
		submittedAt, decidedAt, closed sql.NullTime
	)
	err := row.Scan(
		&id,
		&req.RequesterID,
		&req.ApproverID,
		&req.OriginCityID,
		&req.DestinationCityID,
		&req.DepartureAt,
		&req.ReturnAt,
		&currency,
		&req.PurposeNote,
		&state,
		&estimated,
		&authorized,
		&req.RejectionReason,
		&req.DecidedBy,
		&req.Version,
		&req.CreatedAt,
		&req.UpdatedAt,
		&submittedAt,
		&decidedAt,
		&closed,
	)
	if err != nil {
		return nil, err
	}

	if req.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("corrupt request id %q: %w", id, err)
	}
	req.Currency = valueobject.Currency(currency)
	req.State = workflow.State(state)
	if req.EstimatedTotal, err = money(estimated, req.Currency); err != nil {
		return nil, err
	}
	if authorized.Valid {
		total, err := money(authorized.Int64, req.Currency)
		if err != nil {
			return nil, err
		}
		req.AuthorizedTotal = &total
	}
	req.DepartureAt = req.DepartureAt.UTC()
	req.ReturnAt = req.ReturnAt.UTC()
	req.CreatedAt = req.CreatedAt.UTC()
	req.UpdatedAt = req.UpdatedAt.UTC()
	req.SubmittedAt = timePtr(submittedAt)
	req.DecidedAt = timePtr(decidedAt)
	req.ClosedAt = timePtr(closed)
	return &req, nil
}

// Verify interface compliance
var _ port.RequestRepository = (*RequestRepository)(nil)
