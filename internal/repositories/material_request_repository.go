package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"vendfleet-backend/internal/apperr"
	"vendfleet-backend/internal/events"
	"vendfleet-backend/internal/models"
	"vendfleet-backend/internal/services"
)

type MaterialRequestRepository struct {
	DB *pgxpool.Pool
}

func NewMaterialRequestRepository(db *pgxpool.Pool) *MaterialRequestRepository {
	return &MaterialRequestRepository{DB: db}
}

var (
	_ services.MaterialRequestStore = (*MaterialRequestRepository)(nil)
	_ services.MaterialRequestTx    = (*materialRequestTx)(nil)
	_ events.Outbox                 = (*MaterialRequestRepository)(nil)
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const requestColumns = `
	id, organization_id, request_number, requester_id, supplier_id, status, priority,
	total_amount, paid_amount, overpaid_amount, notes,
	submitted_at, approved_by, approved_at, rejection_reason, rejected_by, rejected_at,
	sent_at, delivered_at, completed_at, cancelled_at, cancellation_reason,
	version, created_at, updated_at, deleted_at`

const itemColumns = `
	id, request_id, position, product_id, product_name, product_sku,
	quantity, unit_price, total_price, delivered_quantity`

func scanRequest(row pgx.Row) (*models.MaterialRequest, error) {
	r := &models.MaterialRequest{}
	err := row.Scan(
		&r.ID, &r.OrganizationID, &r.RequestNumber, &r.RequesterID, &r.SupplierID, &r.Status, &r.Priority,
		&r.TotalAmount, &r.PaidAmount, &r.OverpaidAmount, &r.Notes,
		&r.SubmittedAt, &r.ApprovedBy, &r.ApprovedAt, &r.RejectionReason, &r.RejectedBy, &r.RejectedAt,
		&r.SentAt, &r.DeliveredAt, &r.CompletedAt, &r.CancelledAt, &r.CancellationReason,
		&r.Version, &r.CreatedAt, &r.UpdatedAt, &r.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func collectRequests(rows pgx.Rows) ([]*models.MaterialRequest, error) {
	defer rows.Close()
	var out []*models.MaterialRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// loadItems attaches items to every request in one query.
func loadItems(ctx context.Context, q querier, list []*models.MaterialRequest) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]string, len(list))
	byID := make(map[string]*models.MaterialRequest, len(list))
	for i, r := range list {
		ids[i] = r.ID
		r.Items = []models.MaterialRequestItem{}
		byID[r.ID] = r
	}

	rows, err := q.Query(ctx, `
		SELECT `+itemColumns+`
		FROM material_request_items
		WHERE request_id = ANY($1::text[]::uuid[])
		ORDER BY request_id, position
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var it models.MaterialRequestItem
		if err := rows.Scan(
			&it.ID, &it.RequestID, &it.Position, &it.ProductID, &it.ProductName, &it.ProductSKU,
			&it.Quantity, &it.UnitPrice, &it.TotalPrice, &it.DeliveredQuantity,
		); err != nil {
			return err
		}
		if r := byID[it.RequestID]; r != nil {
			r.Items = append(r.Items, it)
		}
	}
	return rows.Err()
}

// RunInTx runs fn in a READ COMMITTED transaction. Rows touched by
// FindForUpdate stay locked until commit or rollback.
func (r *MaterialRequestRepository) RunInTx(ctx context.Context, fn func(ctx context.Context, tx services.MaterialRequestTx) error) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &materialRequestTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapError(err, "failed to commit transaction", "material request")
	}
	return nil
}

func (r *MaterialRequestRepository) Get(ctx context.Context, orgID, id string) (*models.MaterialRequest, error) {
	req, err := scanRequest(r.DB.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM material_requests
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
	`, id, orgID))
	if err != nil {
		return nil, mapError(err, "failed to get material request", "material request "+id)
	}
	if err := loadItems(ctx, r.DB, []*models.MaterialRequest{req}); err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	return req, nil
}

var sortColumns = map[string]string{
	"createdAt":     "created_at",
	"totalAmount":   "total_amount",
	"requestNumber": "request_number",
	"priority":      "CASE priority WHEN 'low' THEN 0 WHEN 'normal' THEN 1 WHEN 'high' THEN 2 ELSE 3 END",
}

// sortExpression whitelists the ORDER BY expression.
func sortExpression(field string) string {
	if col, ok := sortColumns[field]; ok {
		return col
	}
	return "created_at"
}

func (r *MaterialRequestRepository) List(ctx context.Context, orgID string, f models.MaterialRequestFilter) ([]*models.MaterialRequest, int, error) {
	where := []string{"organization_id = $1", "deleted_at IS NULL"}
	args := []any{orgID}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}

	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.Priority != "" {
		add("priority = $%d", string(f.Priority))
	}
	if f.RequesterID != "" {
		add("requester_id = $%d", f.RequesterID)
	}
	if f.SupplierID != "" {
		add("supplier_id = $%d", f.SupplierID)
	}
	if f.Search != "" {
		add("(request_number ILIKE $%[1]d OR notes ILIKE $%[1]d)", "%"+escapeLike(f.Search)+"%")
	}
	whereSQL := strings.Join(where, " AND ")

	var total int
	if err := r.DB.QueryRow(ctx, `SELECT COUNT(*) FROM material_requests WHERE `+whereSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count material requests: %w", err)
	}

	order := "DESC"
	if f.SortOrder == "asc" {
		order = "ASC"
	}
	limit := f.Limit
	if limit < 1 {
		limit = 20
	}
	offset := 0
	if f.Page > 1 {
		offset = (f.Page - 1) * limit
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM material_requests
		WHERE %s
		ORDER BY %s %s, request_number %s
		LIMIT %d OFFSET %d
	`, requestColumns, whereSQL, sortExpression(f.SortBy), order, order, limit, offset)

	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list material requests: %w", err)
	}
	list, err := collectRequests(rows)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to scan material requests: %w", err)
	}
	if err := loadItems(ctx, r.DB, list); err != nil {
		return nil, 0, fmt.Errorf("failed to load items: %w", err)
	}
	return list, total, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r *MaterialRequestRepository) Stats(ctx context.Context, orgID string) (*models.MaterialRequestStats, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT status, COUNT(*),
		       COALESCE(SUM(total_amount), 0),
		       COALESCE(SUM(paid_amount), 0),
		       COALESCE(SUM(overpaid_amount), 0)
		FROM material_requests
		WHERE organization_id = $1 AND deleted_at IS NULL
		GROUP BY status
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	stats := models.NewMaterialRequestStats()
	for rows.Next() {
		var (
			status models.MaterialRequestStatus
			n      int
			row    models.MaterialRequestStats
		)
		if err := rows.Scan(&status, &n, &row.TotalAmount, &row.PaidAmount, &row.OverpaidAmount); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		stats.AddStatus(status, n)
		stats.TotalAmount = stats.TotalAmount.Add(row.TotalAmount)
		stats.PaidAmount = stats.PaidAmount.Add(row.PaidAmount)
		stats.OverpaidAmount = stats.OverpaidAmount.Add(row.OverpaidAmount)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	stats.UnpaidAmount = stats.TotalAmount.Sub(stats.PaidAmount)
	return stats, nil
}

func (r *MaterialRequestRepository) PendingApprovals(ctx context.Context, orgID string) ([]*models.MaterialRequest, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+requestColumns+`
		FROM material_requests
		WHERE organization_id = $1 AND status = 'NEW' AND deleted_at IS NULL
		ORDER BY submitted_at ASC NULLS LAST, created_at ASC
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending approvals: %w", err)
	}
	list, err := collectRequests(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan pending approvals: %w", err)
	}
	if err := loadItems(ctx, r.DB, list); err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	return list, nil
}

func (r *MaterialRequestRepository) History(ctx context.Context, orgID, requestID string) ([]models.MaterialRequestHistory, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, request_id, organization_id, command, COALESCE(from_status, ''), to_status,
		       user_id, comment, created_at
		FROM material_request_history
		WHERE request_id = $1 AND organization_id = $2
		ORDER BY created_at DESC, id DESC
	`, requestID, orgID)
	if err != nil {
		return nil, mapError(err, "failed to query history", "material request "+requestID)
	}
	defer rows.Close()

	var out []models.MaterialRequestHistory
	for rows.Next() {
		var h models.MaterialRequestHistory
		if err := rows.Scan(&h.ID, &h.RequestID, &h.OrganizationID, &h.Command, &h.FromStatus, &h.ToStatus,
			&h.UserID, &h.Comment, &h.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *MaterialRequestRepository) Payments(ctx context.Context, orgID, requestID string) ([]models.MaterialRequestPayment, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id, request_id, organization_id, amount, applied_amount, reference, note, recorded_by, recorded_at
		FROM material_request_payments
		WHERE request_id = $1 AND organization_id = $2
		ORDER BY recorded_at ASC, id ASC
	`, requestID, orgID)
	if err != nil {
		return nil, mapError(err, "failed to query payments", "material request "+requestID)
	}
	defer rows.Close()

	var out []models.MaterialRequestPayment
	for rows.Next() {
		var p models.MaterialRequestPayment
		if err := rows.Scan(&p.ID, &p.RequestID, &p.OrganizationID, &p.Amount, &p.AppliedAmount,
			&p.Reference, &p.Note, &p.RecordedBy, &p.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PendingEvents returns unpublished, unparked outbox rows, oldest first.
func (r *MaterialRequestRepository) PendingEvents(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := r.DB.Query(ctx, `
		SELECT id, payload, attempts, COALESCE(last_error, ''), created_at
		FROM outbox_events
		WHERE published_at IS NULL AND parked_at IS NULL
		ORDER BY created_at ASC, id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var out []models.OutboxEvent
	for rows.Next() {
		var (
			e       models.OutboxEvent
			payload []byte
		)
		if err := rows.Scan(&e.ID, &payload, &e.Attempts, &e.LastError, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		if err := json.Unmarshal(payload, &e.Event); err != nil {
			return nil, fmt.Errorf("failed to decode outbox event %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *MaterialRequestRepository) MarkPublished(ctx context.Context, id string, at time.Time) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE outbox_events SET published_at = $2, attempts = attempts + 1 WHERE id = $1
	`, id, at)
	return err
}

func (r *MaterialRequestRepository) MarkFailed(ctx context.Context, id, reason string) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE outbox_events SET attempts = attempts + 1, last_error = $2 WHERE id = $1
	`, id, reason)
	return err
}

func (r *MaterialRequestRepository) MarkParked(ctx context.Context, id, reason string, at time.Time) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE outbox_events SET attempts = attempts + 1, last_error = $2, parked_at = $3 WHERE id = $1
	`, id, reason, at)
	return err
}

type materialRequestTx struct {
	tx pgx.Tx
}

// NextRequestSequence bumps the per-year counter. The upserted row stays
// locked until the transaction ends, which serializes concurrent creates.
func (t *materialRequestTx) NextRequestSequence(ctx context.Context, year int) (int, error) {
	var seq int
	err := t.tx.QueryRow(ctx, `
		INSERT INTO material_request_number_counters (year, last_value)
		VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE
		SET last_value = material_request_number_counters.last_value + 1
		RETURNING last_value
	`, year).Scan(&seq)
	if err != nil {
		return 0, mapError(err, "failed to allocate request number", "request number counter")
	}
	return seq, nil
}

func (t *materialRequestTx) Insert(ctx context.Context, r *models.MaterialRequest) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO material_requests (
			id, organization_id, request_number, requester_id, supplier_id, status, priority,
			total_amount, paid_amount, overpaid_amount, notes, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		r.ID, r.OrganizationID, r.RequestNumber, r.RequesterID, r.SupplierID, string(r.Status), string(r.Priority),
		r.TotalAmount, r.PaidAmount, r.OverpaidAmount, r.Notes, r.Version, r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return mapError(err, "failed to insert material request", "material request "+r.RequestNumber)
	}
	return t.insertItems(ctx, r)
}

func (t *materialRequestTx) insertItems(ctx context.Context, r *models.MaterialRequest) error {
	for _, it := range r.Items {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO material_request_items (`+itemColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			it.ID, r.ID, it.Position, it.ProductID, it.ProductName, it.ProductSKU,
			it.Quantity, it.UnitPrice, it.TotalPrice, it.DeliveredQuantity,
		)
		if err != nil {
			return mapError(err, "failed to insert item", "material request item")
		}
	}
	return nil
}

func (t *materialRequestTx) FindForUpdate(ctx context.Context, orgID, id string) (*models.MaterialRequest, error) {
	req, err := scanRequest(t.tx.QueryRow(ctx, `
		SELECT `+requestColumns+`
		FROM material_requests
		WHERE id = $1 AND organization_id = $2 AND deleted_at IS NULL
		FOR UPDATE
	`, id, orgID))
	if err != nil {
		return nil, mapError(err, "failed to lock material request", "material request "+id)
	}
	if err := loadItems(ctx, t.tx, []*models.MaterialRequest{req}); err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	return req, nil
}

// Save writes every mutable column guarded by the version the caller loaded.
func (t *materialRequestTx) Save(ctx context.Context, r *models.MaterialRequest, replaceItems bool) error {
	var version int
	err := t.tx.QueryRow(ctx, `
		UPDATE material_requests SET
			supplier_id = $3, status = $4, priority = $5,
			total_amount = $6, paid_amount = $7, overpaid_amount = $8, notes = $9,
			submitted_at = $10, approved_by = $11, approved_at = $12,
			rejection_reason = $13, rejected_by = $14, rejected_at = $15,
			sent_at = $16, delivered_at = $17, completed_at = $18,
			cancelled_at = $19, cancellation_reason = $20,
			updated_at = $21, deleted_at = $22,
			version = version + 1
		WHERE id = $1 AND version = $2
		RETURNING version
	`,
		r.ID, r.Version,
		r.SupplierID, string(r.Status), string(r.Priority),
		r.TotalAmount, r.PaidAmount, r.OverpaidAmount, r.Notes,
		r.SubmittedAt, r.ApprovedBy, r.ApprovedAt,
		r.RejectionReason, r.RejectedBy, r.RejectedAt,
		r.SentAt, r.DeliveredAt, r.CompletedAt,
		r.CancelledAt, r.CancellationReason,
		r.UpdatedAt, r.DeletedAt,
	).Scan(&version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.Conflict("material request %s was modified concurrently", r.RequestNumber)
		}
		return mapError(err, "failed to save material request", "material request "+r.RequestNumber)
	}
	r.Version = version

	if replaceItems {
		if _, err := t.tx.Exec(ctx, `DELETE FROM material_request_items WHERE request_id = $1`, r.ID); err != nil {
			return fmt.Errorf("failed to clear items: %w", err)
		}
		return t.insertItems(ctx, r)
	}

	for _, it := range r.Items {
		if _, err := t.tx.Exec(ctx, `
			UPDATE material_request_items SET delivered_quantity = $3
			WHERE id = $1 AND request_id = $2 AND delivered_quantity <> $3
		`, it.ID, r.ID, it.DeliveredQuantity); err != nil {
			return mapError(err, "failed to update item", "material request item")
		}
	}
	return nil
}

func (t *materialRequestTx) SoftDelete(ctx context.Context, r *models.MaterialRequest, at time.Time) error {
	r.DeletedAt = &at
	r.UpdatedAt = at
	return t.Save(ctx, r, false)
}

func (t *materialRequestTx) AppendHistory(ctx context.Context, h *models.MaterialRequestHistory) error {
	var from *string
	if h.FromStatus != "" {
		s := string(h.FromStatus)
		from = &s
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO material_request_history (
			id, request_id, organization_id, command, from_status, to_status, user_id, comment, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, h.ID, h.RequestID, h.OrganizationID, h.Command, from, string(h.ToStatus), h.UserID, h.Comment, h.Timestamp)
	if err != nil {
		return mapError(err, "failed to insert history", "material request history")
	}
	return nil
}

func (t *materialRequestTx) AppendPayment(ctx context.Context, p *models.MaterialRequestPayment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO material_request_payments (
			id, request_id, organization_id, amount, applied_amount, reference, note, recorded_by, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, p.ID, p.RequestID, p.OrganizationID, p.Amount, p.AppliedAmount, p.Reference, p.Note, p.RecordedBy, p.RecordedAt)
	if err != nil {
		return mapError(err, "failed to insert payment", "material request payment")
	}
	return nil
}

func (t *materialRequestTx) EnqueueEvent(ctx context.Context, e *models.MaterialRequestEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO outbox_events (id, event_name, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`, e.ID, e.Name, payload, e.Timestamp)
	if err != nil {
		return mapError(err, "failed to enqueue event", "outbox event")
	}
	return nil
}
