package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
)

const orderColumns = `id, code, type_code, status, parent_order_id, sector, responsible_id,
       created_by, description, entry_date, deadline, completed_at, version, updated_at`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o           domain.Order
		status      string
		parent      pgtype.Text
		deadline    pgtype.Timestamptz
		completedAt pgtype.Timestamptz
	)
	err := row.Scan(
		&o.ID, &o.Code, &o.TypeCode, &status, &parent, &o.Sector, &o.ResponsibleID,
		&o.CreatedBy, &o.Description, &o.EntryDate, &deadline, &completedAt, &o.Version, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = domain.OrderStatus(status)
	o.ParentOrderID = stringPtr(parent)
	o.Deadline = timePtr(deadline)
	o.CompletedAt = timePtr(completedAt)
	o.EntryDate = o.EntryDate.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return &o, nil
}

func collectOrders(rows pgx.Rows) ([]domain.Order, error) {
	defer rows.Close()
	out := []domain.Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

const nextOrderCode = `-- name: NextOrderCode :one
INSERT INTO order_code_sequences (type_code, last_value)
VALUES ($1, 1)
ON CONFLICT (type_code) DO UPDATE SET last_value = order_code_sequences.last_value + 1
RETURNING last_value`

// NextOrderCode allocates the next sequence number for a type. The row
// lock taken by the upsert serializes concurrent openings of one type.
func (q *Queries) NextOrderCode(ctx context.Context, typeCode string) (int64, error) {
	var seq int64
	err := q.db.QueryRow(ctx, nextOrderCode, typeCode).Scan(&seq)
	return seq, err
}

const insertOrder = `-- name: InsertOrder :one
INSERT INTO service_orders (
    id, code, type_code, status, parent_order_id, sector, responsible_id,
    created_by, description, entry_date, deadline, version, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12)
RETURNING ` + orderColumns

type InsertOrderParams struct {
	ID            string
	Code          string
	TypeCode      string
	Status        string
	ParentOrderID pgtype.Text
	Sector        string
	ResponsibleID string
	CreatedBy     string
	Description   string
	EntryDate     time.Time
	Deadline      pgtype.Timestamptz
	UpdatedAt     time.Time
}

func (q *Queries) InsertOrder(ctx context.Context, arg InsertOrderParams) (*domain.Order, error) {
	row := q.db.QueryRow(ctx, insertOrder,
		arg.ID, arg.Code, arg.TypeCode, arg.Status, arg.ParentOrderID, arg.Sector, arg.ResponsibleID,
		arg.CreatedBy, arg.Description, arg.EntryDate, arg.Deadline, arg.UpdatedAt,
	)
	return scanOrder(row)
}

const getOrder = `-- name: GetOrder :one
SELECT ` + orderColumns + `
FROM service_orders
WHERE id = $1`

func (q *Queries) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

const getOrderForUpdate = getOrder + `
FOR UPDATE`

func (q *Queries) GetOrderForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, id))
}

const updateOrder = `-- name: UpdateOrder :one
UPDATE service_orders
SET status = $2,
    responsible_id = $3,
    deadline = $4,
    completed_at = $5,
    version = version + 1,
    updated_at = $6
WHERE id = $1
RETURNING ` + orderColumns

type UpdateOrderParams struct {
	ID            string
	Status        string
	ResponsibleID string
	Deadline      pgtype.Timestamptz
	CompletedAt   pgtype.Timestamptz
	UpdatedAt     time.Time
}

func (q *Queries) UpdateOrder(ctx context.Context, arg UpdateOrderParams) (*domain.Order, error) {
	row := q.db.QueryRow(ctx, updateOrder,
		arg.ID, arg.Status, arg.ResponsibleID, arg.Deadline, arg.CompletedAt, arg.UpdatedAt,
	)
	return scanOrder(row)
}

const orderExists = `-- name: OrderExists :one
SELECT EXISTS (SELECT 1 FROM service_orders WHERE id = $1)`

func (q *Queries) OrderExists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := q.db.QueryRow(ctx, orderExists, id).Scan(&ok)
	return ok, err
}
