package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
)

const addendumColumns = `id, seq, step_id, field_key, content, author_id, created_at`

func scanAddendum(row pgx.Row) (*domain.Addendum, error) {
	var a domain.Addendum
	if err := row.Scan(&a.ID, &a.Seq, &a.StepID, &a.FieldKey, &a.Content, &a.AuthorID, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

const insertAddendum = `-- name: InsertAddendum :one
INSERT INTO step_addenda (id, step_id, field_key, content, author_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + addendumColumns

func (q *Queries) InsertAddendum(ctx context.Context, a domain.Addendum) (*domain.Addendum, error) {
	row := q.db.QueryRow(ctx, insertAddendum, a.ID, a.StepID, a.FieldKey, a.Content, a.AuthorID, a.CreatedAt)
	return scanAddendum(row)
}

const listAddenda = `-- name: ListAddenda :many
SELECT ` + addendumColumns + `
FROM step_addenda
WHERE step_id = $1
ORDER BY created_at, seq`

func (q *Queries) ListAddenda(ctx context.Context, stepID string) ([]domain.Addendum, error) {
	rows, err := q.db.Query(ctx, listAddenda, stepID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Addendum{}
	for rows.Next() {
		a, err := scanAddendum(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

const countAddenda = `-- name: CountAddenda :many
SELECT step_id, COUNT(*)
FROM step_addenda
WHERE step_id = ANY($1::text[])
GROUP BY step_id`

func (q *Queries) CountAddenda(ctx context.Context, stepIDs []string) (map[string]int, error) {
	out := make(map[string]int)
	if len(stepIDs) == 0 {
		return out, nil
	}
	rows, err := q.db.Query(ctx, countAddenda, stepIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id string
			n  int64
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = int(n)
	}
	return out, rows.Err()
}

const delegationColumns = `id, order_id, delegator_id, delegate_id, step_ids, description, notes,
       deadline, status, created_at, updated_at`

func scanDelegation(row pgx.Row) (*domain.Delegation, error) {
	var (
		d        domain.Delegation
		status   string
		deadline pgtype.Timestamptz
	)
	err := row.Scan(
		&d.ID, &d.OrderID, &d.DelegatorID, &d.DelegateID, &d.StepIDs, &d.Description, &d.Notes,
		&deadline, &status, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Status = domain.DelegationStatus(status)
	d.Deadline = timePtr(deadline)
	d.CreatedAt = d.CreatedAt.UTC()
	d.UpdatedAt = d.UpdatedAt.UTC()
	return &d, nil
}

const insertDelegation = `-- name: InsertDelegation :one
INSERT INTO delegations (
    id, order_id, delegator_id, delegate_id, step_ids, description, notes,
    deadline, status, created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
RETURNING ` + delegationColumns

func (q *Queries) InsertDelegation(ctx context.Context, d domain.Delegation) (*domain.Delegation, error) {
	stepIDs := d.StepIDs
	if stepIDs == nil {
		stepIDs = []string{}
	}
	row := q.db.QueryRow(ctx, insertDelegation,
		d.ID, d.OrderID, d.DelegatorID, d.DelegateID, stepIDs, d.Description, d.Notes,
		tsOf(d.Deadline), string(d.Status), d.CreatedAt,
	)
	return scanDelegation(row)
}

const updateDelegation = `-- name: UpdateDelegation :one
UPDATE delegations
SET status = COALESCE($2, status),
    notes = COALESCE($3, notes),
    updated_at = $4
WHERE id = $1
RETURNING ` + delegationColumns

type UpdateDelegationParams struct {
	ID        string
	Status    pgtype.Text
	Notes     pgtype.Text
	UpdatedAt time.Time
}

func (q *Queries) UpdateDelegation(ctx context.Context, arg UpdateDelegationParams) (*domain.Delegation, error) {
	row := q.db.QueryRow(ctx, updateDelegation, arg.ID, arg.Status, arg.Notes, arg.UpdatedAt)
	return scanDelegation(row)
}

const getDelegation = `-- name: GetDelegation :one
SELECT ` + delegationColumns + `
FROM delegations
WHERE id = $1`

func (q *Queries) GetDelegation(ctx context.Context, id string) (*domain.Delegation, error) {
	return scanDelegation(q.db.QueryRow(ctx, getDelegation, id))
}

const listDelegations = `-- name: ListDelegations :many
SELECT ` + delegationColumns + `
FROM delegations
WHERE order_id = $1
ORDER BY created_at, id`

func (q *Queries) ListDelegations(ctx context.Context, orderID string) ([]domain.Delegation, error) {
	rows, err := q.db.Query(ctx, listDelegations, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Delegation{}
	for rows.Next() {
		d, err := scanDelegation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}
