package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
)

const stepColumns = `id, order_id, ordem, name, template_key, status, step_data, responsible_id,
       approver_id, comment, started_at, completed_at, due_at, history, version, created_at, updated_at`

func scanStep(row pgx.Row) (*domain.Step, error) {
	var (
		s           domain.Step
		status      string
		data        []byte
		history     []byte
		startedAt   pgtype.Timestamptz
		completedAt pgtype.Timestamptz
		dueAt       pgtype.Timestamptz
	)
	err := row.Scan(
		&s.ID, &s.OrderID, &s.Ordem, &s.Name, &s.TemplateKey, &status, &data, &s.ResponsibleID,
		&s.ApproverID, &s.Comment, &startedAt, &completedAt, &dueAt, &history, &s.Version, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Status = domain.StepStatus(status)
	s.Data = domain.StepData{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.Data); err != nil {
			return nil, err
		}
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &s.History); err != nil {
			return nil, err
		}
	}
	if s.History == nil {
		s.History = []domain.StepTransition{}
	}
	s.StartedAt = timePtr(startedAt)
	s.CompletedAt = timePtr(completedAt)
	s.DueAt = timePtr(dueAt)
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}

const listSteps = `-- name: ListSteps :many
SELECT ` + stepColumns + `
FROM order_steps
WHERE order_id = $1
ORDER BY ordem`

func (q *Queries) ListSteps(ctx context.Context, orderID string) ([]domain.Step, error) {
	rows, err := q.db.Query(ctx, listSteps, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Step{}
	for rows.Next() {
		s, err := scanStep(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

const getStep = `-- name: GetStep :one
SELECT ` + stepColumns + `
FROM order_steps
WHERE id = $1`

func (q *Queries) GetStep(ctx context.Context, id string) (*domain.Step, error) {
	return scanStep(q.db.QueryRow(ctx, getStep, id))
}

// insertStepAt only inserts when ordem extends the order's sequence by
// exactly one. Zero rows means the sequence would break.
const insertStepAt = `-- name: InsertStepAt :one
INSERT INTO order_steps (id, order_id, ordem, name, template_key, status, created_at, updated_at)
SELECT $1, $2, $3, $4, $5, 'pending', $6, $6
WHERE (SELECT COALESCE(MAX(ordem), 0) FROM order_steps WHERE order_id = $2) = $3 - 1
RETURNING ` + stepColumns

type InsertStepAtParams struct {
	ID          string
	OrderID     string
	Ordem       int32
	Name        string
	TemplateKey string
	CreatedAt   time.Time
}

func (q *Queries) InsertStepAt(ctx context.Context, arg InsertStepAtParams) (*domain.Step, error) {
	row := q.db.QueryRow(ctx, insertStepAt,
		arg.ID, arg.OrderID, arg.Ordem, arg.Name, arg.TemplateKey, arg.CreatedAt,
	)
	return scanStep(row)
}

// updateStep is guarded by version; zero rows means a lost race.
const updateStep = `-- name: UpdateStep :one
UPDATE order_steps
SET status = $3,
    step_data = $4,
    responsible_id = $5,
    approver_id = $6,
    comment = $7,
    started_at = $8,
    completed_at = $9,
    due_at = $10,
    history = $11,
    version = version + 1,
    updated_at = $12
WHERE id = $1 AND version = $2
RETURNING ` + stepColumns

type UpdateStepParams struct {
	ID              string
	ExpectedVersion int64
	Status          string
	StepData        []byte
	ResponsibleID   string
	ApproverID      string
	Comment         string
	StartedAt       pgtype.Timestamptz
	CompletedAt     pgtype.Timestamptz
	DueAt           pgtype.Timestamptz
	History         []byte
	UpdatedAt       time.Time
}

func (q *Queries) UpdateStep(ctx context.Context, arg UpdateStepParams) (*domain.Step, error) {
	row := q.db.QueryRow(ctx, updateStep,
		arg.ID, arg.ExpectedVersion, arg.Status, arg.StepData, arg.ResponsibleID, arg.ApproverID,
		arg.Comment, arg.StartedAt, arg.CompletedAt, arg.DueAt, arg.History, arg.UpdatedAt,
	)
	return scanStep(row)
}

// updateStepParams flattens the patched step into the UPDATE arguments.
func updateStepParams(next domain.Step, expectedVersion int64) (UpdateStepParams, error) {
	data, err := json.Marshal(next.Data)
	if err != nil {
		return UpdateStepParams{}, err
	}
	history := next.History
	if history == nil {
		history = []domain.StepTransition{}
	}
	hist, err := json.Marshal(history)
	if err != nil {
		return UpdateStepParams{}, err
	}
	return UpdateStepParams{
		ID:              next.ID,
		ExpectedVersion: expectedVersion,
		Status:          string(next.Status),
		StepData:        data,
		ResponsibleID:   next.ResponsibleID,
		ApproverID:      next.ApproverID,
		Comment:         next.Comment,
		StartedAt:       tsOf(next.StartedAt),
		CompletedAt:     tsOf(next.CompletedAt),
		DueAt:           tsOf(next.DueAt),
		History:         hist,
		UpdatedAt:       next.UpdatedAt,
	}, nil
}
