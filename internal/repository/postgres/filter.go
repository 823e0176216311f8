package postgres

import (
	"context"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	"github.com/pCruvinel/Minervav2-sub003/internal/workflow"
)

var orderColumnNames = []string{
	"id", "code", "type_code", "status", "parent_order_id", "sector", "responsible_id",
	"created_by", "description", "entry_date", "deadline", "completed_at", "version", "updated_at",
}

func selectOrders() (*entsql.Selector, *entsql.SelectTable) {
	t := entsql.Table("service_orders")
	cols := make([]string, len(orderColumnNames))
	for i, c := range orderColumnNames {
		cols[i] = t.C(c)
	}
	return entsql.Dialect(dialect.Postgres).Select(cols...).From(t), t
}

func statusArgs(statuses []domain.OrderStatus) []any {
	out := make([]any, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// buildListOrders renders f as one parameterized SELECT ordered by entry
// date, then id.
func buildListOrders(f workflow.OrderFilter) (string, []any) {
	sel, t := selectOrders()
	var preds []*entsql.Predicate
	if len(f.Statuses) > 0 {
		preds = append(preds, entsql.In(t.C("status"), statusArgs(f.Statuses)...))
	}
	if len(f.ExcludeStatuses) > 0 {
		preds = append(preds, entsql.NotIn(t.C("status"), statusArgs(f.ExcludeStatuses)...))
	}
	if f.Sector != "" {
		preds = append(preds, entsql.EQ(t.C("sector"), f.Sector))
	}
	if f.ResponsibleID != "" {
		preds = append(preds, entsql.EQ(t.C("responsible_id"), f.ResponsibleID))
	}
	if f.TypeCode != "" {
		preds = append(preds, entsql.EQ(t.C("type_code"), f.TypeCode))
	}
	if f.DeadlineBefore != nil {
		preds = append(preds,
			entsql.NotNull(t.C("deadline")),
			entsql.LT(t.C("deadline"), f.DeadlineBefore.UTC()),
		)
	}
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	sel.OrderBy(t.C("entry_date"), t.C("id"))
	if f.Limit > 0 {
		sel.Limit(f.Limit)
	}
	return sel.Query()
}

func buildListChildren(parentID string) (string, []any) {
	sel, t := selectOrders()
	sel.Where(entsql.EQ(t.C("parent_order_id"), parentID)).
		OrderBy(t.C("entry_date"), t.C("code"))
	return sel.Query()
}

func (q *Queries) ListOrders(ctx context.Context, f workflow.OrderFilter) ([]domain.Order, error) {
	query, args := buildListOrders(f)
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (q *Queries) ListChildren(ctx context.Context, parentID string) ([]domain.Order, error) {
	query, args := buildListChildren(parentID)
	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}
