package workflow

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	apperrors "github.com/pCruvinel/Minervav2-sub003/internal/pkg/errors"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
)

// MaxHierarchyDepth caps parent-pointer walks.
const MaxHierarchyDepth = 10

// Resolver walks parent/child links between orders.
type Resolver struct {
	orders   OrderStore
	catalog  *domain.Catalog
	maxDepth int
}

// NewResolver creates a Resolver. maxDepth <= 0 selects MaxHierarchyDepth.
func NewResolver(orders OrderStore, catalog *domain.Catalog, maxDepth int) *Resolver {
	if maxDepth <= 0 {
		maxDepth = MaxHierarchyDepth
	}
	return &Resolver{orders: orders, catalog: catalog, maxDepth: maxDepth}
}

// lookupLinked fetches an order reached through a link. Misses and
// unavailable stores both yield nil; the latter is logged.
func (r *Resolver) lookupLinked(ctx context.Context, id string) (*domain.Order, error) {
	o, err := r.orders.GetOrder(ctx, id)
	switch {
	case err == nil:
		return o, nil
	case errors.Is(err, apperrors.ErrNotFound):
		return nil, nil
	case apperrors.IsCode(err, apperrors.CodeStoreUnavailable):
		logger.Warn("linked order unavailable, treating as absent",
			zap.String("order_id", id), zap.Error(err))
		return nil, nil
	}
	return nil, err
}

// lookupSelf fetches the order a caller asked about. A miss yields nil;
// unavailability is returned.
func (r *Resolver) lookupSelf(ctx context.Context, id string) (*domain.Order, error) {
	o, err := r.orders.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return o, nil
}

// ResolveParent returns the order's parent, or nil.
func (r *Resolver) ResolveParent(ctx context.Context, orderID string) (*domain.Order, error) {
	o, err := r.lookupSelf(ctx, orderID)
	if err != nil || o == nil || !o.HasParent() {
		return nil, err
	}
	return r.lookupLinked(ctx, *o.ParentOrderID)
}

// ancestry returns start followed by its ancestors, nearest first.
func (r *Resolver) ancestry(ctx context.Context, start *domain.Order) ([]domain.Order, error) {
	path := []domain.Order{*start}
	visited := map[string]bool{start.ID: true}
	cur := start
	for hops := 0; cur.HasParent(); hops++ {
		if hops >= r.maxDepth {
			return nil, apperrors.HierarchyCycleError(start.ID, hops)
		}
		pid := *cur.ParentOrderID
		if visited[pid] {
			return nil, apperrors.HierarchyCycleError(start.ID, hops+1)
		}
		parent, err := r.lookupLinked(ctx, pid)
		if err != nil {
			return nil, err
		}
		if parent == nil {
			break
		}
		visited[pid] = true
		path = append(path, *parent)
		cur = parent
	}
	return path, nil
}

// ResolveRootLead walks parent pointers and returns the last order reached.
// A revisited order or more than maxDepth hops is a HierarchyCycleError.
func (r *Resolver) ResolveRootLead(ctx context.Context, orderID string) (*domain.Order, error) {
	o, err := r.lookupSelf(ctx, orderID)
	if err != nil || o == nil {
		return nil, err
	}
	path, err := r.ancestry(ctx, o)
	if err != nil {
		return nil, err
	}
	root := path[len(path)-1]
	return &root, nil
}

// ResolveChildren returns direct children ordered by entry date.
func (r *Resolver) ResolveChildren(ctx context.Context, orderID string) ([]domain.Order, error) {
	children, err := r.orders.ListChildren(ctx, orderID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	sort.SliceStable(children, func(i, j int) bool {
		return children[i].EntryDate.Before(children[j].EntryDate)
	})
	return children, nil
}

// IsActiveContract reports whether o is a contract-category order that is
// neither cancelled nor completed.
func IsActiveContract(catalog *domain.Catalog, o *domain.Order) bool {
	if o == nil || catalog == nil {
		return false
	}
	if catalog.CategoryOf(o.TypeCode) != domain.CategoryContract {
		return false
	}
	return o.Status != domain.OrderCancelled && o.Status != domain.OrderCompleted
}

// IsActiveContract is the Resolver-bound form of the package function.
func (r *Resolver) IsActiveContract(o *domain.Order) bool {
	return IsActiveContract(r.catalog, o)
}

// ResolveChain returns the chain root-first. It is built from the root
// lead so every member of a chain resolves to the same sequence:
//
//   - the root lead;
//   - its contract: the root itself when it is a contract, otherwise the
//     first active contract child, falling back to the first contract child;
//   - the non-contract children of the contract, or of the root when the
//     chain has no contract.
//
// An order queried from outside that sequence, such as a second contract
// of the same lead, is appended after it.
func (r *Resolver) ResolveChain(ctx context.Context, orderID string) ([]domain.Order, error) {
	o, err := r.lookupSelf(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, apperrors.NotFoundError(apperrors.CodeOrderNotFound, "order", orderID)
	}
	path, err := r.ancestry(ctx, o)
	if err != nil {
		return nil, err
	}
	root := path[len(path)-1]

	chain := make([]domain.Order, 0, 4)
	seen := make(map[string]bool, 4)
	add := func(x *domain.Order) {
		if x == nil || seen[x.ID] {
			return
		}
		seen[x.ID] = true
		chain = append(chain, *x)
	}
	add(&root)

	anchor := &root
	if r.catalog.CategoryOf(root.TypeCode) != domain.CategoryContract {
		if contract := r.pickContract(r.chainChildren(ctx, root.ID)); contract != nil {
			add(contract)
			anchor = contract
		}
	}
	for _, child := range r.chainChildren(ctx, anchor.ID) {
		if r.catalog.CategoryOf(child.TypeCode) == domain.CategoryContract {
			continue
		}
		add(&child)
	}
	add(o)
	return chain, nil
}

// chainChildren lists children for chain building. A failed lookup
// degrades the chain instead of failing it.
func (r *Resolver) chainChildren(ctx context.Context, orderID string) []domain.Order {
	children, err := r.ResolveChildren(ctx, orderID)
	if err != nil {
		logger.FromContext(ctx).Warn("children lookup failed, chain degrades",
			logger.OrderID(orderID), zap.Error(err))
		return nil
	}
	return children
}

// pickContract prefers the first active contract and falls back to the
// first contract of any status.
func (r *Resolver) pickContract(children []domain.Order) *domain.Order {
	var first *domain.Order
	for i := range children {
		if r.catalog.CategoryOf(children[i].TypeCode) != domain.CategoryContract {
			continue
		}
		if r.IsActiveContract(&children[i]) {
			return &children[i]
		}
		if first == nil {
			first = &children[i]
		}
	}
	return first
}
