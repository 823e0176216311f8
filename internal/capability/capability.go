// Package capability answers who may approve a step and who may work on
// an order, from the actor's cargo and sector.
package capability

import (
	"sort"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
)

// Provider implements workflow.CapabilityProvider.
type Provider struct {
	catalog   *domain.Catalog
	approvers map[domain.Cargo]bool
}

// New creates a Provider. An empty approverCargos selects
// domain.DefaultApproverCargos.
func New(catalog *domain.Catalog, approverCargos []domain.Cargo) *Provider {
	if len(approverCargos) == 0 {
		approverCargos = domain.DefaultApproverCargos
	}
	approvers := make(map[domain.Cargo]bool, len(approverCargos))
	for _, c := range approverCargos {
		approvers[c] = true
	}
	return &Provider{catalog: catalog, approvers: approvers}
}

// ApproverCargos lists the configured approver cargos, sorted.
func (p *Provider) ApproverCargos() []domain.Cargo {
	out := make([]domain.Cargo, 0, len(p.approvers))
	for c := range p.approvers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HasApproverCapability: an approver cargo, or the step's designated approver.
func (p *Provider) HasApproverCapability(actor domain.Actor, step *domain.Step) bool {
	if p.approvers[actor.Cargo] {
		return true
	}
	return step != nil && step.ApproverID != "" && step.ApproverID == actor.ID
}

// HasSectorMatch: admin and diretor match everything. Otherwise the actor's
// sector must be the order's sector or the sector of one of the stage
// owners of the order's type.
func (p *Provider) HasSectorMatch(actor domain.Actor, order *domain.Order) bool {
	if order == nil {
		return false
	}
	if actor.CrossSector() {
		return true
	}
	sector := actor.EffectiveSector()
	if sector == "" {
		return false
	}
	if string(sector) == order.Sector {
		return true
	}
	if p.catalog == nil {
		return false
	}
	t, ok := p.catalog.Type(order.TypeCode)
	if !ok {
		return false
	}
	for _, stage := range t.Ownership.Stages {
		if stage.Sector == sector {
			return true
		}
	}
	return false
}
