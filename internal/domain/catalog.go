package domain

import (
	_ "embed"
	"fmt"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Category groups order types by their role in a hierarchy chain.
type Category string

const (
	CategoryLead      Category = "lead"
	CategoryContract  Category = "contract"
	CategoryExecution Category = "execution"
	CategorySatellite Category = "satellite"
)

// Phase is the label a chain order gets in the unified workflow.
type Phase string

const (
	PhaseLead      Phase = "lead"
	PhaseContract  Phase = "contract"
	PhaseExecution Phase = "execution"
)

// Phase maps a category to its unified-workflow phase. Satellites are
// shown with execution orders.
func (c Category) Phase() Phase {
	switch c {
	case CategoryLead:
		return PhaseLead
	case CategoryContract:
		return PhaseContract
	default:
		return PhaseExecution
	}
}

// Initiator values that let any cargo open an order of the type.
const (
	InitiatorClient = "CLIENTE"
	InitiatorFree   = "LIVRE"
)

// StepTemplate describes one step of an order type.
type StepTemplate struct {
	Ordem             int      `yaml:"-" json:"ordem"`
	Key               string   `yaml:"key" json:"key"`
	Name              string   `yaml:"name" json:"name"`
	RequiresApproval  bool     `yaml:"requires_approval" json:"requires_approval"`
	RequiredFields    []string `yaml:"required_fields" json:"required_fields,omitempty"`
	RequiredDocuments []string `yaml:"required_documents" json:"required_documents,omitempty"`
	SLABusinessDays   int      `yaml:"sla_days" json:"sla_business_days"`
}

// StageOwner assigns a step range to the cargo that owns it.
type StageOwner struct {
	From   int    `yaml:"from" json:"from"`
	To     int    `yaml:"to" json:"to"`
	Cargo  Cargo  `yaml:"cargo" json:"cargo"`
	Sector Sector `yaml:"sector" json:"sector"`
}

// HandoffPoint marks where responsibility moves to another cargo.
type HandoffPoint struct {
	FromStep    int    `yaml:"from_step" json:"from_step"`
	ToStep      int    `yaml:"to_step" json:"to_step"`
	ToCargo     Cargo  `yaml:"to_cargo" json:"to_cargo"`
	ToSector    Sector `yaml:"to_sector" json:"to_sector"`
	Description string `yaml:"description" json:"description"`
}

// OwnershipRule is the per-type responsibility map.
type OwnershipRule struct {
	Initiator string         `json:"initiator"`
	Stages    []StageOwner   `json:"stages"`
	Handoffs  []HandoffPoint `json:"handoffs"`
}

// OrderType is a catalog entry: an ordered step template plus ownership.
type OrderType struct {
	Code           string         `json:"code"`
	Name           string         `json:"name"`
	Category       Category       `json:"category"`
	Sector         Sector         `json:"sector"`
	RequiresClient bool           `json:"requires_client"`
	Steps          []StepTemplate `json:"steps"`
	Ownership      OwnershipRule  `json:"ownership"`
}

// TotalSteps is the template length.
func (t *OrderType) TotalSteps() int { return len(t.Steps) }

// Catalog is an immutable index of order types.
type Catalog struct {
	types map[string]*OrderType
	codes []string
}

//go:embed catalog.yaml
var catalogYAML []byte

var (
	defaultCatalog     *Catalog
	defaultCatalogOnce sync.Once
)

// DefaultCatalog returns the embedded catalog. It panics if the embedded
// document is malformed, which is a build defect.
func DefaultCatalog() *Catalog {
	defaultCatalogOnce.Do(func() {
		c, err := LoadCatalog(catalogYAML)
		if err != nil {
			panic(fmt.Sprintf("domain: embedded catalog: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

type catalogFile struct {
	OrderTypes []struct {
		Code           string   `yaml:"code"`
		Name           string   `yaml:"name"`
		Category       Category `yaml:"category"`
		Sector         Sector   `yaml:"sector"`
		RequiresClient bool     `yaml:"requires_client"`
		Flow           string   `yaml:"flow"`
	} `yaml:"order_types"`
	Flows map[string]struct {
		Initiator string         `yaml:"initiator"`
		Steps     []StepTemplate `yaml:"steps"`
		Stages    []StageOwner   `yaml:"stages"`
		Handoffs  []HandoffPoint `yaml:"handoffs"`
	} `yaml:"flows"`
}

// LoadCatalog parses a catalog document.
func LoadCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	types := make([]OrderType, 0, len(file.OrderTypes))
	for _, entry := range file.OrderTypes {
		flow, ok := file.Flows[entry.Flow]
		if !ok {
			return nil, fmt.Errorf("order type %s: unknown flow %q", entry.Code, entry.Flow)
		}
		types = append(types, OrderType{
			Code:           entry.Code,
			Name:           entry.Name,
			Category:       entry.Category,
			Sector:         entry.Sector,
			RequiresClient: entry.RequiresClient,
			Steps:          append([]StepTemplate(nil), flow.Steps...),
			Ownership: OwnershipRule{
				Initiator: flow.Initiator,
				Stages:    append([]StageOwner(nil), flow.Stages...),
				Handoffs:  append([]HandoffPoint(nil), flow.Handoffs...),
			},
		})
	}
	return NewCatalog(types...)
}

// NewCatalog validates and indexes order types. Step ordem values are
// assigned from template position.
func NewCatalog(types ...OrderType) (*Catalog, error) {
	c := &Catalog{types: make(map[string]*OrderType, len(types))}
	for i := range types {
		t := types[i]
		if t.Code == "" {
			return nil, fmt.Errorf("order type #%d: empty code", i)
		}
		if _, dup := c.types[t.Code]; dup {
			return nil, fmt.Errorf("order type %s: duplicate code", t.Code)
		}
		switch t.Category {
		case CategoryLead, CategoryContract, CategoryExecution, CategorySatellite:
		default:
			return nil, fmt.Errorf("order type %s: unknown category %q", t.Code, t.Category)
		}
		if len(t.Steps) == 0 {
			return nil, fmt.Errorf("order type %s: no steps", t.Code)
		}
		steps := make([]StepTemplate, len(t.Steps))
		for j, st := range t.Steps {
			if st.Key == "" {
				return nil, fmt.Errorf("order type %s step %d: empty key", t.Code, j+1)
			}
			st.Ordem = j + 1
			steps[j] = st
		}
		t.Steps = steps
		if err := validateOwnership(&t); err != nil {
			return nil, err
		}
		c.types[t.Code] = &t
		c.codes = append(c.codes, t.Code)
	}
	sort.Strings(c.codes)
	return c, nil
}

func validateOwnership(t *OrderType) error {
	n := len(t.Steps)
	for _, s := range t.Ownership.Stages {
		if s.From < 1 || s.To > n || s.From > s.To {
			return fmt.Errorf("order type %s: stage %d-%d outside 1-%d", t.Code, s.From, s.To, n)
		}
	}
	for _, h := range t.Ownership.Handoffs {
		if h.FromStep < 1 || h.FromStep > n || h.ToStep < 1 || h.ToStep > n {
			return fmt.Errorf("order type %s: handoff %d->%d outside 1-%d", t.Code, h.FromStep, h.ToStep, n)
		}
	}
	return nil
}

// Codes lists the known type codes in ascending order.
func (c *Catalog) Codes() []string {
	return append([]string(nil), c.codes...)
}

// Type looks up an order type by code.
func (c *Catalog) Type(code string) (*OrderType, bool) {
	t, ok := c.types[code]
	return t, ok
}

// Types returns every order type ordered by code.
func (c *Catalog) Types() []OrderType {
	out := make([]OrderType, 0, len(c.codes))
	for _, code := range c.codes {
		out = append(out, *c.types[code])
	}
	return out
}

// Template returns the step template at ordem for the type.
func (c *Catalog) Template(code string, ordem int) (StepTemplate, bool) {
	t, ok := c.types[code]
	if !ok || ordem < 1 || ordem > len(t.Steps) {
		return StepTemplate{}, false
	}
	return t.Steps[ordem-1], true
}

// CategoryOf returns the type's category, or "" for unknown codes.
func (c *Catalog) CategoryOf(code string) Category {
	if t, ok := c.types[code]; ok {
		return t.Category
	}
	return ""
}

// StepOwner returns the stage owning ordem.
func (c *Catalog) StepOwner(code string, ordem int) (StageOwner, bool) {
	t, ok := c.types[code]
	if !ok {
		return StageOwner{}, false
	}
	for _, s := range t.Ownership.Stages {
		if ordem >= s.From && ordem <= s.To {
			return s, true
		}
	}
	return StageOwner{}, false
}

// Handoffs lists the type's handoff points in declaration order.
func (c *Catalog) Handoffs(code string) []HandoffPoint {
	t, ok := c.types[code]
	if !ok {
		return nil
	}
	return append([]HandoffPoint(nil), t.Ownership.Handoffs...)
}

// HandoffPoint returns the handoff declared for the from->to move.
func (c *Catalog) HandoffPoint(code string, from, to int) (HandoffPoint, bool) {
	t, ok := c.types[code]
	if !ok {
		return HandoffPoint{}, false
	}
	for _, h := range t.Ownership.Handoffs {
		if h.FromStep == from && h.ToStep == to {
			return h, true
		}
	}
	return HandoffPoint{}, false
}

// CheckDelegationRequired returns the handoff for from->to when the acting
// cargo is not the receiving cargo, and nil otherwise.
func (c *Catalog) CheckDelegationRequired(code string, from, to int, cargo Cargo) *HandoffPoint {
	h, ok := c.HandoffPoint(code, from, to)
	if !ok || h.ToCargo == cargo {
		return nil
	}
	return &h
}

// CanInitiate reports whether cargo may open an order of the type.
func (c *Catalog) CanInitiate(code string, cargo Cargo) bool {
	t, ok := c.types[code]
	if !ok {
		return false
	}
	switch t.Ownership.Initiator {
	case InitiatorClient, InitiatorFree, "":
		return true
	}
	if cargo == CargoAdmin || cargo == CargoDiretor {
		return true
	}
	return Cargo(t.Ownership.Initiator) == cargo
}

// AddBusinessDays adds days to t skipping Saturdays and Sundays.
func AddBusinessDays(t time.Time, days int) time.Time {
	for days > 0 {
		t = t.AddDate(0, 0, 1)
		if wd := t.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days--
		}
	}
	return t
}
