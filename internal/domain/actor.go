package domain

// Cargo is a job-role slug. Ownership rules and approver capability are
// expressed in cargos.
type Cargo string

const (
	CargoAdmin                 Cargo = "admin"
	CargoDiretor               Cargo = "diretor"
	CargoCoordAdministrativo   Cargo = "coord_administrativo"
	CargoCoordAssessoria       Cargo = "coord_assessoria"
	CargoCoordObras            Cargo = "coord_obras"
	CargoOperacionalAdmin      Cargo = "operacional_admin"
	CargoOperacionalAssessoria Cargo = "operacional_assessoria"
	CargoOperacionalObras      Cargo = "operacional_obras"
)

// Sector is an organisational sector slug.
type Sector string

const (
	SectorAdministrativo Sector = "administrativo"
	SectorAssessoria     Sector = "assessoria"
	SectorObras          Sector = "obras"
)

// CargoSector maps operational and coordination cargos to their sector.
// Admin and diretor are cross-sector and intentionally absent.
var CargoSector = map[Cargo]Sector{
	CargoCoordAdministrativo:   SectorAdministrativo,
	CargoCoordAssessoria:       SectorAssessoria,
	CargoCoordObras:            SectorObras,
	CargoOperacionalAdmin:      SectorAdministrativo,
	CargoOperacionalAssessoria: SectorAssessoria,
	CargoOperacionalObras:      SectorObras,
}

// Known reports whether c is a cargo the engine recognises.
func (c Cargo) Known() bool {
	if c == CargoAdmin || c == CargoDiretor {
		return true
	}
	_, ok := CargoSector[c]
	return ok
}

// DefaultApproverCargos are the cargos allowed to approve or reject steps.
var DefaultApproverCargos = []Cargo{
	CargoAdmin, CargoDiretor, CargoCoordObras, CargoCoordAssessoria, CargoCoordAdministrativo,
}

// Actor identifies who performs an operation. It is always passed
// explicitly; nothing in the engine reads an ambient current user.
type Actor struct {
	ID     string `json:"id"`
	Cargo  Cargo  `json:"cargo,omitempty"`
	Sector Sector `json:"sector,omitempty"`
}

// CrossSector reports whether the actor sees every sector.
func (a Actor) CrossSector() bool {
	return a.Cargo == CargoAdmin || a.Cargo == CargoDiretor
}

// EffectiveSector returns the declared sector, falling back to the cargo's.
func (a Actor) EffectiveSector() Sector {
	if a.Sector != "" {
		return a.Sector
	}
	return CargoSector[a.Cargo]
}

// SystemActor is the actor recorded for background jobs.
var SystemActor = Actor{ID: "system", Cargo: CargoAdmin}
