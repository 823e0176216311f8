package capability

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
)

func TestHasApproverCapability(t *testing.T) {
	t.Parallel()

	p := New(domain.DefaultCatalog(), nil)
	step := &domain.Step{ID: "s1", ApproverID: "designated"}

	tests := []struct {
		name  string
		actor domain.Actor
		step  *domain.Step
		want  bool
	}{
		{"coordinator", domain.Actor{ID: "u1", Cargo: domain.CargoCoordObras}, step, true},
		{"director", domain.Actor{ID: "u2", Cargo: domain.CargoDiretor}, step, true},
		{"operational", domain.Actor{ID: "u3", Cargo: domain.CargoOperacionalObras}, step, false},
		{"designated approver", domain.Actor{ID: "designated", Cargo: domain.CargoOperacionalAdmin}, step, true},
		{"nil step", domain.Actor{ID: "designated"}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, p.HasApproverCapability(tt.actor, tt.step))
		})
	}
}

func TestCustomApproverCargos(t *testing.T) {
	t.Parallel()

	p := New(nil, []domain.Cargo{domain.CargoDiretor, domain.CargoAdmin})
	require.Equal(t, []domain.Cargo{domain.CargoAdmin, domain.CargoDiretor}, p.ApproverCargos())
	require.False(t, p.HasApproverCapability(domain.Actor{ID: "u", Cargo: domain.CargoCoordObras}, nil))
}

func TestHasSectorMatch(t *testing.T) {
	t.Parallel()

	p := New(domain.DefaultCatalog(), nil)
	lead := &domain.Order{ID: "o1", TypeCode: "OS-01", Sector: "obras"}
	reform := &domain.Order{ID: "o2", TypeCode: "OS-07", Sector: "assessoria"}

	tests := []struct {
		name  string
		actor domain.Actor
		order *domain.Order
		want  bool
	}{
		{"same sector", domain.Actor{Cargo: domain.CargoOperacionalObras}, lead, true},
		{"stage owner sector", domain.Actor{Cargo: domain.CargoOperacionalAdmin}, lead, true},
		{"foreign sector", domain.Actor{Cargo: domain.CargoOperacionalObras}, reform, false},
		{"cross sector", domain.Actor{Cargo: domain.CargoAdmin}, reform, true},
		{"no sector", domain.Actor{ID: "x"}, lead, false},
		{"nil order", domain.Actor{Cargo: domain.CargoAdmin}, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, p.HasSectorMatch(tt.actor, tt.order))
		})
	}
}
