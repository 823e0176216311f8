package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/pCruvinel/Minervav2-sub003/internal/api/middleware"
	"github.com/pCruvinel/Minervav2-sub003/internal/config"
	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
)

func testConfig() (*config.Config, error) {
	return &config.Config{
		Database: config.DatabaseConfig{Backend: config.BackendMemory},
		Security: config.SecurityConfig{
			JWTSecret: strings.Repeat("c", 32),
			JWTIssuer: "minerva",
			TokenTTL:  time.Hour,
		},
		Worker: config.WorkerConfig{GeneralPoolSize: 2, FanoutPoolSize: 2},
		Workflow: config.WorkflowConfig{
			DeadlineAlertWindow:   72 * time.Hour,
			MaxHierarchyDepth:     10,
			DeadlineScanInterval:  time.Hour,
			DeadlineNoticeWindow:  48 * time.Hour,
			NotificationRetention: time.Hour,
		},
	}, nil
}

func execute(t *testing.T, load func() (*config.Config, error), args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(load)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	out, err := execute(t, testConfig, "token", "--json", "--id", "ana", "--cargo", "coord_obras", "--sector", "obras")
	require.NoError(t, err, out)

	var got struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expires_at"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))

	cfg, _ := testConfig()
	claims, err := middleware.JWTConfig{
		SigningKey: []byte(cfg.Security.JWTSecret),
		Issuer:     cfg.Security.JWTIssuer,
	}.ValidateToken(got.Token)
	require.NoError(t, err)
	require.Equal(t, domain.Actor{ID: "ana", Cargo: domain.CargoCoordObras, Sector: domain.SectorObras}, claims.Actor())
	require.NotEmpty(t, got.ExpiresAt)
}

func TestTokenCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		load func() (*config.Config, error)
		args []string
	}{
		{"unknown cargo", testConfig, []string{"token", "--id", "ana", "--cargo", "estagiario"}},
		{"missing id", testConfig, []string{"token", "--cargo", "coord_obras"}},
		{"config error", func() (*config.Config, error) { return nil, errors.New("boom") }, []string{"token", "--id", "a", "--cargo", "admin"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.load, tt.args...)
			require.Error(t, err)
		})
	}
}

func TestCatalogCommand(t *testing.T) {
	out, err := execute(t, testConfig, "catalog")
	require.NoError(t, err, out)

	var types []map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &types))
	require.Len(t, types, 13)
	require.Equal(t, "OS-01", types[0]["code"])

	out, err = execute(t, testConfig, "catalog", "handoffs", "OS-01", "--json")
	require.NoError(t, err, out)
	var handoffs []domain.HandoffPoint
	require.NoError(t, json.Unmarshal([]byte(out), &handoffs))
	require.Len(t, handoffs, 4)

	_, err = execute(t, testConfig, "catalog", "handoffs", "OS-99")
	require.ErrorContains(t, err, "unknown order type")
}

func TestOpenCommand_MemoryBackend(t *testing.T) {
	out, err := execute(t, testConfig, "open", "--json", "--type", "OS-09", "--id", "ana", "--cargo", "coord_administrativo")
	require.NoError(t, err, out)

	var got struct {
		Order     domain.Order `json:"order"`
		FirstStep domain.Step  `json:"first_step"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Equal(t, "OS-09", got.Order.TypeCode)
	require.Equal(t, domain.OrderIntake, got.Order.Status)
	require.Equal(t, 1, got.FirstStep.Ordem)
}
