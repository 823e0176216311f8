// Package app is the composition root. Bootstrap stays orchestration-only.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pCruvinel/Minervav2-sub003/internal/api/handlers"
	"github.com/pCruvinel/Minervav2-sub003/internal/api/middleware"
	"github.com/pCruvinel/Minervav2-sub003/internal/app/modules"
	"github.com/pCruvinel/Minervav2-sub003/internal/config"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
	"github.com/pCruvinel/Minervav2-sub003/internal/workflow"
)

// Version is stamped at build time with -ldflags "-X ...app.Version=...".
var Version = "dev"

// Application holds composed application dependencies.
type Application struct {
	Config  *config.Config
	Router  *gin.Engine
	Engine  *workflow.Engine
	Infra   *modules.Infrastructure
	Modules []modules.Module

	cancelRunners context.CancelFunc
	runnersDone   chan struct{}
}

// Bootstrap initializes all dependencies using module-oriented manual DI.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	infra, err := modules.NewInfrastructure(ctx, cfg, Version)
	if err != nil {
		return nil, fmt.Errorf("init infrastructure: %w", err)
	}

	wf := modules.NewWorkflowModule(infra)
	allModules := []modules.Module{
		wf,
		modules.NewNotificationModule(infra),
		modules.NewAuditModule(infra),
		modules.NewDeadlineModule(infra, wf.Engine()),
	}

	deps, err := modules.Wire(infra, allModules)
	if err != nil {
		infra.Close()
		return nil, fmt.Errorf("wire modules: %w", err)
	}
	server := handlers.NewServer(deps)
	jwtCfg := middleware.JWTConfig{
		SigningKey: []byte(cfg.Security.JWTSecret),
		Issuer:     cfg.Security.JWTIssuer,
		ExpiresIn:  cfg.Security.TokenTTL,
	}

	logger.Info("Application bootstrapped",
		zap.String("backend", cfg.Database.Backend),
		zap.Int("modules", len(allModules)),
		zap.Bool("telemetry", infra.Telemetry.Enabled()),
	)

	return &Application{
		Config:  cfg,
		Router:  newRouter(cfg, server, jwtCfg),
		Engine:  wf.Engine(),
		Infra:   infra,
		Modules: allModules,
	}, nil
}
