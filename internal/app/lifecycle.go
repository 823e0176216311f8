package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pCruvinel/Minervav2-sub003/internal/app/modules"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
)

// Start starts all background services. On postgres that is the River
// client; on the memory backend the modules' in-process loops.
func (a *Application) Start(ctx context.Context) error {
	if a.Infra != nil && a.Infra.RiverClient != nil {
		if err := a.Infra.RiverClient.Start(ctx); err != nil {
			return fmt.Errorf("start river client: %w", err)
		}
		logger.Info("River client started, jobs will now be consumed")
		return nil
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	a.cancelRunners = cancel
	a.runnersDone = done

	var runners []modules.Runner
	for _, mod := range a.Modules {
		if r, ok := mod.(modules.Runner); ok {
			runners = append(runners, r)
		}
	}
	go func() {
		defer close(done)
		finished := make(chan struct{}, len(runners))
		for _, r := range runners {
			go func(r modules.Runner) {
				r.Run(runCtx)
				finished <- struct{}{}
			}(r)
		}
		for range runners {
			<-finished
		}
	}()
	logger.Info("In-process background loops started", zap.Int("runners", len(runners)))
	return nil
}

// Shutdown gracefully shuts down all application components.
func (a *Application) Shutdown() {
	shutdownCtx := context.Background()

	if a.cancelRunners != nil {
		a.cancelRunners()
		<-a.runnersDone
	}

	if a.Infra != nil && a.Infra.RiverClient != nil {
		if err := a.Infra.RiverClient.Stop(shutdownCtx); err != nil {
			logger.Error("failed to stop river client", zap.Error(err))
		}
		logger.Info("River client stopped")
	}

	for _, mod := range a.Modules {
		if mod == nil {
			continue
		}
		if err := mod.Shutdown(shutdownCtx); err != nil {
			logger.Warn("module shutdown returned error",
				zap.String("module", mod.Name()),
				zap.Error(err),
			)
		}
	}

	a.Infra.Close()
}
