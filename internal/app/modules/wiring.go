package modules

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/pCruvinel/Minervav2-sub003/internal/api/handlers"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
)

// Wire connects mods to the shared infrastructure: River workers,
// event subscriptions, then the HTTP deps each module contributes.
// Module names must be unique and the engine and inbox must be provided.
func Wire(infra *Infrastructure, mods []Module) (handlers.ServerDeps, error) {
	var deps handlers.ServerDeps
	seen := make(map[string]bool, len(mods))
	workers := infra.Workers()

	for _, mod := range mods {
		if mod == nil {
			continue
		}
		name := mod.Name()
		if seen[name] {
			return deps, fmt.Errorf("module %q registered twice", name)
		}
		seen[name] = true

		mod.RegisterWorkers(workers)
		_, subscribes := mod.(EventSubscriber)
		if subscribes {
			mod.(EventSubscriber).Subscribe(infra.Dispatcher)
		}
		_, runs := mod.(Runner)
		mod.ContributeServerDeps(&deps)

		logger.Debug("Module wired",
			zap.String("module", name),
			zap.Bool("subscriber", subscribes),
			zap.Bool("runner", runs),
			zap.Bool("river_workers", workers != nil),
		)
	}

	if deps.Engine == nil {
		return deps, fmt.Errorf("no module provides the workflow engine")
	}
	if deps.Inbox == nil {
		return deps, fmt.Errorf("no module provides the notification inbox")
	}
	return deps, nil
}
