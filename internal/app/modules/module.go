// Package modules groups the composition root's building blocks: the
// shared Infrastructure and one Module per feature area (workflow,
// notifications, audit, deadlines).
package modules

import (
	"context"

	"github.com/riverqueue/river"

	"github.com/pCruvinel/Minervav2-sub003/internal/api/handlers"
	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
)

// Module is a feature area wired by Wire.
type Module interface {
	// Name identifies the module in logs. Unique per application.
	Name() string

	// ContributeServerDeps fills the handler dependencies the module owns.
	ContributeServerDeps(*handlers.ServerDeps)

	// RegisterWorkers adds the module's River workers. workers is nil on
	// the memory backend, where Runner loops stand in for them.
	RegisterWorkers(workers *river.Workers)

	Shutdown(context.Context) error
}

// EventSubscriber modules receive committed domain events.
type EventSubscriber interface {
	Subscribe(*domain.EventDispatcher)
}

// Runner modules own a loop that runs until ctx is cancelled. Only the
// memory backend starts runners.
type Runner interface {
	Run(ctx context.Context)
}
