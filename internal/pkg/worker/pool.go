// Package worker provides the bounded goroutine pools the engine fans
// work out on.
//
// Naked goroutines are not used outside cmd/ and the composition root.
// Concurrent work goes through a Pool so it is bounded, recovers panics
// and honours context cancellation.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
)

// ErrPoolClosed is returned when submitting to a released pool.
var ErrPoolClosed = errors.New("worker pool is closed")

const (
	idleWorkerExpiry = 10 * time.Second
	shutdownTimeout  = 30 * time.Second
)

// Task is one unit of pooled work.
type Task func(ctx context.Context)

// Pool is a named ants pool with context-aware submission.
type Pool struct {
	pool *ants.Pool
	name string
}

// Pools are the process-wide pools.
type Pools struct {
	// General runs per-order background work such as the deadline scan.
	General *Pool
	// Fanout runs short read fan-outs such as loading the steps of every
	// order in a hierarchy chain.
	Fanout *Pool
}

// PoolConfig sizes the pools. Non-positive sizes fall back to the
// defaults.
type PoolConfig struct {
	GeneralPoolSize int
	FanoutPoolSize  int
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.GeneralPoolSize <= 0 {
		c.GeneralPoolSize = 100
	}
	if c.FanoutPoolSize <= 0 {
		c.FanoutPoolSize = 64
	}
	return c
}

// NewPool creates one named pool. Submit blocks while all size workers
// are busy.
func NewPool(name string, size int, expiry time.Duration) (*Pool, error) {
	p, err := ants.NewPool(size,
		ants.WithPanicHandler(func(r any) {
			logger.Error("Pooled task panicked",
				zap.String("pool", name),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}),
		ants.WithNonblocking(false),
		ants.WithExpiryDuration(expiry),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s pool: %w", name, err)
	}
	return &Pool{pool: p, name: name}, nil
}

// NewPools creates the general and fanout pools.
func NewPools(_ context.Context, cfg PoolConfig) (*Pools, error) {
	cfg = cfg.withDefaults()
	general, err := NewPool("general", cfg.GeneralPoolSize, idleWorkerExpiry)
	if err != nil {
		return nil, err
	}
	fanout, err := NewPool("fanout", cfg.FanoutPoolSize, idleWorkerExpiry)
	if err != nil {
		general.pool.Release()
		return nil, err
	}
	return &Pools{General: general, Fanout: fanout}, nil
}

// Submit queues task. A ctx cancelled before or while the task waits for
// a worker skips it.
func (p *Pool) Submit(ctx context.Context, task Task) error {
	return p.submit(ctx, func() {
		if ctx.Err() != nil {
			logger.Debug("Pooled task skipped", zap.String("pool", p.name), zap.Error(ctx.Err()))
			return
		}
		task(ctx)
	})
}

func (p *Pool) submit(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.pool.IsClosed() {
		return ErrPoolClosed
	}
	return p.pool.Submit(fn)
}

// RunAll runs tasks on the pool and waits for every one to finish or be
// skipped. Submission errors are joined; tasks report their own results.
func (p *Pool) RunAll(ctx context.Context, tasks ...Task) error {
	var (
		wg   sync.WaitGroup
		errs []error
	)
	for _, task := range tasks {
		wg.Add(1)
		err := p.submit(ctx, func() {
			defer wg.Done()
			if ctx.Err() == nil {
				task(ctx)
			}
		})
		if err != nil {
			wg.Done()
			errs = append(errs, err)
		}
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Release closes the pool, waiting up to timeout for running tasks.
func (p *Pool) Release(timeout time.Duration) error {
	return p.pool.ReleaseTimeout(timeout)
}

// Shutdown releases both pools.
func (p *Pools) Shutdown() {
	for _, pool := range []*Pool{p.General, p.Fanout} {
		if pool == nil {
			continue
		}
		if err := pool.Release(shutdownTimeout); err != nil {
			logger.Warn("Pool did not drain before shutdown", zap.String("pool", pool.name), zap.Error(err))
		}
	}
}
