package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	apperrors "github.com/pCruvinel/Minervav2-sub003/internal/pkg/errors"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/worker"
	"github.com/pCruvinel/Minervav2-sub003/internal/workflow"
)

const (
	// DefaultDeadlineScanInterval is how often the deadline scan runs.
	DefaultDeadlineScanInterval = time.Hour
	// DefaultDeadlineNoticeWindow is how far ahead an approaching deadline
	// is reported.
	DefaultDeadlineNoticeWindow = 48 * time.Hour
)

// DeadlineEngine is the engine surface the deadline scan drives.
type DeadlineEngine interface {
	RefreshOrderStatus(ctx context.Context, orderID string, actor domain.Actor) (*domain.Order, bool, error)
	RaiseDeadlineAlert(ctx context.Context, orderID string, window time.Duration, actor domain.Actor) (bool, error)
}

// AlertSink schedules a deadline alert for one order and calendar day.
type AlertSink interface {
	AlertDeadline(ctx context.Context, orderID, day string) error
}

// ScanResult summarizes one deadline scan.
type ScanResult struct {
	Scanned int
	Overdue int
	Alerts  int
}

// DeadlineScanner finds non-terminal orders whose deadline is past or
// within the notice window, moves past-deadline ones to overdue and
// schedules one alert per order per day.
type DeadlineScanner struct {
	orders workflow.OrderStore
	engine DeadlineEngine
	sink   AlertSink
	notice time.Duration
	now    func() time.Time
	pool   *worker.Pool
}

// NewDeadlineScanner creates a scanner. Non-positive notice falls back to
// DefaultDeadlineNoticeWindow.
func NewDeadlineScanner(orders workflow.OrderStore, engine DeadlineEngine, sink AlertSink, notice time.Duration) *DeadlineScanner {
	if notice <= 0 {
		notice = DefaultDeadlineNoticeWindow
	}
	return &DeadlineScanner{
		orders: orders,
		engine: engine,
		sink:   sink,
		notice: notice,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the scanner's time source.
func (s *DeadlineScanner) WithClock(now func() time.Time) *DeadlineScanner {
	s.now = now
	return s
}

// WithPool spreads the per-order work of a pass over pool. Without one
// orders are handled one after another.
func (s *DeadlineScanner) WithPool(pool *worker.Pool) *DeadlineScanner {
	s.pool = pool
	return s
}

// Scan runs one pass. Per-order failures are logged and joined; they do
// not stop the pass.
func (s *DeadlineScanner) Scan(ctx context.Context) (ScanResult, error) {
	now := s.now()
	cutoff := now.Add(s.notice)
	orders, err := s.orders.ListOrders(ctx, workflow.OrderFilter{
		ExcludeStatuses: []domain.OrderStatus{domain.OrderCompleted, domain.OrderCancelled},
		DeadlineBefore:  &cutoff,
	})
	if err != nil {
		return ScanResult{}, fmt.Errorf("list orders near deadline: %w", err)
	}

	res := ScanResult{Scanned: len(orders)}
	day := now.UTC().Format(time.DateOnly)
	var (
		mu   sync.Mutex
		errs []error
	)
	fail := func(msg, orderID string, err error) {
		logger.FromContext(ctx).Warn(msg, logger.OrderID(orderID), zap.Error(err))
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	tasks := make([]worker.Task, 0, len(orders))
	for i := range orders {
		o := orders[i]
		tasks = append(tasks, func(ctx context.Context) {
			if o.PastDeadline(now) && o.Status != domain.OrderOverdue {
				_, changed, err := s.engine.RefreshOrderStatus(ctx, o.ID, domain.SystemActor)
				switch {
				case err != nil:
					fail("deadline scan: refresh order status failed", o.ID, err)
				case changed:
					mu.Lock()
					res.Overdue++
					mu.Unlock()
				}
			}
			if err := s.sink.AlertDeadline(ctx, o.ID, day); err != nil {
				fail("deadline scan: schedule alert failed", o.ID, err)
				return
			}
			mu.Lock()
			res.Alerts++
			mu.Unlock()
		})
	}
	if s.pool != nil {
		if err := s.pool.RunAll(ctx, tasks...); err != nil {
			errs = append(errs, fmt.Errorf("deadline scan: %w", err))
		}
	} else {
		for _, task := range tasks {
			task(ctx)
		}
	}

	logger.Info("deadline scan completed",
		zap.Int("scanned", res.Scanned),
		zap.Int("overdue", res.Overdue),
		zap.Int("alerts", res.Alerts),
	)
	return res, errors.Join(errs...)
}

// DirectAlertSink raises alerts synchronously through the engine. The
// notification dedup key keeps it to one alert per order per day.
type DirectAlertSink struct {
	engine DeadlineEngine
	window time.Duration
}

// NewDirectAlertSink creates a synchronous sink.
func NewDirectAlertSink(engine DeadlineEngine, window time.Duration) *DirectAlertSink {
	return &DirectAlertSink{engine: engine, window: window}
}

// AlertDeadline raises the alert now.
func (d *DirectAlertSink) AlertDeadline(ctx context.Context, orderID, _ string) error {
	_, err := d.engine.RaiseDeadlineAlert(ctx, orderID, d.window, domain.SystemActor)
	return err
}

// RiverAlertSink enqueues a DeadlineAlertArgs job, unique per order and day.
type RiverAlertSink struct {
	client *river.Client[pgx.Tx]
}

// NewRiverAlertSink creates a queue-backed sink.
func NewRiverAlertSink(client *river.Client[pgx.Tx]) *RiverAlertSink {
	return &RiverAlertSink{client: client}
}

// AlertDeadline enqueues the alert job.
func (r *RiverAlertSink) AlertDeadline(ctx context.Context, orderID, day string) error {
	if _, err := r.client.Insert(ctx, DeadlineAlertArgs{OrderID: orderID, Day: day}, nil); err != nil {
		return fmt.Errorf("enqueue deadline alert for %s: %w", orderID, err)
	}
	return nil
}

// DeadlineCheckArgs is the periodic deadline scan.
type DeadlineCheckArgs struct{}

// Kind returns the job kind identifier for the deadline scan.
func (DeadlineCheckArgs) Kind() string { return "deadline_check" }

// InsertOpts keeps concurrent schedulers from stacking scans.
func (DeadlineCheckArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByPeriod: time.Minute,
			ByQueue:  true,
			ByArgs:   true,
		},
	}
}

// DeadlineCheckWorker runs the scanner.
type DeadlineCheckWorker struct {
	river.WorkerDefaults[DeadlineCheckArgs]
	scanner *DeadlineScanner
}

// NewDeadlineCheckWorker creates the scan worker.
func NewDeadlineCheckWorker(scanner *DeadlineScanner) *DeadlineCheckWorker {
	return &DeadlineCheckWorker{scanner: scanner}
}

// Work runs one scan.
func (w *DeadlineCheckWorker) Work(ctx context.Context, _ *river.Job[DeadlineCheckArgs]) error {
	if w == nil || w.scanner == nil {
		return fmt.Errorf("deadline check worker is not initialized")
	}
	_, err := w.scanner.Scan(ctx)
	return err
}

// DeadlineAlertArgs raises the deadline alert of one order for one day.
type DeadlineAlertArgs struct {
	OrderID string `json:"order_id"`
	Day     string `json:"day"`
}

// Kind returns the job kind identifier for a deadline alert.
func (DeadlineAlertArgs) Kind() string { return "deadline_alert" }

// InsertOpts makes the alert unique per order and day.
func (DeadlineAlertArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 3,
		UniqueOpts: river.UniqueOpts{
			ByArgs:   true,
			ByPeriod: 24 * time.Hour,
		},
	}
}

// DeadlineAlertWorker raises the alert through the engine.
type DeadlineAlertWorker struct {
	river.WorkerDefaults[DeadlineAlertArgs]
	engine DeadlineEngine
	window time.Duration
}

// NewDeadlineAlertWorker creates the alert worker.
func NewDeadlineAlertWorker(engine DeadlineEngine, window time.Duration) *DeadlineAlertWorker {
	if window <= 0 {
		window = DefaultDeadlineNoticeWindow
	}
	return &DeadlineAlertWorker{engine: engine, window: window}
}

// Work raises the alert.
func (w *DeadlineAlertWorker) Work(ctx context.Context, job *river.Job[DeadlineAlertArgs]) error {
	if w == nil || w.engine == nil {
		return fmt.Errorf("deadline alert worker is not initialized")
	}
	raised, err := w.engine.RaiseDeadlineAlert(ctx, job.Args.OrderID, w.window, domain.SystemActor)
	if err != nil {
		err = fmt.Errorf("raise deadline alert for %s: %w", job.Args.OrderID, err)
		if _, ok := apperrors.As(err); ok && !apperrors.Retryable(err) {
			// A missing or closed order will not heal on retry.
			return river.JobCancel(err)
		}
		return err
	}
	if !raised {
		logger.Debug("deadline alert no longer applies", zap.String("order_id", job.Args.OrderID))
	}
	return nil
}
