package workers

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Reconciler re-arms persisted expiration tasks that have no in-memory timer.
type Reconciler interface {
	Reconcile(ctx context.Context) (int, error)
}

// TaskReconcileWorker runs Reconcile once at start and then on every tick, so
// tasks written by another instance or left over from a crash still fire.
type TaskReconcileWorker struct {
	tasks    Reconciler
	clock    clockwork.Clock
	interval time.Duration
	log      *zap.Logger
}

func NewTaskReconcileWorker(tasks Reconciler, clock clockwork.Clock, interval time.Duration, log *zap.Logger) *TaskReconcileWorker {
	return &TaskReconcileWorker{tasks: tasks, clock: clock, interval: interval, log: log}
}

func (w *TaskReconcileWorker) Start(ctx context.Context) {
	w.log.Info("🔁 starting task reconciler", zap.Duration("interval", w.interval))
	go w.run(ctx)
}

func (w *TaskReconcileWorker) run(ctx context.Context) {
	w.reconcile(ctx)

	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			w.reconcile(ctx)
		case <-ctx.Done():
			w.log.Info("⏹️ task reconciler stopped")
			return
		}
	}
}

func (w *TaskReconcileWorker) reconcile(ctx context.Context) {
	n, err := w.tasks.Reconcile(ctx)
	if err != nil {
		w.log.Error("❌ reconcile failed", zap.Error(err))
		return
	}
	if n > 0 {
		w.log.Info("⏰ re-armed expiration tasks", zap.Int("count", n))
	}
}
