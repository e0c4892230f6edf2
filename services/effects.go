package services

import (
	"context"

	"challenge-ladder/metrics"
	"challenge-ladder/models"

	"go.uber.org/zap"
)

// effects collects the work that must only happen after a transaction commits:
// arming or dropping in-memory jobs, dropping cached standings and sending
// notifications.
type effects struct {
	arm    []models.ScheduledTask
	disarm []string
	msgs   []Message
	ranks  bool
}

func (fx *effects) schedule(t *models.ScheduledTask) {
	if t != nil {
		fx.arm = append(fx.arm, *t)
	}
}

func (fx *effects) unschedule(kind models.TaskKind, entityID string) {
	fx.disarm = append(fx.disarm, models.TaskKey(kind, entityID))
}

// ranksChanged marks that the transaction wrote stats rows or points.
func (fx *effects) ranksChanged() {
	fx.ranks = true
}

func (fx *effects) notify(msgs ...Message) {
	fx.msgs = append(fx.msgs, msgs...)
}

// flush runs the collected effects. Arm failures are logged; the reconciler
// picks those tasks up from the table.
func (fx *effects) flush(ctx context.Context, tasks *ExpirationScheduler, ranking *RankingEngine, n Notifier, log *zap.Logger) {
	if fx.ranks {
		ranking.Invalidate(ctx)
	}
	if tasks != nil {
		for _, key := range fx.disarm {
			tasks.Disarm(key)
		}
		for _, t := range fx.arm {
			if err := tasks.Arm(t); err != nil {
				log.Warn("arm after commit failed", zap.String("key", t.Key), zap.Error(err))
				continue
			}
			metrics.TasksArmed.WithLabelValues("commit").Inc()
		}
	}
	Deliver(ctx, n, log, fx.msgs)
}
