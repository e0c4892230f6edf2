// services/scheduler.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"challenge-ladder/metrics"
	"challenge-ladder/models"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MaxTaskAttempts bounds how often a failing task is retried before it is parked as failed.
const MaxTaskAttempts = 5

// TaskHandler runs a fired task for one entity.
type TaskHandler func(ctx context.Context, entityID string) error

// ExpirationScheduler runs delayed one-shot tasks. Every task is first written
// as a ScheduledTask row inside the caller's transaction (Enqueue), then armed
// as an in-memory gocron job after commit (Arm). Reconcile re-arms pending rows
// that lost their job, e.g. after a restart.
type ExpirationScheduler struct {
	DB    *gorm.DB
	Clock clockwork.Clock
	Log   *zap.Logger
	Sched gocron.Scheduler

	mu       sync.RWMutex
	handlers map[models.TaskKind]TaskHandler
}

func NewExpirationScheduler(db *gorm.DB, clock clockwork.Clock, log *zap.Logger) (*ExpirationScheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithClock(clock), gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &ExpirationScheduler{
		DB:       db,
		Clock:    clock,
		Log:      log,
		Sched:    sched,
		handlers: make(map[models.TaskKind]TaskHandler),
	}, nil
}

// Register binds a handler to a task kind. Register before Start.
func (s *ExpirationScheduler) Register(kind models.TaskKind, h TaskHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[kind] = h
}

func (s *ExpirationScheduler) Start() {
	s.Sched.Start()
	s.Log.Info("⏰ expiration scheduler started")
}

func (s *ExpirationScheduler) Shutdown() error {
	return s.Sched.Shutdown()
}

// Enqueue writes (or replaces) the pending task for an entity in tx. The returned
// row must be passed to Arm once tx commits.
func (s *ExpirationScheduler) Enqueue(tx *gorm.DB, kind models.TaskKind, entityID string, runAt time.Time) (*models.ScheduledTask, error) {
	task := models.ScheduledTask{
		Key:      models.TaskKey(kind, entityID),
		Kind:     kind,
		EntityID: entityID,
		RunAt:    runAt.UTC(),
		Status:   models.TaskPending,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"run_at":     task.RunAt,
			"status":     models.TaskPending,
			"attempts":   0,
			"last_error": "",
			"updated_at": s.Clock.Now().UTC(),
		}),
	}).Create(&task).Error
	if err != nil {
		return nil, fmt.Errorf("enqueue %s: %w", task.Key, err)
	}
	return &task, nil
}

// Cancel marks the entity's pending task cancelled in tx. Call Disarm after commit.
func (s *ExpirationScheduler) Cancel(tx *gorm.DB, kind models.TaskKind, entityID string) error {
	err := tx.Model(&models.ScheduledTask{}).
		Where("key = ? AND status = ?", models.TaskKey(kind, entityID), models.TaskPending).
		Update("status", models.TaskCancelled).Error
	if err != nil {
		return fmt.Errorf("cancel task: %w", err)
	}
	return nil
}

// Arm replaces any in-memory job with the task's key by one firing at RunAt.
func (s *ExpirationScheduler) Arm(task models.ScheduledTask) error {
	s.Sched.RemoveByTags(task.Key)

	start := gocron.OneTimeJobStartImmediately()
	if task.RunAt.After(s.Clock.Now()) {
		start = gocron.OneTimeJobStartDateTime(task.RunAt)
	}

	key := task.Key
	_, err := s.Sched.NewJob(
		gocron.OneTimeJob(start),
		gocron.NewTask(func() {
			if err := s.Fire(context.Background(), key); err != nil {
				s.Log.Error("task failed", zap.String("key", key), zap.Error(err))
			}
		}),
		gocron.WithName(key),
		gocron.WithTags(key),
	)
	if err != nil {
		return fmt.Errorf("arm %s: %w", key, err)
	}
	return nil
}

// Disarm drops the in-memory job for key, if any.
func (s *ExpirationScheduler) Disarm(key string) {
	s.Sched.RemoveByTags(key)
}

// Armed reports whether a job tagged with key is currently scheduled.
func (s *ExpirationScheduler) Armed(key string) bool {
	_, ok := s.armedKeys()[key]
	return ok
}

func (s *ExpirationScheduler) armedKeys() map[string]struct{} {
	out := make(map[string]struct{})
	for _, j := range s.Sched.Jobs() {
		for _, t := range j.Tags() {
			out[t] = struct{}{}
		}
	}
	return out
}

// Fire runs the handler for a pending task. Tasks that are no longer pending
// are skipped; a failing handler leaves the task pending for the reconciler
// until MaxTaskAttempts is reached.
func (s *ExpirationScheduler) Fire(ctx context.Context, key string) error {
	var task models.ScheduledTask
	err := s.DB.WithContext(ctx).Where("key = ?", key).First(&task).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load task %s: %w", key, err)
	}
	if task.Status != models.TaskPending {
		metrics.ExpirationsFired.WithLabelValues(string(task.Kind), "skipped").Inc()
		return nil
	}

	if task.RunAt.After(s.Clock.Now()) {
		return s.Arm(task)
	}

	s.mu.RLock()
	h, ok := s.handlers[task.Kind]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no handler for task kind %q", task.Kind)
	}

	if herr := h(ctx, task.EntityID); herr != nil {
		metrics.ExpirationsFired.WithLabelValues(string(task.Kind), "error").Inc()
		status := models.TaskPending
		if task.Attempts+1 >= MaxTaskAttempts {
			status = models.TaskFailed
		}
		uerr := s.DB.WithContext(ctx).Model(&models.ScheduledTask{}).
			Where("key = ? AND status = ?", key, models.TaskPending).
			Updates(map[string]any{
				"attempts":   gorm.Expr("attempts + ?", 1),
				"last_error": herr.Error(),
				"status":     status,
			}).Error
		if uerr != nil {
			s.Log.Error("record task failure", zap.String("key", key), zap.Error(uerr))
		}
		return fmt.Errorf("run %s: %w", key, herr)
	}

	// Only close the row if it still describes this run; a reschedule in the
	// meantime moved RunAt and must stay pending.
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur models.ScheduledTask
		if err := tx.Where("key = ?", key).First(&cur).Error; err != nil {
			return err
		}
		if cur.Status != models.TaskPending || !cur.RunAt.Equal(task.RunAt) {
			return nil
		}
		return tx.Model(&models.ScheduledTask{}).
			Where("id = ? AND status = ?", cur.ID, models.TaskPending).
			Updates(map[string]any{"status": models.TaskDone, "attempts": gorm.Expr("attempts + ?", 1)}).Error
	})
	if err != nil {
		return fmt.Errorf("complete %s: %w", key, err)
	}
	metrics.ExpirationsFired.WithLabelValues(string(task.Kind), "ok").Inc()
	return nil
}

// Reconcile arms every pending task that has no in-memory job and returns how many it armed.
func (s *ExpirationScheduler) Reconcile(ctx context.Context) (int, error) {
	var pending []models.ScheduledTask
	if err := s.DB.WithContext(ctx).Where("status = ?", models.TaskPending).Find(&pending).Error; err != nil {
		return 0, fmt.Errorf("load pending tasks: %w", err)
	}
	armed := s.armedKeys()
	n := 0
	for _, t := range pending {
		if _, ok := armed[t.Key]; ok {
			continue
		}
		if err := s.Arm(t); err != nil {
			s.Log.Warn("re-arm failed", zap.String("key", t.Key), zap.Error(err))
			continue
		}
		metrics.TasksArmed.WithLabelValues("reconcile").Inc()
		n++
	}
	return n, nil
}
