package retention

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"log-inspection/internal/platform/clock"
	"log-inspection/internal/shared"
	"log-inspection/internal/worker"
)

// fallbackWait пауза, если следующее срабатывание не удалось вычислить.
const fallbackWait = time.Minute

// SweepObserver получает итог каждой очистки, в том числе неудачной.
type SweepObserver func(p Policy, res Result, err error)

// Config параметры планировщика одной коллекции.
type Config struct {
	Policy    Policy
	Factory   *worker.Factory
	Clock     clock.Clock
	Logger    *slog.Logger
	AppName   string
	CreatedBy string // по умолчанию DefaultCreatedBy
	OnSweep   SweepObserver
}

// Scheduler периодически запускает Sweep для одной политики.
type Scheduler struct {
	policy    Policy
	schedule  cron.Schedule // nil для выключенной политики
	factory   *worker.Factory
	clock     clock.Clock
	logger    *slog.Logger
	app       string
	createdBy string
	onSweep   SweepObserver

	// sleep подменяется в тестах.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewScheduler проверяет политику и разбирает cron-выражение.
// Ошибка конфигурации относится только к этому планировщику.
func NewScheduler(cfg Config) (*Scheduler, error) {
	if cfg.Factory == nil {
		return nil, shared.MarkKind(fmt.Errorf("retention %s: worker factory is required", cfg.Policy.Collection), shared.KindConfig)
	}
	if cfg.Clock == nil {
		return nil, shared.MarkKind(fmt.Errorf("retention %s: clock is required", cfg.Policy.Collection), shared.KindConfig)
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	createdBy := cfg.CreatedBy
	if createdBy == "" {
		createdBy = DefaultCreatedBy
	}

	s := &Scheduler{
		policy:    cfg.Policy,
		factory:   cfg.Factory,
		clock:     cfg.Clock,
		logger:    logger.With("component", "retention", "job", cfg.Policy.JobName()),
		app:       cfg.AppName,
		createdBy: createdBy,
		onSweep:   cfg.OnSweep,
		sleep:     sleepContext,
	}

	if cfg.Policy.Enabled {
		schedule, err := cron.ParseStandard(cfg.Policy.Cron)
		if err != nil {
			return nil, shared.MarkKind(fmt.Errorf("retention %s: invalid cron %q: %w", cfg.Policy.Collection, cfg.Policy.Cron, err), shared.KindConfig)
		}
		s.schedule = schedule
	}

	return s, nil
}

// Name возвращает имя задачи очистки.
func (s *Scheduler) Name() string {
	return s.policy.JobName()
}

// Policy возвращает политику планировщика.
func (s *Scheduler) Policy() Policy {
	return s.policy
}

// Next возвращает ближайшее срабатывание строго после now. Поля
// cron-выражения трактуются в часовом поясе политики.
func (s *Scheduler) Next(now time.Time) (time.Time, bool) {
	if s.schedule == nil {
		return time.Time{}, false
	}
	next := s.schedule.Next(now.In(s.policy.location()))
	if next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}

// untilNext вычисляет паузу до следующего срабатывания.
func (s *Scheduler) untilNext() time.Duration {
	now := s.clock.UTCNow()
	next, ok := s.Next(now)
	if !ok {
		s.logger.Warn("no next occurrence, retrying later", "cron", s.policy.Cron, "wait", fallbackWait)
		return fallbackWait
	}

	wait := next.Sub(now)
	s.logger.Debug("next cleanup scheduled", "at", next, "wait", wait)
	if wait < 0 {
		return 0
	}
	return wait
}

// Run выполняет цикл планировщика до отмены ctx. Для выключенной политики
// возвращается сразу. Ошибки отдельных запусков логируются, цикл
// продолжается; следующее срабатывание каждый раз вычисляется заново.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.policy.Enabled {
		s.logger.Info("retention disabled, scheduler not started")
		return nil
	}

	s.logger.Info("retention scheduler started",
		"cron", s.policy.Cron,
		"time_zone", s.policy.location().String(),
		"retention_days", s.policy.RetentionDays,
		"batch_size", s.policy.BatchSize,
	)

	for {
		if err := s.sleep(ctx, s.untilNext()); err != nil {
			s.logger.Info("retention scheduler stopped")
			return nil
		}

		if err := s.tick(ctx); err != nil {
			if shared.IsCanceled(err) || ctx.Err() != nil {
				s.logger.Info("retention scheduler stopped during cleanup")
				return nil
			}
			s.logger.Error("cleanup tick failed", "error", err)
		}
	}
}

// tick выполняет один запуск с восстановлением после паники.
func (s *Scheduler) tick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("cleanup tick panicked", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.RunOnce(ctx)
}

// RunOnce выполняет одну очистку через worker.Worker в собственной сессии
// хранилища и ждёт её завершения.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	w, err := s.factory.New(ctx)
	if err != nil {
		return err
	}
	s.configure(w)
	return w.Execute(ctx)
}

// Trigger запускает очистку вне расписания в отдельной горутине и
// возвращает trace id запуска.
func (s *Scheduler) Trigger(ctx context.Context) (string, error) {
	return s.factory.Go(ctx, s.configure)
}

// configure настраивает исполнителя на очистку коллекции политики.
func (s *Scheduler) configure(w *worker.Worker) {
	w.JobName = s.policy.JobName()
	w.CreatedBy = s.createdBy
	w.IsLightExecution = false
	w.RunFunction = func(ctx context.Context, scope *worker.Scope) (string, error) {
		res, err := Sweep(ctx, scope.Session, s.policy, scope.Clock, scope.AppName)
		if s.onSweep != nil {
			s.onSweep(s.policy, res, err)
		}
		if err != nil {
			return "", err
		}
		scope.Logger.Info("cleanup finished",
			"deleted", res.Deleted,
			"batches", res.Batches,
			"cutoff", res.Cutoff.Format(clock.DateLayout),
		)
		return res.String(), nil
	}
}

// sleepContext ждёт d или отмены ctx.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
