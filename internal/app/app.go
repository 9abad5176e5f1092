// Package app wires the inspection service: storage, the safe executor,
// the retention schedulers, notifications and the ops HTTP server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	httpx "log-inspection/internal/adapter/http"
	"log-inspection/internal/adapter/storage/migrations"
	"log-inspection/internal/adapter/storage/pgstore"
	"log-inspection/internal/adapter/storage/sqlitestore"
	"log-inspection/internal/adapter/telegram"
	"log-inspection/internal/config"
	"log-inspection/internal/host"
	"log-inspection/internal/inspection"
	"log-inspection/internal/observability/metrics"
	"log-inspection/internal/platform/clock"
	"log-inspection/internal/platform/logger"
	"log-inspection/internal/platform/pg"
	"log-inspection/internal/platform/sqlite"
	"log-inspection/internal/retention"
	"log-inspection/internal/worker"
)

// App wires application components.
type App struct {
	cfg config.Config
	log *slog.Logger
	clk clock.Clock

	started chan struct{}
}

// New creates a new App instance and loads configuration.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return NewWithConfig(cfg)
}

// NewWithConfig builds an App from an already loaded configuration.
func NewWithConfig(cfg config.Config) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          cfg.App.Name,
	})
	return &App{cfg: cfg, log: log, clk: clock.New(loc), started: make(chan struct{})}, nil
}

// Logger returns the process logger.
func (a *App) Logger() *slog.Logger { return a.log }

// Started is closed once every service has been launched.
func (a *App) Started() <-chan struct{} { return a.started }

// Run starts every service and blocks until ctx is canceled or all
// services have returned, then shuts down within SHUTDOWN_TIMEOUT.
func (a *App) Run(ctx context.Context) (err error) {
	defer func() {
		if cerr := logger.Close(a.log); cerr != nil && err == nil {
			err = cerr
		}
	}()

	a.log.Info("starting",
		"driver", a.cfg.DB.Driver,
		"time_zone", a.clk.Location().String(),
		"http", a.cfg.HTTP.Addr,
	)

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			a.log.Error("store close failed", "error", cerr)
		}
	}()

	mc := metrics.New(true)
	hooks := []worker.Hooks{mc.Hooks()}
	var services []host.Service

	if a.cfg.NotificationsEnabled() {
		n, err := telegram.New(telegram.Config{
			Token:    a.cfg.Telegram.Token,
			ChatID:   a.cfg.Telegram.ChatID,
			Throttle: a.cfg.Telegram.Throttle,
		}, a.log)
		if err != nil {
			return err
		}
		hooks = append(hooks, n.Hooks())
		services = append(services, n)
	} else {
		a.log.Info("failure notifications disabled")
	}

	factory := worker.NewFactory(store, a.clk, a.log, a.cfg.App.Name,
		worker.WithHooks(worker.ChainHooks(hooks...)))

	schedulers := a.buildSchedulers(factory, mc)
	triggers := make(map[inspection.Collection]httpx.Trigger, len(schedulers))
	for c, s := range schedulers {
		triggers[c] = s
		services = append(services, s)
	}

	if a.cfg.HTTP.Addr != "" {
		services = append(services, httpx.New(a.cfg.HTTP.Addr, httpx.Deps{
			Store:       store,
			Dispatcher:  factory,
			Triggers:    triggers,
			Metrics:     mc.Handler(),
			Logger:      a.log,
			WorkContext: ctx,
		}))
	}

	if a.idle(schedulers) {
		a.log.Warn("nothing to run: every retention policy is disabled, HTTP_ADDR is empty and notifications are off; exiting once startup completes")
	}

	h := host.New(a.log, services...)
	if err := h.Start(ctx); err != nil {
		return err
	}
	close(a.started)

	select {
	case <-ctx.Done():
		a.log.Info("shutdown requested")
	case <-h.Done():
		a.log.Warn("all services stopped")
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.ShutdownTimeout)
	defer cancel()

	stopErr := h.Stop(stopCtx)
	if werr := factory.Wait(stopCtx); werr != nil {
		a.log.Warn("detached jobs still running at shutdown", "error", werr)
	}
	a.log.Info("stopped")
	return stopErr
}

func (a *App) openStore(ctx context.Context) (inspection.Store, error) {
	switch a.cfg.DB.Driver {
	case "postgres":
		return a.openPostgres(ctx)
	default:
		return a.openSQLite(ctx)
	}
}

func (a *App) openSQLite(ctx context.Context) (inspection.Store, error) {
	db, err := sqlite.NewDB(ctx, a.cfg.DB.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if a.cfg.DB.Migrate {
		info, err := sqlite.ApplyMigrationsFS(db, migrations.FS, migrations.SQLiteDir)
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		a.log.Info("migrations checked", "version", info.Version, "applied", info.Applied)
	}
	return sqlitestore.New(db, a.log), nil
}

func (a *App) openPostgres(ctx context.Context) (inspection.Store, error) {
	dsn := a.cfg.PostgresURL()

	waitCtx := ctx
	if a.cfg.DB.WaitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, a.cfg.DB.WaitTimeout)
		defer cancel()
	}
	health := pg.DefaultHealthCheckOptions()
	health.OnRetry = func(attempt int, err error, wait time.Duration) {
		a.log.Warn("postgres not ready", "attempt", attempt, "retry_in", wait, "error", err)
	}
	if err := pg.WaitForDB(waitCtx, dsn, health); err != nil {
		return nil, fmt.Errorf("wait for postgres: %w", err)
	}
	if a.cfg.DB.Migrate {
		info, err := pg.ApplyMigrationsFromFS(dsn, migrations.FS, migrations.PostgresDir)
		if err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		a.log.Info("migrations checked", "version", info.FinalVersion, "applied", info.Applied)
	}
	pool, err := pg.NewPool(ctx, dsn, pg.DefaultPoolOptions())
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	return pgstore.New(pool, a.log), nil
}

// buildSchedulers creates one scheduler per collection. A collection whose
// policy is invalid is logged and left out; the others still run.
func (a *App) buildSchedulers(factory *worker.Factory, mc *metrics.Collector) map[inspection.Collection]*retention.Scheduler {
	out := make(map[inspection.Collection]*retention.Scheduler, len(a.cfg.Retention))
	for _, c := range inspection.Collections() {
		p := PolicyOf(c, a.cfg.Retention[c], a.clk.Location())
		s, err := retention.NewScheduler(retention.Config{
			Policy:    p,
			Factory:   factory,
			Clock:     a.clk,
			Logger:    a.log,
			AppName:   a.cfg.App.Name,
			CreatedBy: a.cfg.App.CleanUser,
			OnSweep:   mc.ObserveSweep,
		})
		if err != nil {
			a.log.Error("retention scheduler disabled", "job", p.JobName(), "error", err)
			continue
		}
		if !p.Enabled {
			a.log.Info("retention disabled", "job", p.JobName())
		}
		out[c] = s
	}
	return out
}

// idle reports whether no service would keep running after startup.
func (a *App) idle(schedulers map[inspection.Collection]*retention.Scheduler) bool {
	if a.cfg.HTTP.Addr != "" || a.cfg.NotificationsEnabled() {
		return false
	}
	for c := range schedulers {
		if a.cfg.Retention[c].Enabled {
			return false
		}
	}
	return true
}

// PolicyOf converts the configured retention of c into a Policy.
func PolicyOf(c inspection.Collection, r config.Retention, loc *time.Location) retention.Policy {
	return retention.Policy{
		Collection:    c,
		Cron:          r.Cron,
		Location:      loc,
		RetentionDays: r.Days,
		BatchSize:     r.Batch,
		Enabled:       r.Enabled,
	}
}
