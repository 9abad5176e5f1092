package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"log-inspection/internal/adapter/storage/sqlitestore"
	"log-inspection/internal/config"
	"log-inspection/internal/inspection"
	"log-inspection/internal/observability/metrics"
	"log-inspection/internal/platform/clock"
	"log-inspection/internal/worker"
)

func testConfig(t *testing.T, extra map[string]string) config.Config {
	t.Helper()
	env := map[string]string{
		"APP_NAME":    "billing",
		"SQLITE_PATH": filepath.Join(t.TempDir(), "db", "inspection.db"),
	}
	for k, v := range extra {
		env[k] = v
	}
	cfg, err := config.FromEnv(func(k string) string { return env[k] })
	require.NoError(t, err)
	cfg.Log.File = ""
	cfg.ShutdownTimeout = 5 * time.Second
	return cfg
}

func TestPolicyOf(t *testing.T) {
	lima, err := time.LoadLocation("America/Lima")
	require.NoError(t, err)

	p := PolicyOf(inspection.CollectionEndpoint, config.Retention{
		Enabled: true, Cron: "15 1 * * *", Days: 7, Batch: 50,
	}, lima)

	assert.Equal(t, inspection.CollectionEndpoint, p.Collection)
	assert.Equal(t, "15 1 * * *", p.Cron)
	assert.Equal(t, lima, p.Location)
	assert.Equal(t, 7, p.RetentionDays)
	assert.Equal(t, 50, p.BatchSize)
	assert.True(t, p.Enabled)
	assert.Equal(t, "CleanLogEndpointWorker", p.JobName())
}

func TestBuildSchedulers_InvalidCronSkipsOnlyThatCollection(t *testing.T) {
	cfg := testConfig(t, map[string]string{
		"RETENTION_HTTP_CRON":   "every night",
		"RETENTION_JOB_ENABLED": "false",
		"RETENTION_JOB_CRON":    "also broken",
	})
	a, err := NewWithConfig(cfg)
	require.NoError(t, err)

	store, _ := sqlitestore.NewTestStore(t)
	clk := clock.NewFixed(time.Date(2024, 6, 11, 12, 0, 0, 0, time.UTC), time.UTC)
	factory := worker.NewFactory(store, clk, a.log, cfg.App.Name)

	got := a.buildSchedulers(factory, metrics.New(false))

	assert.Len(t, got, 3)
	assert.Contains(t, got, inspection.CollectionAudit)
	assert.Contains(t, got, inspection.CollectionEndpoint)
	assert.NotContains(t, got, inspection.CollectionHTTP, "некорректный cron выключает только свою коллекцию")
	assert.Contains(t, got, inspection.CollectionJob, "у выключенной политики cron не проверяется")
}

func TestRun_MigratesAndStopsOnCancel(t *testing.T) {
	cfg := testConfig(t, nil)
	a, err := NewWithConfig(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(ctx) }()

	select {
	case <-a.Started():
	case err := <-errCh:
		t.Fatalf("Run завершился до старта: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("сервисы не запустились")
	}
	_, err = os.Stat(cfg.DB.SQLitePath)
	require.NoError(t, err, "файл базы создаётся при старте")

	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run не завершился после отмены контекста")
	}
}

func allDisabled() map[string]string {
	return map[string]string{
		"RETENTION_AUDIT_ENABLED":    "false",
		"RETENTION_ENDPOINT_ENABLED": "false",
		"RETENTION_HTTP_ENABLED":     "false",
		"RETENTION_JOB_ENABLED":      "false",
	}
}

func TestIdle(t *testing.T) {
	store, _ := sqlitestore.NewTestStore(t)
	clk := clock.NewFixed(time.Date(2024, 6, 11, 12, 0, 0, 0, time.UTC), time.UTC)

	cases := []struct {
		name  string
		extra map[string]string
		want  bool
	}{
		{"все политики выключены", allDisabled(), true},
		{"по умолчанию политики включены", nil, false},
		{"HTTP держит процесс", merge(allDisabled(), map[string]string{"HTTP_ADDR": "127.0.0.1:0"}), false},
		{"уведомления держат процесс", merge(allDisabled(), map[string]string{"TELEGRAM_BOT_TOKEN": "123:abc", "TELEGRAM_CHAT_ID": "42"}), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(t, tc.extra)
			a, err := NewWithConfig(cfg)
			require.NoError(t, err)
			factory := worker.NewFactory(store, clk, a.log, cfg.App.Name)
			assert.Equal(t, tc.want, a.idle(a.buildSchedulers(factory, metrics.New(false))))
		})
	}
}

func merge(a, b map[string]string) map[string]string {
	for k, v := range b {
		a[k] = v
	}
	return a
}

func TestRun_ReturnsWhenNothingToRun(t *testing.T) {
	cfg := testConfig(t, allDisabled())
	a, err := NewWithConfig(cfg)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run(context.Background()) }()

	select {
	case err := <-errCh:
		require.NoError(t, err, "без сервисов процесс завершается штатно")
	case <-time.After(10 * time.Second):
		t.Fatal("Run не завершился без сервисов")
	}
}

func TestNewWithConfig_BadTimeZone(t *testing.T) {
	cfg := testConfig(t, nil)
	cfg.App.TimeZone = "Mars/Olympus"

	_, err := NewWithConfig(cfg)
	require.Error(t, err)
}
