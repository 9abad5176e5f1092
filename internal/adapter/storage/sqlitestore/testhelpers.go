package sqlitestore

import (
	"fmt"
	"testing"
	"time"

	"log-inspection/internal/adapter/storage/migrations"
	"log-inspection/internal/inspection"
	"log-inspection/internal/platform/clock"
	"log-inspection/internal/platform/sqlite"
	"log-inspection/pkg/retry"
)

// NewTestStore возвращает Store поверх смигрированной файловой базы во
// временной директории. In-memory база не подходит: у неё одно соединение,
// а сессия держит своё соединение до закрытия.
func NewTestStore(t *testing.T) (*Store, *sqlite.TestDB) {
	t.Helper()

	tdb := sqlite.NewTestDBFile(t)
	tdb.Migrate(t, migrations.FS, migrations.SQLiteDir)

	cfg := retry.DefaultConfig()
	cfg.Jitter = false
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 10 * time.Millisecond

	return New(tdb.DB, nil, WithRetry(cfg)), tdb
}

// SeedLogs вставляет n записей в таблицу коллекции c с датой создания day.
func SeedLogs(t *testing.T, tdb *sqlite.TestDB, c inspection.Collection, app string, day time.Time, n int) {
	t.Helper()

	table, err := c.Table()
	if err != nil {
		t.Fatalf("SeedLogs: %v", err)
	}

	extra := ""
	extraVal := ""
	if c == inspection.CollectionJob {
		extra, extraVal = ", job_name, state", ", 'SeedJob', 'Succeeded'"
	}

	q := fmt.Sprintf("INSERT INTO %s (application_name, created_date_only, created_by, created_at%s) VALUES (?, ?, 'seed', ?%s)",
		table, extra, extraVal)
	for i := 0; i < n; i++ {
		tdb.Exec(t, q, app, day.Format(clock.DateLayout), day.Format(time.RFC3339Nano))
	}
}
