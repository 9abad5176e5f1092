package pgstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"log-inspection/internal/adapter/storage/migrations"
	"log-inspection/internal/inspection"
	"log-inspection/internal/platform/pg"
)

// newIntegrationStore подключается к TEST_POSTGRES_DSN и применяет миграции.
func newIntegrationStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	_, err := pg.ApplyMigrationsFromFS(dsn, migrations.FS, migrations.PostgresDir)
	require.NoError(t, err)

	pool, err := pg.NewPool(context.Background(), dsn, pg.DefaultPoolOptions())
	require.NoError(t, err)

	store := New(pool, nil)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNullableAndDeref(t *testing.T) {
	assert.Nil(t, nullable(""))
	require.NotNil(t, nullable("x"))
	assert.Equal(t, "x", deref(nullable("x")))
	assert.Equal(t, "", deref(nil))
}

func TestStore_Integration(t *testing.T) {
	store := newIntegrationStore(t)
	ctx := context.Background()
	app := "it-" + uuid.NewString()

	sess, err := store.Open(ctx)
	require.NoError(t, err)
	defer sess.Close()

	dur := 250 * time.Millisecond
	now := time.Now().UTC().Truncate(time.Microsecond)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	require.NoError(t, sess.AddJobRecord(ctx, inspection.JobRecord{
		ApplicationName: app,
		JobName:         "CleanLogJobWorker",
		State:           inspection.StateSucceeded,
		TraceID:         app,
		Duration:        &dur,
		Message:         "done",
		Data:            map[string]any{"k": "v"},
		CreatedAt:       now,
		CreatedDateOnly: today,
		CreatedBy:       "Reec",
	}))

	recs, err := store.JobRecords(ctx, inspection.JobFilter{TraceID: app})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "done", recs[0].Message)
	assert.Equal(t, "v", recs[0].Data["k"])
	require.NotNil(t, recs[0].Duration)
	assert.Equal(t, dur, *recs[0].Duration)

	n, err := sess.DeleteBatch(ctx, inspection.CollectionJob, today, app, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = sess.DeleteBatch(ctx, inspection.CollectionJob, today, app, 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}
