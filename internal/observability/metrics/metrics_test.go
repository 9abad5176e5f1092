package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"log-inspection/internal/inspection"
	"log-inspection/internal/retention"
)

func TestCollector_JobHooks(t *testing.T) {
	c := New(false)
	hooks := c.Hooks()
	ctx := context.Background()

	d := 1500 * time.Millisecond
	hooks.OnTransition(ctx, inspection.JobRecord{JobName: "Demo", State: inspection.StateEnqueued})
	hooks.OnTransition(ctx, inspection.JobRecord{JobName: "Demo", State: inspection.StateProcessing})
	hooks.OnTransition(ctx, inspection.JobRecord{JobName: "Demo", State: inspection.StateSucceeded, Duration: &d})
	hooks.OnTransition(ctx, inspection.JobRecord{JobName: "Demo", State: inspection.StateFailed, Duration: &d})

	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("Demo", "Enqueued")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("Demo", "Succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.transitions.WithLabelValues("Demo", "Failed")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.duration), "только завершённые состояния")
}

func TestCollector_ObserveSweep(t *testing.T) {
	c := New(false)
	p := retention.DefaultPolicy(inspection.CollectionAudit)

	c.ObserveSweep(p, retention.Result{Deleted: 7}, nil)
	c.ObserveSweep(p, retention.Result{Deleted: 3}, errors.New("locked"))

	assert.Equal(t, 10.0, testutil.ToFloat64(c.rowsDeleted.WithLabelValues("audit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sweeps.WithLabelValues("audit", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.sweeps.WithLabelValues("audit", "error")))
}

func TestCollector_Handler(t *testing.T) {
	c := New(true)
	c.ObserveSweep(retention.DefaultPolicy(inspection.CollectionJob), retention.Result{Deleted: 2}, nil)

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	out := string(body)
	assert.True(t, strings.Contains(out, `inspection_retention_rows_deleted_total{collection="job"} 2`))
	assert.Contains(t, out, "go_goroutines")
}

func TestCollector_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(true)
		New(true)
	}, "повторная регистрация в разных реестрах")
}
