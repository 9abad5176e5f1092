package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"log-inspection/internal/adapter/storage/sqlitestore"
	"log-inspection/internal/inspection"
	"log-inspection/internal/observability/metrics"
	"log-inspection/internal/platform/clock"
	"log-inspection/internal/platform/sqlite"
	"log-inspection/internal/retention"
	"log-inspection/internal/shared"
	"log-inspection/internal/worker"
)

const testApp = "billing"

func init() { gin.SetMode(gin.TestMode) }

type fixture struct {
	srv     *Server
	store   *sqlitestore.Store
	tdb     *sqlite.TestDB
	factory *worker.Factory
	clk     *clock.Fixed
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, tdb := sqlitestore.NewTestStore(t)
	clk := clock.NewFixed(time.Date(2024, 6, 11, 12, 0, 0, 0, time.UTC), time.UTC)
	m := metrics.New(false)
	factory := worker.NewFactory(store, clk, discard(), testApp, worker.WithHooks(m.Hooks()))

	triggers := map[inspection.Collection]Trigger{}
	for _, c := range inspection.Collections() {
		p := retention.DefaultPolicy(c)
		p.RetentionDays = 7
		s, err := retention.NewScheduler(retention.Config{
			Policy: p, Factory: factory, Clock: clk, Logger: discard(), AppName: testApp,
			OnSweep: m.ObserveSweep,
		})
		require.NoError(t, err)
		triggers[c] = s
	}

	srv := New(":0", Deps{
		Store:      store,
		Dispatcher: factory,
		Triggers:   triggers,
		Metrics:    m.Handler(),
		Logger:     discard(),
	})
	return &fixture{srv: srv, store: store, tdb: tdb, factory: factory, clk: clk}
}

func (f *fixture) do(t *testing.T, method, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(w, req)
	return w
}

func (f *fixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.factory.Wait(ctx))
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

type listResponse struct {
	Items []jobRecordResponse `json:"items"`
	Count int                 `json:"count"`
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(TraceHeader))

	require.NoError(t, f.tdb.DB.Close())
	w = f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestTraceHeaderEchoed(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/healthz", http.Header{TraceHeader: {"req-42"}})
	assert.Equal(t, "req-42", w.Header().Get(TraceHeader))
}

func TestRunDemo_InheritsRequestTrace(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodPost, "/api/jobs/demo?delay=0s", http.Header{TraceHeader: {"req-demo"}})
	require.Equal(t, http.StatusAccepted, w.Code)
	acc := decode[acceptedResponse](t, w)
	assert.Equal(t, "req-demo", acc.TraceID)
	assert.Equal(t, "RunWorker", acc.JobName)

	f.wait(t)

	w = f.do(t, http.MethodGet, "/api/jobs?trace_id=req-demo", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[listResponse](t, w)
	require.Equal(t, 3, list.Count)
	assert.Equal(t, "Succeeded", list.Items[0].State)
	assert.Equal(t, "executed successfully", list.Items[0].Message)
	require.NotNil(t, list.Items[0].DurationMs)
	assert.Nil(t, list.Items[2].DurationMs, "Enqueued без длительности")
}

func TestRunDemo_Modes(t *testing.T) {
	tests := []struct {
		mode       string
		failed     int
		withData   bool
		stackTrace bool
	}{
		{mode: "error", failed: 1},
		{mode: "panic", failed: 1, stackTrace: true},
		{mode: "catch", failed: 1, withData: true},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			f := newFixture(t)
			w := f.do(t, http.MethodPost, "/api/jobs/demo?delay=0s&mode="+tt.mode, nil)
			require.Equal(t, http.StatusAccepted, w.Code)
			acc := decode[acceptedResponse](t, w)
			f.wait(t)

			w = f.do(t, http.MethodGet, "/api/jobs?state=failed&trace_id="+acc.TraceID, nil)
			require.Equal(t, http.StatusOK, w.Code)
			list := decode[listResponse](t, w)
			require.Equal(t, tt.failed, list.Count)

			rec := list.Items[0]
			assert.Equal(t, acc.JobName, rec.JobName)
			assert.NotEmpty(t, rec.Exception)
			if tt.stackTrace {
				assert.Contains(t, rec.StackTrace, "goroutine")
			}
			if tt.withData {
				assert.Contains(t, rec.Data, "error_init")
			}
		})
	}
}

func TestRunDemo_BadQuery(t *testing.T) {
	f := newFixture(t)

	for _, target := range []string{
		"/api/jobs/demo?mode=explode",
		"/api/jobs/demo?delay=forever",
		"/api/jobs/demo?delay=2h",
	} {
		w := f.do(t, http.MethodPost, target, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
		body := decode[errorResponse](t, w)
		assert.Equal(t, "Validation", body.Error)
	}
}

func TestListJobs_Validation(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/api/jobs?limit=5000", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/jobs?state=Exploded", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/jobs", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[listResponse](t, w).Count)
}

func TestRunRetention(t *testing.T) {
	f := newFixture(t)
	old := clock.DateOf(f.clk.Now()).AddDate(0, 0, -10)
	sqlitestore.SeedLogs(t, f.tdb, inspection.CollectionAudit, testApp, old, 4)

	w := f.do(t, http.MethodPost, "/api/retention/Audit/run", nil)
	require.Equal(t, http.StatusAccepted, w.Code)
	acc := decode[acceptedResponse](t, w)
	assert.Equal(t, "CleanLogAuditWorker", acc.JobName)

	f.wait(t)
	assert.Zero(t, f.tdb.CountRows(t, "log_audit"))

	w = f.do(t, http.MethodGet, "/api/jobs?job_name=CleanLogAuditWorker&state=Succeeded", nil)
	list := decode[listResponse](t, w)
	require.Equal(t, 1, list.Count)
	assert.Contains(t, list.Items[0].Message, "removed 4 rows")
	assert.Equal(t, "Reec", list.Items[0].CreatedBy)

	w = f.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `inspection_retention_rows_deleted_total{collection="audit"} 4`)
}

func TestRunRetention_UnknownCollection(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/api/retention/metrics/run", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type failingDispatcher struct{}

func (failingDispatcher) Go(context.Context, func(*worker.Worker)) (string, error) {
	return "", shared.MarkKind(errors.New("database is locked"), shared.KindDependencyFailure)
}

func TestRunDemo_DispatchFailure(t *testing.T) {
	f := newFixture(t)
	srv := New(":0", Deps{Store: f.store, Dispatcher: failingDispatcher{}, Logger: discard()})

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/demo", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusOf(shared.ErrNotFound))
	assert.Equal(t, http.StatusConflict, statusOf(shared.ErrInvalidState))
	assert.Equal(t, http.StatusGatewayTimeout, statusOf(context.DeadlineExceeded))
	assert.Equal(t, http.StatusInternalServerError, statusOf(errors.New("boom")))
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	f := newFixture(t)
	srv := New("127.0.0.1:0", Deps{Store: f.store, Dispatcher: f.factory, Logger: discard()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(6 * time.Second):
		t.Fatal("сервер не остановился")
	}
}
