package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"log-inspection/internal/inspection"
	"log-inspection/internal/platform/clock"
	"log-inspection/internal/retention"
	"log-inspection/internal/shared"
	"log-inspection/internal/worker"
)

const (
	healthTimeout = 2 * time.Second
	demoDelay     = 2 * time.Second
	maxDemoDelay  = time.Minute
)

func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()
	if err := s.deps.Store.Ping(ctx); err != nil {
		s.log.Warn("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type jobsQuery struct {
	App     string `form:"app" binding:"omitempty,max=200"`
	JobName string `form:"job_name" binding:"omitempty,max=200"`
	TraceID string `form:"trace_id" binding:"omitempty,max=128"`
	State   string `form:"state"`
	Limit   int    `form:"limit" binding:"omitempty,min=1,max=1000"`
}

type jobRecordResponse struct {
	ID              int64          `json:"id"`
	ApplicationName string         `json:"application_name"`
	JobName         string         `json:"job_name"`
	State           string         `json:"state"`
	TraceID         string         `json:"trace_id"`
	DurationMs      *float64       `json:"duration_ms,omitempty"`
	Message         string         `json:"message,omitempty"`
	Exception       string         `json:"exception,omitempty"`
	InnerException  string         `json:"inner_exception,omitempty"`
	StackTrace      string         `json:"stack_trace,omitempty"`
	Data            map[string]any `json:"data,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	CreatedDateOnly string         `json:"created_date_only"`
	CreatedBy       string         `json:"created_by,omitempty"`
}

func toResponse(r inspection.JobRecord) jobRecordResponse {
	out := jobRecordResponse{
		ID:              r.ID,
		ApplicationName: r.ApplicationName,
		JobName:         r.JobName,
		State:           string(r.State),
		TraceID:         r.TraceID,
		Message:         r.Message,
		Exception:       r.Exception,
		InnerException:  r.InnerException,
		StackTrace:      r.StackTrace,
		Data:            r.Data,
		CreatedAt:       r.CreatedAt,
		CreatedDateOnly: r.CreatedDateOnly.Format(clock.DateLayout),
		CreatedBy:       r.CreatedBy,
	}
	if r.Duration != nil {
		ms := float64(*r.Duration) / float64(time.Millisecond)
		out.DurationMs = &ms
	}
	return out
}

func (s *Server) listJobs(c *gin.Context) {
	var q jobsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortWithError(c, shared.MarkKind(err, shared.KindValidation))
		return
	}

	filter := inspection.JobFilter{
		ApplicationName: q.App,
		JobName:         q.JobName,
		TraceID:         q.TraceID,
		Limit:           q.Limit,
	}
	if q.State != "" {
		st, err := inspection.ParseJobState(q.State)
		if err != nil {
			abortWithError(c, err)
			return
		}
		filter.State = st
	}

	recs, err := s.deps.Store.JobRecords(c.Request.Context(), filter)
	if err != nil {
		abortWithError(c, err)
		return
	}

	items := make([]jobRecordResponse, 0, len(recs))
	for _, r := range recs {
		items = append(items, toResponse(r))
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

type acceptedResponse struct {
	TraceID string `json:"trace_id"`
	JobName string `json:"job_name"`
	Message string `json:"message"`
}

func (s *Server) runRetention(c *gin.Context) {
	col, err := inspection.ParseCollection(c.Param("collection"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	trigger, ok := s.deps.Triggers[col]
	if !ok {
		abortWithError(c, shared.MarkKind(fmt.Errorf("no retention scheduler for %q", col), shared.KindNotFound))
		return
	}

	traceID, err := trigger.Trigger(s.workContext(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, acceptedResponse{
		TraceID: traceID,
		JobName: retention.JobName(col),
		Message: "cleanup dispatched to background",
	})
}

type demoQuery struct {
	Mode  string `form:"mode" binding:"omitempty,oneof=success error panic catch"`
	Delay string `form:"delay" binding:"omitempty,max=16"`
}

// demo job names, one per mode
var demoJobs = map[string]string{
	"success": "RunWorker",
	"error":   "RunWorkerError",
	"panic":   "RunWorkerPanic",
	"catch":   "RunWorkerCatchError",
}

var errDemo = errors.New("attempted to divide by zero")

func (s *Server) runDemo(c *gin.Context) {
	var q demoQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		abortWithError(c, shared.MarkKind(err, shared.KindValidation))
		return
	}
	if q.Mode == "" {
		q.Mode = "success"
	}
	delay := demoDelay
	if q.Delay != "" {
		d, err := time.ParseDuration(q.Delay)
		if err != nil || d < 0 || d > maxDemoDelay {
			abortWithError(c, shared.MarkKind(fmt.Errorf("delay must be a duration between 0 and %s", maxDemoDelay), shared.KindValidation))
			return
		}
		delay = d
	}

	jobName := demoJobs[q.Mode]
	traceID, err := s.deps.Dispatcher.Go(s.workContext(c), func(w *worker.Worker) {
		w.JobName = jobName
		w.Delay = delay
		w.CreatedBy = "api"
		w.RunFunction = demoRun(q.Mode)
		if q.Mode == "catch" {
			w.RunFunctionException = func(_ context.Context, scope *worker.Scope, err error) error {
				scope.Logger.Error("failure captured safely", "error", err)
				return nil
			}
		}
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, acceptedResponse{
		TraceID: traceID,
		JobName: jobName,
		Message: "job dispatched to background",
	})
}

func demoRun(mode string) worker.RunFunc {
	return func(context.Context, *worker.Scope) (string, error) {
		switch mode {
		case "error", "catch":
			return "", shared.WithData(errDemo, "numerator", 1)
		case "panic":
			var divisor int
			return fmt.Sprint(1 / divisor), nil
		default:
			return "executed successfully", nil
		}
	}
}

// workContext detaches work from the request while keeping its trace id.
func (s *Server) workContext(c *gin.Context) context.Context {
	ctx := s.deps.WorkContext
	if id, ok := worker.TraceIDFromContext(c.Request.Context()); ok {
		ctx = worker.WithTraceID(ctx, id)
	}
	return ctx
}
