// Package pgstore implements the job record store on top of PostgreSQL.
package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"log-inspection/internal/inspection"
	"log-inspection/internal/platform/pg"
	"log-inspection/internal/shared"
	"log-inspection/pkg/retry"
)

// Store хранит журнал задач и логи в PostgreSQL.
type Store struct {
	pool  *pgxpool.Pool
	log   *slog.Logger
	retry retry.Config
}

// New оборачивает пул. Close закрывает пул.
func New(pool *pgxpool.Pool, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		pool:  pool,
		log:   log.With("component", "pgstore"),
		retry: retry.DefaultConfig(),
	}
}

// Open берёт соединение из пула на время сессии.
func (s *Store) Open(ctx context.Context) (inspection.Session, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, shared.MarkKind(fmt.Errorf("postgres: acquire connection: %w", err), shared.KindDependencyFailure)
	}
	return &session{conn: conn, store: s}, nil
}

// Ping проверяет пул запросом SELECT 1.
func (s *Store) Ping(ctx context.Context) error {
	return pg.HealthCheckPool(ctx, s.pool)
}

// Close закрывает пул.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// JobRecords возвращает записи журнала задач, новые первыми.
func (s *Store) JobRecords(ctx context.Context, f inspection.JobFilter) ([]inspection.JobRecord, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, cond+" = $"+strconv.Itoa(len(args)))
	}
	if f.ApplicationName != "" {
		add("application_name", f.ApplicationName)
	}
	if f.JobName != "" {
		add("job_name", f.JobName)
	}
	if f.TraceID != "" {
		add("trace_id", f.TraceID)
	}
	if f.State != "" {
		add("state", string(f.State))
	}

	q := `SELECT id, application_name, job_name, state, trace_id, duration_ms, message,
		exception, inner_exception, stack_trace, data, created_date_only, created_by, created_at
		FROM log_job`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.EffectiveLimit())
	q += " ORDER BY id DESC LIMIT $" + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, shared.MarkKind(fmt.Errorf("postgres: query job records: %w", err), shared.KindDependencyFailure)
	}

	out, err := pgx.CollectRows(rows, scanJobRecord)
	if err != nil {
		return nil, shared.MarkKind(fmt.Errorf("postgres: collect job records: %w", err), shared.KindDependencyFailure)
	}
	return out, nil
}

type session struct {
	conn     *pgxpool.Conn
	store    *Store
	released bool
}

func (s *session) AddJobRecord(ctx context.Context, rec inspection.JobRecord) error {
	var data any
	if len(rec.Data) > 0 {
		raw, err := json.Marshal(rec.Data)
		if err != nil {
			return fmt.Errorf("postgres: encode job data: %w", err)
		}
		data = string(raw)
	}

	var duration any
	if rec.Duration != nil {
		duration = float64(*rec.Duration) / float64(time.Millisecond)
	}

	const q = `INSERT INTO log_job (application_name, job_name, state, trace_id, duration_ms, message,
		exception, inner_exception, stack_trace, data, created_date_only, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	err := retry.DoWithRetryable(ctx, s.store.retry, func(ctx context.Context) error {
		_, err := s.conn.Exec(ctx, q,
			rec.ApplicationName, rec.JobName, string(rec.State), rec.TraceID, duration,
			nullable(rec.Message), nullable(rec.Exception), nullable(rec.InnerException),
			nullable(rec.StackTrace), data, rec.CreatedDateOnly, rec.CreatedBy, rec.CreatedAt,
		)
		return err
	}, pgconn.SafeToRetry)
	if err != nil {
		return shared.MarkKind(fmt.Errorf("postgres: insert job record: %w", err), shared.KindDependencyFailure)
	}
	return nil
}

func (s *session) DeleteBatch(ctx context.Context, c inspection.Collection, cutoff time.Time, app string, batch int) (int64, error) {
	if err := shared.InvariantF(batch > 0, "batch size must be positive, got %d", batch); err != nil {
		return 0, err
	}
	table, err := c.Table()
	if err != nil {
		return 0, err
	}

	q := fmt.Sprintf(`DELETE FROM %[1]s WHERE id IN (
		SELECT id FROM %[1]s WHERE created_date_only <= $1 AND application_name = $2 ORDER BY id LIMIT $3)`, table)

	tag, err := s.conn.Exec(ctx, q, cutoff, app, batch)
	if err != nil {
		return 0, shared.MarkKind(fmt.Errorf("postgres: delete batch from %s: %w", table, err), shared.KindDependencyFailure)
	}
	return tag.RowsAffected(), nil
}

func (s *session) Close() error {
	if !s.released {
		s.released = true
		s.conn.Release()
	}
	return nil
}

func scanJobRecord(row pgx.CollectableRow) (inspection.JobRecord, error) {
	var (
		rec                        inspection.JobRecord
		state                      string
		duration                   *float64
		message, exc, inner, stack *string
		data                       []byte
	)
	if err := row.Scan(&rec.ID, &rec.ApplicationName, &rec.JobName, &state, &rec.TraceID, &duration,
		&message, &exc, &inner, &stack, &data, &rec.CreatedDateOnly, &rec.CreatedBy, &rec.CreatedAt); err != nil {
		return inspection.JobRecord{}, err
	}

	rec.State = inspection.JobState(state)
	rec.Message, rec.Exception = deref(message), deref(exc)
	rec.InnerException, rec.StackTrace = deref(inner), deref(stack)
	if duration != nil {
		d := time.Duration(*duration * float64(time.Millisecond))
		rec.Duration = &d
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &rec.Data); err != nil {
			return inspection.JobRecord{}, fmt.Errorf("decode job data: %w", err)
		}
	}
	return rec, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
