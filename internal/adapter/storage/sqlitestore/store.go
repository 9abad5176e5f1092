// Package sqlitestore implements the job record store on top of SQLite.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"log-inspection/internal/inspection"
	"log-inspection/internal/platform/clock"
	"log-inspection/internal/platform/sqlite"
	"log-inspection/internal/shared"
	"log-inspection/pkg/retry"
)

// Store хранит журнал задач и логи в SQLite.
type Store struct {
	db    *sql.DB
	log   *slog.Logger
	retry retry.Config
}

// Option настраивает Store.
type Option func(*Store)

// WithRetry задаёт политику повторов записи при SQLITE_BUSY.
func WithRetry(cfg retry.Config) Option {
	return func(s *Store) { s.retry = cfg }
}

// New оборачивает уже открытую и смигрированную базу.
// Владельцем db остаётся вызывающий код, Close закрывает её.
func New(db *sql.DB, log *slog.Logger, opts ...Option) *Store {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{
		db:    db,
		log:   log.With("component", "sqlitestore"),
		retry: retry.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open выделяет отдельное соединение под сессию.
func (s *Store) Open(ctx context.Context) (inspection.Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, shared.MarkKind(fmt.Errorf("sqlite: acquire connection: %w", err), shared.KindDependencyFailure)
	}
	return &session{conn: conn, store: s}, nil
}

// Ping проверяет доступность базы.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close закрывает базу.
func (s *Store) Close() error {
	return s.db.Close()
}

// JobRecords возвращает записи журнала задач, новые первыми.
func (s *Store) JobRecords(ctx context.Context, f inspection.JobFilter) ([]inspection.JobRecord, error) {
	var (
		where []string
		args  []any
	)
	if f.ApplicationName != "" {
		where = append(where, "application_name = ?")
		args = append(args, f.ApplicationName)
	}
	if f.JobName != "" {
		where = append(where, "job_name = ?")
		args = append(args, f.JobName)
	}
	if f.TraceID != "" {
		where = append(where, "trace_id = ?")
		args = append(args, f.TraceID)
	}
	if f.State != "" {
		where = append(where, "state = ?")
		args = append(args, string(f.State))
	}

	q := `SELECT id, application_name, job_name, state, trace_id, duration_ms, message,
		exception, inner_exception, stack_trace, data, created_date_only, created_by, created_at
		FROM log_job`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id DESC LIMIT ?"
	args = append(args, f.EffectiveLimit())

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, shared.MarkKind(fmt.Errorf("sqlite: query job records: %w", err), shared.KindDependencyFailure)
	}
	defer rows.Close()

	var out []inspection.JobRecord
	for rows.Next() {
		rec, err := scanJobRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.MarkKind(fmt.Errorf("sqlite: iterate job records: %w", err), shared.KindDependencyFailure)
	}
	return out, nil
}

type session struct {
	conn  *sql.Conn
	store *Store
}

func (s *session) AddJobRecord(ctx context.Context, rec inspection.JobRecord) error {
	var data sql.NullString
	if len(rec.Data) > 0 {
		raw, err := json.Marshal(rec.Data)
		if err != nil {
			return fmt.Errorf("sqlite: encode job data: %w", err)
		}
		data = sql.NullString{String: string(raw), Valid: true}
	}

	var duration sql.NullFloat64
	if rec.Duration != nil {
		duration = sql.NullFloat64{Float64: float64(*rec.Duration) / float64(time.Millisecond), Valid: true}
	}

	const q = `INSERT INTO log_job (application_name, job_name, state, trace_id, duration_ms, message,
		exception, inner_exception, stack_trace, data, created_date_only, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	err := retry.DoWithRetryable(ctx, s.store.retry, func(ctx context.Context) error {
		_, err := s.conn.ExecContext(ctx, q,
			rec.ApplicationName, rec.JobName, string(rec.State), rec.TraceID, duration,
			nullString(rec.Message), nullString(rec.Exception), nullString(rec.InnerException),
			nullString(rec.StackTrace), data,
			rec.CreatedDateOnly.Format(clock.DateLayout), rec.CreatedBy,
			rec.CreatedAt.Format(time.RFC3339Nano),
		)
		return err
	}, sqlite.IsBusy)
	if err != nil {
		return shared.MarkKind(fmt.Errorf("sqlite: insert job record: %w", err), shared.KindDependencyFailure)
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

	// ORDER BY id удаляет самые старые записи первыми
	q := fmt.Sprintf(`DELETE FROM %[1]s WHERE id IN (
		SELECT id FROM %[1]s WHERE created_date_only <= ? AND application_name = ? ORDER BY id LIMIT ?)`, table)

	res, err := s.conn.ExecContext(ctx, q, cutoff.Format(clock.DateLayout), app, batch)
	if err != nil {
		return 0, shared.MarkKind(fmt.Errorf("sqlite: delete batch from %s: %w", table, err), shared.KindDependencyFailure)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return n, nil
}

func (s *session) Close() error {
	err := s.conn.Close()
	if errors.Is(err, sql.ErrConnDone) {
		return nil
	}
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJobRecord(row scanner) (inspection.JobRecord, error) {
	var (
		rec                              inspection.JobRecord
		state, dateOnly, createdAt       string
		duration                         sql.NullFloat64
		message, exc, inner, stack, data sql.NullString
	)
	if err := row.Scan(&rec.ID, &rec.ApplicationName, &rec.JobName, &state, &rec.TraceID, &duration,
		&message, &exc, &inner, &stack, &data, &dateOnly, &rec.CreatedBy, &createdAt); err != nil {
		return inspection.JobRecord{}, fmt.Errorf("sqlite: scan job record: %w", err)
	}

	rec.State = inspection.JobState(state)
	rec.Message, rec.Exception, rec.InnerException, rec.StackTrace = message.String, exc.String, inner.String, stack.String
	if duration.Valid {
		d := time.Duration(duration.Float64 * float64(time.Millisecond))
		rec.Duration = &d
	}
	if data.Valid && data.String != "" {
		if err := json.Unmarshal([]byte(data.String), &rec.Data); err != nil {
			return inspection.JobRecord{}, fmt.Errorf("sqlite: decode job data: %w", err)
		}
	}

	var err error
	if rec.CreatedDateOnly, err = time.Parse(clock.DateLayout, dateOnly); err != nil {
		return inspection.JobRecord{}, fmt.Errorf("sqlite: parse created_date_only: %w", err)
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return inspection.JobRecord{}, fmt.Errorf("sqlite: parse created_at: %w", err)
	}
	return rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
