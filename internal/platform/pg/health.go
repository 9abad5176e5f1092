package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"log-inspection/pkg/retry"
)

// HealthCheckOptions задаёт ожидание готовности БД при старте.
type HealthCheckOptions struct {
	MaxRetries      int           // 0 - пока не истечёт контекст
	InitialInterval time.Duration // пауза после первой неудачи, дальше удваивается
	MaxInterval     time.Duration // потолок паузы
	PingTimeout     time.Duration // на одну попытку

	// OnRetry вызывается перед каждой паузой (для логов старта).
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultHealthCheckOptions возвращает опции по умолчанию.
func DefaultHealthCheckOptions() HealthCheckOptions {
	return HealthCheckOptions{
		InitialInterval: time.Second,
		MaxInterval:     15 * time.Second,
		PingTimeout:     5 * time.Second,
	}
}

func (o HealthCheckOptions) retryConfig() retry.Config {
	attempts := o.MaxRetries
	if attempts <= 0 {
		attempts = retry.Unlimited
	}
	return retry.Config{
		MaxAttempts:  attempts,
		InitialDelay: o.InitialInterval,
		MaxDelay:     o.MaxInterval,
		Multiplier:   2,
		OnRetry:      o.OnRetry,
	}
}

// WaitForDB ждёт, пока база начнёт отвечать на ping. Нужен при старте в
// контейнере, когда PostgreSQL поднимается вместе с сервисом. Любая ошибка
// подключения считается временной; останавливают только отмена ctx и
// исчерпание MaxRetries.
func WaitForDB(ctx context.Context, dsn string, opts HealthCheckOptions) error {
	err := retry.DoWithRetryable(ctx, opts.retryConfig(), func(ctx context.Context) error {
		return pingDatabase(ctx, dsn, opts.PingTimeout)
	}, func(err error) bool {
		return !errors.Is(err, context.Canceled)
	})
	if err == nil {
		return nil
	}

	var exceeded *retry.RetriesExceededError
	if errors.As(err, &exceeded) {
		return fmt.Errorf("database not available after %d attempts: %w", exceeded.Attempts, exceeded.LastError)
	}
	return fmt.Errorf("waiting for database: %w", err)
}

// HealthCheckPool проверяет существующий пул запросом SELECT 1.
func HealthCheckPool(ctx context.Context, pool *pgxpool.Pool) error {
	if pool == nil {
		return errors.New("pool is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var one int
	if err := pool.QueryRow(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("health query: %w", err)
	}
	if one != 1 {
		return fmt.Errorf("health query returned %d", one)
	}
	return nil
}

func pingDatabase(ctx context.Context, dsn string, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}
