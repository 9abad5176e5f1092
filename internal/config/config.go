// Package config loads the immutable process configuration from the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"log-inspection/internal/inspection"
	"log-inspection/internal/platform/clock"
	"log-inspection/internal/platform/pg"
	"log-inspection/internal/platform/sqlite"
	"log-inspection/internal/shared"
)

// Retention is the policy of one log collection as configured.
type Retention struct {
	Enabled bool
	Cron    string `validate:"required_if=Enabled true"`
	Days    int    `validate:"min=0,max=36500"`
	Batch   int    `validate:"min=1,max=100000"`
}

// Config holds application configuration values.
type Config struct {
	Env string `validate:"required,oneof=dev prod"`
	App struct {
		Name      string `validate:"required,max=200"`
		TimeZone  string `validate:"tzname"`
		CleanUser string `validate:"required,max=100"`
	}
	DB struct {
		Driver      string `validate:"required,oneof=sqlite postgres"`
		SQLitePath  string `validate:"required_if=Driver sqlite"`
		Postgres    pg.DSNConfig
		PostgresDSN string
		Migrate     bool
		WaitTimeout time.Duration `validate:"min=0s"`
	}
	HTTP struct {
		Addr string
	}
	Telegram struct {
		Token    string
		ChatID   int64 `validate:"required_with=Token"`
		Throttle time.Duration
	}
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
	Retention       map[inspection.Collection]Retention `validate:"dive"`
	ShutdownTimeout time.Duration                       `validate:"min=1s"`
}

// Location resolves App.TimeZone.
func (c Config) Location() (*time.Location, error) {
	return clock.LoadLocation(c.App.TimeZone)
}

// PostgresURL returns PG_DSN when set, otherwise a DSN built from the parts.
func (c Config) PostgresURL() string {
	if c.DB.PostgresDSN != "" {
		return c.DB.PostgresDSN
	}
	return pg.BuildDSN(c.DB.Postgres)
}

// NotificationsEnabled reports whether failure notifications are configured.
func (c Config) NotificationsEnabled() bool {
	return c.Telegram.Token != ""
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("tzname", func(fl validator.FieldLevel) bool {
		_, err := clock.LoadLocation(fl.Field().String())
		return err == nil
	})
	return v
}

// Load reads configuration from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds and validates a Config from getenv.
func FromEnv(getenv func(string) string) (Config, error) {
	e := env{get: getenv}

	var c Config
	c.Env = e.str("ENV", "prod")
	c.App.Name = e.str("APP_NAME", "")
	c.App.TimeZone = e.str("APP_TIME_ZONE", "UTC")
	c.App.CleanUser = e.str("CLEAN_USER", "Reec")

	c.DB.Driver = strings.ToLower(e.str("DB_DRIVER", "sqlite"))
	c.DB.SQLitePath = e.str("SQLITE_PATH", "data/inspection.db")
	c.DB.Postgres = pg.DSNConfig{
		Host:            e.str("PG_HOST", "localhost"),
		Port:            e.int("PG_PORT", 5432),
		User:            e.str("PG_USER", ""),
		Password:        e.str("PG_PASSWORD", ""),
		Database:        e.str("PG_DATABASE", ""),
		SSLMode:         e.str("PG_SSLMODE", "disable"),
		ApplicationName: c.App.Name,
		ConnectTimeout:  10,
	}
	c.DB.PostgresDSN = e.str("PG_DSN", "")
	c.DB.Migrate = e.bool("DB_MIGRATE", true)
	c.DB.WaitTimeout = e.duration("DB_WAIT_TIMEOUT", time.Minute)

	c.HTTP.Addr = e.str("HTTP_ADDR", "")

	c.Telegram.Token = e.str("TELEGRAM_BOT_TOKEN", "")
	c.Telegram.ChatID = e.int64("TELEGRAM_CHAT_ID", 0)
	c.Telegram.Throttle = e.duration("TELEGRAM_THROTTLE", time.Minute)

	c.Log.ConsoleLevel = strings.ToLower(e.str("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(e.str("LOG_FILE_LEVEL", "debug"))
	c.Log.File = e.str("LOG_FILE", "data/logs/inspector.log")

	c.Retention = make(map[inspection.Collection]Retention, 4)
	for _, col := range inspection.Collections() {
		prefix := "RETENTION_" + strings.ToUpper(string(col)) + "_"
		c.Retention[col] = Retention{
			Enabled: e.bool(prefix+"ENABLED", true),
			Cron:    e.str(prefix+"CRON", "0 2 * * *"),
			Days:    e.int(prefix+"DAYS", 10),
			Batch:   e.int(prefix+"BATCH", 100),
		}
	}

	c.ShutdownTimeout = e.duration("SHUTDOWN_TIMEOUT", 30*time.Second)

	if err := e.err(); err != nil {
		return Config{}, shared.MarkKind(err, shared.KindConfig)
	}
	if err := validate.Struct(c); err != nil {
		return Config{}, shared.MarkKind(err, shared.KindConfig)
	}
	if c.DB.Driver == "postgres" {
		if c.DB.PostgresDSN == "" {
			if err := pg.ValidateConfig(c.DB.Postgres); err != nil {
				return Config{}, shared.MarkKind(err, shared.KindConfig)
			}
		}
	}
	if c.DB.Driver == "sqlite" && c.DB.SQLitePath == sqlite.MemoryPath {
		return Config{}, shared.MarkKind(errors.New("SQLITE_PATH must be a file"), shared.KindConfig)
	}
	return c, nil
}

// env reads typed values and collects parse errors.
type env struct {
	get  func(string) string
	errs []error
}

func (e *env) str(k, def string) string {
	if v := strings.TrimSpace(e.get(k)); v != "" {
		return v
	}
	return def
}

func (e *env) int(k string, def int) int {
	v := e.str(k, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not an integer", k, v))
		return def
	}
	return n
}

func (e *env) int64(k string, def int64) int64 {
	v := e.str(k, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not an integer", k, v))
		return def
	}
	return n
}

func (e *env) bool(k string, def bool) bool {
	v := e.str(k, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a boolean", k, v))
		return def
	}
	return b
}

func (e *env) duration(k string, def time.Duration) time.Duration {
	v := e.str(k, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a duration", k, v))
		return def
	}
	return d
}

func (e *env) err() error {
	return errors.Join(e.errs...)
}
