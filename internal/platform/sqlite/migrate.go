package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	migrate "github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// MigrationInfo описывает состояние схемы после применения миграций.
type MigrationInfo struct {
	Version uint
	Dirty   bool
	Applied bool // false если новых миграций не было
}

// newMigrate собирает экземпляр migrate поверх уже открытого *sql.DB.
// Работа через WithInstance нужна для in-memory баз: отдельное соединение
// увидело бы другую, пустую базу.
func newMigrate(db *sql.DB, fsys fs.FS, dir string) (*migrate.Migrate, error) {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open migrations source %q: %w", dir, err)
	}

	drv, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("failed to create sqlite migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", drv)
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// ApplyMigrationsFS применяет все миграции из каталога dir файловой системы fsys.
// Повторный вызов безопасен: migrate.ErrNoChange ошибкой не считается.
//
// m.Close() не вызывается намеренно: драйвер закрыл бы общий *sql.DB,
// которым владеет вызывающий код.
func ApplyMigrationsFS(db *sql.DB, fsys fs.FS, dir string) (MigrationInfo, error) {
	m, err := newMigrate(db, fsys, dir)
	if err != nil {
		return MigrationInfo{}, err
	}

	info := MigrationInfo{Applied: true}
	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return MigrationInfo{}, fmt.Errorf("failed to apply migrations: %w", err)
		}
		info.Applied = false
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return MigrationInfo{}, fmt.Errorf("failed to get migration version: %w", err)
	}
	info.Version, info.Dirty = version, dirty

	return info, nil
}

// ResetMigrationsFS откатывает все миграции. Используется только в тестах.
func ResetMigrationsFS(db *sql.DB, fsys fs.FS, dir string) error {
	m, err := newMigrate(db, fsys, dir)
	if err != nil {
		return err
	}
	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to reset migrations: %w", err)
	}
	return nil
}
