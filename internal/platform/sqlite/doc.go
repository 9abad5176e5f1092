// Package sqlite предоставляет инфраструктурные компоненты для работы с SQLite:
// встроенное хранилище журналов по умолчанию.
//
// Основные возможности:
// - Открытие БД с настройками пула и PRAGMA на каждое соединение
// - Миграции golang-migrate из встроенной файловой системы (embed.FS)
// - Распознавание SQLITE_BUSY для повторных попыток записи
// - Тестовые хелперы
//
// # Быстрый старт
//
//	db, err := sqlite.NewDB(ctx, "data/inspection.db")
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
//	info, err := sqlite.ApplyMigrationsFS(db, migrations.FS, migrations.SQLiteDir)
//
// # Тестирование
//
//	func TestSweep(t *testing.T) {
//		testDB := sqlite.NewTestDBInMemory(t)
//		testDB.Migrate(t, migrations.FS, migrations.SQLiteDir)
//		// testDB.DB закрывается автоматически
//	}
package sqlite
