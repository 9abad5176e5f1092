// Package pg содержит инфраструктуру PostgreSQL: пул pgx, построение DSN,
// ожидание готовности БД при старте и миграции из встроенной файловой системы.
//
//	dsn := pg.BuildDSN(pg.DSNConfig{User: "inspector", Database: "logs", ApplicationName: "billing"})
//	if err := pg.WaitForDB(ctx, dsn, pg.DefaultHealthCheckOptions()); err != nil {
//		return err
//	}
//	info, err := pg.ApplyMigrationsFromFS(dsn, migrations.FS, migrations.PostgresDir)
//	pool, err := pg.NewPool(ctx, dsn, pg.DefaultPoolOptions())
package pg
