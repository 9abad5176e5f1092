// Package retention удерживает таблицы журналов в заданных границах.
//
// Для каждой коллекции (audit, endpoint, http, job) создаётся свой Scheduler.
// Он вычисляет следующее срабатывание cron-выражения в часовом поясе политики,
// спит до него и запускает Sweep через worker.Worker, так что каждая очистка
// оставляет в журнале задач записи Enqueued, Processing и Succeeded/Failed.
//
// Sweep удаляет записи не позже даты отсечения пачками не больше BatchSize и
// только своего приложения. Повторный запуск после полной очистки ничего не
// удаляет, поэтому прерванную очистку можно безопасно повторить.
//
// Пропущенные за время простоя срабатывания не догоняются: после старта
// расписание продолжается со следующего будущего момента.
//
// Пример:
//
//	s, err := retention.NewScheduler(retention.Config{
//		Policy:    policy,
//		Factory:   factory,
//		Clock:     clk,
//		AppName:   "billing",
//		CreatedBy: "Reec",
//	})
//	if err != nil {
//		return err
//	}
//	go s.Run(ctx)
package retention
