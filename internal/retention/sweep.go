package retention

import (
	"context"
	"fmt"
	"time"

	"log-inspection/internal/inspection"
	"log-inspection/internal/platform/clock"
	"log-inspection/internal/shared"
)

// Deleter удаляет записи коллекции пачками. Его реализует inspection.Session.
type Deleter interface {
	DeleteBatch(ctx context.Context, c inspection.Collection, cutoff time.Time, app string, batch int) (int64, error)
}

// Result итог одного прохода очистки.
type Result struct {
	JobName string
	Deleted int64
	Batches int // число непустых пачек
	Cutoff  time.Time
}

// String возвращает сообщение, которое сохраняется в записи Succeeded.
func (r Result) String() string {
	return fmt.Sprintf("cleanup completed: %s removed %d rows (cutoff: %s)",
		r.JobName, r.Deleted, r.Cutoff.Format(clock.DateLayout))
}

// Cutoff возвращает дату отсечения: сегодня по часам clk минус days дней.
// Время суток не учитывается.
func Cutoff(clk clock.Clock, days int) time.Time {
	return clock.Today(clk).AddDate(0, 0, -days)
}

// Sweep удаляет записи коллекции политики, созданные не позже даты
// отсечения и принадлежащие приложению app. Удаление идёт пачками по
// BatchSize, пока очередная пачка не окажется пустой. Между пачками
// проверяется ctx; при отмене возвращается уже накопленный результат.
func Sweep(ctx context.Context, d Deleter, p Policy, clk clock.Clock, app string) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}

	res := Result{
		JobName: p.JobName(),
		Cutoff:  Cutoff(clk, p.RetentionDays),
	}

	for {
		if err := ctx.Err(); err != nil {
			return res, shared.Wrapf(err, "%s interrupted after %d rows", res.JobName, res.Deleted)
		}

		n, err := d.DeleteBatch(ctx, p.Collection, res.Cutoff, app, p.BatchSize)
		if err != nil {
			return res, shared.Wrapf(err, "%s batch %d", res.JobName, res.Batches+1)
		}
		if err := shared.InvariantF(n <= int64(p.BatchSize),
			"%s: batch removed %d rows, limit %d", res.JobName, n, p.BatchSize); err != nil {
			return res, err
		}
		if n == 0 {
			return res, nil
		}

		res.Deleted += n
		res.Batches++
	}
}
