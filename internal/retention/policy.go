package retention

import (
	"fmt"
	"time"

	"log-inspection/internal/inspection"
	"log-inspection/internal/shared"
)

// Значения политики по умолчанию.
const (
	DefaultCron          = "0 2 * * *"
	DefaultRetentionDays = 10
	DefaultBatchSize     = 100
	DefaultCreatedBy     = "Reec"
)

// jobNames задаёт имя задачи очистки для каждой коллекции.
var jobNames = map[inspection.Collection]string{
	inspection.CollectionAudit:    "CleanLogAuditWorker",
	inspection.CollectionEndpoint: "CleanLogEndpointWorker",
	inspection.CollectionHTTP:     "CleanLogHttpWorker",
	inspection.CollectionJob:      "CleanLogJobWorker",
}

// JobName возвращает имя задачи очистки коллекции c.
func JobName(c inspection.Collection) string {
	if name, ok := jobNames[c]; ok {
		return name
	}
	return "CleanLog" + string(c) + "Worker"
}

// Policy описывает хранение одной коллекции. Создаётся один раз при старте
// и после этого не меняется.
type Policy struct {
	Collection    inspection.Collection
	Cron          string
	Location      *time.Location // nil означает UTC
	RetentionDays int
	BatchSize     int
	Enabled       bool
}

// DefaultPolicy возвращает включённую политику со значениями по умолчанию.
func DefaultPolicy(c inspection.Collection) Policy {
	return Policy{
		Collection:    c,
		Cron:          DefaultCron,
		Location:      time.UTC,
		RetentionDays: DefaultRetentionDays,
		BatchSize:     DefaultBatchSize,
		Enabled:       true,
	}
}

// JobName возвращает имя задачи очистки для коллекции политики.
func (p Policy) JobName() string {
	return JobName(p.Collection)
}

// location возвращает часовой пояс политики.
func (p Policy) location() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// Validate проверяет параметры очистки. Cron-выражение проверяется
// отдельно при создании планировщика.
func (p Policy) Validate() error {
	if _, err := p.Collection.Table(); err != nil {
		return err
	}
	if p.RetentionDays < 0 {
		return shared.MarkKind(fmt.Errorf("retention %s: negative retention days %d", p.Collection, p.RetentionDays), shared.KindConfig)
	}
	if p.BatchSize <= 0 {
		return shared.MarkKind(fmt.Errorf("retention %s: batch size must be positive, got %d", p.Collection, p.BatchSize), shared.KindConfig)
	}
	return nil
}
