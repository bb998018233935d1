// Package janitor реализует фоновую уборку хранилища операций.
//
// По cron-расписанию janitor:
//   - удаляет завершённые операции старше периода хранения
//     (progress-сообщения и переменные уходят каскадом);
//   - снимает stale lock'и операций, завершившихся между
//     сменой статуса и снятием lock'а.
//
// Операции в статусе ERROR не трогаются: они удерживают lock
// намеренно и ждут resume или abort от пользователя.
//
// Использование:
//
//	j := janitor.New(janitor.Config{
//	    Operations: operationRepo,
//	    Schedule:   "0 3 * * *",
//	    Retention:  "720h",
//	    Logger:     logger,
//	})
//	if err := j.Start(); err != nil { ... }
//	defer j.Stop()
package janitor
