// Package steps реализует движок пошагового выполнения операций деплоя.
//
// Ядро:
//   - phase.go     — state machine фаз шага и состояния poll-попыток
//   - step.go      — интерфейс Step и capability-интерфейсы
//   - runner.go    — обёртка выполнения: фазы, таймауты, хуки, abort, ошибки
//   - errors.go    — таксономия ошибок и перевод ошибок платформы
//   - timeout.go   — многоуровневое разрешение таймаутов шагов
//   - hooks.go     — выполнение пользовательских хуков модулей
//   - registry.go  — реестр шагов по имени
//
// Шаги (create_services, start_app, upload_app, ...) — идемпотентные,
// возобновляемые единицы: шаг безопасно перевызывать с фазы EXECUTE
// после падения движка между «выпустили вызов платформы» и
// «записали job id» — перед повторным мутирующим вызовом шаг сверяется
// с текущим состоянием платформы.
package steps
