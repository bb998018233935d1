// Package process реализует контекст процесса деплоя: типизированный
// доступ к durable-переменным движка.
//
// Включает:
//   - variable.go — типизированные дескрипторы Variable[T] с JSON-кодеком
//   - context.go  — Context: Get/Set/Remove поверх Store, клиент платформы
//   - store.go    — интерфейс Store и in-memory реализация
//   - secure.go   — шифрующая обёртка для чувствительных значений
//
// Каждая запись пишется в Store немедленно (write-through): падение
// движка между под-шагами не теряет уже вычисленное состояние.
package process
