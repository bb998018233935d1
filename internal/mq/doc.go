// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений
//   - consumer.go   — потребление сообщений
//
// Типы сообщений:
//   - operation.started  — новая операция ожидает выполнения
//   - step.tick          — тик процесса (немедленный или отложенный)
//   - operation.finished — операция завершена
//
// Отложенные тики реализованы через delay-очередь: сообщение
// публикуется в ticks.delay с per-message TTL и без потребителей;
// по истечении TTL брокер перекладывает его через dead-letter
// routing в ticks.step, откуда его забирает движок. Так poll-интервал
// между тиками не держит ни одной горутины.
package mq
