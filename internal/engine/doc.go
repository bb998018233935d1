// Package engine выполняет процессы деплоя тик за тиком.
//
// Engine отвечает за:
//   - Получение новых операций из очереди RabbitMQ
//   - Периодическую проверку активных операций в БД (polling fallback)
//   - Выполнение шагов процесса через steps.Runner
//   - Порождение дочерних под-процессов для параллельного деплоя модулей
//   - Планирование отложенных poll-тиков через delay-очередь
//   - Финализацию операций (FINISHED/ERROR/ABORTED)
//
// Движок не держит состояние процессов в памяти между тиками: позиция
// и переменные персистятся после каждого тика, поэтому после рестарта
// любой экземпляр продолжается ровно с того места, где остановился.
package engine
