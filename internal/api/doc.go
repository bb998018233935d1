// Package api предоставляет HTTP API для управления операциями деплоя.
//
// Структура:
//   - handler.go           — главный обработчик с зависимостями
//   - operation_handler.go — запуск/список/отмена/возобновление операций
//   - dto.go               — структуры запросов/ответов
//   - response.go          — helpers для JSON ответов
//   - middleware.go        — logging, recovery
//   - routes.go            — регистрация маршрутов
package api
