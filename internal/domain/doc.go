// Package domain содержит доменные модели Convoy.
//
// Основные сущности:
//   - Operation — операция деплоя MTA (deploy, blue-green deploy, undeploy, rollback)
//   - ProgressMessage — сообщение о ходе операции, видимое пользователю
//   - ServiceOperation — последняя операция над сервисом на платформе
//   - Application, Service — подмножество облачной модели MTA
//   - Hook — пользовательский хук на фазе жизненного цикла модуля
//
// Модели не содержат бизнес-логики выполнения — только данные
// и переходы статусов. Логика шагов живёт в internal/steps.
package domain
