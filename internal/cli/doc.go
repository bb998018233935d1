// Package cli реализует инструмент командной строки Convoy.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Convoy API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
// Используется для запуска деплоев и наблюдения за операциями.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Convoy API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	ops, err := client.ListOperations(cli.ListOperationsOpts{})
//
// ## Output
//
// Форматирование вывода: таблицы (text/tabwriter) по умолчанию,
// JSON с флагом --json. Данные идут в stdout, сообщения — в stderr,
// так что вывод можно пайпить: convoy op list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - deploy / bg-deploy / undeploy / rollback: запуск операции
//     из дескриптора с последующим tail progress-сообщений
//   - op: list, show, abort, resume, logs
//
// Каждая группа создаётся через фабричную функцию (NewOperationCmd
// и т.д.), принимающую clientFn и outputFn — замыкания для ленивого
// создания Client и Output после парсинга PersistentFlags.
package cli
