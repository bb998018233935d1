package steps

import (
	"time"

	"github.com/shaiso/Convoy/internal/cf"
	"github.com/shaiso/Convoy/internal/descriptor"
	"github.com/shaiso/Convoy/internal/domain"
	"github.com/shaiso/Convoy/internal/process"
)

// Общие переменные процесса, разделяемые шагами и poller'ами.
//
// Инвариант pending-набора: ресурс присутствует в VarServicesToPoll
// тогда и только тогда, когда для него выпущен мутирующий вызов
// платформы и его терминальное состояние ещё не наблюдалось.
var (
	// VarDescriptor — развёрнутый дескриптор деплоя.
	VarDescriptor = process.NewVariable[*descriptor.Descriptor]("deploymentDescriptor")

	// VarServicesToProcess — сервисы, обрабатываемые текущим шагом.
	VarServicesToProcess = process.NewVariable[[]domain.Service]("servicesToProcess")

	// VarTriggeredServiceOperations — какие мутирующие операции выпущены
	// по каждому сервису (имя ресурса → тип операции).
	VarTriggeredServiceOperations = process.NewVariable[map[string]domain.ServiceOperationType]("triggeredServiceOperations")

	// VarServicesToPoll — имена сервисов с незавершёнными операциями.
	// Пишется инициирующим шагом, читается и сокращается poller'ом
	// каждый тик до пустоты.
	VarServicesToPoll = process.NewVariable[[]string]("servicesToPoll").
				WithLegacyNames("servicesData") // имя до версии 2

	// VarAppToProcess — приложение, обрабатываемое шагами модуля.
	VarAppToProcess = process.NewVariable[*domain.Application]("appToProcess")

	// VarExistingApp — живое приложение, замещаемое новым при
	// blue-green rolling-обновлении.
	VarExistingApp = process.NewVariable[*domain.Application]("existingApp")

	// VarServiceKeysToCreate — сервис-ключи к созданию.
	VarServiceKeysToCreate = process.NewVariable[[]domain.ServiceKey]("serviceKeysToCreate")

	// VarBindingsToPoll — связки/ключи с незавершёнными операциями
	// (ключ "service/binding-name" → опциональность).
	VarBindingsToPoll = process.NewVariable[map[string]bool]("bindingsToPoll")

	// VarBrokersToRegister — брокеры к регистрации.
	VarBrokersToRegister = process.NewVariable[[]domain.ServiceBroker]("brokersToRegister")

	// VarBrokersToDelete — имена брокеров к удалению (undeploy).
	VarBrokersToDelete = process.NewVariable[[]string]("brokersToDelete")

	// VarBrokerJobs — job GUID по имени брокера для generic async-job polling.
	VarBrokerJobs = process.NewVariable[map[string]string]("brokerJobs")

	// VarTaskToExecute — одноразовый task модуля (из дескриптора).
	VarTaskToExecute = process.NewVariable[*cf.Task]("taskToExecute")

	// VarStartedTask — запущенный CF task шага execute-task.
	VarStartedTask = process.NewVariable[*cf.Task]("startedTask")

	// VarArchivePath — путь к архиву модуля в локальном стейдже движка.
	VarArchivePath = process.NewVariable[string]("archivePath")

	// VarUploadID — идентификатор фоновой загрузки пакета.
	VarUploadID = process.NewVariable[string]("uploadId")

	// VarUploadPackage — GUID пакета, в который идёт загрузка.
	VarUploadPackage = process.NewVariable[string]("uploadPackage")

	// VarUploadedPackage — GUID загруженного пакета.
	VarUploadedPackage = process.NewVariable[string]("uploadedPackage")

	// VarIncrementalUpdate — снимок rolling-обновления инстансов.
	// Каждый тик заменяется новой копией, никогда не мутируется.
	VarIncrementalUpdate = process.NewVariable[*domain.IncrementalInstanceUpdate]("incrementalInstanceUpdate")

	// VarLogOffsets — оффсеты прочитанных логов по имени приложения.
	VarLogOffsets = process.NewVariable[map[string]int64]("appLogOffsets")

	// VarExecutedHooks — выполненные хуки ("module/phase/hook" → true).
	VarExecutedHooks = process.NewVariable[map[string]bool]("executedHooks")

	// VarFailOnCrash — считать ли CRASHED инстанс ошибкой старта.
	VarFailOnCrash = process.NewVariable[bool]("failOnCrashed").WithDefault(true)

	// VarNoFailOnMissingPermissions — допускать 403/502 на операциях
	// с брокерами (warn-and-continue).
	VarNoFailOnMissingPermissions = process.NewVariable[bool]("noFailOnMissingPermissions")

	// VarServiceCredentials — чувствительные креды, добавляемые в env
	// приложений. Шифруются в хранилище.
	VarServiceCredentials = process.NewVariable[map[string]any]("serviceCredentials").AsSensitive()
)

// phaseVar — фаза шага; отдельная переменная на имя шага.
func phaseVar(stepName string) process.Variable[StepPhase] {
	return process.NewVariable[StepPhase]("stepPhase:" + stepName).WithDefault(PhaseExecute)
}

// stageVar — индекс активной poll-единицы шага.
func stageVar(stepName string) process.Variable[int] {
	return process.NewVariable[int]("stepStage:" + stepName)
}

// startTimeVar — время первого входа в шаг; сбрасывается на RETRY,
// чтобы повторённый шаг получил свежее окно таймаута.
func startTimeVar(stepName string) process.Variable[time.Time] {
	return process.NewVariable[time.Time]("stepStartTime:" + stepName)
}

// taskIDVar — task id текущей активности движка (для progress-сообщений).
var taskIDVar = process.NewVariable[string]("currentTaskId")

// errorMarkerVar — маркер ошибки предыдущей попытки шага.
// Чистится pre-step hook'ом перед новым заходом.
var errorMarkerVar = process.NewVariable[string]("stepErrorMarker")
