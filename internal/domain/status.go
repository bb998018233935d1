package domain

// OperationState — статус операции деплоя.
//
// Жизненный цикл:
//
//	RUNNING → FINISHED
//	        ↘ ERROR (может быть продолжена retry — обратно в RUNNING)
//	        ↘ ABORTED (отменена пользователем)
type OperationState string

const (
	// OperationStateRunning — операция выполняется.
	OperationStateRunning OperationState = "RUNNING"

	// OperationStateFinished — операция успешно завершена.
	OperationStateFinished OperationState = "FINISHED"

	// OperationStateError — операция остановлена из-за ошибки.
	// Не финальный статус: пользователь может продолжить операцию (retry)
	// или отменить её (abort).
	OperationStateError OperationState = "ERROR"

	// OperationStateAborted — операция отменена пользователем.
	OperationStateAborted OperationState = "ABORTED"
)

// IsTerminal возвращает true, если статус финальный (операция завершена).
// ERROR не финальный: операция в ERROR может быть продолжена или отменена.
func (s OperationState) IsTerminal() bool {
	switch s {
	case OperationStateFinished, OperationStateAborted:
		return true
	default:
		return false
	}
}

// ServiceOperationType — тип последней операции над сервисом на платформе.
type ServiceOperationType string

const (
	ServiceOperationCreate ServiceOperationType = "CREATE"
	ServiceOperationUpdate ServiceOperationType = "UPDATE"
	ServiceOperationDelete ServiceOperationType = "DELETE"
)

// ServiceOperationState — состояние последней операции над сервисом.
//
// Источник истины — платформа; оркестратор лишь кэширует последнее
// наблюдаемое значение, чтобы решить, продолжать ли polling.
type ServiceOperationState string

const (
	ServiceOperationInitial    ServiceOperationState = "INITIAL"
	ServiceOperationInProgress ServiceOperationState = "IN_PROGRESS"
	ServiceOperationSucceeded  ServiceOperationState = "SUCCEEDED"
	ServiceOperationFailed     ServiceOperationState = "FAILED"
)

// IsTerminal возвращает true, если операция над сервисом завершена.
func (s ServiceOperationState) IsTerminal() bool {
	switch s {
	case ServiceOperationSucceeded, ServiceOperationFailed:
		return true
	default:
		return false
	}
}

// ServiceOperation — последняя операция над сервис-инстансом.
type ServiceOperation struct {
	// Type — тип операции (CREATE/UPDATE/DELETE).
	Type ServiceOperationType `json:"type"`

	// State — состояние операции.
	State ServiceOperationState `json:"state"`

	// Description — описание от платформы.
	// Для FAILED без описания синтезируется дефолтное (см. Normalize).
	Description string `json:"description,omitempty"`
}

// DefaultFailureDescription — описание FAILED-операции, когда платформа
// не вернула собственного.
const DefaultFailureDescription = "The service broker did not provide a failure description"

// Normalize возвращает копию операции с заполненным Description
// для FAILED-состояний без описания.
func (o ServiceOperation) Normalize() ServiceOperation {
	if o.State == ServiceOperationFailed && o.Description == "" {
		o.Description = DefaultFailureDescription
	}
	return o
}

// BindingOperation — последняя операция над service binding или service key.
// Платформа ведёт их тем же протоколом last operation, что и сервисы.
type BindingOperation struct {
	Type        ServiceOperationType  `json:"type"`
	State       ServiceOperationState `json:"state"`
	Description string                `json:"description,omitempty"`
}

// InstanceState — состояние одного инстанса приложения.
type InstanceState string

const (
	InstanceStarting InstanceState = "STARTING"
	InstanceRunning  InstanceState = "RUNNING"
	InstanceCrashed  InstanceState = "CRASHED"
	InstanceDown     InstanceState = "DOWN"
)

// InstanceInfo — наблюдаемое состояние одного инстанса приложения.
type InstanceInfo struct {
	Index int           `json:"index"`
	State InstanceState `json:"state"`
}

// JobState — состояние асинхронного job платформы.
//
// Используется для операций, за которыми платформа следит по opaque id:
// регистрация сервис-брокеров, загрузка пакетов.
type JobState string

const (
	JobProcessing JobState = "PROCESSING"
	JobPolling    JobState = "POLLING"
	JobComplete   JobState = "COMPLETE"
	JobFailed     JobState = "FAILED"
)

// IsTerminal возвращает true, если job завершён.
func (s JobState) IsTerminal() bool {
	return s == JobComplete || s == JobFailed
}

// TaskState — состояние CF task (одноразовой команды в контейнере приложения).
type TaskState string

const (
	TaskStatePending   TaskState = "PENDING"
	TaskStateRunning   TaskState = "RUNNING"
	TaskStateSucceeded TaskState = "SUCCEEDED"
	TaskStateFailed    TaskState = "FAILED"
)
