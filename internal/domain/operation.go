package domain

import (
	"time"

	"github.com/google/uuid"
)

// ProcessType — тип процесса деплоя.
type ProcessType string

const (
	ProcessTypeDeploy          ProcessType = "DEPLOY"
	ProcessTypeBlueGreenDeploy ProcessType = "BLUE_GREEN_DEPLOY"
	ProcessTypeUndeploy        ProcessType = "UNDEPLOY"
	ProcessTypeRollbackMTA     ProcessType = "ROLLBACK_MTA"
)

// ApplicationColor — цвет приложения в blue-green деплое.
type ApplicationColor string

const (
	ColorBlue  ApplicationColor = "blue"
	ColorGreen ApplicationColor = "green"
)

// Opposite возвращает противоположный цвет.
func (c ApplicationColor) Opposite() ApplicationColor {
	if c == ColorBlue {
		return ColorGreen
	}
	return ColorBlue
}

// Operation — операция деплоя MTA.
//
// Operation создаётся когда пользователь запускает deploy/undeploy
// (через API/CLI) и живёт до финального статуса. Запись операции
// одновременно служит advisory-lock'ом: пока AcquiredLock=true,
// никакая другая операция не может менять тот же MTA в том же
// space/namespace.
type Operation struct {
	// ID — уникальный идентификатор операции.
	// Он же correlation id процесса в движке.
	ID uuid.UUID `json:"id"`

	// Type — тип процесса (DEPLOY, BLUE_GREEN_DEPLOY, UNDEPLOY, ROLLBACK_MTA).
	Type ProcessType `json:"type"`

	// MTAID — идентификатор MTA из дескриптора.
	MTAID string `json:"mta_id"`

	// Namespace — namespace деплоя (опционально).
	Namespace string `json:"namespace,omitempty"`

	// SpaceID — GUID целевого space.
	SpaceID string `json:"space_id"`

	// OrgID — GUID целевой организации.
	OrgID string `json:"org_id"`

	// User — пользователь, запустивший операцию.
	User string `json:"user,omitempty"`

	// State — текущий статус операции.
	State OperationState `json:"state"`

	// AcquiredLock — удерживает ли операция advisory lock
	// на (mta_id, namespace, space_id).
	AcquiredLock bool `json:"acquired_lock"`

	// AbortRequested — запрошена ли отмена. Runner проверяет флаг
	// после каждого синхронного шага и перед каждым poll-тиком.
	AbortRequested bool `json:"abort_requested,omitempty"`

	// Error — текст ошибки, если операция в статусе ERROR.
	Error string `json:"error,omitempty"`

	// StartedAt — время старта операции.
	StartedAt time.Time `json:"started_at"`

	// EndedAt — время завершения. Nil, пока операция не завершена.
	EndedAt *time.Time `json:"ended_at,omitempty"`
}

// IsFinished возвращает true, если операция завершена.
func (o *Operation) IsFinished() bool {
	return o.State.IsTerminal()
}

// MarkFinished переводит операцию в FINISHED и снимает lock.
func (o *Operation) MarkFinished() {
	now := time.Now()
	o.State = OperationStateFinished
	o.AcquiredLock = false
	o.EndedAt = &now
}

// MarkError переводит операцию в ERROR с текстом ошибки.
// Lock не снимается: операция может быть продолжена retry.
func (o *Operation) MarkError(err string) {
	o.State = OperationStateError
	o.Error = err
}

// MarkAborted переводит операцию в ABORTED и снимает lock.
func (o *Operation) MarkAborted() {
	now := time.Now()
	o.State = OperationStateAborted
	o.AcquiredLock = false
	o.EndedAt = &now
}

// MarkResumed возвращает операцию из ERROR в RUNNING (retry пользователем).
func (o *Operation) MarkResumed() {
	o.State = OperationStateRunning
	o.Error = ""
}

// ProgressMessageType — тип сообщения о ходе операции.
type ProgressMessageType string

const (
	ProgressInfo        ProgressMessageType = "INFO"
	ProgressWarning     ProgressMessageType = "WARNING"
	ProgressError       ProgressMessageType = "ERROR"
	ProgressTaskStartup ProgressMessageType = "TASK_STARTUP"
)

// ProgressMessage — сообщение о ходе операции, видимое пользователю.
//
// Сообщение об ошибке персистится до того, как ошибка шага
// останавливает процесс — диагностика переживает abort.
type ProgressMessage struct {
	ID          int64               `json:"id"`
	OperationID uuid.UUID           `json:"operation_id"`
	TaskID      string              `json:"task_id"`
	Type        ProgressMessageType `json:"type"`
	Text        string              `json:"text"`
	Timestamp   time.Time           `json:"timestamp"`
}
