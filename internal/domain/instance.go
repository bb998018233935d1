package domain

import (
	"time"

	"github.com/google/uuid"
)

// InstanceRunState — состояние экземпляра процесса в движке.
type InstanceRunState string

const (
	InstanceActive    InstanceRunState = "ACTIVE"
	InstanceCompleted InstanceRunState = "COMPLETED"
	InstanceFailed    InstanceRunState = "FAILED"
	InstanceAborted   InstanceRunState = "ABORTED"
)

// ProcessInstance — один экземпляр процесса деплоя.
//
// Корневой экземпляр соответствует операции целиком; дочерние
// экземпляры порождаются для параллельного деплоя модулей и ссылаются
// на родителя через ParentID. Позиция (StepIndex) персистится после
// каждого тика — после рестарта движок продолжает с того же шага.
type ProcessInstance struct {
	ID          uuid.UUID        `json:"id"`
	OperationID uuid.UUID        `json:"operation_id"`
	ParentID    *uuid.UUID       `json:"parent_id,omitempty"`
	Type        ProcessType      `json:"type"`
	ModuleName  string           `json:"module_name,omitempty"`
	StepIndex   int              `json:"step_index"`
	State       InstanceRunState `json:"state"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// IsFinished возвращает true, если экземпляр в терминальном состоянии.
func (i *ProcessInstance) IsFinished() bool {
	return i.State != InstanceActive
}
