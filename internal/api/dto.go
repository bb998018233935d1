package api

import (
	"fmt"

	"github.com/shaiso/Convoy/internal/domain"
)

// StartOperationRequest — запрос на запуск операции деплоя.
//
// Descriptor — развёрнутый дескриптор деплоя (mtad.yaml) в base64
// не кодируется: JSON-строка с YAML содержимым.
type StartOperationRequest struct {
	Type       string `json:"type"`
	OrgID      string `json:"org_id"`
	SpaceID    string `json:"space_id"`
	Namespace  string `json:"namespace,omitempty"`
	User       string `json:"user,omitempty"`
	Descriptor string `json:"descriptor"`
}

// Validate проверяет корректность запроса.
func (r *StartOperationRequest) Validate() error {
	switch domain.ProcessType(r.Type) {
	case domain.ProcessTypeDeploy, domain.ProcessTypeBlueGreenDeploy,
		domain.ProcessTypeUndeploy, domain.ProcessTypeRollbackMTA:
	default:
		return fmt.Errorf("unknown operation type: %q", r.Type)
	}
	if r.OrgID == "" {
		return fmt.Errorf("org_id is required")
	}
	if r.SpaceID == "" {
		return fmt.Errorf("space_id is required")
	}
	if r.Descriptor == "" {
		return fmt.Errorf("descriptor is required")
	}
	return nil
}
