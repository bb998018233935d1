package steps

import (
	"context"
	"fmt"

	"github.com/shaiso/Convoy/internal/cf"
	"github.com/shaiso/Convoy/internal/process"
)

// CreateServiceKeysStep создаёт сервис-ключи ресурсов MTA.
//
// Идемпотентность: 422 от платформы означает, что ключ уже создаётся
// (первая попытка прошла до падения движка). Шаг не считает это ошибкой:
// он находит существующий ключ и переключается на polling его last
// operation вместо повторного создания — дубликат ресурса не возникает.
type CreateServiceKeysStep struct{}

// NewCreateServiceKeysStep создаёт шаг создания сервис-ключей.
func NewCreateServiceKeysStep() *CreateServiceKeysStep {
	return &CreateServiceKeysStep{}
}

func (s *CreateServiceKeysStep) Name() string { return "createServiceKeys" }

func (s *CreateServiceKeysStep) ErrorMessage(*process.Context) string {
	return "Error creating service keys"
}

func (s *CreateServiceKeysStep) Execute(ctx context.Context, pc *process.Context) (StepPhase, error) {
	keys, err := process.Get(ctx, pc, VarServiceKeysToCreate)
	if err != nil {
		return PhaseRetry, err
	}

	client, err := pc.ControllerClient(ctx)
	if err != nil {
		return PhaseRetry, err
	}

	pending := make(map[string]bool)

	for i := range keys {
		key := &keys[i]
		ref := bindingRef(key.ServiceName, key.Name)

		err := client.CreateServiceKey(ctx, key)
		switch {
		case err == nil:
			pending[ref] = key.Optional

		case cf.IsUnprocessableEntity(err):
			// Операция уже в полёте: опрашиваем существующий ключ.
			existing, gerr := client.GetServiceKey(ctx, key.ServiceName, key.Name)
			if gerr == nil && existing != nil {
				pc.Logger().Info("service key creation already in flight, switching to polling",
					"service", key.ServiceName,
					"key", key.Name,
				)
				pending[ref] = key.Optional
				continue
			}
			if key.Optional {
				pc.Logger().Warn("skipping optional service key", "key", key.Name, "error", err)
				continue
			}
			return PhaseRetry, fmt.Errorf("create service key %q: %w", key.Name, err)

		case key.Optional:
			pc.Logger().Warn("skipping optional service key", "key", key.Name, "error", err)

		default:
			return PhaseRetry, fmt.Errorf("create service key %q: %w", key.Name, err)
		}
	}

	if err := process.Set(ctx, pc, VarBindingsToPoll, pending); err != nil {
		return PhaseRetry, err
	}

	if len(pending) == 0 {
		return PhaseDone, nil
	}
	return PhasePoll, nil
}

func (s *CreateServiceKeysStep) PollExecutions(*process.Context) []AsyncExecution {
	return []AsyncExecution{&ServiceKeysPoller{}}
}
