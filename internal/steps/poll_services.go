package steps

import (
	"context"
	"fmt"

	"github.com/shaiso/Convoy/internal/cf"
	"github.com/shaiso/Convoy/internal/domain"
	"github.com/shaiso/Convoy/internal/process"
)

// ServiceOperationsPoller опрашивает last operations сервисов
// из pending-набора до его опустошения.
//
// Один тик: по каждому pending-сервису читается последняя операция
// платформы, терминальные состояния выбывают из набора, IN_PROGRESS
// остаются. Набор персистится заменой целиком каждый тик — после
// рестарта движка оставшаяся работа восстанавливается из переменной.
type ServiceOperationsPoller struct{}

func (p *ServiceOperationsPoller) PollErrorMessage(*process.Context) string {
	return "Error while polling service operations"
}

func (p *ServiceOperationsPoller) Execute(ctx context.Context, pc *process.Context) (AsyncState, error) {
	pending, err := process.GetOrDefault(ctx, pc, VarServicesToPoll)
	if err != nil {
		return AsyncError, err
	}
	if len(pending) == 0 {
		// Pending-набор мог потеряться (legacy-процесс): восстанавливаем
		// из карты выпущенных операций, пересечённой с известными данными.
		pending, err = p.recomputePending(ctx, pc)
		if err != nil {
			return AsyncError, err
		}
	}
	if len(pending) == 0 {
		return AsyncFinished, nil
	}

	client, err := pc.ControllerClient(ctx)
	if err != nil {
		return AsyncError, err
	}

	toProcess, err := process.GetOrDefault(ctx, pc, VarServicesToProcess)
	if err != nil {
		return AsyncError, err
	}
	services := servicesByName(toProcess)
	triggered, err := process.GetOrDefault(ctx, pc, VarTriggeredServiceOperations)
	if err != nil {
		return AsyncError, err
	}

	var remaining []string
	for _, name := range pending {
		service := services[name]
		optional := service != nil && service.Optional

		op, err := client.GetServiceLastOperation(ctx, name)
		if err != nil {
			// Исчезнувший после DELETE сервис — завершённое удаление.
			if cf.IsNotFound(err) && triggered[name] == domain.ServiceOperationDelete {
				pc.Logger().Debug("service deleted", "service", name)
				continue
			}
			if optional {
				pc.Logger().Warn("cannot poll optional service, dropping it",
					"service", name,
					"error", err,
				)
				continue
			}
			return AsyncError, fmt.Errorf("get last operation of service %q: %w", name, err)
		}

		if op == nil {
			// Платформа не знает операции: состояние неизвестно
			// и ему нельзя доверять.
			if optional {
				pc.Logger().Warn("optional service has no last operation, dropping it",
					"service", name,
				)
				continue
			}
			return AsyncError, fmt.Errorf("service %q has no last operation, its state cannot be trusted", name)
		}

		normalized := op.Normalize()
		switch normalized.State {
		case domain.ServiceOperationSucceeded:
			pc.Logger().Debug("service operation succeeded",
				"service", name,
				"operation", normalized.Type,
			)

		case domain.ServiceOperationFailed:
			if optional {
				pc.Logger().Warn("operation on optional service failed, continuing",
					"service", name,
					"operation", normalized.Type,
					"description", normalized.Description,
				)
				continue
			}
			// FAILED update не роняет весь деплой из-за некритичного
			// дрейфа параметров.
			if triggered[name] == domain.ServiceOperationUpdate {
				pc.Logger().Warn("service update failed, treating as non-critical",
					"service", name,
					"description", normalized.Description,
				)
				continue
			}
			return AsyncError, fmt.Errorf("operation %s on service %q failed: %s",
				normalized.Type, name, normalized.Description)

		default:
			// INITIAL / IN_PROGRESS — операция ещё идёт.
			remaining = append(remaining, name)
		}
	}

	if err := process.Set(ctx, pc, VarServicesToPoll, remaining); err != nil {
		return AsyncError, err
	}

	if len(remaining) == 0 {
		return AsyncFinished, nil
	}
	return AsyncRunning, nil
}

// recomputePending восстанавливает pending-набор из карты выпущенных
// операций, пересечённой с известными данными сервисов.
func (p *ServiceOperationsPoller) recomputePending(ctx context.Context, pc *process.Context) ([]string, error) {
	triggered, err := process.GetOrDefault(ctx, pc, VarTriggeredServiceOperations)
	if err != nil {
		return nil, err
	}
	if len(triggered) == 0 {
		return nil, nil
	}

	toProcess, err := process.GetOrDefault(ctx, pc, VarServicesToProcess)
	if err != nil {
		return nil, err
	}
	services := servicesByName(toProcess)
	var pending []string
	for name := range triggered {
		if _, known := services[name]; known {
			pending = append(pending, name)
		}
	}
	return pending, nil
}

func servicesByName(services []domain.Service) map[string]*domain.Service {
	byName := make(map[string]*domain.Service, len(services))
	for i := range services {
		byName[services[i].Name] = &services[i]
	}
	return byName
}
