package steps

import (
	"context"
	"fmt"

	"github.com/shaiso/Convoy/internal/cf"
	"github.com/shaiso/Convoy/internal/domain"
	"github.com/shaiso/Convoy/internal/process"
)

// CreateServicesStep создаёт или обновляет сервис-инстансы ресурсов MTA.
//
// Шаг выпускает не более одного мутирующего вызова на ресурс за попытку
// и сверяется с платформой перед повтором: существующий сервис
// обновляется, а не создаётся заново. Асинхронно запущенные операции
// попадают в pending-набор и дожидаются poller'а.
type CreateServicesStep struct{}

// NewCreateServicesStep создаёт шаг создания сервисов.
func NewCreateServicesStep() *CreateServicesStep {
	return &CreateServicesStep{}
}

func (s *CreateServicesStep) Name() string { return "createServices" }

func (s *CreateServicesStep) ErrorMessage(*process.Context) string {
	return "Error creating or updating services"
}

func (s *CreateServicesStep) Execute(ctx context.Context, pc *process.Context) (StepPhase, error) {
	services, err := process.Get(ctx, pc, VarServicesToProcess)
	if err != nil {
		return PhaseRetry, err
	}

	client, err := pc.ControllerClient(ctx)
	if err != nil {
		return PhaseRetry, err
	}

	triggered := make(map[string]domain.ServiceOperationType)
	var pending []string

	for i := range services {
		service := &services[i]
		opType, jobID, err := s.processService(ctx, pc, client, service)
		if err != nil {
			if service.Optional {
				pc.Logger().Warn("skipping optional service",
					"service", service.Name,
					"error", err,
				)
				continue
			}
			return PhaseRetry, err
		}
		if opType == "" {
			// Сервис уже в нужном состоянии — вызов не выпускался.
			continue
		}

		triggered[service.Name] = opType
		if jobID != "" {
			// Асинхронная операция: ресурс ждёт poller'а.
			pending = append(pending, service.Name)
		}
	}

	if err := process.Set(ctx, pc, VarTriggeredServiceOperations, triggered); err != nil {
		return PhaseRetry, err
	}
	if err := process.Set(ctx, pc, VarServicesToPoll, pending); err != nil {
		return PhaseRetry, err
	}

	// Все операции завершились синхронно — polling не нужен.
	if len(pending) == 0 {
		return PhaseDone, nil
	}
	return PhasePoll, nil
}

// processService создаёт или обновляет один сервис.
// Возвращает тип выпущенной операции ("" — вызова не было) и job id.
func (s *CreateServicesStep) processService(ctx context.Context, pc *process.Context, client cf.Client, service *domain.Service) (domain.ServiceOperationType, string, error) {
	existing, err := client.GetServiceInstance(ctx, service.Name)
	if err != nil && !cf.IsNotFound(err) {
		return "", "", fmt.Errorf("get service %q: %w", service.Name, err)
	}

	if existing == nil {
		jobID, err := client.CreateServiceInstance(ctx, service)
		if err != nil {
			return "", "", fmt.Errorf("create service %q: %w", service.Name, err)
		}
		pc.Logger().Info("creating service", "service", service.Name, "async", jobID != "")
		return domain.ServiceOperationCreate, jobID, nil
	}

	// Сервис существует: возможно, предыдущая попытка уже запустила
	// операцию — тогда не выпускаем дубликат, а переключаемся на
	// polling её last operation.
	if existing.LastOperation != nil && existing.LastOperation.State == domain.ServiceOperationInProgress {
		pc.Logger().Info("service operation already in progress, switching to polling",
			"service", service.Name,
			"operation", existing.LastOperation.Type,
		)
		return existing.LastOperation.Type, existing.GUID, nil
	}

	jobID, err := client.UpdateServiceInstance(ctx, service)
	if err != nil {
		return "", "", fmt.Errorf("update service %q: %w", service.Name, err)
	}
	pc.Logger().Info("updating service", "service", service.Name, "async", jobID != "")
	return domain.ServiceOperationUpdate, jobID, nil
}

func (s *CreateServicesStep) PollExecutions(*process.Context) []AsyncExecution {
	return []AsyncExecution{&ServiceOperationsPoller{}}
}
