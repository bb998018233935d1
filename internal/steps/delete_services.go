package steps

import (
	"context"
	"fmt"

	"github.com/shaiso/Convoy/internal/cf"
	"github.com/shaiso/Convoy/internal/domain"
	"github.com/shaiso/Convoy/internal/process"
)

// VarServicesToDelete — имена сервисов к удалению.
var VarServicesToDelete = process.NewVariable[[]string]("servicesToDelete")

// DeleteServicesStep удаляет сервис-инстансы, не нужные новой версии MTA.
//
// 404 при удалении — идемпотентный успех: сервис уже отсутствует.
type DeleteServicesStep struct{}

// NewDeleteServicesStep создаёт шаг удаления сервисов.
func NewDeleteServicesStep() *DeleteServicesStep {
	return &DeleteServicesStep{}
}

func (s *DeleteServicesStep) Name() string { return "deleteServices" }

func (s *DeleteServicesStep) ErrorMessage(*process.Context) string {
	return "Error deleting services"
}

func (s *DeleteServicesStep) Execute(ctx context.Context, pc *process.Context) (StepPhase, error) {
	names, err := process.Get(ctx, pc, VarServicesToDelete)
	if err != nil {
		return PhaseRetry, err
	}

	client, err := pc.ControllerClient(ctx)
	if err != nil {
		return PhaseRetry, err
	}

	triggered := make(map[string]domain.ServiceOperationType)
	var pending []string

	for _, name := range names {
		jobID, err := client.DeleteServiceInstance(ctx, name)
		if err != nil {
			if cf.IsNotFound(err) {
				pc.Logger().Debug("service already deleted", "service", name)
				continue
			}
			return PhaseRetry, fmt.Errorf("delete service %q: %w", name, err)
		}

		pc.Logger().Info("deleting service", "service", name, "async", jobID != "")
		triggered[name] = domain.ServiceOperationDelete
		if jobID != "" {
			pending = append(pending, name)
		}
	}

	if err := process.Set(ctx, pc, VarTriggeredServiceOperations, triggered); err != nil {
		return PhaseRetry, err
	}
	if err := process.Set(ctx, pc, VarServicesToPoll, pending); err != nil {
		return PhaseRetry, err
	}

	if len(pending) == 0 {
		return PhaseDone, nil
	}
	return PhasePoll, nil
}

func (s *DeleteServicesStep) PollExecutions(*process.Context) []AsyncExecution {
	return []AsyncExecution{&ServiceOperationsPoller{}}
}
