package steps

import (
	"context"
	"fmt"

	"github.com/shaiso/Convoy/internal/cf"
	"github.com/shaiso/Convoy/internal/domain"
	"github.com/shaiso/Convoy/internal/process"
)

// RegisterServiceBrokersStep создаёт или обновляет сервис-брокеры,
// объявленные модулями MTA.
//
// 403/502 от платформы допускаются (warn-and-continue) при выставленном
// флаге VarNoFailOnMissingPermissions, иначе эскалируются. 409 — всегда
// фатально. Запущенные jobs опрашиваются generic async-job poller'ом;
// сбой одного опционального брокера не мешает остальным (частичный
// успех в одном шаге).
type RegisterServiceBrokersStep struct{}

// NewRegisterServiceBrokersStep создаёт шаг регистрации брокеров.
func NewRegisterServiceBrokersStep() *RegisterServiceBrokersStep {
	return &RegisterServiceBrokersStep{}
}

func (s *RegisterServiceBrokersStep) Name() string { return "registerServiceBrokers" }

func (s *RegisterServiceBrokersStep) ErrorMessage(*process.Context) string {
	return "Error registering service brokers"
}

func (s *RegisterServiceBrokersStep) Execute(ctx context.Context, pc *process.Context) (StepPhase, error) {
	brokers, err := process.Get(ctx, pc, VarBrokersToRegister)
	if err != nil {
		return PhaseRetry, err
	}

	client, err := pc.ControllerClient(ctx)
	if err != nil {
		return PhaseRetry, err
	}

	tolerateMissingPermissions, err := process.GetOrDefault(ctx, pc, VarNoFailOnMissingPermissions)
	if err != nil {
		return PhaseRetry, err
	}
	jobs := make(map[string]string)

	for i := range brokers {
		broker := &brokers[i]

		jobID, err := s.createOrUpdate(ctx, client, broker)
		if err != nil {
			if (cf.IsForbidden(err) || cf.IsBadGateway(err)) && tolerateMissingPermissions {
				pc.Logger().Warn("cannot register service broker due to missing permissions, continuing",
					"broker", broker.Name,
					"error", err,
				)
				continue
			}
			if broker.Optional {
				pc.Logger().Warn("skipping optional service broker", "broker", broker.Name, "error", err)
				continue
			}
			return PhaseRetry, err
		}

		if jobID != "" {
			jobs[broker.Name] = jobID
		}
	}

	if err := process.Set(ctx, pc, VarBrokerJobs, jobs); err != nil {
		return PhaseRetry, err
	}

	if len(jobs) == 0 {
		return PhaseDone, nil
	}
	return PhasePoll, nil
}

func (s *RegisterServiceBrokersStep) createOrUpdate(ctx context.Context, client cf.Client, broker *domain.ServiceBroker) (string, error) {
	existing, err := client.GetServiceBroker(ctx, broker.Name)
	if err != nil && !cf.IsNotFound(err) {
		return "", fmt.Errorf("get service broker %q: %w", broker.Name, err)
	}

	if existing == nil {
		jobID, err := client.CreateServiceBroker(ctx, broker)
		if err != nil {
			return "", fmt.Errorf("create service broker %q: %w", broker.Name, err)
		}
		return jobID, nil
	}

	jobID, err := client.UpdateServiceBroker(ctx, broker)
	if err != nil {
		return "", fmt.Errorf("update service broker %q: %w", broker.Name, err)
	}
	return jobID, nil
}

func (s *RegisterServiceBrokersStep) PollExecutions(*process.Context) []AsyncExecution {
	return []AsyncExecution{&BrokerJobsPoller{}}
}

// DeleteServiceBrokersStep удаляет брокеры при undeploy.
// Уже удалённый брокер (404) — идемпотентный успех.
type DeleteServiceBrokersStep struct{}

// NewDeleteServiceBrokersStep создаёт шаг удаления брокеров.
func NewDeleteServiceBrokersStep() *DeleteServiceBrokersStep {
	return &DeleteServiceBrokersStep{}
}

func (s *DeleteServiceBrokersStep) Name() string { return "deleteServiceBrokers" }

func (s *DeleteServiceBrokersStep) ErrorMessage(*process.Context) string {
	return "Error deleting service brokers"
}

func (s *DeleteServiceBrokersStep) Execute(ctx context.Context, pc *process.Context) (StepPhase, error) {
	names, err := process.GetOrDefault(ctx, pc, VarBrokersToDelete)
	if err != nil {
		return PhaseRetry, err
	}
	if len(names) == 0 {
		return PhaseDone, nil
	}

	client, err := pc.ControllerClient(ctx)
	if err != nil {
		return PhaseRetry, err
	}

	tolerateMissingPermissions, err := process.GetOrDefault(ctx, pc, VarNoFailOnMissingPermissions)
	if err != nil {
		return PhaseRetry, err
	}
	jobs := make(map[string]string)

	for _, name := range names {
		jobID, err := client.DeleteServiceBroker(ctx, name)
		if err != nil {
			if cf.IsNotFound(err) {
				pc.Logger().Debug("service broker already deleted", "broker", name)
				continue
			}
			if (cf.IsForbidden(err) || cf.IsBadGateway(err)) && tolerateMissingPermissions {
				pc.Logger().Warn("cannot delete service broker due to missing permissions, continuing",
					"broker", name,
					"error", err,
				)
				continue
			}
			return PhaseRetry, fmt.Errorf("delete service broker %q: %w", name, err)
		}

		if jobID != "" {
			jobs[name] = jobID
		}
	}

	if err := process.Set(ctx, pc, VarBrokerJobs, jobs); err != nil {
		return PhaseRetry, err
	}

	if len(jobs) == 0 {
		return PhaseDone, nil
	}
	return PhasePoll, nil
}

func (s *DeleteServiceBrokersStep) PollExecutions(*process.Context) []AsyncExecution {
	return []AsyncExecution{&BrokerJobsPoller{}}
}
