package steps

import (
	"context"
	"fmt"

	"github.com/shaiso/Convoy/internal/cf"
	"github.com/shaiso/Convoy/internal/domain"
	"github.com/shaiso/Convoy/internal/process"
)

// VarServicesToUnbind — имена сервисов, от которых отвязывается приложение.
var VarServicesToUnbind = process.NewVariable[[]string]("servicesToUnbind")

// bindingRef — ключ pending-набора связок: "scope/name".
func bindingRef(scope, name string) string {
	return scope + "/" + name
}

// BindServicesStep привязывает приложение модуля к его сервисам.
//
// Та же идемпотентность, что у сервис-ключей: 422 при создании связки
// означает «операция уже идёт» — шаг переключается на polling
// существующей связки.
type BindServicesStep struct{}

// NewBindServicesStep создаёт шаг привязки сервисов.
func NewBindServicesStep() *BindServicesStep {
	return &BindServicesStep{}
}

func (s *BindServicesStep) Name() string { return "bindServices" }

func (s *BindServicesStep) ErrorMessage(pc *process.Context) string {
	return "Error binding services to application"
}

func (s *BindServicesStep) Execute(ctx context.Context, pc *process.Context) (StepPhase, error) {
	app, err := process.Get(ctx, pc, VarAppToProcess)
	if err != nil {
		return PhaseRetry, err
	}

	client, err := pc.ControllerClient(ctx)
	if err != nil {
		return PhaseRetry, err
	}

	toProcess, err := process.GetOrDefault(ctx, pc, VarServicesToProcess)
	if err != nil {
		return PhaseRetry, err
	}
	services := servicesByName(toProcess)
	pending := make(map[string]bool)

	for _, serviceName := range app.Services {
		optional := false
		if svc := services[serviceName]; svc != nil {
			optional = svc.Optional
		}
		ref := bindingRef(app.Name, serviceName)

		existing, err := client.GetServiceBinding(ctx, app.Name, serviceName)
		if err != nil && !cf.IsNotFound(err) {
			if optional {
				pc.Logger().Warn("skipping optional service binding", "service", serviceName, "error", err)
				continue
			}
			return PhaseRetry, fmt.Errorf("get binding of %q to %q: %w", app.Name, serviceName, err)
		}

		if existing != nil {
			if existing.LastOperation != nil && existing.LastOperation.State == domain.ServiceOperationInProgress {
				pending[ref] = optional
			}
			// Связка уже есть — повторный вызов не выпускается.
			continue
		}

		err = client.CreateServiceBinding(ctx, app.Name, serviceName, nil)
		switch {
		case err == nil:
			pending[ref] = optional

		case cf.IsUnprocessableEntity(err):
			pc.Logger().Info("binding creation already in flight, switching to polling",
				"app", app.Name,
				"service", serviceName,
			)
			pending[ref] = optional

		case optional:
			pc.Logger().Warn("skipping optional service binding", "service", serviceName, "error", err)

		default:
			return PhaseRetry, fmt.Errorf("bind %q to %q: %w", app.Name, serviceName, err)
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

func (s *BindServicesStep) PollExecutions(*process.Context) []AsyncExecution {
	return []AsyncExecution{&ServiceBindingsPoller{}}
}

// UnbindServicesStep отвязывает приложение от сервисов, не нужных
// новой версии MTA. 404 — идемпотентный успех.
type UnbindServicesStep struct{}

// NewUnbindServicesStep создаёт шаг отвязки сервисов.
func NewUnbindServicesStep() *UnbindServicesStep {
	return &UnbindServicesStep{}
}

func (s *UnbindServicesStep) Name() string { return "unbindServices" }

func (s *UnbindServicesStep) ErrorMessage(*process.Context) string {
	return "Error unbinding services from application"
}

func (s *UnbindServicesStep) Execute(ctx context.Context, pc *process.Context) (StepPhase, error) {
	app, err := process.Get(ctx, pc, VarAppToProcess)
	if err != nil {
		return PhaseRetry, err
	}
	names, err := process.Get(ctx, pc, VarServicesToUnbind)
	if err != nil {
		return PhaseRetry, err
	}

	client, err := pc.ControllerClient(ctx)
	if err != nil {
		return PhaseRetry, err
	}

	pending := make(map[string]bool)

	for _, serviceName := range names {
		ref := bindingRef(app.Name, serviceName)

		err := client.DeleteServiceBinding(ctx, app.Name, serviceName)
		switch {
		case err == nil:
			pending[ref] = false

		case cf.IsNotFound(err):
			pc.Logger().Debug("binding already deleted", "service", serviceName)

		case cf.IsUnprocessableEntity(err):
			// Удаление уже идёт — опрашиваем существующую связку.
			pc.Logger().Info("binding deletion already in flight, switching to polling",
				"app", app.Name,
				"service", serviceName,
			)
			pending[ref] = false

		default:
			return PhaseRetry, fmt.Errorf("unbind %q from %q: %w", app.Name, serviceName, err)
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

func (s *UnbindServicesStep) PollExecutions(*process.Context) []AsyncExecution {
	return []AsyncExecution{&ServiceBindingsPoller{}}
}
