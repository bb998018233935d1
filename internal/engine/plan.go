package engine

import (
	"context"
	"fmt"

	"github.com/shaiso/Convoy/internal/cf"
	"github.com/shaiso/Convoy/internal/descriptor"
	"github.com/shaiso/Convoy/internal/domain"
	"github.com/shaiso/Convoy/internal/process"
	"github.com/shaiso/Convoy/internal/steps"
)

// Построение облачной модели из дескриптора: какие сервисы, приложения
// и брокеры должны существовать на платформе для этой операции.

// userProvidedResourceType — тип user-provided ресурса в дескрипторе.
const userProvidedResourceType = "org.cloudfoundry.user-provided-service"

// servicesFromDescriptor строит сервисы из ресурсов дескриптора.
func servicesFromDescriptor(d *descriptor.Descriptor) []domain.Service {
	var services []domain.Service
	for i := range d.Resources {
		r := &d.Resources[i]

		svc := domain.Service{
			Name:         stringParam(r.Parameters, "service-name", r.Name),
			ResourceName: r.Name,
			Label:        stringParam(r.Parameters, "service", ""),
			Plan:         stringParam(r.Parameters, "service-plan", ""),
			Optional:     r.Optional,
			UserProvided: r.Type == userProvidedResourceType,
		}
		if params, ok := r.Parameters["config"].(map[string]any); ok {
			svc.Parameters = params
		}
		if tags, ok := r.Parameters["service-tags"].([]any); ok {
			for _, t := range tags {
				if s, ok := t.(string); ok {
					svc.Tags = append(svc.Tags, s)
				}
			}
		}
		services = append(services, svc)
	}
	return services
}

// serviceKeysFromDescriptor строит сервис-ключи из ресурсов.
func serviceKeysFromDescriptor(d *descriptor.Descriptor) []domain.ServiceKey {
	var keys []domain.ServiceKey
	for i := range d.Resources {
		r := &d.Resources[i]

		raw, ok := r.Parameters["service-keys"].([]any)
		if !ok {
			continue
		}
		serviceName := stringParam(r.Parameters, "service-name", r.Name)
		for _, item := range raw {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			key := domain.ServiceKey{
				Name:        stringParam(m, "name", ""),
				ServiceName: serviceName,
				Optional:    r.Optional,
			}
			if params, ok := m["config"].(map[string]any); ok {
				key.Parameters = params
			}
			if key.Name != "" {
				keys = append(keys, key)
			}
		}
	}
	return keys
}

// brokersFromDescriptor строит брокеры из модулей с create-service-broker.
func brokersFromDescriptor(d *descriptor.Descriptor) []domain.ServiceBroker {
	var brokers []domain.ServiceBroker
	for i := range d.Modules {
		m := &d.Modules[i]

		if enabled, _ := m.Parameters["create-service-broker"].(bool); !enabled {
			continue
		}
		brokers = append(brokers, domain.ServiceBroker{
			Name:        stringParam(m.Parameters, "service-broker-name", m.Name),
			URL:         stringParam(m.Parameters, "service-broker-url", ""),
			Username:    stringParam(m.Parameters, "service-broker-user", ""),
			Password:    stringParam(m.Parameters, "service-broker-password", ""),
			SpaceScoped: boolParam(m.Parameters, "service-broker-space-scoped"),
			Optional:    boolParam(m.Parameters, "optional"),
		})
	}
	return brokers
}

// applicationFromModule строит приложение модуля.
//
// color непустой для blue-green: имя приложения получает суффикс цвета.
func applicationFromModule(m *descriptor.Module, color domain.ApplicationColor) *domain.Application {
	name := stringParam(m.Parameters, "app-name", m.Name)
	if color != "" {
		name = name + "-" + string(color)
	}

	app := &domain.Application{
		Name:       name,
		ModuleName: m.Name,
		Instances:  intParam(m.Parameters, "instances", 1),
		Memory:     stringParam(m.Parameters, "memory", ""),
		Attributes: m.Parameters,
	}
	if services, ok := m.Parameters["services"].([]any); ok {
		for _, s := range services {
			if name, ok := s.(string); ok {
				app.Services = append(app.Services, name)
			}
		}
	}
	if env, ok := m.Parameters["env"].(map[string]any); ok {
		app.Env = make(map[string]string, len(env))
		for k, v := range env {
			app.Env[k] = fmt.Sprint(v)
		}
	}
	app.ShouldKeepExistingEnv = boolParam(m.Parameters, "keep-existing-env")
	return app
}

// taskFromModule строит одноразовый task модуля, если он объявлен.
func taskFromModule(m *descriptor.Module) *cf.Task {
	raw, ok := m.Parameters["task"].(map[string]any)
	if !ok {
		return nil
	}
	task := &cf.Task{
		Name:    stringParam(raw, "name", m.Name+"-task"),
		Command: stringParam(raw, "command", ""),
	}
	if task.Command == "" {
		return nil
	}
	return task
}

// seedRootVariables записывает переменные корневого процесса
// до первого тика.
func seedRootVariables(ctx context.Context, pc *process.Context, op *domain.Operation, d *descriptor.Descriptor) error {
	if err := process.Set(ctx, pc, steps.VarDescriptor, d); err != nil {
		return err
	}

	services := servicesFromDescriptor(d)
	serviceNames := make([]string, len(services))
	for i := range services {
		serviceNames[i] = services[i].Name
	}

	switch op.Type {
	case domain.ProcessTypeUndeploy:
		if err := process.Set(ctx, pc, steps.VarServicesToProcess, []domain.Service{}); err != nil {
			return err
		}
		if err := process.Set(ctx, pc, steps.VarServicesToDelete, serviceNames); err != nil {
			return err
		}
		brokers := brokersFromDescriptor(d)
		brokerNames := make([]string, len(brokers))
		for i := range brokers {
			brokerNames[i] = brokers[i].Name
		}
		if err := process.Set(ctx, pc, steps.VarBrokersToDelete, brokerNames); err != nil {
			return err
		}

	default:
		if err := process.Set(ctx, pc, steps.VarServicesToProcess, services); err != nil {
			return err
		}
		// Устаревшие сервисы предыдущей версии вычисляет отдельный
		// diff-слой; без него шаг удаления — no-op.
		if err := process.Set(ctx, pc, steps.VarServicesToDelete, []string{}); err != nil {
			return err
		}
		if err := process.Set(ctx, pc, steps.VarServiceKeysToCreate, serviceKeysFromDescriptor(d)); err != nil {
			return err
		}
		if err := process.Set(ctx, pc, steps.VarBrokersToRegister, brokersFromDescriptor(d)); err != nil {
			return err
		}
	}

	return nil
}

// seedModuleVariables записывает переменные дочернего под-процесса модуля.
func seedModuleVariables(ctx context.Context, pc *process.Context, op *domain.Operation, d *descriptor.Descriptor, m *descriptor.Module) error {
	// Дескриптор и сервисы нужны и дочернему процессу: таймауты, хуки
	// и опциональность связок разрешаются из его собственных переменных.
	if err := process.Set(ctx, pc, steps.VarDescriptor, d); err != nil {
		return err
	}
	if err := process.Set(ctx, pc, steps.VarServicesToProcess, servicesFromDescriptor(d)); err != nil {
		return err
	}

	var color domain.ApplicationColor
	if op.Type == domain.ProcessTypeBlueGreenDeploy {
		color = domain.ColorGreen
	}

	app := applicationFromModule(m, color)
	if err := process.Set(ctx, pc, steps.VarAppToProcess, app); err != nil {
		return err
	}

	if op.Type == domain.ProcessTypeBlueGreenDeploy {
		existing := applicationFromModule(m, color.Opposite())
		if err := process.Set(ctx, pc, steps.VarExistingApp, existing); err != nil {
			return err
		}
	}

	if op.Type == domain.ProcessTypeUndeploy {
		if err := process.Set(ctx, pc, steps.VarServicesToUnbind, app.Services); err != nil {
			return err
		}
	}

	if task := taskFromModule(m); task != nil {
		if err := process.Set(ctx, pc, steps.VarTaskToExecute, task); err != nil {
			return err
		}
	}

	if path := stringParam(m.Parameters, "path", ""); path != "" {
		if err := process.Set(ctx, pc, steps.VarArchivePath, path); err != nil {
			return err
		}
	}

	return nil
}

// --- Параметры дескриптора ---

func stringParam(params map[string]any, name, def string) string {
	if v, ok := params[name].(string); ok && v != "" {
		return v
	}
	return def
}

func intParam(params map[string]any, name string, def int) int {
	switch v := params[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

func boolParam(params map[string]any, name string) bool {
	v, _ := params[name].(bool)
	return v
}
