package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Convoy/internal/cf"
	"github.com/shaiso/Convoy/internal/domain"
	"github.com/shaiso/Convoy/internal/process"
)

// hookPollInterval — период опроса CF task хука при инлайн-выполнении.
const hookPollInterval = 2 * time.Second

// HookExecutor выполняет пользовательские хуки модулей.
//
// Хуки разрешаются из дескриптора по модулю и фазе и выполняются
// синхронно, инлайн, строго до или после основного шага. Каждый хук
// выполняется не более одного раза на модуль на фазу за операцию —
// трекинг в VarExecutedHooks.
type HookExecutor struct{}

// RunPhase выполняет все ещё не выполненные хуки модуля для фазы.
func (e *HookExecutor) RunPhase(ctx context.Context, pc *process.Context, moduleName string, phase domain.HookPhase) error {
	if phase == "" || moduleName == "" {
		return nil
	}

	desc, err := process.GetOrDefault(ctx, pc, VarDescriptor)
	if err != nil {
		return err
	}
	if desc == nil {
		return nil
	}

	hooks := desc.HooksForModule(moduleName, phase)
	if len(hooks) == 0 {
		return nil
	}

	executed, err := process.GetOrDefault(ctx, pc, VarExecutedHooks)
	if err != nil {
		return err
	}
	if executed == nil {
		executed = make(map[string]bool)
	}

	for i := range hooks {
		hook := &hooks[i]
		key := hookKey(moduleName, phase, hook.Name)
		if executed[key] {
			continue
		}

		pc.Logger().Info("executing hook",
			"hook", hook.Name,
			"module", moduleName,
			"phase", phase,
		)

		if err := e.runHook(ctx, pc, hook); err != nil {
			return fmt.Errorf("hook %q of module %q (phase %s): %w", hook.Name, moduleName, phase, err)
		}

		// Заменяем map целиком: составные переменные не мутируются на месте.
		updated := make(map[string]bool, len(executed)+1)
		for k, v := range executed {
			updated[k] = v
		}
		updated[key] = true
		if err := process.Set(ctx, pc, VarExecutedHooks, updated); err != nil {
			return err
		}
		executed = updated
	}

	return nil
}

func hookKey(moduleName string, phase domain.HookPhase, hookName string) string {
	return moduleName + "/" + string(phase) + "/" + hookName
}

// runHook выполняет один хук. Поддерживается тип "task": одноразовая
// команда в контейнере приложения модуля, опрашиваемая до терминального
// состояния.
func (e *HookExecutor) runHook(ctx context.Context, pc *process.Context, hook *domain.Hook) error {
	if hook.Type != "task" {
		return ContentError("unsupported hook type %q", hook.Type)
	}

	command, _ := hook.Parameters["command"].(string)
	if command == "" {
		return ContentError("hook has no command parameter")
	}

	app, err := process.GetOrDefault(ctx, pc, VarAppToProcess)
	if err != nil {
		return err
	}
	if app == nil {
		return ContentError("hook requires an application in context")
	}

	client, err := pc.ControllerClient(ctx)
	if err != nil {
		return err
	}

	task, err := client.RunTask(ctx, app.Name, &cf.Task{Name: hook.Name, Command: command})
	if err != nil {
		return fmt.Errorf("run hook task: %w", err)
	}

	return e.waitTask(ctx, client, task.GUID)
}

// waitTask опрашивает task до терминального состояния.
// Бюджет ограничивает ctx вызывающей стороны.
func (e *HookExecutor) waitTask(ctx context.Context, client cf.Client, guid string) error {
	ticker := time.NewTicker(hookPollInterval)
	defer ticker.Stop()

	for {
		task, err := client.GetTask(ctx, guid)
		if err != nil {
			return fmt.Errorf("get hook task: %w", err)
		}

		switch task.State {
		case domain.TaskStateSucceeded:
			return nil
		case domain.TaskStateFailed:
			return fmt.Errorf("hook task failed: %s", task.Result)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
