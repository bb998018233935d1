package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Convoy/internal/domain"
	"github.com/shaiso/Convoy/internal/process"
)

// ExecuteTaskStep запускает одноразовый task на приложении модуля
// и опрашивает его до терминального состояния.
type ExecuteTaskStep struct{}

// NewExecuteTaskStep создаёт шаг выполнения task'а.
func NewExecuteTaskStep() *ExecuteTaskStep {
	return &ExecuteTaskStep{}
}

func (s *ExecuteTaskStep) Name() string { return "executeTask" }

func (s *ExecuteTaskStep) ErrorMessage(*process.Context) string {
	return "Error executing task on application"
}

func (s *ExecuteTaskStep) Timeout(ctx context.Context, pc *process.Context) (time.Duration, error) {
	return ResolveTimeout(ctx, pc, TimeoutTask)
}

func (s *ExecuteTaskStep) Execute(ctx context.Context, pc *process.Context) (StepPhase, error) {
	app, err := process.Get(ctx, pc, VarAppToProcess)
	if err != nil {
		return PhaseRetry, err
	}
	task, err := process.Get(ctx, pc, VarTaskToExecute)
	if err != nil {
		return PhaseRetry, err
	}

	client, err := pc.ControllerClient(ctx)
	if err != nil {
		return PhaseRetry, err
	}

	started, err := client.RunTask(ctx, app.Name, task)
	if err != nil {
		return PhaseRetry, fmt.Errorf("run task %q on %q: %w", task.Name, app.Name, err)
	}
	if err := process.Set(ctx, pc, VarStartedTask, started); err != nil {
		return PhaseRetry, err
	}

	pc.Logger().Info("task started", "task", started.Name, "guid", started.GUID, "app", app.Name)
	return PhasePoll, nil
}

func (s *ExecuteTaskStep) PollExecutions(*process.Context) []AsyncExecution {
	return []AsyncExecution{&TaskPoller{}}
}

// TaskPoller опрашивает запущенный task до SUCCEEDED/FAILED,
// дочитывая логи приложения на каждом тике.
type TaskPoller struct{}

func (p *TaskPoller) PollErrorMessage(pc *process.Context) string {
	task, err := process.Get(context.Background(), pc, VarStartedTask)
	if err != nil {
		return "Error while polling task execution"
	}
	return fmt.Sprintf("Error while polling execution of task %q", task.Name)
}

func (p *TaskPoller) Execute(ctx context.Context, pc *process.Context) (AsyncState, error) {
	app, err := process.Get(ctx, pc, VarAppToProcess)
	if err != nil {
		return AsyncError, err
	}
	started, err := process.Get(ctx, pc, VarStartedTask)
	if err != nil {
		return AsyncError, err
	}

	client, err := pc.ControllerClient(ctx)
	if err != nil {
		return AsyncError, err
	}

	tailAppLogs(ctx, pc, client, app.Name)

	task, err := client.GetTask(ctx, started.GUID)
	if err != nil {
		return AsyncError, fmt.Errorf("get task %q: %w", started.GUID, err)
	}

	switch task.State {
	case domain.TaskStateSucceeded:
		pc.Logger().Info("task finished", "task", task.Name, "guid", task.GUID)
		return AsyncFinished, nil

	case domain.TaskStateFailed:
		if task.Result != "" {
			return AsyncError, fmt.Errorf("task %q failed: %s", task.Name, task.Result)
		}
		return AsyncError, fmt.Errorf("task %q failed", task.Name)

	default:
		pc.Logger().Debug("task still running", "task", task.Name, "state", task.State)
		return AsyncRunning, nil
	}
}
