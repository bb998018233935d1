package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Convoy/internal/cf"
	"github.com/shaiso/Convoy/internal/domain"
	"github.com/shaiso/Convoy/internal/process"
)

// StopAppStep останавливает приложение модуля. Синхронный шаг:
// уже остановленное приложение — идемпотентный успех.
type StopAppStep struct{}

// NewStopAppStep создаёт шаг остановки приложения.
func NewStopAppStep() *StopAppStep {
	return &StopAppStep{}
}

func (s *StopAppStep) Name() string { return "stopApp" }

func (s *StopAppStep) ErrorMessage(*process.Context) string {
	return "Error stopping application"
}

func (s *StopAppStep) HookPhases() (domain.HookPhase, domain.HookPhase) {
	return domain.HookBeforeStop, domain.HookAfterStop
}

func (s *StopAppStep) HookModule(ctx context.Context, pc *process.Context) (string, error) {
	app, err := process.Get(ctx, pc, VarAppToProcess)
	if err != nil {
		return "", err
	}
	return app.ModuleName, nil
}

func (s *StopAppStep) Timeout(ctx context.Context, pc *process.Context) (time.Duration, error) {
	return ResolveTimeout(ctx, pc, TimeoutStop)
}

func (s *StopAppStep) Execute(ctx context.Context, pc *process.Context) (StepPhase, error) {
	app, err := process.Get(ctx, pc, VarAppToProcess)
	if err != nil {
		return PhaseRetry, err
	}

	client, err := pc.ControllerClient(ctx)
	if err != nil {
		return PhaseRetry, err
	}

	existing, err := client.GetApp(ctx, app.Name)
	if err != nil {
		return PhaseRetry, fmt.Errorf("get application %q: %w", app.Name, err)
	}

	if existing.State != "STARTED" {
		pc.Logger().Debug("application already stopped", "app", app.Name)
		return PhaseDone, nil
	}

	if err := client.StopApp(ctx, app.Name); err != nil {
		return PhaseRetry, fmt.Errorf("stop application %q: %w", app.Name, err)
	}
	pc.Logger().Info("application stopped", "app", app.Name)
	return PhaseDone, nil
}

// StartAppStep запускает приложение модуля и опрашивает инстансы
// до состояния RUNNING у всех.
type StartAppStep struct{}

// NewStartAppStep создаёт шаг запуска приложения.
func NewStartAppStep() *StartAppStep {
	return &StartAppStep{}
}

func (s *StartAppStep) Name() string { return "startApp" }

func (s *StartAppStep) ErrorMessage(*process.Context) string {
	return "Error starting application"
}

func (s *StartAppStep) HookPhases() (domain.HookPhase, domain.HookPhase) {
	return domain.HookBeforeStart, domain.HookAfterStart
}

func (s *StartAppStep) HookModule(ctx context.Context, pc *process.Context) (string, error) {
	app, err := process.Get(ctx, pc, VarAppToProcess)
	if err != nil {
		return "", err
	}
	return app.ModuleName, nil
}

func (s *StartAppStep) Timeout(ctx context.Context, pc *process.Context) (time.Duration, error) {
	return ResolveTimeout(ctx, pc, TimeoutStart)
}

func (s *StartAppStep) Execute(ctx context.Context, pc *process.Context) (StepPhase, error) {
	app, err := process.Get(ctx, pc, VarAppToProcess)
	if err != nil {
		return PhaseRetry, err
	}

	client, err := pc.ControllerClient(ctx)
	if err != nil {
		return PhaseRetry, err
	}

	existing, err := client.GetApp(ctx, app.Name)
	if err != nil {
		return PhaseRetry, fmt.Errorf("get application %q: %w", app.Name, err)
	}

	// После падения движка между вызовом и записью фазы приложение
	// может быть уже STARTED — не выпускаем второй вызов.
	if existing.State != "STARTED" {
		if err := client.StartApp(ctx, app.Name); err != nil {
			return PhaseRetry, fmt.Errorf("start application %q: %w", app.Name, err)
		}
		pc.Logger().Info("starting application", "app", app.Name)
	}

	return PhasePoll, nil
}

func (s *StartAppStep) PollExecutions(*process.Context) []AsyncExecution {
	return []AsyncExecution{&AppInstancesPoller{}}
}

// ScaleAppStep приводит число инстансов приложения к целевому.
// Синхронный шаг: масштабирование подтверждается poller'ами стартовых шагов.
type ScaleAppStep struct{}

// NewScaleAppStep создаёт шаг масштабирования.
func NewScaleAppStep() *ScaleAppStep {
	return &ScaleAppStep{}
}

func (s *ScaleAppStep) Name() string { return "scaleApp" }

func (s *ScaleAppStep) ErrorMessage(*process.Context) string {
	return "Error scaling application"
}

func (s *ScaleAppStep) Execute(ctx context.Context, pc *process.Context) (StepPhase, error) {
	app, err := process.Get(ctx, pc, VarAppToProcess)
	if err != nil {
		return PhaseRetry, err
	}
	if app.Instances <= 0 {
		return PhaseRetry, ContentError("module %q declares %d instances", app.ModuleName, app.Instances)
	}

	client, err := pc.ControllerClient(ctx)
	if err != nil {
		return PhaseRetry, err
	}

	if err := client.ScaleApp(ctx, app.Name, app.Instances); err != nil {
		return PhaseRetry, fmt.Errorf("scale application %q to %d instances: %w", app.Name, app.Instances, err)
	}
	pc.Logger().Info("application scaled", "app", app.Name, "instances", app.Instances)
	return PhaseDone, nil
}

// AppInstancesPoller опрашивает инстансы приложения до RUNNING у всех.
//
// Терминальная модель: STARTED, когда все инстансы RUNNING; CRASHED —
// ошибка при выставленном VarFailOnCrash; DOWN — всегда ошибка;
// иначе продолжать опрос. Логи приложения дочитываются на каждом тике
// независимо от исхода — окно логов между тиками не теряется.
type AppInstancesPoller struct{}

func (p *AppInstancesPoller) PollErrorMessage(pc *process.Context) string {
	return "Error while waiting for application to start"
}

func (p *AppInstancesPoller) Execute(ctx context.Context, pc *process.Context) (AsyncState, error) {
	app, err := process.Get(ctx, pc, VarAppToProcess)
	if err != nil {
		return AsyncError, err
	}

	client, err := pc.ControllerClient(ctx)
	if err != nil {
		return AsyncError, err
	}

	// Side effect до любых терминальных решений.
	tailAppLogs(ctx, pc, client, app.Name)

	instances, err := client.GetAppInstances(ctx, app.Name)
	if err != nil {
		return AsyncError, fmt.Errorf("get instances of %q: %w", app.Name, err)
	}

	failOnCrash, err := process.GetOrDefault(ctx, pc, VarFailOnCrash)
	if err != nil {
		return AsyncError, err
	}

	running := 0
	for _, inst := range instances {
		switch inst.State {
		case domain.InstanceRunning:
			running++

		case domain.InstanceCrashed:
			if failOnCrash {
				return AsyncError, fmt.Errorf("instance %d of application %q has crashed", inst.Index, app.Name)
			}
			pc.Logger().Warn("instance crashed, continuing to poll",
				"app", app.Name,
				"index", inst.Index,
			)

		case domain.InstanceDown:
			return AsyncError, fmt.Errorf("instance %d of application %q is down", inst.Index, app.Name)
		}
	}

	if running < len(instances) || len(instances) == 0 {
		pc.Logger().Debug("waiting for application instances",
			"app", app.Name,
			"running", running,
			"total", len(instances),
		)
		return AsyncRunning, nil
	}

	logAppRoutes(ctx, pc, client, app.Name)
	return AsyncFinished, nil
}

// logAppRoutes пишет маршруты стартовавшего приложения в лог операции.
func logAppRoutes(ctx context.Context, pc *process.Context, client cf.Client, appName string) {
	routes, err := client.GetAppRoutes(ctx, appName)
	if err != nil {
		pc.Logger().Warn("cannot fetch application routes", "app", appName, "error", err)
		return
	}
	urls := make([]string, len(routes))
	for i, r := range routes {
		urls[i] = r.URL()
	}
	pc.Logger().Info("application started", "app", appName, "routes", urls)
}
