package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Convoy/internal/domain"
	"github.com/shaiso/Convoy/internal/process"
)

const incrementalStepName = "incrementalInstanceUpdate"

// Poll-единицы rolling-обновления. Переключение между ними идёт через
// явную перезапись stage самими poller'ами, а не автопродвижение.
const (
	incrementalStageScale   = 0 // сдвиг на один инстанс: старое -1, новое +1
	incrementalStageOldIdle = 1 // ожидание стабилизации старого после downscale
	incrementalStageNewIdle = 2 // ожидание RUNNING у инстансов нового
)

// IncrementalInstanceUpdateStep переключает трафик со старого
// приложения на новое по одному инстансу за раз.
//
// Автоскейлер нового приложения выключается на время обновления,
// чтобы он не оспаривал ручные изменения числа инстансов, и
// включается обратно после достижения целевого числа.
type IncrementalInstanceUpdateStep struct{}

// NewIncrementalInstanceUpdateStep создаёт шаг rolling-обновления.
func NewIncrementalInstanceUpdateStep() *IncrementalInstanceUpdateStep {
	return &IncrementalInstanceUpdateStep{}
}

func (s *IncrementalInstanceUpdateStep) Name() string { return incrementalStepName }

func (s *IncrementalInstanceUpdateStep) ErrorMessage(*process.Context) string {
	return "Error during incremental instance update"
}

func (s *IncrementalInstanceUpdateStep) Timeout(ctx context.Context, pc *process.Context) (time.Duration, error) {
	return ResolveTimeout(ctx, pc, TimeoutStart)
}

func (s *IncrementalInstanceUpdateStep) Execute(ctx context.Context, pc *process.Context) (StepPhase, error) {
	newApp, err := process.Get(ctx, pc, VarAppToProcess)
	if err != nil {
		return PhaseRetry, err
	}
	oldApp, err := process.Get(ctx, pc, VarExistingApp)
	if err != nil {
		return PhaseRetry, err
	}

	client, err := pc.ControllerClient(ctx)
	if err != nil {
		return PhaseRetry, err
	}

	oldLive, err := client.GetApp(ctx, oldApp.Name)
	if err != nil {
		return PhaseRetry, fmt.Errorf("get application %q: %w", oldApp.Name, err)
	}
	newLive, err := client.GetApp(ctx, newApp.Name)
	if err != nil {
		return PhaseRetry, fmt.Errorf("get application %q: %w", newApp.Name, err)
	}

	if err := client.SetAppAutoscaling(ctx, newApp.Name, false); err != nil {
		return PhaseRetry, fmt.Errorf("disable autoscaling of %q: %w", newApp.Name, err)
	}

	update := &domain.IncrementalInstanceUpdate{
		OldApplication:  oldApp.Name,
		OldInstances:    oldLive.Instances,
		NewApplication:  newApp.Name,
		NewInstances:    newLive.Instances,
		TargetInstances: newApp.Instances,
	}
	if err := process.Set(ctx, pc, VarIncrementalUpdate, update); err != nil {
		return PhaseRetry, err
	}

	pc.Logger().Info("incremental instance update started",
		"old", update.OldApplication, "oldInstances", update.OldInstances,
		"new", update.NewApplication, "newInstances", update.NewInstances,
		"target", update.TargetInstances,
	)
	return PhasePoll, nil
}

func (s *IncrementalInstanceUpdateStep) PollExecutions(*process.Context) []AsyncExecution {
	return []AsyncExecution{
		&IncrementalScalePoller{},
		&IncrementalOldInstancesPoller{},
		&IncrementalNewInstancesPoller{},
	}
}

// setIncrementalStage — явный hand-off между poll-единицами шага.
func setIncrementalStage(ctx context.Context, pc *process.Context, stage int) error {
	return process.Set(ctx, pc, stageVar(incrementalStepName), stage)
}

// IncrementalScalePoller выполняет один шаг сдвига: старое приложение
// вниз на один инстанс, новое вверх на один. Затем решает, куда
// передать управление: ждать стабилизации старого приложения или,
// если оно уже остановлено, проверять только новое.
type IncrementalScalePoller struct{}

func (p *IncrementalScalePoller) PollErrorMessage(*process.Context) string {
	return "Error while shifting application instances"
}

func (p *IncrementalScalePoller) Execute(ctx context.Context, pc *process.Context) (AsyncState, error) {
	update, err := process.Get(ctx, pc, VarIncrementalUpdate)
	if err != nil {
		return AsyncError, err
	}

	client, err := pc.ControllerClient(ctx)
	if err != nil {
		return AsyncError, err
	}

	next := *update
	if !update.OldStopped() {
		n := update.OldInstances - 1
		if err := client.ScaleApp(ctx, update.OldApplication, n); err != nil {
			return AsyncError, fmt.Errorf("scale down %q to %d: %w", update.OldApplication, n, err)
		}
		next = next.WithOldInstances(n)
		if n == 0 {
			if err := client.StopApp(ctx, update.OldApplication); err != nil {
				return AsyncError, fmt.Errorf("stop %q: %w", update.OldApplication, err)
			}
		}
	}
	if !update.Done() {
		n := update.NewInstances + 1
		if err := client.ScaleApp(ctx, update.NewApplication, n); err != nil {
			return AsyncError, fmt.Errorf("scale up %q to %d: %w", update.NewApplication, n, err)
		}
		next = next.WithNewInstances(n)
	}

	if err := process.Set(ctx, pc, VarIncrementalUpdate, &next); err != nil {
		return AsyncError, err
	}
	pc.Logger().Info("instances shifted",
		"old", next.OldApplication, "oldInstances", next.OldInstances,
		"new", next.NewApplication, "newInstances", next.NewInstances,
	)

	// Старое приложение ещё живо — дождаться его стабилизации
	// после downscale; иначе сразу к проверке нового.
	stage := incrementalStageNewIdle
	if !next.OldStopped() {
		stage = incrementalStageOldIdle
	}
	if err := setIncrementalStage(ctx, pc, stage); err != nil {
		return AsyncError, err
	}
	return AsyncFinished, nil
}

// IncrementalOldInstancesPoller ждёт, пока старое приложение
// стабилизируется на уменьшенном числе инстансов.
type IncrementalOldInstancesPoller struct{}

func (p *IncrementalOldInstancesPoller) PollErrorMessage(*process.Context) string {
	return "Error while waiting for the old application to settle"
}

func (p *IncrementalOldInstancesPoller) Execute(ctx context.Context, pc *process.Context) (AsyncState, error) {
	update, err := process.Get(ctx, pc, VarIncrementalUpdate)
	if err != nil {
		return AsyncError, err
	}

	client, err := pc.ControllerClient(ctx)
	if err != nil {
		return AsyncError, err
	}

	instances, err := client.GetAppInstances(ctx, update.OldApplication)
	if err != nil {
		return AsyncError, fmt.Errorf("get instances of %q: %w", update.OldApplication, err)
	}

	running := 0
	for _, inst := range instances {
		if inst.State == domain.InstanceRunning {
			running++
		}
	}
	if len(instances) > update.OldInstances || running < update.OldInstances {
		pc.Logger().Debug("old application settling",
			"app", update.OldApplication,
			"running", running,
			"want", update.OldInstances,
		)
		return AsyncRunning, nil
	}

	if err := setIncrementalStage(ctx, pc, incrementalStageNewIdle); err != nil {
		return AsyncError, err
	}
	return AsyncFinished, nil
}

// IncrementalNewInstancesPoller ждёт RUNNING у инстансов нового
// приложения. Когда цель достигнута, включает автоскейлер обратно и
// завершает шаг; иначе передаёт управление следующему шагу сдвига.
type IncrementalNewInstancesPoller struct{}

func (p *IncrementalNewInstancesPoller) PollErrorMessage(*process.Context) string {
	return "Error while waiting for new application instances"
}

func (p *IncrementalNewInstancesPoller) Execute(ctx context.Context, pc *process.Context) (AsyncState, error) {
	update, err := process.Get(ctx, pc, VarIncrementalUpdate)
	if err != nil {
		return AsyncError, err
	}

	client, err := pc.ControllerClient(ctx)
	if err != nil {
		return AsyncError, err
	}

	tailAppLogs(ctx, pc, client, update.NewApplication)

	instances, err := client.GetAppInstances(ctx, update.NewApplication)
	if err != nil {
		return AsyncError, fmt.Errorf("get instances of %q: %w", update.NewApplication, err)
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
				return AsyncError, fmt.Errorf("instance %d of application %q has crashed", inst.Index, update.NewApplication)
			}
		case domain.InstanceDown:
			return AsyncError, fmt.Errorf("instance %d of application %q is down", inst.Index, update.NewApplication)
		}
	}

	if running < update.NewInstances {
		pc.Logger().Debug("new application instances starting",
			"app", update.NewApplication,
			"running", running,
			"want", update.NewInstances,
		)
		return AsyncRunning, nil
	}

	if !update.Done() {
		if err := setIncrementalStage(ctx, pc, incrementalStageScale); err != nil {
			return AsyncError, err
		}
		return AsyncFinished, nil
	}

	if err := client.SetAppAutoscaling(ctx, update.NewApplication, true); err != nil {
		return AsyncError, fmt.Errorf("enable autoscaling of %q: %w", update.NewApplication, err)
	}
	pc.Logger().Info("incremental instance update finished",
		"app", update.NewApplication,
		"instances", update.NewInstances,
	)
	return AsyncFinished, nil
}
