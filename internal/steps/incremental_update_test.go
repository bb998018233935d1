package steps

import (
	"context"
	"testing"

	"github.com/shaiso/Convoy/internal/cf"
	"github.com/shaiso/Convoy/internal/domain"
	"github.com/shaiso/Convoy/internal/process"
)

// Полный прогон rolling-обновления: live-приложение с двумя инстансами
// уступает место idle-приложению по одному инстансу за шаг.
func TestIncrementalInstanceUpdate_FullRollingCycle(t *testing.T) {
	fake := cf.NewFakeClient()
	fake.PutApp(&cf.App{Name: "web-live", State: "STARTED", Instances: 2})
	fake.PutApp(&cf.App{Name: "web-idle", State: "STARTED", Instances: 0})
	fake.SetInstances("web-live", []domain.InstanceInfo{
		{Index: 0, State: domain.InstanceRunning},
		{Index: 1, State: domain.InstanceRunning},
	})

	pc := newTestContext(t, fake)
	mustSet(t, pc, VarAppToProcess, &domain.Application{Name: "web-idle", ModuleName: "web", Instances: 2})
	mustSet(t, pc, VarExistingApp, &domain.Application{Name: "web-live", ModuleName: "web"})

	step := NewIncrementalInstanceUpdateStep()
	phase, err := step.Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if phase != PhasePoll {
		t.Fatalf("expected POLL, got %s", phase)
	}
	if fake.AutoscalingEnabled("web-idle") {
		t.Fatal("autoscaling must be disabled for the duration of the update")
	}

	stage := stageVar(incrementalStepName)
	units := step.PollExecutions(pc)

	// Сдвиг №1: старое 2→1, новое 0→1.
	state, err := units[incrementalStageScale].Execute(context.Background(), pc)
	if err != nil || state != AsyncFinished {
		t.Fatalf("first shift: %s (%v)", state, err)
	}
	if got := getVar(t, pc, stage); got != incrementalStageOldIdle {
		t.Fatalf("expected hand-off to the old-app poller, stage is %d", got)
	}

	// Старое приложение стабилизировалось на одном инстансе.
	state, err = units[incrementalStageOldIdle].Execute(context.Background(), pc)
	if err != nil || state != AsyncFinished {
		t.Fatalf("old-app settle: %s (%v)", state, err)
	}

	// Новое приложение на одном инстансе — цель ещё не достигнута,
	// управление возвращается к сдвигу.
	state, err = units[incrementalStageNewIdle].Execute(context.Background(), pc)
	if err != nil || state != AsyncFinished {
		t.Fatalf("new-app check: %s (%v)", state, err)
	}
	if got := getVar(t, pc, stage); got != incrementalStageScale {
		t.Fatalf("expected hand-off back to the scale poller, stage is %d", got)
	}

	// Сдвиг №2: старое 1→0 (и останавливается), новое 1→2.
	state, err = units[incrementalStageScale].Execute(context.Background(), pc)
	if err != nil || state != AsyncFinished {
		t.Fatalf("second shift: %s (%v)", state, err)
	}
	if got := getVar(t, pc, stage); got != incrementalStageNewIdle {
		t.Fatalf("old app is stopped, expected a direct hand-off to the new-app poller, stage is %d", got)
	}
	oldApp, err := fake.GetApp(context.Background(), "web-live")
	if err != nil {
		t.Fatalf("get app: %v", err)
	}
	if oldApp.State != "STOPPED" || oldApp.Instances != 0 {
		t.Fatalf("old application must be stopped at zero instances, got %s/%d", oldApp.State, oldApp.Instances)
	}

	// Цель достигнута: автоскейлер включается обратно.
	state, err = units[incrementalStageNewIdle].Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("final check: %v", err)
	}
	if state != AsyncFinished {
		t.Fatalf("expected FINISHED, got %s", state)
	}
	if !fake.AutoscalingEnabled("web-idle") {
		t.Error("autoscaling must be re-enabled after the update")
	}

	update, err := process.Get(context.Background(), pc, VarIncrementalUpdate)
	if err != nil {
		t.Fatalf("get update snapshot: %v", err)
	}
	if !update.Done() || !update.OldStopped() {
		t.Errorf("unexpected final snapshot: %+v", update)
	}
}

func TestIncrementalNewInstancesPoller_CrashedInstanceFails(t *testing.T) {
	fake := cf.NewFakeClient()
	fake.PutApp(&cf.App{Name: "web-idle"})
	fake.SetInstances("web-idle", []domain.InstanceInfo{
		{Index: 0, State: domain.InstanceCrashed},
	})

	pc := newTestContext(t, fake)
	mustSet(t, pc, VarIncrementalUpdate, &domain.IncrementalInstanceUpdate{
		OldApplication:  "web-live",
		NewApplication:  "web-idle",
		NewInstances:    1,
		TargetInstances: 1,
	})

	state, err := (&IncrementalNewInstancesPoller{}).Execute(context.Background(), pc)
	if state != AsyncError || err == nil {
		t.Fatalf("crashed instance must fail the update, got %s (%v)", state, err)
	}
}

func TestIncrementalUpdate_SnapshotIsImmutable(t *testing.T) {
	u := domain.IncrementalInstanceUpdate{OldInstances: 2, NewInstances: 0, TargetInstances: 2}

	shifted := u.WithOldInstances(1).WithNewInstances(1)
	if u.OldInstances != 2 || u.NewInstances != 0 {
		t.Errorf("original snapshot mutated: %+v", u)
	}
	if shifted.OldInstances != 1 || shifted.NewInstances != 1 {
		t.Errorf("unexpected shifted snapshot: %+v", shifted)
	}
	if shifted.Done() || shifted.OldStopped() {
		t.Error("mid-way snapshot must be neither done nor stopped")
	}
}
