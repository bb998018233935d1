package steps

import (
	"context"
	"testing"

	"github.com/shaiso/Convoy/internal/cf"
	"github.com/shaiso/Convoy/internal/descriptor"
	"github.com/shaiso/Convoy/internal/domain"
)

func hookDescriptor() *descriptor.Descriptor {
	return &descriptor.Descriptor{
		SchemaVersion: "3.3",
		ID:            "com.example.shop",
		Modules: []descriptor.Module{
			{
				Name: "web",
				Type: "application",
				Hooks: []descriptor.Hook{
					{
						Name:       "migrate-db",
						Type:       "task",
						Phases:     []string{string(domain.HookBeforeStart)},
						Parameters: map[string]any{"command": "bin/migrate"},
					},
				},
			},
		},
	}
}

func TestHookExecutor_RunsTaskHookOnce(t *testing.T) {
	fake := cf.NewFakeClient()
	fake.AsyncPolls = 0
	fake.PutApp(&cf.App{Name: "web"})

	pc := newTestContext(t, fake)
	mustSet(t, pc, VarDescriptor, hookDescriptor())
	mustSet(t, pc, VarAppToProcess, &domain.Application{Name: "web", ModuleName: "web"})

	exec := &HookExecutor{}
	if err := exec.RunPhase(context.Background(), pc, "web", domain.HookBeforeStart); err != nil {
		t.Fatalf("run phase: %v", err)
	}

	executed := getVar(t, pc, VarExecutedHooks)
	if !executed["web/before-start/migrate-db"] {
		t.Fatalf("hook not recorded as executed: %v", executed)
	}

	// Повторный вход фазы (ретрай шага) не выполняет хук снова.
	fake.FailNext("RunTask", "web", &cf.ControllerError{Status: 500})
	if err := exec.RunPhase(context.Background(), pc, "web", domain.HookBeforeStart); err != nil {
		t.Fatalf("re-entry must not re-run the hook: %v", err)
	}
}

func TestHookExecutor_NoHooksForPhaseIsNoop(t *testing.T) {
	fake := cf.NewFakeClient()
	pc := newTestContext(t, fake)
	mustSet(t, pc, VarDescriptor, hookDescriptor())
	mustSet(t, pc, VarAppToProcess, &domain.Application{Name: "web", ModuleName: "web"})

	if err := (&HookExecutor{}).RunPhase(context.Background(), pc, "web", domain.HookAfterStop); err != nil {
		t.Fatalf("phase without hooks: %v", err)
	}
	if executed := getVar(t, pc, VarExecutedHooks); len(executed) != 0 {
		t.Errorf("nothing should be recorded, got %v", executed)
	}
}

func TestHookExecutor_UnsupportedHookTypeIsContentError(t *testing.T) {
	desc := hookDescriptor()
	desc.Modules[0].Hooks[0].Type = "script"

	fake := cf.NewFakeClient()
	fake.PutApp(&cf.App{Name: "web"})

	pc := newTestContext(t, fake)
	mustSet(t, pc, VarDescriptor, desc)
	mustSet(t, pc, VarAppToProcess, &domain.Application{Name: "web", ModuleName: "web"})

	err := (&HookExecutor{}).RunPhase(context.Background(), pc, "web", domain.HookBeforeStart)
	if err == nil {
		t.Fatal("expected an error for an unsupported hook type")
	}
}

func TestHookExecutor_MissingCommandIsContentError(t *testing.T) {
	desc := hookDescriptor()
	desc.Modules[0].Hooks[0].Parameters = nil

	fake := cf.NewFakeClient()
	fake.PutApp(&cf.App{Name: "web"})

	pc := newTestContext(t, fake)
	mustSet(t, pc, VarDescriptor, desc)
	mustSet(t, pc, VarAppToProcess, &domain.Application{Name: "web", ModuleName: "web"})

	err := (&HookExecutor{}).RunPhase(context.Background(), pc, "web", domain.HookBeforeStart)
	if err == nil {
		t.Fatal("expected an error for a hook without a command")
	}
}
