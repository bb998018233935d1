package steps

import (
	"context"
	"testing"

	"github.com/shaiso/Convoy/internal/cf"
	"github.com/shaiso/Convoy/internal/domain"
	"github.com/shaiso/Convoy/internal/process"
)

func TestExecuteTaskStep_RunsTaskAndPollsToCompletion(t *testing.T) {
	fake := cf.NewFakeClient()
	fake.PutApp(&cf.App{Name: "web"})

	pc := newTestContext(t, fake)
	mustSet(t, pc, VarAppToProcess, &domain.Application{Name: "web", ModuleName: "web"})
	mustSet(t, pc, VarTaskToExecute, &cf.Task{Name: "migrate", Command: "bin/migrate"})

	phase, err := NewExecuteTaskStep().Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if phase != PhasePoll {
		t.Fatalf("expected POLL, got %s", phase)
	}

	started, err := process.Get(context.Background(), pc, VarStartedTask)
	if err != nil {
		t.Fatalf("get started task: %v", err)
	}
	if started.GUID == "" {
		t.Fatal("started task must carry the platform GUID")
	}

	poller := &TaskPoller{}
	state, err := poller.Execute(context.Background(), pc)
	if err != nil || state != AsyncRunning {
		t.Fatalf("expected RUNNING while the task executes, got %s (%v)", state, err)
	}

	state, err = poller.Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if state != AsyncFinished {
		t.Fatalf("expected FINISHED, got %s", state)
	}
}

func TestExecuteTaskStep_MissingAppRetries(t *testing.T) {
	pc := newTestContext(t, cf.NewFakeClient())
	mustSet(t, pc, VarAppToProcess, &domain.Application{Name: "gone", ModuleName: "gone"})
	mustSet(t, pc, VarTaskToExecute, &cf.Task{Name: "migrate", Command: "bin/migrate"})

	phase, err := NewExecuteTaskStep().Execute(context.Background(), pc)
	if phase != PhaseRetry || err == nil {
		t.Fatalf("expected RETRY for a missing application, got %s (%v)", phase, err)
	}
}

func TestTaskPoller_UnknownTaskIsFatal(t *testing.T) {
	fake := cf.NewFakeClient()
	fake.PutApp(&cf.App{Name: "web"})

	// Задача неизвестна платформе: движок перезапущен, а task исчез.
	pc := newTestContext(t, fake)
	mustSet(t, pc, VarAppToProcess, &domain.Application{Name: "web"})
	mustSet(t, pc, VarStartedTask, &cf.Task{Name: "migrate", GUID: "lost-task-guid"})

	state, err := (&TaskPoller{}).Execute(context.Background(), pc)
	if state != AsyncError || err == nil {
		t.Fatalf("expected ERROR, got %s (%v)", state, err)
	}
	if !cf.IsNotFound(err) {
		t.Errorf("expected a 404 underneath, got %v", err)
	}
}
