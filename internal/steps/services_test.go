package steps

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/shaiso/Convoy/internal/cf"
	"github.com/shaiso/Convoy/internal/domain"
)

func TestCreateServicesStep_CreatesAndPollsManagedService(t *testing.T) {
	fake := cf.NewFakeClient()
	pc := newTestContext(t, fake)
	mustSet(t, pc, VarServicesToProcess, []domain.Service{
		{Name: "deploy-db", Label: "postgresql", Plan: "small"},
	})

	step := NewCreateServicesStep()
	phase, err := step.Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if phase != PhasePoll {
		t.Fatalf("expected POLL for async creation, got %s", phase)
	}

	pending := getVar(t, pc, VarServicesToPoll)
	if len(pending) != 1 || pending[0] != "deploy-db" {
		t.Fatalf("unexpected pending set: %v", pending)
	}
	triggered := getVar(t, pc, VarTriggeredServiceOperations)
	if triggered["deploy-db"] != domain.ServiceOperationCreate {
		t.Fatalf("unexpected triggered operations: %v", triggered)
	}

	poller := &ServiceOperationsPoller{}
	state, err := poller.Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if state != AsyncRunning {
		t.Fatalf("expected RUNNING while operation is in flight, got %s", state)
	}

	state, err = poller.Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if state != AsyncFinished {
		t.Fatalf("expected FINISHED, got %s", state)
	}
	if left := getVar(t, pc, VarServicesToPoll); len(left) != 0 {
		t.Errorf("pending set must be empty after completion, got %v", left)
	}
}

func TestCreateServicesStep_UserProvidedIsSynchronous(t *testing.T) {
	fake := cf.NewFakeClient()
	pc := newTestContext(t, fake)
	mustSet(t, pc, VarServicesToProcess, []domain.Service{
		{Name: "deploy-ups", UserProvided: true},
	})

	phase, err := NewCreateServicesStep().Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if phase != PhaseDone {
		t.Fatalf("user-provided service completes synchronously, got %s", phase)
	}

	triggered := getVar(t, pc, VarTriggeredServiceOperations)
	if triggered["deploy-ups"] != domain.ServiceOperationCreate {
		t.Errorf("unexpected triggered operations: %v", triggered)
	}
	if pending := getVar(t, pc, VarServicesToPoll); len(pending) != 0 {
		t.Errorf("no polling expected for synchronous creation, got %v", pending)
	}
}

func TestCreateServicesStep_InFlightOperationNotReissued(t *testing.T) {
	fake := cf.NewFakeClient()
	fake.PutService(&cf.ServiceInstance{
		Name: "deploy-db",
		Plan: "small",
		LastOperation: &domain.ServiceOperation{
			Type:  domain.ServiceOperationUpdate,
			State: domain.ServiceOperationInProgress,
		},
	})
	// Дубликат мутирующего вызова сработал бы на эту ошибку.
	fake.FailNext("UpdateServiceInstance", "deploy-db",
		&cf.ControllerError{Status: http.StatusBadGateway, Title: "CF-ServiceBrokerBadResponse"})

	pc := newTestContext(t, fake)
	mustSet(t, pc, VarServicesToProcess, []domain.Service{
		{Name: "deploy-db", Label: "postgresql", Plan: "small"},
	})

	phase, err := NewCreateServicesStep().Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("in-flight operation must not trigger a second call: %v", err)
	}
	if phase != PhasePoll {
		t.Fatalf("expected POLL, got %s", phase)
	}

	triggered := getVar(t, pc, VarTriggeredServiceOperations)
	if triggered["deploy-db"] != domain.ServiceOperationUpdate {
		t.Errorf("expected the in-flight UPDATE to be adopted, got %v", triggered)
	}
}

func TestCreateServicesStep_OptionalServiceFailureSkips(t *testing.T) {
	fake := cf.NewFakeClient()
	fake.FailNext("CreateServiceInstance", "deploy-metrics",
		&cf.ControllerError{Status: http.StatusBadGateway, Title: "CF-ServiceBrokerBadResponse"})

	pc := newTestContext(t, fake)
	mustSet(t, pc, VarServicesToProcess, []domain.Service{
		{Name: "deploy-db", Label: "postgresql", Plan: "small"},
		{Name: "deploy-metrics", Label: "metrics", Plan: "lite", Optional: true},
	})

	phase, err := NewCreateServicesStep().Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("optional failure must not fail the step: %v", err)
	}
	if phase != PhasePoll {
		t.Fatalf("expected POLL, got %s", phase)
	}

	pending := getVar(t, pc, VarServicesToPoll)
	if len(pending) != 1 || pending[0] != "deploy-db" {
		t.Fatalf("only the mandatory service should be pending, got %v", pending)
	}
}

func TestCreateServicesStep_MandatoryFailureRetries(t *testing.T) {
	fake := cf.NewFakeClient()
	fake.FailNext("CreateServiceInstance", "deploy-db",
		&cf.ControllerError{Status: http.StatusBadGateway, Title: "CF-ServiceBrokerBadResponse"})

	pc := newTestContext(t, fake)
	mustSet(t, pc, VarServicesToProcess, []domain.Service{
		{Name: "deploy-db", Label: "postgresql", Plan: "small"},
	})

	phase, err := NewCreateServicesStep().Execute(context.Background(), pc)
	if err == nil {
		t.Fatal("expected an error")
	}
	if phase != PhaseRetry {
		t.Fatalf("expected RETRY, got %s", phase)
	}
	if !cf.IsBadGateway(err) {
		t.Errorf("controller error must stay unwrappable, got %v", err)
	}
}

func TestServiceOperationsPoller_FailedCreateIsFatal(t *testing.T) {
	fake := cf.NewFakeClient()
	fake.PutService(&cf.ServiceInstance{
		Name: "deploy-db",
		LastOperation: &domain.ServiceOperation{
			Type:        domain.ServiceOperationCreate,
			State:       domain.ServiceOperationFailed,
			Description: "quota exceeded",
		},
	})

	pc := newTestContext(t, fake)
	mustSet(t, pc, VarServicesToProcess, []domain.Service{{Name: "deploy-db"}})
	mustSet(t, pc, VarServicesToPoll, []string{"deploy-db"})
	mustSet(t, pc, VarTriggeredServiceOperations,
		map[string]domain.ServiceOperationType{"deploy-db": domain.ServiceOperationCreate})

	state, err := (&ServiceOperationsPoller{}).Execute(context.Background(), pc)
	if state != AsyncError {
		t.Fatalf("expected ERROR, got %s", state)
	}
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Errorf("error should carry the platform description, got %v", err)
	}
}

func TestServiceOperationsPoller_FailedUpdateIsTolerated(t *testing.T) {
	fake := cf.NewFakeClient()
	fake.PutService(&cf.ServiceInstance{
		Name: "deploy-db",
		LastOperation: &domain.ServiceOperation{
			Type:        domain.ServiceOperationUpdate,
			State:       domain.ServiceOperationFailed,
			Description: "plan migration unsupported",
		},
	})

	pc := newTestContext(t, fake)
	mustSet(t, pc, VarServicesToProcess, []domain.Service{{Name: "deploy-db"}})
	mustSet(t, pc, VarServicesToPoll, []string{"deploy-db"})
	mustSet(t, pc, VarTriggeredServiceOperations,
		map[string]domain.ServiceOperationType{"deploy-db": domain.ServiceOperationUpdate})

	state, err := (&ServiceOperationsPoller{}).Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("failed update must not fail the deployment: %v", err)
	}
	if state != AsyncFinished {
		t.Fatalf("expected FINISHED, got %s", state)
	}
}

func TestServiceOperationsPoller_OptionalFailureTolerated(t *testing.T) {
	fake := cf.NewFakeClient()
	fake.PutService(&cf.ServiceInstance{
		Name: "deploy-metrics",
		LastOperation: &domain.ServiceOperation{
			Type:  domain.ServiceOperationCreate,
			State: domain.ServiceOperationFailed,
		},
	})

	pc := newTestContext(t, fake)
	mustSet(t, pc, VarServicesToProcess, []domain.Service{{Name: "deploy-metrics", Optional: true}})
	mustSet(t, pc, VarServicesToPoll, []string{"deploy-metrics"})
	mustSet(t, pc, VarTriggeredServiceOperations,
		map[string]domain.ServiceOperationType{"deploy-metrics": domain.ServiceOperationCreate})

	state, err := (&ServiceOperationsPoller{}).Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("optional failure must not fail the poll: %v", err)
	}
	if state != AsyncFinished {
		t.Fatalf("expected FINISHED, got %s", state)
	}
}

func TestServiceOperationsPoller_MissingLastOperationIsFatal(t *testing.T) {
	fake := cf.NewFakeClient()
	fake.PutService(&cf.ServiceInstance{Name: "deploy-db"})

	pc := newTestContext(t, fake)
	mustSet(t, pc, VarServicesToProcess, []domain.Service{{Name: "deploy-db"}})
	mustSet(t, pc, VarServicesToPoll, []string{"deploy-db"})

	state, err := (&ServiceOperationsPoller{}).Execute(context.Background(), pc)
	if state != AsyncError {
		t.Fatalf("unknown operation state must not be trusted, got %s", state)
	}
	if err == nil || !strings.Contains(err.Error(), "deploy-db") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestServiceOperationsPoller_RecomputesLostPendingSet(t *testing.T) {
	fake := cf.NewFakeClient()
	fake.PutService(&cf.ServiceInstance{
		Name: "deploy-db",
		LastOperation: &domain.ServiceOperation{
			Type:        domain.ServiceOperationCreate,
			State:       domain.ServiceOperationFailed,
			Description: "broker gone",
		},
	})

	// Pending-набор не сохранён — восстанавливается из карты
	// выпущенных операций.
	pc := newTestContext(t, fake)
	mustSet(t, pc, VarServicesToProcess, []domain.Service{{Name: "deploy-db"}})
	mustSet(t, pc, VarTriggeredServiceOperations,
		map[string]domain.ServiceOperationType{"deploy-db": domain.ServiceOperationCreate})

	state, err := (&ServiceOperationsPoller{}).Execute(context.Background(), pc)
	if state != AsyncError {
		t.Fatalf("recomputed pending set must still be polled, got %s", state)
	}
	if err == nil || !strings.Contains(err.Error(), "broker gone") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDeleteServicesStep_MissingServiceIsIdempotent(t *testing.T) {
	pc := newTestContext(t, cf.NewFakeClient())
	mustSet(t, pc, VarServicesToDelete, []string{"already-gone"})

	phase, err := NewDeleteServicesStep().Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if phase != PhaseDone {
		t.Fatalf("deleting a missing service is a no-op, got %s", phase)
	}
}

func TestDeleteServicesStep_PollsUntilServiceDisappears(t *testing.T) {
	fake := cf.NewFakeClient()
	fake.PutService(&cf.ServiceInstance{Name: "deploy-db"})

	pc := newTestContext(t, fake)
	mustSet(t, pc, VarServicesToDelete, []string{"deploy-db"})

	phase, err := NewDeleteServicesStep().Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if phase != PhasePoll {
		t.Fatalf("expected POLL, got %s", phase)
	}

	poller := &ServiceOperationsPoller{}
	state, err := poller.Execute(context.Background(), pc)
	if err != nil || state != AsyncRunning {
		t.Fatalf("expected RUNNING, got %s (%v)", state, err)
	}

	// Завершённое удаление — сервис отвечает 404.
	state, err = poller.Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if state != AsyncFinished {
		t.Fatalf("expected FINISHED, got %s", state)
	}
	if si, _ := fake.GetServiceInstance(context.Background(), "deploy-db"); si != nil {
		t.Error("service must be gone after the delete completes")
	}
}

func TestBindServicesStep_BindsAndPolls(t *testing.T) {
	fake := cf.NewFakeClient()
	fake.PutApp(&cf.App{Name: "web"})
	fake.PutService(&cf.ServiceInstance{Name: "deploy-db"})

	pc := newTestContext(t, fake)
	mustSet(t, pc, VarAppToProcess, &domain.Application{Name: "web", Services: []string{"deploy-db"}})

	phase, err := NewBindServicesStep().Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if phase != PhasePoll {
		t.Fatalf("expected POLL, got %s", phase)
	}

	pending := getVar(t, pc, VarBindingsToPoll)
	if _, ok := pending["web/deploy-db"]; !ok {
		t.Fatalf("unexpected pending set: %v", pending)
	}

	poller := &ServiceBindingsPoller{}
	state, err := poller.Execute(context.Background(), pc)
	if err != nil || state != AsyncRunning {
		t.Fatalf("expected RUNNING, got %s (%v)", state, err)
	}
	state, err = poller.Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if state != AsyncFinished {
		t.Fatalf("expected FINISHED, got %s", state)
	}
}

func TestBindServicesStep_InFlightBindingNotReissued(t *testing.T) {
	fake := cf.NewFakeClient()
	fake.PutApp(&cf.App{Name: "web"})
	fake.PutService(&cf.ServiceInstance{Name: "deploy-db"})
	if err := fake.CreateServiceBinding(context.Background(), "web", "deploy-db", nil); err != nil {
		t.Fatalf("seed binding: %v", err)
	}
	fake.FailNext("CreateServiceBinding", "web/deploy-db",
		&cf.ControllerError{Status: http.StatusUnprocessableEntity})

	pc := newTestContext(t, fake)
	mustSet(t, pc, VarAppToProcess, &domain.Application{Name: "web", Services: []string{"deploy-db"}})

	phase, err := NewBindServicesStep().Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("in-flight binding must not trigger a second call: %v", err)
	}
	if phase != PhasePoll {
		t.Fatalf("expected POLL, got %s", phase)
	}
}

func TestBindServicesStep_UnprocessableEntitySwitchesToPolling(t *testing.T) {
	fake := cf.NewFakeClient()
	fake.PutApp(&cf.App{Name: "web"})
	fake.PutService(&cf.ServiceInstance{Name: "deploy-db"})
	fake.FailNext("CreateServiceBinding", "web/deploy-db",
		&cf.ControllerError{Status: http.StatusUnprocessableEntity, Title: "CF-AsyncServiceBindingOperationInProgress"})

	pc := newTestContext(t, fake)
	mustSet(t, pc, VarAppToProcess, &domain.Application{Name: "web", Services: []string{"deploy-db"}})

	phase, err := NewBindServicesStep().Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("422 means the operation is already running: %v", err)
	}
	if phase != PhasePoll {
		t.Fatalf("expected POLL, got %s", phase)
	}
	pending := getVar(t, pc, VarBindingsToPoll)
	if _, ok := pending["web/deploy-db"]; !ok {
		t.Fatalf("binding must be polled after 422, got %v", pending)
	}
}

func TestUnbindServicesStep_MissingBindingIsIdempotent(t *testing.T) {
	fake := cf.NewFakeClient()
	fake.PutApp(&cf.App{Name: "web"})

	pc := newTestContext(t, fake)
	mustSet(t, pc, VarAppToProcess, &domain.Application{Name: "web"})
	mustSet(t, pc, VarServicesToUnbind, []string{"deploy-db"})

	phase, err := NewUnbindServicesStep().Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if phase != PhaseDone {
		t.Fatalf("missing binding is a no-op, got %s", phase)
	}
}

func TestUnbindServicesStep_DeletesAndPollsToGone(t *testing.T) {
	fake := cf.NewFakeClient()
	fake.PutApp(&cf.App{Name: "web"})
	fake.PutService(&cf.ServiceInstance{Name: "deploy-db"})
	if err := fake.CreateServiceBinding(context.Background(), "web", "deploy-db", nil); err != nil {
		t.Fatalf("seed binding: %v", err)
	}

	pc := newTestContext(t, fake)
	mustSet(t, pc, VarAppToProcess, &domain.Application{Name: "web"})
	mustSet(t, pc, VarServicesToUnbind, []string{"deploy-db"})

	phase, err := NewUnbindServicesStep().Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if phase != PhasePoll {
		t.Fatalf("expected POLL, got %s", phase)
	}

	poller := &ServiceBindingsPoller{}
	state, err := poller.Execute(context.Background(), pc)
	if err != nil || state != AsyncRunning {
		t.Fatalf("expected RUNNING, got %s (%v)", state, err)
	}
	state, err = poller.Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if state != AsyncFinished {
		t.Fatalf("expected FINISHED, got %s", state)
	}
}
