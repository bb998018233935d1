package steps

import (
	"context"
	"net/http"
	"testing"

	"github.com/shaiso/Convoy/internal/cf"
	"github.com/shaiso/Convoy/internal/domain"
)

func TestRegisterServiceBrokersStep_RegistersAndPollsJobs(t *testing.T) {
	fake := cf.NewFakeClient()
	pc := newTestContext(t, fake)
	mustSet(t, pc, VarBrokersToRegister, []domain.ServiceBroker{
		{Name: "audit-broker", URL: "https://audit.example.com", Username: "broker", Password: "secret"},
	})

	phase, err := NewRegisterServiceBrokersStep().Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if phase != PhasePoll {
		t.Fatalf("expected POLL, got %s", phase)
	}

	jobs := getVar(t, pc, VarBrokerJobs)
	if jobs["audit-broker"] == "" {
		t.Fatalf("expected a job for the broker, got %v", jobs)
	}

	poller := &BrokerJobsPoller{}
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

	if _, err := fake.GetServiceBroker(context.Background(), "audit-broker"); err != nil {
		t.Errorf("broker must exist after registration: %v", err)
	}
}

func TestRegisterServiceBrokersStep_ForbiddenTolerated(t *testing.T) {
	fake := cf.NewFakeClient()
	fake.FailNext("CreateServiceBroker", "audit-broker",
		&cf.ControllerError{Status: http.StatusForbidden, Title: "CF-NotAuthorized"})

	pc := newTestContext(t, fake)
	mustSet(t, pc, VarBrokersToRegister, []domain.ServiceBroker{
		{Name: "audit-broker", URL: "https://audit.example.com"},
	})
	mustSet(t, pc, VarNoFailOnMissingPermissions, true)

	phase, err := NewRegisterServiceBrokersStep().Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("403 must be tolerated with the flag set: %v", err)
	}
	if phase != PhaseDone {
		t.Fatalf("expected DONE, got %s", phase)
	}
}

func TestRegisterServiceBrokersStep_ForbiddenEscalatesByDefault(t *testing.T) {
	fake := cf.NewFakeClient()
	fake.FailNext("CreateServiceBroker", "audit-broker",
		&cf.ControllerError{Status: http.StatusForbidden, Title: "CF-NotAuthorized"})

	pc := newTestContext(t, fake)
	mustSet(t, pc, VarBrokersToRegister, []domain.ServiceBroker{
		{Name: "audit-broker", URL: "https://audit.example.com"},
	})

	phase, err := NewRegisterServiceBrokersStep().Execute(context.Background(), pc)
	if phase != PhaseRetry || err == nil {
		t.Fatalf("expected RETRY without the tolerance flag, got %s (%v)", phase, err)
	}
	if !cf.IsForbidden(err) {
		t.Errorf("expected a 403 underneath, got %v", err)
	}
}

func TestRegisterServiceBrokersStep_UpdatesExistingBroker(t *testing.T) {
	fake := cf.NewFakeClient()
	if _, err := fake.CreateServiceBroker(context.Background(),
		&domain.ServiceBroker{Name: "audit-broker", URL: "https://old.example.com"}); err != nil {
		t.Fatalf("seed broker: %v", err)
	}
	fake.FailNext("CreateServiceBroker", "audit-broker",
		&cf.ControllerError{Status: http.StatusConflict, Title: "CF-ServiceBrokerNameTaken"})

	pc := newTestContext(t, fake)
	mustSet(t, pc, VarBrokersToRegister, []domain.ServiceBroker{
		{Name: "audit-broker", URL: "https://new.example.com"},
	})

	phase, err := NewRegisterServiceBrokersStep().Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("existing broker must be updated, not re-created: %v", err)
	}
	if phase != PhasePoll {
		t.Fatalf("expected POLL, got %s", phase)
	}

	broker, err := fake.GetServiceBroker(context.Background(), "audit-broker")
	if err != nil {
		t.Fatalf("get broker: %v", err)
	}
	if broker.URL != "https://new.example.com" {
		t.Errorf("broker URL not updated: %s", broker.URL)
	}
}

func TestDeleteServiceBrokersStep_MissingBrokerIsIdempotent(t *testing.T) {
	pc := newTestContext(t, cf.NewFakeClient())
	mustSet(t, pc, VarBrokersToDelete, []string{"already-gone"})

	phase, err := NewDeleteServiceBrokersStep().Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if phase != PhaseDone {
		t.Fatalf("expected DONE, got %s", phase)
	}
}

func TestDeleteServiceBrokersStep_DeletesAndPollsJob(t *testing.T) {
	fake := cf.NewFakeClient()
	if _, err := fake.CreateServiceBroker(context.Background(),
		&domain.ServiceBroker{Name: "audit-broker", URL: "https://audit.example.com"}); err != nil {
		t.Fatalf("seed broker: %v", err)
	}

	pc := newTestContext(t, fake)
	mustSet(t, pc, VarBrokersToDelete, []string{"audit-broker"})

	phase, err := NewDeleteServiceBrokersStep().Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if phase != PhasePoll {
		t.Fatalf("expected POLL, got %s", phase)
	}

	poller := &BrokerJobsPoller{}
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

	if _, err := fake.GetServiceBroker(context.Background(), "audit-broker"); !cf.IsNotFound(err) {
		t.Errorf("broker must be gone, got %v", err)
	}
}
