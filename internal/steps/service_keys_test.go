package steps

import (
	"context"
	"net/http"
	"testing"

	"github.com/shaiso/Convoy/internal/cf"
	"github.com/shaiso/Convoy/internal/domain"
)

func TestCreateServiceKeysStep_UnprocessableEntitySwitchesToPolling(t *testing.T) {
	fake := cf.NewFakeClient()
	// Ключ остаётся IN_PROGRESS ещё два опроса: первый съедает lookup
	// внутри самого шага.
	fake.AsyncPolls = 2
	fake.PutService(&cf.ServiceInstance{Name: "deploy-db"})
	if err := fake.CreateServiceKey(context.Background(),
		&domain.ServiceKey{Name: "deploy-db-key", ServiceName: "deploy-db"}); err != nil {
		t.Fatalf("seed key: %v", err)
	}
	fake.FailNext("CreateServiceKey", "deploy-db/deploy-db-key",
		&cf.ControllerError{Status: http.StatusUnprocessableEntity, Title: "CF-ServiceKeyOperationInProgress"})

	pc := newTestContext(t, fake)
	mustSet(t, pc, VarServiceKeysToCreate, []domain.ServiceKey{
		{Name: "deploy-db-key", ServiceName: "deploy-db"},
	})

	phase, err := NewCreateServiceKeysStep().Execute(context.Background(), pc)
	if err != nil {
		t.Fatalf("422 means key creation is already running: %v", err)
	}
	if phase != PhasePoll {
		t.Fatalf("expected POLL, got %s", phase)
	}
	pending := getVar(t, pc, VarBindingsToPoll)
	if optional, ok := pending["deploy-db/deploy-db-key"]; !ok || optional {
		t.Fatalf("non-optional key must be polled after 422, got %v", pending)
	}

	poller := &ServiceKeysPoller{}
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
