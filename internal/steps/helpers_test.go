package steps

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Convoy/internal/cf"
	"github.com/shaiso/Convoy/internal/domain"
	"github.com/shaiso/Convoy/internal/process"
)

// newTestContext создаёт контекст шага поверх MemStore и фейкового
// контроллера.
func newTestContext(t *testing.T, fake *cf.FakeClient) *process.Context {
	t.Helper()
	return process.NewContext(process.ContextConfig{
		InstanceID: uuid.New(),
		Target:     cf.Target{OrgID: "org-guid", SpaceID: "space-guid", CorrelationID: "corr"},
		Store:      process.NewMemStore(),
		Clients:    cf.NewCachingFactory(cf.FakeDialer(fake)),
	})
}

// memRecorder собирает progress-сообщения в память.
type memRecorder struct {
	types []domain.ProgressMessageType
	texts []string
}

func (r *memRecorder) Record(_ context.Context, t domain.ProgressMessageType, text string) error {
	r.types = append(r.types, t)
	r.texts = append(r.texts, text)
	return nil
}

// stubGuard — управляемый abort-флаг.
type stubGuard struct {
	aborted bool
}

func (g *stubGuard) AbortRequested(context.Context) (bool, error) {
	return g.aborted, nil
}

// syncStep — синхронный шаг с программируемым Execute.
type syncStep struct {
	name    string
	calls   int
	execute func(ctx context.Context, pc *process.Context) (StepPhase, error)
}

func (s *syncStep) Name() string { return s.name }

func (s *syncStep) Execute(ctx context.Context, pc *process.Context) (StepPhase, error) {
	s.calls++
	return s.execute(ctx, pc)
}

func (s *syncStep) ErrorMessage(*process.Context) string {
	return "test step failed"
}

// pollStep — шаг с programmable poll-единицами.
type pollStep struct {
	syncStep
	executions []AsyncExecution
}

func (s *pollStep) PollExecutions(*process.Context) []AsyncExecution {
	return s.executions
}

// timedStep — синхронный шаг с фиксированным бюджетом.
type timedStep struct {
	syncStep
	budget time.Duration
}

func (s *timedStep) Timeout(context.Context, *process.Context) (time.Duration, error) {
	return s.budget, nil
}

// fakePoll — programmable poll-единица.
type fakePoll struct {
	calls int
	fn    func(ctx context.Context, pc *process.Context) (AsyncState, error)
}

func (p *fakePoll) Execute(ctx context.Context, pc *process.Context) (AsyncState, error) {
	p.calls++
	return p.fn(ctx, pc)
}

func (p *fakePoll) PollErrorMessage(*process.Context) string {
	return "poll unit failed"
}

// pollOnce возвращает единицу, отдающую заданные состояния по очереди.
// Последнее состояние повторяется.
func pollStates(states ...AsyncState) *fakePoll {
	i := 0
	return &fakePoll{fn: func(context.Context, *process.Context) (AsyncState, error) {
		s := states[i]
		if i < len(states)-1 {
			i++
		}
		return s, nil
	}}
}

func mustSet[T any](t *testing.T, pc *process.Context, v process.Variable[T], value T) {
	t.Helper()
	if err := process.Set(context.Background(), pc, v, value); err != nil {
		t.Fatalf("set %s: %v", v.Name, err)
	}
}

func getVar[T any](t *testing.T, pc *process.Context, v process.Variable[T]) T {
	t.Helper()
	value, err := process.GetOrDefault(context.Background(), pc, v)
	if err != nil {
		t.Fatalf("get %s: %v", v.Name, err)
	}
	return value
}
