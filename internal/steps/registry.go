package steps

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrStepNotFound — шаг не найден в реестре.
var ErrStepNotFound = errors.New("step not found")

// Registry — реестр шагов по имени.
//
// Графы процессов ссылаются на шаги по именам; движок разрешает их
// через реестр. Потокобезопасен.
type Registry struct {
	mu    sync.RWMutex
	steps map[string]Step
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{steps: make(map[string]Step)}
}

// DefaultRegistry создаёт реестр со всеми шагами деплоя.
func DefaultRegistry(uploads *UploadPool) *Registry {
	r := NewRegistry()

	r.Register(NewCreateServicesStep())
	r.Register(NewDeleteServicesStep())
	r.Register(NewCreateServiceKeysStep())
	r.Register(NewBindServicesStep())
	r.Register(NewUnbindServicesStep())
	r.Register(NewRegisterServiceBrokersStep())
	r.Register(NewDeleteServiceBrokersStep())
	r.Register(NewUploadAppStep(uploads))
	r.Register(NewStopAppStep())
	r.Register(NewStartAppStep())
	r.Register(NewScaleAppStep())
	r.Register(NewExecuteTaskStep())
	r.Register(NewIncrementalInstanceUpdateStep())

	return r
}

// Register регистрирует шаг. Существующий шаг с тем же именем
// перезаписывается.
func (r *Registry) Register(step Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[step.Name()] = step
}

// Get возвращает шаг по имени.
func (r *Registry) Get(name string) (Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	step, ok := r.steps[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrStepNotFound, name)
	}
	return step, nil
}

// Names возвращает отсортированный список имён шагов.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.steps))
	for n := range r.steps {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
