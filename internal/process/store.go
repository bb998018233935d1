package process

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Store — durable-хранилище переменных одного экземпляра процесса.
//
// Значения — сериализованные байты (JSON); типизацию обеспечивает
// Variable[T]. Реализации: repo.VariableRepo (Postgres) и MemStore (тесты).
type Store interface {
	// Get возвращает значение переменной и true, если она установлена.
	Get(ctx context.Context, name string) ([]byte, bool, error)

	// Set устанавливает значение переменной (write-through).
	Set(ctx context.Context, name string, value []byte) error

	// Remove удаляет переменную. Отсутствие переменной — не ошибка.
	Remove(ctx context.Context, name string) error
}

// HistoricStore — чтение переменных других (в т.ч. завершённых)
// экземпляров процесса: дочерних под-процессов параллельного деплоя
// модулей. Координация между sibling-процессами идёт через эти
// исторические запросы, а не через in-memory блокировки.
type HistoricStore interface {
	// GetHistoric возвращает значение переменной указанного экземпляра.
	GetHistoric(ctx context.Context, instanceID uuid.UUID, name string) ([]byte, bool, error)

	// ListChildInstances возвращает идентификаторы дочерних экземпляров.
	ListChildInstances(ctx context.Context, parentID uuid.UUID) ([]uuid.UUID, error)
}

// MemStore — in-memory реализация Store для тестов.
// Потокобезопасен.
type MemStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemStore создаёт пустой MemStore.
func NewMemStore() *MemStore {
	return &MemStore{values: make(map[string][]byte)}
}

// Get возвращает значение переменной.
func (s *MemStore) Get(_ context.Context, name string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok, nil
}

// Set устанавливает значение переменной.
func (s *MemStore) Set(_ context.Context, name string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	s.values[name] = cp
	return nil
}

// Remove удаляет переменную.
func (s *MemStore) Remove(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, name)
	return nil
}

// Snapshot возвращает копию всех значений (для проверок в тестах).
func (s *MemStore) Snapshot() map[string][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]byte, len(s.values))
	for k, v := range s.values {
		cp := make([]byte, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}
