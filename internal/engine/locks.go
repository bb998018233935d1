package engine

import (
	"sync"

	"github.com/google/uuid"
)

// instanceLocks сериализует тики по экземплярам процессов.
//
// Тик одного экземпляра может прийти двумя путями одновременно:
// событийно из MQ и из polling fallback. Без взаимного исключения оба
// пути выполнили бы один и тот же шаг параллельно — две мутирующие
// операции к платформе за один тик. Второй тик ждёт первого и
// перечитывает состояние экземпляра уже после его завершения.
type instanceLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*instanceLock
}

type instanceLock struct {
	sync.Mutex
	refs int
}

func newInstanceLocks() *instanceLocks {
	return &instanceLocks{locks: make(map[uuid.UUID]*instanceLock)}
}

// Acquire блокирует экземпляр и возвращает функцию освобождения.
// Записи без ожидающих удаляются из карты при освобождении.
func (l *instanceLocks) Acquire(id uuid.UUID) func() {
	l.mu.Lock()
	lock, ok := l.locks[id]
	if !ok {
		lock = &instanceLock{}
		l.locks[id] = lock
	}
	lock.refs++
	l.mu.Unlock()

	lock.Lock()
	return func() {
		lock.Unlock()

		l.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
