package cf

import (
	"context"
	"fmt"
	"sync"
)

// Dialer строит клиента для конкретного Target. Реализация подключает
// настоящую клиентскую библиотеку контроллера; движку достаточно
// контракта Client.
type Dialer func(ctx context.Context, target Target) (Client, error)

// CachingFactory — ClientFactory с кэшем по (SpaceID, CorrelationID).
//
// Один процесс деплоя ходит в платформу много раз за много тиков;
// кэш гарантирует, что все обращения в рамках одной операции и одного
// space идут через один и тот же клиент.
type CachingFactory struct {
	dial Dialer

	mu      sync.Mutex
	clients map[cacheKey]Client
}

type cacheKey struct {
	spaceID       string
	correlationID string
}

// NewCachingFactory создаёт фабрику поверх Dialer.
func NewCachingFactory(dial Dialer) *CachingFactory {
	return &CachingFactory{
		dial:    dial,
		clients: make(map[cacheKey]Client),
	}
}

// ForTarget возвращает клиента для org/space операции.
func (f *CachingFactory) ForTarget(ctx context.Context, target Target) (Client, error) {
	return f.client(ctx, target)
}

// ForSpace возвращает клиента для произвольного space, сохраняя
// correlation id операции.
func (f *CachingFactory) ForSpace(ctx context.Context, spaceGUID, correlationID string) (Client, error) {
	return f.client(ctx, Target{SpaceID: spaceGUID, CorrelationID: correlationID})
}

func (f *CachingFactory) client(ctx context.Context, target Target) (Client, error) {
	if target.SpaceID == "" {
		return nil, fmt.Errorf("client factory: space id is required")
	}

	key := cacheKey{spaceID: target.SpaceID, correlationID: target.CorrelationID}

	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.clients[key]; ok {
		return c, nil
	}

	c, err := f.dial(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("dial controller for space %s: %w", target.SpaceID, err)
	}
	f.clients[key] = c
	return c, nil
}
