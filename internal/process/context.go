package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/shaiso/Convoy/internal/cf"
)

// Ошибки контекста процесса.
var (
	// ErrVariableNotSet — обязательная переменная не установлена.
	ErrVariableNotSet = errors.New("required process variable is not set")

	// ErrNoClientFactory — контекст создан без фабрики клиентов.
	ErrNoClientFactory = errors.New("client factory is not configured")
)

// Context — контекст одного вызова шага.
//
// Единственный канал, через который шаг читает/пишет durable-состояние
// и получает клиента платформы. Создаётся движком на каждый вызов шага
// из записи экземпляра процесса; значения переживают suspend
// (чекпоинт движка) и видимы дочерним под-процессам через HistoricStore.
type Context struct {
	// InstanceID — идентификатор экземпляра процесса (или под-процесса).
	InstanceID uuid.UUID

	// ParentID — идентификатор родительского экземпляра.
	// Nil-UUID для корневого процесса.
	ParentID uuid.UUID

	// Target — org/space/correlation текущей операции.
	Target cf.Target

	store    Store
	historic HistoricStore
	codec    *SecureCodec
	clients  cf.ClientFactory
	logger   *slog.Logger

	// Клиенты кэшируются по space GUID на время вызова шага.
	clientMu    sync.Mutex
	clientCache map[string]cf.Client
}

// ContextConfig — зависимости контекста.
type ContextConfig struct {
	InstanceID uuid.UUID
	ParentID   uuid.UUID
	Target     cf.Target
	Store      Store
	Historic   HistoricStore  // опционально
	Codec      *SecureCodec   // опционально; без него Sensitive-переменные хранятся открыто
	Clients    cf.ClientFactory
	Logger     *slog.Logger
}

// NewContext создаёт контекст шага.
func NewContext(cfg ContextConfig) *Context {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{
		InstanceID:  cfg.InstanceID,
		ParentID:    cfg.ParentID,
		Target:      cfg.Target,
		store:       cfg.Store,
		historic:    cfg.Historic,
		codec:       cfg.Codec,
		clients:     cfg.Clients,
		logger:      logger.With("correlation_id", cfg.Target.CorrelationID),
		clientCache: make(map[string]cf.Client),
	}
}

// Logger возвращает логгер, привязанный к correlation id операции.
func (pc *Context) Logger() *slog.Logger {
	return pc.logger
}

// ControllerClient возвращает клиента платформы для org/space операции.
// Клиент строится лениво и кэшируется.
func (pc *Context) ControllerClient(ctx context.Context) (cf.Client, error) {
	return pc.clientForSpace(ctx, pc.Target.SpaceID, func(c context.Context) (cf.Client, error) {
		return pc.clients.ForTarget(c, pc.Target)
	})
}

// ControllerClientForSpace возвращает клиента для другого space
// (обновление подписчиков), сохраняя correlation id.
func (pc *Context) ControllerClientForSpace(ctx context.Context, spaceGUID string) (cf.Client, error) {
	return pc.clientForSpace(ctx, spaceGUID, func(c context.Context) (cf.Client, error) {
		return pc.clients.ForSpace(c, spaceGUID, pc.Target.CorrelationID)
	})
}

func (pc *Context) clientForSpace(ctx context.Context, spaceGUID string, build func(context.Context) (cf.Client, error)) (cf.Client, error) {
	if pc.clients == nil {
		return nil, ErrNoClientFactory
	}

	pc.clientMu.Lock()
	defer pc.clientMu.Unlock()

	if client, ok := pc.clientCache[spaceGUID]; ok {
		return client, nil
	}
	client, err := build(ctx)
	if err != nil {
		return nil, fmt.Errorf("build controller client for space %s: %w", spaceGUID, err)
	}
	pc.clientCache[spaceGUID] = client
	return client, nil
}

// rawGet читает байты переменной, пробуя legacy-имена.
func (pc *Context) rawGet(ctx context.Context, name string, legacy []string) ([]byte, bool, error) {
	data, ok, err := pc.store.Get(ctx, name)
	if err != nil || ok {
		return data, ok, err
	}
	for _, old := range legacy {
		data, ok, err = pc.store.Get(ctx, old)
		if err != nil || ok {
			return data, ok, err
		}
	}
	return nil, false, nil
}

// Get возвращает значение обязательной переменной.
// Отсутствие переменной — ошибка с именем переменной.
func Get[T any](ctx context.Context, pc *Context, v Variable[T]) (T, error) {
	var zero T

	data, ok, err := pc.rawGet(ctx, v.Name, v.LegacyNames)
	if err != nil {
		return zero, fmt.Errorf("get variable %q: %w", v.Name, err)
	}
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrVariableNotSet, v.Name)
	}

	if v.Sensitive && pc.codec != nil {
		data, err = pc.codec.Open(data)
		if err != nil {
			return zero, fmt.Errorf("variable %q: %w", v.Name, err)
		}
	}

	return unmarshalValue(v, data)
}

// GetOrDefault возвращает значение переменной или её Default, если
// переменная не установлена. Ошибка хранилища или битое значение
// пробрасываются: "прочитать не смогли" и "не записано" — разные
// исходы, и подменять первый вторым нельзя.
func GetOrDefault[T any](ctx context.Context, pc *Context, v Variable[T]) (T, error) {
	value, err := Get(ctx, pc, v)
	if errors.Is(err, ErrVariableNotSet) {
		return v.Default, nil
	}
	if err != nil {
		return v.Default, err
	}
	return value, nil
}

// Set устанавливает значение переменной с немедленной записью в хранилище.
// Составные значения всегда заменяются целиком, не мутируются на месте.
func Set[T any](ctx context.Context, pc *Context, v Variable[T], value T) error {
	data, err := marshalValue(v, value)
	if err != nil {
		return err
	}

	if v.Sensitive && pc.codec != nil {
		data, err = pc.codec.Seal(data)
		if err != nil {
			return fmt.Errorf("variable %q: %w", v.Name, err)
		}
	}

	if err := pc.store.Set(ctx, v.Name, data); err != nil {
		return fmt.Errorf("set variable %q: %w", v.Name, err)
	}
	return nil
}

// Remove удаляет переменную.
func Remove[T any](ctx context.Context, pc *Context, v Variable[T]) error {
	if err := pc.store.Remove(ctx, v.Name); err != nil {
		return fmt.Errorf("remove variable %q: %w", v.Name, err)
	}
	return nil
}

// GetHistoric читает переменную другого экземпляра процесса
// (дочернего под-процесса, в том числе завершённого).
func GetHistoric[T any](ctx context.Context, pc *Context, instanceID uuid.UUID, v Variable[T]) (T, bool, error) {
	var zero T
	if pc.historic == nil {
		return zero, false, nil
	}

	data, ok, err := pc.historic.GetHistoric(ctx, instanceID, v.Name)
	if err != nil {
		return zero, false, fmt.Errorf("get historic variable %q: %w", v.Name, err)
	}
	if !ok {
		return zero, false, nil
	}

	value, err := unmarshalValue(v, data)
	if err != nil {
		return zero, false, err
	}
	return value, true, nil
}

// ChildInstances возвращает дочерние экземпляры процесса.
func (pc *Context) ChildInstances(ctx context.Context) ([]uuid.UUID, error) {
	if pc.historic == nil {
		return nil, nil
	}
	return pc.historic.ListChildInstances(ctx, pc.InstanceID)
}
