package cf

import (
	"context"
	"io"

	"github.com/shaiso/Convoy/internal/domain"
)

// Client — семантический контракт Cloud Controller, потребляемый шагами.
//
// Все мутирующие вызовы идемпотентны с точки зрения шагов: перед повторным
// вызовом шаг сверяется с текущим состоянием платформы, чтобы не выпустить
// второй mutating call для того же ресурса в рамках одной попытки.
type Client interface {
	// --- Жизненный цикл приложений ---

	GetApp(ctx context.Context, name string) (*App, error)
	CreateApp(ctx context.Context, app *App) (*App, error)
	UpdateApp(ctx context.Context, app *App) (*App, error)
	DeleteApp(ctx context.Context, name string) error

	StartApp(ctx context.Context, name string) error
	StopApp(ctx context.Context, name string) error

	// ScaleApp меняет число инстансов приложения.
	ScaleApp(ctx context.Context, name string, instances int) error

	// GetAppInstances возвращает состояние каждого инстанса.
	GetAppInstances(ctx context.Context, name string) ([]domain.InstanceInfo, error)

	// GetAppRoutes возвращает маршруты приложения.
	GetAppRoutes(ctx context.Context, name string) ([]Route, error)

	// GetAppLogs возвращает строки лога приложения начиная с offset
	// и новый offset для следующего запроса.
	GetAppLogs(ctx context.Context, name string, offset int64) ([]LogLine, int64, error)

	// SetAppAutoscaling включает/выключает автоскейлер приложения.
	SetAppAutoscaling(ctx context.Context, name string, enabled bool) error

	// --- Пакеты ---

	// CreatePackage создаёт пакет под загрузку артефакта.
	CreatePackage(ctx context.Context, appName string) (*Package, error)

	// UploadPackage синхронно загружает содержимое архива в пакет.
	// Стриминг байтов вызывающая сторона выносит в фоновый пул.
	UploadPackage(ctx context.Context, packageGUID string, content io.Reader) (*Package, error)

	// GetPackage возвращает пакет по GUID.
	GetPackage(ctx context.Context, guid string) (*Package, error)

	// --- Tasks ---

	RunTask(ctx context.Context, appName string, task *Task) (*Task, error)
	GetTask(ctx context.Context, guid string) (*Task, error)

	// --- Жизненный цикл сервисов ---

	GetServiceInstance(ctx context.Context, name string) (*ServiceInstance, error)

	// CreateServiceInstance запускает создание сервиса. Возвращает job GUID;
	// пустой GUID означает синхронное завершение (user-provided сервисы).
	CreateServiceInstance(ctx context.Context, service *domain.Service) (string, error)
	UpdateServiceInstance(ctx context.Context, service *domain.Service) (string, error)
	DeleteServiceInstance(ctx context.Context, name string) (string, error)

	// GetServiceLastOperation возвращает последнюю операцию над сервисом.
	// nil без ошибки означает, что платформа не знает операции —
	// для неопциональных ресурсов это фатально.
	GetServiceLastOperation(ctx context.Context, name string) (*domain.ServiceOperation, error)

	// --- Bindings / keys ---

	GetServiceBinding(ctx context.Context, appName, serviceName string) (*ServiceBinding, error)
	CreateServiceBinding(ctx context.Context, appName, serviceName string, parameters map[string]any) error
	DeleteServiceBinding(ctx context.Context, appName, serviceName string) error

	GetServiceKey(ctx context.Context, serviceName, keyName string) (*ServiceKey, error)
	CreateServiceKey(ctx context.Context, key *domain.ServiceKey) error
	DeleteServiceKey(ctx context.Context, serviceName, keyName string) error

	// --- Брокеры ---

	GetServiceBroker(ctx context.Context, name string) (*ServiceBroker, error)

	// CreateServiceBroker/UpdateServiceBroker возвращают job GUID
	// для generic async-job polling.
	CreateServiceBroker(ctx context.Context, broker *domain.ServiceBroker) (string, error)
	UpdateServiceBroker(ctx context.Context, broker *domain.ServiceBroker) (string, error)
	DeleteServiceBroker(ctx context.Context, name string) (string, error)

	// --- Async jobs ---

	GetJob(ctx context.Context, guid string) (*Job, error)
}

// Target — адресат клиента: организация, space и correlation id операции.
type Target struct {
	OrgID         string
	SpaceID       string
	CorrelationID string
}

// ClientFactory строит клиентов, привязанных к Target.
//
// Реализация кэширует клиентов по (SpaceID, CorrelationID): повторные
// запросы в рамках одного процесса возвращают тот же клиент.
// Отдельный SpaceID в ForSpace поддерживает работу от имени другого
// space (обновление подписчиков).
type ClientFactory interface {
	// ForTarget возвращает клиента для org/space операции.
	ForTarget(ctx context.Context, target Target) (Client, error)

	// ForSpace возвращает клиента для произвольного space,
	// сохраняя correlation id.
	ForSpace(ctx context.Context, spaceGUID, correlationID string) (Client, error)
}
