package domain

// Подмножество облачной модели MTA: что должно существовать на платформе.
// Полная модель (маршруты, docker, env-провайдеры) строится из дескриптора
// отдельным слоем и сюда не входит.

// Application — приложение, которое должно существовать для модуля MTA.
type Application struct {
	// Name — имя приложения на платформе (с суффиксом цвета для blue-green).
	Name string `json:"name"`

	// ModuleName — имя модуля MTA, из которого построено приложение.
	ModuleName string `json:"module_name"`

	// Instances — целевое число инстансов.
	Instances int `json:"instances"`

	// Memory — лимит памяти, например "512M".
	Memory string `json:"memory,omitempty"`

	// Env — переменные окружения приложения.
	Env map[string]string `json:"env,omitempty"`

	// Attributes — атрибуты уровня модуля (start-timeout, upload-timeout и т.п.).
	// Участвуют в многоуровневом разрешении таймаутов шагов.
	Attributes map[string]any `json:"attributes,omitempty"`

	// Services — имена сервисов, к которым приложение биндится.
	Services []string `json:"services,omitempty"`

	// ShouldKeepExistingEnv — не затирать существующие env при update.
	ShouldKeepExistingEnv bool `json:"keep_existing_env,omitempty"`
}

// Service — сервис-инстанс, который должен существовать для ресурса MTA.
type Service struct {
	// Name — имя сервис-инстанса на платформе.
	Name string `json:"name"`

	// ResourceName — имя ресурса MTA, из которого построен сервис.
	ResourceName string `json:"resource_name"`

	// Label — offering сервиса.
	Label string `json:"label,omitempty"`

	// Plan — план сервиса.
	Plan string `json:"plan,omitempty"`

	// Parameters — произвольные параметры создания сервиса.
	Parameters map[string]any `json:"parameters,omitempty"`

	// Tags — пользовательские теги.
	Tags []string `json:"tags,omitempty"`

	// Optional — опциональный ресурс: сбой создания/обновления
	// деградирует до warning, деплой продолжается.
	Optional bool `json:"optional,omitempty"`

	// UserProvided — user-provided сервис (создаётся синхронно).
	UserProvided bool `json:"user_provided,omitempty"`
}

// ServiceKey — сервис-ключ, который должен существовать.
type ServiceKey struct {
	Name        string         `json:"name"`
	ServiceName string         `json:"service_name"`
	Parameters  map[string]any `json:"parameters,omitempty"`

	// Optional наследуется от ресурса-владельца.
	Optional bool `json:"optional,omitempty"`
}

// ServiceBroker — сервис-брокер, регистрируемый приложением-модулем.
type ServiceBroker struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// SpaceScoped — брокер регистрируется только в текущем space.
	SpaceScoped bool `json:"space_scoped,omitempty"`

	// Optional — сбой регистрации деградирует до warning.
	Optional bool `json:"optional,omitempty"`
}

// HookPhase — именованная точка жизненного цикла модуля,
// в которой могут выполняться пользовательские хуки.
type HookPhase string

const (
	HookBeforeStart       HookPhase = "before-start"
	HookAfterStart        HookPhase = "after-start"
	HookBeforeStop        HookPhase = "before-stop"
	HookAfterStop         HookPhase = "after-stop"
	HookBeforeUnmapRoutes HookPhase = "before-unmap-routes"
)

// Hook — пользовательский хук модуля.
//
// Хук выполняется синхронно, строго до или после основного шага,
// не более одного раза на модуль на фазу за операцию.
type Hook struct {
	// Name — уникальное в пределах модуля имя хука.
	Name string `json:"name"`

	// ModuleName — модуль-владелец.
	ModuleName string `json:"module_name"`

	// Type — тип хука. Поддерживается "task" (CF task в контейнере модуля).
	Type string `json:"type"`

	// Phases — фазы, на которых хук выполняется.
	Phases []HookPhase `json:"phases"`

	// Parameters — параметры хука (command, memory и т.п.).
	Parameters map[string]any `json:"parameters,omitempty"`
}

// ForPhase возвращает true, если хук привязан к фазе.
func (h *Hook) ForPhase(phase HookPhase) bool {
	for _, p := range h.Phases {
		if p == phase {
			return true
		}
	}
	return false
}
