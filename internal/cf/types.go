package cf

import (
	"time"

	"github.com/shaiso/Convoy/internal/domain"
)

// App — приложение, как его видит платформа.
type App struct {
	GUID      string            `json:"guid"`
	Name      string            `json:"name"`
	State     string            `json:"state"` // STARTED / STOPPED
	Instances int               `json:"instances"`
	Env       map[string]string `json:"env,omitempty"`
}

// ServiceInstance — сервис-инстанс, как его видит платформа.
type ServiceInstance struct {
	GUID          string                   `json:"guid"`
	Name          string                   `json:"name"`
	Label         string                   `json:"label,omitempty"`
	Plan          string                   `json:"plan,omitempty"`
	LastOperation *domain.ServiceOperation `json:"last_operation,omitempty"`
}

// ServiceBinding — связка приложения с сервисом.
type ServiceBinding struct {
	GUID          string                   `json:"guid"`
	AppGUID       string                   `json:"app_guid"`
	ServiceName   string                   `json:"service_name"`
	LastOperation *domain.BindingOperation `json:"last_operation,omitempty"`
}

// ServiceKey — сервис-ключ.
type ServiceKey struct {
	GUID          string                   `json:"guid"`
	Name          string                   `json:"name"`
	ServiceName   string                   `json:"service_name"`
	Credentials   map[string]any           `json:"credentials,omitempty"`
	LastOperation *domain.BindingOperation `json:"last_operation,omitempty"`
}

// ServiceBroker — зарегистрированный сервис-брокер.
type ServiceBroker struct {
	GUID string `json:"guid"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Job — асинхронный job платформы.
type Job struct {
	GUID     string          `json:"guid"`
	State    domain.JobState `json:"state"`
	Warnings []string        `json:"warnings,omitempty"`
	Errors   []string        `json:"errors,omitempty"`
}

// Task — CF task: одноразовая команда в контейнере приложения.
type Task struct {
	GUID    string           `json:"guid"`
	Name    string           `json:"name"`
	Command string           `json:"command,omitempty"`
	State   domain.TaskState `json:"state"`
	Result  string           `json:"result,omitempty"`
}

// Package — пакет с артефактом приложения.
type Package struct {
	GUID  string `json:"guid"`
	State string `json:"state"` // AWAITING_UPLOAD / PROCESSING_UPLOAD / READY / FAILED
}

// Route — маршрут приложения.
type Route struct {
	Host   string `json:"host"`
	Domain string `json:"domain"`
	Path   string `json:"path,omitempty"`
}

// URL возвращает полный URL маршрута.
func (r Route) URL() string {
	u := r.Host + "." + r.Domain
	if r.Path != "" {
		u += r.Path
	}
	return u
}

// LogLine — одна строка лога приложения.
type LogLine struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
}

// UploadStatus — статус фоновой загрузки пакета.
type UploadStatus struct {
	// Done — загрузка байтов завершена (успешно или с ошибкой).
	Done bool

	// PackageGUID — GUID созданного пакета (когда Done и Err == nil).
	PackageGUID string

	// BytesSent — прогресс для диагностики.
	BytesSent int64

	// Err — ошибка загрузки.
	Err error
}
