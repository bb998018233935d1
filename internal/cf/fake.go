package cf

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Convoy/internal/domain"
)

// FakeClient — контроллер в памяти.
//
// Моделирует асинхронный протокол платформы: операции над сервисами
// и jobs остаются «в полёте» AsyncPolls опросов, затем переходят в
// терминальное состояние. Инстансы приложений после StartApp проходят
// STARTING и становятся RUNNING. Используется тестами и dry-run
// режимом бинарей.
type FakeClient struct {
	mu sync.Mutex

	// AsyncPolls — сколько опросов асинхронная операция остаётся
	// незавершённой. 0 — завершение на первом же опросе.
	AsyncPolls int

	apps        map[string]*App
	instances   map[string][]domain.InstanceInfo
	routes      map[string][]Route
	logs        map[string][]LogLine
	autoscaling map[string]bool

	services map[string]*ServiceInstance
	bindings map[string]*ServiceBinding
	keys     map[string]*ServiceKey
	brokers  map[string]*ServiceBroker

	packages map[string]*Package
	tasks    map[string]*Task
	jobs     map[string]*Job

	// pollsLeft — счётчики незавершённости по ключу ресурса.
	pollsLeft map[string]int

	// deleting — сервисы, которые исчезнут по завершении DELETE.
	deleting map[string]bool

	// failures — запрограммированные ошибки, срабатывают один раз.
	failures map[string]error
}

// NewFakeClient создаёт пустой фейковый контроллер.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		AsyncPolls:  1,
		apps:        make(map[string]*App),
		instances:   make(map[string][]domain.InstanceInfo),
		routes:      make(map[string][]Route),
		logs:        make(map[string][]LogLine),
		autoscaling: make(map[string]bool),
		services:    make(map[string]*ServiceInstance),
		bindings:    make(map[string]*ServiceBinding),
		keys:        make(map[string]*ServiceKey),
		brokers:     make(map[string]*ServiceBroker),
		packages:    make(map[string]*Package),
		tasks:       make(map[string]*Task),
		jobs:        make(map[string]*Job),
		pollsLeft:   make(map[string]int),
		deleting:    make(map[string]bool),
		failures:    make(map[string]error),
	}
}

// FakeDialer возвращает Dialer, отдающий один и тот же клиент
// для любого Target.
func FakeDialer(c *FakeClient) Dialer {
	return func(ctx context.Context, target Target) (Client, error) {
		return c, nil
	}
}

// FailNext программирует ошибку для следующего вызова операции op
// над ресурсом name. Ошибка срабатывает один раз.
func (f *FakeClient) FailNext(op, name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op+"/"+name] = err
}

// PutApp кладёт приложение в фейковый контроллер.
func (f *FakeClient) PutApp(app *App) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if app.GUID == "" {
		app.GUID = uuid.NewString()
	}
	f.apps[app.Name] = app
}

// PutService кладёт сервис-инстанс.
func (f *FakeClient) PutService(si *ServiceInstance) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if si.GUID == "" {
		si.GUID = uuid.NewString()
	}
	f.services[si.Name] = si
}

// SetInstances задаёт состояние инстансов приложения.
func (f *FakeClient) SetInstances(appName string, infos []domain.InstanceInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instances[appName] = infos
}

// AppendLogs добавляет строки в лог приложения.
func (f *FakeClient) AppendLogs(appName string, lines ...LogLine) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs[appName] = append(f.logs[appName], lines...)
}

// AutoscalingEnabled возвращает последнее выставленное состояние
// автоскейлера приложения.
func (f *FakeClient) AutoscalingEnabled(appName string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.autoscaling[appName]
}

func notFound(what, name string) error {
	return &ControllerError{
		Status: http.StatusNotFound,
		Title:  "CF-ResourceNotFound",
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

func (f *FakeClient) failure(op, name string) error {
	key := op + "/" + name
	if err, ok := f.failures[key]; ok {
		delete(f.failures, key)
		return err
	}
	return nil
}

// countdown возвращает true, когда отложенная операция по ключу
// исчерпала свои опросы и должна завершиться.
func (f *FakeClient) countdown(key string) bool {
	left, ok := f.pollsLeft[key]
	if !ok {
		return true
	}
	if left <= 0 {
		delete(f.pollsLeft, key)
		return true
	}
	f.pollsLeft[key] = left - 1
	return false
}

// --- Приложения ---

func (f *FakeClient) GetApp(ctx context.Context, name string) (*App, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("GetApp", name); err != nil {
		return nil, err
	}
	app, ok := f.apps[name]
	if !ok {
		return nil, notFound("app", name)
	}
	cp := *app
	return &cp, nil
}

func (f *FakeClient) CreateApp(ctx context.Context, app *App) (*App, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("CreateApp", app.Name); err != nil {
		return nil, err
	}
	cp := *app
	cp.GUID = uuid.NewString()
	if cp.State == "" {
		cp.State = "STOPPED"
	}
	f.apps[app.Name] = &cp
	out := cp
	return &out, nil
}

func (f *FakeClient) UpdateApp(ctx context.Context, app *App) (*App, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.apps[app.Name]
	if !ok {
		return nil, notFound("app", app.Name)
	}
	cp := *app
	cp.GUID = existing.GUID
	f.apps[app.Name] = &cp
	out := cp
	return &out, nil
}

func (f *FakeClient) DeleteApp(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.apps[name]; !ok {
		return notFound("app", name)
	}
	delete(f.apps, name)
	delete(f.instances, name)
	return nil
}

func (f *FakeClient) StartApp(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("StartApp", name); err != nil {
		return err
	}
	app, ok := f.apps[name]
	if !ok {
		return notFound("app", name)
	}
	app.State = "STARTED"

	// Инстансы стартуют в STARTING и станут RUNNING после AsyncPolls
	// опросов GetAppInstances.
	infos := make([]domain.InstanceInfo, app.Instances)
	for i := range infos {
		infos[i] = domain.InstanceInfo{Index: i, State: domain.InstanceStarting}
	}
	f.instances[name] = infos
	f.pollsLeft["instances/"+name] = f.AsyncPolls
	return nil
}

func (f *FakeClient) StopApp(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("StopApp", name); err != nil {
		return err
	}
	app, ok := f.apps[name]
	if !ok {
		return notFound("app", name)
	}
	app.State = "STOPPED"
	f.instances[name] = nil
	return nil
}

func (f *FakeClient) ScaleApp(ctx context.Context, name string, instances int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("ScaleApp", name); err != nil {
		return err
	}
	app, ok := f.apps[name]
	if !ok {
		return notFound("app", name)
	}
	app.Instances = instances

	infos := f.instances[name]
	for len(infos) < instances {
		infos = append(infos, domain.InstanceInfo{Index: len(infos), State: domain.InstanceRunning})
	}
	if len(infos) > instances {
		infos = infos[:instances]
	}
	f.instances[name] = infos
	return nil
}

func (f *FakeClient) GetAppInstances(ctx context.Context, name string) ([]domain.InstanceInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("GetAppInstances", name); err != nil {
		return nil, err
	}
	if _, ok := f.apps[name]; !ok {
		return nil, notFound("app", name)
	}

	infos := f.instances[name]
	if f.countdown("instances/" + name) {
		for i := range infos {
			if infos[i].State == domain.InstanceStarting {
				infos[i].State = domain.InstanceRunning
			}
		}
	}
	out := make([]domain.InstanceInfo, len(infos))
	copy(out, infos)
	return out, nil
}

func (f *FakeClient) GetAppRoutes(ctx context.Context, name string) ([]Route, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.apps[name]; !ok {
		return nil, notFound("app", name)
	}
	return f.routes[name], nil
}

func (f *FakeClient) GetAppLogs(ctx context.Context, name string, offset int64) ([]LogLine, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("GetAppLogs", name); err != nil {
		return nil, 0, err
	}
	lines := f.logs[name]
	if offset < 0 {
		offset = 0
	}
	if offset >= int64(len(lines)) {
		return nil, int64(len(lines)), nil
	}
	out := make([]LogLine, len(lines[offset:]))
	copy(out, lines[offset:])
	return out, int64(len(lines)), nil
}

func (f *FakeClient) SetAppAutoscaling(ctx context.Context, name string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("SetAppAutoscaling", name); err != nil {
		return err
	}
	if _, ok := f.apps[name]; !ok {
		return notFound("app", name)
	}
	f.autoscaling[name] = enabled
	return nil
}

// --- Пакеты ---

func (f *FakeClient) CreatePackage(ctx context.Context, appName string) (*Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("CreatePackage", appName); err != nil {
		return nil, err
	}
	if _, ok := f.apps[appName]; !ok {
		return nil, notFound("app", appName)
	}
	pkg := &Package{GUID: uuid.NewString(), State: "AWAITING_UPLOAD"}
	f.packages[pkg.GUID] = pkg
	return &Package{GUID: pkg.GUID, State: pkg.State}, nil
}

func (f *FakeClient) UploadPackage(ctx context.Context, packageGUID string, content io.Reader) (*Package, error) {
	if _, err := io.Copy(io.Discard, content); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("UploadPackage", packageGUID); err != nil {
		return nil, err
	}
	pkg, ok := f.packages[packageGUID]
	if !ok {
		return nil, notFound("package", packageGUID)
	}
	pkg.State = "READY"
	return &Package{GUID: pkg.GUID, State: pkg.State}, nil
}

func (f *FakeClient) GetPackage(ctx context.Context, guid string) (*Package, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pkg, ok := f.packages[guid]
	if !ok {
		return nil, notFound("package", guid)
	}
	return &Package{GUID: pkg.GUID, State: pkg.State}, nil
}

// --- Tasks ---

func (f *FakeClient) RunTask(ctx context.Context, appName string, task *Task) (*Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("RunTask", appName); err != nil {
		return nil, err
	}
	if _, ok := f.apps[appName]; !ok {
		return nil, notFound("app", appName)
	}
	cp := *task
	cp.GUID = uuid.NewString()
	cp.State = domain.TaskStateRunning
	f.tasks[cp.GUID] = &cp
	f.pollsLeft["task/"+cp.GUID] = f.AsyncPolls
	out := cp
	return &out, nil
}

func (f *FakeClient) GetTask(ctx context.Context, guid string) (*Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[guid]
	if !ok {
		return nil, notFound("task", guid)
	}
	if task.State == domain.TaskStateRunning && f.countdown("task/"+guid) {
		task.State = domain.TaskStateSucceeded
	}
	cp := *task
	return &cp, nil
}

// --- Сервисы ---

func (f *FakeClient) GetServiceInstance(ctx context.Context, name string) (*ServiceInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("GetServiceInstance", name); err != nil {
		return nil, err
	}
	si, ok := f.services[name]
	if !ok {
		return nil, notFound("service instance", name)
	}
	cp := *si
	return &cp, nil
}

func (f *FakeClient) CreateServiceInstance(ctx context.Context, service *domain.Service) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("CreateServiceInstance", service.Name); err != nil {
		return "", err
	}

	si := &ServiceInstance{
		GUID:  uuid.NewString(),
		Name:  service.Name,
		Label: service.Label,
		Plan:  service.Plan,
	}

	if service.UserProvided {
		f.services[service.Name] = si
		return "", nil
	}

	si.LastOperation = &domain.ServiceOperation{
		Type:  domain.ServiceOperationCreate,
		State: domain.ServiceOperationInProgress,
	}
	f.services[service.Name] = si
	f.pollsLeft["service/"+service.Name] = f.AsyncPolls
	return f.newJob(), nil
}

func (f *FakeClient) UpdateServiceInstance(ctx context.Context, service *domain.Service) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("UpdateServiceInstance", service.Name); err != nil {
		return "", err
	}
	si, ok := f.services[service.Name]
	if !ok {
		return "", notFound("service instance", service.Name)
	}
	si.Plan = service.Plan
	si.LastOperation = &domain.ServiceOperation{
		Type:  domain.ServiceOperationUpdate,
		State: domain.ServiceOperationInProgress,
	}
	f.pollsLeft["service/"+service.Name] = f.AsyncPolls
	return f.newJob(), nil
}

func (f *FakeClient) DeleteServiceInstance(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("DeleteServiceInstance", name); err != nil {
		return "", err
	}
	si, ok := f.services[name]
	if !ok {
		return "", notFound("service instance", name)
	}
	si.LastOperation = &domain.ServiceOperation{
		Type:  domain.ServiceOperationDelete,
		State: domain.ServiceOperationInProgress,
	}
	f.deleting[name] = true
	f.pollsLeft["service/"+name] = f.AsyncPolls
	return f.newJob(), nil
}

func (f *FakeClient) GetServiceLastOperation(ctx context.Context, name string) (*domain.ServiceOperation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("GetServiceLastOperation", name); err != nil {
		return nil, err
	}
	si, ok := f.services[name]
	if !ok {
		return nil, notFound("service instance", name)
	}
	if si.LastOperation == nil {
		return nil, nil
	}
	if si.LastOperation.State == domain.ServiceOperationInProgress && f.countdown("service/"+name) {
		si.LastOperation.State = domain.ServiceOperationSucceeded
		if f.deleting[name] {
			delete(f.deleting, name)
			delete(f.services, name)
			return nil, notFound("service instance", name)
		}
	}
	cp := *si.LastOperation
	return &cp, nil
}

// --- Bindings / keys ---

func bindingKey(appName, serviceName string) string {
	return appName + "/" + serviceName
}

func (f *FakeClient) GetServiceBinding(ctx context.Context, appName, serviceName string) (*ServiceBinding, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("GetServiceBinding", bindingKey(appName, serviceName)); err != nil {
		return nil, err
	}
	b, ok := f.bindings[bindingKey(appName, serviceName)]
	if !ok {
		return nil, notFound("service binding", bindingKey(appName, serviceName))
	}
	key := "binding/" + bindingKey(appName, serviceName)
	if b.LastOperation != nil && b.LastOperation.State == domain.ServiceOperationInProgress && f.countdown(key) {
		if b.LastOperation.Type == domain.ServiceOperationDelete {
			delete(f.bindings, bindingKey(appName, serviceName))
			return nil, notFound("service binding", bindingKey(appName, serviceName))
		}
		b.LastOperation.State = domain.ServiceOperationSucceeded
	}
	cp := *b
	return &cp, nil
}

func (f *FakeClient) CreateServiceBinding(ctx context.Context, appName, serviceName string, parameters map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("CreateServiceBinding", bindingKey(appName, serviceName)); err != nil {
		return err
	}
	app, ok := f.apps[appName]
	if !ok {
		return notFound("app", appName)
	}
	if _, ok := f.services[serviceName]; !ok {
		return notFound("service instance", serviceName)
	}
	f.bindings[bindingKey(appName, serviceName)] = &ServiceBinding{
		GUID:        uuid.NewString(),
		AppGUID:     app.GUID,
		ServiceName: serviceName,
		LastOperation: &domain.BindingOperation{
			Type:  domain.ServiceOperationCreate,
			State: domain.ServiceOperationInProgress,
		},
	}
	f.pollsLeft["binding/"+bindingKey(appName, serviceName)] = f.AsyncPolls
	return nil
}

func (f *FakeClient) DeleteServiceBinding(ctx context.Context, appName, serviceName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("DeleteServiceBinding", bindingKey(appName, serviceName)); err != nil {
		return err
	}
	b, ok := f.bindings[bindingKey(appName, serviceName)]
	if !ok {
		return notFound("service binding", bindingKey(appName, serviceName))
	}
	b.LastOperation = &domain.BindingOperation{
		Type:  domain.ServiceOperationDelete,
		State: domain.ServiceOperationInProgress,
	}
	f.pollsLeft["binding/"+bindingKey(appName, serviceName)] = f.AsyncPolls
	return nil
}

func (f *FakeClient) GetServiceKey(ctx context.Context, serviceName, keyName string) (*ServiceKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("GetServiceKey", bindingKey(serviceName, keyName)); err != nil {
		return nil, err
	}
	k, ok := f.keys[bindingKey(serviceName, keyName)]
	if !ok {
		return nil, notFound("service key", keyName)
	}
	key := "key/" + bindingKey(serviceName, keyName)
	if k.LastOperation != nil && k.LastOperation.State == domain.ServiceOperationInProgress && f.countdown(key) {
		k.LastOperation.State = domain.ServiceOperationSucceeded
	}
	cp := *k
	return &cp, nil
}

func (f *FakeClient) CreateServiceKey(ctx context.Context, key *domain.ServiceKey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("CreateServiceKey", bindingKey(key.ServiceName, key.Name)); err != nil {
		return err
	}
	if _, ok := f.services[key.ServiceName]; !ok {
		return notFound("service instance", key.ServiceName)
	}
	f.keys[bindingKey(key.ServiceName, key.Name)] = &ServiceKey{
		GUID:        uuid.NewString(),
		Name:        key.Name,
		ServiceName: key.ServiceName,
		Credentials: map[string]any{"uri": "fake://" + key.ServiceName},
		LastOperation: &domain.BindingOperation{
			Type:  domain.ServiceOperationCreate,
			State: domain.ServiceOperationInProgress,
		},
	}
	f.pollsLeft["key/"+bindingKey(key.ServiceName, key.Name)] = f.AsyncPolls
	return nil
}

func (f *FakeClient) DeleteServiceKey(ctx context.Context, serviceName, keyName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.keys[bindingKey(serviceName, keyName)]; !ok {
		return notFound("service key", keyName)
	}
	delete(f.keys, bindingKey(serviceName, keyName))
	return nil
}

// --- Брокеры ---

func (f *FakeClient) GetServiceBroker(ctx context.Context, name string) (*ServiceBroker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("GetServiceBroker", name); err != nil {
		return nil, err
	}
	b, ok := f.brokers[name]
	if !ok {
		return nil, notFound("service broker", name)
	}
	cp := *b
	return &cp, nil
}

func (f *FakeClient) CreateServiceBroker(ctx context.Context, broker *domain.ServiceBroker) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("CreateServiceBroker", broker.Name); err != nil {
		return "", err
	}
	f.brokers[broker.Name] = &ServiceBroker{
		GUID: uuid.NewString(),
		Name: broker.Name,
		URL:  broker.URL,
	}
	return f.newJob(), nil
}

func (f *FakeClient) UpdateServiceBroker(ctx context.Context, broker *domain.ServiceBroker) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("UpdateServiceBroker", broker.Name); err != nil {
		return "", err
	}
	b, ok := f.brokers[broker.Name]
	if !ok {
		return "", notFound("service broker", broker.Name)
	}
	b.URL = broker.URL
	return f.newJob(), nil
}

func (f *FakeClient) DeleteServiceBroker(ctx context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("DeleteServiceBroker", name); err != nil {
		return "", err
	}
	if _, ok := f.brokers[name]; !ok {
		return "", notFound("service broker", name)
	}
	delete(f.brokers, name)
	return f.newJob(), nil
}

// --- Jobs ---

func (f *FakeClient) newJob() string {
	job := &Job{GUID: uuid.NewString(), State: domain.JobProcessing}
	f.jobs[job.GUID] = job
	f.pollsLeft["job/"+job.GUID] = f.AsyncPolls
	return job.GUID
}

func (f *FakeClient) GetJob(ctx context.Context, guid string) (*Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("GetJob", guid); err != nil {
		return nil, err
	}
	job, ok := f.jobs[guid]
	if !ok {
		return nil, notFound("job", guid)
	}
	if !job.State.IsTerminal() && f.countdown("job/"+guid) {
		job.State = domain.JobComplete
	}
	cp := *job
	return &cp, nil
}
