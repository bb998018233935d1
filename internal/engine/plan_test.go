package engine

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/Convoy/internal/cf"
	"github.com/shaiso/Convoy/internal/descriptor"
	"github.com/shaiso/Convoy/internal/domain"
	"github.com/shaiso/Convoy/internal/process"
	"github.com/shaiso/Convoy/internal/steps"
)

func planDescriptor(t *testing.T) *descriptor.Descriptor {
	t.Helper()
	d, err := descriptor.Parse([]byte(`
_schema-version: "3.3"
ID: com.example.shop
version: 1.0.0
modules:
  - name: web
    type: application
    parameters:
      app-name: shop-web
      instances: 2
      memory: 512M
      path: stage/web.zip
      services: [shop-db, shop-cache]
      env:
        MODE: production
      task:
        name: migrate
        command: bin/migrate
  - name: broker-module
    type: application
    parameters:
      create-service-broker: true
      service-broker-name: shop-broker
      service-broker-url: https://broker.example.com
      service-broker-user: admin
      service-broker-password: secret
resources:
  - name: shop-db
    type: managed-service
    parameters:
      service: postgresql
      service-plan: small
      service-keys:
        - name: backup-key
  - name: shop-cache
    type: org.cloudfoundry.user-provided-service
    optional: true
`))
	if err != nil {
		t.Fatalf("parse descriptor: %v", err)
	}
	return d
}

func newPlanContext(t *testing.T) *process.Context {
	t.Helper()
	return process.NewContext(process.ContextConfig{
		InstanceID: uuid.New(),
		Target:     cf.Target{OrgID: "org", SpaceID: "space", CorrelationID: "corr"},
		Store:      process.NewMemStore(),
	})
}

func TestServicesFromDescriptor(t *testing.T) {
	services := servicesFromDescriptor(planDescriptor(t))
	if len(services) != 2 {
		t.Fatalf("expected 2 services, got %d", len(services))
	}

	db := services[0]
	if db.Name != "shop-db" || db.Label != "postgresql" || db.Plan != "small" {
		t.Errorf("unexpected managed service: %+v", db)
	}
	if db.UserProvided || db.Optional {
		t.Errorf("shop-db must be a mandatory managed service: %+v", db)
	}

	cache := services[1]
	if !cache.UserProvided || !cache.Optional {
		t.Errorf("shop-cache must be an optional user-provided service: %+v", cache)
	}
}

func TestServiceKeysFromDescriptor(t *testing.T) {
	keys := serviceKeysFromDescriptor(planDescriptor(t))
	if len(keys) != 1 {
		t.Fatalf("expected 1 key, got %d", len(keys))
	}
	if keys[0].Name != "backup-key" || keys[0].ServiceName != "shop-db" {
		t.Errorf("unexpected key: %+v", keys[0])
	}
}

func TestBrokersFromDescriptor(t *testing.T) {
	brokers := brokersFromDescriptor(planDescriptor(t))
	if len(brokers) != 1 {
		t.Fatalf("expected 1 broker, got %d", len(brokers))
	}
	b := brokers[0]
	if b.Name != "shop-broker" || b.URL != "https://broker.example.com" || b.Username != "admin" {
		t.Errorf("unexpected broker: %+v", b)
	}
}

func TestApplicationFromModule(t *testing.T) {
	d := planDescriptor(t)
	mod, _ := d.ModuleByName("web")

	app := applicationFromModule(mod, "")
	if app.Name != "shop-web" || app.ModuleName != "web" {
		t.Errorf("unexpected identity: %+v", app)
	}
	if app.Instances != 2 || app.Memory != "512M" {
		t.Errorf("unexpected sizing: %+v", app)
	}
	if len(app.Services) != 2 || app.Services[0] != "shop-db" {
		t.Errorf("unexpected services: %v", app.Services)
	}
	if app.Env["MODE"] != "production" {
		t.Errorf("unexpected env: %v", app.Env)
	}

	// Blue-green добавляет цвет к имени.
	green := applicationFromModule(mod, domain.ColorGreen)
	if green.Name != "shop-web-green" {
		t.Errorf("unexpected colored name: %s", green.Name)
	}
}

func TestTaskFromModule(t *testing.T) {
	d := planDescriptor(t)

	web, _ := d.ModuleByName("web")
	task := taskFromModule(web)
	if task == nil || task.Name != "migrate" || task.Command != "bin/migrate" {
		t.Fatalf("unexpected task: %+v", task)
	}

	broker, _ := d.ModuleByName("broker-module")
	if task := taskFromModule(broker); task != nil {
		t.Errorf("module without a task declaration: %+v", task)
	}
}

func TestSeedRootVariables_Deploy(t *testing.T) {
	pc := newPlanContext(t)
	op := &domain.Operation{ID: uuid.New(), Type: domain.ProcessTypeDeploy, MTAID: "com.example.shop"}

	if err := seedRootVariables(context.Background(), pc, op, planDescriptor(t)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	services, err := process.Get(context.Background(), pc, steps.VarServicesToProcess)
	if err != nil || len(services) != 2 {
		t.Fatalf("services to process: %v (%v)", services, err)
	}
	keys, err := process.Get(context.Background(), pc, steps.VarServiceKeysToCreate)
	if err != nil || len(keys) != 1 {
		t.Fatalf("service keys: %v (%v)", keys, err)
	}
	brokers, err := process.Get(context.Background(), pc, steps.VarBrokersToRegister)
	if err != nil || len(brokers) != 1 {
		t.Fatalf("brokers: %v (%v)", brokers, err)
	}
	toDelete, err := process.Get(context.Background(), pc, steps.VarServicesToDelete)
	if err != nil || len(toDelete) != 0 {
		t.Fatalf("nothing to delete on deploy: %v (%v)", toDelete, err)
	}
}

func TestSeedRootVariables_Undeploy(t *testing.T) {
	pc := newPlanContext(t)
	op := &domain.Operation{ID: uuid.New(), Type: domain.ProcessTypeUndeploy, MTAID: "com.example.shop"}

	if err := seedRootVariables(context.Background(), pc, op, planDescriptor(t)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	toDelete, err := process.Get(context.Background(), pc, steps.VarServicesToDelete)
	if err != nil || len(toDelete) != 2 {
		t.Fatalf("all services are deleted on undeploy: %v (%v)", toDelete, err)
	}
	brokers, err := process.Get(context.Background(), pc, steps.VarBrokersToDelete)
	if err != nil || len(brokers) != 1 || brokers[0] != "shop-broker" {
		t.Fatalf("brokers to delete: %v (%v)", brokers, err)
	}
}

func TestSeedModuleVariables_Deploy(t *testing.T) {
	pc := newPlanContext(t)
	d := planDescriptor(t)
	mod, _ := d.ModuleByName("web")
	op := &domain.Operation{ID: uuid.New(), Type: domain.ProcessTypeDeploy}

	if err := seedModuleVariables(context.Background(), pc, op, d, mod); err != nil {
		t.Fatalf("seed: %v", err)
	}

	app, err := process.Get(context.Background(), pc, steps.VarAppToProcess)
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	if app.Name != "shop-web" {
		t.Errorf("unexpected app: %+v", app)
	}
	if _, err := process.Get(context.Background(), pc, steps.VarExistingApp); err == nil {
		t.Error("plain deploy has no existing app counterpart")
	}

	task, err := process.Get(context.Background(), pc, steps.VarTaskToExecute)
	if err != nil || task.Name != "migrate" {
		t.Errorf("task: %+v (%v)", task, err)
	}
	path, err := process.Get(context.Background(), pc, steps.VarArchivePath)
	if err != nil || path != "stage/web.zip" {
		t.Errorf("archive path: %q (%v)", path, err)
	}

	// Дескриптор доступен под-процессу для таймаутов и хуков.
	if _, err := process.Get(context.Background(), pc, steps.VarDescriptor); err != nil {
		t.Errorf("descriptor must be seeded: %v", err)
	}
}

func TestSeedModuleVariables_BlueGreen(t *testing.T) {
	pc := newPlanContext(t)
	d := planDescriptor(t)
	mod, _ := d.ModuleByName("web")
	op := &domain.Operation{ID: uuid.New(), Type: domain.ProcessTypeBlueGreenDeploy}

	if err := seedModuleVariables(context.Background(), pc, op, d, mod); err != nil {
		t.Fatalf("seed: %v", err)
	}

	app, err := process.Get(context.Background(), pc, steps.VarAppToProcess)
	if err != nil || app.Name != "shop-web-green" {
		t.Fatalf("new app must be green: %+v (%v)", app, err)
	}
	existing, err := process.Get(context.Background(), pc, steps.VarExistingApp)
	if err != nil || existing.Name != "shop-web-blue" {
		t.Fatalf("existing app must be blue: %+v (%v)", existing, err)
	}
}

func TestSeedModuleVariables_Undeploy(t *testing.T) {
	pc := newPlanContext(t)
	d := planDescriptor(t)
	mod, _ := d.ModuleByName("web")
	op := &domain.Operation{ID: uuid.New(), Type: domain.ProcessTypeUndeploy}

	if err := seedModuleVariables(context.Background(), pc, op, d, mod); err != nil {
		t.Fatalf("seed: %v", err)
	}

	toUnbind, err := process.Get(context.Background(), pc, steps.VarServicesToUnbind)
	if err != nil || len(toUnbind) != 2 {
		t.Fatalf("services to unbind: %v (%v)", toUnbind, err)
	}
}
