// Package descriptor содержит подмножество модели дескриптора деплоя MTA,
// нужное движку шагов: глобальные параметры, параметры и хуки модулей,
// опциональность ресурсов, версию схемы.
//
// Полный парсер дескриптора и построение облачной модели — внешние
// коллабораторы; здесь только то, от чего зависят таймауты и хуки.
package descriptor

import (
	"errors"
	"fmt"

	"github.com/shaiso/Convoy/internal/domain"
	"gopkg.in/yaml.v3"
)

// Ошибки разбора дескриптора.
var (
	// ErrMissingID — в дескрипторе нет ID.
	ErrMissingID = errors.New("deployment descriptor has no ID")

	// ErrUnsupportedSchema — версия схемы не поддерживается.
	ErrUnsupportedSchema = errors.New("unsupported schema version")
)

// Descriptor — развёрнутый дескриптор деплоя.
type Descriptor struct {
	// SchemaVersion — версия схемы MTA ("2" или "3.x").
	SchemaVersion string `yaml:"_schema-version" json:"schema_version"`

	// ID — идентификатор MTA.
	ID string `yaml:"ID" json:"id"`

	// Version — версия MTA.
	Version string `yaml:"version" json:"version"`

	// Parameters — глобальные параметры дескриптора
	// (apps-start-timeout и т.п.).
	Parameters map[string]any `yaml:"parameters" json:"parameters,omitempty"`

	// Modules — модули MTA.
	Modules []Module `yaml:"modules" json:"modules,omitempty"`

	// Resources — ресурсы MTA.
	Resources []Resource `yaml:"resources" json:"resources,omitempty"`
}

// Module — модуль дескриптора.
type Module struct {
	Name       string         `yaml:"name" json:"name"`
	Type       string         `yaml:"type" json:"type"`
	Parameters map[string]any `yaml:"parameters" json:"parameters,omitempty"`
	Hooks      []Hook         `yaml:"hooks" json:"hooks,omitempty"`
}

// Hook — хук модуля в дескрипторе.
type Hook struct {
	Name       string         `yaml:"name" json:"name"`
	Type       string         `yaml:"type" json:"type"`
	Phases     []string       `yaml:"phases" json:"phases"`
	Parameters map[string]any `yaml:"parameters" json:"parameters,omitempty"`
}

// Resource — ресурс дескриптора.
type Resource struct {
	Name       string         `yaml:"name" json:"name"`
	Type       string         `yaml:"type" json:"type"`
	Optional   bool           `yaml:"optional" json:"optional,omitempty"`
	Parameters map[string]any `yaml:"parameters" json:"parameters,omitempty"`
}

// Parse разбирает дескриптор из YAML (mtad.yaml).
func Parse(data []byte) (*Descriptor, error) {
	var d Descriptor
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse deployment descriptor: %w", err)
	}
	if d.ID == "" {
		return nil, ErrMissingID
	}
	if _, err := HandlerFor(d.SchemaVersion); err != nil {
		return nil, err
	}
	return &d, nil
}

// GlobalParameter возвращает глобальный параметр дескриптора.
func (d *Descriptor) GlobalParameter(name string) (any, bool) {
	v, ok := d.Parameters[name]
	return v, ok
}

// ModuleByName возвращает модуль по имени.
func (d *Descriptor) ModuleByName(name string) (*Module, bool) {
	for i := range d.Modules {
		if d.Modules[i].Name == name {
			return &d.Modules[i], true
		}
	}
	return nil, false
}

// ResourceByName возвращает ресурс по имени.
func (d *Descriptor) ResourceByName(name string) (*Resource, bool) {
	for i := range d.Resources {
		if d.Resources[i].Name == name {
			return &d.Resources[i], true
		}
	}
	return nil, false
}

// HooksForModule возвращает доменные хуки модуля для фазы.
func (d *Descriptor) HooksForModule(moduleName string, phase domain.HookPhase) []domain.Hook {
	mod, ok := d.ModuleByName(moduleName)
	if !ok {
		return nil
	}

	var hooks []domain.Hook
	for _, h := range mod.Hooks {
		hook := domain.Hook{
			Name:       h.Name,
			ModuleName: moduleName,
			Type:       h.Type,
			Parameters: h.Parameters,
		}
		for _, p := range h.Phases {
			hook.Phases = append(hook.Phases, domain.HookPhase(p))
		}
		if hook.ForPhase(phase) {
			hooks = append(hooks, hook)
		}
	}
	return hooks
}
