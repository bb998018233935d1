package descriptor

import (
	"fmt"
	"strings"
)

// SchemaHandler — варьирующееся по версии схемы поведение чтения
// дескриптора.
//
// Схема 2 держала параметры модулей в "properties", схема 3 — в
// "parameters"; выбор обработчика по мажорной версии избавляет шаги
// от знания этих различий.
type SchemaHandler interface {
	// SchemaMajor — мажорная версия схемы.
	SchemaMajor() int

	// ModuleParameter возвращает параметр модуля.
	ModuleParameter(m *Module, name string) (any, bool)
}

type handlerV2 struct{}

type handlerV3 struct{}

func (handlerV2) SchemaMajor() int { return 2 }

func (handlerV3) SchemaMajor() int { return 3 }

func (handlerV2) ModuleParameter(m *Module, name string) (any, bool) {
	if v, ok := m.Parameters[name]; ok {
		return v, true
	}
	// Схема 2 допускала параметры внутри properties.
	if props, ok := m.Parameters["properties"].(map[string]any); ok {
		v, ok := props[name]
		return v, ok
	}
	return nil, false
}

func (handlerV3) ModuleParameter(m *Module, name string) (any, bool) {
	v, ok := m.Parameters[name]
	return v, ok
}

// HandlerFor выбирает обработчик по версии схемы дескриптора.
// Пустая версия трактуется как текущая схема (3).
func HandlerFor(schemaVersion string) (SchemaHandler, error) {
	major := schemaVersion
	if i := strings.IndexByte(schemaVersion, '.'); i >= 0 {
		major = schemaVersion[:i]
	}

	switch major {
	case "2":
		return handlerV2{}, nil
	case "3", "":
		return handlerV3{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSchema, schemaVersion)
	}
}
