package process

import (
	"encoding/json"
	"fmt"
)

// Variable — типизированный дескриптор переменной процесса.
//
// Дескрипторы объявляются как package-level переменные рядом с шагами,
// которые ими владеют. Имя — ключ в durable-хранилище; Default
// возвращается GetOrDefault, когда переменная не установлена.
type Variable[T any] struct {
	// Name — имя переменной в хранилище.
	Name string

	// Default — значение по умолчанию для GetOrDefault.
	Default T

	// LegacyNames — старые имена переменной. Get пробует их по порядку,
	// когда основное имя не установлено (обратная совместимость с
	// процессами, запущенными прошлой версией).
	LegacyNames []string

	// Sensitive — значение шифруется в хранилище (см. SecureCodec).
	Sensitive bool
}

// NewVariable создаёт дескриптор с именем name.
func NewVariable[T any](name string) Variable[T] {
	return Variable[T]{Name: name}
}

// WithDefault возвращает копию дескриптора со значением по умолчанию.
func (v Variable[T]) WithDefault(def T) Variable[T] {
	v.Default = def
	return v
}

// WithLegacyNames возвращает копию дескриптора со старыми именами.
func (v Variable[T]) WithLegacyNames(names ...string) Variable[T] {
	v.LegacyNames = names
	return v
}

// AsSensitive возвращает копию дескриптора с флагом шифрования.
func (v Variable[T]) AsSensitive() Variable[T] {
	v.Sensitive = true
	return v
}

// marshalValue сериализует значение переменной в JSON.
func marshalValue[T any](v Variable[T], value T) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal variable %q: %w", v.Name, err)
	}
	return data, nil
}

// unmarshalValue десериализует значение переменной из JSON.
func unmarshalValue[T any](v Variable[T], data []byte) (T, error) {
	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return value, fmt.Errorf("unmarshal variable %q: %w", v.Name, err)
	}
	return value, nil
}
