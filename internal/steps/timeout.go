package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/Convoy/internal/process"
)

// TimeoutKind — тип таймаута шага со своим максимумом и дефолтом.
type TimeoutKind string

const (
	TimeoutStart  TimeoutKind = "start"
	TimeoutStage  TimeoutKind = "stage"
	TimeoutUpload TimeoutKind = "upload"
	TimeoutTask   TimeoutKind = "task"
	TimeoutStop   TimeoutKind = "stop"
)

// Пределы и дефолты по типам таймаутов (в секундах).
var timeoutLimits = map[TimeoutKind]struct {
	max time.Duration
	def time.Duration
}{
	TimeoutStart:  {max: 24 * time.Hour, def: time.Hour},
	TimeoutStage:  {max: 24 * time.Hour, def: time.Hour},
	TimeoutUpload: {max: 24 * time.Hour, def: time.Hour},
	TimeoutTask:   {max: 24 * time.Hour, def: 10 * time.Minute},
	TimeoutStop:   {max: time.Hour, def: 10 * time.Minute},
}

// processVariableFor — переменная процесса с явным таймаутом типа.
func processVariableFor(kind TimeoutKind) process.Variable[int] {
	return process.NewVariable[int](string(kind) + "Timeout")
}

// moduleAttributeName — имя атрибута уровня модуля для типа таймаута.
func moduleAttributeName(kind TimeoutKind) string {
	return string(kind) + "-timeout"
}

// globalParameterName — имя глобального параметра дескриптора.
func globalParameterName(kind TimeoutKind) string {
	return "apps-" + string(kind) + "-timeout"
}

// ResolveTimeout возвращает таймаут шага по слоям конфигурации:
//
//  1. явная переменная процесса;
//  2. атрибут уровня модуля приложения (валидируется);
//  3. глобальный параметр дескриптора (валидируется);
//  4. встроенный дефолт.
//
// Невалидное значение (отрицательное или больше максимума типа) —
// content-ошибка, а не откат на следующий слой.
func ResolveTimeout(ctx context.Context, pc *process.Context, kind TimeoutKind) (time.Duration, error) {
	limits := timeoutLimits[kind]

	// 1. Переменная процесса всегда выигрывает.
	if seconds, err := process.Get(ctx, pc, processVariableFor(kind)); err == nil {
		return validateTimeout(kind, seconds, limits.max)
	}

	// 2. Атрибут уровня модуля.
	app, err := process.GetOrDefault(ctx, pc, VarAppToProcess)
	if err != nil {
		return 0, err
	}
	if app != nil {
		if raw, ok := app.Attributes[moduleAttributeName(kind)]; ok {
			seconds, err := asSeconds(raw)
			if err != nil {
				return 0, ContentError("invalid %s attribute of module %q: %v", moduleAttributeName(kind), app.ModuleName, err)
			}
			return validateTimeout(kind, seconds, limits.max)
		}
	}

	// 3. Глобальный параметр дескриптора.
	desc, err := process.GetOrDefault(ctx, pc, VarDescriptor)
	if err != nil {
		return 0, err
	}
	if desc != nil {
		if raw, ok := desc.GlobalParameter(globalParameterName(kind)); ok {
			seconds, err := asSeconds(raw)
			if err != nil {
				return 0, ContentError("invalid global parameter %q: %v", globalParameterName(kind), err)
			}
			return validateTimeout(kind, seconds, limits.max)
		}
	}

	// 4. Встроенный дефолт.
	return limits.def, nil
}

func validateTimeout(kind TimeoutKind, seconds int, max time.Duration) (time.Duration, error) {
	if seconds < 0 {
		return 0, ContentError("%s timeout must not be negative, got %d", kind, seconds)
	}
	d := time.Duration(seconds) * time.Second
	if d > max {
		return 0, ContentError("%s timeout %ds exceeds the maximum of %s", kind, seconds, max)
	}
	return d, nil
}

func asSeconds(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("expected a number of seconds, got %T", raw)
	}
}
