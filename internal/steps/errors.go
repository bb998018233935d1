package steps

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/Convoy/internal/cf"
)

// ErrorType — класс ошибки шага.
type ErrorType string

const (
	// ErrorTypeContent — ошибка содержимого/валидации (плохие параметры
	// дескриптора, невалидный таймаут, отсутствующий обязательный ресурс).
	// Не ретраится автоматически, показывается пользователю как есть.
	ErrorTypeContent ErrorType = "CONTENT"

	// ErrorTypePlatform — ошибка операции платформы (4xx/5xx контроллера).
	ErrorTypePlatform ErrorType = "PLATFORM"

	// ErrorTypeTimeout — шаг превысил настенный бюджет. Выделенный класс,
	// поднимается политикой таймаутов проактивно.
	ErrorTypeTimeout ErrorType = "TIMEOUT"

	// ErrorTypeAborted — операция отменена пользователем.
	ErrorTypeAborted ErrorType = "ABORTED"
)

// StepError — классифицированная ошибка шага.
type StepError struct {
	// Type — класс ошибки.
	Type ErrorType

	// Message — человекочитаемое сообщение (с префиксом шага).
	Message string

	// Guidance — best-effort подсказка оператору для известных
	// доменов сбоев (брокеры и т.п.).
	Guidance string

	// Err — исходная ошибка.
	Err error
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *StepError) Unwrap() error { return e.Err }

// ContentError создаёт ошибку валидации.
func ContentError(format string, args ...any) *StepError {
	return &StepError{Type: ErrorTypeContent, Message: fmt.Sprintf(format, args...)}
}

// TimeoutError создаёт таймаут-ошибку шага.
func TimeoutError(stepName string, err error) *StepError {
	return &StepError{
		Type:    ErrorTypeTimeout,
		Message: fmt.Sprintf("step %q exceeded its timeout", stepName),
		Err:     err,
	}
}

// AbortedError создаёт ошибку отмены операции.
func AbortedError() *StepError {
	return &StepError{Type: ErrorTypeAborted, Message: "operation was aborted by the user"}
}

// Translate переводит произвольную ошибку шага в StepError.
//
// Уже классифицированные ошибки проходят как есть. Ошибки контроллера
// становятся PLATFORM с подсказкой оператору по статусу. Всё остальное —
// PLATFORM без подсказки (generic platform error).
func Translate(message string, err error) *StepError {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		if stepErr.Message == "" {
			stepErr.Message = message
		}
		return stepErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &StepError{Type: ErrorTypeTimeout, Message: message, Err: err}
	}

	se := &StepError{Type: ErrorTypePlatform, Message: message, Err: err}
	if status, ok := cf.StatusOf(err); ok {
		se.Guidance = guidanceForStatus(status)
	}
	return se
}

// guidanceForStatus — подсказки оператору для известных доменов сбоев.
func guidanceForStatus(status int) string {
	switch status {
	case 502:
		return "The service broker may be down or unreachable. Check the broker's availability and retry the operation."
	case 403:
		return "The current user lacks permissions for this platform operation. Check the user's roles in the target org and space."
	case 409:
		return "A conflicting resource already exists on the platform. Resolve the conflict manually before retrying."
	default:
		return ""
	}
}
