package cf

import (
	"errors"
	"fmt"
	"net/http"
)

// ControllerError — ошибка Cloud Controller с HTTP-статусом.
//
// Шаги классифицируют ошибки платформы по статусу:
// 404 при delete — идемпотентный успех, 409 — всегда фатально,
// 422 при create binding/key — «операция уже в полёте, переключиться
// на polling», 403/502 на брокерах — допустимо при выставленном флаге.
type ControllerError struct {
	// Status — HTTP-статус ответа контроллера.
	Status int

	// Code — код ошибки платформы (например, 10008).
	Code int

	// Title — краткий заголовок ошибки (например, "CF-UnprocessableEntity").
	Title string

	// Detail — описание ошибки.
	Detail string
}

func (e *ControllerError) Error() string {
	if e.Title != "" {
		return fmt.Sprintf("controller error %d (%s): %s", e.Status, e.Title, e.Detail)
	}
	return fmt.Sprintf("controller error %d: %s", e.Status, e.Detail)
}

// StatusOf возвращает HTTP-статус ошибки контроллера и true,
// если err (в цепочке) — ControllerError.
func StatusOf(err error) (int, bool) {
	var ce *ControllerError
	if errors.As(err, &ce) {
		return ce.Status, true
	}
	return 0, false
}

func hasStatus(err error, status int) bool {
	s, ok := StatusOf(err)
	return ok && s == status
}

// IsNotFound — 404: при delete трактуется как «уже удалено».
func IsNotFound(err error) bool { return hasStatus(err, http.StatusNotFound) }

// IsConflict — 409: всегда фатально.
func IsConflict(err error) bool { return hasStatus(err, http.StatusConflict) }

// IsUnprocessableEntity — 422: при create binding/key означает,
// что операция уже идёт — переключиться на polling существующего ресурса.
func IsUnprocessableEntity(err error) bool {
	return hasStatus(err, http.StatusUnprocessableEntity)
}

// IsForbidden — 403: на операциях с брокерами может быть допущено
// при флаге «не падать из-за отсутствия прав».
func IsForbidden(err error) bool { return hasStatus(err, http.StatusForbidden) }

// IsBadGateway — 502: тот же режим допуска, что и 403, для брокеров.
func IsBadGateway(err error) bool { return hasStatus(err, http.StatusBadGateway) }

// IsServerError — 5xx.
func IsServerError(err error) bool {
	s, ok := StatusOf(err)
	return ok && s >= 500
}
