package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — запись уже существует (конфликт уникальности).
	ErrAlreadyExists = errors.New("already exists")

	// ErrConflictingOperation — другая операция удерживает lock
	// на тот же MTA в том же space/namespace.
	ErrConflictingOperation = errors.New("conflicting operation in progress")
)
