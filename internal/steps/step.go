package steps

import (
	"context"
	"time"

	"github.com/shaiso/Convoy/internal/domain"
	"github.com/shaiso/Convoy/internal/process"
)

// Step — одна логическая единица операции деплоя.
//
// Вместо иерархии наследования (sync/async/timeout/hooks базовые классы)
// шаг реализует Step плюс нужные capability-интерфейсы: Pollable,
// TimeoutBound, HookAware. Runner собирает поведение при выполнении.
type Step interface {
	// Name — уникальное имя шага в реестре и в именах переменных фазы.
	Name() string

	// Execute — первый вход в шаг. Возвращает DONE (всё сделано за один
	// заход), POLL (запущена длинная операция платформы) или ошибку.
	Execute(ctx context.Context, pc *process.Context) (StepPhase, error)

	// ErrorMessage — сообщение, предваряющее ошибку шага
	// в progress-сообщении пользователя.
	ErrorMessage(pc *process.Context) string
}

// AsyncExecution — одна pollable-единица асинхронного шага.
//
// Execute вызывается на каждом тике движка, пока не вернёт
// терминальное состояние.
type AsyncExecution interface {
	// Execute выполняет одну poll-попытку.
	Execute(ctx context.Context, pc *process.Context) (AsyncState, error)

	// PollErrorMessage — сообщение для жёсткого сбоя этой единицы.
	PollErrorMessage(pc *process.Context) string
}

// Pollable — шаг с асинхронной фазой POLL.
//
// PollExecutions возвращает упорядоченный список poll-единиц; активная
// выбирается stage-переменной (по умолчанию 0). Poller может сам
// переписать stage для hand-off на другую единицу на следующем тике
// (инкрементальное обновление инстансов чередует три стадии).
type Pollable interface {
	PollExecutions(pc *process.Context) []AsyncExecution
}

// TimeoutBound — шаг с настенным (wall-clock) таймаутом.
//
// Runner проверяет бюджет в начале каждого вызова шага, не только
// первого: многотиковый poll, превысивший бюджет, падает сразу
// с таймаут-ошибкой, а не продолжает опрашивать вечно.
type TimeoutBound interface {
	// Timeout возвращает бюджет шага (многоуровневое разрешение,
	// см. TimeoutPolicy).
	Timeout(ctx context.Context, pc *process.Context) (time.Duration, error)
}

// HookAware — шаг с пользовательскими хуками на фазах жизненного цикла.
//
// Хуки выполняются синхронно, строго до Execute (before-фаза) и после
// терминального DONE (after-фаза), не более одного раза на модуль
// на фазу за операцию.
type HookAware interface {
	// HookPhases возвращает before- и after-фазы шага.
	// Пустая фаза — хуков на этой стороне нет.
	HookPhases() (before, after domain.HookPhase)

	// HookModule возвращает модуль, чьи хуки выполняются.
	HookModule(ctx context.Context, pc *process.Context) (string, error)
}
