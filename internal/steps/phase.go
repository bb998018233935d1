package steps

// StepPhase — фаза жизненного цикла шага.
//
// Переходы:
//
//	EXECUTE → DONE | POLL | RETRY
//	POLL    → POLL | DONE | RETRY
//
// Из DONE переходов нет. RETRY — терминальная неудача попытки,
// восстановимая повтором операции (в отличие от немедленного
// прекращения по ошибке poller'а — см. AsyncError).
type StepPhase string

const (
	// PhaseExecute — первый вход в шаг.
	PhaseExecute StepPhase = "EXECUTE"

	// PhasePoll — длинная операция платформы в полёте,
	// шаг перевызывается до её терминального состояния.
	PhasePoll StepPhase = "POLL"

	// PhaseDone — терминальный успех.
	PhaseDone StepPhase = "DONE"

	// PhaseRetry — терминальная неудача попытки.
	PhaseRetry StepPhase = "RETRY"
)

// CanTransition проверяет допустимость перехода фаз.
func (p StepPhase) CanTransition(next StepPhase) bool {
	switch p {
	case PhaseExecute:
		return next == PhaseDone || next == PhasePoll || next == PhaseRetry
	case PhasePoll:
		return next == PhasePoll || next == PhaseDone || next == PhaseRetry
	default:
		return false
	}
}

// IsTerminal возвращает true для DONE и RETRY.
func (p StepPhase) IsTerminal() bool {
	return p == PhaseDone || p == PhaseRetry
}

// AsyncState — результат одной poll-попытки одной AsyncExecution.
type AsyncState string

const (
	// AsyncRunning — операция ещё идёт, движок перевызовет poll позже.
	AsyncRunning AsyncState = "RUNNING"

	// AsyncFinished — единица завершена; шаг (или следующий poller
	// в упорядоченном списке) продолжает.
	AsyncFinished AsyncState = "FINISHED"

	// AsyncError — жёсткий сбой владеющего шага: polling прекращается
	// немедленно, без дальнейших тиков.
	AsyncError AsyncState = "ERROR"
)
