package steps

import (
	"context"
	"log/slog"
	"time"

	"github.com/shaiso/Convoy/internal/domain"
	"github.com/shaiso/Convoy/internal/process"
	"github.com/shaiso/Convoy/internal/telemetry"
)

// Recorder персистит progress-сообщения операции.
//
// Сообщение об ошибке записывается до возврата ошибки из шага:
// диагностика видна пользователю, даже если процесс затем прерывается.
type Recorder interface {
	Record(ctx context.Context, t domain.ProgressMessageType, text string) error
}

// Guard проверяет, не отменена ли владеющая операция.
type Guard interface {
	AbortRequested(ctx context.Context) (bool, error)
}

// Result — исход одного вызова шага.
type Result struct {
	// Phase — фаза после вызова: DONE, POLL или RETRY.
	Phase StepPhase

	// Err — классифицированная ошибка; установлена при Phase == RETRY.
	Err *StepError
}

// Runner — обёртка выполнения шага.
//
// Собирает поведение из capability-интерфейсов шага: polling для
// Pollable, бюджет для TimeoutBound, хуки для HookAware. Один вызов
// Run — один тик движка; фаза шага хранится в переменной процесса,
// так что после рестарта движка шаг возобновляется ровно там,
// где остановился.
type Runner struct {
	hooks    *HookExecutor
	recorder Recorder
	guard    Guard
}

// NewRunner создаёт Runner.
func NewRunner(recorder Recorder, guard Guard) *Runner {
	return &Runner{
		hooks:    &HookExecutor{},
		recorder: recorder,
		guard:    guard,
	}
}

// Run выполняет один тик шага.
func (r *Runner) Run(ctx context.Context, pc *process.Context, step Step) Result {
	started := time.Now()
	log := pc.Logger().With("step", step.Name())

	phaseV := phaseVar(step.Name())
	phase, err := process.GetOrDefault(ctx, pc, phaseV)
	if err != nil {
		return r.fail(ctx, pc, step, log, err)
	}

	// Из DONE переходов нет.
	if phase == PhaseDone {
		return Result{Phase: PhaseDone}
	}

	result := r.tick(ctx, pc, step, log, phase)

	// Post-step hook: финальная фаза персистится при любом исходе,
	// включая ошибочный — иначе повторный вход не увидит RETRY.
	if err := process.Set(ctx, pc, phaseV, result.Phase); err != nil && result.Err == nil {
		result = Result{Phase: PhaseRetry, Err: Translate(step.ErrorMessage(pc), err)}
	}

	telemetry.ObserveStep(step.Name(), string(result.Phase), time.Since(started))
	return result
}

// tick — тело одного вызова шага. Любой его исход возвращается в Run
// и проходит через персистенцию фазы.
func (r *Runner) tick(ctx context.Context, pc *process.Context, step Step, log *slog.Logger, phase StepPhase) Result {
	// Повторный вход после RETRY: свежая попытка с нуля — без
	// накопленного stage и со свежим окном таймаута.
	if phase == PhaseRetry {
		phase = PhaseExecute
		if err := process.Remove(ctx, pc, startTimeVar(step.Name())); err != nil {
			return r.fail(ctx, pc, step, log, err)
		}
		if err := process.Remove(ctx, pc, stageVar(step.Name())); err != nil {
			return r.fail(ctx, pc, step, log, err)
		}
	}

	// Pre-step hook: чистим маркер ошибки прошлой попытки,
	// фиксируем текущую активность.
	if err := process.Remove(ctx, pc, errorMarkerVar); err != nil {
		return r.fail(ctx, pc, step, log, err)
	}
	if err := process.Set(ctx, pc, taskIDVar, step.Name()); err != nil {
		return r.fail(ctx, pc, step, log, err)
	}

	// Таймаут проверяется в начале каждого вызова, не только первого.
	if tb, ok := step.(TimeoutBound); ok {
		if err := r.enforceTimeout(ctx, pc, step, tb); err != nil {
			return r.fail(ctx, pc, step, log, err)
		}
	}

	if phase == PhasePoll {
		return r.poll(ctx, pc, step, log)
	}
	return r.execute(ctx, pc, step, log)
}

// execute — первый вход в шаг (фаза EXECUTE).
func (r *Runner) execute(ctx context.Context, pc *process.Context, step Step, log *slog.Logger) Result {
	if err := r.runHooks(ctx, pc, step, true); err != nil {
		return r.fail(ctx, pc, step, log, err)
	}

	next, err := step.Execute(ctx, pc)
	if err != nil {
		return r.fail(ctx, pc, step, log, err)
	}

	// Abort-check: отменённая конкурентно операция роняет шаг,
	// а не останавливает его молча.
	if err := r.checkAbort(ctx); err != nil {
		return r.fail(ctx, pc, step, log, err)
	}

	switch next {
	case PhaseDone:
		return r.finish(ctx, pc, step, log)

	case PhasePoll:
		if _, ok := step.(Pollable); !ok {
			return r.fail(ctx, pc, step, log,
				ContentError("step %q returned POLL but is not pollable", step.Name()))
		}
		log.Debug("step entered polling")
		return Result{Phase: PhasePoll}

	default:
		return r.fail(ctx, pc, step, log,
			ContentError("step %q returned unexpected phase %s", step.Name(), next))
	}
}

// poll — один poll-тик шага (фаза POLL).
func (r *Runner) poll(ctx context.Context, pc *process.Context, step Step, log *slog.Logger) Result {
	if err := r.checkAbort(ctx); err != nil {
		return r.fail(ctx, pc, step, log, err)
	}

	pollable, ok := step.(Pollable)
	if !ok {
		return r.fail(ctx, pc, step, log,
			ContentError("step %q is in POLL phase but is not pollable", step.Name()))
	}

	execs := pollable.PollExecutions(pc)
	if len(execs) == 0 {
		return r.finish(ctx, pc, step, log)
	}

	stageV := stageVar(step.Name())
	stage, err := process.GetOrDefault(ctx, pc, stageV)
	if err != nil {
		return r.fail(ctx, pc, step, log, err)
	}
	if stage < 0 || stage >= len(execs) {
		return r.fail(ctx, pc, step, log,
			ContentError("step %q has no poll execution at stage %d", step.Name(), stage))
	}

	active := execs[stage]
	state, err := active.Execute(ctx, pc)
	if err != nil || state == AsyncError {
		if err == nil {
			err = ContentError("%s", active.PollErrorMessage(pc))
		}
		return r.failPoll(ctx, pc, active, log, err)
	}

	telemetry.ObservePollTick(step.Name(), string(state))

	if state == AsyncRunning {
		return Result{Phase: PhasePoll}
	}

	// FINISHED. Poller мог сам переписать stage для hand-off —
	// явное значение важнее автопродвижения.
	redirected, err := process.GetOrDefault(ctx, pc, stageV)
	if err != nil {
		return r.fail(ctx, pc, step, log, err)
	}
	if redirected != stage {
		log.Debug("poll stage hand-off", "from", stage, "to", redirected)
		return Result{Phase: PhasePoll}
	}

	if stage+1 < len(execs) {
		if err := process.Set(ctx, pc, stageV, stage+1); err != nil {
			return r.fail(ctx, pc, step, log, err)
		}
		return Result{Phase: PhasePoll}
	}

	// FINISHED от последней единицы — шаг завершён.
	return r.finish(ctx, pc, step, log)
}

// finish завершает шаг: after-хуки и DONE.
func (r *Runner) finish(ctx context.Context, pc *process.Context, step Step, log *slog.Logger) Result {
	if err := r.runHooks(ctx, pc, step, false); err != nil {
		return r.fail(ctx, pc, step, log, err)
	}
	log.Debug("step done")
	return Result{Phase: PhaseDone}
}

// enforceTimeout фиксирует время старта шага и проверяет бюджет.
func (r *Runner) enforceTimeout(ctx context.Context, pc *process.Context, step Step, tb TimeoutBound) error {
	startV := startTimeVar(step.Name())

	start, err := process.Get(ctx, pc, startV)
	if err != nil {
		// Первый вход: фиксируем время старта (один раз на имя шага
		// на экземпляр процесса).
		start = time.Now()
		if err := process.Set(ctx, pc, startV, start); err != nil {
			return err
		}
	}

	timeout, err := tb.Timeout(ctx, pc)
	if err != nil {
		return err
	}

	if elapsed := time.Since(start); elapsed > timeout {
		return TimeoutError(step.Name(),
			ContentError("elapsed %s exceeds the budget of %s", elapsed.Round(time.Second), timeout))
	}
	return nil
}

// runHooks выполняет хуки шага до (before=true) или после выполнения.
func (r *Runner) runHooks(ctx context.Context, pc *process.Context, step Step, before bool) error {
	ha, ok := step.(HookAware)
	if !ok {
		return nil
	}

	beforePhase, afterPhase := ha.HookPhases()
	phase := afterPhase
	if before {
		phase = beforePhase
	}
	if phase == "" {
		return nil
	}

	module, err := ha.HookModule(ctx, pc)
	if err != nil {
		return err
	}
	return r.hooks.RunPhase(ctx, pc, module, phase)
}

// checkAbort возвращает ошибку отмены, если операция отменена.
func (r *Runner) checkAbort(ctx context.Context) error {
	if r.guard == nil {
		return nil
	}
	aborted, err := r.guard.AbortRequested(ctx)
	if err != nil {
		return err
	}
	if aborted {
		return AbortedError()
	}
	return nil
}

// fail — общий путь ошибки шага: перевод в таксономию, progress-сообщение,
// маркер ошибки, фаза RETRY.
func (r *Runner) fail(ctx context.Context, pc *process.Context, step Step, log *slog.Logger, err error) Result {
	stepErr := Translate(step.ErrorMessage(pc), err)
	return r.recordFailure(ctx, pc, log, stepErr)
}

// failPoll — путь ошибки poll-единицы: сообщение берётся у poller'а.
func (r *Runner) failPoll(ctx context.Context, pc *process.Context, exec AsyncExecution, log *slog.Logger, err error) Result {
	stepErr := Translate(exec.PollErrorMessage(pc), err)
	return r.recordFailure(ctx, pc, log, stepErr)
}

func (r *Runner) recordFailure(ctx context.Context, pc *process.Context, log *slog.Logger, stepErr *StepError) Result {
	text := stepErr.Message
	if stepErr.Err != nil {
		text += ": " + stepErr.Err.Error()
	}
	if stepErr.Guidance != "" {
		text += ". " + stepErr.Guidance
	}

	// Сообщение персистится до возврата ошибки — диагностика
	// переживает последующий abort всего процесса.
	if r.recorder != nil {
		if recErr := r.recorder.Record(ctx, domain.ProgressError, text); recErr != nil {
			log.Error("failed to record progress message", "error", recErr)
		}
	}

	if setErr := process.Set(ctx, pc, errorMarkerVar, text); setErr != nil {
		log.Error("failed to set error marker", "error", setErr)
	}

	log.Error("step failed", "error_type", stepErr.Type, "error", stepErr)
	telemetry.ObserveStepError(string(stepErr.Type))

	return Result{Phase: PhaseRetry, Err: stepErr}
}
