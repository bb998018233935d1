package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Convoy/internal/cf"
	"github.com/shaiso/Convoy/internal/domain"
	"github.com/shaiso/Convoy/internal/mq"
	"github.com/shaiso/Convoy/internal/process"
	"github.com/shaiso/Convoy/internal/repo"
	"github.com/shaiso/Convoy/internal/steps"
)

// tickOperation выполняет тик всей операции: корневой экземпляр
// и все активные дочерние.
func (e *Engine) tickOperation(ctx context.Context, op *domain.Operation) error {
	if op.IsFinished() {
		return nil
	}

	// Отмена между шагами: guard ловит её внутри шага, здесь ловится
	// отмена, запрошенная пока операция ждала тика.
	if op.AbortRequested {
		return e.finalizeAborted(ctx, op)
	}

	root, err := e.instances.GetRoot(ctx, op.ID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			e.logger.Warn("operation has no root process instance", "operation_id", op.ID)
			return nil
		}
		return fmt.Errorf("get root instance: %w", err)
	}

	if err := e.TickInstance(ctx, root.ID); err != nil {
		return err
	}

	children, err := e.instances.ListChildren(ctx, root.ID)
	if err != nil {
		return fmt.Errorf("list children: %w", err)
	}
	for i := range children {
		if children[i].IsFinished() {
			continue
		}
		if err := e.TickInstance(ctx, children[i].ID); err != nil {
			e.logger.Error("failed to tick child instance",
				"instance_id", children[i].ID,
				"module", children[i].ModuleName,
				"error", err,
			)
		}
	}
	return nil
}

// TickInstance выполняет тики одного экземпляра процесса, пока шаги
// завершаются синхронно; останавливается на POLL, RETRY или конце графа.
func (e *Engine) TickInstance(ctx context.Context, instanceID uuid.UUID) error {
	// Consumer и polling fallback могут взяться за один экземпляр
	// одновременно; тики экземпляра не перекрываются.
	release := e.locks.Acquire(instanceID)
	defer release()

	for {
		again, err := e.tickOnce(ctx, instanceID)
		if err != nil || !again {
			return err
		}
	}
}

// tickOnce выполняет один тик экземпляра.
// Возвращает true, если можно сразу выполнять следующий шаг.
func (e *Engine) tickOnce(ctx context.Context, instanceID uuid.UUID) (bool, error) {
	inst, err := e.instances.GetByID(ctx, instanceID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get instance: %w", err)
	}
	if inst.IsFinished() {
		return false, nil
	}

	op, err := e.operations.GetByID(ctx, inst.OperationID)
	if err != nil {
		return false, fmt.Errorf("get operation: %w", err)
	}
	// Шаги выполняются только у RUNNING операций: ERROR ждёт retry
	// пользователя, терминальные статусы не трогаются.
	if op.State != domain.OperationStateRunning {
		return false, nil
	}
	if op.AbortRequested {
		return false, e.finalizeAborted(ctx, op)
	}

	pc := e.newProcessContext(op, inst)

	graph, err := e.graphFor(ctx, pc, op, inst)
	if err != nil {
		return false, err
	}

	node, ok := graph.Node(inst.StepIndex)
	if !ok {
		return false, e.completeInstance(ctx, op, inst)
	}

	if node == spawnModulesNode {
		return e.tickSpawn(ctx, pc, op, inst)
	}

	step, err := e.registry.Get(node)
	if err != nil {
		return false, err
	}

	runner := steps.NewRunner(
		&progressRecorder{progress: e.progress, operationID: op.ID, taskID: node},
		&abortGuard{operations: e.operations, operationID: op.ID},
	)

	result := runner.Run(ctx, pc, step)

	switch result.Phase {
	case steps.PhaseDone:
		inst.StepIndex++
		if err := e.instances.Update(ctx, inst); err != nil {
			return false, fmt.Errorf("advance instance: %w", err)
		}
		if inst.StepIndex >= graph.Len() {
			return false, e.completeInstance(ctx, op, inst)
		}
		return true, nil

	case steps.PhasePoll:
		e.scheduleTick(ctx, op.ID, inst.ID, e.tickDelay)
		return false, nil

	default: // RETRY
		return false, e.failOperation(ctx, op, result.Err)
	}
}

// graphFor возвращает граф экземпляра: корневой по типу процесса,
// дочерний — по модулю из дескриптора.
func (e *Engine) graphFor(ctx context.Context, pc *process.Context, op *domain.Operation, inst *domain.ProcessInstance) (Graph, error) {
	if inst.ParentID == nil {
		return RootGraph(op.Type)
	}

	hasTask := false
	if d, err := process.Get(ctx, pc, steps.VarDescriptor); err == nil {
		if m, ok := d.ModuleByName(inst.ModuleName); ok {
			hasTask = taskFromModule(m) != nil
		}
	}
	return ModuleGraph(op.Type, hasTask), nil
}

// tickSpawn обрабатывает псевдошаг порождения модульных под-процессов.
func (e *Engine) tickSpawn(ctx context.Context, pc *process.Context, op *domain.Operation, inst *domain.ProcessInstance) (bool, error) {
	children, err := e.instances.ListChildren(ctx, inst.ID)
	if err != nil {
		return false, fmt.Errorf("list children: %w", err)
	}

	if len(children) == 0 {
		return false, e.spawnModules(ctx, pc, op, inst)
	}

	for i := range children {
		switch children[i].State {
		case domain.InstanceFailed:
			return false, e.failOperation(ctx, op,
				steps.ContentError("deployment of module %q failed", children[i].ModuleName))
		case domain.InstanceAborted:
			return false, e.finalizeAborted(ctx, op)
		case domain.InstanceActive:
			// Модули ещё разворачиваются.
			e.scheduleTick(ctx, op.ID, inst.ID, e.tickDelay)
			return false, nil
		}
	}

	// Все модули завершены — корневой процесс идёт дальше.
	inst.StepIndex++
	if err := e.instances.Update(ctx, inst); err != nil {
		return false, fmt.Errorf("advance instance: %w", err)
	}
	e.logger.Info("all module processes finished", "operation_id", op.ID, "modules", len(children))
	return true, nil
}

// spawnModules порождает дочерний под-процесс на каждый модуль MTA.
// Модули разворачиваются параллельно: каждый получает собственный
// экземпляр с собственными переменными.
func (e *Engine) spawnModules(ctx context.Context, pc *process.Context, op *domain.Operation, inst *domain.ProcessInstance) error {
	d, err := process.Get(ctx, pc, steps.VarDescriptor)
	if err != nil {
		return err
	}

	now := time.Now()
	for i := range d.Modules {
		m := &d.Modules[i]

		child := &domain.ProcessInstance{
			ID:          uuid.New(),
			OperationID: op.ID,
			ParentID:    &inst.ID,
			Type:        op.Type,
			ModuleName:  m.Name,
			State:       domain.InstanceActive,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := e.instances.Create(ctx, child); err != nil {
			return fmt.Errorf("create child instance for module %q: %w", m.Name, err)
		}

		childPC := e.newProcessContext(op, child)
		if err := seedModuleVariables(ctx, childPC, op, d, m); err != nil {
			return fmt.Errorf("seed variables of module %q: %w", m.Name, err)
		}

		e.logger.Info("module process spawned",
			"operation_id", op.ID,
			"module", m.Name,
			"instance_id", child.ID,
		)
		e.scheduleTick(ctx, op.ID, child.ID, 0)
	}

	e.scheduleTick(ctx, op.ID, inst.ID, e.tickDelay)
	return nil
}

// completeInstance завершает экземпляр. Для корневого экземпляра
// финализируется вся операция.
func (e *Engine) completeInstance(ctx context.Context, op *domain.Operation, inst *domain.ProcessInstance) error {
	inst.State = domain.InstanceCompleted
	if err := e.instances.Update(ctx, inst); err != nil {
		return fmt.Errorf("complete instance: %w", err)
	}

	if inst.ParentID != nil {
		e.logger.Info("module process finished",
			"operation_id", op.ID,
			"module", inst.ModuleName,
		)
		// Родитель может продвинуться сразу.
		e.scheduleTick(ctx, op.ID, *inst.ParentID, 0)
		return nil
	}

	op.MarkFinished()
	if err := e.operations.Update(ctx, op); err != nil {
		return fmt.Errorf("finish operation: %w", err)
	}

	e.logger.Info("operation finished",
		"operation_id", op.ID,
		"type", op.Type,
		"mta_id", op.MTAID,
	)
	e.publishFinished(ctx, op)
	return nil
}

// failOperation переводит операцию в ERROR. Lock не снимается:
// операция остаётся возобновляемой retry пользователя.
func (e *Engine) failOperation(ctx context.Context, op *domain.Operation, stepErr *steps.StepError) error {
	if stepErr != nil && stepErr.Type == steps.ErrorTypeAborted {
		return e.finalizeAborted(ctx, op)
	}

	text := "step failed"
	if stepErr != nil {
		text = stepErr.Error()
	}

	op.MarkError(text)
	if err := e.operations.Update(ctx, op); err != nil {
		return fmt.Errorf("mark operation error: %w", err)
	}

	e.logger.Warn("operation entered error state",
		"operation_id", op.ID,
		"error", text,
	)
	e.publishFinished(ctx, op)
	return nil
}

// finalizeAborted переводит операцию в ABORTED и снимает lock.
func (e *Engine) finalizeAborted(ctx context.Context, op *domain.Operation) error {
	op.MarkAborted()
	if err := e.operations.Update(ctx, op); err != nil {
		return fmt.Errorf("mark operation aborted: %w", err)
	}

	e.logger.Info("operation aborted", "operation_id", op.ID)
	e.publishFinished(ctx, op)
	return nil
}

// scheduleTick планирует тик экземпляра через MQ. delay = 0 — немедленно.
// Без MQ тики обеспечивает polling fallback.
func (e *Engine) scheduleTick(ctx context.Context, operationID, instanceID uuid.UUID, delay time.Duration) {
	if e.publisher == nil {
		return
	}

	var err error
	if delay > 0 {
		err = e.publisher.PublishDelayedStepTick(ctx, operationID, instanceID, delay)
	} else {
		err = e.publisher.PublishStepTick(ctx, operationID, instanceID)
	}
	if err != nil {
		// Polling fallback подхватит экземпляр на следующем цикле.
		e.logger.Warn("failed to publish step tick",
			"operation_id", operationID,
			"instance_id", instanceID,
			"error", err,
		)
	}
}

// publishFinished публикует событие о завершении операции (best effort).
func (e *Engine) publishFinished(ctx context.Context, op *domain.Operation) {
	if e.publisher == nil {
		return
	}
	err := e.publisher.PublishOperationFinished(ctx, mq.OperationFinishedPayload{
		OperationID: op.ID,
		State:       string(op.State),
		Error:       op.Error,
	})
	if err != nil {
		e.logger.Warn("failed to publish operation.finished", "operation_id", op.ID, "error", err)
	}
}

// newProcessContext создаёт контекст шага для экземпляра.
func (e *Engine) newProcessContext(op *domain.Operation, inst *domain.ProcessInstance) *process.Context {
	var parentID uuid.UUID
	if inst.ParentID != nil {
		parentID = *inst.ParentID
	}

	vars := repo.NewVariableRepo(e.pool, inst.ID)
	return process.NewContext(process.ContextConfig{
		InstanceID: inst.ID,
		ParentID:   parentID,
		Target: cf.Target{
			OrgID:         op.OrgID,
			SpaceID:       op.SpaceID,
			CorrelationID: op.ID.String(),
		},
		Store:    vars,
		Historic: vars,
		Codec:    e.codec,
		Clients:  e.clients,
		Logger:   e.logger.With("operation_id", op.ID, "instance_id", inst.ID),
	})
}

// abortGuard — steps.Guard поверх репозитория операций.
type abortGuard struct {
	operations  *repo.OperationRepo
	operationID uuid.UUID
}

func (g *abortGuard) AbortRequested(ctx context.Context) (bool, error) {
	aborted, err := g.operations.AbortRequested(ctx, g.operationID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return aborted, err
}

// progressRecorder — steps.Recorder поверх репозитория progress-сообщений.
type progressRecorder struct {
	progress    *repo.ProgressRepo
	operationID uuid.UUID
	taskID      string
}

func (r *progressRecorder) Record(ctx context.Context, t domain.ProgressMessageType, text string) error {
	return r.progress.Create(ctx, &domain.ProgressMessage{
		OperationID: r.operationID,
		TaskID:      r.taskID,
		Type:        t,
		Text:        text,
		Timestamp:   time.Now(),
	})
}
