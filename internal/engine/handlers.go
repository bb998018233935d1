package engine

import (
	"context"

	"github.com/shaiso/Convoy/internal/mq"
)

// handleOperationStarted обрабатывает событие о новой операции.
func (e *Engine) handleOperationStarted(ctx context.Context, msg *mq.Message) error {
	payload, err := mq.ParsePayload[mq.OperationStartedPayload](msg)
	if err != nil {
		e.logger.Error("failed to parse operation.started payload", "error", err)
		return err
	}

	e.logger.Debug("received operation.started event", "operation_id", payload.OperationID)

	op, err := e.operations.GetByID(ctx, payload.OperationID)
	if err != nil {
		e.logger.Error("failed to load started operation",
			"operation_id", payload.OperationID,
			"error", err,
		)
		return err
	}

	return e.tickOperation(ctx, op)
}

// handleStepTick обрабатывает тик процесса (немедленный или вернувшийся
// из delay-очереди).
func (e *Engine) handleStepTick(ctx context.Context, msg *mq.Message) error {
	payload, err := mq.ParsePayload[mq.StepTickPayload](msg)
	if err != nil {
		e.logger.Error("failed to parse step.tick payload", "error", err)
		return err
	}

	e.logger.Debug("received step.tick event",
		"operation_id", payload.OperationID,
		"instance_id", payload.InstanceID,
	)

	if err := e.TickInstance(ctx, payload.InstanceID); err != nil {
		e.logger.Error("failed to tick instance",
			"instance_id", payload.InstanceID,
			"error", err,
		)
		return err
	}
	return nil
}
