package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Convoy/internal/cf"
	"github.com/shaiso/Convoy/internal/descriptor"
	"github.com/shaiso/Convoy/internal/domain"
	"github.com/shaiso/Convoy/internal/mq"
	"github.com/shaiso/Convoy/internal/process"
	"github.com/shaiso/Convoy/internal/repo"
)

// ErrNotResumable возвращается при попытке возобновить операцию,
// которая не находится в статусе ERROR.
var ErrNotResumable = errors.New("operation is not in ERROR state")

// Starter запускает, отменяет и возобновляет операции.
//
// Используется API-слоем: создаёт запись операции (захватывая lock на
// MTA), корневой экземпляр процесса с посеянными переменными и
// публикует событие движку. Движок после этого сам двигает процесс.
type Starter struct {
	operations *repo.OperationRepo
	instances  *repo.InstanceRepo
	pool       *pgxpool.Pool
	publisher  *mq.Publisher // nil — polling-only режим
	codec      *process.SecureCodec
	logger     *slog.Logger
}

// StarterConfig — зависимости Starter.
type StarterConfig struct {
	Operations *repo.OperationRepo
	Instances  *repo.InstanceRepo
	Pool       *pgxpool.Pool
	Publisher  *mq.Publisher
	Codec      *process.SecureCodec
	Logger     *slog.Logger
}

// NewStarter создаёт Starter.
func NewStarter(cfg StarterConfig) *Starter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Starter{
		operations: cfg.Operations,
		instances:  cfg.Instances,
		pool:       cfg.Pool,
		publisher:  cfg.Publisher,
		codec:      cfg.Codec,
		logger:     logger,
	}
}

// StartRequest — запрос на запуск операции.
type StartRequest struct {
	Type      domain.ProcessType
	Namespace string
	SpaceID   string
	OrgID     string
	User      string

	// Descriptor — развёрнутый дескриптор деплоя (mtad.yaml).
	Descriptor []byte
}

// Start запускает операцию деплоя.
//
// Конкурентная операция над тем же MTA в том же space/namespace
// даёт repo.ErrConflictingOperation.
func (s *Starter) Start(ctx context.Context, req StartRequest) (*domain.Operation, error) {
	d, err := descriptor.Parse(req.Descriptor)
	if err != nil {
		return nil, err
	}

	op := &domain.Operation{
		ID:           uuid.New(),
		Type:         req.Type,
		MTAID:        d.ID,
		Namespace:    req.Namespace,
		SpaceID:      req.SpaceID,
		OrgID:        req.OrgID,
		User:         req.User,
		State:        domain.OperationStateRunning,
		AcquiredLock: true,
		StartedAt:    time.Now(),
	}

	if err := s.operations.Create(ctx, op); err != nil {
		return nil, err
	}

	root := &domain.ProcessInstance{
		ID:          uuid.New(),
		OperationID: op.ID,
		Type:        op.Type,
		State:       domain.InstanceActive,
		CreatedAt:   op.StartedAt,
		UpdatedAt:   op.StartedAt,
	}
	if err := s.instances.Create(ctx, root); err != nil {
		return nil, fmt.Errorf("create root instance: %w", err)
	}

	pc := s.processContext(op, root)
	if err := seedRootVariables(ctx, pc, op, d); err != nil {
		return nil, fmt.Errorf("seed root variables: %w", err)
	}

	s.logger.Info("operation started",
		"operation_id", op.ID,
		"type", op.Type,
		"mta_id", op.MTAID,
		"space_id", op.SpaceID,
	)

	if s.publisher != nil {
		if err := s.publisher.PublishOperationStarted(ctx, op.ID); err != nil {
			// Запись в БД уже есть — движок подхватит через polling.
			s.logger.Warn("failed to publish operation.started", "operation_id", op.ID, "error", err)
		}
	}

	return op, nil
}

// Abort запрашивает отмену операции. Отмена кооперативная: движок
// проверяет флаг после каждого шага и перед каждым poll-тиком.
func (s *Starter) Abort(ctx context.Context, id uuid.UUID) error {
	if err := s.operations.RequestAbort(ctx, id); err != nil {
		return err
	}
	s.logger.Info("operation abort requested", "operation_id", id)
	return nil
}

// Resume возвращает операцию из ERROR в RUNNING: следующий тик движка
// повторит упавший шаг с чистой попыткой и свежим окном таймаута.
func (s *Starter) Resume(ctx context.Context, id uuid.UUID) (*domain.Operation, error) {
	op, err := s.operations.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if op.State != domain.OperationStateError {
		return nil, fmt.Errorf("operation %s: %w", id, ErrNotResumable)
	}

	op.MarkResumed()
	if err := s.operations.Update(ctx, op); err != nil {
		return nil, err
	}

	s.logger.Info("operation resumed", "operation_id", id)

	if s.publisher != nil {
		if err := s.publisher.PublishOperationStarted(ctx, op.ID); err != nil {
			s.logger.Warn("failed to publish operation.started", "operation_id", op.ID, "error", err)
		}
	}
	return op, nil
}

func (s *Starter) processContext(op *domain.Operation, inst *domain.ProcessInstance) *process.Context {
	vars := repo.NewVariableRepo(s.pool, inst.ID)
	return process.NewContext(process.ContextConfig{
		InstanceID: inst.ID,
		Target: cf.Target{
			OrgID:         op.OrgID,
			SpaceID:       op.SpaceID,
			CorrelationID: op.ID.String(),
		},
		Store:    vars,
		Historic: vars,
		Codec:    s.codec,
		Logger:   s.logger,
	})
}
