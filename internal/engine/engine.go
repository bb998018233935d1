package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Convoy/internal/cf"
	"github.com/shaiso/Convoy/internal/mq"
	"github.com/shaiso/Convoy/internal/process"
	"github.com/shaiso/Convoy/internal/repo"
	"github.com/shaiso/Convoy/internal/steps"
)

// Default configuration values.
const (
	defaultPollInterval = 10 * time.Second
	defaultTickDelay    = 5 * time.Second
	defaultBatchSize    = 100
)

// Engine выполняет активные операции тик за тиком.
//
// Тики приходят двумя путями: событийно из RabbitMQ (немедленные и
// отложенные через delay-очередь) и по таймеру из БД (polling
// fallback). Без MQ движок работает в polling-only режиме.
type Engine struct {
	// Repositories
	operations *repo.OperationRepo
	instances  *repo.InstanceRepo
	progress   *repo.ProgressRepo
	pool       *pgxpool.Pool

	// MQ (nil — polling-only режим)
	publisher *mq.Publisher
	conn      *mq.Connection

	registry *steps.Registry
	clients  cf.ClientFactory
	codec    *process.SecureCodec
	locks    *instanceLocks

	// Consumers
	opConsumer   *mq.Consumer
	tickConsumer *mq.Consumer

	// Configuration
	pollInterval time.Duration
	tickDelay    time.Duration
	batchSize    int

	// Lifecycle
	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Engine.
type Config struct {
	// Repositories
	Operations *repo.OperationRepo
	Instances  *repo.InstanceRepo
	Progress   *repo.ProgressRepo
	Pool       *pgxpool.Pool

	// MQ (опционально)
	Publisher *mq.Publisher
	Conn      *mq.Connection

	// Шаги и платформа
	Registry *steps.Registry
	Clients  cf.ClientFactory
	Codec    *process.SecureCodec

	// PollInterval — интервал polling fallback (default: 10s).
	PollInterval time.Duration

	// TickDelay — задержка между poll-тиками шага (default: 5s).
	TickDelay time.Duration

	// BatchSize — операций за один poll (default: 100).
	BatchSize int

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Engine.
func New(cfg Config) *Engine {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	tickDelay := cfg.TickDelay
	if tickDelay <= 0 {
		tickDelay = defaultTickDelay
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		operations:   cfg.Operations,
		instances:    cfg.Instances,
		progress:     cfg.Progress,
		pool:         cfg.Pool,
		publisher:    cfg.Publisher,
		conn:         cfg.Conn,
		registry:     cfg.Registry,
		clients:      cfg.Clients,
		codec:        cfg.Codec,
		locks:        newInstanceLocks(),
		pollInterval: pollInterval,
		tickDelay:    tickDelay,
		batchSize:    batchSize,
		logger:       logger,
	}
}

// Start запускает Engine.
//
// Запускает:
//   - Consumer для operations.started (если подключён MQ)
//   - Consumer для ticks.step (если подключён MQ)
//   - Polling горутину для fallback
func (e *Engine) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.cancelFunc = cancel

	e.logger.Info("starting engine",
		"poll_interval", e.pollInterval,
		"tick_delay", e.tickDelay,
		"event_driven", e.conn != nil,
	)

	if e.conn != nil {
		e.opConsumer = mq.NewConsumer(e.conn, e.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueOperationsStarted),
			Handler:  e.handleOperationStarted,
			Prefetch: 10,
		})

		e.tickConsumer = mq.NewConsumer(e.conn, e.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueTicksStep),
			Handler:  e.handleStepTick,
			Prefetch: 10,
		})

		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := e.opConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				e.logger.Error("operation consumer error", "error", err)
			}
		}()

		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := e.tickConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				e.logger.Error("tick consumer error", "error", err)
			}
		}()
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.pollLoop(ctx)
	}()

	e.logger.Info("engine started")
	return nil
}

// Stop останавливает Engine.
func (e *Engine) Stop() {
	e.stoppedMu.Lock()
	e.stopped = true
	e.stoppedMu.Unlock()

	e.logger.Info("stopping engine...")

	if e.cancelFunc != nil {
		e.cancelFunc()
	}

	if e.opConsumer != nil {
		e.opConsumer.Stop()
	}
	if e.tickConsumer != nil {
		e.tickConsumer.Stop()
	}

	e.wg.Wait()

	e.logger.Info("engine stopped")
}

// IsStopped проверяет, остановлен ли Engine.
func (e *Engine) IsStopped() bool {
	e.stoppedMu.RLock()
	defer e.stoppedMu.RUnlock()
	return e.stopped
}

// pollLoop — цикл polling fallback.
//
// Первый poll выполняется сразу при старте: подхватываются операции,
// тики которых потерялись, пока движок был выключен.
func (e *Engine) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	e.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.poll(ctx)
		}
	}
}

// poll выполняет один цикл polling: тик всех активных операций.
func (e *Engine) poll(ctx context.Context) {
	ops, err := e.operations.ListActive(ctx, e.batchSize)
	if err != nil {
		e.logger.Error("failed to list active operations", "error", err)
		return
	}

	if len(ops) == 0 {
		return
	}

	e.logger.Debug("poll found active operations", "count", len(ops))

	for i := range ops {
		if err := e.tickOperation(ctx, &ops[i]); err != nil {
			e.logger.Error("failed to tick operation from poll",
				"operation_id", ops[i].ID,
				"error", err,
			)
		}
	}
}
