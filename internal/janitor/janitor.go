package janitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Convoy/internal/repo"
)

const (
	// DefaultSchedule — ежедневная уборка в 3 часа ночи.
	DefaultSchedule = "0 3 * * *"

	// DefaultRetention — период хранения завершённых операций
	// (Postgres interval).
	DefaultRetention = "720h"

	runTimeout = 5 * time.Minute
)

// Janitor — фоновая уборка завершённых операций.
type Janitor struct {
	operations *repo.OperationRepo
	schedule   string
	retention  string
	logger     *slog.Logger

	cron *cron.Cron
}

// Config — конфигурация Janitor.
type Config struct {
	Operations *repo.OperationRepo
	Schedule   string // cron-выражение (default: DefaultSchedule)
	Retention  string // Postgres interval (default: DefaultRetention)
	Logger     *slog.Logger
}

// New создаёт Janitor.
func New(cfg Config) *Janitor {
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = DefaultSchedule
	}
	retention := cfg.Retention
	if retention == "" {
		retention = DefaultRetention
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Janitor{
		operations: cfg.Operations,
		schedule:   schedule,
		retention:  retention,
		logger:     logger,
		cron:       cron.New(),
	}
}

// Start регистрирует расписание и запускает cron.
func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, j.run); err != nil {
		return fmt.Errorf("invalid janitor schedule %q: %w", j.schedule, err)
	}
	j.cron.Start()
	j.logger.Info("janitor started", "schedule", j.schedule, "retention", j.retention)
	return nil
}

// Stop останавливает cron и дожидается завершения текущего прогона.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.logger.Info("janitor stopped")
}

// RunOnce выполняет один прогон уборки. Используется cron-джобой
// и флагом --once у бинаря.
func (j *Janitor) RunOnce(ctx context.Context) error {
	released, err := j.operations.ReleaseStaleLocks(ctx)
	if err != nil {
		return fmt.Errorf("release stale locks: %w", err)
	}

	deleted, err := j.operations.DeleteFinishedBefore(ctx, j.retention)
	if err != nil {
		return fmt.Errorf("delete finished operations: %w", err)
	}

	j.logger.Info("janitor run completed",
		"locks_released", released,
		"operations_deleted", deleted,
	)
	return nil
}

func (j *Janitor) run() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	if err := j.RunOnce(ctx); err != nil {
		j.logger.Error("janitor run failed", "error", err)
	}
}
