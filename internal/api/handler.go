package api

import (
	"log/slog"

	"github.com/shaiso/Convoy/internal/engine"
	"github.com/shaiso/Convoy/internal/repo"
)

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	operations *repo.OperationRepo
	progress   *repo.ProgressRepo
	starter    *engine.Starter
	logger     *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Operations *repo.OperationRepo
	Progress   *repo.ProgressRepo
	Starter    *engine.Starter
	Logger     *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		operations: cfg.Operations,
		progress:   cfg.Progress,
		starter:    cfg.Starter,
		logger:     cfg.Logger,
	}
}
