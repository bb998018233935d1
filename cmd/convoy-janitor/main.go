// Convoy Janitor — фоновая уборка хранилища операций.
//
// Удаляет завершённые операции старше периода хранения и снимает
// stale lock'и. С флагом --once выполняет один прогон и выходит.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/Convoy/internal/janitor"
	"github.com/shaiso/Convoy/internal/repo"
	"github.com/shaiso/Convoy/internal/telemetry"
)

func main() {
	once := flag.Bool("once", false, "run a single cleanup pass and exit")
	flag.Parse()

	logger := telemetry.SetupLogger()
	logger.Info("starting convoy-janitor")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	j := janitor.New(janitor.Config{
		Operations: repo.NewOperationRepo(pool),
		Schedule:   os.Getenv("JANITOR_SCHEDULE"),
		Retention:  os.Getenv("JANITOR_RETENTION"),
		Logger:     logger,
	})

	if *once {
		if err := j.RunOnce(ctx); err != nil {
			logger.Error("janitor run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := j.Start(); err != nil {
		logger.Error("failed to start janitor", "error", err)
		os.Exit(1)
	}

	<-ctx.Done()
	j.Stop()
	logger.Info("convoy-janitor stopped")
}
