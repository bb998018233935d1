package steps

import (
	"context"

	"github.com/shaiso/Convoy/internal/cf"
	"github.com/shaiso/Convoy/internal/process"
)

// tailAppLogs дочитывает логи приложения с сохранённого оффсета и
// переносит их в лог операции. Выполняется на каждом тике опроса:
// строки между тиками не теряются даже при ошибке самого опроса.
//
// Ошибки чтения логов не фатальны — тик продолжается без них.
func tailAppLogs(ctx context.Context, pc *process.Context, client cf.Client, appName string) {
	offsets, err := process.GetOrDefault(ctx, pc, VarLogOffsets)
	if err != nil {
		pc.Logger().Warn("cannot read log offsets", "app", appName, "error", err)
		return
	}
	if offsets == nil {
		offsets = map[string]int64{}
	}

	lines, next, err := client.GetAppLogs(ctx, appName, offsets[appName])
	if err != nil {
		pc.Logger().Warn("cannot read application logs", "app", appName, "error", err)
		return
	}

	for _, line := range lines {
		pc.Logger().Info("application log",
			"app", appName,
			"source", line.Source,
			"message", line.Message,
		)
	}

	if next == offsets[appName] {
		return
	}

	// Переменные процесса не мутируются на месте.
	updated := make(map[string]int64, len(offsets)+1)
	for k, v := range offsets {
		updated[k] = v
	}
	updated[appName] = next

	if err := process.Set(ctx, pc, VarLogOffsets, updated); err != nil {
		pc.Logger().Warn("cannot persist log offset", "app", appName, "error", err)
	}
}
