// Package telemetry содержит настройку structured logging (slog)
// и метрики Prometheus движка шагов.
package telemetry
