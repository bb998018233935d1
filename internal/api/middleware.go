package api

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Convoy/internal/telemetry"
)

// Middleware — функция-обёртка над http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain объединяет middleware в один: первый из списка
// оборачивает все остальные.
func Chain(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// responseWriter перехватывает статус ответа для логирования.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(status int) {
	rw.status = status
	rw.ResponseWriter.WriteHeader(status)
}

// Logging логирует каждый HTTP запрос и кладёт в контекст запроса
// логгер с correlation_id. Id берётся из заголовка X-Correlation-ID
// (его присылает CLI) или генерируется.
func Logging(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

			cid := r.Header.Get("X-Correlation-ID")
			if cid == "" {
				cid = uuid.New().String()
			}
			w.Header().Set("X-Correlation-ID", cid)

			reqLogger := telemetry.WithCorrelationID(logger, cid)
			ctx := telemetry.WithLogger(r.Context(), reqLogger)

			next.ServeHTTP(rw, r.WithContext(ctx))

			reqLogger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

// Recovery перехватывает панику в обработчике и возвращает 500.
func Recovery(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						"panic", rec,
						"path", r.URL.Path,
						"stack", string(debug.Stack()),
					)
					Error(w, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
