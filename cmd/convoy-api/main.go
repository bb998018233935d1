// Convoy API — HTTP фасад для запуска и наблюдения операций деплоя.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Convoy/internal/api"
	"github.com/shaiso/Convoy/internal/engine"
	"github.com/shaiso/Convoy/internal/mq"
	"github.com/shaiso/Convoy/internal/process"
	"github.com/shaiso/Convoy/internal/repo"
	"github.com/shaiso/Convoy/internal/telemetry"
)

var (
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "convoy_api_http_requests_total",
		Help: "Total HTTP requests handled by convoy_api",
	})
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting convoy-api")

	// Подключаемся к базе данных
	pool, err := repo.NewPool(context.Background())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	// Репозитории
	operationRepo := repo.NewOperationRepo(pool)
	instanceRepo := repo.NewInstanceRepo(pool)
	progressRepo := repo.NewProgressRepo(pool)

	// RabbitMQ (опционально: без него engine подхватит операцию поллингом)
	var publisher *mq.Publisher
	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}
	if mqConn, err := mq.NewConnection(mqURL, logger); err != nil {
		logger.Warn("RabbitMQ not available, operations will be picked up by engine polling", "error", err)
	} else {
		defer mqConn.Close()
		publisher = mq.NewPublisher(mqConn, logger)
	}

	codec, err := secureCodec(logger)
	if err != nil {
		logger.Error("failed to init secure codec", "error", err)
		os.Exit(1)
	}

	starter := engine.NewStarter(engine.StarterConfig{
		Operations: operationRepo,
		Instances:  instanceRepo,
		Pool:       pool,
		Publisher:  publisher,
		Codec:      codec,
		Logger:     logger,
	})

	// API handler
	handler := api.NewHandler(api.Config{
		Operations: operationRepo,
		Progress:   progressRepo,
		Starter:    starter,
		Logger:     logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reqTotal.Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// API маршруты
	handler.RegisterRoutes(mux)

	addr := ":8080"
	if v := os.Getenv("API_PORT"); v != "" {
		addr = ":" + v
	}

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Ожидаем сигнал завершения
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}

// secureCodec строит кодек из CONVOY_SECRET_KEY (hex, 32 байта).
func secureCodec(logger *slog.Logger) (*process.SecureCodec, error) {
	if v := os.Getenv("CONVOY_SECRET_KEY"); v != "" {
		key, err := hex.DecodeString(v)
		if err != nil {
			return nil, err
		}
		return process.NewSecureCodec(key)
	}

	logger.Warn("CONVOY_SECRET_KEY not set, using ephemeral key")
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return process.NewSecureCodec(key)
}
