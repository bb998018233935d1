// Convoy Engine — двигает операции деплоя по шагам.
//
// Engine:
//   - Получает события operation.started и тики шагов из RabbitMQ
//   - Выполняет шаги процесса и опрашивает асинхронные операции платформы
//   - Порождает дочерние процессы модулей и финализирует операции
//   - Без RabbitMQ работает в polling-only режиме по базе
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Convoy/internal/cf"
	"github.com/shaiso/Convoy/internal/engine"
	"github.com/shaiso/Convoy/internal/mq"
	"github.com/shaiso/Convoy/internal/process"
	"github.com/shaiso/Convoy/internal/repo"
	"github.com/shaiso/Convoy/internal/steps"
	"github.com/shaiso/Convoy/internal/telemetry"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting convoy-engine")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	// Репозитории
	operationRepo := repo.NewOperationRepo(pool)
	instanceRepo := repo.NewInstanceRepo(pool)
	progressRepo := repo.NewProgressRepo(pool)

	// RabbitMQ
	var publisher *mq.Publisher
	var mqConn *mq.Connection
	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}

	mqConn, err = mq.NewConnection(mqURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
		mqConn = nil
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		publisher = mq.NewPublisher(mqConn, logger)
	}

	// Кодек чувствительных переменных
	codec, err := secureCodec(logger)
	if err != nil {
		logger.Error("failed to init secure codec", "error", err)
		os.Exit(1)
	}

	// Пул фоновых загрузок артефактов
	uploads := steps.NewUploadPool(envInt64("CONVOY_UPLOAD_SLOTS", 4))

	// Создаём engine
	eng := engine.New(engine.Config{
		Operations: operationRepo,
		Instances:  instanceRepo,
		Progress:   progressRepo,
		Pool:       pool,
		Publisher:  publisher,
		Conn:       mqConn,
		Registry:   steps.DefaultRegistry(uploads),
		Clients:    cf.NewCachingFactory(controllerDialer(logger)),
		Codec:      codec,
		Logger:     logger,
	})

	if err := eng.Start(ctx); err != nil {
		logger.Error("failed to start engine", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":8083"
	if v := os.Getenv("ENGINE_PORT"); v != "" {
		port = ":" + v
	}

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	eng.Stop()
	logger.Info("convoy-engine stopped")
}

// controllerDialer выбирает реализацию клиента платформы.
//
// Настоящая клиентская библиотека контроллера подключается здесь;
// без неё engine работает с контроллером в памяти (локальная
// разработка и интеграционные прогоны без платформы).
func controllerDialer(logger *slog.Logger) cf.Dialer {
	logger.Warn("no controller client configured, using in-memory fake")
	return cf.FakeDialer(cf.NewFakeClient())
}

// secureCodec строит кодек из CONVOY_SECRET_KEY (hex, 32 байта).
// Без ключа генерируется случайный: чувствительные переменные
// не переживут перезапуск процесса.
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

func envInt64(name string, def int64) int64 {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return def
}
