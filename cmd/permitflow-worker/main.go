// Permitflow Worker — выполняет task units pipeline'а permits.
//
// Worker:
//   - Получает task.ready из RabbitMQ (с polling'ом БД как fallback)
//   - Выполняет ingest, проверки, партицию и копирование
//   - Повторяет инфраструктурные ошибки с exponential backoff
//   - Публикует task.completed для ожидающего API
//
// Workers масштабируются горизонтально.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/olmax99/dockerflaskapi/internal/config"
	"github.com/olmax99/dockerflaskapi/internal/fence"
	"github.com/olmax99/dockerflaskapi/internal/mq"
	"github.com/olmax99/dockerflaskapi/internal/objects"
	"github.com/olmax99/dockerflaskapi/internal/permits"
	"github.com/olmax99/dockerflaskapi/internal/repo"
	"github.com/olmax99/dockerflaskapi/internal/telemetry"
	"github.com/olmax99/dockerflaskapi/internal/worker"
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting permitflow-worker")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	taskRepo := repo.NewTaskRepo(pool)
	catalogRepo := repo.NewCatalogRepo(pool)

	// Redis для fencing token'ов
	rdb, err := fence.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Объектное хранилище
	store, err := objects.New(ctx, cfg.Objects())
	if err != nil {
		logger.Error("failed to create object store client", "error", err)
		os.Exit(1)
	}

	registry := worker.DefaultRegistry(worker.Deps{
		Objects:    store,
		Catalog:    catalogRepo,
		Fence:      fence.New(rdb, fence.Config{}),
		Source:     permits.NewClient(cfg.UpstreamURL, cfg.UpstreamTimeout),
		LakeBucket: cfg.LakeBucket,
	})

	wcfg := worker.Config{
		Tasks:        taskRepo,
		Registry:     registry,
		Retry:        worker.RetryPolicy{MaxAttempts: cfg.WorkerMaxAttempts},
		PollInterval: cfg.WorkerPollInterval,
		Logger:       logger,
	}

	// RabbitMQ
	mqConn, err := mq.NewConnection(mq.ConnectionConfig{URL: cfg.RabbitMQURL, Component: "worker", Logger: logger})
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		// Создаём топологию
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		} else {
			logger.Debug("topology ready", "topology", mq.TopologyInfo())
		}

		wcfg.Publisher = mq.NewPublisher(mqConn, logger)
		wcfg.Conn = mqConn
	}

	// Создаём worker
	w := worker.New(wcfg)

	// Запускаем worker
	if err := w.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}
	logger.Info("executors registered", "kinds", registry.Kinds())

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		if w.IsStopped() {
			rw.WriteHeader(http.StatusServiceUnavailable)
			rw.Write([]byte("stopped"))
			return
		}
		rw.WriteHeader(http.StatusOK)
		if mqConn == nil || !mqConn.IsConnected() {
			rw.Write([]byte("ok (polling only)"))
			return
		}
		rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	port := ":" + cfg.WorkerPort

	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()

	// Останавливаем worker
	w.Stop()
	logger.Info("permitflow-worker stopped")
}
