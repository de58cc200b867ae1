// Permitflow API — HTTP-вход pipeline'а permits.
//
// API:
//   - Запускает выгрузку отчёта и promote в data store
//   - Отдаёт состояние tasks, jobs и stack'ов
//
// С BACKEND=queue tasks выполняют permitflow-worker'ы через RabbitMQ.
// С BACKEND=memory executor'ы работают в процессе API.
package main

import (
	"context"
	"errors"
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

	"github.com/olmax99/dockerflaskapi/internal/api"
	"github.com/olmax99/dockerflaskapi/internal/backend"
	"github.com/olmax99/dockerflaskapi/internal/config"
	"github.com/olmax99/dockerflaskapi/internal/fence"
	"github.com/olmax99/dockerflaskapi/internal/mq"
	"github.com/olmax99/dockerflaskapi/internal/objects"
	"github.com/olmax99/dockerflaskapi/internal/orchestrator"
	"github.com/olmax99/dockerflaskapi/internal/permits"
	"github.com/olmax99/dockerflaskapi/internal/repo"
	"github.com/olmax99/dockerflaskapi/internal/telemetry"
	"github.com/olmax99/dockerflaskapi/internal/worker"
)

var (
	startTime = time.Now()
	reqTotal  = promauto.NewCounter(prometheus.CounterOpts{
		Name: "permitflow_api_http_requests_total",
		Help: "Total HTTP requests handled by permitflow_api",
	})
)

func main() {
	// Инициализируем structured logging
	logger := telemetry.SetupLogger()
	logger.Info("starting permitflow-api")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Подключаемся к базе данных
	pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("connected to database")

	taskRepo := repo.NewTaskRepo(pool)
	catalogRepo := repo.NewCatalogRepo(pool)

	// Регистрируем stack'и data store
	stacks, err := cfg.Stacks()
	if err != nil {
		logger.Error("failed to load stacks", "error", err)
		os.Exit(1)
	}
	for i := range stacks {
		if err := catalogRepo.UpsertStack(ctx, &stacks[i]); err != nil {
			logger.Error("failed to register stack", "stack", stacks[i].Name, "error", err)
			os.Exit(1)
		}
	}
	logger.Info("stacks registered", "count", len(stacks))

	// Execution backend
	var (
		exec   backend.Backend
		fencer orchestrator.Fencer
		stop   func()
	)
	switch cfg.Backend {
	case config.BackendMemory:
		exec, fencer, stop, err = memoryBackend(ctx, cfg, catalogRepo, logger)
	default:
		exec, fencer, stop, err = queueBackend(ctx, cfg, taskRepo, logger)
	}
	if err != nil {
		logger.Error("failed to set up execution backend", "backend", cfg.Backend, "error", err)
		os.Exit(1)
	}
	defer stop()
	logger.Info("execution backend ready", "backend", cfg.Backend)

	orch := orchestrator.New(orchestrator.Config{
		Backend:      exec,
		Fence:        fencer,
		StageTimeout: cfg.StageTimeout,
		ChunkSize:    cfg.ChunkSize,
		LakeBucket:   cfg.LakeBucket,
		Logger:       logger,
	})

	handler := api.NewHandler(api.Config{
		Service: orch,
		Catalog: catalogRepo,
		Logger:  logger,
	})

	mux := http.NewServeMux()

	// Health и metrics
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		reqTotal.Inc()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())

	// Регистрируем API маршруты
	handler.RegisterRoutes(mux)

	addr := ":" + cfg.APIPort

	// Promote синхронный: WriteTimeout покрывает три стадии с запасом
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      3*cfg.StageTimeout + 30*time.Second,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped", "active_jobs", orch.ActiveJobs())
}

// queueBackend — tasks в Postgres, доставка через RabbitMQ, fencing в Redis.
func queueBackend(ctx context.Context, cfg *config.Config, tasks *repo.TaskRepo, logger *slog.Logger) (backend.Backend, orchestrator.Fencer, func(), error) {
	rdb, err := fence.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect redis: %w", err)
	}

	qcfg := backend.QueueConfig{Store: tasks, Logger: logger}

	mqConn, err := mq.NewConnection(mq.ConnectionConfig{URL: cfg.RabbitMQURL, Component: "api", Logger: logger})
	if err != nil {
		logger.Warn("RabbitMQ not available, tasks will be picked up by polling", "error", err)
	} else {
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		qcfg.Publisher = mq.NewPublisher(mqConn, logger)
		qcfg.Conn = mqConn
	}

	queue := backend.NewQueue(qcfg)
	queue.Start(ctx)

	stop := func() {
		queue.Stop()
		if mqConn != nil {
			mqConn.Close()
		}
		rdb.Close()
	}
	return queue, fence.New(rdb, fence.Config{}), stop, nil
}

// memoryBackend — executor'ы в процессе, fencing локальный.
func memoryBackend(ctx context.Context, cfg *config.Config, catalog *repo.CatalogRepo, logger *slog.Logger) (backend.Backend, orchestrator.Fencer, func(), error) {
	store, err := objects.New(ctx, cfg.Objects())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("object store: %w", err)
	}

	local := fence.NewLocal()
	registry := worker.DefaultRegistry(worker.Deps{
		Objects:    store,
		Catalog:    catalog,
		Fence:      local,
		Source:     permits.NewClient(cfg.UpstreamURL, cfg.UpstreamTimeout),
		LakeBucket: cfg.LakeBucket,
	})

	mem := backend.NewMemory(registry, backend.MemoryConfig{
		Workers: cfg.WorkerConcurrency,
		Logger:  logger,
	})

	stop := func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer closeCancel()
		if err := mem.Close(closeCtx); err != nil {
			logger.Warn("memory backend did not drain", "error", err)
		}
	}
	return mem, local, stop, nil
}
