// Permitflow Scheduler — периодическая выгрузка отчёта и очистка результатов.
//
// Экземпляров может быть несколько: задания выполняет только лидер,
// удерживающий pg_try_advisory_lock.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/olmax99/dockerflaskapi/internal/backend"
	"github.com/olmax99/dockerflaskapi/internal/config"
	"github.com/olmax99/dockerflaskapi/internal/mq"
	"github.com/olmax99/dockerflaskapi/internal/orchestrator"
	"github.com/olmax99/dockerflaskapi/internal/repo"
	"github.com/olmax99/dockerflaskapi/internal/scheduler"
	"github.com/olmax99/dockerflaskapi/internal/telemetry"
)

const schedLockKey int64 = 424242

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting permitflow-scheduler")

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
	scfg := scheduler.Config{
		Results:       taskRepo,
		RetentionCron: cfg.RetentionCron,
		Retention:     cfg.ResultRetention,
		Reclaimer:     taskRepo,
		StaleAfter:    cfg.StaleTaskAfter,
		Logger:        logger,
	}

	// Выгрузка по расписанию идёт через очередь: результаты in-memory
	// backend'а живут только в процессе API.
	if cfg.IngestCron != "" {
		if cfg.Backend != config.BackendQueue {
			logger.Warn("INGEST_CRON ignored: scheduled ingest requires the queue backend", "backend", cfg.Backend)
		} else {
			qcfg := backend.QueueConfig{Store: taskRepo, Logger: logger}
			mqConn, err := mq.NewConnection(mq.ConnectionConfig{URL: cfg.RabbitMQURL, Component: "scheduler", Logger: logger})
			if err != nil {
				logger.Warn("RabbitMQ not available, tasks will be picked up by polling", "error", err)
			} else {
				defer mqConn.Close()
				if err := mq.SetupTopology(ctx, mqConn); err != nil {
					logger.Warn("failed to setup topology", "error", err)
				}
				qcfg.Publisher = mq.NewPublisher(mqConn, logger)
			}

			scfg.Ingest = orchestrator.New(orchestrator.Config{
				Backend:    backend.NewQueue(qcfg),
				ChunkSize:  cfg.ChunkSize,
				LakeBucket: cfg.LakeBucket,
				Logger:     logger,
			})
			scfg.IngestCron = cfg.IngestCron
		}
	}

	sched, err := scheduler.New(scfg)
	if err != nil {
		logger.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	go leaderLoop(ctx, pool, sched, logger)

	port := ":" + cfg.SchedulerPort
	go func() {
		logger.Info("listening", "addr", port)
		if err := http.ListenAndServe(port, mux); err != nil {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	sched.Stop()
	logger.Info("permitflow-scheduler stopped")
}

// leaderLoop пытается стать лидером и запускает cron, пока держит lock.
// Advisory lock сессионный, поэтому держится на выделенном соединении.
func leaderLoop(ctx context.Context, pool *pgxpool.Pool, sched *scheduler.Scheduler, logger *slog.Logger) {
	tk := time.NewTicker(5 * time.Second)
	defer tk.Stop()

	var conn *pgxpool.Conn
	defer func() {
		if conn != nil {
			_, _ = conn.Exec(context.Background(), "select pg_advisory_unlock($1)", schedLockKey)
			conn.Release()
		}
	}()

	for {
		if conn == nil {
			conn = tryLock(ctx, pool, logger)
			if conn != nil {
				sched.Start(ctx)
				logger.Info("leadership acquired", "next_runs", sched.NextRuns())
			}
		} else if err := conn.Ping(ctx); err != nil && ctx.Err() == nil {
			// соединение потеряно — lock освобождён сервером
			logger.Warn("leadership lost", "error", err)
			sched.Stop()
			conn.Release()
			conn = nil
		}

		select {
		case <-tk.C:
		case <-ctx.Done():
			return
		}
	}
}

func tryLock(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) *pgxpool.Conn {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		logger.Warn("acquire lock connection", "error", err)
		return nil
	}

	var ok bool
	if err := conn.QueryRow(ctx, "select pg_try_advisory_lock($1)", schedLockKey).Scan(&ok); err != nil {
		logger.Warn("lock error", "error", err)
		conn.Release()
		return nil
	}
	if !ok {
		conn.Release()
		return nil
	}
	return conn
}
