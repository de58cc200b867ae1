// Package scheduler реализует периодические задания permitflow.
//
// Scheduler держит два cron-задания (robfig/cron):
//   - ingest — запуск выгрузки отчёта через Orchestrator.SubmitIngest
//     по INGEST_CRON. Без расписания выгрузка идёт только по запросу API.
//   - retention — удаление завершённых tasks старше RESULT_RETENTION.
//     Результаты читаются не разрушающе, поэтому без очистки они
//     копились бы бесконечно. Там же tasks, застрявшие в RUNNING дольше
//     STALE_TASK_AFTER (worker остановлен посреди выполнения), возвращаются
//     в PENDING.
//
// Структура:
//   - scheduler.go — Scheduler, RunIngest, RunRetention
//   - cron.go      — парсинг и проверка cron-выражений
//
// Использование:
//
//	sched, err := scheduler.New(scheduler.Config{
//	    Ingest:        orch,
//	    Results:       taskRepo,
//	    IngestCron:    cfg.IngestCron,
//	    RetentionCron: cfg.RetentionCron,
//	    Retention:     cfg.ResultRetention,
//	    Reclaimer:     taskRepo,
//	    StaleAfter:    cfg.StaleTaskAfter,
//	    Logger:        logger,
//	})
//	sched.Start(ctx)
//	defer sched.Stop()
//
// Одновременно выполняется не больше одного экземпляра задания
// (cron.SkipIfStillRunning). Leader election в main.go через
// pg_try_advisory_lock: Start вызывается только лидером.
package scheduler
