// Package worker выполняет отдельные tasks.
//
// # Обзор
//
// Worker — stateless компонент, который выполняет Task Unit'ы,
// отправленные в QueueBackend. Worker отвечает за:
//
//   - Получение tasks из очереди RabbitMQ tasks.ready (event-driven)
//   - Периодическую проверку PENDING tasks в БД (polling fallback)
//   - Атомарный захват task (PENDING → RUNNING)
//   - Выполнение Unit'а executor'ом по его типу
//   - Retry инфраструктурных ошибок с exponential backoff
//   - Сохранение результата и публикацию task.completed
//
// Workers масштабируются горизонтально — несколько экземпляров
// потребляют из одной очереди tasks.ready.
//
// # Ключевые компоненты
//
// ## Worker
//
//	w := worker.New(worker.Config{
//	    Tasks:     taskRepo,
//	    Publisher: publisher,
//	    Conn:      mqConn,
//	    Registry:  worker.DefaultRegistry(deps),
//	    Logger:    logger,
//	})
//
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// ## Executor
//
// Реализации:
//   - IngestExecutor — upstream API → Parquet → data lake
//   - VerifySourceExecutor — файл job'а есть в data lake
//   - VerifyTargetExecutor — stack зарегистрирован, bucket доступен
//   - UpdatePartitionExecutor — партиция в каталоге (идемпотентно)
//   - CopyToTargetExecutor — файл в партиции stack (идемпотентно)
//
// Мутирующие executor'ы сначала проверяют fencing token: запись
// с устаревшим token отклоняется логической ошибкой.
//
// ## Registry
//
// Реестр executor'ов по domain.TaskKind. Registry.Run выполняет task
// одной попыткой и используется как Runner для backend.MemoryBackend.
//
// # Ошибки
//
// Пакет различает два уровня ошибок:
//   - Инфраструктурные (error от Execute) — хранилище или каталог недоступны
//   - Логические (ExecutionResult.Error) — источника нет, stack не найден
//
// Инфраструктурные повторяются до RetryPolicy.MaxAttempts, логические финальны.
package worker
