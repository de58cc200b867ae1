// Package backend — execution backend: асинхронный запуск Task Unit'ов
// и чтение их Job Handle.
//
// Контракт:
//
//	Dispatch(ctx, unit, opts) → Handle   // PENDING, работа поставлена в очередь
//	Poll(ctx, id)             → Handle   // чистое чтение, ничего не меняет
//	Await(ctx, id, timeout)   → Handle   // ждёт финального состояния или таймаута
//
// Реализации:
//   - QueueBackend  — tasks в Postgres + RabbitMQ (tasks.ready / task.completed)
//   - MemoryBackend — ограниченный канал и пул горутин в процессе (CLI, тесты)
//
// Чтение результата не разрушающее: финальный handle можно опрашивать
// сколько угодно раз, старые tasks удаляет retention scheduler'а.
package backend
