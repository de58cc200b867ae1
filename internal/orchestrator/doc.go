// Package orchestrator собирает Task Unit'ы в pipeline для операций,
// видимых клиенту, и сводит результат.
//
// Orchestrator отвечает за:
//   - Выгрузку отчёта (SubmitIngest): один IngestReport, ответ сразу
//   - Promote файла из data lake в data store: цепочка из трёх стадий
//   - Проверку состояния task и job (CheckTask, CheckJob)
//
// Promote блокирует вызывающего на время цепочки (в худшем случае сумма
// таймаутов стадий). Ошибки backend'а наружу не выходят: итог всегда
// PromoteResult с классифицированной pipeline.Error.
//
// На время вызова Promote lake job регистрируется как активный
// и получает новый fencing token; оба освобождаются при выходе.
package orchestrator
