// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go         — Handler с DI (оркестратор, каталог, logger)
//   - routes.go          — регистрация маршрутов
//   - middleware.go      — middleware (logging, recovery)
//   - response.go        — унифицированные JSON-ответы и обработка ошибок
//   - dto.go             — Data Transfer Objects (response)
//   - permits_handler.go — выгрузка отчёта и promote в data store
//   - task_handler.go    — состояние tasks и jobs
//   - stack_handler.go   — stack'и и партиции каталога
//
// Promote выполняется синхронно: ответ приходит после разрешения цепочки.
// HTTP-статус отражает итог: 201 SUCCESS, 202 таймаут стадии (работа
// в backend'е продолжается), 422 FAILURE. Тело всегда содержит итог.
package api
