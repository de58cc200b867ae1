// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений в очереди
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - task.ready       — task создан в БД и ждёт worker'а
//   - task.completed   — task достиг финального состояния
//
// Exchanges:
//   - permitflow.tasks — события tasks
//   - permitflow.dlq   — dead letter queue
package mq
