// Package cli реализует инструмент командной строки permitflow.
//
// # Обзор
//
// CLI — клиентская утилита для permitflow API. Работает через HTTP
// и не импортирует внутренние пакеты системы.
//
// ## Client
//
// HTTP-клиент для API. Раскладывает обёртки DataResponse и ListResponse
// и превращает ErrorResponse в error. Promote принимает 422 как результат:
// тело несёт итог конвейера со стадией и причиной остановки.
//
//	client := cli.NewClient("http://localhost:8080")
//	ack, err := client.SubmitReport()
//
// ## Output
//
// Таблицы (text/tabwriter) по умолчанию, JSON с флагом --json.
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr:
//
//	permitflow stack list --json | jq .
//
// ## Commands
//
//   - ingest [--wait]: выгрузка отчёта в data lake
//   - promote JOB_ID STACK: перенос файла в партицию data store
//   - task show, job show: состояние tasks и jobs
//   - stack list, stack partitions
//
// Каждая команда создаётся фабричной функцией (NewPromoteCmd и т.д.),
// принимающей clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
