// Package permits — выгрузка отчёта о разрешениях на строительство.
//
//   - upstream.go — клиент upstream API (JSON-массив записей)
//   - normalize.go — переименование колонок и приведение типов
//   - parquet.go  — запись Parquet (один файл или чанки)
//
// Порядок колонок в файле фиксирован, по нему читает каталог:
// application_number, permit_record_id, estate_address, permit_description,
// permit_est_cost, permit_expiration_date, permit_file_date, revised_cost,
// application_status, status_date, estate_existing_use, estate_proposed_use.
package permits
