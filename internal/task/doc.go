// Package task описывает Task Unit — минимальную удалённую единицу работы.
//
// Вместо реестра операций по строковому имени используется закрытый набор
// типизированных вариантов. Каждый вариант несёт свой payload, сам себя
// валидирует и объявляет, меняет ли он внешнее состояние:
//
//   - IngestReport    — загрузка отчёта в data lake (мутирующий)
//   - VerifySource    — проверка файла в data lake
//   - VerifyTarget    — проверка целевого stack
//   - UpdatePartition — создание партиции (мутирующий, идемпотентный, fencing)
//   - CopyToTarget    — копирование файла в партицию (мутирующий, идемпотентный, fencing)
//
// Создание Unit не имеет побочных эффектов: работа начинается только после
// Backend.Dispatch.
package task
