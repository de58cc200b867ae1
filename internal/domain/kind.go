package domain

// TaskKind — тип удалённой операции (Task Unit).
//
// Набор закрыт: worker умеет выполнять только перечисленные типы,
// неизвестный тип в сообщении — ошибка протокола.
type TaskKind string

const (
	// TaskKindIngestReport — загрузка отчёта из upstream API в data lake.
	TaskKindIngestReport TaskKind = "ingest_report"

	// TaskKindVerifySource — проверка, что файл job'а есть в data lake.
	TaskKindVerifySource TaskKind = "verify_source"

	// TaskKindVerifyTarget — проверка, что целевой stack data store существует.
	TaskKindVerifyTarget TaskKind = "verify_target"

	// TaskKindUpdatePartition — создание партиции в каталоге (идемпотентно).
	TaskKindUpdatePartition TaskKind = "update_partition"

	// TaskKindCopyToTarget — копирование файла в партицию (идемпотентно).
	TaskKindCopyToTarget TaskKind = "copy_to_target"
)

// Known проверяет, что тип входит в закрытый набор.
func (k TaskKind) Known() bool {
	switch k {
	case TaskKindIngestReport, TaskKindVerifySource, TaskKindVerifyTarget,
		TaskKindUpdatePartition, TaskKindCopyToTarget:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление TaskKind.
func (k TaskKind) String() string {
	return string(k)
}
