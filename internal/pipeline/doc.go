// Package pipeline выполняет цепочки стадий поверх execution backend.
//
// # Модель
//
//   - Stage — одна стадия: один Task Unit (Single), группа независимых
//     Unit'ов (Group) или группа, построенная по результатам предыдущих
//     стадий (Deferred).
//   - Chain — упорядоченный список стадий. Стадия k+1 не начинает dispatch,
//     пока все члены стадии k не стали финальными.
//   - Outcome — единственный итог выполнения: StageResult для каждой
//     разрешённой стадии и, при остановке, индекс стадии и *Error.
//
// # Разрешение стадии
//
//  1. Dispatch всех членов без ожидания между ними (fan-out).
//  2. Один дедлайн на стадию. Члены ожидаются в порядке dispatch'а
//     оставшимся временем; после дедлайна — неблокирующий poll, чтобы
//     уже завершённые члены попали в результат.
//  3. Результат содержит по одной записи на член в порядке dispatch'а,
//     независимо от порядка фактического завершения.
//
// Пустая группа разрешается сразу пустым результатом.
//
// # Ошибки
//
// Run никогда не возвращает сырые ошибки backend'а. Outcome.Err — *Error
// одного из видов:
//
//   - DispatchFailure      — backend недоступен или отклонил Unit
//   - StageTimeout         — часть членов не стала финальной к дедлайну
//   - TaskFailure          — хотя бы один член завершился FAILURE
//   - BackendProtocolError — backend вернул ответ неожиданной формы
//
// Если в стадии одновременно есть незавершённые и упавшие члены,
// вид ошибки — StageTimeout, а упавшие члены перечислены в Members.
//
// Таймаут не отменяет работу в backend'е: tasks, которых не дождались,
// могут завершиться позже. Мутирующие Unit'ы защищены fencing token'ом.
package pipeline
