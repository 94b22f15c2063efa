// Package orchestrator строит граф зависимостей и выполняет задачи.
//
// Workflow отвечает за:
//   - Объединение явных зависимостей и выведенных из workflow:// ссылок
//   - Проверку графа на циклы до запуска первой задачи
//   - Параллельный запуск всех READY задач (dataflow, без барьеров по уровням)
//   - Каскад SKIPPED при падении задачи
//   - Checkpoint: перенос директории и запись прогресса, resume
//   - Отправку переходов статусов в Reporter
//
// MetaWorkflow объединяет несколько Workflow: выводит рёбры между ними
// из ссылок на чужие workflow и запускает их в топологическом порядке,
// независимые — параллельно.
//
// Статусы задач меняет только координирующая горутина Run.
// Горутины задач выполняют скрипт и cleanup, затем сообщают результат
// через канал.
package orchestrator
