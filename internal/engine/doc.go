// Package engine содержит структурную часть движка Dagon.
//
// Включает:
//   - dag.go       — граф зависимостей, топологический порядок, поиск цикла
//   - reference.go — разбор и разрешение workflow:// ссылок
//   - errors.go    — ошибки графа, ссылок и выполнения
//
// Engine ничего не выполняет: он отвечает за понимание структуры
// workflow и порядка выполнения задач. Выполнением управляет orchestrator.
package engine
