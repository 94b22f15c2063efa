// Package domain содержит модель данных Dagon.
//
// Включает:
//   - task.go   — Task, единица работы с командой, типом и зависимостями
//   - status.go — TaskStatus/RunStatus и допустимые переходы
//   - info.go   — JSON-представления для status-сервиса и событий
//
// Статус задачи меняет только планировщик (пакет orchestrator),
// остальные компоненты его читают.
package domain
