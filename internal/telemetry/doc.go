// Package telemetry обеспечивает наблюдаемость Dagon.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики планировщика
//
// Метрики регистрируются в глобальном реестре и экспортируются
// на /metrics (dagon-monitor, dagon run --metrics-addr).
package telemetry
