// Package cli реализует инструмент командной строки dagon.
//
// # Обзор
//
// В отличие от dagon-monitor, CLI сам исполняет workflow: загружает
// манифест, строит план и запускает задачи через backend'ы. Статусы
// при этом уходят в status-сервис и/или RabbitMQ, если заданы их адреса.
//
// # Ключевые компоненты
//
// ## Runtime
//
// Собирает из конфигурации всё, что нужно для запуска: реестр backend'ов
// (локальный bash и SSH), менеджер checkpoint с зеркалом в PostgreSQL,
// цепочку получателей статусов и HTTP-сервер метрик.
//
//	rt, err := cli.NewRuntime(ctx, cfg, logger)
//	defer rt.Close()
//	res, err := rt.Execute(ctx, "pipeline.yaml", cli.RunOptions{})
//
// ## MonitorClient
//
// HTTP-клиент просмотра dagon-monitor для команд status. Не импортирует
// пакет api: типы ответов продублированы.
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: dagon graph --json nightly.yaml | jq .
//
// ## Commands
//
//   - run: выполнить манифест (--dry, --resume, --resume-db)
//   - validate, graph: проверить манифест и показать уровни графа
//   - schedule: запускать манифест по cron-расписанию
//   - keygen: создать ключ ed25519 для удалённых задач
//   - status: list, show, delete
//
// Конфигурация (dagon.yaml, переменные DAGON_*, флаги) загружается
// в PersistentPreRunE корневой команды. Флаги запущенной команды
// перекрывают файл и окружение.
package cli
