// Package api содержит HTTP API монитора workflow.
//
// Структура:
//   - handler.go          — Handler с DI (хранилище, logger)
//   - routes.go           — регистрация маршрутов
//   - middleware.go       — middleware (request id, logging, recovery)
//   - response.go         — унифицированные JSON-ответы и обработка ошибок
//   - dto.go              — Data Transfer Objects
//   - store.go            — состояние workflow в памяти
//   - workflow_handler.go — протокол status-сервиса и просмотр
//   - events.go           — применение событий из AMQP
//
// Монитор принимает уведомления reporter.Client по HTTP и события
// mq.EventReporter из очереди; оба источника пишут в один Store.
package api
