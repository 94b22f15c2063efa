// Package mq публикует и потребляет события жизненного цикла workflow через RabbitMQ.
//
// Структура:
//   - connection.go — соединение с автоматическим reconnect (backoff)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — сообщения, payload'ы и публикация
//   - events.go     — EventReporter: orchestrator.Reporter поверх событий
//   - consumer.go   — потребление с маршрутизацией по типу сообщения
//
// Типы сообщений (routing key в dagon.events):
//   - workflow.created — регистрация workflow
//   - task.added       — описание задачи
//   - task.status      — переход статуса
//   - task.updated     — изменение атрибута (working_dir)
//   - task.dependency  — ребро графа
package mq
