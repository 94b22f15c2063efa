// Package reporter содержит клиентов status-сервиса.
//
// Структура:
//   - client.go — HTTP-клиент (HEAD-проверка при создании, маршруты монитора)
//   - retry.go  — RetryReporter: повтор временных ошибок с backoff
//   - multi.go  — Multi: рассылка нескольким получателям (HTTP и события AMQP)
//   - errors.go — ConnectivityError, RegistrationConflictError, RemoteCallError
//
// Все типы реализуют orchestrator.Reporter. Вызовы синхронные.
package reporter
