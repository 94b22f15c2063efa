package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		RequestID(),
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Проверка доступности (HEAD / из reporter.NewClient)
	mux.Handle("GET /{$}", chain(http.HandlerFunc(h.Ping)))

	// Протокол status-сервиса
	mux.Handle("POST /create", chain(http.HandlerFunc(h.CreateWorkflow)))
	mux.Handle("POST /add_task/{id}", chain(http.HandlerFunc(h.AddTask)))
	mux.Handle("PUT /changestatus/{id}/{task}/{status}", chain(http.HandlerFunc(h.ChangeStatus)))
	mux.Handle("GET /update/{id}/{task}", chain(http.HandlerFunc(h.GetTask)))
	mux.Handle("PUT /update/{id}/{task}/{attr}", chain(http.HandlerFunc(h.UpdateTask)))
	mux.Handle("PUT /{id}/{task}/{kind}/{dep}", chain(http.HandlerFunc(h.AddDependency)))

	// Просмотр
	mux.Handle("GET /workflows", chain(http.HandlerFunc(h.ListWorkflows)))
	mux.Handle("GET /workflows/{id}", chain(http.HandlerFunc(h.GetWorkflow)))
	mux.Handle("DELETE /workflows/{id}", chain(http.HandlerFunc(h.DeleteWorkflow)))
}
