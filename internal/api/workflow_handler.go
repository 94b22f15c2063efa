package api

import (
	"encoding/json"
	"net/http"

	"github.com/shaiso/Dagon/internal/domain"
)

// Ping отвечает на проверку доступности.
// GET / (и HEAD /)
func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	Success(w, map[string]string{"service": "dagon-monitor"})
}

// CreateWorkflow регистрирует workflow.
// POST /create
func (h *Handler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var info domain.WorkflowInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	id, err := h.store.CreateWorkflow(info)
	if HandleStoreError(w, h.logger, err) {
		return
	}

	h.logger.Info("workflow registered", "workflow", info.Name, "workflow_id", id, "tasks", len(info.Tasks))
	Created(w, CreateWorkflowResponse{ID: id})
}

// AddTask добавляет задачу.
// POST /add_task/{id}
func (h *Handler) AddTask(w http.ResponseWriter, r *http.Request) {
	var task domain.TaskInfo
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if HandleStoreError(w, h.logger, h.store.AddTask(r.PathValue("id"), task)) {
		return
	}
	NoContent(w)
}

// ChangeStatus меняет статус задачи.
// PUT /changestatus/{id}/{task}/{status}
func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	err := h.store.SetStatus(r.PathValue("id"), r.PathValue("task"), r.PathValue("status"))
	if HandleStoreError(w, h.logger, err) {
		return
	}
	NoContent(w)
}

// GetTask возвращает задачу.
// GET /update/{id}/{task}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.store.Task(r.PathValue("id"), r.PathValue("task"))
	if HandleStoreError(w, h.logger, err) {
		return
	}
	Success(w, task)
}

// UpdateTask меняет атрибут задачи.
// PUT /update/{id}/{task}/{attr}?value=...
func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	if !r.URL.Query().Has("value") {
		BadRequest(w, "missing value")
		return
	}
	err := h.store.UpdateAttribute(r.PathValue("id"), r.PathValue("task"), r.PathValue("attr"), r.URL.Query().Get("value"))
	if HandleStoreError(w, h.logger, err) {
		return
	}
	NoContent(w)
}

// AddDependency добавляет ребро task → dep.
// PUT /{id}/{task}/dependency/{dep}
func (h *Handler) AddDependency(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("kind") != "dependency" {
		NotFound(w, "unknown route")
		return
	}
	err := h.store.AddDependency(r.PathValue("id"), r.PathValue("task"), r.PathValue("dep"))
	if HandleStoreError(w, h.logger, err) {
		return
	}
	NoContent(w)
}

// ListWorkflows возвращает сводку по всем workflow.
// GET /workflows
func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	states := h.store.List()
	result := make([]WorkflowSummary, len(states))
	for i, wf := range states {
		result[i] = SummaryFromState(wf)
	}
	List(w, result, len(result))
}

// GetWorkflow возвращает workflow со всеми задачами.
// GET /workflows/{id}
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := h.store.Workflow(r.PathValue("id"))
	if HandleStoreError(w, h.logger, err) {
		return
	}
	Success(w, wf)
}

// DeleteWorkflow удаляет workflow.
// DELETE /workflows/{id}
func (h *Handler) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if HandleStoreError(w, h.logger, h.store.Delete(r.PathValue("id"))) {
		return
	}
	NoContent(w)
}
