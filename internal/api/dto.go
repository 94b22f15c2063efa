package api

import (
	"time"

	"github.com/shaiso/Dagon/internal/domain"
)

// CreateWorkflowResponse — ответ на регистрацию workflow.
type CreateWorkflowResponse struct {
	ID string `json:"id"`
}

// WorkflowSummary — строка списка workflow.
type WorkflowSummary struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Host      string           `json:"host,omitempty"`
	Tasks     int              `json:"tasks"`
	Statuses  map[string]int   `json:"statuses"`
	Status    domain.RunStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// SummaryFromState сворачивает состояние workflow в строку списка.
// Статус: RUNNING, пока есть нетерминальные задачи, иначе FAILED
// при наличии упавших задач, иначе SUCCEEDED.
func SummaryFromState(wf WorkflowState) WorkflowSummary {
	s := WorkflowSummary{
		ID:        wf.ID,
		Name:      wf.Name,
		Host:      wf.Host,
		Tasks:     len(wf.Tasks),
		Statuses:  make(map[string]int),
		CreatedAt: wf.CreatedAt,
		UpdatedAt: wf.UpdatedAt,
	}
	for _, t := range wf.Tasks {
		s.Statuses[string(t.Status)]++
	}

	switch {
	case wf.active():
		s.Status = domain.RunStatusRunning
	case s.Statuses[string(domain.TaskStatusFailed)] > 0:
		s.Status = domain.RunStatusFailed
	default:
		s.Status = domain.RunStatusSucceeded
	}
	return s
}
