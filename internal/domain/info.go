package domain

// TaskInfo — JSON-представление задачи для status-сервиса.
type TaskInfo struct {
	Name         string     `json:"name"`
	Command      string     `json:"command"`
	Type         TaskType   `json:"type"`
	Status       TaskStatus `json:"status"`
	WorkingDir   string     `json:"working_dir"`
	Workflow     string     `json:"workflow,omitempty"`
	Dependencies []string   `json:"dependencies"`
}

// WorkflowInfo — JSON-представление workflow для регистрации в status-сервисе.
type WorkflowInfo struct {
	ID    string              `json:"id,omitempty"`
	Name  string              `json:"name"`
	Host  string              `json:"host,omitempty"`
	Tasks map[string]TaskInfo `json:"tasks"`
}
