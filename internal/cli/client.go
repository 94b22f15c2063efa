package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// --- Response types (дублируются из api/dto.go, status-команды работают только через HTTP) ---

// WorkflowSummary — строка списка workflow монитора.
type WorkflowSummary struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Host      string         `json:"host,omitempty"`
	Tasks     int            `json:"tasks"`
	Statuses  map[string]int `json:"statuses"`
	Status    string         `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TaskState — задача в мониторе.
type TaskState struct {
	Name         string   `json:"name"`
	Command      string   `json:"command"`
	Type         string   `json:"type"`
	Status       string   `json:"status"`
	WorkingDir   string   `json:"working_dir"`
	Dependencies []string `json:"dependencies"`
}

// WorkflowState — workflow со всеми задачами.
type WorkflowState struct {
	ID        string                `json:"id"`
	Name      string                `json:"name"`
	Host      string                `json:"host,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
	UpdatedAt time.Time             `json:"updated_at"`
	Tasks     map[string]*TaskState `json:"tasks"`
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// MonitorClient — HTTP-клиент просмотра монитора (dagon-monitor).
type MonitorClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewMonitorClient создаёт клиент.
func NewMonitorClient(baseURL string, timeout time.Duration) *MonitorClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &MonitorClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ListWorkflows возвращает сводку по всем workflow.
func (c *MonitorClient) ListWorkflows(ctx context.Context) ([]WorkflowSummary, int, error) {
	var result []WorkflowSummary
	total, err := c.list(ctx, "/workflows", &result)
	return result, total, err
}

// GetWorkflow возвращает workflow по ID.
func (c *MonitorClient) GetWorkflow(ctx context.Context, id string) (*WorkflowState, error) {
	var wf WorkflowState
	if err := c.doData(ctx, http.MethodGet, "/workflows/"+url.PathEscape(id), nil, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// DeleteWorkflow удаляет workflow из монитора.
func (c *MonitorClient) DeleteWorkflow(ctx context.Context, id string) error {
	return c.doData(ctx, http.MethodDelete, "/workflows/"+url.PathEscape(id), nil, nil)
}

// --- HTTP helpers ---

func (c *MonitorClient) list(ctx context.Context, path string, result any) (int, error) {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := checkError(resp); err != nil {
		return 0, err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}
	return lr.Total, json.Unmarshal(lr.Data, result)
}

func (c *MonitorClient) doData(ctx context.Context, method, path string, body, result any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *MonitorClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("monitor error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
