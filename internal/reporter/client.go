package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shaiso/Dagon/internal/domain"
)

// --- API wrappers (совпадают с internal/api/response.go) ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type createResponse struct {
	ID string `json:"id"`
}

// ClientConfig — конфигурация Client.
type ClientConfig struct {
	// BaseURL — адрес status-сервиса, например http://localhost:8080.
	BaseURL string

	// Timeout — таймаут одного запроса. По умолчанию 30s.
	Timeout time.Duration

	// HTTPClient — готовый клиент (тесты). Timeout тогда не используется.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client — HTTP-клиент status-сервиса. Реализует orchestrator.Reporter.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient проверяет URL, выполняет HEAD-запрос к сервису и возвращает клиент.
// Некорректный URL или недоступный сервис — *ConnectivityError.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, &ConnectivityError{URL: cfg.BaseURL, Err: err}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &ConnectivityError{URL: cfg.BaseURL, Err: errors.New("expected http(s)://host[:port]")}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
	if err := c.Ping(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// BaseURL возвращает адрес сервиса.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ping проверяет доступность сервиса запросом HEAD /.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return &ConnectivityError{URL: c.baseURL, Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ConnectivityError{URL: c.baseURL, Err: err}
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return &ConnectivityError{URL: c.baseURL, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}
	return nil
}

// CreateWorkflow регистрирует workflow и возвращает выданный идентификатор.
// POST /create
func (c *Client) CreateWorkflow(ctx context.Context, info domain.WorkflowInfo) (string, error) {
	var created createResponse
	err := c.doData(ctx, http.MethodPost, "/create", info, &created)
	if err != nil {
		var callErr *RemoteCallError
		if errors.As(err, &callErr) && callErr.Status == http.StatusConflict {
			return "", &RegistrationConflictError{Workflow: info.Name, Message: callErr.Message}
		}
		return "", err
	}
	if created.ID == "" {
		return "", &RemoteCallError{Method: http.MethodPost, Path: "/create", Status: http.StatusOK,
			Message: "empty workflow id"}
	}
	c.logger.Debug("workflow registered", "workflow", info.Name, "workflow_id", created.ID)
	return created.ID, nil
}

// AddTask добавляет описание задачи.
// POST /add_task/{id}
func (c *Client) AddTask(ctx context.Context, workflowID string, task domain.TaskInfo) error {
	return c.doData(ctx, http.MethodPost, "/add_task/"+url.PathEscape(workflowID), task, nil)
}

// UpdateTaskStatus сообщает новый статус задачи.
// PUT /changestatus/{id}/{task}/{status}
func (c *Client) UpdateTaskStatus(ctx context.Context, workflowID, task string, status domain.TaskStatus) error {
	path := "/changestatus/" + segments(workflowID, task, string(status))
	return c.doData(ctx, http.MethodPut, path, nil, nil)
}

// GetTask возвращает задачу в том виде, в каком её видит сервис.
// GET /update/{id}/{task}
func (c *Client) GetTask(ctx context.Context, workflowID, task string) (*domain.TaskInfo, error) {
	var info domain.TaskInfo
	if err := c.doData(ctx, http.MethodGet, "/update/"+segments(workflowID, task), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// UpdateTask меняет атрибут задачи (например, working_dir).
// PUT /update/{id}/{task}/{attribute}?value=...
func (c *Client) UpdateTask(ctx context.Context, workflowID, task, attribute, value string) error {
	path := "/update/" + segments(workflowID, task, attribute) + "?" + url.Values{"value": {value}}.Encode()
	return c.doData(ctx, http.MethodPut, path, nil, nil)
}

// AddDependency сообщает ребро task → dependency.
// PUT /{id}/{task}/dependency/{dependency}
func (c *Client) AddDependency(ctx context.Context, workflowID, task, dependency string) error {
	path := "/" + segments(workflowID, task, "dependency", dependency)
	return c.doData(ctx, http.MethodPut, path, nil, nil)
}

// --- HTTP helpers ---

func segments(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return strings.Join(escaped, "/")
}

func (c *Client) doData(ctx context.Context, method, path string, body, result any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return &RemoteCallError{Method: method, Path: path, Err: err}
	}
	defer resp.Body.Close()

	if err := checkError(method, path, resp); err != nil {
		return err
	}

	if resp.StatusCode == http.StatusNoContent || result == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return &RemoteCallError{Method: method, Path: path, Status: resp.StatusCode,
			Err: fmt.Errorf("decode response: %w", err)}
	}
	if err := json.Unmarshal(dr.Data, result); err != nil {
		return &RemoteCallError{Method: method, Path: path, Status: resp.StatusCode,
			Err: fmt.Errorf("decode data: %w", err)}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func checkError(method, path string, resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	callErr := &RemoteCallError{Method: method, Path: path, Status: resp.StatusCode}
	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err == nil {
		callErr.Code = er.Error.Code
		callErr.Message = er.Error.Message
	}
	return callErr
}
