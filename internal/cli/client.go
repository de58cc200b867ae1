package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// IngestResponse — ответ на запуск выгрузки.
type IngestResponse struct {
	JobID           string `json:"job_id"`
	SyncRunnerJobID string `json:"sync_runner_job_id"`
	TaskID          string `json:"task"`
	FilePath        string `json:"file_path"`
	JobDescription  string `json:"job_description"`
	CalledAt        string `json:"called_at"`
}

// TaskResponse — task из API.
type TaskResponse struct {
	ID     string         `json:"id"`
	JobID  string         `json:"job_id"`
	Kind   string         `json:"kind"`
	State  string         `json:"state"`
	Result map[string]any `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// JobResponse — job из API.
type JobResponse struct {
	JobID string         `json:"job_id"`
	State string         `json:"state"`
	Tasks []TaskResponse `json:"tasks"`
}

// MemberResponse — член стадии promote.
type MemberResponse struct {
	TaskID   string         `json:"task_id"`
	Kind     string         `json:"kind"`
	State    string         `json:"state"`
	Value    map[string]any `json:"value,omitempty"`
	Cause    string         `json:"cause,omitempty"`
	Resolved bool           `json:"resolved"`
}

// StageResponse — стадия promote.
type StageResponse struct {
	Index   int              `json:"index"`
	Name    string           `json:"name"`
	Members []MemberResponse `json:"members"`
}

// MemberErrorResponse — упавший член стадии.
type MemberErrorResponse struct {
	Index  int    `json:"index"`
	TaskID string `json:"task_id"`
	Kind   string `json:"kind"`
	Cause  string `json:"cause"`
}

// FailureResponse — причина остановки promote.
type FailureResponse struct {
	Kind      string                `json:"kind"`
	Stage     int                   `json:"stage"`
	StageName string                `json:"stage_name"`
	Message   string                `json:"message"`
	Members   []MemberErrorResponse `json:"members,omitempty"`
}

// PromoteResponse — итог promote.
type PromoteResponse struct {
	JobID       string           `json:"job_id"`
	SourceJobID string           `json:"source_job_id"`
	Stack       string           `json:"stack"`
	Partition   string           `json:"partition"`
	State       string           `json:"state"`
	Stages      []StageResponse  `json:"stages"`
	Failure     *FailureResponse `json:"failure,omitempty"`
	CalledAt    string           `json:"called_at"`
	DurationMs  int64            `json:"duration_ms"`
}

// StackResponse — stack из API.
type StackResponse struct {
	Name      string `json:"name"`
	Bucket    string `json:"bucket"`
	Prefix    string `json:"prefix"`
	Database  string `json:"database"`
	Table     string `json:"table"`
	CreatedAt string `json:"created_at"`
}

// PartitionResponse — партиция из API.
type PartitionResponse struct {
	Value     string `json:"value"`
	Location  string `json:"location"`
	JobID     string `json:"job_id"`
	CreatedAt string `json:"created_at"`
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

// Client — HTTP-клиент для permitflow API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
// Таймаут покрывает синхронный promote (сумма таймаутов стадий).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 3 * time.Minute,
		},
	}
}

// --- Permits ---

// SubmitReport запускает выгрузку отчёта.
func (c *Client) SubmitReport() (*IngestResponse, error) {
	var ack IngestResponse
	err := c.post("/api/v1/permits/report", nil, &ack)
	return &ack, err
}

// Promote продвигает файл job'а в stack. Итог FAILURE и таймаут
// возвращаются как результат, а не как ошибка.
func (c *Client) Promote(jobID, stack string) (*PromoteResponse, error) {
	var res PromoteResponse
	path := "/api/v1/permits/to-data-store/" + url.PathEscape(jobID) + "/" + url.PathEscape(stack)
	err := c.doData(http.MethodPost, path, nil, &res, http.StatusUnprocessableEntity)
	return &res, err
}

// --- Tasks & jobs ---

// GetTask возвращает состояние task, ожидая на сервере не дольше wait.
func (c *Client) GetTask(id string, wait time.Duration) (*TaskResponse, error) {
	path := "/api/v1/tasks/" + url.PathEscape(id)
	if wait > 0 {
		path += "?" + url.Values{"wait": {wait.String()}}.Encode()
	}

	var task TaskResponse
	err := c.get(path, &task)
	return &task, err
}

// GetJob возвращает сводное состояние job.
func (c *Client) GetJob(id string) (*JobResponse, error) {
	var job JobResponse
	err := c.get("/api/v1/jobs/"+url.PathEscape(id), &job)
	return &job, err
}

// --- Stacks ---

// ListStacks возвращает stack'и.
func (c *Client) ListStacks() ([]StackResponse, error) {
	var stacks []StackResponse
	err := c.list("/api/v1/stacks", nil, &stacks)
	return stacks, err
}

// ListPartitions возвращает партиции stack.
func (c *Client) ListPartitions(stack string) ([]PartitionResponse, error) {
	var partitions []PartitionResponse
	err := c.list("/api/v1/stacks/"+url.PathEscape(stack)+"/partitions", nil, &partitions)
	return partitions, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

// doData выполняет запрос и раскладывает поле data. accept — статусы >= 400,
// тело которых тоже несёт data.
func (c *Client) doData(method, path string, body any, result any, accept ...int) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !slices.Contains(accept, resp.StatusCode) {
		if err := c.checkError(resp); err != nil {
			return err
		}
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

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
