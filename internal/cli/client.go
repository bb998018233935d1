package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// --- Response types (дублируются из api, CLI не импортирует internal/api) ---

// OperationResponse — операция из API.
type OperationResponse struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	MTAID          string `json:"mta_id"`
	Namespace      string `json:"namespace,omitempty"`
	SpaceID        string `json:"space_id"`
	OrgID          string `json:"org_id"`
	User           string `json:"user,omitempty"`
	State          string `json:"state"`
	AbortRequested bool   `json:"abort_requested,omitempty"`
	Error          string `json:"error,omitempty"`
	StartedAt      string `json:"started_at"`
	EndedAt        string `json:"ended_at,omitempty"`
}

// IsTerminal возвращает true, если операция завершена.
func (o *OperationResponse) IsTerminal() bool {
	switch o.State {
	case "FINISHED", "ABORTED":
		return true
	}
	return false
}

// MessageResponse — progress-сообщение операции из API.
type MessageResponse struct {
	ID        int64  `json:"id"`
	TaskID    string `json:"task_id"`
	Type      string `json:"type"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// --- Request types ---

// StartOperationRequest — запуск операции.
type StartOperationRequest struct {
	Type       string `json:"type"`
	OrgID      string `json:"org_id"`
	SpaceID    string `json:"space_id"`
	Namespace  string `json:"namespace,omitempty"`
	User       string `json:"user,omitempty"`
	Descriptor string `json:"descriptor"`
}

// ListOperationsOpts — параметры фильтрации операций.
type ListOperationsOpts struct {
	MTAID   string
	SpaceID string
	State   string
	Limit   int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data json.RawMessage `json:"data"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Convoy API.
//
// Все запросы одной сессии CLI уходят с общим X-Correlation-ID,
// чтобы их можно было связать в логах API.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	correlationID string
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:       baseURL,
		correlationID: uuid.New().String(),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// StartOperation запускает операцию деплоя.
func (c *Client) StartOperation(req StartOperationRequest) (*OperationResponse, error) {
	var op OperationResponse
	err := c.post("/api/v1/operations", req, &op)
	return &op, err
}

// ListOperations возвращает операции с фильтрацией.
func (c *Client) ListOperations(opts ListOperationsOpts) ([]OperationResponse, error) {
	params := url.Values{}
	if opts.MTAID != "" {
		params.Set("mta_id", opts.MTAID)
	}
	if opts.SpaceID != "" {
		params.Set("space_id", opts.SpaceID)
	}
	if opts.State != "" {
		params.Set("state", opts.State)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var ops []OperationResponse
	err := c.list("/api/v1/operations", params, &ops)
	return ops, err
}

// GetOperation возвращает операцию по ID.
func (c *Client) GetOperation(id string) (*OperationResponse, error) {
	var op OperationResponse
	err := c.get("/api/v1/operations/"+id, &op)
	return &op, err
}

// AbortOperation запрашивает отмену операции.
func (c *Client) AbortOperation(id string) error {
	return c.post("/api/v1/operations/"+id+"/abort", nil, nil)
}

// ResumeOperation возобновляет операцию из статуса ERROR.
func (c *Client) ResumeOperation(id string) (*OperationResponse, error) {
	var op OperationResponse
	err := c.post("/api/v1/operations/"+id+"/resume", nil, &op)
	return &op, err
}

// ListMessages возвращает progress-сообщения операции после after.
func (c *Client) ListMessages(id string, after int64) ([]MessageResponse, error) {
	params := url.Values{}
	if after > 0 {
		params.Set("after", strconv.FormatInt(after, 10))
	}

	var msgs []MessageResponse
	err := c.list("/api/v1/operations/"+id+"/messages", params, &msgs)
	return msgs, err
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

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

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
	req.Header.Set("X-Correlation-ID", c.correlationID)

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
