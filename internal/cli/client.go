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
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// WorkerResponse — воркер из API.
type WorkerResponse struct {
	ID         int    `json:"id"`
	PID        int    `json:"pid"`
	Status     string `json:"status"`
	Shards     string `json:"shards"`
	ShardCount int    `json:"shard_count"`
	Restarts   int    `json:"restarts"`
	SpawnedAt  string `json:"spawned_at"`
}

// PlanResponse — план шардов из API.
type PlanResponse struct {
	TotalShards    int  `json:"total_shards"`
	Recommended    int  `json:"recommended"`
	GuildsPerShard int  `json:"guilds_per_shard"`
	Explicit       bool `json:"explicit"`
}

// WorkerStatsResponse — статистика одного воркера.
type WorkerStatsResponse struct {
	Cluster int     `json:"cluster"`
	Shards  int     `json:"shards"`
	Guilds  int     `json:"guilds"`
	Users   int     `json:"users"`
	RAM     float64 `json:"ram"`
	Uptime  int64   `json:"uptime"`
}

// StatsResponse — агрегат статистики из API.
type StatsResponse struct {
	Round       string                `json:"round"`
	Guilds      int                   `json:"guilds"`
	Users       int                   `json:"users"`
	Shards      int                   `json:"shards"`
	TotalRAM    float64               `json:"total_ram"`
	Clusters    []WorkerStatsResponse `json:"clusters"`
	Complete    bool                  `json:"complete"`
	Missing     []int                 `json:"missing,omitempty"`
	CollectedAt string                `json:"collected_at"`
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

// Client — HTTP-клиент для API оркестратора.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Workers ---

// ListWorkers возвращает воркеров по возрастанию id.
func (c *Client) ListWorkers() ([]WorkerResponse, error) {
	var workers []WorkerResponse
	err := c.list("/api/v1/workers", nil, &workers)
	return workers, err
}

// GetPlan возвращает план шардов.
func (c *Client) GetPlan() (*PlanResponse, error) {
	var plan PlanResponse
	err := c.get("/api/v1/plan", &plan)
	return &plan, err
}

// --- Stats ---

// GetStats возвращает последний агрегат статистики.
func (c *Client) GetStats() (*StatsResponse, error) {
	var stats StatsResponse
	err := c.get("/api/v1/stats", &stats)
	return &stats, err
}

// StatsHistory возвращает последние агрегаты из архива.
func (c *Client) StatsHistory(limit int) ([]StatsResponse, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var history []StatsResponse
	err := c.list("/api/v1/stats/history", params, &history)
	return history, err
}

// CollectStats запускает внеочередной раунд сбора статистики.
func (c *Client) CollectStats() error {
	return c.post("/api/v1/stats/collect", nil, nil)
}

// --- Messaging ---

// Broadcast рассылает сообщение всем воркерам и возвращает число получателей.
func (c *Client) Broadcast(msg json.RawMessage) (int, error) {
	body := map[string]json.RawMessage{"message": msg}
	var resp struct {
		Recipients int `json:"recipients"`
	}
	err := c.post("/api/v1/broadcast", body, &resp)
	return resp.Recipients, err
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

	// 202 Accepted / 204 No Content
	if resp.StatusCode == http.StatusAccepted || resp.StatusCode == http.StatusNoContent {
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
