package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultBaseURL — адрес upstream API по умолчанию.
const DefaultBaseURL = "https://discord.com/api/v10"

// ErrUnauthorized — upstream отклонил токен.
var ErrUnauthorized = errors.New("gateway: unauthorized")

// BotGateway — ответ GET /gateway/bot.
type BotGateway struct {
	URL    string `json:"url"`
	Shards int    `json:"shards"`
}

// Client — HTTP-клиент к upstream API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient создаёт клиент.
func NewClient(baseURL, token string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// BotGateway запрашивает рекомендованные параметры подключения.
func (c *Client) BotGateway(ctx context.Context) (*BotGateway, error) {
	var gw BotGateway
	if err := c.do(ctx, http.MethodGet, "/gateway/bot", nil, &gw); err != nil {
		return nil, err
	}
	return &gw, nil
}

// RecommendedShards возвращает рекомендованное количество шардов.
func (c *Client) RecommendedShards(ctx context.Context) (int, error) {
	gw, err := c.BotGateway(ctx)
	if err != nil {
		return 0, err
	}
	return gw.Shards, nil
}

// ExecuteWebhook отправляет embeds в webhook.
func (c *Client) ExecuteWebhook(ctx context.Context, id, token string, embeds []json.RawMessage) error {
	body := map[string]any{"embeds": embeds}
	return c.do(ctx, http.MethodPost, "/webhooks/"+id+"/"+token, body, nil)
}

// do выполняет запрос и разбирает JSON-ответ в result (если не nil).
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bot "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	if result == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
