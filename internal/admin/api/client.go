// Package api is the HTTP client the admin CLI talks to a directory
// instance with.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/iudanet/authdir/pkg/api"
)

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient создает новый API клиент
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetToken устанавливает JWT токен для последующих запросов
func (c *Client) SetToken(token string) {
	c.token = token
}

// Login выполняет аутентификацию администратора
func (c *Client) Login(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	err := c.doRequest(ctx, "POST", "/api/v1/auth/login", req, &resp)
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	return &resp, nil
}

// ConflictStats запрашивает сводку по конфликтам
func (c *Client) ConflictStats(ctx context.Context) (*api.ConflictStatsResponse, error) {
	var resp api.ConflictStatsResponse
	err := c.doRequest(ctx, "GET", "/api/v1/conflicts/stats", nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("conflict stats request failed: %w", err)
	}
	return &resp, nil
}

// ListConflicts запрашивает список конфликтов с опциональными фильтрами
func (c *Client) ListConflicts(ctx context.Context, status, kind string) (*api.ConflictListResponse, error) {
	path := "/api/v1/conflicts"
	query := url.Values{}
	if status != "" {
		query.Set("status", status)
	}
	if kind != "" {
		query.Set("kind", kind)
	}
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var resp api.ConflictListResponse
	err := c.doRequest(ctx, "GET", path, nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("list conflicts request failed: %w", err)
	}
	return &resp, nil
}

// GetConflict запрашивает полную запись конфликта
func (c *Client) GetConflict(ctx context.Context, id string) (*api.ConflictDetail, error) {
	var resp api.ConflictDetail
	err := c.doRequest(ctx, "GET", "/api/v1/conflicts/"+url.PathEscape(id), nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("get conflict request failed: %w", err)
	}
	return &resp, nil
}

// ResolveConflict применяет стратегию разрешения к конфликту
func (c *Client) ResolveConflict(ctx context.Context, id string, req api.ResolveRequest) (*api.ConflictDetail, error) {
	var resp api.ConflictDetail
	err := c.doRequest(ctx, "POST", "/api/v1/conflicts/"+url.PathEscape(id)+"/resolve", req, &resp)
	if err != nil {
		return nil, fmt.Errorf("resolve conflict request failed: %w", err)
	}
	return &resp, nil
}

// Scan запускает внеплановый проход детектора
func (c *Client) Scan(ctx context.Context) (*api.ScanResponse, error) {
	var resp api.ScanResponse
	err := c.doRequest(ctx, "POST", "/api/v1/conflicts/scan", nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("scan request failed: %w", err)
	}
	return &resp, nil
}

// ReplicationStatus запрашивает агрегированный статус репликации
func (c *Client) ReplicationStatus(ctx context.Context) (*api.ReplicationStatusResponse, error) {
	var resp api.ReplicationStatusResponse
	err := c.doRequest(ctx, "GET", "/api/v1/replication/status", nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("replication status request failed: %w", err)
	}
	return &resp, nil
}

// Health проверяет доступность инстанса
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var resp api.HealthResponse
	err := c.doRequest(ctx, "GET", "/api/v1/health", nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("health request failed: %w", err)
	}
	return &resp, nil
}

// doRequest выполняет HTTP запрос
func (c *Client) doRequest(ctx context.Context, method, path string, body, result interface{}) error {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Читаем тело ответа
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	// Проверяем статус код
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Message != "" {
			return fmt.Errorf("server error (%d): %s", resp.StatusCode, errResp.Message)
		}
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	// Декодируем успешный ответ
	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
