package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/iudanet/authdir/pkg/api"
)

// PeerClient polls one directory instance for its node status.
type PeerClient interface {
	NodeStatus(ctx context.Context, baseURL string) (*api.NodeStatusResponse, error)
}

// HTTPPeerClient представляет HTTP клиент для опроса пиров
type HTTPPeerClient struct {
	httpClient *http.Client
}

// NewPeerClient создает клиент опроса с заданным таймаутом
func NewPeerClient(timeout time.Duration) *HTTPPeerClient {
	return &HTTPPeerClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NodeStatus запрашивает статус узла у пира
func (c *HTTPPeerClient) NodeStatus(ctx context.Context, baseURL string) (*api.NodeStatusResponse, error) {
	url := baseURL + "/api/v1/replication/node"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("peer returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var status api.NodeStatusResponse
	if err := json.Unmarshal(respBody, &status); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &status, nil
}
