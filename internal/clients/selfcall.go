// Package clients holds the HTTP client checkout uses to call its sibling
// endpoints. The calls go over the wire on purpose: each hop lands in the
// telemetry store under the shared trace id, which is what gives the RCA
// engine a dependency chain to replay.
package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/platformbuilds/vigia/pkg/logger"
)

// TraceIDHeader carries the request trace id across self-calls.
const TraceIDHeader = "X-Trace-ID"

// SelfClient is a REST client for the service's own endpoints.
type SelfClient struct {
	baseURL string
	client  *http.Client
	logger  logger.Logger
}

func NewSelfClient(baseURL string, timeout time.Duration, log logger.Logger) *SelfClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SelfClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  log,
	}
}

// PostPayment charges the order, propagating the caller's trace id.
func (c *SelfClient) PostPayment(ctx context.Context, traceID string) (map[string]any, error) {
	return c.call(ctx, http.MethodPost, "/payment", traceID)
}

// GetInventory verifies stock, propagating the caller's trace id.
func (c *SelfClient) GetInventory(ctx context.Context, traceID string) (map[string]any, error) {
	return c.call(ctx, http.MethodGet, "/inventory", traceID)
}

func (c *SelfClient) call(ctx context.Context, method, path, traceID string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s %s request: %w", method, path, err)
	}
	if traceID != "" {
		req.Header.Set(TraceIDHeader, traceID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%s %s returned status %d: %s", method, path, resp.StatusCode, string(body))
	}

	var decoded map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode %s %s response: %w", method, path, err)
	}
	return decoded, nil
}
