// internal/client/api.go
// Package client provides an API client for the progminerd control plane.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// APIClient talks to a running progminerd instance.
type APIClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewAPIClient creates a client for a daemon on localhost.
func NewAPIClient(port int) *APIClient {
	return NewAPIClientURL(fmt.Sprintf("http://localhost:%d", port))
}

// NewAPIClientURL creates a client for an explicit base URL.
func NewAPIClientURL(baseURL string) *APIClient {
	return &APIClient{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetHealth calls the health endpoint.
func (c *APIClient) GetHealth() (*HealthResponse, error) {
	resp, err := c.get("/api/v1/health")
	if err != nil {
		return nil, err
	}

	var result HealthResponse
	if err := json.Unmarshal(*resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &result, nil
}

// GetDevices lists the rig's devices and their counters.
func (c *APIClient) GetDevices() ([]DeviceStatus, error) {
	resp, err := c.get("/api/v1/devices")
	if err != nil {
		return nil, err
	}

	var result struct {
		Devices []DeviceStatus `json:"devices"`
	}
	if err := json.Unmarshal(*resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return result.Devices, nil
}

// GetMetrics fetches the aggregated rig metrics.
func (c *APIClient) GetMetrics() (*MetricsResponse, error) {
	resp, err := c.get("/api/v1/metrics")
	if err != nil {
		return nil, err
	}

	var result MetricsResponse
	if err := json.Unmarshal(*resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &result, nil
}

// GetSolutions fetches the retained solution log.
func (c *APIClient) GetSolutions() ([]FoundSolution, error) {
	resp, err := c.get("/api/v1/solutions")
	if err != nil {
		return nil, err
	}

	var result struct {
		Solutions []FoundSolution `json:"solutions"`
	}
	if err := json.Unmarshal(*resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return result.Solutions, nil
}

// GetEpochSeed returns the DAG seed hash for an epoch.
func (c *APIClient) GetEpochSeed(epoch int32) (*EpochResponse, error) {
	resp, err := c.get(fmt.Sprintf("/api/v1/epoch/%d", epoch))
	if err != nil {
		return nil, err
	}

	var result EpochResponse
	if err := json.Unmarshal(*resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &result, nil
}

// SubmitWork posts a work unit for the rig to mine on.
func (c *APIClient) SubmitWork(header common.Hash, height uint64, boundary uint64, startNonce uint64) (*WorkAccepted, error) {
	req := map[string]interface{}{
		"header":      header.Hex(),
		"height":      height,
		"boundary":    fmt.Sprintf("%#x", boundary),
		"start_nonce": startNonce,
	}

	resp, err := c.post("/api/v1/work", req)
	if err != nil {
		return nil, err
	}

	var result WorkAccepted
	if err := json.Unmarshal(*resp, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &result, nil
}

// Shutdown asks the daemon to exit.
func (c *APIClient) Shutdown() error {
	_, err := c.post("/api/v1/shutdown", map[string]interface{}{})
	return err
}

// post makes a POST request to the API
func (c *APIClient) post(endpoint string, data interface{}) (*json.RawMessage, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.HTTPClient.Post(
		c.BaseURL+endpoint,
		"application/json",
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	return c.decode(resp)
}

// get makes a GET request to the API
func (c *APIClient) get(endpoint string) (*json.RawMessage, error) {
	resp, err := c.HTTPClient.Get(c.BaseURL + endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	return c.decode(resp)
}

func (c *APIClient) decode(resp *http.Response) (*json.RawMessage, error) {
	// Read response body first to provide better error messages
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	// Check for non-2xx status codes
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Try to extract error message from response
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return nil, fmt.Errorf("server error (%d): %s", resp.StatusCode, errResp.Error)
		}
		// Truncate response for error message (avoid huge HTML dumps)
		preview := string(respBody)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, preview)
	}

	var result json.RawMessage
	if err := json.Unmarshal(respBody, &result); err != nil {
		preview := string(respBody)
		if len(preview) > 100 {
			preview = preview[:100] + "..."
		}
		return nil, fmt.Errorf("failed to decode JSON response: %w (response: %s)", err, preview)
	}

	return &result, nil
}

// Response types
type HealthResponse struct {
	Status  string `json:"status"`
	Driver  string `json:"driver"`
	Devices int    `json:"devices"`
	Uptime  string `json:"uptime"`
}

type DeviceStats struct {
	WorkDispatched  uint64 `json:"work_dispatched"`
	Polls           uint64 `json:"polls"`
	HashesAttempted uint64 `json:"hashes_attempted"`
	SolutionsFound  uint64 `json:"solutions_found"`
	LastHeight      uint64 `json:"last_height"`
	LastEpoch       int32  `json:"last_epoch"`
}

type DeviceStatus struct {
	Device uint32      `json:"device"`
	Driver string      `json:"driver"`
	Stats  DeviceStats `json:"stats"`
}

type MetricsResponse struct {
	HashesAttempted uint64         `json:"hashes_attempted"`
	SolutionsFound  uint64         `json:"solutions_found"`
	HashRate        float64        `json:"hash_rate"`
	UptimeSeconds   uint64         `json:"uptime_seconds"`
	Devices         []DeviceStatus `json:"devices"`
}

type FoundSolution struct {
	Device  uint32      `json:"device"`
	Height  uint64      `json:"height"`
	Nonce   uint64      `json:"nonce"`
	MixHash common.Hash `json:"mix_hash"`
	Found   time.Time   `json:"found"`
}

type EpochResponse struct {
	Epoch int32  `json:"epoch"`
	Seed  string `json:"seed"`
}

type WorkAccepted struct {
	Height uint64 `json:"height"`
	Epoch  int32  `json:"epoch"`
}
