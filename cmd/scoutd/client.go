package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/scoutd/scoutd/internal/launcher"
)

// APIClient provides HTTP client functionality to communicate with the
// scoutd daemon.
type APIClient struct {
	baseURL string
	client  *http.Client
}

// NewAPIClient creates a new API client.
func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if baseURL == "" {
		baseURL = "http://localhost:8080/api"
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// IsReachable checks if the daemon is running and reachable.
func (c *APIClient) IsReachable() bool {
	resp, err := c.client.Get(c.baseURL + "/status")
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode != http.StatusNotFound
}

func decodeAPIError(resp *http.Response) error {
	var errorResp struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
		return fmt.Errorf("API error: status %d", resp.StatusCode)
	}
	return fmt.Errorf("API error: %s", errorResp.Error)
}

// StartRun launches a worker run via API and returns the run id.
func (c *APIClient) StartRun(params launcher.Params) (string, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Post(c.baseURL+"/start", "application/json", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", decodeAPIError(resp)
	}
	var result struct {
		RunID string `json:"run_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.RunID, nil
}

// StopRun stops the active run via API.
func (c *APIClient) StopRun() error {
	resp, err := c.client.Post(c.baseURL+"/stop", "application/json", nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}
	return nil
}

// ResetSupervisor clears retry and breaker state via API.
func (c *APIClient) ResetSupervisor() error {
	resp, err := c.client.Post(c.baseURL+"/reset", "application/json", nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}
	return nil
}

// GetStatus gets supervisor status via API.
func (c *APIClient) GetStatus() (interface{}, error) {
	return c.getJSON(c.baseURL + "/status")
}

// GetRuns lists persisted runs via API.
func (c *APIClient) GetRuns(limit int) (interface{}, error) {
	url := c.baseURL + "/runs"
	if limit > 0 {
		url += fmt.Sprintf("?limit=%d", limit)
	}
	return c.getJSON(url)
}

// GetRunLog fetches persisted log lines of one run via API.
func (c *APIClient) GetRunLog(runID string, limit int) (interface{}, error) {
	url := c.baseURL + "/runs/" + runID + "/log"
	if limit > 0 {
		url += fmt.Sprintf("?limit=%d", limit)
	}
	return c.getJSON(url)
}

// GetLog fetches the buffered tail of the current run via API.
func (c *APIClient) GetLog(limit int) (interface{}, error) {
	url := c.baseURL + "/log"
	if limit > 0 {
		url += fmt.Sprintf("?limit=%d", limit)
	}
	return c.getJSON(url)
}

func (c *APIClient) getJSON(url string) (interface{}, error) {
	resp, err := c.client.Get(url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}
	var result interface{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return result, nil
}
