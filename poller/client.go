package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// APIClient lists the caller's generation jobs over the HTTP API. Implements
// JobLister for use with Poller.
type APIClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewAPIClient(baseURL, token string) *APIClient {
	return &APIClient{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *APIClient) ListJobs(ctx context.Context) ([]JobState, error) {
	url := fmt.Sprintf("%s/api/v1/render/generations", c.BaseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list jobs returned %d", resp.StatusCode)
	}

	var payload struct {
		Generations []JobState `json:"generations"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode job list: %w", err)
	}

	return payload.Generations, nil
}
