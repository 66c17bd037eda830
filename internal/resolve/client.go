package resolve

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// RegistryClient queries the external professional registry for candidate
// records. A response may be empty, singleton, or multi-valued; all three are
// valid and handled by the matching policy.
type RegistryClient interface {
	FindCandidates(ctx context.Context, query Query) ([]Candidate, error)
}

// HTTPRegistryClient talks to the registry's JSON find endpoint.
type HTTPRegistryClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPRegistryClient constructs a registry client. timeout bounds each
// lookup; the per-request context can cancel earlier.
func NewHTTPRegistryClient(baseURL, apiKey string, timeout time.Duration) *HTTPRegistryClient {
	return &HTTPRegistryClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type findResponse struct {
	Total   int         `json:"total"`
	Results []Candidate `json:"results"`
}

func (c *HTTPRegistryClient) FindCandidates(ctx context.Context, query Query) ([]Candidate, error) {
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("encode registry query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v3/persons/find", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build registry request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry returned status %d", resp.StatusCode)
	}

	var decoded findResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode registry response: %w", err)
	}
	return decoded.Results, nil
}
