package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// TavilyAPIEndpoint is the Tavily search API endpoint.
	TavilyAPIEndpoint = "https://api.tavily.com/search"

	// DefaultMaxResults is the number of hits requested per query.
	DefaultMaxResults = 5
)

// TavilyClient implements Provider using the Tavily search API.
type TavilyClient struct {
	apiKey     string
	endpoint   string
	maxResults int
	client     *http.Client
}

// Compile-time check that TavilyClient implements Provider.
var _ Provider = (*TavilyClient)(nil)

// NewTavilyClient creates a new Tavily search client.
// If maxResults is 0, uses DefaultMaxResults.
func NewTavilyClient(apiKey string, maxResults int) (*TavilyClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key required for Tavily search")
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	return &TavilyClient{
		apiKey:     apiKey,
		endpoint:   TavilyAPIEndpoint,
		maxResults: maxResults,
		client:     &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// tavilyRequest is the request format for the Tavily API.
type tavilyRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// tavilyResponse is the response format from the Tavily API.
type tavilyResponse struct {
	Results []struct {
		Title         string `json:"title"`
		URL           string `json:"url"`
		Content       string `json:"content"`
		PublishedDate string `json:"published_date"`
	} `json:"results"`
}

// Search executes one query and returns raw hits.
func (c *TavilyClient) Search(ctx context.Context, query string) ([]Result, error) {
	reqBody := tavilyRequest{
		APIKey:     c.apiKey,
		Query:      query,
		MaxResults: c.maxResults,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		return nil, fmt.Errorf("%w: status %d", ErrThrottled, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	var tavilyResp tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&tavilyResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	results := make([]Result, 0, len(tavilyResp.Results))
	for _, r := range tavilyResp.Results {
		results = append(results, Result{
			Title:         r.Title,
			URL:           r.URL,
			Content:       r.Content,
			PublishedDate: r.PublishedDate,
		})
	}

	return results, nil
}
