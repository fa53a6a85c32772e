package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultSearchBaseURL = "https://api.search.brave.com/v1/web/search"
	maxSearchResults     = 5
)

// SearchTool queries the Brave Search API and returns the top results as a
// numbered list of title, URL, and description.
type SearchTool struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// SearchArgs are the tool's input parameters.
type SearchArgs struct {
	Query string `json:"query"`
}

// searchResponse is the API response shape.
type searchResponse struct {
	Results []struct {
		Title       string `json:"title"`
		URL         string `json:"url"`
		Description string `json:"description"`
	} `json:"results"`
}

// NewSearchTool creates a search tool with the given API key and request
// timeout.
func NewSearchTool(apiKey string, timeout time.Duration) *SearchTool {
	return &SearchTool{
		apiKey:  apiKey,
		baseURL: defaultSearchBaseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the tool name.
func (t *SearchTool) Name() string {
	return "web_search"
}

// Description returns what the tool does.
func (t *SearchTool) Description() string {
	return "Search the web. Returns the top results with title, URL, and description."
}

// Parameters returns the JSON Schema for the tool's parameters.
func (t *SearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query",
			},
		},
		"required": []string{"query"},
	}
}

// Execute implements Tool.
func (t *SearchTool) Execute(ctx context.Context, args string) (string, error) {
	var params SearchArgs
	if err := json.Unmarshal([]byte(args), &params); err != nil {
		return "", NewValidationError(fmt.Errorf("invalid arguments: %w", err))
	}
	query := strings.TrimSpace(params.Query)
	if query == "" {
		return "", NewValidationError(fmt.Errorf("query cannot be empty"))
	}

	reqURL := t.baseURL + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", NewExecutionError(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", t.apiKey)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", NewExecutionError(fmt.Errorf("search request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", NewExecutionError(fmt.Errorf("failed to read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return "", NewExecutionError(fmt.Errorf("search API returned %s", resp.Status))
	}

	var parsed searchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", NewExecutionError(fmt.Errorf("failed to parse response: %w", err))
	}
	if len(parsed.Results) == 0 {
		return "No results found.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Search results for '%s':\n\n", query)
	for i, r := range parsed.Results {
		if i == maxSearchResults {
			break
		}
		fmt.Fprintf(&b, "%d. %s\n   URL: %s\n   %s\n\n", i+1, r.Title, r.URL, r.Description)
	}
	return strings.TrimSpace(b.String()), nil
}
