package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
)

const maxFetchBytes = 2 * 1024 * 1024

// FetchTool retrieves a URL and returns its content as text, markdown, or
// raw HTML.
type FetchTool struct {
	client *http.Client
}

// FetchArgs are the tool's input parameters.
type FetchArgs struct {
	URL    string `json:"url"`
	Format string `json:"format,omitempty"`
}

// NewFetchTool creates a fetch tool with the given request timeout.
func NewFetchTool(timeout time.Duration) *FetchTool {
	return &FetchTool{client: &http.Client{Timeout: timeout}}
}

// Name returns the tool name.
func (t *FetchTool) Name() string {
	return "web_fetch"
}

// Description returns what the tool does.
func (t *FetchTool) Description() string {
	return "Fetch content from a URL. Returns the page as plain text, markdown, or raw HTML."
}

// Parameters returns the JSON Schema for the tool's parameters.
func (t *FetchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The URL to fetch. Must start with http:// or https://",
			},
			"format": map[string]any{
				"type":        "string",
				"enum":        []string{"text", "markdown", "html"},
				"default":     "markdown",
				"description": "Output format",
			},
		},
		"required": []string{"url"},
	}
}

// Execute implements Tool.
func (t *FetchTool) Execute(ctx context.Context, args string) (string, error) {
	var params FetchArgs
	if err := json.Unmarshal([]byte(args), &params); err != nil {
		return "", NewValidationError(fmt.Errorf("invalid arguments: %w", err))
	}
	if !strings.HasPrefix(params.URL, "http://") && !strings.HasPrefix(params.URL, "https://") {
		return "", NewValidationError(fmt.Errorf("url must start with http:// or https://"))
	}
	if params.Format == "" {
		params.Format = "markdown"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, params.URL, nil)
	if err != nil {
		return "", NewValidationError(fmt.Errorf("invalid url: %w", err))
	}
	req.Header.Set("User-Agent", "omnibot/1.0")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", NewExecutionError(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", NewExecutionError(fmt.Errorf("unexpected status: %s", resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", NewExecutionError(fmt.Errorf("failed to read body: %w", err))
	}
	html := string(body)

	switch params.Format {
	case "html":
		return html, nil
	case "text":
		return htmlToText(html)
	default:
		return htmlToMarkdown(html)
	}
}

func htmlToText(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", NewExecutionError(fmt.Errorf("failed to parse html: %w", err))
	}
	doc.Find("script, style, noscript").Remove()
	return strings.TrimSpace(doc.Text()), nil
}

func htmlToMarkdown(html string) (string, error) {
	converter := md.NewConverter("", true, nil)
	out, err := converter.ConvertString(html)
	if err != nil {
		return "", NewExecutionError(fmt.Errorf("failed to convert html: %w", err))
	}
	return out, nil
}
