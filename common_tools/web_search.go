package common_tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/Desarso/opsagent/models"
)

const BraveSearchURL = "https://api.search.brave.com/res/v1/web/search"

// BraveClient queries the Brave Search API.
type BraveClient struct {
	APIKey     string // defaults to BRAVE_API_KEY
	BaseURL    string
	HTTPClient *http.Client
}

// Search runs a web search and returns the results formatted as text.
func (b *BraveClient) Search(ctx context.Context, query string, count int) (string, error) {
	apiKey := b.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("BRAVE_API_KEY")
	}
	if apiKey == "" {
		return "", fmt.Errorf("BRAVE_API_KEY environment variable not set")
	}

	baseURL := b.BaseURL
	if baseURL == "" {
		baseURL = BraveSearchURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}

	q := req.URL.Query()
	q.Add("q", query)
	if count > 0 {
		q.Add("count", strconv.Itoa(count))
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", apiKey)

	client := b.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error sending request to Brave Search API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Brave Search API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result SearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("error unmarshalling Brave Search API response: %w", err)
	}
	if result.Query.Original == "" {
		result.Query.Original = query
	}
	return FormatResultsAsText(result), nil
}

type webSearchRequest struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

// WebSearchTool exposes BraveClient as the web_search tool.
func WebSearchTool(client *BraveClient) models.Tool {
	if client == nil {
		client = &BraveClient{}
	}
	return NewTool(models.FunctionDeclaration{
		Name:        "web_search",
		Description: "Search the web using Brave Search. Returns titles, URLs, and snippets.",
		Parameters: models.Parameters{
			Properties: map[string]interface{}{
				"query": stringProp("Search query string"),
				"count": intProp("Number of results (1-20)"),
			},
			Required: []string{"query"},
		},
	}, func(ctx context.Context, req webSearchRequest) (interface{}, error) {
		if req.Count > 20 {
			req.Count = 20
		}
		return client.Search(ctx, req.Query, req.Count)
	})
}

func stripStrongTags(s string) string {
	s = strings.ReplaceAll(s, "<strong>", "")
	s = strings.ReplaceAll(s, "</strong>", "")
	return s
}

func sourceOf(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return "Unknown"
	}
	return strings.TrimPrefix(parsed.Hostname(), "www.")
}

// FormatResultsAsText renders web and news results as numbered text blocks.
func FormatResultsAsText(result SearchResponse) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Search Query: %s\n\n", result.Query.Original)

	b.WriteString("Web Search Results:\n\n")
	if len(result.Web.Results) == 0 {
		b.WriteString("  No web results found.\n")
	}
	for i, r := range result.Web.Results {
		fmt.Fprintf(&b, "%d. Title: %s\n", i+1, stripStrongTags(r.Title))
		fmt.Fprintf(&b, "   URL: %s\n", r.URL)
		fmt.Fprintf(&b, "   Description: %s\n", stripStrongTags(r.Description))
		fmt.Fprintf(&b, "   Source: %s\n\n", sourceOf(r.URL))
	}

	if len(result.News.Results) > 0 {
		b.WriteString("\nNews Results:\n\n")
		for i, n := range result.News.Results {
			fmt.Fprintf(&b, "%d. Title: %s\n", i+1, stripStrongTags(n.Title))
			fmt.Fprintf(&b, "   URL: %s\n", n.URL)
			fmt.Fprintf(&b, "   Description: %s\n", stripStrongTags(n.Description))
			if n.Age != "" {
				fmt.Fprintf(&b, "   Age: %s\n", n.Age)
			}
			fmt.Fprintf(&b, "   Source: %s\n\n", sourceOf(n.URL))
		}
	}

	return b.String()
}
