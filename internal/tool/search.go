package tool

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const (
	searchTimeout    = 15 * time.Second
	searchMaxBytes   = 512 * 1024
	searchMaxResults = 20
	userAgentString  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

// PageFetcher retrieves a rendered page as HTML. Implemented by the
// headless-browser fetcher for pages that block plain HTTP clients.
type PageFetcher interface {
	Fetch(ctx context.Context, pageURL string) (string, error)
}

// SearchTool queries Bing and scrapes the organic result blocks.
type SearchTool struct {
	client   *http.Client
	fallback PageFetcher // optional, used when the direct request fails
	logger   *slog.Logger
	endpoint string // overridable in tests
}

type searchInput struct {
	Query      string `mapstructure:"query"`
	NumResults int    `mapstructure:"num_results"`
}

func NewSearchTool(logger *slog.Logger, fallback PageFetcher) *SearchTool {
	return &SearchTool{
		client:   &http.Client{Timeout: searchTimeout},
		fallback: fallback,
		logger:   logger,
		endpoint: "https://www.bing.com/search",
	}
}

func (t *SearchTool) Name() string { return "search" }

func (t *SearchTool) Description() string {
	return "使用搜索引擎查找问题的答案"
}

func (t *SearchTool) Parameters() map[string]any {
	return Schema(
		map[string]Param{
			"query":       {Type: "string", Description: "搜索查询关键词"},
			"num_results": {Type: "integer", Description: "返回结果数量，默认为5", Default: 5},
		},
		[]string{"query"},
	)
}

func (t *SearchTool) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	var in searchInput
	if err := DecodeInput(t.Name(), input, &in); err != nil {
		return nil, err
	}
	if in.NumResults <= 0 {
		in.NumResults = 5
	}
	if in.NumResults > searchMaxResults {
		in.NumResults = searchMaxResults
	}

	page, err := t.fetchResultsPage(ctx, in.Query)
	if err != nil {
		return nil, err
	}

	results := parseBingResults(page, in.NumResults)
	items := make([]map[string]any, 0, len(results))
	for _, r := range results {
		items = append(items, map[string]any{
			"title":   r.Title,
			"link":    r.Link,
			"snippet": r.Snippet,
		})
	}
	return map[string]any{"results": items}, nil
}

// fetchResultsPage fetches the Bing results page, falling back to the
// headless browser when the direct request is refused.
func (t *SearchTool) fetchResultsPage(ctx context.Context, query string) (string, error) {
	endpoint := t.endpoint + "?q=" + url.QueryEscape(query)

	page, err := t.fetchDirect(ctx, endpoint)
	if err == nil {
		return page, nil
	}

	if t.fallback != nil {
		t.logger.Warn("direct search request failed, using browser fallback", "error", err)
		page, fbErr := t.fallback.Fetch(ctx, endpoint)
		if fbErr == nil {
			return page, nil
		}
		return "", fmt.Errorf("search fetch failed (direct: %v, browser: %w)", err, fbErr)
	}
	return "", err
}

func (t *SearchTool) fetchDirect(ctx context.Context, endpoint string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgentString)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("search returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, searchMaxBytes))
	if err != nil {
		return "", fmt.Errorf("read search response: %w", err)
	}
	return string(body), nil
}

// SearchResult is one organic result scraped from the page.
type SearchResult struct {
	Title   string
	Link    string
	Snippet string
}

// parseBingResults walks the result page and extracts up to limit organic
// results. Bing marks each organic hit with an element of class "b_algo";
// the title and link live in "h2 > a" and the snippet in the caption block.
func parseBingResults(page string, limit int) []SearchResult {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil
	}

	var results []SearchResult
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= limit {
			return
		}
		if n.Type == html.ElementNode && hasClass(n, "b_algo") {
			if r, ok := parseResultBlock(n); ok {
				results = append(results, r)
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return results
}

func parseResultBlock(block *html.Node) (SearchResult, bool) {
	var r SearchResult

	if h2 := findElement(block, "h2"); h2 != nil {
		if a := findElement(h2, "a"); a != nil {
			r.Title = strings.TrimSpace(nodeText(a))
			r.Link = attrValue(a, "href")
		}
	}
	if caption := findByClass(block, "b_caption"); caption != nil {
		if p := findElement(caption, "p"); p != nil {
			r.Snippet = strings.TrimSpace(nodeText(p))
		}
	}

	if r.Title == "" || r.Snippet == "" {
		return SearchResult{}, false
	}
	return r, true
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func findElement(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func findByClass(n *html.Node, class string) *html.Node {
	if n.Type == html.ElementNode && hasClass(n, class) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findByClass(c, class); found != nil {
			return found
		}
	}
	return nil
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(nodeText(c))
	}
	return sb.String()
}
