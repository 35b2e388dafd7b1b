package search

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/html"
)

// ErrNoResults is returned when the engine answered but produced nothing
// usable. Callers treat it the same as any other lookup failure: degrade and
// answer without search context.
var ErrNoResults = errors.New("search: no results")

// Result is one web search hit.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Client queries DuckDuckGo's HTML endpoint. No API key is required; the
// endpoint serves plain markup that we parse directly.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	MaxResults int
	UserAgent  string
}

const defaultBaseURL = "https://html.duckduckgo.com/html/"

// browser-like UA; the endpoint rejects obvious bots
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

func NewClient(maxResults int) *Client {
	if maxResults <= 0 {
		maxResults = 5
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		BaseURL:    defaultBaseURL,
		MaxResults: maxResults,
		UserAgent:  defaultUserAgent,
	}
}

// Search performs the lookup and returns at most MaxResults hits.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrNoResults
	}

	u := c.BaseURL + "?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search: status=%d body=%s", resp.StatusCode, string(b))
	}

	results, err := parseResults(resp.Body, c.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("search: parse: %w", err)
	}
	if len(results) == 0 {
		return nil, ErrNoResults
	}
	log.Debug().Int("count", len(results)).Str("query", query).Msg("search results")
	return results, nil
}

// parseResults walks the DuckDuckGo HTML response. Each hit is an anchor with
// class result__a (title + redirect href) followed by a result__snippet node.
func parseResults(r io.Reader, maxResults int) ([]Result, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	var results []Result
	var current *Result
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(results) >= maxResults && current == nil {
			return
		}
		if n.Type == html.ElementNode {
			switch {
			case n.Data == "a" && hasClass(n, "result__a"):
				if current != nil && current.Title != "" {
					results = append(results, *current)
				}
				current = &Result{
					Title: strings.TrimSpace(textContent(n)),
					URL:   resolveRedirect(attr(n, "href")),
				}
			case hasClass(n, "result__snippet"):
				if current != nil && current.Snippet == "" {
					current.Snippet = strings.TrimSpace(textContent(n))
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	if current != nil && current.Title != "" && len(results) < maxResults {
		results = append(results, *current)
	}
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	return results, nil
}

// resolveRedirect unwraps DuckDuckGo's /l/?uddg=<url> redirect links.
func resolveRedirect(href string) string {
	if href == "" {
		return ""
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "" && strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	return href
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

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return b.String()
}
