// File path: internal/websearch/websearch.go
package websearch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/agrisense/farmchat/internal/common"
)

// NoInformationFound is the sentinel returned whenever the fallback cannot
// produce grounding text. Web search is best-effort augmentation: nothing
// here may fail past this boundary.
const NoInformationFound = "관련 정보를 찾을 수 없습니다."

const defaultMaxChars = 1000

type Config struct {
	// SearchURL is an HTML search endpoint taking a q parameter.
	SearchURL string
	UserAgent string
	// MaxChars caps the extracted page text handed to the generator.
	MaxChars int
	Timeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		SearchURL: "https://html.duckduckgo.com/html/",
		UserAgent: "Mozilla/5.0",
		MaxChars:  defaultMaxChars,
		Timeout:   10 * time.Second,
	}
}

type Client struct {
	httpClient *http.Client
	cfg        Config
}

func New(cfg Config) *Client {
	if strings.TrimSpace(cfg.SearchURL) == "" {
		cfg.SearchURL = DefaultConfig().SearchURL
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = DefaultConfig().UserAgent
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = defaultMaxChars
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
	}
}

// Search runs a web search and returns the readable text of the first result
// page that yields any, prefixed with its source URL. Every failure mode
// degrades to the sentinel string.
func (c *Client) Search(ctx context.Context, query string, numResults int) string {
	logger := common.Logger()
	if strings.TrimSpace(query) == "" {
		return NoInformationFound
	}
	if numResults <= 0 {
		numResults = 2
	}
	links, err := c.searchLinks(ctx, query, numResults)
	if err != nil {
		logger.Warn("websearch: search failed", "error", err)
		return NoInformationFound
	}
	if len(links) == 0 {
		logger.Info("websearch: no results", "query", query)
		return NoInformationFound
	}
	for _, link := range links {
		text, err := c.extractText(ctx, link)
		if err != nil {
			logger.Warn("websearch: page extraction failed", "url", link, "error", err)
			continue
		}
		if text == "" {
			continue
		}
		return fmt.Sprintf("[출처: %s]\n%s", link, clip(text, c.cfg.MaxChars))
	}
	return NoInformationFound
}

func (c *Client) searchLinks(ctx context.Context, query string, limit int) ([]string, error) {
	endpoint := c.cfg.SearchURL + "?q=" + url.QueryEscape(query)
	root, err := c.fetchHTML(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if len(links) >= limit {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "result__a") {
			if href := attr(n, "href"); href != "" {
				if resolved := resolveResultURL(href); resolved != "" {
					links = append(links, resolved)
				}
			}
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)
	return links, nil
}

func (c *Client) extractText(ctx context.Context, pageURL string) (string, error) {
	root, err := c.fetchHTML(ctx, pageURL)
	if err != nil {
		return "", err
	}
	var paragraphs []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "p" {
			if text := strings.TrimSpace(nodeText(n)); text != "" {
				paragraphs = append(paragraphs, text)
			}
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)
	return strings.Join(paragraphs, " "), nil
}

func (c *Client) fetchHTML(ctx context.Context, endpoint string) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", endpoint, resp.StatusCode)
	}
	return html.Parse(resp.Body)
}

// resolveResultURL unwraps search-engine redirect links of the form
// //host/l/?uddg=<escaped-target> down to the target URL.
func resolveResultURL(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := parsed.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, field := range strings.Fields(attr(n, "class")) {
		if field == class {
			return true
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

func nodeText(n *html.Node) string {
	var builder strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			builder.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(builder.String()), " ")
}

func clip(text string, limit int) string {
	runes := []rune(text)
	if limit <= 0 || len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
