package scraper

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/NathanLabbe/local-rag/internal/logger"
	"github.com/NathanLabbe/local-rag/internal/models"
)

const maxPageBytes = 10 << 20

type ScraperConfig struct {
	// MaxDepth is how many links away from the start page to follow; 0
	// fetches only the start page.
	MaxDepth          int
	RateLimit         float64 // requests per second
	IgnorePatterns    []string
	AllowedExtensions []string
	Timeout           time.Duration
	OnProgress        func(url string)
	HTTPClient        *http.Client
}

// Scraper crawls a site and turns each HTML page into a source document.
// A Scraper may run several crawls at once; they share its rate limit.
type Scraper struct {
	config  ScraperConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewWithConfig(config ScraperConfig) (*Scraper, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxDepth < 0 {
		return nil, fmt.Errorf("%w: max depth must not be negative", models.ErrInvalidInput)
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	return &Scraper{
		config:  config,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

// crawl is the state of one Scrape call.
type crawl struct {
	host    string
	visited map[string]bool
	docs    []models.SourceDocument
}

// Scrape fetches startURL and same-host pages linked from it up to MaxDepth.
// Only a failure on the start page is returned; later pages are logged and
// skipped.
func (s *Scraper) Scrape(ctx context.Context, startURL string) ([]models.SourceDocument, error) {
	parsed, err := url.Parse(startURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q is not an http(s) URL", models.ErrInvalidInput, startURL)
	}
	parsed.Fragment = ""

	c := &crawl{host: parsed.Host, visited: make(map[string]bool)}
	if err := s.scrapeRecursive(ctx, c, parsed.String(), 0); err != nil {
		return nil, err
	}
	logger.Info("crawled %s: %d pages", startURL, len(c.docs))
	return c.docs, nil
}

func (s *Scraper) shouldProcessURL(c *crawl, urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	if parsedURL.Host != c.host {
		return false
	}

	ext := strings.ToLower(parsedURL.Path)
	validExt := false
	for _, allowedExt := range s.config.AllowedExtensions {
		if allowedExt == "" && !strings.Contains(ext[strings.LastIndex(ext, "/")+1:], ".") {
			validExt = true
			break
		}
		if allowedExt != "" && strings.HasSuffix(ext, allowedExt) {
			validExt = true
			break
		}
	}
	if !validExt {
		return false
	}

	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(urlStr, pattern) {
			return false
		}
	}

	return true
}

func (s *Scraper) scrapeRecursive(ctx context.Context, c *crawl, urlStr string, depth int) error {
	if depth > s.config.MaxDepth || c.visited[urlStr] {
		return nil
	}
	if !s.shouldProcessURL(c, urlStr) {
		return nil
	}
	c.visited[urlStr] = true

	if s.config.OnProgress != nil {
		s.config.OnProgress(urlStr)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	doc, err := s.fetch(ctx, urlStr)
	if err != nil {
		return err
	}
	if doc == nil {
		return nil
	}

	title, text := extract(doc)
	if text != "" {
		name := title
		if name == "" {
			name = urlStr
		}
		c.docs = append(c.docs, models.SourceDocument{
			Name:    name,
			Source:  "web:" + urlStr,
			Content: text,
		})
	}

	if depth == s.config.MaxDepth {
		return nil
	}

	base, _ := url.Parse(urlStr)
	var links []string
	doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		href, _ := selection.Attr("href")
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			logger.Debug("skipping link %q on %s: %v", href, urlStr, err)
			return
		}
		abs := base.ResolveReference(ref)
		abs.Fragment = ""
		links = append(links, abs.String())
	})

	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.scrapeRecursive(ctx, c, link, depth+1); err != nil {
			logger.Warn("error scraping %s: %v", link, err)
		}
	}
	return nil
}

// fetch returns nil without error for non-HTML responses.
func (s *Scraper) fetch(ctx context.Context, urlStr string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "local-rag/1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		mediaType, _, _ := mime.ParseMediaType(ct)
		if mediaType != "text/html" && mediaType != "application/xhtml+xml" {
			logger.Debug("skipping %s: content type %s", urlStr, mediaType)
			return nil, nil
		}
	}

	return goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPageBytes))
}

// ExtractText parses an HTML document and returns its title and main text.
func ExtractText(r io.Reader) (title, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", "", fmt.Errorf("parse html: %w", err)
	}
	title, text = extract(doc)
	return title, text, nil
}

func extract(doc *goquery.Document) (title, text string) {
	title = strings.TrimSpace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript, template, nav, header, footer").Remove()
	return title, extractMainContent(doc)
}

func extractMainContent(doc *goquery.Document) string {
	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
		".documentation",
		"#documentation",
	}

	var content string
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = blockText(selected)
			break
		}
	}

	if strings.TrimSpace(content) == "" {
		content = blockText(doc.Find("body"))
	}

	return cleanContent(content)
}

// blockText keeps a line break after block elements so paragraph
// boundaries survive for the chunker.
func blockText(sel *goquery.Selection) string {
	sel.Find("p, div, section, li, h1, h2, h3, h4, h5, h6, pre, blockquote, tr, br").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n\n")
	})
	return sel.Text()
}

func cleanContent(content string) string {
	noisePatterns := []string{
		"Cookie Policy",
		"Accept Cookies",
		"Privacy Policy",
		"Terms of Service",
	}

	var paragraphs []string
	for _, block := range strings.Split(content, "\n\n") {
		line := strings.Join(strings.Fields(block), " ")
		for _, pattern := range noisePatterns {
			line = strings.ReplaceAll(line, pattern, "")
		}
		if line = strings.TrimSpace(line); line != "" {
			paragraphs = append(paragraphs, line)
		}
	}
	return strings.Join(paragraphs, "\n\n")
}
