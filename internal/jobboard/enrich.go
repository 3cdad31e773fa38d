package jobboard

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/markusmobius/go-trafilatura"
	cache "github.com/patrickmn/go-cache"

	"magabot/internal/models"
	"magabot/internal/security"
)

const (
	maxPageBytes       = 5 << 20
	maxDescriptionSize = 4000
)

// Enricher replaces short API snippets with the full vacancy text from the posting page
type Enricher struct {
	client       *http.Client
	userAgent    string
	robots       *RobotsChecker
	limiter      *RateLimiter
	pages        *cache.Cache
	allowPrivate bool
}

// NewEnricher creates an enricher sharing the search client's limiter
func NewEnricher(userAgent string, limiter *RateLimiter, client *http.Client) *Enricher {
	if client == nil {
		client = &http.Client{
			Timeout: 20 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects (max 10)")
				}
				return nil
			},
		}
	}
	if limiter == nil {
		limiter = NewRateLimiter(2)
	}
	return &Enricher{
		client:    client,
		userAgent: userAgent,
		robots:    NewRobotsChecker(userAgent, client),
		limiter:   limiter,
		pages:     cache.New(6*time.Hour, 30*time.Minute),
	}
}

// Enrich fills the description of up to limit postings. Failures leave the posting as it was.
func (e *Enricher) Enrich(ctx context.Context, postings []models.Posting, limit int) int {
	enriched := 0
	for i := range postings {
		if enriched >= limit || ctx.Err() != nil {
			break
		}
		if postings[i].URL == "" {
			continue
		}
		text, err := e.PageText(ctx, postings[i].URL)
		if err != nil {
			log.Printf("⚠️ [JOBBOARD] Enrichment skipped for %s: %v", postings[i].URL, err)
			continue
		}
		if len(text) > len(postings[i].Description) {
			postings[i].Description = text
			enriched++
		}
	}
	return enriched
}

// PageText fetches a page and extracts its main content, honoring robots.txt
func (e *Enricher) PageText(ctx context.Context, pageURL string) (string, error) {
	parsed, err := e.validateURL(pageURL)
	if err != nil {
		return "", err
	}
	if cached, found := e.pages.Get(pageURL); found {
		return cached.(string), nil
	}

	allowed, delay, err := e.robots.CanFetch(ctx, pageURL)
	if err != nil {
		return "", err
	}
	if !allowed {
		return "", fmt.Errorf("access blocked by robots.txt")
	}
	if err := e.limiter.Wait(ctx, parsed.Host, delay); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP error %d", resp.StatusCode)
	}
	if ct := strings.ToLower(resp.Header.Get("Content-Type")); !strings.Contains(ct, "html") {
		return "", fmt.Errorf("unsupported content type: %s", ct)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read page: %w", err)
	}

	result, err := trafilatura.Extract(bytes.NewReader(body), trafilatura.Options{OriginalURL: parsed})
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}
	if result == nil || strings.TrimSpace(result.ContentText) == "" {
		return "", fmt.Errorf("no content extracted from page")
	}

	text := strings.TrimSpace(result.ContentText)
	if len(text) > maxDescriptionSize {
		text = truncateUTF8(text, maxDescriptionSize)
	}
	e.pages.Set(pageURL, text, cache.DefaultExpiration)
	return text, nil
}

// validateURL only lets public http(s) pages through
func (e *Enricher) validateURL(pageURL string) (*url.URL, error) {
	if e.allowPrivate {
		parsed, err := url.Parse(pageURL)
		if err != nil {
			return nil, fmt.Errorf("invalid URL format: %w", err)
		}
		return parsed, nil
	}
	return security.PublicURL(pageURL, net.LookupIP)
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
