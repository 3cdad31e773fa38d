package jobboard

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/temoto/robotstxt"
)

const defaultCrawlDelay = time.Second

// RobotsChecker fetches and caches robots.txt per origin
type RobotsChecker struct {
	cache     *cache.Cache
	userAgent string
	client    *http.Client
}

// NewRobotsChecker caches each origin's rules for 24 hours
func NewRobotsChecker(userAgent string, client *http.Client) *RobotsChecker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RobotsChecker{
		cache:     cache.New(24*time.Hour, time.Hour),
		userAgent: userAgent,
		client:    client,
	}
}

// CanFetch reports whether the page may be fetched and the crawl delay to honor.
// A missing or unreadable robots.txt allows everything.
func (rc *RobotsChecker) CanFetch(ctx context.Context, pageURL string) (bool, time.Duration, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return false, 0, fmt.Errorf("invalid URL: %w", err)
	}
	origin := parsed.Scheme + "://" + parsed.Host

	robots, ok := rc.lookup(ctx, origin)
	if !ok {
		return true, defaultCrawlDelay, nil
	}
	group := robots.FindGroup(rc.userAgent)
	return group.Test(parsed.Path), crawlDelay(group), nil
}

func (rc *RobotsChecker) lookup(ctx context.Context, origin string) (*robotstxt.RobotsData, bool) {
	if cached, found := rc.cache.Get(origin); found {
		robots, ok := cached.(*robotstxt.RobotsData)
		return robots, ok
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil, false
	}
	req.Header.Set("User-Agent", rc.userAgent)

	resp, err := rc.client.Do(req)
	if err != nil {
		return nil, false
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, false
	}
	robots, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, false
	}
	rc.cache.Set(origin, robots, cache.DefaultExpiration)
	return robots, true
}

func crawlDelay(group *robotstxt.Group) time.Duration {
	if group == nil || group.CrawlDelay <= 0 {
		return defaultCrawlDelay
	}
	if group.CrawlDelay > 10*time.Second {
		return 10 * time.Second
	}
	return group.CrawlDelay
}
