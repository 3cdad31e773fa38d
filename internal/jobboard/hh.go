package jobboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"magabot/internal/models"
)

const (
	DefaultBaseURL = "https://api.hh.ru"
	maxPerPage     = 100
	maxPages       = 3
)

// HHClient searches vacancies through the hh.ru public API
type HHClient struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *RateLimiter
	now        func() time.Time
}

// NewHHClient creates a search client. hh.ru rejects requests without a descriptive User-Agent.
func NewHHClient(baseURL, userAgent string, limiter *RateLimiter, httpClient *http.Client) *HHClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if limiter == nil {
		limiter = NewRateLimiter(2)
	}
	return &HHClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		userAgent:  userAgent,
		httpClient: httpClient,
		limiter:    limiter,
		now:        time.Now,
	}
}

// Query is one vacancy search
type Query struct {
	Text      string
	Location  string
	MinSalary int
	Currency  string
	Limit     int
}

// QueryFromCriteria builds the search from case criteria; text overrides the role
func QueryFromCriteria(text string, c models.Criteria) Query {
	q := Query{
		Text:      strings.TrimSpace(text),
		MinSalary: c.MinSalary,
		Currency:  c.Currency,
		Limit:     c.MaxPostings * 2,
	}
	if q.Text == "" {
		q.Text = c.TargetRole
	}
	if q.Text == "" {
		q.Text = strings.Join(c.Keywords, " ")
	}
	if len(c.Locations) > 0 {
		q.Location = c.Locations[0]
	}
	if q.Limit <= 0 {
		q.Limit = 20
	}
	return q
}

type hhPage struct {
	Items []hhVacancy `json:"items"`
	Found int         `json:"found"`
	Pages int         `json:"pages"`
	Page  int         `json:"page"`
}

type hhVacancy struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	AlternateURL string `json:"alternate_url"`
	PublishedAt  string `json:"published_at"`
	Employer     struct {
		Name string `json:"name"`
	} `json:"employer"`
	Salary *struct {
		From     *int   `json:"from"`
		To       *int   `json:"to"`
		Currency string `json:"currency"`
	} `json:"salary"`
	Area struct {
		Name string `json:"name"`
	} `json:"area"`
	Address *struct {
		City string `json:"city"`
	} `json:"address"`
	Snippet struct {
		Requirement    string `json:"requirement"`
		Responsibility string `json:"responsibility"`
	} `json:"snippet"`
}

// Search returns up to q.Limit postings, newest first, deduplicated by (title, company)
func (c *HHClient) Search(ctx context.Context, q Query) ([]models.Posting, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, fmt.Errorf("job search needs a role or keywords")
	}

	perPage := q.Limit
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	seen := make(map[string]bool)
	var postings []models.Posting
	for page := 0; page < maxPages && len(postings) < q.Limit; page++ {
		result, err := c.fetchPage(ctx, q, page, perPage)
		if err != nil {
			if page > 0 && len(postings) > 0 {
				log.Printf("⚠️ [JOBBOARD] Page %d failed, keeping %d postings: %v", page, len(postings), err)
				break
			}
			return nil, err
		}
		for _, item := range result.Items {
			p := item.posting()
			if seen[p.DedupKey()] {
				continue
			}
			seen[p.DedupKey()] = true
			postings = append(postings, p)
			if len(postings) >= q.Limit {
				break
			}
		}
		if result.Pages <= page+1 {
			break
		}
	}

	log.Printf("✅ [JOBBOARD] hh.ru: found %d postings for %q", len(postings), q.Text)
	return postings, nil
}

func (c *HHClient) fetchPage(ctx context.Context, q Query, page, perPage int) (*hhPage, error) {
	params := url.Values{}
	params.Set("text", q.Text)
	params.Set("area", AreaID(q.Location))
	params.Set("per_page", strconv.Itoa(perPage))
	params.Set("page", strconv.Itoa(page))
	params.Set("order_by", "publication_time")
	if q.MinSalary > 0 {
		params.Set("salary", strconv.Itoa(q.MinSalary))
		params.Set("currency", hhCurrency(q.Currency))
	}

	apiURL := c.baseURL + "/vacancies?" + params.Encode()
	parsed, err := url.Parse(apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid job board URL: %w", err)
	}
	if err := c.limiter.Wait(ctx, parsed.Host, 0); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("HH-User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hh.ru request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read hh.ru response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.Printf("❌ [JOBBOARD] hh.ru API error: %d - %s", resp.StatusCode, truncate(string(body), 200))
		return nil, fmt.Errorf("hh.ru API error: %d", resp.StatusCode)
	}

	var result hhPage
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse hh.ru response: %w", err)
	}
	return &result, nil
}

var highlightTags = regexp.MustCompile(`</?highlighttext>`)

func (v hhVacancy) posting() models.Posting {
	p := models.Posting{
		ID:       "hh-" + v.ID,
		Title:    strings.TrimSpace(v.Name),
		Company:  strings.TrimSpace(v.Employer.Name),
		Location: v.Area.Name,
		URL:      v.AlternateURL,
		Source:   "hh",
	}
	if v.Address != nil && v.Address.City != "" {
		p.Location = v.Address.City
	}
	if v.Salary != nil {
		if v.Salary.From != nil {
			p.SalaryFrom = *v.Salary.From
		}
		if v.Salary.To != nil {
			p.SalaryTo = *v.Salary.To
		}
		p.Currency = currencyCode(v.Salary.Currency)
	}

	parts := make([]string, 0, 2)
	for _, s := range []string{v.Snippet.Requirement, v.Snippet.Responsibility} {
		if s = strings.TrimSpace(highlightTags.ReplaceAllString(s, "")); s != "" {
			parts = append(parts, s)
		}
	}
	p.Description = strings.Join(parts, "\n")

	// hh.ru uses "2024-01-02T15:04:05+0300"
	if t, err := time.Parse("2006-01-02T15:04:05-0700", v.PublishedAt); err == nil {
		p.PublishedAt = t
	}
	return p
}

// AreaID maps a free-form location to an hh.ru area id. Unknown places search all of Russia.
func AreaID(location string) string {
	l := strings.ToLower(location)
	switch {
	case strings.Contains(l, "москв") || strings.Contains(l, "moscow"):
		return "1"
	case strings.Contains(l, "петербург") || strings.Contains(l, "спб") || strings.Contains(l, "petersburg"):
		return "2"
	default:
		return "113"
	}
}

// hh.ru still calls the rouble RUR
func hhCurrency(c string) string {
	switch strings.ToUpper(c) {
	case "", "RUB":
		return "RUR"
	default:
		return strings.ToUpper(c)
	}
}

func currencyCode(c string) string {
	if strings.ToUpper(c) == "RUR" {
		return "RUB"
	}
	return strings.ToUpper(c)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
