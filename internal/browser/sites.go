package browser

import (
	"net/url"
	"strings"
)

// Site holds the CSS selectors of one job board's apply flow
type Site struct {
	Name        string
	Hosts       []string
	ApplyButton string
	CoverLetter string // optional
	Submit      string
	Confirm     string // optional, waited for after submit
}

// DefaultSites are the boards the apply driver knows
func DefaultSites() []Site {
	return []Site{
		{
			Name:        "hh",
			Hosts:       []string{"hh.ru"},
			ApplyButton: "[data-qa='vacancy-response-link-top']",
			CoverLetter: "[data-qa='vacancy-response-popup-letter-input']",
			Submit:      "[data-qa='vacancy-response-popup-submit']",
			Confirm:     "[data-qa='vacancy-response-success-standard-notification']",
		},
		{
			Name:        "habr",
			Hosts:       []string{"career.habr.com"},
			ApplyButton: ".vacancy-response__button",
			CoverLetter: "textarea[name='response[body]']",
			Submit:      "form.vacancy-response__form button[type='submit']",
		},
	}
}

// SiteFor finds the recipe whose host matches the URL or one of its parents
func SiteFor(sites []Site, rawURL string) (Site, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return Site{}, false
	}
	host := strings.ToLower(u.Hostname())
	for _, s := range sites {
		for _, h := range s.Hosts {
			if host == h || strings.HasSuffix(host, "."+h) {
				return s, true
			}
		}
	}
	return Site{}, false
}
