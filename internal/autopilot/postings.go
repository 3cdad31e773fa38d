package autopilot

import (
	"strings"

	"magabot/internal/models"
)

// FilterPostings dedups postings by (title, company), then keeps those that
// mention a keyword, belong to a target company and do not pay below the
// minimum salary. Postings without a salary are kept. Every survivor carries
// its MatchScore against the profile, and postings under MinMatchScore are
// dropped. The first MaxPostings survivors are returned in input order.
func FilterPostings(postings []models.Posting, criteria models.Criteria, profile models.Profile) []models.Posting {
	seen := make(map[string]bool, len(postings))
	companies := lowerSet(criteria.TargetCompanies)
	var out []models.Posting
	for _, p := range postings {
		key := p.DedupKey()
		if seen[key] {
			continue
		}
		seen[key] = true

		if !matchesKeywords(p, criteria.Keywords) {
			continue
		}
		if len(companies) > 0 && !companies[strings.ToLower(strings.TrimSpace(p.Company))] {
			continue
		}
		if criteria.MinSalary > 0 && topSalary(p) > 0 && topSalary(p) < criteria.MinSalary {
			continue
		}
		p.MatchScore = MatchScore(p, criteria, profile)
		if criteria.MinMatchScore > 0 && p.MatchScore < criteria.MinMatchScore {
			continue
		}
		out = append(out, p)
		if criteria.MaxPostings > 0 && len(out) >= criteria.MaxPostings {
			break
		}
	}
	return out
}

func matchesKeywords(p models.Posting, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	haystack := strings.ToLower(p.Title + " " + p.Description)
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(haystack, kw) {
			return true
		}
	}
	return false
}

func topSalary(p models.Posting) int {
	if p.SalaryTo > p.SalaryFrom {
		return p.SalaryTo
	}
	return p.SalaryFrom
}

func lowerSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]bool, len(items))
	for _, it := range items {
		if it = strings.ToLower(strings.TrimSpace(it)); it != "" {
			set[it] = true
		}
	}
	return set
}
