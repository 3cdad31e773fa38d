package autopilot

import (
	"math"
	"regexp"
	"strings"

	"magabot/internal/models"
)

// Match weights. They are normalized by their sum.
const (
	keywordWeight    = 0.4
	skillWeight      = 0.3
	experienceWeight = 0.2
)

// skillSynonyms maps a canonical skill to the spellings found in postings
var skillSynonyms = map[string][]string{
	"go":               {"go", "golang"},
	"python":           {"python", "python3"},
	"java":             {"java"},
	"javascript":       {"javascript", "js", "ecmascript"},
	"typescript":       {"typescript", "ts"},
	"react":            {"react", "reactjs", "react.js"},
	"node.js":          {"node.js", "nodejs", "node"},
	"docker":           {"docker", "containerization"},
	"kubernetes":       {"kubernetes", "k8s"},
	"aws":              {"aws", "amazon web services"},
	"gcp":              {"gcp", "google cloud"},
	"azure":            {"azure"},
	"sql":              {"sql"},
	"postgresql":       {"postgresql", "postgres"},
	"mysql":            {"mysql"},
	"mongodb":          {"mongodb", "mongo"},
	"redis":            {"redis"},
	"kafka":            {"kafka"},
	"grpc":             {"grpc"},
	"git":              {"git", "github", "gitlab"},
	"ci/cd":            {"ci/cd", "jenkins", "github actions"},
	"machine learning": {"machine learning", "ml", "машинное обучение"},
	"linux":            {"linux"},
}

var levelMarkers = []struct {
	level   string
	markers []string
}{
	{"lead", []string{"lead", "principal", "head of", "тимлид", "ведущий"}},
	{"senior", []string{"senior", "sr.", "старший"}},
	{"middle", []string{"middle", "mid-level", "mid level"}},
	{"junior", []string{"junior", "jr.", "intern", "стажер", "младший"}},
}

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}+#./-]+`)

// MatchScore rates how well a posting fits the criteria and profile, from 0
// to 1. It blends keyword coverage, the share of the posting's recognized
// skills the applicant has, and seniority agreement. Unknown parts score 0.5.
func MatchScore(p models.Posting, criteria models.Criteria, profile models.Profile) float64 {
	text := strings.ToLower(p.Title + " " + p.Description)
	words := tokenSet(text)

	score := keywordWeight*keywordCoverage(text, criteria.Keywords) +
		skillWeight*skillCoverage(text, words, profile.Skills) +
		experienceWeight*levelAgreement(text, words, profile.Level)
	score /= keywordWeight + skillWeight + experienceWeight
	return math.Round(score*100) / 100
}

func keywordCoverage(text string, keywords []string) float64 {
	total, hit := 0, 0
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		total++
		if strings.Contains(text, kw) {
			hit++
		}
	}
	if total == 0 {
		return 1
	}
	return float64(hit) / float64(total)
}

func skillCoverage(text string, words map[string]bool, skills []string) float64 {
	have := make(map[string]bool, len(skills))
	for _, s := range skills {
		have[canonicalSkill(s)] = true
	}
	required, matched := 0, 0
	for skill, spellings := range skillSynonyms {
		if !mentions(text, words, spellings) {
			continue
		}
		required++
		if have[skill] {
			matched++
		}
	}
	if required == 0 {
		return 0.5
	}
	return float64(matched) / float64(required)
}

func levelAgreement(text string, words map[string]bool, level string) float64 {
	level = strings.ToLower(strings.TrimSpace(level))
	posted := postingLevel(text, words)
	switch {
	case level == "" || posted == "":
		return 0.5
	case level == posted:
		return 1
	}
	return 0
}

func postingLevel(text string, words map[string]bool) string {
	for _, lm := range levelMarkers {
		if mentions(text, words, lm.markers) {
			return lm.level
		}
	}
	return ""
}

func canonicalSkill(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	for skill, spellings := range skillSynonyms {
		for _, sp := range spellings {
			if s == sp {
				return skill
			}
		}
	}
	return s
}

// mentions matches single-word spellings against whole tokens so "go" does
// not match "good", and phrases against the raw text
func mentions(text string, words map[string]bool, spellings []string) bool {
	for _, sp := range spellings {
		if strings.Contains(sp, " ") {
			if strings.Contains(text, sp) {
				return true
			}
			continue
		}
		if words[sp] {
			return true
		}
	}
	return false
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range wordPattern.FindAllString(text, -1) {
		set[strings.Trim(w, ".,/-")] = true
		set[w] = true
	}
	return set
}
