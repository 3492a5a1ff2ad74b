// Package prefilter narrows a session's candidates with cheap keyword scoring
// before any network call is made.
//
// Only the strict policy is implemented: a candidate without any keyword
// overlap scores zero and is dropped instead of being kept at a floor score.
package prefilter

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/spigell/mission-matcher/internal/candidate"
)

const (
	DefaultLimit = 15

	industryPoints = 3
	rolePoints     = 2
	domainPoints   = 2
	locationPoints = 1

	minKeywordLength = 3
)

// Scored pairs a candidate with its text relevance score.
type Scored struct {
	Candidate *candidate.Candidate
	Score     int
}

type Config struct {
	Limit int
}

type Prefilter struct {
	limit int
}

func New(cfg Config) *Prefilter {
	limit := cfg.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Prefilter{limit: limit}
}

func (p *Prefilter) Limit() int { return p.limit }

// Filter returns candidates with a positive score, highest first, capped at the limit.
// Equal scores keep their input order.
func (p *Prefilter) Filter(mission string, candidates []*candidate.Candidate) []Scored {
	keywords := Keywords(mission)
	primary := primaryIndustry(mission)

	scored := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		if c == nil {
			continue
		}
		score := scoreCandidate(c, primary, keywords)
		if score <= 0 {
			continue
		}
		scored = append(scored, Scored{Candidate: c, Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if len(scored) > p.limit {
		scored = scored[:p.limit]
	}

	return scored
}

// Score exposes the score of a single candidate for diagnostics and tests.
func Score(mission string, c *candidate.Candidate) int {
	return scoreCandidate(c, primaryIndustry(mission), Keywords(mission))
}

func scoreCandidate(c *candidate.Candidate, primary *industry, keywords []string) int {
	haystack := c.Haystack()
	score := 0

	if primary != nil {
		score += industryPoints * countContained(haystack, primary.keywords)
	}
	score += rolePoints * countContained(haystack, roleKeywords)
	score += domainPoints * countContained(haystack, domainKeywords)

	location := strings.ToLower(strings.TrimSpace(norm.NFKC.String(c.Location)))
	if location != "" {
		for _, kw := range keywords {
			if strings.Contains(location, kw) || strings.Contains(kw, location) {
				score += locationPoints
			}
		}
	}

	return score
}

// primaryIndustry picks the category with the most keyword hits in the mission.
// It returns nil when no category has a hit.
func primaryIndustry(mission string) *industry {
	text := normalize(mission)

	var best *industry
	bestCount := 0
	for i := range industries {
		count := countContained(text, industries[i].keywords)
		if count > bestCount {
			best = &industries[i]
			bestCount = count
		}
	}

	return best
}

// PrimaryIndustry returns the detected industry name or "" when none matched.
func PrimaryIndustry(mission string) string {
	if ind := primaryIndustry(mission); ind != nil {
		return ind.name
	}
	return ""
}

// Keywords tokenizes the mission into lowercase words, dropping short and stop words.
func Keywords(mission string) []string {
	fields := strings.FieldsFunc(normalize(mission), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(fields))
	keywords := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < minKeywordLength {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		keywords = append(keywords, f)
	}

	return keywords
}

func countContained(text string, keywords []string) int {
	count := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			count++
		}
	}
	return count
}

func normalize(s string) string {
	return strings.ToLower(norm.NFKC.String(s))
}
