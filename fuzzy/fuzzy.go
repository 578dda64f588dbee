// CLAUDE:SUMMARY Tiered option matcher: exact, containment, then abbreviation-expanded token similarity with high/medium confidence.
// Package fuzzy picks the option of a closed candidate list that best
// matches a free-text value. The result is always one of the candidates,
// verbatim, or nil.
package fuzzy

import (
	"strings"
	"unicode"
)

// Confidence is the tier of a match.
type Confidence string

const (
	High   Confidence = "high"
	Medium Confidence = "medium"
)

// Score thresholds of the token tier.
const (
	HighScore   = 0.8
	MediumScore = 0.55
)

// Result is a successful match.
type Result struct {
	Match      string     `json:"match"`
	Confidence Confidence `json:"confidence"`
	Score      float64    `json:"score"`
}

// Matcher is stateless after construction and safe for concurrent use.
type Matcher struct {
	stop map[string]struct{}
	abbr map[string][]string
}

// New builds a matcher over d. A nil dictionary means the embedded one.
func New(d *Dictionary) *Matcher {
	if d == nil {
		d = DefaultDictionary()
	}
	m := &Matcher{
		stop: make(map[string]struct{}, len(d.StopWords)),
		abbr: make(map[string][]string, len(d.Abbreviations)),
	}
	for _, w := range d.StopWords {
		m.stop[strings.ToLower(w)] = struct{}{}
	}
	for k, v := range d.Abbreviations {
		m.abbr[strings.ToLower(k)] = v
	}
	return m
}

var defaultMatcher = New(nil)

// Default returns the matcher over the embedded dictionary.
func Default() *Matcher { return defaultMatcher }

// MatchTiered returns the best option for query, or nil when no option
// reaches the medium tier.
func (m *Matcher) MatchTiered(query string, options []string) *Result {
	if query == "" || len(options) == 0 {
		return nil
	}
	q := strings.ToLower(strings.TrimSpace(query))

	for _, opt := range options {
		if strings.ToLower(strings.TrimSpace(opt)) == q {
			return &Result{Match: opt, Confidence: High, Score: 1.0}
		}
	}

	for _, opt := range options {
		o := strings.ToLower(strings.TrimSpace(opt))
		if len(o) < 2 || len(q) < 2 {
			continue
		}
		if strings.Contains(o, q) || strings.Contains(q, o) {
			return &Result{Match: opt, Confidence: High, Score: 0.95}
		}
	}

	qt := m.Tokens(query)
	best, bestScore := -1, -1.0
	for i, opt := range options {
		s := Similarity(qt, m.Tokens(opt))
		if s > bestScore {
			best, bestScore = i, s
		}
	}
	switch {
	case bestScore >= HighScore:
		return &Result{Match: options[best], Confidence: High, Score: bestScore}
	case bestScore >= MediumScore:
		return &Result{Match: options[best], Confidence: Medium, Score: bestScore}
	}
	return nil
}

// Tokens lower-cases text, drops every character that is not an ASCII
// letter, digit or space, splits on whitespace, removes stop-words and
// replaces abbreviations by their expansion.
func (m *Matcher) Tokens(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range Clean(text) {
		if _, ok := m.stop[tok]; ok {
			continue
		}
		if exp, ok := m.abbr[tok]; ok {
			for _, e := range exp {
				out[e] = struct{}{}
			}
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}

// Clean lower-cases text, strips punctuation and splits it into words.
func Clean(text string) []string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return strings.Fields(b.String())
}

// Similarity is 0.5 * Jaccard + 0.5 * the larger of the two containment
// ratios. Empty sets score 0.
func Similarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	jaccard := float64(inter) / float64(union)
	containment := max(float64(inter)/float64(len(a)), float64(inter)/float64(len(b)))
	return 0.5*jaccard + 0.5*containment
}
