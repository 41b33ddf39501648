// Package scorer assigns a heuristic 0-100 plausibility score to
// extracted candidates. Scoring is purely additive over injected
// weights; there is no model or learning component.
package scorer

import (
	"regexp"
	"strings"

	"github.com/amala-atlas/discovery-cli/internal/model"
)

var boilerplateRe = regexp.MustCompile(`(?i)(categories|tags|leave a reply|comment|weekend guide)`)

// Weights holds the additive scoring weights and the acceptance cutoff.
// The defaults are empirical; treat them as calibration starting points
// rather than business rules.
type Weights struct {
	NameKeyword     int
	ContextKeyword  int
	HasAddress      int
	TrustedSource   int
	BoilerplateHit  int // negative
	SentenceName    int // negative
	AcceptThreshold int
}

// Scorer computes confidence scores from injected keyword lists.
type Scorer struct {
	weights         Weights
	nameKeywords    []string
	contextKeywords []string
	trustedSources  []string
}

// New creates a Scorer.
func New(weights Weights, nameKeywords, contextKeywords, trustedSources []string) *Scorer {
	return &Scorer{
		weights:         weights,
		nameKeywords:    lowerAll(nameKeywords),
		contextKeywords: lowerAll(contextKeywords),
		trustedSources:  lowerAll(trustedSources),
	}
}

// Score is a pure function of the candidate's name, its surrounding
// context text, address presence, and source identity. The result is
// clamped to [0, 100].
func (s *Scorer) Score(name, context string, hasAddress bool, sourceName string) int {
	score := 0
	n := normalize(name)
	c := normalize(context)

	if containsAny(n, s.nameKeywords) {
		score += s.weights.NameKeyword
	}
	if containsAny(c, s.contextKeywords) {
		score += s.weights.ContextKeyword
	}
	if hasAddress {
		score += s.weights.HasAddress
	}
	if containsAny(normalize(sourceName), s.trustedSources) {
		score += s.weights.TrustedSource
	}

	// Penalties: boilerplate context, and names that read like captured
	// sentences rather than place names.
	if boilerplateRe.MatchString(c) {
		score += s.weights.BoilerplateHit
	}
	if strings.HasSuffix(name, ".") || len(strings.Fields(name)) > 8 {
		score += s.weights.SentenceName
	}

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

// Filter scores every raw candidate and keeps those at or above the
// acceptance threshold. Per-item rejections are not logged to avoid
// flooding; the caller logs aggregate counts.
func (s *Scorer) Filter(candidates []model.RawCandidate) (kept []model.ScoredCandidate, dropped int) {
	for _, c := range candidates {
		confidence := s.Score(c.Name, c.Context, c.Address != "", c.SourceName)
		if confidence < s.weights.AcceptThreshold {
			dropped++
			continue
		}
		kept = append(kept, model.ScoredCandidate{RawCandidate: c, Confidence: confidence})
	}
	return kept, dropped
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
