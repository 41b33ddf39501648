// Package extractor pulls candidate place records out of loosely
// structured publisher HTML using per-source CSS selectors with
// shared fallbacks.
package extractor

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/amala-atlas/discovery-cli/internal/model"
)

var (
	listPrefixRe  = regexp.MustCompile(`^(\d+\.|[•\-*])\s*`)
	boilerplateRe = regexp.MustCompile(`(?i)^(categories|tags|share this|leave a reply|comment|reply)`)
	digitRe       = regexp.MustCompile(`\d`)
)

// Config holds the extraction gates and keyword lists. Injected rather
// than hardcoded so the thresholds are independently testable.
type Config struct {
	NameKeywords      []string
	AddressKeywords   []string
	FallbackSelectors []string
	MinNameLen        int
	MaxNameLen        int
	MinAddressLen     int
	ContextChars      int
	DescriptionChars  int
}

// Extractor turns raw HTML into RawCandidates for one source.
type Extractor struct {
	cfg Config
}

// New creates an Extractor with the given config.
func New(cfg Config) *Extractor {
	if cfg.MinNameLen == 0 {
		cfg.MinNameLen = 3
	}
	if cfg.MaxNameLen == 0 {
		cfg.MaxNameLen = 80
	}
	if cfg.MinAddressLen == 0 {
		cfg.MinAddressLen = 10
	}
	if cfg.ContextChars == 0 {
		cfg.ContextChars = 1200
	}
	if cfg.DescriptionChars == 0 {
		cfg.DescriptionChars = 240
	}
	if len(cfg.FallbackSelectors) == 0 {
		cfg.FallbackSelectors = []string{"h2", "h3", "h4", "strong", ".restaurant-name", ".spot-name"}
	}
	return &Extractor{cfg: cfg}
}

// Extract parses the HTML and returns every candidate that survives the
// name and address gates. Zero matches is not an error: unsupported
// markup degrades to an empty result.
func (e *Extractor) Extract(html string, src model.Source, scrapedAt time.Time) ([]model.RawCandidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrapf(err, "extractor: parse html from %s", src.Name)
	}

	elements := e.selectNames(doc, src.Extract)

	var out []model.RawCandidate
	var rejected int
	elements.Each(func(_ int, el *goquery.Selection) {
		name := stripListPrefix(el.Text())
		if len(name) < e.cfg.MinNameLen {
			return
		}
		if !e.isLikelyName(name) {
			rejected++
			return
		}

		address := e.bestAddress(doc, el, src.Extract)
		if !e.validAddress(address) {
			rejected++
			return
		}

		out = append(out, model.RawCandidate{
			Name:        name,
			Address:     address,
			Description: excerpt(el.Parent().Text(), e.cfg.DescriptionChars),
			SourceName:  src.Name,
			SourceURL:   src.URL,
			ScrapedAt:   scrapedAt,
			Context:     truncate(el.Parent().Text(), e.cfg.ContextChars),
		})
	})

	zap.L().Debug("extraction complete",
		zap.String("source", src.Name),
		zap.Int("matched", elements.Length()),
		zap.Int("candidates", len(out)),
		zap.Int("rejected", rejected),
	)
	return out, nil
}

// selectNames applies the selector tiers: configured container+name
// selector, then the fallback selectors within the container, then the
// name selector against the whole document as a last resort.
func (e *Extractor) selectNames(doc *goquery.Document, cfg model.ExtractConfig) *goquery.Selection {
	container := doc.Find(cfg.Container)

	elements := container.Find(cfg.NameSelector)
	if elements.Length() > 0 {
		return elements
	}
	for _, sel := range e.cfg.FallbackSelectors {
		elements = container.Find(sel)
		if elements.Length() > 0 {
			return elements
		}
	}
	return doc.Find(cfg.NameSelector)
}

// isLikelyName gates names on the domain keyword list and a maximum
// normalized length; anything longer reads like a captured sentence.
func (e *Extractor) isLikelyName(name string) bool {
	n := normalize(name)
	if len(n) > e.cfg.MaxNameLen {
		return false
	}
	for _, k := range e.cfg.NameKeywords {
		if strings.Contains(n, k) {
			return true
		}
	}
	return false
}

// bestAddress scans sibling text blocks under the matched element's
// parent plus any configured address selector, and picks the longest
// block carrying address signals. Longer text tends to be the fuller
// address.
func (e *Extractor) bestAddress(doc *goquery.Document, el *goquery.Selection, cfg model.ExtractConfig) string {
	var candidates []string

	el.Parent().Find("p, div, li").Each(func(_ int, block *goquery.Selection) {
		raw := strings.TrimSpace(block.Text())
		txt := normalize(raw)
		if len(txt) < e.cfg.MinAddressLen {
			return
		}
		if boilerplateRe.MatchString(raw) {
			return
		}
		if e.hasAddressSignals(txt) {
			candidates = append(candidates, raw)
		}
	})

	if cfg.AddressSelector != "" {
		doc.Find(cfg.AddressSelector).Each(func(_ int, block *goquery.Selection) {
			raw := strings.TrimSpace(block.Text())
			if len(raw) > e.cfg.MinAddressLen {
				candidates = append(candidates, raw)
			}
		})
	}

	best := ""
	for _, c := range candidates {
		if len(c) > len(best) {
			best = c
		}
	}
	return best
}

func (e *Extractor) hasAddressSignals(txt string) bool {
	if digitRe.MatchString(txt) || strings.Contains(txt, ",") {
		return true
	}
	for _, k := range e.cfg.AddressKeywords {
		if strings.Contains(txt, k) {
			return true
		}
	}
	return false
}

// validAddress is the admission check for the whole item: a candidate
// without a plausible address is dropped at extraction time.
func (e *Extractor) validAddress(address string) bool {
	if len(address) < e.cfg.MinAddressLen {
		return false
	}
	return e.hasAddressSignals(normalize(address))
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func stripListPrefix(s string) string {
	s = listPrefixRe.ReplaceAllString(strings.TrimSpace(s), "")
	return strings.Join(strings.Fields(s), " ")
}

// excerpt collapses whitespace and truncates, producing the short
// human-readable summary moderators see for a scraped candidate.
func excerpt(s string, n int) string {
	return truncate(strings.Join(strings.Fields(s), " "), n)
}

func truncate(s string, n int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n])
}
