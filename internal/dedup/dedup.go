// Package dedup decides whether a scored candidate refers to a place the
// system already knows about, by reducing names and addresses to a
// normalized identity key and testing membership against snapshots of the
// canonical, pending, and rejected sets.
package dedup

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/amala-atlas/discovery-cli/internal/model"
	"github.com/amala-atlas/discovery-cli/pkg/geocode"
)

// defaultSuffixWords are trailing words that carry no identity: "Iya
// Basira Restaurant" and "Iya Basira Spot" name the same place.
var defaultSuffixWords = []string{
	"restaurant", "spot", "joint", "place", "eatery",
	"canteen", "buka", "bukateria", "kitchen", "grill", "foods", "food",
}

var (
	nonAlnumRe   = regexp.MustCompile(`[^a-z0-9 ]+`)
	multiSpaceRe = regexp.MustCompile(`\s{2,}`)
	lettersRe    = regexp.MustCompile(`[^a-z]+`)
)

// Key is the normalized (name, city) identity of a place. Two candidates
// with equal keys are treated as the same real-world place.
type Key string

// Deduper builds identity keys and partitions candidates against the
// already-known sets. The geocoder is optional: when present, city tokens
// come from resolved localities; otherwise from the address text itself.
type Deduper struct {
	geocoder    geocode.Client
	suffixWords map[string]struct{}
}

// New returns a Deduper. A nil geocoder means city tokens come from the
// address text only; empty suffixWords fall back to the built-in list.
func New(geocoder geocode.Client, suffixWords []string) *Deduper {
	if len(suffixWords) == 0 {
		suffixWords = defaultSuffixWords
	}
	set := make(map[string]struct{}, len(suffixWords))
	for _, w := range suffixWords {
		set[strings.ToLower(w)] = struct{}{}
	}
	return &Deduper{geocoder: geocoder, suffixWords: set}
}

// Key derives the dedup identity for a name and address.
func (d *Deduper) Key(ctx context.Context, name, address string) Key {
	return Key(normalizeWith(name, d.suffixWords) + "|" + d.cityToken(ctx, address))
}

// Partition splits candidates into fresh ones and duplicates. A candidate
// is a duplicate when its key is already present in any snapshot set, or
// when an earlier candidate in the same batch produced the same key.
// Within the batch the first occurrence wins.
func (d *Deduper) Partition(ctx context.Context, candidates []model.ScoredCandidate, snaps model.Snapshots) (fresh, duplicates []model.ScoredCandidate) {
	known := make(map[Key]struct{}, len(snaps.Canonical)+len(snaps.Pending)+len(snaps.Rejected))
	for _, set := range [][]model.NameAddress{snaps.Canonical, snaps.Pending, snaps.Rejected} {
		for _, rec := range set {
			known[d.Key(ctx, rec.Name, rec.Address)] = struct{}{}
		}
	}

	seen := make(map[Key]struct{}, len(candidates))
	for _, cand := range candidates {
		key := d.Key(ctx, cand.Name, cand.Address)
		if _, dup := known[key]; dup {
			duplicates = append(duplicates, cand)
			continue
		}
		if _, dup := seen[key]; dup {
			duplicates = append(duplicates, cand)
			continue
		}
		seen[key] = struct{}{}
		fresh = append(fresh, cand)
	}

	zap.L().Debug("partitioned candidates",
		zap.Int("known", len(known)),
		zap.Int("fresh", len(fresh)),
		zap.Int("duplicates", len(duplicates)),
	)
	return fresh, duplicates
}

// NormalizeName standardizes a place name for identity matching by:
//  1. Lower-casing and folding accents to ASCII
//  2. Stripping punctuation and any other non-alphanumerics
//  3. Dropping trailing generic suffix words (restaurant, spot, joint, ...)
//  4. Collapsing whitespace
//
// Stripping never reduces a name to nothing: when only generic words
// remain, the last one is kept.
func NormalizeName(name string) string {
	return normalizeWith(name, defaultSuffixSet)
}

// Similar reports whether two display names plausibly refer to the same
// place: after normalization and stripping to letters, one must contain
// the other. Used for the moderation UI's near-duplicate lookup, which
// tolerates false positives a human will dismiss.
func Similar(a, b string) bool {
	na := lettersOnly(NormalizeName(a))
	nb := lettersOnly(NormalizeName(b))
	if na == "" || nb == "" {
		return false
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}

var defaultSuffixSet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(defaultSuffixWords))
	for _, w := range defaultSuffixWords {
		set[w] = struct{}{}
	}
	return set
}()

func normalizeWith(name string, suffixWords map[string]struct{}) string {
	s := foldAccents(strings.ToLower(strings.TrimSpace(name)))
	s = nonAlnumRe.ReplaceAllString(s, " ")
	s = multiSpaceRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	words := strings.Fields(s)
	for len(words) > 1 {
		if _, generic := suffixWords[words[len(words)-1]]; !generic {
			break
		}
		words = words[:len(words)-1]
	}
	return strings.Join(words, " ")
}

// cityToken resolves the locality part of the key. Geocoder localities are
// preferred when a client is configured; the fallback takes the last
// comma-delimited address segment, which is wrong for addresses that do
// not end in a locality but is the best signal available offline.
func (d *Deduper) cityToken(ctx context.Context, address string) string {
	address = strings.TrimSpace(address)
	if address == "" {
		return ""
	}
	if d.geocoder != nil {
		if loc := d.geocoder.Locality(ctx, address); loc != "" {
			return lettersOnly(loc)
		}
	}
	segments := strings.Split(address, ",")
	return lettersOnly(segments[len(segments)-1])
}

func lettersOnly(s string) string {
	return lettersRe.ReplaceAllString(foldAccents(strings.ToLower(s)), "")
}

// foldAccents decomposes to NFD, drops combining marks, and recomposes,
// so "Café Amalà" matches "Cafe Amala".
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
