// Package normalize canonicalizes district and neighborhood names and
// numeric free-text fields of crawled listings.
package normalize

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// MatchKind is how closely two names matched
type MatchKind string

const (
	MatchExact   MatchKind = "exact"
	MatchPartial MatchKind = "partial"
	MatchNone    MatchKind = "none"
)

// MatchResult is the outcome of comparing two names
type MatchResult struct {
	Matched bool      `json:"matched"`
	Kind    MatchKind `json:"kind"`
}

var (
	// Administrative suffixes as a separate trailing token, longest first
	// within each family. "Yenimahalle" keeps its suffix.
	suffixPattern = regexp.MustCompile(`(^|\s)(mahallesi|mahalle|mah\.?|mh\.?|neighbourhood|neighborhood|nbhd\.?)\s*$`)
	spacePattern  = regexp.MustCompile(`\s+`)
)

// lower folds case with Turkish rules so that "İ" and "I" map to "i" and "ı".
// Casers are stateful, so a new one is built per call.
func lower(s string) string {
	return cases.Lower(language.Turkish).String(s)
}

// Name normalizes a neighborhood name: "Dereköy Mh." → "dereköy",
// "Yeni Mahallesi" → "yeni".
func Name(name string) string {
	if name == "" {
		return ""
	}
	n := strings.TrimSpace(lower(name))
	n = suffixPattern.ReplaceAllString(n, "")
	n = spacePattern.ReplaceAllString(n, " ")
	return strings.TrimSpace(n)
}

// District normalizes a district name. Districts carry no suffixes.
func District(name string) string {
	if name == "" {
		return ""
	}
	n := spacePattern.ReplaceAllString(lower(name), " ")
	return strings.TrimSpace(n)
}

// DistrictMatches reports whether two district names are equal after normalization
func DistrictMatches(a, b string) bool {
	na, nb := District(a), District(b)
	return na != "" && na == nb
}

// Match compares two neighborhood names. Names are equal after
// normalization for an exact match; a partial match needs one to contain the
// other or a shared token longer than two characters.
func Match(a, b string) MatchResult {
	na, nb := Name(a), Name(b)
	if na == "" || nb == "" {
		return MatchResult{Matched: false, Kind: MatchNone}
	}
	if na == nb {
		return MatchResult{Matched: true, Kind: MatchExact}
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return MatchResult{Matched: true, Kind: MatchPartial}
	}

	for _, wa := range tokens(na) {
		for _, wb := range tokens(nb) {
			if wa == wb || strings.Contains(wa, wb) || strings.Contains(wb, wa) {
				return MatchResult{Matched: true, Kind: MatchPartial}
			}
		}
	}
	return MatchResult{Matched: false, Kind: MatchNone}
}

func tokens(s string) []string {
	var out []string
	for _, w := range strings.Split(s, " ") {
		if utf8.RuneCountInString(w) > 2 {
			out = append(out, w)
		}
	}
	return out
}

// Patterns returns the spellings a neighborhood commonly appears with in
// listing locations, normalized first.
func Patterns(name string) []string {
	return KeyPatterns(Name(name))
}

// KeyPatterns is Patterns for a name that is already normalized. The key is
// used as is, since normalizing twice can strip a name that is itself a suffix.
func KeyPatterns(key string) []string {
	if key == "" {
		return nil
	}
	return []string{key, key + " mh", key + " mah", key + " mahallesi"}
}

// NeighborhoodFromLocation extracts the neighborhood from a
// "Province, District, Neighborhood" location string.
func NeighborhoodFromLocation(location string) string {
	parts := strings.Split(location, ",")
	if len(parts) < 3 {
		return ""
	}
	return strings.TrimSpace(parts[2])
}
