// Package normalize cleans names, extracts measurements from free-text spec values
// and scores record completeness.
package normalize

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/antzucaro/matchr"
)

var (
	symbolReplacer = strings.NewReplacer("™", "", "®", "", "©", "", "\u00a0", " ", "\u200b", "")
	nonSlugChars   = regexp.MustCompile(`[^a-z0-9]+`)

	// words that stay upper case whatever the source casing
	acronyms = map[string]bool{
		"abs": true, "ajs": true, "atv": true, "bmw": true, "bmx": true, "bsa": true, "ccm": true,
		"cf": true, "dx": true, "emtb": true, "ex": true, "gs": true, "gt": true, "gtx": true,
		"hd": true, "ktm": true, "lx": true, "mtb": true, "mv": true, "rr": true, "rs": true,
		"se": true, "sl": true, "slr": true, "sx": true, "tt": true, "usa": true, "xc": true, "zx": true,
	}
)

// Name cleans a display name: trademark symbols removed, whitespace collapsed,
// all-lower and all-upper words title-cased, acronyms and alphanumeric codes upper-cased.
func Name(s string) string {
	words := strings.Fields(symbolReplacer.Replace(s))
	for i, word := range words {
		parts := strings.Split(word, "-")
		for j, part := range parts {
			parts[j] = caseWord(part)
		}
		words[i] = strings.Join(parts, "-")
	}
	return strings.Join(words, " ")
}

func caseWord(word string) string {
	if word == "" {
		return word
	}

	lower := strings.ToLower(word)
	if acronyms[lower] {
		return strings.ToUpper(word)
	}

	hasDigit, hasLetter := false, false
	for _, r := range word {
		switch {
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsLetter(r):
			hasLetter = true
		}
	}
	if hasDigit && hasLetter {
		return strings.ToUpper(word)
	}
	if !hasLetter {
		return word
	}

	if word != lower && word != strings.ToUpper(word) {
		// mixed case is deliberate (McLaren, eMTB)
		return word
	}

	runes := []rune(lower)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// Slug lower-cases s and joins its alphanumeric runs with dashes
func Slug(s string) string {
	s = strings.ToLower(symbolReplacer.Replace(s))
	return strings.Trim(nonSlugChars.ReplaceAllString(s, "-"), "-")
}

// Key is the deduplication identity of a catalog record
func Key(manufacturer, model string, year int, pkg string) string {
	return fmt.Sprintf("%s|%s|%d|%s", Slug(manufacturer), Slug(model), year, Slug(pkg))
}

var makeAliases = map[string]string{
	"harley davidson":     "Harley-Davidson",
	"harley":              "Harley-Davidson",
	"h d":                 "Harley-Davidson",
	"mv agusta":           "MV Agusta",
	"royal enfield":       "Royal Enfield",
	"trek bicycle":        "Trek",
	"trek bikes":          "Trek",
	"specialized bikes":   "Specialized",
	"giant bicycles":      "Giant",
	"santa cruz bicycles": "Santa Cruz",
	"ktm sportmotorcycle": "KTM",
}

// MakeResolver maps make spellings onto one canonical name.
// It is safe for concurrent use.
type MakeResolver struct {
	mu        sync.Mutex
	known     []string
	threshold float64
}

// NewMakeResolver creates a resolver seeded with canonical makes
func NewMakeResolver(known ...string) *MakeResolver {
	r := &MakeResolver{threshold: 0.93}
	for _, k := range known {
		r.known = append(r.known, Name(k))
	}
	return r
}

// Resolve returns the canonical spelling for name: alias table first, then an exact
// case-insensitive match, then the closest known make by Jaro-Winkler similarity.
// Unmatched names are cleaned and remembered as new makes.
func (r *MakeResolver) Resolve(name string) string {
	cleaned := Name(name)
	if cleaned == "" {
		return ""
	}

	lookup := strings.ToLower(strings.ReplaceAll(cleaned, "-", " "))
	if canonical, ok := makeAliases[lookup]; ok {
		return canonical
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, k := range r.known {
		if strings.EqualFold(k, cleaned) {
			return k
		}
	}

	if len(cleaned) >= 4 {
		best, bestScore := "", 0.0
		for _, k := range r.known {
			score := matchr.JaroWinkler(strings.ToLower(cleaned), strings.ToLower(k), false)
			if score > bestScore {
				best, bestScore = k, score
			}
		}
		if bestScore >= r.threshold {
			return best
		}
	}

	r.known = append(r.known, cleaned)
	return cleaned
}

// Known returns the makes the resolver knows about
func (r *MakeResolver) Known() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.known...)
}
