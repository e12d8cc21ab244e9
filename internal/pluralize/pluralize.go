// Package pluralize derives English plural forms for table names (used to
// infer back-reference relation names) and renders "a, b and c"-style lists
// for the error messages the schema registry and path parser raise.
package pluralize

import (
	"fmt"
	"sort"
	"strings"
)

// irregular holds whole-word exceptions that don't follow any suffix rule.
var irregular = map[string]string{
	"person": "people",
	"child":  "children",
	"man":    "men",
	"woman":  "women",
	"tooth":  "teeth",
	"foot":   "feet",
	"mouse":  "mice",
	"goose":  "geese",
}

// oEndingTakesEs lists common words ending in a consonant + "o" that take
// "es" rather than a bare "s" (piano, photo, etc. are the exceptions to this
// exception, and fall through to the default "+s" rule below).
var oEndingTakesEs = map[string]bool{
	"echo": true, "hero": true, "potato": true, "tomato": true,
	"veto": true, "torpedo": true, "embargo": true,
}

var vowels = map[byte]bool{'a': true, 'e': true, 'i': true, 'o': true, 'u': true}

// Of returns the plural form of a lowercase, singular word.
func Of(word string) string {
	if plural, ok := irregular[word]; ok {
		return plural
	}
	n := len(word)
	if n == 0 {
		return word
	}
	switch {
	// Short identifiers ("t", "x", "f") are column/table names, not English
	// words, so the f/fe -> ves rule only kicks in once there's a real word
	// around the trailing f (leaf, shelf, life, knife).
	case strings.HasSuffix(word, "fe") && n >= 4:
		return word[:n-2] + "ves"
	case strings.HasSuffix(word, "f") && n >= 3:
		return word[:n-1] + "ves"
	case strings.HasSuffix(word, "y") && n >= 2 && !vowels[word[n-2]]:
		return word[:n-1] + "ies"
	case strings.HasSuffix(word, "is") && n >= 3:
		return word[:n-2] + "es"
	case strings.HasSuffix(word, "ch"), strings.HasSuffix(word, "sh"):
		return word + "es"
	case strings.HasSuffix(word, "s"):
		return word + "es"
	case strings.HasSuffix(word, "o") && oEndingTakesEs[word]:
		return word + "es"
	default:
		return word + "s"
	}
}

// And joins items into a human-readable list: "<none>" for zero items, the
// lone item for one, "a and b" for two, "a, b and c" for three or more.
func And[T any](items []T) string {
	if len(items) == 0 {
		return "<none>"
	}
	strs := make([]string, len(items))
	for i, item := range items {
		strs[i] = fmt.Sprint(item)
	}
	if len(strs) == 1 {
		return strs[0]
	}
	return strings.Join(strs[:len(strs)-1], ", ") + " and " + strs[len(strs)-1]
}

// AndSorted is And but sorts the items first, used when rendering
// "available X are ..." messages over map keys where order isn't otherwise
// meaningful.
func AndSorted(items []string) string {
	sorted := append([]string(nil), items...)
	sort.Strings(sorted)
	return And(sorted)
}
