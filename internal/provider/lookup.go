package provider

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s and strips diacritics, so "İmsak", "imsak" and "IMSAK"
// compare equal. Dotless ı folds to i.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	out = strings.ToLower(out)
	out = strings.ReplaceAll(out, "ı", "i")
	return strings.TrimSpace(out)
}

// LookupField finds the first variant present in row, comparing keys
// case- and accent-insensitively. Values are returned as strings; numbers
// are formatted without exponent. ok is false if no variant is present
// with a non-empty value.
func LookupField(row map[string]interface{}, variants ...string) (string, bool) {
	folded := make(map[string]interface{}, len(row))
	for k, v := range row {
		folded[Fold(k)] = v
	}
	for _, variant := range variants {
		v, exists := folded[Fold(variant)]
		if !exists || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			if strings.TrimSpace(val) != "" {
				return strings.TrimSpace(val), true
			}
		case float64:
			return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%f", val), "0"), "."), true
		case map[string]interface{}:
			// Nested {"date": "..."} objects: recurse with the same variants.
			if s, ok := LookupField(val, variants...); ok {
				return s, true
			}
		}
	}
	return "", false
}
