package catalog

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases value, strips accents and joins alphanumeric runs with
// single hyphens: "Étui Élégant!" becomes "etui-elegant".
func Slugify(value string) string {
	lowered := strings.ToLower(value)
	stripped, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn))), lowered)
	if err != nil {
		stripped = lowered
	}
	return strings.Trim(nonAlphanumeric.ReplaceAllString(stripped, "-"), "-")
}
