package registry

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/kozaktomas/face-registry/internal/database"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "José" -> "Jose").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// SearchKey normalizes a name for comparison (lowercase, no diacritics, spaces for dashes).
func SearchKey(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return strings.Join(strings.Fields(name), " ")
}

// MatchesSearch reports whether query occurs in the identity's full name or
// email, ignoring case and diacritics. An empty query matches everything.
func MatchesSearch(identity *database.Identity, query string) bool {
	q := SearchKey(query)
	if q == "" {
		return true
	}
	full := SearchKey(identity.Name + " " + identity.Surname)
	return strings.Contains(full, q) || strings.Contains(strings.ToLower(identity.Email), q)
}
