package mapping

import (
	"strings"
	"unicode"
)

// NameConvert converts a Go identifier to a table or column name. With
// mapCamelCase off the name is returned unchanged. With it on, the first
// rune is lower-cased and every later upper-case rune is lower-cased and
// prefixed with '_' when the previous rune is lower-case or the next rune is
// lower-case. Acronyms stay together: "HTTPStatus" becomes "http_status".
func NameConvert(name string, mapCamelCase bool) string {
	if !mapCamelCase || name == "" {
		return name
	}

	runes := []rune(name)
	var b strings.Builder
	b.Grow(len(name) + 4)

	b.WriteRune(unicode.ToLower(runes[0]))
	for i := 1; i < len(runes); i++ {
		r := runes[i]
		if !unicode.IsUpper(r) {
			b.WriteRune(r)
			continue
		}
		prevLower := unicode.IsLower(runes[i-1])
		nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
		if prevLower || nextLower {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}
