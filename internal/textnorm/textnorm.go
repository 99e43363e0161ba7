// Package textnorm нормализует пользовательский текст для сравнения и платёжных кодов.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// StripAccents удаляет диакритические знаки: "São Paulo" -> "Sao Paulo".
func StripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Fold приводит текст к нижнему регистру без диакритики и пунктуации,
// схлопывая пробелы.
func Fold(s string) string {
	s = strings.ToLower(StripAccents(s))

	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			space = false
			continue
		}
		if !space && b.Len() > 0 {
			b.WriteByte(' ')
			space = true
		}
	}
	return strings.TrimSpace(b.String())
}

// Tokens разбивает нормализованный текст на слова.
func Tokens(s string) []string {
	return strings.Fields(Fold(s))
}
