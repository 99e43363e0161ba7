// Package validation содержит функции валидации входных данных.
package validation

import "unicode"

const (
	minSnowflakeLen = 17
	maxSnowflakeLen = 20

	minPromoCodeLen = 3
	maxPromoCodeLen = 32
)

// IsValidUserID проверяет, что строка похожа на Discord snowflake: от 17 до 20 цифр без ведущего нуля.
func IsValidUserID(id string) bool {
	if len(id) < minSnowflakeLen || len(id) > maxSnowflakeLen || id[0] == '0' {
		return false
	}
	for _, ch := range id {
		if !unicode.IsDigit(ch) || ch > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// IsValidPromoCode проверяет промокод: латинские буквы, цифры, дефис и подчёркивание.
// Пустая строка допустима и означает отсутствие промокода.
func IsValidPromoCode(code string) bool {
	if code == "" {
		return true
	}
	if len(code) < minPromoCodeLen || len(code) > maxPromoCodeLen {
		return false
	}
	for _, ch := range code {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case ch == '-' || ch == '_':
		default:
			return false
		}
	}
	return true
}
