// Package pix формирует платёжные коды PIX (BR Code) и их QR-представление.
package pix

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/gamestore/internal/textnorm"
)

const (
	pixGUI       = "br.gov.bcb.pix"
	maxNameLen   = 25
	maxCityLen   = 15
	maxTxIDLen   = 25
	currencyBRL  = "986"
	countryBR    = "BR"
	merchantCode = "0000"
)

// ErrNoKey возвращается, если ключ PIX получателя не задан.
var ErrNoKey = errors.New("pix key is not configured")

// Merchant описывает получателя платежа.
type Merchant struct {
	Key  string
	Name string
	City string
}

// BuildPayload собирает статический BR Code "copia e cola" на сумму amount.
func BuildPayload(m Merchant, amount decimal.Decimal, txid string) (string, error) {
	if m.Key == "" {
		return "", ErrNoKey
	}
	if amount.IsNegative() {
		return "", fmt.Errorf("negative amount %s", amount)
	}

	txid = sanitizeTxID(txid)
	if txid == "" {
		txid = "***"
	}

	var b strings.Builder
	b.WriteString(field("00", "01"))
	b.WriteString(field("26", field("00", pixGUI)+field("01", m.Key)))
	b.WriteString(field("52", merchantCode))
	b.WriteString(field("53", currencyBRL))
	if amount.IsPositive() {
		b.WriteString(field("54", amount.StringFixed(2)))
	}
	b.WriteString(field("58", countryBR))
	b.WriteString(field("59", clip(strings.ToUpper(textnorm.StripAccents(m.Name)), maxNameLen)))
	b.WriteString(field("60", clip(strings.ToUpper(textnorm.StripAccents(m.City)), maxCityLen)))
	b.WriteString(field("62", field("05", txid)))
	b.WriteString("6304")

	payload := b.String()
	return payload + fmt.Sprintf("%04X", CRC16([]byte(payload))), nil
}

// CRC16 считает CRC-16/CCITT-FALSE (полином 0x1021, начальное значение 0xFFFF).
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// ValidPayload проверяет контрольную сумму BR Code.
func ValidPayload(payload string) bool {
	if len(payload) < 8 || payload[len(payload)-8:len(payload)-4] != "6304" {
		return false
	}
	body := payload[:len(payload)-4]
	return fmt.Sprintf("%04X", CRC16([]byte(body))) == payload[len(payload)-4:]
}

func field(id, value string) string {
	return fmt.Sprintf("%s%02d%s", id, len(value), value)
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) > n {
		return s[:n]
	}
	return s
}

func sanitizeTxID(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
		}
		if b.Len() == maxTxIDLen {
			break
		}
	}
	return b.String()
}
