package qbxml

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/nebg-ship/190Group-Analytics-Dashboard/internal/domain/shared"
)

const maxMemoLength = 4095

// FormatDecimal renders raw as its shortest exact decimal text:
// "2.500" becomes "2.5", "4.0" becomes "4".
func FormatDecimal(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("qbxml: empty numeric value")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return "", fmt.Errorf("qbxml: invalid numeric value %q", raw)
	}
	return d.String(), nil
}

// formatQuantity is FormatDecimal reporting failures as build errors
func formatQuantity(field, raw string) (string, error) {
	out, err := FormatDecimal(raw)
	if err != nil {
		return "", shared.NewDomainError(shared.CodeInvalidQuantity,
			fmt.Sprintf("Invalid numeric value for qbXML %s: %q", field, raw))
	}
	return out, nil
}

// truncateRunes cuts s to at most n characters
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
