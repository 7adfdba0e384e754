/**
 * @description
 * Pure display helpers for the association's currencies. The primary currency
 * is XAF; EUR figures shown next to XAF amounts are informational conversions
 * at a fixed compile-time rate, never settlement values.
 */

package currency

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// XAFToEURRate is the fixed conversion rate: 1 EUR = 655.957 XAF.
const XAFToEURRate = 655.957

// Format renders an amount with its currency code for display.
func Format(amount float64, code string) string {
	switch code {
	case "XAF", "":
		return groupDigits(amount) + " XAF"
	case "USD":
		return "$" + groupDigits(amount)
	case "EUR":
		return "€" + groupDigits(amount)
	default:
		return groupDigits(amount) + " " + code
	}
}

// FormatDual renders an XAF amount together with its fixed-rate EUR
// equivalent, e.g. "15,000 XAF | €22.87".
func FormatDual(amountXAF float64) string {
	return fmt.Sprintf("%s XAF | €%s", groupDigits(amountXAF), groupDigits(ConvertXAFToEUR(amountXAF)))
}

// ConvertXAFToEUR converts an XAF amount to EUR at the fixed rate, rounded to
// 2 decimal places.
func ConvertXAFToEUR(amountXAF float64) float64 {
	return math.Round(amountXAF/XAFToEURRate*100) / 100
}

// ConvertEURToXAF converts a EUR amount to XAF at the fixed rate, rounded to
// the nearest whole franc (XAF has no minor unit in circulation).
func ConvertEURToXAF(amountEUR float64) float64 {
	return math.Round(amountEUR * XAFToEURRate)
}

// groupDigits formats a number with thousands separators, keeping up to two
// decimal places and trimming a trailing ".00".
func groupDigits(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimSuffix(s, ".00")

	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, fracPart, hasFrac := strings.Cut(s, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, d := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(fracPart)
	}
	return b.String()
}
