package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Receipt numbers look like SC2025000189: a fixed prefix, a four-digit
// year, and a six-digit sequence that is monotonic within its
// exhibition-year scope. The receipt number doubles as the merchant
// reference sent to the gateway.
const (
	ReceiptPrefix = "SC"
	seqDigits     = 6

	// MaxReceiptSeq is the largest sequence the fixed-width format can
	// carry; FormatReceiptNumber widens beyond it.
	MaxReceiptSeq = 999999
)

func FormatReceiptNumber(year, seq int) string {
	return fmt.Sprintf("%s%d%0*d", ReceiptPrefix, year, seqDigits, seq)
}

func ParseReceiptNumber(receipt string) (year, seq int, err error) {
	if !strings.HasPrefix(receipt, ReceiptPrefix) {
		return 0, 0, fmt.Errorf("receipt number %q: missing %s prefix", receipt, ReceiptPrefix)
	}
	rest := receipt[len(ReceiptPrefix):]
	if len(rest) != 4+seqDigits {
		return 0, 0, fmt.Errorf("receipt number %q: want %d digits after prefix, got %d", receipt, 4+seqDigits, len(rest))
	}
	year, err = strconv.Atoi(rest[:4])
	if err != nil {
		return 0, 0, fmt.Errorf("receipt number %q: bad year: %w", receipt, err)
	}
	seq, err = strconv.Atoi(rest[4:])
	if err != nil {
		return 0, 0, fmt.Errorf("receipt number %q: bad sequence: %w", receipt, err)
	}
	return year, seq, nil
}
