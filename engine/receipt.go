package engine

import "fmt"

// receiptSequenceWidth is the zero-padded width of the per-year receipt
// counter. Sequences past 9999 simply widen; the format stays parseable.
const receiptSequenceWidth = 4

// FormatReceiptNumber builds the human-readable receipt identifier:
// institution code, year, dash, zero-padded sequence. Example:
// "GHS2026-0042".
func FormatReceiptNumber(institutionCode string, year, sequence int) string {
	return fmt.Sprintf("%s%d-%0*d", institutionCode, year, receiptSequenceWidth, sequence)
}
