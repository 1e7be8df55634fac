// Package textnorm cleans raw OCR text before extraction: unified spacing,
// split glued amounts, stable line segmentation. Normalize is idempotent and
// never drops a numeric token.
package textnorm

import (
	"regexp"
	"strings"
)

var (
	// decimals immediately followed by another digit: "30,003,00" -> "30,00 3,00"
	reGluedDecimals = regexp.MustCompile(`([.,]\d{2})(\d)`)
	// two full amounts glued together without a separator
	reGluedAmounts = regexp.MustCompile(`(\d{1,8}[.,]\d{2})(\d{1,8}[.,]\d{2})`)
	reEuroSign     = regexp.MustCompile(`[ \t]*€[ \t]*`)
	reInnerSpace   = regexp.MustCompile(`[ \t]{2,}`)
)

// invisible characters OCR engines tend to emit
var charReplacer = strings.NewReplacer(
	" ", " ", // nbsp
	" ", " ", // narrow nbsp
	"。", " ",
	"\t", " ",
	"\r", "",
)

// Normalize cleans raw OCR text. It returns the input reshaped, never an
// error; when nothing can be improved the text comes back unchanged apart
// from line trimming.
func Normalize(raw string) string {
	text := charReplacer.Replace(raw)
	text = reEuroSign.ReplaceAllString(text, " € ")
	text = reGluedDecimals.ReplaceAllString(text, "$1 $2")
	text = reGluedAmounts.ReplaceAllString(text, "$1 $2")

	lines := strings.Split(text, "\n")
	for i, ln := range lines {
		ln = reInnerSpace.ReplaceAllString(ln, " ")
		lines[i] = strings.TrimSpace(ln)
	}
	return strings.Join(lines, "\n")
}

// Lines segments normalized text into its ordered line array. Empty lines are
// kept so that line offsets stay stable for duplicate detection downstream.
func Lines(text string) []string {
	return strings.Split(text, "\n")
}
