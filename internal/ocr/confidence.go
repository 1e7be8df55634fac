package ocr

import (
	"regexp"
	"strings"
)

var (
	reDate   = regexp.MustCompile(`\b\d{1,2}[/\-.]\d{1,2}[/\-.](?:\d{2}|\d{4})\b`)
	reCurr   = regexp.MustCompile(`€|\beuros?\b|\beur\b`)
	reAmount = regexp.MustCompile(`\b\d+[.,]\d{2}\b`)
	reTax    = regexp.MustCompile(`\btva\b|\bht\b|\bttc\b`)
)

// heuristicConfidence estimates decode quality from receipt artifacts in the
// recognized text (dates, euro signs, cent amounts, tax vocabulary).
func heuristicConfidence(txt string) float32 {
	low := strings.ToLower(txt)
	score := float32(0.2)
	if reDate.MatchString(low) {
		score += 0.2
	}
	if reCurr.MatchString(low) {
		score += 0.15
	}
	if reAmount.MatchString(low) {
		score += 0.15
	}
	if reTax.MatchString(low) {
		score += 0.15
	}
	if len(txt) > 120 {
		score += 0.1
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}
