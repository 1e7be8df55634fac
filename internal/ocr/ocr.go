// Package ocr turns receipt images into raw text for the extraction engine.
package ocr

import (
	"context"
	"time"
)

// Result is the raw OCR output before any engine normalization.
type Result struct {
	Text       string
	Confidence float32
	Language   string
	Duration   time.Duration
	Warnings   []string
}

// Provider recognizes text in an image file. Implementations must be safe
// for concurrent use.
type Provider interface {
	Recognize(ctx context.Context, path string) (Result, error)
}
