package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"

	"github.com/mehdidadah/scanzo/internal/common"
)

// Tesseract is the default OCR provider. Each Recognize call runs its own
// gosseract client; the library is not safe to share across goroutines.
type Tesseract struct {
	cfg    common.OCRConfig
	logger *slog.Logger
}

func NewTesseract(cfg common.OCRConfig, logger *slog.Logger) *Tesseract {
	if cfg.Language == "" {
		cfg.Language = "fra"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tesseract{cfg: cfg, logger: logger}
}

func (t *Tesseract) Recognize(ctx context.Context, path string) (Result, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	var warnings []string
	input, cleanup, err := preprocess(path)
	if err != nil {
		// fall back to the raw file; Tesseract handles most formats itself
		warnings = append(warnings, fmt.Sprintf("preprocess: %v", err))
		input = path
	}
	if cleanup != nil {
		defer cleanup()
	}

	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(t.cfg.Language); err != nil {
		return Result{}, fmt.Errorf("set language %q: %w", t.cfg.Language, err)
	}
	if t.cfg.TessdataDir != "" {
		_ = client.SetTessdataPrefix(t.cfg.TessdataDir)
	}
	if err := client.SetImage(input); err != nil {
		return Result{}, fmt.Errorf("set image %s: %w", input, err)
	}

	text, err := client.Text()
	if err != nil {
		return Result{}, fmt.Errorf("tesseract: %w", err)
	}

	res := Result{
		Text:       text,
		Confidence: heuristicConfidence(text),
		Language:   t.cfg.Language,
		Duration:   time.Since(start),
		Warnings:   warnings,
	}
	t.logger.Debug("ocr.recognize.done",
		"path", path, "chars", len(text),
		"confidence", res.Confidence, "duration", res.Duration)
	return res, nil
}

// preprocess grayscales, bumps contrast and upscales small photos before OCR.
// Returns the temp file to feed Tesseract and its cleanup.
func preprocess(path string) (string, func(), error) {
	img, err := imaging.Open(path)
	if err != nil {
		return "", nil, fmt.Errorf("open image: %w", err)
	}
	gray := imaging.Grayscale(img)
	gray = imaging.AdjustContrast(gray, 15)
	gray = imaging.Sharpen(gray, 0.7)
	if gray.Bounds().Dy() < 900 {
		gray = imaging.Resize(gray, 0, 1300, imaging.Lanczos)
	}

	tmp, err := os.CreateTemp("", "scanzo-ocr-*.png")
	if err != nil {
		return "", nil, err
	}
	name := tmp.Name()
	_ = tmp.Close()
	if err := imaging.Save(gray, name); err != nil {
		_ = os.Remove(name)
		return "", nil, fmt.Errorf("save preprocessed image: %w", err)
	}
	return name, func() { _ = os.Remove(name) }, nil
}
