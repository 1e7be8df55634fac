package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mehdidadah/scanzo/constants"
	"github.com/mehdidadah/scanzo/internal/engine"
	"github.com/mehdidadah/scanzo/internal/entity"
	"github.com/mehdidadah/scanzo/internal/ocr"
	"github.com/mehdidadah/scanzo/internal/repository"
)

// Runner consumes discovered file paths: text dumps go straight to the
// engine, images pass through the OCR provider first, and every result is
// persisted as a scan. A nil repository disables persistence (dry runs).
type Runner struct {
	engine   *engine.Engine
	provider ocr.Provider
	scans    repository.ScanRepository
	locale   string
	logger   *slog.Logger
}

func NewRunner(eng *engine.Engine, provider ocr.Provider, scans repository.ScanRepository, locale string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{engine: eng, provider: provider, scans: scans, locale: locale, logger: logger}
}

// Consume processes paths until the channel closes or ctx is done. A failing
// file is logged and skipped; one bad drop never stops the loop.
func (r *Runner) Consume(ctx context.Context, paths <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-paths:
			if !ok {
				return
			}
			if _, err := r.ProcessFile(ctx, p); err != nil {
				r.logger.Error("ingest.process.failed", "path", p, "error", err)
			}
		}
	}
}

// ProcessFile runs one file through the pipeline and persists the scan.
func (r *Runner) ProcessFile(ctx context.Context, path string) (*entity.Scan, error) {
	return r.ProcessFileAs(ctx, path, filepath.Base(path))
}

// ProcessFileAs is ProcessFile with an explicit display filename, for callers
// feeding temp copies of uploads.
func (r *Runner) ProcessFileAs(ctx context.Context, path, filename string) (*entity.Scan, error) {
	raw, err := r.rawText(ctx, path)
	if err != nil {
		return nil, err
	}

	res := r.engine.Extract(ctx, raw, r.locale)
	scan := entity.NewScan(filename, raw, res)

	if r.scans != nil {
		if err := r.scans.SaveScan(ctx, &scan); err != nil {
			return nil, err
		}
	}
	r.logger.Info("ingest.process.done",
		"path", path,
		"scan_id", scan.ID,
		"confidence", scan.Confidence,
		"coherent", scan.Coherent)
	return &scan, nil
}

func (r *Runner) rawText(ctx context.Context, path string) (string, error) {
	if constants.IsTextExt(filepath.Ext(path)) {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	out, err := r.provider.Recognize(ctx, path)
	if err != nil {
		return "", err
	}
	for _, w := range out.Warnings {
		r.logger.Warn("ingest.ocr.warning", "path", path, "warning", w)
	}
	return out.Text, nil
}
