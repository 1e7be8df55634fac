// runextract runs the extraction engine over a single file and prints the
// result as JSON. Text dumps are fed straight to the engine; pass an image
// to go through Tesseract first.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mehdidadah/scanzo/constants"
	"github.com/mehdidadah/scanzo/internal/common"
	"github.com/mehdidadah/scanzo/internal/engine"
	"github.com/mehdidadah/scanzo/internal/ocr"
	"github.com/mehdidadah/scanzo/internal/registry"
)

func main() {
	locale := flag.String("locale", "fr", "locale hint for rule filtering")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: runextract [-locale fr] [-v] <file>")
		os.Exit(2)
	}
	path := flag.Arg(0)

	cfg := common.LoadConfig()
	reg, err := loadRegistry(cfg.Engine.RegistryPath)
	if err != nil {
		logger.Error("loading pattern registry", "error", err)
		os.Exit(1)
	}
	eng, err := engine.New(reg, cfg.Engine, logger)
	if err != nil {
		logger.Error("building engine", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	raw, err := rawText(ctx, cfg, logger, path)
	if err != nil {
		logger.Error("reading input", "path", path, "error", err)
		os.Exit(1)
	}

	res := eng.Extract(ctx, raw, *locale)

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		logger.Error("encoding result", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func rawText(ctx context.Context, cfg *common.Config, logger *slog.Logger, path string) (string, error) {
	if constants.IsTextExt(filepath.Ext(path)) {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	provider := ocr.NewTesseract(cfg.OCR, logger)
	res, err := provider.Recognize(ctx, path)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

func loadRegistry(path string) (*registry.Registry, error) {
	if path == "" {
		return registry.Default()
	}
	return registry.LoadFile(path)
}
