package ingest

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/mehdidadah/scanzo/constants"
	"github.com/mehdidadah/scanzo/internal/common"
	"github.com/mehdidadah/scanzo/internal/engine"
	"github.com/mehdidadah/scanzo/internal/entity"
	"github.com/mehdidadah/scanzo/internal/ocr"
	"github.com/mehdidadah/scanzo/internal/registry"
	"github.com/mehdidadah/scanzo/internal/repository"
)

type stubProvider struct {
	text string
}

func (s stubProvider) Recognize(context.Context, string) (ocr.Result, error) {
	return ocr.Result{Text: s.text, Confidence: 0.9}, nil
}

type memScans struct {
	saved []*entity.Scan
}

func (m *memScans) SaveScan(_ context.Context, s *entity.Scan) error {
	m.saved = append(m.saved, s)
	return nil
}

func (m *memScans) GetScan(context.Context, uuid.UUID) (*entity.Scan, error) { return nil, nil }

func (m *memScans) ListScans(context.Context, repository.ListScansFilter) ([]*entity.Scan, error) {
	return m.saved, nil
}

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	reg, err := registry.Default()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	e, err := engine.New(reg, common.EngineConfig{Tolerance: "0.01"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return e
}

const receiptText = "CARREFOUR MARKET\nTOTAL HT: 45,45 €\nTOTAL TVA: 4,55 €\nTOTAL TTC: 50,00 €\n"

func TestProcessTextDump(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ticket.txt")
	if err := os.WriteFile(path, []byte(receiptText), 0o644); err != nil {
		t.Fatal(err)
	}

	repo := &memScans{}
	r := NewRunner(newTestEngine(t), stubProvider{}, repo, "fr", nil)

	scan, err := r.ProcessFile(context.Background(), path)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if scan.Filename != "ticket.txt" {
		t.Errorf("filename = %q", scan.Filename)
	}
	if scan.TotalTTC == nil || *scan.TotalTTC != 50 {
		t.Errorf("total ttc = %v, want 50", scan.TotalTTC)
	}
	if !scan.Coherent {
		t.Error("coherent receipt persisted as incoherent")
	}
	if len(repo.saved) != 1 {
		t.Fatalf("saved %d scans, want 1", len(repo.saved))
	}
}

func TestProcessImageThroughProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ticket.jpg")
	if err := os.WriteFile(path, []byte("not really a jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}

	repo := &memScans{}
	r := NewRunner(newTestEngine(t), stubProvider{text: receiptText}, repo, "fr", nil)

	scan, err := r.ProcessFile(context.Background(), path)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if scan.Vendor == nil || *scan.Vendor != "CARREFOUR MARKET" {
		t.Errorf("vendor = %v", scan.Vendor)
	}
}

func TestConsumeStopsOnClose(t *testing.T) {
	r := NewRunner(newTestEngine(t), stubProvider{}, nil, "fr", nil)
	paths := make(chan string)
	close(paths)

	done := make(chan struct{})
	go func() {
		r.Consume(context.Background(), paths)
		close(done)
	}()
	<-done
}

func TestAllowedExtensions(t *testing.T) {
	for path, want := range map[string]bool{
		"a/ticket.JPG":  true,
		"a/ticket.txt":  true,
		"a/ticket.webp": true,
		"a/ticket.pdf":  false,
		"a/.hidden":     false,
	} {
		if got := allowed(path, constants.AllowedExtensions); got != want {
			t.Errorf("allowed(%q) = %v, want %v", path, got, want)
		}
	}
}
