package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mehdidadah/scanzo/internal/common"
	"github.com/mehdidadah/scanzo/internal/engine"
	"github.com/mehdidadah/scanzo/internal/entity"
	"github.com/mehdidadah/scanzo/internal/export"
	"github.com/mehdidadah/scanzo/internal/ingest"
	"github.com/mehdidadah/scanzo/internal/ocr"
	"github.com/mehdidadah/scanzo/internal/registry"
	"github.com/mehdidadah/scanzo/internal/repository"
)

type memScans struct {
	byID map[uuid.UUID]*entity.Scan
}

func newMemScans() *memScans { return &memScans{byID: map[uuid.UUID]*entity.Scan{}} }

func (m *memScans) SaveScan(_ context.Context, s *entity.Scan) error {
	m.byID[s.ID] = s
	return nil
}

func (m *memScans) GetScan(_ context.Context, id uuid.UUID) (*entity.Scan, error) {
	s, ok := m.byID[id]
	if !ok {
		return nil, common.NewAppError(common.ErrCodeNotFound, "scan "+id.String(), common.ErrNotFound)
	}
	return s, nil
}

func (m *memScans) ListScans(context.Context, repository.ListScansFilter) ([]*entity.Scan, error) {
	var out []*entity.Scan
	for _, s := range m.byID {
		out = append(out, s)
	}
	return out, nil
}

type stubProvider struct{ text string }

func (p stubProvider) Recognize(context.Context, string) (ocr.Result, error) {
	return ocr.Result{Text: p.text}, nil
}

func newTestServer(t *testing.T, scans repository.ScanRepository) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg, err := registry.Default()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	eng, err := engine.New(reg, common.EngineConfig{Tolerance: "0.01"}, logger)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	runner := ingest.NewRunner(eng, stubProvider{}, scans, "fr", logger)
	exp := export.NewService(scans, logger)
	return New(eng, runner, scans, exp, nil, common.ServerConfig{UploadMaxBytes: 1 << 20}, logger)
}

const receiptText = "CARREFOUR MARKET\nTOTAL HT: 45,45 €\nTOTAL TVA: 4,55 €\nTOTAL TTC: 50,00 €\n"

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, newMemScans())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestExtractEndpoint(t *testing.T) {
	srv := newTestServer(t, newMemScans())
	body, _ := json.Marshal(map[string]string{"text": receiptText, "locale": "fr"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/extract", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var res entity.ExtractionResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Coherent {
		t.Errorf("coherent = false: %s", w.Body.String())
	}
	ttc := res.Field("total_ttc")
	if ttc.Amount == nil || !ttc.Amount.Equal(ttc.Amount.Round(2)) {
		t.Errorf("ttc = %+v", ttc)
	}
}

func TestExtractEndpointRequiresText(t *testing.T) {
	srv := newTestServer(t, newMemScans())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/extract", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func uploadRequest(t *testing.T, field, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatal(err)
	}
	_ = mw.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestScanUploadAndFetch(t *testing.T) {
	scans := newMemScans()
	srv := newTestServer(t, scans)
	router := srv.Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, "file", "ticket.txt", []byte(receiptText)))
	if w.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body = %s", w.Code, w.Body.String())
	}
	var scan entity.Scan
	if err := json.Unmarshal(w.Body.Bytes(), &scan); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if scan.Filename != "ticket.txt" {
		t.Errorf("filename = %q", scan.Filename)
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/scans/"+scan.ID.String(), nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("fetch status = %d", w.Code)
	}
}

func TestScanUploadRejectsExtension(t *testing.T) {
	srv := newTestServer(t, newMemScans())
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, uploadRequest(t, "file", "malware.exe", []byte("x")))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestGetScanNotFound(t *testing.T) {
	srv := newTestServer(t, newMemScans())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/scans/"+uuid.NewString(), nil)
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestListScansNeverNull(t *testing.T) {
	srv := newTestServer(t, newMemScans())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/scans", nil)
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte(`"scans":[]`)) {
		t.Errorf("empty list not serialized as []: %s", w.Body.String())
	}
}

func TestListScansRejectsBadDate(t *testing.T) {
	srv := newTestServer(t, newMemScans())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/scans?from=03-2024", nil)
	srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestExportEndpoint(t *testing.T) {
	scans := newMemScans()
	srv := newTestServer(t, scans)
	router := srv.Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, uploadRequest(t, "file", "ticket.txt", []byte(receiptText)))
	if w.Code != http.StatusCreated {
		t.Fatalf("seed upload status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/scans/export", nil)
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Errorf("content type = %q", ct)
	}
	if w.Body.Len() == 0 {
		t.Error("empty export body")
	}
}
