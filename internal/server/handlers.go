package server

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mehdidadah/scanzo/constants"
	"github.com/mehdidadah/scanzo/internal/common"
	"github.com/mehdidadah/scanzo/internal/entity"
	"github.com/mehdidadah/scanzo/internal/repository"
)

// scanHandler accepts a multipart upload (image or OCR text dump), runs the
// full pipeline and persists the result.
func (s *Server) scanHandler(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}
	if s.cfg.UploadMaxBytes > 0 && fh.Size > s.cfg.UploadMaxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	ext := constants.NormalizeExt(filepath.Ext(fh.Filename))
	if _, ok := constants.AllowedExtensions[ext]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported file extension: " + ext})
		return
	}

	tmp, err := os.CreateTemp("", "scanzo-upload-*."+ext)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "temp file"})
		return
	}
	tmpName := tmp.Name()
	_ = tmp.Close()
	defer func() { _ = os.Remove(tmpName) }()
	if err := c.SaveUploadedFile(fh, tmpName); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store upload"})
		return
	}

	scan, err := s.runner.ProcessFileAs(c.Request.Context(), tmpName, fh.Filename)
	if err != nil {
		s.logger.Error("scan upload failed", "filename", fh.Filename, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "extraction failed"})
		return
	}
	c.JSON(http.StatusCreated, scan)
}

type extractRequest struct {
	Text   string `json:"text" binding:"required"`
	Locale string `json:"locale"`
}

// extractHandler runs the engine over raw text without persistence.
func (s *Server) extractHandler(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res := s.engine.Extract(c.Request.Context(), req.Text, req.Locale)
	c.JSON(http.StatusOK, res)
}

func (s *Server) getScanHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid scan id"})
		return
	}
	scan, err := s.scans.GetScan(c.Request.Context(), id)
	if err != nil {
		var appErr *common.AppError
		if errors.As(err, &appErr) && appErr.Code == common.ErrCodeNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "scan not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, scan)
}

func (s *Server) listScansHandler(c *gin.Context) {
	filter, ok := parseListFilter(c)
	if !ok {
		return
	}
	scans, err := s.scans.ListScans(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	if scans == nil {
		scans = []*entity.Scan{} // never null in JSON
	}
	c.JSON(http.StatusOK, gin.H{"scans": scans, "count": len(scans)})
}

func (s *Server) exportHandler(c *gin.Context) {
	from, ok := parseDateQuery(c, "from")
	if !ok {
		return
	}
	to, ok := parseDateQuery(c, "to")
	if !ok {
		return
	}
	out, err := s.export.ExportScansXLSX(c.Request.Context(), from, to)
	if err != nil {
		s.logger.Error("export failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
		return
	}
	name := "scans-" + time.Now().UTC().Format("20060102") + ".xlsx"
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", out)
}

func parseListFilter(c *gin.Context) (repository.ListScansFilter, bool) {
	var filter repository.ListScansFilter
	from, ok := parseDateQuery(c, "from")
	if !ok {
		return filter, false
	}
	to, ok := parseDateQuery(c, "to")
	if !ok {
		return filter, false
	}
	filter.FromDate = from
	filter.ToDate = to
	filter.Vendor = c.Query("vendor")
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return filter, false
		}
		filter.Limit = n
	}
	return filter, true
}

func parseDateQuery(c *gin.Context, key string) (*time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key + " date, want YYYY-MM-DD"})
		return nil, false
	}
	return &t, true
}
