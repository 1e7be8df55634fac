// Package server exposes the extraction engine and scan store over HTTP.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mehdidadah/scanzo/internal/common"
	"github.com/mehdidadah/scanzo/internal/engine"
	"github.com/mehdidadah/scanzo/internal/export"
	"github.com/mehdidadah/scanzo/internal/ingest"
	"github.com/mehdidadah/scanzo/internal/repository"
)

type Server struct {
	engine *engine.Engine
	runner *ingest.Runner
	scans  repository.ScanRepository
	export *export.Service
	pool   *pgxpool.Pool
	cfg    common.ServerConfig
	logger *slog.Logger
}

func New(eng *engine.Engine, runner *ingest.Runner, scans repository.ScanRepository,
	exp *export.Service, pool *pgxpool.Pool, cfg common.ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine: eng,
		runner: runner,
		scans:  scans,
		export: exp,
		pool:   pool,
		cfg:    cfg,
		logger: logger,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())
	if s.cfg.UploadMaxBytes > 0 {
		r.MaxMultipartMemory = s.cfg.UploadMaxBytes
	}

	r.GET("/healthz", s.healthHandler)

	v1 := r.Group("/api/v1")
	v1.POST("/scan", s.scanHandler)
	v1.POST("/extract", s.extractHandler)
	v1.GET("/scans", s.listScansHandler)
	v1.GET("/scans/export", s.exportHandler)
	v1.GET("/scans/:id", s.getScanHandler)
	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("http.request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed_ms", time.Since(start).Milliseconds())
	}
}

func (s *Server) healthHandler(c *gin.Context) {
	if s.pool != nil {
		if err := repository.HealthCheck(c.Request.Context(), s.pool, 3*time.Second, s.logger); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
