// Package httpserver exposes stored runs, signals and samples over HTTP
// and accepts uploads for ingestion.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tinytelemetry/sigex/internal/config"
	"github.com/tinytelemetry/sigex/internal/engine"
	"github.com/tinytelemetry/sigex/internal/logsource"
	"github.com/tinytelemetry/sigex/internal/model"
	"github.com/tinytelemetry/sigex/internal/reader"
	"github.com/tinytelemetry/sigex/internal/tag"
)

const (
	// DefaultAddr is used when no listen address is configured.
	DefaultAddr = "0.0.0.0:3000"
	// DefaultMaxUploadBytes bounds one ingest request body.
	DefaultMaxUploadBytes = 256 << 20
)

// Store is the read side required by the API.
type Store interface {
	model.ReadAPI
	SchemaDescription() string
}

// Ingester runs an uploaded stream through a profile.
type Ingester interface {
	RunReader(ctx context.Context, profile, kind, name string, in io.Reader) (engine.Result, error)
}

// Config holds tunable parameters for the HTTP server.
type Config struct {
	Addr           string
	MaxUploadBytes int64
	Logger         *zap.Logger
}

// Server provides the HTTP API.
type Server struct {
	addr      string
	store     Store
	ingester  Ingester
	maxUpload int64
	logger    *zap.Logger
	server    *http.Server
	listener  net.Listener
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a server. ingester may be nil, which disables uploads.
func NewServer(store Store, ingester Ingester, conf Config) *Server {
	if conf.Addr == "" {
		conf.Addr = DefaultAddr
	}
	if conf.MaxUploadBytes <= 0 {
		conf.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if conf.Logger == nil {
		conf.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:      conf.Addr,
		store:     store,
		ingester:  ingester,
		maxUpload: conf.MaxUploadBytes,
		logger:    conf.Logger,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

// Handler builds the gin router.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog)

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/schema", s.handleSchema)
	api.POST("/query", s.handleQuery)
	api.GET("/runs", s.handleRuns)
	api.GET("/signals", s.handleSignals)
	api.GET("/signals/:id/samples", s.handleSamples)
	api.POST("/ingest/:profile", s.handleIngest)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	s.server = &http.Server{
		Handler:           s.Handler(),
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.startTime = time.Now()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the active listen address, or the configured one before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop cancels in-flight requests and shuts the server down.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) accessLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug("http request",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("took", time.Since(start)))
}

func (s *Server) handleHealth(c *gin.Context) {
	counts, err := s.store.TableRowCounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read health metrics"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.startTime).String(),
		"runs":    counts["runs"],
		"samples": counts["samples"],
	})
}

func (s *Server) handleSchema(c *gin.Context) {
	columns, err := s.store.ExecuteQuery(
		"SELECT table_name, column_name, data_type FROM information_schema.columns WHERE table_schema = 'main' ORDER BY table_name, ordinal_position",
	)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read schema metadata"})
		return
	}

	schema := make(map[string][]map[string]string)
	for _, row := range columns {
		table := fmt.Sprintf("%v", row["table_name"])
		schema[table] = append(schema[table], map[string]string{
			"column": fmt.Sprintf("%v", row["column_name"]),
			"type":   fmt.Sprintf("%v", row["data_type"]),
		})
	}

	counts, err := s.store.TableRowCounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read table row counts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"description": s.store.SchemaDescription(),
		"tables":      schema,
		"row_counts":  counts,
	})
}

func (s *Server) handleQuery(c *gin.Context) {
	var req struct {
		SQL string `json:"sql" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body or missing sql field"})
		return
	}

	results, err := s.store.ExecuteQuery(req.SQL)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var columns []string
	if len(results) > 0 {
		for col := range results[0] {
			columns = append(columns, col)
		}
		sort.Strings(columns)
	}

	c.JSON(http.StatusOK, gin.H{
		"columns":   columns,
		"rows":      results,
		"row_count": len(results),
	})
}

func (s *Server) handleRuns(c *gin.Context) {
	limit, err := intQuery(c, "limit", 100)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	runs, err := s.store.ListRuns(int(limit))
	if err != nil {
		s.logger.Error("list runs", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}
	if runs == nil {
		runs = []model.RunSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (s *Server) handleSignals(c *gin.Context) {
	record := c.Query("record")
	if record == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "record query parameter is required"})
		return
	}
	signals, err := s.store.ListSignals(record)
	if err != nil {
		s.logger.Error("list signals", zap.String("record", record), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list signals"})
		return
	}
	if signals == nil {
		signals = []model.SignalInfo{}
	}
	c.JSON(http.StatusOK, gin.H{"record": record, "signals": signals})
}

func (s *Server) handleSamples(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "signal id must be an integer"})
		return
	}
	opts := model.QueryOpts{RecordID: c.Query("record")}
	if opts.RecordID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "record query parameter is required"})
		return
	}
	if level := c.Query("level"); level != "" {
		opts.MaxTag = tag.FromLabel(level)
		if opts.MaxTag == model.TagNone {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown level %q", level)})
			return
		}
	}
	for _, p := range []struct {
		key string
		dst **int64
	}{{"from", &opts.From}, {"to", &opts.To}} {
		if raw := c.Query(p.key); raw != "" {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s must be an integer position", p.key)})
				return
			}
			*p.dst = &v
		}
	}
	limit, err := intQuery(c, "limit", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	opts.Limit = int(limit)

	samples, err := s.store.Samples(id, opts)
	if err != nil {
		s.logger.Error("read samples", zap.Int64("signal", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read samples"})
		return
	}
	if samples == nil {
		samples = []model.Sample{}
	}
	c.JSON(http.StatusOK, gin.H{"signal": id, "samples": samples})
}

func (s *Server) handleIngest(c *gin.Context) {
	if s.ingester == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ingestion is disabled"})
		return
	}
	profile := c.Param("profile")
	name := c.DefaultQuery("name", "upload")
	body := http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)

	res, err := s.ingester.RunReader(c.Request.Context(), profile, logsource.KindUpload, name, body)
	if err != nil {
		status := http.StatusInternalServerError
		var tooLarge *http.MaxBytesError
		var parseErr *reader.ParseError
		switch {
		case errors.Is(err, config.ErrUnknownProfile):
			status = http.StatusNotFound
		case errors.Is(err, config.ErrInvalidProfile), errors.Is(err, logsource.ErrUnknownCharset):
			status = http.StatusBadRequest
		case errors.As(err, &tooLarge):
			status = http.StatusRequestEntityTooLarge
		case errors.As(err, &parseErr):
			status = http.StatusUnprocessableEntity
		}
		s.logger.Warn("ingest failed", zap.String("profile", profile), zap.String("name", name), zap.Error(err))
		c.JSON(status, gin.H{"error": err.Error(), "record": res.Record, "stats": res.Stats})
		return
	}
	c.JSON(http.StatusCreated, res)
}

func intQuery(c *gin.Context, key string, def int64) (int64, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return v, nil
}
