// Package server exposes the solver over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/edp1096/circuitsolver/internal/config"
	"github.com/edp1096/circuitsolver/internal/store"
	"github.com/edp1096/circuitsolver/pkg/analysis"
	"github.com/edp1096/circuitsolver/pkg/api"
	"github.com/edp1096/circuitsolver/pkg/netlist"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type Server struct {
	cfg     config.Config
	store   *store.Store // nil when history is disabled
	logger  *slog.Logger
	metrics *metrics
	engine  *gin.Engine
}

// New wires the routes. st may be nil.
func New(cfg config.Config, st *store.Store, logger *slog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		store:   st,
		logger:  logger,
		metrics: newMetrics(),
		engine:  gin.New(),
	}
	s.engine.Use(gin.Recovery(), s.logRequests())

	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.gatherer(), promhttp.HandlerOpts{})))

	v1 := s.engine.Group("/v1")
	v1.POST("/solve", s.handleSolve)
	v1.POST("/sweep", s.handleSweep)
	v1.GET("/solves", s.handleList)
	v1.GET("/solves/:id", s.handleGet)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) logRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "history": s.store != nil})
}

func (s *Server) options() []analysis.Option {
	return []analysis.Option{
		analysis.WithConfig(s.cfg.AnalysisOptions()),
		analysis.WithLogger(s.logger),
	}
}

var contentTypes = map[netlist.Format]string{
	netlist.FormatJSON:   "application/json",
	netlist.FormatYAML:   "application/yaml",
	netlist.FormatBinary: "application/x-protobuf",
	netlist.FormatSPICE:  "text/plain; charset=utf-8",
}

// requestFormat takes the format query parameter, then the content type,
// then defaults to JSON.
func requestFormat(c *gin.Context) (netlist.Format, error) {
	if q := c.Query("format"); q != "" {
		return netlist.ParseFormat(q)
	}
	switch c.ContentType() {
	case "application/yaml", "application/x-yaml", "text/yaml":
		return netlist.FormatYAML, nil
	case "application/x-protobuf", "application/octet-stream":
		return netlist.FormatBinary, nil
	case "text/plain", "text/x-spice":
		return netlist.FormatSPICE, nil
	}
	return netlist.FormatJSON, nil
}

// readBody reads the request under the configured size limit. It writes the
// error response itself and reports whether the handler should go on.
func (s *Server) readBody(c *gin.Context) ([]byte, netlist.Format, bool) {
	format, err := requestFormat(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "bad_format"})
		return nil, "", false
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.Server.MaxBodyBytes)
	body, err := c.GetRawData()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: err.Error(), Code: "too_large"})
		} else {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "bad_body"})
		}
		return nil, "", false
	}
	return body, format, true
}

func (s *Server) solveContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Server.SolveTimeout > 0 {
		return context.WithTimeout(c.Request.Context(), s.cfg.Server.SolveTimeout)
	}
	return context.WithCancel(c.Request.Context())
}

func statusFor(code api.Code) int {
	switch code {
	case api.OK:
		return http.StatusOK
	case api.CodeDecode:
		return http.StatusBadRequest
	case api.CodeInvalidGraph, api.CodeNoSolution:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (s *Server) handleSolve(c *gin.Context) {
	body, format, ok := s.readBody(c)
	if !ok {
		return
	}

	ctx, cancel := s.solveContext(c)
	defer cancel()

	start := time.Now()
	o := api.Run(ctx, body, format, s.options()...)
	elapsed := time.Since(start)
	s.metrics.observe("solve", o.Code, o.Result, elapsed)

	id := s.record(ctx, body, format, o, elapsed)
	if id != uuid.Nil {
		c.Header("X-Solve-Id", id.String())
	}

	if o.Code != api.OK {
		s.logger.Info("solve failed", "format", format, "code", o.Code.String(), "error", o.Err)
		c.JSON(statusFor(o.Code), ErrorResponse{Error: o.Err.Error(), Code: o.Code.String()})
		return
	}
	c.Data(http.StatusOK, contentTypes[format], o.Output)
}

// record saves the outcome when history is enabled. Storage failures are
// logged and never fail the request.
func (s *Server) record(ctx context.Context, body []byte, format netlist.Format, o api.Outcome, elapsed time.Duration) uuid.UUID {
	if s.store == nil {
		return uuid.Nil
	}

	r := &store.Record{
		Format:   string(format),
		Status:   o.Code.String(),
		Duration: elapsed,
		Input:    body,
		Output:   o.Output,
	}
	if o.Document != nil {
		r.Title = o.Document.Title
	}
	if o.Result != nil {
		r.Attempts = o.Result.Attempts
		r.Bases = o.Result.Bases
		r.Cost = o.Result.Cost
	}
	if o.Err != nil {
		r.Error = o.Err.Error()
	}

	// the solve context may already be spent
	saveCtx := context.WithoutCancel(ctx)
	if err := s.store.Save(saveCtx, r); err != nil {
		s.logger.Warn("failed to record solve", "error", err)
		return uuid.Nil
	}
	return r.ID
}

func (s *Server) handleSweep(c *gin.Context) {
	body, format, ok := s.readBody(c)
	if !ok {
		return
	}

	doc, err := netlist.Decode(format, body)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: api.CodeDecode.String()})
		return
	}

	ctx, cancel := s.solveContext(c)
	defer cancel()

	start := time.Now()
	res, err := api.Sweep(ctx, doc, s.options()...)
	if errors.Is(err, analysis.ErrSweepTooLarge) {
		s.metrics.observe("sweep", api.CodeDecode, nil, time.Since(start))
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "sweep_too_large"})
		return
	}
	code := api.OK
	if err != nil {
		code = api.CodeNoSolution
	}
	s.metrics.observe("sweep", code, nil, time.Since(start))
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Code: api.CodeNoSolution.String()})
		return
	}
	c.JSON(http.StatusOK, res)
}

// Summary is a history entry without the payloads.
type Summary struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Format    string  `json:"format"`
	Status    string  `json:"status"`
	Attempts  int     `json:"attempts"`
	Bases     int     `json:"bases"`
	Cost      float64 `json:"cost"`
	Duration  string  `json:"duration"`
	Error     string  `json:"error,omitempty"`
	CreatedAt string  `json:"created_at"`
}

func summarize(r store.Record) Summary {
	return Summary{
		ID:        r.ID.String(),
		Title:     r.Title,
		Format:    r.Format,
		Status:    r.Status,
		Attempts:  r.Attempts,
		Bases:     r.Bases,
		Cost:      r.Cost,
		Duration:  r.Duration.String(),
		Error:     r.Error,
		CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func (s *Server) handleList(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "solve history is disabled"})
		return
	}

	limit := 20
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid limit %q", q)})
			return
		}
		limit = n
	}

	records, err := s.store.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	out := make([]Summary, 0, len(records))
	for _, r := range records {
		out = append(out, summarize(r))
	}
	c.JSON(http.StatusOK, gin.H{"solves": out})
}

// Detail is a history entry with the circuit as submitted and as solved.
type Detail struct {
	Summary
	Input  string `json:"input"`
	Output string `json:"output,omitempty"`
}

func (s *Server) handleGet(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "solve history is disabled"})
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid solve id"})
		return
	}

	r, err := s.store.Get(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, Detail{Summary: summarize(*r), Input: string(r.Input), Output: string(r.Output)})
}

// metrics holds the API level series. The solver's own counters live in the
// default registry and are served alongside.
type metrics struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	bases    prometheus.Histogram
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "circuitsolver",
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Solve and sweep requests by outcome",
		}, []string{"route", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "circuitsolver",
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Time spent decoding, solving and encoding a request",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		}, []string{"route"}),
		bases: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "circuitsolver",
			Subsystem: "api",
			Name:      "discontinuities",
			Help:      "Discontinuities per solved circuit",
			Buckets:   prometheus.LinearBuckets(0, 1, 13),
		}),
	}
	m.registry.MustRegister(m.requests, m.latency, m.bases)
	return m
}

func (m *metrics) gatherer() prometheus.Gatherer {
	return prometheus.Gatherers{prometheus.DefaultGatherer, m.registry}
}

func (m *metrics) observe(route string, code api.Code, result *analysis.Result, elapsed time.Duration) {
	m.requests.WithLabelValues(route, code.String()).Inc()
	m.latency.WithLabelValues(route).Observe(elapsed.Seconds())
	if result != nil {
		m.bases.Observe(float64(result.Bases))
	}
}
