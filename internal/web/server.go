// Package web serves the predictor and analysis pages, the JSON API and the
// operational endpoints.
package web

import (
	"context"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/YuminosukeSato/airq/internal/aqi"
	"github.com/YuminosukeSato/airq/internal/observability"
	"github.com/YuminosukeSato/airq/pkg/log"
)

//go:embed templates/*.html
var templateFS embed.FS

// ModelService is the model lifecycle the handlers depend on.
type ModelService interface {
	Current() *aqi.Bundle
	Predict(f aqi.Features) (aqi.Prediction, error)
	Retrain(ctx context.Context) (*aqi.Bundle, error)
	CheckReadiness(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	Addr           string
	MaxUploadBytes int64
	Sentinel       string

	// RetrainEvery is the minimum interval between retrain requests.
	// Zero disables the limit.
	RetrainEvery time.Duration

	// Metrics is optional. MetricsHandler defaults to promhttp.Handler().
	Metrics        *observability.Metrics
	MetricsHandler http.Handler
	Logger         log.Logger
}

// Server is the gin HTTP server.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server
	svc        ModelService
	data       *trainingData
	opts       Options
	logger     log.Logger
	retrain    *rate.Limiter
}

// NewServer wires all routes. data loads the training table shown on the
// analysis page.
func NewServer(svc ModelService, data aqi.Loader, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.GetLoggerWithName("web")
	}
	if opts.MetricsHandler == nil {
		opts.MetricsHandler = promhttp.Handler()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}

	engine := gin.New()
	engine.MaxMultipartMemory = opts.MaxUploadBytes
	engine.SetHTMLTemplate(template.Must(
		template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html"),
	))

	s := &Server{
		engine: engine,
		httpServer: &http.Server{
			Addr:         opts.Addr,
			Handler:      engine,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Minute, // retrain responds after a full fit
			IdleTimeout:  60 * time.Second,
		},
		svc:    svc,
		data:   &trainingData{loader: data},
		opts:   opts,
		logger: opts.Logger,
	}

	if opts.RetrainEvery > 0 {
		s.retrain = rate.NewLimiter(rate.Every(opts.RetrainEvery), 1)
	}

	engine.Use(s.observe(), s.recovery())
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.engine

	r.GET("/", s.handleHome)
	r.GET("/predict", s.handlePredictForm)
	r.POST("/predict", s.handlePredictSubmit)

	r.GET("/analysis", s.handleAnalysis)
	r.POST("/analysis", s.handleAnalysisUpload)
	charts := r.Group("/analysis/charts")
	charts.GET("/aqi.png", s.handleHistogramChart)
	charts.GET("/importance.png", s.handleImportanceChart)
	charts.GET("/scatter.png", s.handleScatterChart)

	api := r.Group("/api/v1")
	api.POST("/predict", s.handleAPIPredict)
	api.GET("/model", s.handleAPIModel)
	api.POST("/model/retrain", s.handleAPIRetrain)

	r.GET("/healthz", s.handleHealth)
	r.GET("/readyz", s.handleReady)
	r.GET("/metrics", gin.WrapH(s.opts.MetricsHandler))
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the router, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) handleReady(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := s.svc.CheckReadiness(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

var templateFuncs = template.FuncMap{
	"fixed2":  func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"percent": func(v float64) string { return fmt.Sprintf("%.1f%%", v*100) },
}
