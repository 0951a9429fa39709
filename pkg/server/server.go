package server

import (
	"context"
	"embed"
	"html/template"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/therealutkarshpriyadarshi/vmsim/pkg/load"
	"github.com/therealutkarshpriyadarshi/vmsim/pkg/logging"
	"github.com/therealutkarshpriyadarshi/vmsim/pkg/metrics"
	"github.com/therealutkarshpriyadarshi/vmsim/pkg/ratelimit"
	"github.com/therealutkarshpriyadarshi/vmsim/pkg/tracing"
)

//go:embed templates/*.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

var (
	// Version information (set during build)
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// LoadController is the load pool control surface used by the facade
type LoadController interface {
	Start(ctx context.Context, cfg load.LoadConfig) (load.Status, error)
	Stop(ctx context.Context) load.Status
	Toggle(ctx context.Context) (load.Status, error)
	Status() load.Status
}

// HealthController is the health flag surface used by the facade
type HealthController interface {
	Toggle() bool
	Healthy() bool
}

// Config contains configuration for the HTTP facade
type Config struct {
	Listen       string
	Hostname     string
	DefaultLoad  load.LoadConfig
	EnableHTTP2  bool
	AccessLog    bool
	MetricsPath  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// ControlRate limits POST requests per client (requests/second, 0 = off)
	ControlRate  float64
	ControlBurst int

	Logger *logging.Logger
	Tracer *tracing.Tracer
}

// Server is the HTTP facade over the load manager and health store
type Server struct {
	loads       LoadController
	health      HealthController
	hostname    string
	defaultLoad load.LoadConfig
	startTime   time.Time
	logger      *logging.Logger

	router  *mux.Router
	server  *http.Server
	limiter *ratelimit.TokenBucket

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates the facade and registers its routes
func NewServer(cfg Config, loads LoadController, health HealthController) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logging.L()
	}
	if cfg.Hostname == "" {
		cfg.Hostname, _ = os.Hostname()
	}
	if cfg.DefaultLoad.Validate() != nil {
		cfg.DefaultLoad = load.DefaultLoadConfig()
	}

	s := &Server{
		loads:       loads,
		health:      health,
		hostname:    cfg.Hostname,
		defaultLoad: cfg.DefaultLoad,
		startTime:   time.Now(),
		logger:      cfg.Logger.With(logging.String("component", "server")),
		router:      mux.NewRouter(),
	}

	if cfg.Tracer != nil {
		s.router.Use(cfg.Tracer.HTTPMiddleware)
	}
	s.router.Use(metrics.RequestMetricsMiddleware)
	if cfg.AccessLog {
		s.router.Use(logging.AccessLogMiddleware(cfg.Logger))
	}

	if cfg.ControlRate > 0 {
		s.limiter = ratelimit.NewTokenBucket(cfg.ControlRate, cfg.ControlBurst)
	}

	s.registerRoutes(cfg.MetricsPath)

	var handler http.Handler = s.router
	if cfg.EnableHTTP2 {
		handler = h2c.NewHandler(s.router, &http2.Server{})
	}

	s.server = &http.Server{
		Addr:         cfg.Listen,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

func (s *Server) registerRoutes(metricsPath string) {
	r := s.router

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/version", s.handleVersion).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Handle("/toggle_cpu", s.control(s.handleToggleCPU)).Methods(http.MethodPost)
	api.Handle("/toggle_health", s.control(s.handleToggleHealth)).Methods(http.MethodPost)
	api.HandleFunc("/uptime", s.handleUptime).Methods(http.MethodGet)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.Handle("/load/start", s.control(s.handleStartLoad)).Methods(http.MethodPost)
	api.Handle("/load/stop", s.control(s.handleStopLoad)).Methods(http.MethodPost)

	// unprefixed paths served by the first version of the service
	r.Handle("/toggle_cpu", s.control(s.handleToggleCPU)).Methods(http.MethodPost)
	r.Handle("/toggle_health", s.control(s.handleToggleHealth)).Methods(http.MethodPost)

	if metricsPath != "" {
		r.Handle(metricsPath, metrics.MetricsHandler()).Methods(http.MethodGet)
	}
}

// control wraps state-changing handlers with the per-client limiter
func (s *Server) control(h http.HandlerFunc) http.Handler {
	if s.limiter == nil {
		return h
	}
	return s.limiter.Middleware(h)
}

// Handler returns the root handler, including middleware
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// ListenAndServe binds the listener and serves until Shutdown
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.logger.Info("http server listening", logging.String("listen", listener.Addr().String()))

	if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Addr returns the bound address once serving
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return s.server.Addr
	}
	return s.listener.Addr().String()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Close()
	}
	return s.server.Shutdown(ctx)
}

// Uptime returns the time since the server was created
func (s *Server) Uptime() time.Duration {
	return time.Since(s.startTime)
}
