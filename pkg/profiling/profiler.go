package profiling

import (
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	rpprof "runtime/pprof"
	"sync"

	"github.com/therealutkarshpriyadarshi/vmsim/pkg/logging"
)

// ProfileConfig contains profiling configuration
type ProfileConfig struct {
	// CPUProfilePath records a CPU profile from Start to Stop
	CPUProfilePath string

	// EnableHTTPProfile serves /debug/pprof/ on HTTPProfileAddr
	EnableHTTPProfile bool
	HTTPProfileAddr   string

	Logger *logging.Logger
}

// Profiler manages profiling operations
type Profiler struct {
	config   ProfileConfig
	logger   *logging.Logger
	mu       sync.Mutex
	cpuFile  *os.File
	server   *http.Server
	listener net.Listener
}

// NewProfiler creates a new profiler
func NewProfiler(config ProfileConfig) *Profiler {
	if config.HTTPProfileAddr == "" {
		config.HTTPProfileAddr = "localhost:6060"
	}
	if config.Logger == nil {
		config.Logger = logging.L()
	}
	return &Profiler{
		config: config,
		logger: config.Logger.With(logging.String("component", "profiling")),
	}
}

// Handler returns the pprof handlers on a private mux
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// Start starts CPU profiling and the HTTP endpoint as configured
func (p *Profiler) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.config.CPUProfilePath != "" {
		if err := p.startCPUProfile(); err != nil {
			return fmt.Errorf("failed to start CPU profile: %w", err)
		}
	}

	if p.config.EnableHTTPProfile {
		if err := p.startHTTPProfile(); err != nil {
			return fmt.Errorf("failed to start HTTP profile: %w", err)
		}
	}

	return nil
}

// Stop flushes the CPU profile and closes the HTTP endpoint
func (p *Profiler) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cpuFile != nil {
		rpprof.StopCPUProfile()
		err := p.cpuFile.Close()
		p.cpuFile = nil
		if err != nil {
			return fmt.Errorf("failed to close CPU profile: %w", err)
		}
		p.logger.Info("cpu profile written", logging.String("path", p.config.CPUProfilePath))
	}

	if p.server != nil {
		p.server.Close()
		p.server = nil
	}

	return nil
}

// Addr returns the bound pprof address, empty when not serving
func (p *Profiler) Addr() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

func (p *Profiler) startCPUProfile() error {
	f, err := os.Create(p.config.CPUProfilePath)
	if err != nil {
		return err
	}

	if err := rpprof.StartCPUProfile(f); err != nil {
		f.Close()
		return err
	}

	p.cpuFile = f
	p.logger.Info("cpu profiling started", logging.String("path", p.config.CPUProfilePath))
	return nil
}

func (p *Profiler) startHTTPProfile() error {
	listener, err := net.Listen("tcp", p.config.HTTPProfileAddr)
	if err != nil {
		return err
	}

	p.listener = listener
	p.server = &http.Server{Handler: Handler()}

	srv := p.server
	go func() {
		if err := srv.Serve(listener); err != http.ErrServerClosed {
			p.logger.Error("pprof server error", logging.Err(err))
		}
	}()

	p.logger.Info("pprof server started", logging.String("listen", listener.Addr().String()))
	return nil
}
