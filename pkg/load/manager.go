package load

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/therealutkarshpriyadarshi/vmsim/pkg/logging"
	"github.com/therealutkarshpriyadarshi/vmsim/pkg/metrics"
)

const tracerName = "github.com/therealutkarshpriyadarshi/vmsim/pkg/load"

// Status is a snapshot of the load pool
type Status struct {
	IsActive    bool        `json:"is_active"`
	WorkerCount int         `json:"worker_count"`
	Config      *LoadConfig `json:"config,omitempty"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
}

// SpawnFunc creates one worker. Returning an error aborts the pool start.
type SpawnFunc func(id int, cfg LoadConfig, run RunFunc, onExit func(*Worker)) (*Worker, error)

// ManagerConfig configures the load pool manager
type ManagerConfig struct {
	// CPUCount overrides runtime.NumCPU (0 = detect)
	CPUCount int

	// CoreFraction is the share of CPUs that get a worker (default 0.9)
	CoreFraction float64

	// GracePeriod bounds the wait for workers to exit on stop
	GracePeriod time.Duration

	// Default is used by Toggle before any explicit Start
	Default LoadConfig

	// Run overrides the worker body (default DutyCycle)
	Run RunFunc

	// Spawn overrides worker creation (default StartWorker)
	Spawn SpawnFunc

	Logger *logging.Logger
}

// Manager owns the single load pool. Start, Stop and Toggle are serialized;
// Status is lock-free and only reflects completed transitions.
type Manager struct {
	mu        sync.Mutex
	workers   map[int]*Worker
	current   LoadConfig
	last      LoadConfig
	startedAt time.Time
	nextID    int
	closed    bool

	snapshot atomic.Pointer[Status]

	workerCount int
	grace       time.Duration
	run         RunFunc
	spawn       SpawnFunc
	logger      *logging.Logger
	tracer      trace.Tracer
}

// NewManager creates an idle manager
func NewManager(config ManagerConfig) *Manager {
	if config.CPUCount <= 0 {
		config.CPUCount = runtime.NumCPU()
	}
	if config.CoreFraction <= 0 || config.CoreFraction > 1 {
		config.CoreFraction = DefaultCoreFraction
	}
	if config.GracePeriod <= 0 {
		config.GracePeriod = DefaultGracePeriod
	}
	if config.Default.Validate() != nil {
		config.Default = DefaultLoadConfig()
	}
	if config.Run == nil {
		config.Run = DutyCycle
	}
	if config.Spawn == nil {
		config.Spawn = func(id int, cfg LoadConfig, run RunFunc, onExit func(*Worker)) (*Worker, error) {
			return StartWorker(id, cfg, run, onExit), nil
		}
	}
	if config.Logger == nil {
		config.Logger = logging.L()
	}

	m := &Manager{
		workers:     make(map[int]*Worker),
		last:        config.Default,
		workerCount: WorkerCount(config.CPUCount, config.CoreFraction),
		grace:       config.GracePeriod,
		run:         config.Run,
		spawn:       config.Spawn,
		logger:      config.Logger.With(logging.String("component", "load")),
		tracer:      otel.Tracer(tracerName),
	}
	m.snapshot.Store(&Status{})
	metrics.SetLoadPool(false, 0, 0)

	return m
}

// PoolSize returns how many workers a pool gets
func (m *Manager) PoolSize() int {
	return m.workerCount
}

// Status returns the last published pool state
func (m *Manager) Status() Status {
	return *m.snapshot.Load()
}

// LastConfig returns the config Toggle would start with
func (m *Manager) LastConfig() LoadConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Start launches a pool running cfg. If a pool is already running it is
// left untouched and its status returned.
func (m *Manager) Start(ctx context.Context, cfg LoadConfig) (Status, error) {
	ctx, span := m.tracer.Start(ctx, "load.start", trace.WithAttributes(
		attribute.Int("load.interval_seconds", cfg.IntervalSeconds),
		attribute.Int("load.utilization_percent", cfg.UtilizationPercent),
	))
	defer span.End()

	if err := cfg.Validate(); err != nil {
		recordSpanError(span, err)
		return m.Status(), err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	st, err := m.startLocked(ctx, cfg)
	if err != nil {
		recordSpanError(span, err)
	}
	span.SetAttributes(attribute.Int("load.workers", st.WorkerCount))
	return st, err
}

// Stop cancels every worker and waits up to the grace period for them.
// Workers that miss the deadline are abandoned and logged.
func (m *Manager) Stop(ctx context.Context) Status {
	ctx, span := m.tracer.Start(ctx, "load.stop")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.stopLocked(ctx)
}

// Toggle stops a running pool or starts one with the last used config
func (m *Manager) Toggle(ctx context.Context) (Status, error) {
	ctx, span := m.tracer.Start(ctx, "load.toggle")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.workers) > 0 {
		return m.stopLocked(ctx), nil
	}

	st, err := m.startLocked(ctx, m.last)
	if err != nil {
		recordSpanError(span, err)
	}
	return st, err
}

// Close stops the pool and rejects further starts
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.stopLocked(context.Background())
}

func (m *Manager) startLocked(ctx context.Context, cfg LoadConfig) (Status, error) {
	if m.closed {
		return m.Status(), ErrManagerClosed
	}
	if len(m.workers) > 0 {
		m.logger.DebugContext(ctx, "load already running", logging.Int("workers", len(m.workers)))
		return m.Status(), nil
	}

	n := m.workerCount
	spawned := make([]*Worker, 0, n)
	for i := 0; i < n; i++ {
		id := m.nextID
		m.nextID++

		w, err := m.spawn(id, cfg, m.run, m.reclaim)
		if err != nil {
			m.terminate(ctx, spawned)
			metrics.IncPoolStops(metrics.ReasonRollback)
			m.logger.ErrorContext(ctx, "load start rolled back",
				logging.Int("spawned", len(spawned)),
				logging.Int("requested", n),
				logging.Err(err),
			)
			return m.Status(), fmt.Errorf("%w: worker %d of %d: %v", ErrResourceExhausted, i+1, n, err)
		}
		spawned = append(spawned, w)
	}

	// reclaim needs m.mu, so early exits wait until the pool is recorded
	for _, w := range spawned {
		m.workers[w.ID()] = w
	}
	m.current = cfg
	m.last = cfg
	m.startedAt = time.Now()
	m.publishLocked()

	metrics.IncPoolStarts()
	m.logger.InfoContext(ctx, "load started",
		logging.Int("workers", n),
		logging.Int("interval_seconds", cfg.IntervalSeconds),
		logging.Int("utilization_percent", cfg.UtilizationPercent),
	)

	return m.Status(), nil
}

func (m *Manager) stopLocked(ctx context.Context) Status {
	if len(m.workers) == 0 {
		return m.Status()
	}

	start := time.Now()
	workers := make([]*Worker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	sort.Slice(workers, func(i, j int) bool { return workers[i].ID() < workers[j].ID() })

	m.terminate(ctx, workers)

	m.workers = make(map[int]*Worker)
	m.publishLocked()

	metrics.IncPoolStops(metrics.ReasonStopped)
	metrics.ObserveStopDuration(time.Since(start))
	m.logger.InfoContext(ctx, "load stopped",
		logging.Int("workers", len(workers)),
		logging.Duration("took", time.Since(start)),
	)

	return m.Status()
}

// terminate cancels workers and waits for them within the grace period
// or until ctx is done.
func (m *Manager) terminate(ctx context.Context, workers []*Worker) {
	for _, w := range workers {
		w.Stop()
	}

	timer := time.NewTimer(m.grace)
	defer timer.Stop()

	deadline := false
	stuck := 0
	for _, w := range workers {
		if deadline {
			select {
			case <-w.Done():
			default:
				stuck++
			}
			continue
		}

		select {
		case <-w.Done():
		case <-timer.C:
			deadline = true
			stuck++
		case <-ctx.Done():
			deadline = true
			stuck++
		}
	}

	if stuck > 0 {
		metrics.AddTerminationTimeouts(stuck)
		m.logger.WarnContext(ctx, "workers abandoned after cancellation",
			logging.Int("workers", stuck),
			logging.Duration("grace_period", m.grace),
			logging.Err(ErrTerminationTimeout),
		)
	}
}

// reclaim removes a terminated worker's handle. The last handle to go
// marks the pool idle.
func (m *Manager) reclaim(w *Worker) {
	metrics.IncWorkerExits(w.Expired())

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.workers[w.ID()]; !ok {
		return
	}
	delete(m.workers, w.ID())

	if len(m.workers) == 0 {
		metrics.IncPoolStops(metrics.ReasonExpired)
		m.logger.Info("load expired",
			logging.Int("interval_seconds", m.current.IntervalSeconds),
		)
	}
	m.publishLocked()
}

func (m *Manager) publishLocked() {
	st := &Status{
		IsActive:    len(m.workers) > 0,
		WorkerCount: len(m.workers),
	}
	if st.IsActive {
		cfg := m.current
		st.Config = &cfg
		startedAt := m.startedAt
		st.StartedAt = &startedAt
	}
	m.snapshot.Store(st)
	metrics.SetLoadPool(st.IsActive, st.WorkerCount, m.current.UtilizationPercent)
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
