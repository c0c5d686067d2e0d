// Package engine wires the dispatcher, executor pool, health monitor,
// and issue detector into one explicitly constructed scheduler. There
// are no package-level singletons; callers hold the Engine and pass it
// by reference.
package engine

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/fixpointd/fixpoint/internal/config"
	"github.com/fixpointd/fixpoint/internal/decompose"
	"github.com/fixpointd/fixpoint/internal/detect"
	"github.com/fixpointd/fixpoint/internal/dispatch"
	"github.com/fixpointd/fixpoint/internal/logging"
	"github.com/fixpointd/fixpoint/internal/pool"
	"github.com/fixpointd/fixpoint/internal/state"
	"github.com/fixpointd/fixpoint/pkg/models"
)

// Option configures an Engine. Use With* functions to create Options.
type Option func(*engineOptions)

type engineOptions struct {
	logger   *zerolog.Logger
	store    state.Store
	sampler  detect.ResourceSampler
	registry prometheus.Registerer
}

// WithLogger sets the root logger. Components derive tagged loggers from it.
func WithLogger(l zerolog.Logger) Option {
	return func(o *engineOptions) { o.logger = &l }
}

// WithStore attaches the persistent archive for results and issues.
func WithStore(s state.Store) Option {
	return func(o *engineOptions) { o.store = s }
}

// WithResourceSampler overrides the /proc resource sampler.
func WithResourceSampler(s detect.ResourceSampler) Option {
	return func(o *engineOptions) { o.sampler = s }
}

// WithMetricsRegistry sets the Prometheus registerer for pool metrics.
func WithMetricsRegistry(r prometheus.Registerer) Option {
	return func(o *engineOptions) { o.registry = r }
}

// Engine is the assembled scheduling system.
type Engine struct {
	cfg *config.Config
	log zerolog.Logger

	queue      *dispatch.Queue
	decomposer *decompose.Decomposer
	dispatcher *dispatch.Dispatcher
	pool       *pool.Pool
	monitor    *pool.HealthMonitor
	detector   *detect.Detector
	store      state.Store
}

// New assembles an engine from configuration. All components share one
// priority queue, so every submission path observes priority ordering.
func New(cfg *config.Config, opts ...Option) *Engine {
	options := &engineOptions{}
	for _, opt := range opts {
		opt(options)
	}

	log := logging.Nop()
	if options.logger != nil {
		log = *options.logger
	}

	queue := dispatch.NewQueue()
	decomposer := decompose.New()
	dispatcher := dispatch.New(queue, dispatch.Options{
		Decomposer:           decomposer,
		HistorySize:          cfg.Dispatcher.HistorySize,
		ComplexPayloadLength: cfg.Dispatcher.ComplexPayloadLength,
		Logger:               log,
	})

	var metrics *pool.Metrics
	if options.registry != nil {
		metrics = pool.NewMetrics(options.registry)
	}

	var archiver pool.ResultArchiver
	if options.store != nil {
		archiver = options.store
	}
	executorPool := pool.New(pool.Config{
		Executors:        cfg.Pool.Executors,
		Queue:            queue,
		Archiver:         archiver,
		Logger:           log,
		RemediationRate:  cfg.Pool.RemediationRate,
		RemediationBurst: cfg.Pool.RemediationBurst,
		Metrics:          metrics,
	})

	monitor := pool.NewHealthMonitor(executorPool, cfg.Monitor.Interval, cfg.Monitor.StaleAfter, log)

	var issueArchiver detect.IssueArchiver
	if options.store != nil {
		issueArchiver = options.store
	}
	detector := detect.New(detect.Config{
		Interval:        cfg.Detector.Interval,
		AutoFix:         cfg.Detector.AutoFix,
		ScanPaths:       cfg.Detector.ScanPaths,
		ScanExtensions:  cfg.Detector.ScanExtensions,
		MemoryThreshold: cfg.Detector.MemoryThreshold,
		CPUThreshold:    cfg.Detector.CPUThreshold,
		HistorySize:     cfg.Detector.HistorySize,
		Remediator:      executorPool,
		Archiver:        issueArchiver,
		Sampler:         options.sampler,
		Logger:          log,
	})

	return &Engine{
		cfg:        cfg,
		log:        log.With().Str("component", "engine").Logger(),
		queue:      queue,
		decomposer: decomposer,
		dispatcher: dispatcher,
		pool:       executorPool,
		monitor:    monitor,
		detector:   detector,
		store:      options.store,
	}
}

// Run drives all loops until ctx is canceled: the pool dispatch loop,
// the health monitor, the issue detector, and the file watcher when
// watch paths are configured. Cancellation is a clean shutdown.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info().Int("executors", e.cfg.Pool.Executors).Msg("engine starting")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.pool.Run(ctx) })
	g.Go(func() error { return e.monitor.Run(ctx) })
	g.Go(func() error { return e.detector.Run(ctx) })
	if len(e.cfg.Detector.WatchPaths) > 0 {
		g.Go(func() error { return e.detector.Watch(ctx, e.cfg.Detector.WatchPaths) })
	}

	err := g.Wait()
	e.log.Info().Msg("engine stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Dispatcher returns the priority dispatcher.
func (e *Engine) Dispatcher() *dispatch.Dispatcher { return e.dispatcher }

// Pool returns the executor pool.
func (e *Engine) Pool() *pool.Pool { return e.pool }

// Detector returns the issue detector.
func (e *Engine) Detector() *detect.Detector { return e.detector }

// Decomposer returns the task decomposer.
func (e *Engine) Decomposer() *decompose.Decomposer { return e.decomposer }

// Metrics returns a read-only snapshot of the pool.
func (e *Engine) Metrics() models.PoolMetrics { return e.pool.Metrics() }

// Status returns a read-only snapshot of the dispatcher.
func (e *Engine) Status() models.DispatcherStatus { return e.dispatcher.Status() }
