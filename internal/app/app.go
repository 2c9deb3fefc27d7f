// Package app wires configuration, logging, metrics, the broker, the
// console and script plugins into one runnable process.
package app

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/databroker/internal/broker"
	"github.com/dshills/databroker/internal/config"
	"github.com/dshills/databroker/internal/console"
	"github.com/dshills/databroker/internal/logging"
	"github.com/dshills/databroker/internal/metrics"
	"github.com/dshills/databroker/internal/script"
)

// ShutdownTimeout bounds the metrics server shutdown.
const ShutdownTimeout = 5 * time.Second

// Options configures the application. Non-zero fields override the
// configuration file.
type Options struct {
	// ConfigPath is the TOML or YAML configuration file. It is watched
	// for changes while running.
	ConfigPath string

	// LogLevel overrides logging.level and pins it across reloads.
	LogLevel string

	// MetricsAddr enables the metrics endpoint on this address.
	MetricsAddr string

	// Watch adds console watch patterns.
	Watch []string

	// JSON switches the console to JSON lines.
	JSON bool

	// Output receives console lines. Defaults to os.Stdout.
	Output io.Writer

	// Logger replaces the logger built from the configuration.
	Logger *logging.Logger
}

// Application owns every component of a broker process.
type Application struct {
	opts Options

	cfg      *config.Config
	logger   *logging.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	broker   *broker.Broker
	console  *console.Console
	plugins  []*script.Plugin

	mu          sync.Mutex
	metricsAddr net.Addr

	running  atomic.Bool
	shutdown sync.Once
	closed   atomic.Bool
}

// New loads configuration and builds all components in dependency order.
// Components built before a failure are released.
func New(opts Options) (*Application, error) {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	a := &Application{opts: opts}
	if err := a.bootstrap(); err != nil {
		a.release()
		return nil, err
	}
	return a, nil
}

func (a *Application) bootstrap() error {
	steps := []struct {
		component string
		init      func() error
	}{
		{"config", a.initConfig},
		{"logging", a.initLogging},
		{"metrics", a.initMetrics},
		{"broker", a.initBroker},
		{"console", a.initConsole},
		{"scripts", a.initScripts},
	}
	for _, s := range steps {
		if err := s.init(); err != nil {
			return &InitError{Component: s.component, Err: err}
		}
	}
	return nil
}

func (a *Application) initConfig() error {
	cfg, err := config.Load(a.opts.ConfigPath)
	if err != nil {
		return err
	}
	if a.opts.LogLevel != "" {
		cfg.Logging.Level = a.opts.LogLevel
	}
	if a.opts.MetricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = a.opts.MetricsAddr
	}
	cfg.Console.Watch = append(cfg.Console.Watch, a.opts.Watch...)
	if a.opts.JSON {
		cfg.Console.JSON = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg
	return nil
}

func (a *Application) initLogging() error {
	if a.opts.Logger != nil {
		a.logger = a.opts.Logger
		return a.logger.SetLevel(a.cfg.Logging.Level)
	}
	l, err := logging.New(logging.Config{
		Level:       a.cfg.Logging.Level,
		Development: a.cfg.Logging.Development,
	})
	if err != nil {
		return err
	}
	a.logger = l
	return nil
}

func (a *Application) initMetrics() error {
	a.registry = prometheus.NewRegistry()
	if a.cfg.Metrics.Enabled {
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	a.metrics = metrics.New(a.registry)
	return nil
}

func (a *Application) initBroker() error {
	a.broker = broker.New(
		broker.WithLogger(a.logger.Named("broker")),
		broker.WithMetrics(a.metrics),
		broker.WithDispatchIdle(a.cfg.Broker.DispatchIdle.Std()),
		broker.WithRealtimeInterval(a.cfg.Broker.RealtimeInterval.Std()),
	)
	return nil
}

func (a *Application) initConsole() error {
	if !a.cfg.Console.Messages && len(a.cfg.Console.Watch) == 0 {
		return nil
	}
	a.console = console.New(a.opts.Output, console.Options{
		Messages: a.cfg.Console.Messages,
		Watch:    a.cfg.Console.Watch,
		JSON:     a.cfg.Console.JSON,
	}, a.logger.Named("console"))
	a.console.Attach(a.broker)
	return nil
}

func (a *Application) initScripts() error {
	for _, sc := range a.cfg.Scripts {
		p, err := script.Load(sc, a.logger.Named("script"))
		if err != nil {
			return err
		}
		a.plugins = append(a.plugins, p)
		if err := p.Attach(a.broker); err != nil {
			return err
		}
	}
	return nil
}

// Broker returns the application's broker.
func (a *Application) Broker() *broker.Broker {
	return a.broker
}

// Config returns the configuration in effect at startup.
func (a *Application) Config() *config.Config {
	return a.cfg
}

// MetricsAddr returns the bound metrics address once the server listens.
func (a *Application) MetricsAddr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.metricsAddr
}

// Run starts the broker and serves until ctx is done or a component
// fails, then shuts everything down.
func (a *Application) Run(ctx context.Context) error {
	if a.closed.Load() {
		return ErrShutdown
	}
	if !a.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer a.running.Store(false)
	defer a.Shutdown()

	if err := a.broker.Start(); err != nil {
		return &ComponentError{Component: "broker", Action: "start", Err: err}
	}
	a.logger.Info("databroker running",
		zap.Stringer("instance", a.broker.InstanceID()),
		zap.Int("scripts", len(a.plugins)))
	a.broker.EmitInfo("databroker running with %d scripts", len(a.plugins))

	g, ctx := errgroup.WithContext(ctx)

	if a.cfg.Metrics.Enabled {
		lis, err := net.Listen("tcp", a.cfg.Metrics.Addr)
		if err != nil {
			return &ComponentError{Component: "metrics", Action: "listen", Err: err}
		}
		a.mu.Lock()
		a.metricsAddr = lis.Addr()
		a.mu.Unlock()
		a.serveMetrics(ctx, g, lis)
	}

	if a.opts.ConfigPath != "" {
		g.Go(func() error {
			err := config.Watch(ctx, a.opts.ConfigPath, a.reload, func(err error) {
				a.logger.Warn("config reload failed", zap.Error(err))
				a.broker.EmitWarning("config reload failed: %v", err)
			})
			if err != nil {
				return &ComponentError{Component: "config watch", Err: err}
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	err := g.Wait()
	if err != nil {
		a.logger.Error("databroker stopped", zap.Error(err))
	}
	return err
}

func (a *Application) serveMetrics(ctx context.Context, g *errgroup.Group, lis net.Listener) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		a.logger.Info("metrics listening", zap.Stringer("addr", lis.Addr()))
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return &ComponentError{Component: "metrics", Action: "serve", Err: err}
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// reload applies the parts of a changed configuration that can change
// while running.
func (a *Application) reload(cfg *config.Config) {
	if a.opts.LogLevel != "" {
		return
	}
	if err := a.logger.SetLevel(cfg.Logging.Level); err != nil {
		a.logger.Warn("log level rejected", zap.Error(err))
		return
	}
	a.logger.Info("config reloaded", zap.Stringer("level", a.logger.Level()))
}

// Shutdown stops the broker and releases plugins. It is safe to call more
// than once.
func (a *Application) Shutdown() {
	a.shutdown.Do(func() {
		a.closed.Store(true)
		a.release()
	})
}

func (a *Application) release() {
	if a.broker != nil {
		if a.console != nil {
			a.console.Detach(a.broker)
		}
		for _, p := range a.plugins {
			p.Detach(a.broker)
		}
		if a.broker.Running() {
			if err := a.broker.Stop(); err != nil && a.logger != nil {
				a.logger.Warn("broker stop failed", zap.Error(err))
			}
		}
	}
	for _, p := range a.plugins {
		_ = p.Close()
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
