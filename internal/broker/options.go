package broker

import (
	"time"

	"go.uber.org/zap"

	"github.com/dshills/databroker/internal/dispatch"
	"github.com/dshills/databroker/internal/metrics"
)

// Option configures a Broker.
type Option func(*config)

type config struct {
	logger           *zap.Logger
	metrics          *metrics.Metrics
	dispatchIdle     time.Duration
	realtimeInterval time.Duration
	clock            func() time.Time
	panicHandler     dispatch.PanicHandler
}

func defaultConfig() config {
	return config{
		logger:           zap.NewNop(),
		dispatchIdle:     100 * time.Millisecond,
		realtimeInterval: 10 * time.Millisecond,
		clock:            time.Now,
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the metrics sink. A nil value disables metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// WithDispatchIdle bounds how long the dispatch goroutine sleeps when it
// has nothing to deliver.
func WithDispatchIdle(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.dispatchIdle = d
		}
	}
}

// WithRealtimeInterval sets how often the realtime timer is stepped.
func WithRealtimeInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.realtimeInterval = d
		}
	}
}

// WithClock replaces the wall clock used by the realtime timer.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		if now != nil {
			c.clock = now
		}
	}
}

// WithPanicHandler installs a hook called after a producer or receiver
// panic has been recovered and logged.
func WithPanicHandler(h dispatch.PanicHandler) Option {
	return func(c *config) {
		c.panicHandler = h
	}
}
