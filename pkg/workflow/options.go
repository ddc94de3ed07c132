package workflow

import (
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-reportbuilder/pkg/artifact"
)

// Option configures a Controller.
type Option func(*Controller)

// WithBackend sets the backend the controller loads from and generates with.
func WithBackend(backend Backend) Option {
	return func(c *Controller) {
		if backend != nil {
			c.backend = backend
		}
	}
}

// WithSink sets where generated artifacts are delivered.
func WithSink(sink artifact.Sink) Option {
	return func(c *Controller) {
		if sink != nil {
			c.sink = sink
		}
	}
}

// WithClock overrides the time source used to name artifacts.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTimeout bounds each backend call made by the controller. Zero leaves
// the caller's context untouched.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.timeout = d
	}
}
