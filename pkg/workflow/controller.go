// Package workflow sequences the load, edit and generate operations of a
// report editing session around a single working state.
//
// Every operation is safe to call from multiple goroutines. Load and generate
// block on the backend; front ends run them on their own goroutines so the
// editor stays responsive, and may overlap them freely. Each operation kind
// carries a sequence number and only the most recently issued request of a
// kind may update the status fields, so a slow earlier response can never
// overwrite a newer one.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-reportbuilder/pkg/artifact"
	"github.com/goliatone/go-reportbuilder/pkg/client"
	"github.com/goliatone/go-reportbuilder/pkg/model"
	"github.com/goliatone/go-reportbuilder/pkg/state"
)

var (
	// ErrNotLoaded is returned by GenerateReport before any configuration has
	// been loaded.
	ErrNotLoaded = errors.New("workflow: configuration not loaded")
	// ErrSuperseded is returned when a newer request of the same kind was
	// issued while this one was in flight; its result was discarded.
	ErrSuperseded = errors.New("workflow: superseded by a newer request")
)

// Backend is the remote side of a session.
type Backend interface {
	FetchConfig(ctx context.Context) (model.ConfigResponse, error)
	Generate(ctx context.Context, req model.GenerateRequest) (model.Artifact, error)
}

// Observer receives a copy of the working state after every transition.
// Observers run while the controller lock is held: they must not block and
// must not call back into the controller.
type Observer func(state.WorkingState)

// Controller owns the working state of one editing session.
type Controller struct {
	mu    sync.Mutex
	state state.WorkingState

	backend Backend
	sink    artifact.Sink
	now     func() time.Time
	logger  *zap.Logger
	timeout time.Duration

	loadSeq     uint64
	generateSeq uint64
	inflight    int
	lastErr     error

	observers    map[int]Observer
	nextObserver int
}

// New builds a controller. A backend and a sink are required.
func New(options ...Option) (*Controller, error) {
	c := &Controller{
		now:       time.Now,
		logger:    zap.NewNop(),
		observers: make(map[int]Observer),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(c)
	}
	if c.backend == nil {
		return nil, errors.New("workflow: backend is required")
	}
	if c.sink == nil {
		return nil, errors.New("workflow: artifact sink is required")
	}
	return c, nil
}

// Snapshot returns a deep copy of the current working state.
func (c *Controller) Snapshot() state.WorkingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Busy reports whether any backend call is in flight.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Loading
}

// LastError returns the cause of the most recent applied failure.
func (c *Controller) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Subscribe registers fn for state changes and returns a function that
// removes it.
func (c *Controller) Subscribe(fn Observer) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	c.mu.Lock()
	id := c.nextObserver
	c.nextObserver++
	c.observers[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.observers, id)
			c.mu.Unlock()
		})
	}
}

// LoadConfig fetches the template configuration. On success the working state
// takes a fresh copy of the served mapping; on failure the error banner is set
// and previously loaded data is kept.
func (c *Controller) LoadConfig(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	c.loadSeq++
	seq := c.loadSeq
	c.inflight++
	c.state = state.ApplyLoadStart(c.state)
	c.publishLocked()
	c.mu.Unlock()

	callCtx, cancel := c.callContext(ctx)
	resp, err := c.backend.FetchConfig(callCtx)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight--

	if seq != c.loadSeq {
		c.logger.Debug("discarding stale config response",
			zap.Uint64("seq", seq),
			zap.Uint64("latest", c.loadSeq),
			zap.Error(err),
		)
		c.settleLocked()
		return ErrSuperseded
	}

	if err != nil {
		c.state = state.ApplyLoadFailure(c.state)
		c.lastErr = err
		c.logger.Warn("load config failed",
			zap.Uint64("seq", seq),
			zap.String("kind", string(client.KindOf(err))),
			zap.Error(err),
		)
	} else {
		c.state = state.ApplyLoadSuccess(c.state, resp)
		c.lastErr = nil
		c.logger.Info("config loaded",
			zap.Uint64("seq", seq),
			zap.Int("slide", resp.Config.SlideNumber),
			zap.Int("placeholders", len(resp.Config.Replacements)),
		)
	}
	c.settleLocked()
	return err
}

// SetReplacement edits one placeholder value. Only keys present in the loaded
// configuration can be edited.
func (c *Controller) SetReplacement(key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := state.SetReplacementValue(c.state, key, value)
	if err != nil {
		return fmt.Errorf("%w: %q", err, key)
	}
	c.state = next
	c.publishLocked()
	return nil
}

// GenerateReport submits the current replacements and delivers the returned
// artifact through the sink. The payload is captured when the call starts;
// edits made while the request is in flight go into the next submission.
// A call overtaken by a newer one returns ErrSuperseded and its artifact is
// dropped without delivery.
func (c *Controller) GenerateReport(ctx context.Context) (model.Artifact, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	c.generateSeq++
	seq := c.generateSeq
	c.state = state.ApplyGenerateStart(c.state)

	if c.state.Config == nil {
		c.state = state.ApplyGenerateFailure(c.state)
		c.lastErr = ErrNotLoaded
		c.settleLocked()
		c.mu.Unlock()
		c.logger.Warn("generate requested before config loaded")
		return model.Artifact{}, ErrNotLoaded
	}

	req := model.GenerateRequest{
		Replacements: model.CloneReplacements(c.state.Replacements),
		SlideNumber:  c.state.Config.SlideNumber,
	}
	c.inflight++
	c.publishLocked()
	c.mu.Unlock()

	art, err := c.submit(ctx, req)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflight--

	if seq != c.generateSeq {
		c.logger.Debug("dropping superseded report",
			zap.Uint64("seq", seq),
			zap.Uint64("latest", c.generateSeq),
			zap.Int("bytes", art.Size()),
			zap.Error(err),
		)
		c.settleLocked()
		return model.Artifact{}, ErrSuperseded
	}

	// Delivery stays under the lock so a newer call cannot change the banners
	// between the sequence check and the download.
	if err == nil {
		if derr := c.sink.Deliver(ctx, art); derr != nil {
			err = fmt.Errorf("workflow: deliver %s: %w", art.Filename, derr)
		}
	}

	if err != nil {
		c.state = state.ApplyGenerateFailure(c.state)
		c.lastErr = err
		c.logger.Warn("generate failed",
			zap.Uint64("seq", seq),
			zap.String("kind", string(client.KindOf(err))),
			zap.Error(err),
		)
		c.settleLocked()
		return model.Artifact{}, err
	}

	c.state = state.ApplyGenerateSuccess(c.state)
	c.lastErr = nil
	c.logger.Info("report delivered",
		zap.Uint64("seq", seq),
		zap.String("file", art.Filename),
		zap.Int("bytes", art.Size()),
	)
	c.settleLocked()
	return art, nil
}

// submit calls the backend and names the returned artifact.
func (c *Controller) submit(ctx context.Context, req model.GenerateRequest) (model.Artifact, error) {
	callCtx, cancel := c.callContext(ctx)
	art, err := c.backend.Generate(callCtx, req)
	cancel()
	if err != nil {
		return model.Artifact{}, err
	}
	if art.Size() == 0 {
		return model.Artifact{}, client.ErrEmptyArtifact
	}

	art.Filename = artifact.Filename(c.now())
	if art.ContentType == "" {
		art.ContentType = artifact.ContentType
	}
	return art, nil
}

func (c *Controller) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

// settleLocked derives Loading from the in-flight count and publishes.
func (c *Controller) settleLocked() {
	c.state.Loading = c.inflight > 0
	c.publishLocked()
}

func (c *Controller) publishLocked() {
	if len(c.observers) == 0 {
		return
	}
	snap := c.state.Clone()
	for _, fn := range c.observers {
		fn(snap.Clone())
	}
}
