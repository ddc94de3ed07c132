// Package reportbuilder wires the backend client, API contract, workflow
// controller and an artifact sink into a ready-to-use editing session.
package reportbuilder

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-reportbuilder/pkg/artifact"
	"github.com/goliatone/go-reportbuilder/pkg/client"
	"github.com/goliatone/go-reportbuilder/pkg/contract"
	"github.com/goliatone/go-reportbuilder/pkg/model"
	"github.com/goliatone/go-reportbuilder/pkg/settings"
	"github.com/goliatone/go-reportbuilder/pkg/workflow"
)

// Version is stamped at build time.
var Version = "dev"

// Session is a workflow controller bound to a backend client.
type Session struct {
	*workflow.Controller
	Client *client.Client
}

// Option configures NewSession.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	httpClient *http.Client
	now        func() time.Time
}

// WithLogger sets the logger shared by the client and controller.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithHTTPClient overrides the HTTP client used to reach the backend.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

// WithClock overrides the clock used to name artifacts.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// NewSession builds a session for cfg that delivers artifacts to sink.
func NewSession(cfg settings.Settings, sink artifact.Sink, opts ...Option) (*Session, error) {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	clientOpts := []client.Option{
		client.WithTimeout(cfg.RequestTimeout),
		client.WithUserAgent("go-reportbuilder/" + Version),
		client.WithHTTPClient(o.httpClient),
	}
	if cfg.ValidateContract {
		v, err := contract.Default()
		if err != nil {
			return nil, fmt.Errorf("reportbuilder: load contract: %w", err)
		}
		clientOpts = append(clientOpts, client.WithValidator(v))
	}
	c, err := client.New(cfg.APIBase, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("reportbuilder: %w", err)
	}

	ctrl, err := workflow.New(
		workflow.WithBackend(c),
		workflow.WithSink(sink),
		workflow.WithLogger(o.logger.Named("workflow")),
		workflow.WithClock(o.now),
	)
	if err != nil {
		return nil, fmt.Errorf("reportbuilder: %w", err)
	}
	return &Session{Controller: ctrl, Client: c}, nil
}

// ParseAssignments splits KEY=VALUE pairs. Only the first '=' separates key
// from value, so values may contain '='.
func ParseAssignments(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("reportbuilder: invalid assignment %q, want KEY=VALUE", pair)
		}
		out[key] = value
	}
	return out, nil
}

// Generate runs a non-interactive session: load the configuration, apply
// overrides, then generate and deliver the report.
func Generate(ctx context.Context, s *Session, overrides map[string]string) (model.Artifact, error) {
	if err := s.LoadConfig(ctx); err != nil {
		return model.Artifact{}, fmt.Errorf("reportbuilder: load configuration: %w", err)
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := s.SetReplacement(k, overrides[k]); err != nil {
			return model.Artifact{}, fmt.Errorf("reportbuilder: %w", err)
		}
	}
	a, err := s.GenerateReport(ctx)
	if err != nil {
		return model.Artifact{}, fmt.Errorf("reportbuilder: generate report: %w", err)
	}
	return a, nil
}
