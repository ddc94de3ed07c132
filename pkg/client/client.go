// Package client talks to the report backend: it fetches the current template
// configuration and exchanges an edited placeholder mapping for a generated
// presentation.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-reportbuilder/pkg/contract"
	"github.com/goliatone/go-reportbuilder/pkg/model"
)

// Endpoint paths relative to the API base.
const (
	PathConfig   = "/api/config"
	PathGenerate = "/api/generate"
	PathHealth   = "/health"
)

// DefaultTimeout bounds a single request when no timeout is configured.
const DefaultTimeout = 30 * time.Second

const maxErrorBody = 4 << 10

// Client is a backend API client. It is safe for concurrent use.
type Client struct {
	base      *url.URL
	http      *http.Client
	timeout   time.Duration
	validator *contract.Validator
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout bounds each request. Zero or negative disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithValidator checks payloads against the API contract. Passing nil turns
// validation off.
func WithValidator(v *contract.Validator) Option {
	return func(c *Client) {
		c.validator = v
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = strings.TrimSpace(ua)
	}
}

// New builds a client for the backend rooted at baseURL.
func New(baseURL string, options ...Option) (*Client, error) {
	base, err := parseBase(baseURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		base:    base,
		http:    http.DefaultClient,
		timeout: DefaultTimeout,
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(c)
	}
	return c, nil
}

// FetchConfig retrieves the template configuration and slide text.
func (c *Client) FetchConfig(ctx context.Context) (model.ConfigResponse, error) {
	const op = "fetch config"

	body, _, err := c.do(ctx, op, http.MethodGet, PathConfig, nil)
	if err != nil {
		return model.ConfigResponse{}, err
	}

	if c.validator != nil {
		if err := c.validator.ValidateJSON(contract.SchemaConfigResponse, body); err != nil {
			return model.ConfigResponse{}, &Error{Op: op, Kind: KindContract, Err: errors.Join(ErrContract, err)}
		}
	}

	var resp model.ConfigResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return model.ConfigResponse{}, &Error{Op: op, Kind: KindDecode, Err: errors.Join(ErrDecode, err)}
	}
	if resp.Config.Replacements == nil {
		resp.Config.Replacements = map[string]string{}
	}
	return resp, nil
}

// Generate submits req and returns the generated presentation bytes.
func (c *Client) Generate(ctx context.Context, req model.GenerateRequest) (model.Artifact, error) {
	const op = "generate"

	if req.Replacements == nil {
		req.Replacements = map[string]string{}
	}
	if c.validator != nil {
		if err := c.validator.Validate(contract.SchemaGenerateRequest, req); err != nil {
			return model.Artifact{}, &Error{Op: op, Kind: KindContract, Err: errors.Join(ErrContract, err)}
		}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return model.Artifact{}, &Error{Op: op, Kind: KindDecode, Err: err}
	}

	body, header, err := c.do(ctx, op, http.MethodPost, PathGenerate, payload)
	if err != nil {
		return model.Artifact{}, err
	}
	if len(body) == 0 {
		return model.Artifact{}, &Error{Op: op, Kind: KindDecode, Err: ErrEmptyArtifact}
	}

	return model.Artifact{
		Filename:    attachmentName(header.Get("Content-Disposition")),
		ContentType: header.Get("Content-Type"),
		Data:        body,
	}, nil
}

// Health probes the backend liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	const op = "health"

	body, _, err := c.do(ctx, op, http.MethodGet, PathHealth, nil)
	if err != nil {
		return err
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return &Error{Op: op, Kind: KindDecode, Err: errors.Join(ErrDecode, err)}
	}
	if payload.Status != "healthy" {
		return &Error{Op: op, Kind: KindStatus, Err: fmt.Errorf("%w: backend reports %q", ErrStatus, payload.Status)}
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, payload []byte) ([]byte, http.Header, error) {
	if ctx == nil {
		return nil, nil, errors.New("client: context is required")
	}

	reqCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, c.endpoint(path), reader)
	if err != nil {
		return nil, nil, &Error{Op: op, Kind: KindNetwork, Err: err}
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, &Error{Op: op, Kind: KindNetwork, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, nil, &Error{
			Op:         op,
			Kind:       KindStatus,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%w %s: %s", ErrStatus, resp.Status, strings.TrimSpace(string(detail))),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, &Error{Op: op, Kind: KindDecode, Err: errors.Join(ErrDecode, err)}
	}
	return data, resp.Header, nil
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return u.String()
}

func parseBase(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("client: base url is required")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("client: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("client: base url %q must be http or https", trimmed)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("client: base url %q has no host", trimmed)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func attachmentName(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}
