package web

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-reportbuilder/pkg/artifact"
	"github.com/goliatone/go-reportbuilder/pkg/model"
)

// DefaultDownloadTTL bounds how long an unclaimed artifact stays parked.
const DefaultDownloadTTL = 5 * time.Minute

// Downloads parks generated artifacts under one-time tokens. It is the
// artifact sink of a browser session: a token is served once and then
// revoked, like an object URL.
type Downloads struct {
	mu    sync.Mutex
	items map[string]parked
	ttl   time.Duration
	now   func() time.Time
}

type parked struct {
	artifact model.Artifact
	expires  time.Time
}

var _ artifact.Sink = (*Downloads)(nil)

// DownloadOption configures Downloads.
type DownloadOption func(*Downloads)

// WithDownloadTTL overrides DefaultDownloadTTL.
func WithDownloadTTL(ttl time.Duration) DownloadOption {
	return func(d *Downloads) {
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// WithDownloadClock overrides the clock used for expiry.
func WithDownloadClock(now func() time.Time) DownloadOption {
	return func(d *Downloads) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDownloads builds an empty store.
func NewDownloads(options ...DownloadOption) *Downloads {
	d := &Downloads{
		items: make(map[string]parked),
		ttl:   DefaultDownloadTTL,
		now:   time.Now,
	}
	for _, opt := range options {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Deliver parks a copy of a under a fresh token. When ctx carries a Receipt
// the token is recorded on it.
func (d *Downloads) Deliver(ctx context.Context, a model.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(a.Data) == 0 {
		return artifact.ErrEmptyArtifact
	}
	a.Data = append([]byte(nil), a.Data...)
	token := uuid.NewString()

	d.mu.Lock()
	now := d.now()
	d.pruneLocked(now)
	d.items[token] = parked{artifact: a, expires: now.Add(d.ttl)}
	d.mu.Unlock()

	if r := receiptFrom(ctx); r != nil {
		r.set(token)
	}
	return nil
}

// Pending reports whether token is claimable.
func (d *Downloads) Pending(token string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.items[token]
	return ok && d.now().Before(p.expires)
}

// Take returns the artifact for token and revokes it.
func (d *Downloads) Take(token string) (model.Artifact, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.items[token]
	if !ok {
		return model.Artifact{}, false
	}
	delete(d.items, token)
	if !d.now().Before(p.expires) {
		return model.Artifact{}, false
	}
	return p.artifact, true
}

// Len returns the number of parked artifacts, expired ones included.
func (d *Downloads) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.items)
}

func (d *Downloads) pruneLocked(now time.Time) {
	for token, p := range d.items {
		if !now.Before(p.expires) {
			delete(d.items, token)
		}
	}
}

// Receipt collects the token of an artifact delivered during one request.
type Receipt struct {
	mu    sync.Mutex
	token string
}

// Token returns the recorded token, or "" when nothing was delivered.
func (r *Receipt) Token() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.token
}

func (r *Receipt) set(token string) {
	r.mu.Lock()
	r.token = token
	r.mu.Unlock()
}

type receiptKey struct{}

// WithReceipt returns a context that records delivered download tokens.
func WithReceipt(ctx context.Context) (context.Context, *Receipt) {
	r := &Receipt{}
	return context.WithValue(ctx, receiptKey{}, r), r
}

func receiptFrom(ctx context.Context) *Receipt {
	r, _ := ctx.Value(receiptKey{}).(*Receipt)
	return r
}
