// Package keywrap wraps per-record data keys to principals. The Provider
// prefers a remote KMS and falls back to a local RSA-OAEP backend whenever
// the KMS is unconfigured, slow or failing.
package keywrap

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"medblock/internal/keywrap/transit"
	"medblock/internal/platform/metrics"
	dErrors "medblock/pkg/domain-errors"
	"medblock/pkg/platform/circuit"
)

// ErrUnwrapFailed means the blob was not wrapped to the given principal or
// was corrupted.
var ErrUnwrapFailed = dErrors.New(dErrors.CodeCrypto, "unwrap failed")

// Blob format markers. The first byte of every wrapped blob names the
// backend that produced it so Unwrap never guesses.
const (
	formatLocal  byte = 0x01
	formatRemote byte = 0x02
)

const (
	backendLocal  = "local"
	backendRemote = "transit"
)

// Backend is a raw wrapping primitive without format markers.
type Backend interface {
	Wrap(ctx context.Context, key []byte, principalID string) ([]byte, error)
	Unwrap(ctx context.Context, wrapped []byte, principalID string) ([]byte, error)
}

// Provider implements the wrap/unwrap/rewrap contract over an optional
// remote backend and a mandatory local one.
type Provider struct {
	remote  Backend
	local   Backend
	breaker *circuit.Breaker
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Provider)

// WithRemote enables a remote backend. A nil backend leaves it disabled.
func WithRemote(b Backend) Option {
	return func(p *Provider) {
		p.remote = b
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(p *Provider) {
		p.breaker = b
	}
}

// WithRemoteTimeout bounds each remote call.
func WithRemoteTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.timeout = d
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Provider) {
		p.metrics = m
	}
}

func NewProvider(local Backend, opts ...Option) *Provider {
	p := &Provider{
		local:   local,
		timeout: transit.DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.breaker == nil {
		p.breaker = circuit.New("kms")
	}
	return p
}

// Wrap wraps key to principalID. Remote failure is never surfaced; the local
// backend takes over silently.
func (p *Provider) Wrap(ctx context.Context, key []byte, principalID string) ([]byte, error) {
	if principalID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "principal id is required")
	}
	if p.remote != nil && p.breaker.Allow() {
		wrapped, err := p.wrapRemote(ctx, key, principalID)
		if err == nil {
			if _, change := p.breaker.RecordSuccess(); change.Closed {
				p.logger.InfoContext(ctx, "kms circuit closed", "breaker", p.breaker.Name())
			}
			p.metrics.IncKeyWrap(backendRemote)
			return tagged(formatRemote, wrapped), nil
		}
		if ctx.Err() != nil {
			return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "wrap cancelled")
		}
		_, change := p.breaker.RecordFailure()
		if change.Opened {
			p.logger.WarnContext(ctx, "kms circuit opened", "breaker", p.breaker.Name())
		}
		p.logger.WarnContext(ctx, "kms wrap failed, using local backend",
			"principal_id", principalID,
			"error", err,
		)
		p.metrics.IncKeyWrapFallback()
	}

	wrapped, err := p.local.Wrap(ctx, key, principalID)
	if err != nil {
		return nil, err
	}
	p.metrics.IncKeyWrap(backendLocal)
	return tagged(formatLocal, wrapped), nil
}

// Unwrap recovers a key wrapped by Wrap for the same principal.
func (p *Provider) Unwrap(ctx context.Context, blob []byte, principalID string) ([]byte, error) {
	if principalID == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "principal id is required")
	}
	if len(blob) < 2 {
		return nil, ErrUnwrapFailed
	}
	body := blob[1:]
	switch blob[0] {
	case formatLocal:
		key, err := p.local.Unwrap(ctx, body, principalID)
		if err != nil {
			p.metrics.IncKeyUnwrapFailure(backendLocal)
			return nil, err
		}
		return key, nil
	case formatRemote:
		if p.remote == nil {
			p.metrics.IncKeyUnwrapFailure(backendRemote)
			return nil, dErrors.New(dErrors.CodeDependencyUnavailable, "key was wrapped by a kms that is not configured")
		}
		key, err := p.unwrapRemote(ctx, body, principalID)
		if err != nil {
			p.metrics.IncKeyUnwrapFailure(backendRemote)
			var se *transit.StatusError
			if errors.As(err, &se) && se.Rejected() {
				return nil, ErrUnwrapFailed
			}
			return nil, dErrors.Wrap(err, dErrors.CodeDependencyUnavailable, "kms unwrap failed")
		}
		return key, nil
	default:
		return nil, ErrUnwrapFailed
	}
}

// Rewrap wraps an already-unwrapped key to another principal.
func (p *Provider) Rewrap(ctx context.Context, key []byte, principalID string) ([]byte, error) {
	return p.Wrap(ctx, key, principalID)
}

func (p *Provider) wrapRemote(ctx context.Context, key []byte, principalID string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.remote.Wrap(ctx, key, principalID)
}

func (p *Provider) unwrapRemote(ctx context.Context, blob []byte, principalID string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.remote.Unwrap(ctx, blob, principalID)
}

func tagged(format byte, wrapped []byte) []byte {
	out := make([]byte, 0, len(wrapped)+1)
	out = append(out, format)
	return append(out, wrapped...)
}
