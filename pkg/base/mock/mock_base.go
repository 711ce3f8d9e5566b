// Package mock provides an in-memory Base for tests. A Mock is a
// base.Transport serving one base; a Server serves any number of bases over
// HTTP for clients built with base.New and base.WithAPIURL.
package mock

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/basekit/base_sdk_go/internal/emulator"
	"github.com/basekit/base_sdk_go/pkg/base"
)

// Option configures the mock instance.
type Option = emulator.Option

// WithClock overrides the clock used for expiry checks (useful in tests).
func WithClock(fn func() time.Time) Option {
	return emulator.WithClock(fn)
}

// WithKeyGenerator overrides the generator of keys for keyless items.
func WithKeyGenerator(fn func() string) Option {
	return emulator.WithKeyGenerator(fn)
}

// Mock is an in-memory base implementing base.Transport.
type Mock struct {
	store *emulator.Store
}

// New creates an empty mock base.
func New(opts ...Option) *Mock {
	return &Mock{store: emulator.New(opts...)}
}

// Seed stores items as a put would.
func (m *Mock) Seed(items []base.Item) error {
	raw := make([]map[string]any, len(items))
	for i, it := range items {
		raw[i] = it
	}
	return m.store.Seed(raw)
}

// Len returns the number of live items.
func (m *Mock) Len() int {
	return m.store.Len()
}

// Send implements base.Transport.
func (m *Mock) Send(ctx context.Context, method, path string, body any) (*base.Response, error) {
	status, data, err := m.store.Send(ctx, method, path, body)
	if errors.Is(err, emulator.ErrEncode) {
		return nil, &base.TransportError{Kind: base.KindEncode, Message: err.Error(), Err: err}
	}
	if err != nil {
		return nil, err
	}
	return &base.Response{Status: status, Body: data}, nil
}

// Client returns a client backed by the mock.
func (m *Mock) Client(opts ...base.Option) *base.Client {
	return base.NewWithTransport(m, opts...)
}

// Server is an HTTP server for every base of every project, rooted at the
// prefix given to NewServer. Requests need an X-API-Key of the route's
// project.
type Server struct {
	*emulator.Registry
}

// NewServer returns a handler serving bases under prefix, such as "/v1".
func NewServer(prefix string, opts ...Option) *Server {
	return &Server{Registry: emulator.NewRegistry(prefix, opts...)}
}

// Seed adds items to the named base in every project.
func (s *Server) Seed(baseName string, items []base.Item) error {
	raw := make([]map[string]any, len(items))
	for i, it := range items {
		raw[i] = it
	}
	return s.Registry.Seed(baseName, raw)
}
