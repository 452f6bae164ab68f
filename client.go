// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package grpcwire

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	rpccreds "github.com/luxfi/grpcwire/credentials"
	"github.com/luxfi/grpcwire/internal/transport"
)

// MethodDesc is one entry of a ServiceDesc's method map:
// the wire path, the (requestStream, responseStream) shape, and the
// caller-supplied serialize/deserialize pair. Message serialization is
// treated as an opaque boundary — grpcwire never inspects req/resp bytes.
type MethodDesc struct {
	// Path is the full wire method name, e.g.
	// "/grpc.testing.TestService/UnaryCall".
	Path string

	ClientStreams bool
	ServerStreams bool

	Serialize   func(v any) ([]byte, error)
	Deserialize func(data []byte) (any, error)
}

func (m *MethodDesc) shape() transport.Shape {
	return transport.Shape{ClientStreams: m.ClientStreams, ServerStreams: m.ServerStreams}
}

// ServiceDesc is the input to NewClient: a mapping from a
// short, application-facing method name to its MethodDesc, plus the
// fully-qualified service name (used for logging/diagnostics here, since
// this binding does not itself consult service-definition loading).
type ServiceDesc struct {
	ServiceName string
	Methods     map[string]*MethodDesc
}

// Client is the constructed binding for one ServiceDesc: it owns a channel
// and dispatches calls by shape.
type Client struct {
	cc      *grpc.ClientConn
	desc    ServiceDesc
	maxRecv int
	log     *zap.SugaredLogger
}

// NewClient validates desc (rejecting any reserved "$"-prefixed method
// name) and dials address with the given channel credential and options,
// returning a Client that exposes desc's methods.
func NewClient(ctx context.Context, address string, desc ServiceDesc, creds rpccreds.ChannelCredential, opts ...Option) (*Client, error) {
	if err := checkReservedMethodNames(desc.Methods); err != nil {
		return nil, err
	}

	cfg := defaultOptions()
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}

	cc, err := transport.Dial(ctx, address, transport.Options{
		Credentials:           creds,
		SSLTargetNameOverride: cfg.SSLTargetNameOverride,
		DefaultAuthority:      cfg.DefaultAuthority,
		PrimaryUserAgent:      cfg.PrimaryUserAgent,
		MaxReceiveMessageSize: cfg.MaxReceiveMessageSize,
		Logger:                cfg.Logger,
		ExtraDialOptions:      cfg.dialOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("grpcwire: dial %s: %w", address, err)
	}

	cfg.Logger.Infow("channel constructed", "address", address, "service", desc.ServiceName, "methods", len(desc.Methods))

	return &Client{cc: cc, desc: desc, maxRecv: cfg.MaxReceiveMessageSize, log: cfg.Logger}, nil
}

// Close tears down the underlying channel.
func (c *Client) Close() error {
	return c.cc.Close()
}

func (c *Client) method(name string) (*MethodDesc, error) {
	m, ok := c.desc.Methods[name]
	if !ok {
		return nil, invalidArgument("grpcwire: unknown method %q", name)
	}
	return m, nil
}

// newCall builds the internal call handle for one invocation. When cfg
// carries a parent call with propagation requested, the parent's context is
// used as the base so cancelling the parent transitively cancels this call.
func (c *Client) newCall(ctx context.Context, m *MethodDesc, cfg callConfig) *Call {
	base := ctx
	if cfg.parent != nil && cfg.propagateCancel {
		base = withPropagatedCancel(ctx, cfg.parent.inner.Context())
	}
	inner := transport.NewCall(base, c.cc, m.Path, m.shape(), cfg.deadline, cfg.host, cfg.credsOverride, c.maxRecv, c.log)
	return &Call{inner: inner}
}

// withPropagatedCancel returns a context derived from ctx that is also
// cancelled when parent is done, without losing any of ctx's own
// values/deadline. The helper goroutine exits as soon as either context
// finishes.
func withPropagatedCancel(ctx, parent context.Context) context.Context {
	derived, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-derived.Done():
		}
	}()
	return derived
}
