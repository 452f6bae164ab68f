// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package grpcwire

import (
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	rpccreds "github.com/luxfi/grpcwire/credentials"
	rpcmd "github.com/luxfi/grpcwire/metadata"
)

// options holds the channel-construction options recognised by NewClient.
type options struct {
	SSLTargetNameOverride string
	DefaultAuthority      string
	PrimaryUserAgent      string
	MaxReceiveMessageSize int
	Logger                *zap.SugaredLogger
	dialOpts              []grpc.DialOption
}

func defaultOptions() options {
	return options{Logger: zap.NewNop().Sugar()}
}

// Option configures a Client at construction time.
type Option func(*options)

// WithSSLTargetNameOverride sets the authority used for TLS hostname
// matching.
func WithSSLTargetNameOverride(name string) Option {
	return func(o *options) { o.SSLTargetNameOverride = name }
}

// WithDefaultAuthority sets the fallback authority header.
func WithDefaultAuthority(authority string) Option {
	return func(o *options) { o.DefaultAuthority = authority }
}

// WithPrimaryUserAgent prepends ua to the library's own user-agent string.
func WithPrimaryUserAgent(ua string) Option {
	return func(o *options) { o.PrimaryUserAgent = ua }
}

// WithMaxReceiveMessageSize sets a hard ceiling on deserialised message
// size.
func WithMaxReceiveMessageSize(n int) Option {
	return func(o *options) { o.MaxReceiveMessageSize = n }
}

// WithLogger attaches a structured logger; every driver and the client
// itself log through it. Defaults to a no-op logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(o *options) { o.Logger = log }
}

// WithDialOptions appends raw grpc.DialOption values the rest of this
// option surface has no name for, such as a custom dialer for an in-memory
// test transport (see google.golang.org/grpc/test/bufconn).
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(o *options) { o.dialOpts = append(o.dialOpts, opts...) }
}

// callConfig holds the per-call options recognised at invocation: deadline,
// host, parent, propagate_flags, credentials, flags.
type callConfig struct {
	deadline        time.Time
	host            string
	parent          *Call
	propagateCancel bool
	credsOverride   rpccreds.CallCredential
	flags           uint32
	initialMetadata rpcmd.MD
}

// CallOption configures one invocation of CallUnary/CallClientStream/
// CallServerStream/CallBidi.
type CallOption func(*callConfig)

// WithDeadline sets an absolute deadline. The zero Time means "never
// expire by timeout".
func WithDeadline(t time.Time) CallOption {
	return func(c *callConfig) { c.deadline = t }
}

// WithTimeout is a convenience for WithDeadline(time.Now().Add(d)).
func WithTimeout(d time.Duration) CallOption {
	return func(c *callConfig) { c.deadline = time.Now().Add(d) }
}

// WithHost records a per-call authority. The value is only logged: the
// ":authority" sent on the wire is the channel's (WithSSLTargetNameOverride
// or WithDefaultAuthority), not this one.
func WithHost(host string) CallOption {
	return func(c *callConfig) { c.host = host }
}

// WithParent propagates cancellation from parent to this call when
// propagate is true.
func WithParent(parent *Call, propagate bool) CallOption {
	return func(c *callConfig) { c.parent = parent; c.propagateCancel = propagate }
}

// WithCallCredentials overrides the per-call credential.
func WithCallCredentials(cred rpccreds.CallCredential) CallOption {
	return func(c *callConfig) { c.credsOverride = cred }
}

// WithFlags sets the per-message send flags bitmask.
// This binding does not interpret the bitmask itself — it is carried
// through for callers that coordinate with out-of-band interceptors.
func WithFlags(flags uint32) CallOption {
	return func(c *callConfig) { c.flags = flags }
}

// WithInitialMetadata sets the outgoing initial metadata for this call.
func WithInitialMetadata(md rpcmd.MD) CallOption {
	return func(c *callConfig) { c.initialMetadata = md }
}

func resolveCallConfig(opts []CallOption) callConfig {
	var cfg callConfig
	for _, o := range opts {
		o(&cfg)
	}
	return cfg
}
