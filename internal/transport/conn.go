// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package transport binds the batched operation language (SEND_INITIAL_METADATA,
// SEND_MESSAGE, SEND_CLOSE_FROM_CLIENT, RECV_INITIAL_METADATA, RECV_MESSAGE,
// RECV_STATUS_ON_CLIENT) to a concrete transport: google.golang.org/grpc.
// Nothing above this package knows that grpc-go is underneath; it only
// sees Call and Batch.
package transport

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	rpccreds "github.com/luxfi/grpcwire/credentials"
)

// Channel is the slice of *grpc.ClientConn this package depends on. Keeping
// it as an interface (rather than taking *grpc.ClientConn directly)
// mirrors how fullstorydev/grpchan abstracts "Channel" so alternate
// transports, or a fake for unit tests, can stand in for a real connection.
type Channel interface {
	Invoke(ctx context.Context, method string, args, reply any, opts ...grpc.CallOption) error
	NewStream(ctx context.Context, desc *grpc.StreamDesc, method string, opts ...grpc.CallOption) (grpc.ClientStream, error)
}

var _ Channel = (*grpc.ClientConn)(nil)

// Options are the channel-construction options recognised by this package.
type Options struct {
	Credentials           rpccreds.ChannelCredential
	SSLTargetNameOverride string
	DefaultAuthority      string
	PrimaryUserAgent      string
	MaxReceiveMessageSize int
	Logger                *zap.SugaredLogger

	// ExtraDialOptions is an escape hatch for callers that need a raw
	// grpc.DialOption this package's named options don't cover (e.g. a
	// custom dialer for in-memory test transports).
	ExtraDialOptions []grpc.DialOption
}

// LibraryUserAgent is appended to Options.PrimaryUserAgent.
const LibraryUserAgent = "grpcwire/1.0"

// Dial opens a channel to addr using opts. It always negotiates the raw
// pass-through codec (see codec.go) so message bytes flow untouched between
// the method descriptor's serialize/deserialize pair and the wire.
func Dial(ctx context.Context, addr string, opts Options) (*grpc.ClientConn, error) {
	var dialOpts []grpc.DialOption

	if opts.Credentials.TransportCredentials() != nil {
		dialOpts = append(dialOpts, grpc.WithTransportCredentials(opts.Credentials.TransportCredentials()))
	}
	for _, perRPC := range opts.Credentials.PerRPCCredentials() {
		dialOpts = append(dialOpts, grpc.WithPerRPCCredentials(perRPC))
	}
	if opts.SSLTargetNameOverride != "" {
		dialOpts = append(dialOpts, grpc.WithAuthority(opts.SSLTargetNameOverride))
	} else if opts.DefaultAuthority != "" {
		dialOpts = append(dialOpts, grpc.WithAuthority(opts.DefaultAuthority))
	}

	ua := LibraryUserAgent
	if opts.PrimaryUserAgent != "" {
		ua = opts.PrimaryUserAgent + " " + LibraryUserAgent
	}
	dialOpts = append(dialOpts, grpc.WithUserAgent(ua))

	if opts.MaxReceiveMessageSize > 0 {
		dialOpts = append(dialOpts, grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(opts.MaxReceiveMessageSize)))
	}
	dialOpts = append(dialOpts, opts.ExtraDialOptions...)

	cc, err := grpc.DialContext(ctx, addr, dialOpts...)
	if err != nil {
		return nil, err
	}
	return cc, nil
}

// callOptions returns the per-call grpc.CallOption set common to every
// driver: the raw content-subtype negotiation and any per-call credential
// override.
func callOptions(override rpccreds.CallCredential, maxRecv int) []grpc.CallOption {
	opts := []grpc.CallOption{grpc.CallContentSubtype(rawSubtype)}
	if !override.IsZero() {
		opts = append(opts, grpc.PerRPCCredentials(rpccreds.NewPerRPCCredentials(override)))
	}
	if maxRecv > 0 {
		opts = append(opts, grpc.MaxCallRecvMsgSize(maxRecv))
	}
	return opts
}
