// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package credentials implements the channel-credential / call-credential
// algebra: opaque handles for transport-level and per-call authentication,
// and the composition rules that combine them into a single effective
// channel credential.
package credentials

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	rpcmetadata "github.com/luxfi/grpcwire/metadata"
)

// MetadataGenerator produces metadata for an outgoing call, given the
// authority (":authority" / server name) the call is addressed to. It may
// block (e.g. on a network round trip to mint a token).
type MetadataGenerator func(ctx context.Context, authorityURI string) (rpcmetadata.MD, error)

// AccessTokenSource yields a bearer token. It is the contract an external
// OAuth acquisition mechanism must satisfy; this package never acquires
// tokens itself.
type AccessTokenSource interface {
	Token(ctx context.Context) (string, error)
}

// CallCredential is a per-call credential: a metadata-producing function
// plus whatever composed itself out of (see ComposeCall).
type CallCredential struct {
	generate MetadataGenerator
}

// FromMetadataGenerator wraps an arbitrary, possibly asynchronous, metadata
// generator as a call credential.
func FromMetadataGenerator(fn MetadataGenerator) CallCredential {
	return CallCredential{generate: fn}
}

// FromAccessTokenSource is the common bearer-token convenience: it emits a
// single "authorization: Bearer <token>" entry.
func FromAccessTokenSource(source AccessTokenSource) CallCredential {
	return FromMetadataGenerator(func(ctx context.Context, _ string) (rpcmetadata.MD, error) {
		tok, err := source.Token(ctx)
		if err != nil {
			return rpcmetadata.MD{}, err
		}
		md := rpcmetadata.MD{}
		md.Set("authorization", "Bearer "+tok)
		return md, nil
	})
}

// IsZero reports whether c is the zero value (no generator attached).
func (c CallCredential) IsZero() bool {
	return c.generate == nil
}

// GenerateMetadata invokes the underlying generator. It is exported so the
// transport layer can call it without re-exposing the generator type.
func (c CallCredential) GenerateMetadata(ctx context.Context, authorityURI string) (rpcmetadata.MD, error) {
	if c.generate == nil {
		return rpcmetadata.MD{}, nil
	}
	return c.generate(ctx, authorityURI)
}

// ComposeCall combines two call credentials into one whose generator runs
// both generators and merges their metadata, concatenating a's entries
// before b's and preserving per-key order.
func ComposeCall(a, b CallCredential) (CallCredential, error) {
	if a.IsZero() || b.IsZero() {
		return CallCredential{}, status.Error(codes.InvalidArgument, "credentials: ComposeCall requires two non-nil call credentials")
	}
	return FromMetadataGenerator(func(ctx context.Context, authorityURI string) (rpcmetadata.MD, error) {
		var mdA, mdB rpcmetadata.MD
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			var err error
			mdA, err = a.generate(gctx, authorityURI)
			return err
		})
		g.Go(func() error {
			var err error
			mdB, err = b.generate(gctx, authorityURI)
			return err
		})
		if err := g.Wait(); err != nil {
			return rpcmetadata.MD{}, err
		}
		merged := rpcmetadata.MD{}
		for _, k := range mdA.Keys() {
			for _, v := range mdA.Get(k) {
				merged.Add(k, v)
			}
		}
		for _, k := range mdB.Keys() {
			for _, v := range mdB.Get(k) {
				merged.Add(k, v)
			}
		}
		return merged, nil
	}), nil
}

// ChannelCredential is an opaque handle for a channel-level credential: the
// secure/insecure distinction, any root-CA / client-cert material, and
// (once composed) any attached call credentials. The zero value is invalid;
// construct with Insecure or SSL.
type ChannelCredential struct {
	name          string
	composable    bool
	transport     credentials.TransportCredentials
	perRPC        []credentials.PerRPCCredentials
}

// IsComposable reports whether ComposeChannel may attach a call credential
// to c. True for secure variants produced by SSL; false for Insecure and
// for any credential that already resulted from a composition.
func (c ChannelCredential) IsComposable() bool {
	return c.composable
}

// Name returns a short human-readable label, useful for logging.
func (c ChannelCredential) Name() string {
	return c.name
}

// TransportCredentials returns the underlying grpc transport credentials,
// for use by internal/transport when dialing or serving.
func (c ChannelCredential) TransportCredentials() credentials.TransportCredentials {
	return c.transport
}

// PerRPCCredentials returns any call credentials attached by ComposeChannel,
// in attachment order.
func (c ChannelCredential) PerRPCCredentials() []credentials.PerRPCCredentials {
	return c.perRPC
}

var insecureSentinel = ChannelCredential{
	name:       "insecure",
	composable: false,
	transport:  insecure.NewCredentials(),
}

// Insecure returns the unique non-composable insecure channel credential.
func Insecure() ChannelCredential {
	return insecureSentinel
}

// SSL builds a composable channel credential from an optional root CA pool
// and an optional client certificate/key pair. A non-nil certChain must
// carry both the certificate chain and its private key.
func SSL(rootCerts *x509.CertPool, certChain *tls.Certificate) (ChannelCredential, error) {
	cfg := &tls.Config{RootCAs: rootCerts}
	if certChain != nil {
		if len(certChain.Certificate) == 0 || certChain.PrivateKey == nil {
			return ChannelCredential{}, status.Error(codes.InvalidArgument, "credentials: SSL client certificate requires both a certificate chain and a private key")
		}
		cfg.Certificates = []tls.Certificate{*certChain}
	}
	return ChannelCredential{
		name:       "tls",
		composable: true,
		transport:  credentials.NewTLS(cfg),
	}, nil
}

// perRPCAdapter adapts a CallCredential to grpc's credentials.PerRPCCredentials.
type perRPCAdapter struct {
	cred                 CallCredential
	requireTransportSec bool
}

func (a perRPCAdapter) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	authority := ""
	if len(uri) > 0 {
		authority = uri[0]
	}
	md, err := a.cred.GenerateMetadata(ctx, authority)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, md.Len())
	for _, k := range md.Keys() {
		vs := md.Get(k)
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out, nil
}

func (a perRPCAdapter) RequireTransportSecurity() bool {
	return a.requireTransportSec
}

// NewPerRPCCredentials adapts a CallCredential to grpc's
// credentials.PerRPCCredentials, for use as a grpc.CallOption. It is the
// bridge internal/transport uses to apply a per-call credential override
// without that package depending on this one's
// unexported adapter type.
func NewPerRPCCredentials(c CallCredential) credentials.PerRPCCredentials {
	return perRPCAdapter{cred: c, requireTransportSec: true}
}

// ComposeChannel attaches a call credential to a composable channel
// credential, producing a new, non-composable channel credential (rule 1 of
// the composition algebra: the result may not itself be composed again).
func ComposeChannel(c ChannelCredential, k CallCredential) (ChannelCredential, error) {
	if c.transport == nil {
		return ChannelCredential{}, status.Error(codes.InvalidArgument, "credentials: ComposeChannel requires a non-nil channel credential")
	}
	if k.IsZero() {
		return ChannelCredential{}, status.Error(codes.InvalidArgument, "credentials: ComposeChannel requires a non-nil call credential")
	}
	if !c.composable {
		return ChannelCredential{}, status.Error(codes.InvalidArgument, fmt.Sprintf("credentials: channel credential %q is not composable", c.name))
	}
	out := ChannelCredential{
		name:       c.name + "+call",
		composable: false,
		transport:  c.transport,
		perRPC:     append(append([]credentials.PerRPCCredentials(nil), c.perRPC...), perRPCAdapter{cred: k, requireTransportSec: true}),
	}
	return out, nil
}

// Combine folds ComposeChannel over a variadic list of call credentials,
// first reducing them with ComposeCall. It is the correct replacement for a
// forbidden chain of ComposeChannel(ComposeChannel(c, k1), k2): Combine(c,
// k1, k2) is equivalent to ComposeChannel(c, ComposeCall(k1, k2)).
func Combine(c ChannelCredential, calls ...CallCredential) (ChannelCredential, error) {
	if len(calls) == 0 {
		return ChannelCredential{}, status.Error(codes.InvalidArgument, "credentials: Combine requires at least one call credential")
	}
	merged := calls[0]
	for _, next := range calls[1:] {
		var err error
		merged, err = ComposeCall(merged, next)
		if err != nil {
			return ChannelCredential{}, err
		}
	}
	return ComposeChannel(c, merged)
}
