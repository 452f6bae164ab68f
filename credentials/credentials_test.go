// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package credentials

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	rpcmetadata "github.com/luxfi/grpcwire/metadata"
)

func tokenGen(v string) CallCredential {
	return FromMetadataGenerator(func(ctx context.Context, _ string) (rpcmetadata.MD, error) {
		md := rpcmetadata.MD{}
		md.Set("authorization", "Bearer "+v)
		return md, nil
	})
}

// TestComposeChannelRejectsInsecure exercises testable property 8: composing
// the insecure channel credential with a call credential is invalid
// argument, and S6 (compose forbidden).
func TestComposeChannelRejectsInsecure(t *testing.T) {
	_, err := ComposeChannel(Insecure(), tokenGen("x"))
	require.Error(t, err)
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestComposeChannelRejectsAbsentArguments(t *testing.T) {
	secure, err := SSL(nil, nil)
	require.NoError(t, err)

	_, err = ComposeChannel(secure, CallCredential{})
	require.Error(t, err)
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = ComposeChannel(ChannelCredential{}, tokenGen("x"))
	require.Error(t, err)
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestComposeChannelResultIsNotComposable(t *testing.T) {
	secure, err := SSL(nil, nil)
	require.NoError(t, err)
	require.True(t, secure.IsComposable())

	composite, err := ComposeChannel(secure, tokenGen("x"))
	require.NoError(t, err)
	require.False(t, composite.IsComposable())
}

func TestInsecureIsNotComposable(t *testing.T) {
	require.False(t, Insecure().IsComposable())
}

func TestComposeCallMergesMetadataInOrder(t *testing.T) {
	a := FromMetadataGenerator(func(ctx context.Context, _ string) (rpcmetadata.MD, error) {
		md := rpcmetadata.MD{}
		md.Add("x", "a1")
		return md, nil
	})
	b := FromMetadataGenerator(func(ctx context.Context, _ string) (rpcmetadata.MD, error) {
		md := rpcmetadata.MD{}
		md.Add("x", "b1")
		return md, nil
	})
	composed, err := ComposeCall(a, b)
	require.NoError(t, err)

	md, err := composed.GenerateMetadata(context.Background(), "authority")
	require.NoError(t, err)
	require.Equal(t, []string{"a1", "b1"}, md.Get("x"))
}

func TestCombineIsEquivalentToComposeChannelOfComposeCall(t *testing.T) {
	secure, err := SSL(nil, nil)
	require.NoError(t, err)

	k1, k2 := tokenGen("one"), tokenGen("two")

	viaCombine, err := Combine(secure, k1, k2)
	require.NoError(t, err)

	merged, err := ComposeCall(k1, k2)
	require.NoError(t, err)
	viaExplicit, err := ComposeChannel(secure, merged)
	require.NoError(t, err)

	require.Equal(t, viaExplicit.IsComposable(), viaCombine.IsComposable())
	require.Len(t, viaCombine.PerRPCCredentials(), 1)
	require.Len(t, viaExplicit.PerRPCCredentials(), 1)
}

func TestFromAccessTokenSourceEmitsBearerHeader(t *testing.T) {
	cc := FromAccessTokenSource(tokenSourceFunc(func(ctx context.Context) (string, error) {
		return "abc123", nil
	}))
	md, err := cc.GenerateMetadata(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, []string{"Bearer abc123"}, md.Get("authorization"))
}

type tokenSourceFunc func(ctx context.Context) (string, error)

func (f tokenSourceFunc) Token(ctx context.Context) (string, error) { return f(ctx) }
