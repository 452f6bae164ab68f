// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package grpcwire

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	rpcmd "github.com/luxfi/grpcwire/metadata"
)

func TestStatusErrorCarriesTrailer(t *testing.T) {
	var trailer rpcmd.MD
	trailer.Set("x-grpc-test-echo-trailing-bin", "v")

	st := status.New(codes.NotFound, "nope")
	err := newStatusError(st, trailer)

	require.Equal(t, codes.NotFound, err.Code)
	require.Equal(t, "nope", err.Details)
	require.Equal(t, []string{"v"}, err.Trailer.Get("x-grpc-test-echo-trailing-bin"))
	require.Equal(t, codes.NotFound, status.Code(error(err)))

	var se *StatusError
	require.True(t, errors.As(error(err), &se))
}

func TestProtocolErrorIsInternal(t *testing.T) {
	err := protocolError()
	require.Equal(t, codes.Internal, status.Code(err))
	require.Contains(t, err.Error(), "Failed to parse server response")
}
