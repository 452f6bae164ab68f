// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package grpcwire

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestCheckReservedMethodNames(t *testing.T) {
	err := checkReservedMethodNames(map[string]*MethodDesc{
		"$internal": {},
	})
	require.Error(t, err)
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestCheckReservedMethodNamesAllowsOrdinary(t *testing.T) {
	err := checkReservedMethodNames(map[string]*MethodDesc{
		"UnaryCall": {},
	})
	require.NoError(t, err)
}
