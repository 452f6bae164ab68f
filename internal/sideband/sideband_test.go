// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package sideband

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lis, err := net.Listen("tcp", ":0")
	require.NoError(t, err)

	server := NewServer(lis, HandlerFunc(func(_ context.Context, method string, payload []byte) ([]byte, error) {
		require.Equal(t, "echo", method)
		return payload, nil
	}))
	defer server.Close()
	go server.Serve(ctx)

	conn, err := Dial(ctx, lis.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	resp, err := conn.Call(ctx, "echo", []byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, "hello world", string(resp))
}

func TestErrorPropagation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lis, err := net.Listen("tcp", ":0")
	require.NoError(t, err)

	server := NewServer(lis, HandlerFunc(func(_ context.Context, _ string, _ []byte) ([]byte, error) {
		return nil, errBoom
	}))
	defer server.Close()
	go server.Serve(ctx)

	conn, err := Dial(ctx, lis.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Call(ctx, "anything", nil)
	require.Error(t, err)
}

var errBoom = &testError{"boom"}

type testError struct{ s string }

func (e *testError) Error() string { return e.s }
