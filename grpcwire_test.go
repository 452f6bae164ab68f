// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package grpcwire_test

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/luxfi/grpcwire"
	rpccreds "github.com/luxfi/grpcwire/credentials"
	"github.com/luxfi/grpcwire/internal/transport"
	"github.com/luxfi/grpcwire/interop"
)

const bufSize = 1 << 20

// newTestClient spins up the reference test service on an in-memory
// bufconn listener and returns a connected Client; the server and client are
// torn down via t.Cleanup.
func newTestClient(t *testing.T) *grpcwire.Client {
	t.Helper()

	lis := bufconn.Listen(bufSize)
	registry := transport.NewRegistry(nil)
	interop.NewService(nil).Register(registry)
	server := transport.NewServer(registry)
	go server.Serve(lis)
	t.Cleanup(server.Stop)

	dialer := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := grpcwire.NewClient(ctx, "bufnet", interop.Desc, rpccreds.Insecure(), grpcwire.WithDialOptions(dialer))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestCallUnaryEmpty(t *testing.T) {
	client := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, _, err := client.CallUnary(ctx, "EmptyCall", interop.Empty{})
	require.NoError(t, err)
	_, ok := res.Response.(interop.Empty)
	require.True(t, ok)
}

func TestCallUnaryLarge(t *testing.T) {
	client := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req := interop.SimpleRequest{ResponseSize: 314159, Payload: interop.NewPayload(271828, interop.Compressable)}
	res, _, err := client.CallUnary(ctx, "UnaryCall", req)
	require.NoError(t, err)
	resp := res.Response.(interop.SimpleResponse)
	require.Len(t, resp.Payload.Body, 314159)
}

func TestCallClientStream(t *testing.T) {
	client := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cs, err := client.CallClientStream(ctx, "StreamingInputCall")
	require.NoError(t, err)

	sizes := []int32{27182, 8, 1828, 45904}
	var want int32
	for _, sz := range sizes {
		want += sz
		require.NoError(t, cs.Send(interop.StreamingInputCallRequest{Payload: interop.NewPayload(sz, interop.Compressable)}))
	}
	res, err := cs.CloseAndRecv()
	require.NoError(t, err)
	resp := res.Response.(interop.StreamingInputCallResponse)
	require.Equal(t, want, resp.AggregatedPayloadSize)
}

func TestCallServerStream(t *testing.T) {
	client := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sizes := []int32{31415, 9, 2653, 58979}
	var params []interop.ResponseParameters
	for _, sz := range sizes {
		params = append(params, interop.ResponseParameters{Size: sz})
	}

	ss, err := client.CallServerStream(ctx, "StreamingOutputCall", interop.StreamingOutputCallRequest{ResponseParameters: params})
	require.NoError(t, err)

	var got []int32
	for {
		res, err := ss.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		resp := res.Response.(interop.StreamingOutputCallResponse)
		got = append(got, int32(len(resp.Payload.Body)))
	}
	require.Equal(t, sizes, got)
}

func TestCallBidiPingPong(t *testing.T) {
	client := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	bs, err := client.CallBidi(ctx, "FullDuplexCall")
	require.NoError(t, err)

	reqSizes := []int32{27182, 8}
	respSizes := []int32{31415, 9}
	for i := range reqSizes {
		req := interop.StreamingOutputCallRequest{
			ResponseParameters: []interop.ResponseParameters{{Size: respSizes[i]}},
			Payload:            interop.NewPayload(reqSizes[i], interop.Compressable),
		}
		require.NoError(t, bs.Send(req))
		res, err := bs.Recv()
		require.NoError(t, err)
		resp := res.Response.(interop.StreamingOutputCallResponse)
		require.Len(t, resp.Payload.Body, int(respSizes[i]))
	}
	require.NoError(t, bs.CloseSend())
	_, err = bs.Recv()
	require.ErrorIs(t, err, io.EOF)
}

func TestCallUnaryCancelled(t *testing.T) {
	client := newTestClient(t)
	ctx, cancelCtx := context.WithCancel(context.Background())
	cancelCtx()

	_, _, err := client.CallUnary(ctx, "EmptyCall", interop.Empty{})
	require.Error(t, err)
}

func TestUnknownMethodRejected(t *testing.T) {
	client := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, _, err := client.CallUnary(ctx, "NoSuchMethod", interop.Empty{})
	require.Error(t, err)
}
