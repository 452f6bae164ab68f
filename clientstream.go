// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package grpcwire

import (
	"context"
	"sync"

	"github.com/luxfi/grpcwire/internal/transport"
	rpcmd "github.com/luxfi/grpcwire/metadata"
)

// ClientStream is the application-facing handle for an in-flight
// CallClientStream invocation. Send is called any
// number of times, followed by exactly one CloseAndRecv.
type ClientStream struct {
	*Call

	c    *Client
	m    *MethodDesc
	call *transport.Call

	mu          sync.Mutex
	sentHeaders bool
	initialMD   rpcmd.MD
	closed      bool
}

// CallClientStream begins a request-streaming RPC: the application calls
// Send zero or more times, then CloseAndRecv exactly once to half-close
// the stream and read the single response.
func (c *Client) CallClientStream(ctx context.Context, methodName string, opts ...CallOption) (*ClientStream, error) {
	m, err := c.method(methodName)
	if err != nil {
		return nil, err
	}
	if !m.ClientStreams || m.ServerStreams {
		return nil, invalidArgument("grpcwire: method %q is not client-streaming", methodName)
	}

	cfg := resolveCallConfig(opts)
	call := c.newCall(ctx, m, cfg)

	return &ClientStream{
		Call:      call,
		c:         c,
		m:         m,
		call:      call.inner,
		initialMD: cfg.initialMetadata,
	}, nil
}

// Send serialises req and submits it as a SEND_MESSAGE batch, opening the
// stream with SEND_INITIAL_METADATA on the first call.
func (cs *ClientStream) Send(req any) error {
	payload, err := cs.m.Serialize(req)
	if err != nil {
		return err
	}

	cs.mu.Lock()
	first := !cs.sentHeaders
	cs.sentHeaders = true
	initialMD := cs.initialMD
	cs.mu.Unlock()

	b := transport.NewBatch(cs.call)
	if first {
		b = b.WithSendInitialMetadata(initialMD)
	}
	b = b.WithSendMessage(payload)

	outcome := <-b.Submit()
	return outcome.Err
}

// CloseAndRecv issues SEND_CLOSE_FROM_CLIENT and reads the single response
// together with the final status: RECV_INITIAL_METADATA,
// RECV_MESSAGE, and RECV_STATUS_ON_CLIENT are batched together with the
// close, matching "the server may respond as soon as it has read enough of
// the request stream".
func (cs *ClientStream) CloseAndRecv() (*UnaryResult, error) {
	cs.mu.Lock()
	first := !cs.sentHeaders
	cs.sentHeaders = true
	initialMD := cs.initialMD
	alreadyClosed := cs.closed
	cs.closed = true
	cs.mu.Unlock()

	if alreadyClosed {
		return nil, invalidArgument("grpcwire: CloseAndRecv called twice")
	}

	b := transport.NewBatch(cs.call)
	if first {
		b = b.WithSendInitialMetadata(initialMD)
	}
	b = b.WithSendCloseFromClient().
		WithRecvInitialMetadata().
		WithRecvMessage().
		WithRecvStatus()

	outcome := <-b.Submit()
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	res := outcome.Result

	if !transport.StatusOK(res.Status) {
		return nil, newStatusError(res.Status, res.TrailingMetadata)
	}
	if !res.MessageOK {
		return nil, invalidArgument("grpcwire: client-streaming call completed OK with no response message")
	}

	resp, derr := cs.m.Deserialize(res.Message)
	if derr != nil {
		cs.c.log.Debugw("failed to deserialise client-stream response", "method", cs.m.Path, "error", derr)
		return nil, protocolError()
	}

	return &UnaryResult{
		Response:         resp,
		InitialMetadata:  res.InitialMetadata,
		TrailingMetadata: res.TrailingMetadata,
	}, nil
}
