// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package grpcwire

import (
	"context"

	"github.com/luxfi/grpcwire/internal/transport"
	rpcmd "github.com/luxfi/grpcwire/metadata"
)

// UnaryResult is the outcome of a successful CallUnary: the deserialised
// response together with the initial and trailing metadata the peer sent.
type UnaryResult struct {
	Response         any
	InitialMetadata  rpcmd.MD
	TrailingMetadata rpcmd.MD
}

// CallUnary drives a single-request/single-response RPC:
// SEND_INITIAL_METADATA, SEND_MESSAGE, and SEND_CLOSE_FROM_CLIENT go out in
// one batch together with RECV_INITIAL_METADATA, RECV_MESSAGE, and
// RECV_STATUS_ON_CLIENT, matching the "one round trip" shape of a unary
// call. A non-OK status is returned as a *StatusError; a status-OK
// response that fails to deserialise is downgraded to INTERNAL.
func (c *Client) CallUnary(ctx context.Context, methodName string, req any, opts ...CallOption) (*UnaryResult, *Call, error) {
	m, err := c.method(methodName)
	if err != nil {
		return nil, nil, err
	}
	if m.ClientStreams || m.ServerStreams {
		return nil, nil, invalidArgument("grpcwire: method %q is not unary", methodName)
	}

	cfg := resolveCallConfig(opts)
	call := c.newCall(ctx, m, cfg)

	payload, err := m.Serialize(req)
	if err != nil {
		return nil, call, err
	}

	batch := transport.NewBatch(call.inner).
		WithSendInitialMetadata(cfg.initialMetadata).
		WithSendMessage(payload).
		WithSendCloseFromClient().
		WithRecvInitialMetadata().
		WithRecvMessage().
		WithRecvStatus()

	outcome := <-batch.Submit()
	if outcome.Err != nil {
		return nil, call, outcome.Err
	}
	res := outcome.Result

	if !transport.StatusOK(res.Status) {
		return nil, call, newStatusError(res.Status, res.TrailingMetadata)
	}
	if !res.MessageOK {
		return nil, call, invalidArgument("grpcwire: method %q completed OK with no response message", methodName)
	}

	resp, derr := m.Deserialize(res.Message)
	if derr != nil {
		c.log.Debugw("failed to deserialise unary response", "method", methodName, "error", derr)
		return nil, call, protocolError()
	}

	return &UnaryResult{
		Response:         resp,
		InitialMetadata:  res.InitialMetadata,
		TrailingMetadata: res.TrailingMetadata,
	}, call, nil
}
