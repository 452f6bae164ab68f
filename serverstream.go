// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package grpcwire

import (
	"context"
	"io"
	"sync"

	grpcstatus "google.golang.org/grpc/status"

	"github.com/luxfi/grpcwire/internal/transport"
	rpcmd "github.com/luxfi/grpcwire/metadata"
)

// ServerStream is the application-facing handle for an in-flight
// CallServerStream invocation: the single request
// goes out at construction time, and Recv is called repeatedly until it
// reports io.EOF.
type ServerStream struct {
	*Call

	c    *Client
	m    *MethodDesc
	call *transport.Call

	mu              sync.Mutex
	gotInitial      bool
	initialMetadata rpcmd.MD
	done            bool
	finalErr        error
}

// CallServerStream begins a response-streaming RPC: req goes out with
// SEND_INITIAL_METADATA/SEND_MESSAGE/SEND_CLOSE_FROM_CLIENT in one batch,
// and the caller then drains responses with Recv.
func (c *Client) CallServerStream(ctx context.Context, methodName string, req any, opts ...CallOption) (*ServerStream, error) {
	m, err := c.method(methodName)
	if err != nil {
		return nil, err
	}
	if m.ClientStreams || !m.ServerStreams {
		return nil, invalidArgument("grpcwire: method %q is not server-streaming", methodName)
	}

	cfg := resolveCallConfig(opts)
	call := c.newCall(ctx, m, cfg)

	payload, err := m.Serialize(req)
	if err != nil {
		return nil, err
	}

	b := transport.NewBatch(call.inner).
		WithSendInitialMetadata(cfg.initialMetadata).
		WithSendMessage(payload).
		WithSendCloseFromClient()

	outcome := <-b.Submit()
	if outcome.Err != nil {
		return nil, outcome.Err
	}

	return &ServerStream{
		Call: call,
		c:    c,
		m:    m,
		call: call.inner,
	}, nil
}

// Recv returns the next response message. It returns io.EOF once the server
// has sent RECV_STATUS_ON_CLIENT with status OK; any non-OK terminal status
// is returned as a *StatusError.
func (ss *ServerStream) Recv() (*UnaryResult, error) {
	ss.mu.Lock()
	if ss.done {
		err := ss.finalErr
		ss.mu.Unlock()
		if err == nil {
			err = io.EOF
		}
		return nil, err
	}
	needInitial := !ss.gotInitial
	ss.mu.Unlock()

	b := transport.NewBatch(ss.call)
	if needInitial {
		b = b.WithRecvInitialMetadata()
	}
	b = b.WithRecvMessage()

	outcome := <-b.Submit()
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	res := outcome.Result

	if needInitial {
		ss.mu.Lock()
		ss.gotInitial = true
		ss.initialMetadata = res.InitialMetadata
		ss.mu.Unlock()
	}

	if !transport.StatusOK(res.Status) {
		terminal := ss.finishWithStatus(res.Status, res.TrailingMetadata)
		return nil, terminal
	}

	if !res.MessageOK {
		// End of the response stream: one final batch reads the trailer and
		// status after the last message.
		statusBatch := transport.NewBatch(ss.call).WithRecvStatus()
		statusOutcome := <-statusBatch.Submit()
		if statusOutcome.Err != nil {
			return nil, ss.finishWithErr(statusOutcome.Err)
		}
		sr := statusOutcome.Result
		if !transport.StatusOK(sr.Status) {
			return nil, ss.finishWithStatus(sr.Status, sr.TrailingMetadata)
		}
		ss.mu.Lock()
		ss.done = true
		ss.finalErr = io.EOF
		ss.mu.Unlock()
		return nil, io.EOF
	}

	resp, derr := ss.m.Deserialize(res.Message)
	if derr != nil {
		ss.c.log.Debugw("failed to deserialise server-stream response", "method", ss.m.Path, "error", derr)
		return nil, ss.finishWithErr(protocolError())
	}

	ss.mu.Lock()
	initialMD := ss.initialMetadata
	ss.mu.Unlock()

	return &UnaryResult{Response: resp, InitialMetadata: initialMD}, nil
}

func (ss *ServerStream) finishWithStatus(st *grpcstatus.Status, trailer rpcmd.MD) error {
	err := newStatusError(st, trailer)
	return ss.finishWithErr(err)
}

func (ss *ServerStream) finishWithErr(err error) error {
	ss.mu.Lock()
	ss.done = true
	ss.finalErr = err
	ss.mu.Unlock()
	return err
}
