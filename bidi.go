// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package grpcwire

import (
	"context"
	"io"
	"sync"

	"github.com/luxfi/grpcwire/internal/transport"
	rpcmd "github.com/luxfi/grpcwire/metadata"
)

// BidiStream is the application-facing handle for an in-flight CallBidi
// invocation: Send and Recv may be called concurrently from independent
// goroutines, since the two directions of a full-duplex call are
// independent of each other.
type BidiStream struct {
	*Call

	c    *Client
	m    *MethodDesc
	call *transport.Call

	sendMu      sync.Mutex
	sentHeaders bool
	initialMD   rpcmd.MD
	closed      bool

	recvMu           sync.Mutex
	gotInitial       bool
	initialMetadata  rpcmd.MD
	trailingMetadata rpcmd.MD
	done             bool
	finalErr         error
}

// CallBidi begins a full-duplex streaming RPC.
func (c *Client) CallBidi(ctx context.Context, methodName string, opts ...CallOption) (*BidiStream, error) {
	m, err := c.method(methodName)
	if err != nil {
		return nil, err
	}
	if !m.ClientStreams || !m.ServerStreams {
		return nil, invalidArgument("grpcwire: method %q is not bidirectional-streaming", methodName)
	}

	cfg := resolveCallConfig(opts)
	call := c.newCall(ctx, m, cfg)

	return &BidiStream{
		Call:      call,
		c:         c,
		m:         m,
		call:      call.inner,
		initialMD: cfg.initialMetadata,
	}, nil
}

// Send serialises req and submits it as a SEND_MESSAGE batch, opening the
// stream with SEND_INITIAL_METADATA on the first call. Safe to call
// concurrently with Recv, but not with itself.
func (bs *BidiStream) Send(req any) error {
	payload, err := bs.m.Serialize(req)
	if err != nil {
		return err
	}

	bs.sendMu.Lock()
	first := !bs.sentHeaders
	bs.sentHeaders = true
	initialMD := bs.initialMD
	bs.sendMu.Unlock()

	b := transport.NewBatch(bs.call)
	if first {
		b = b.WithSendInitialMetadata(initialMD)
	}
	b = b.WithSendMessage(payload)

	outcome := <-b.Submit()
	return outcome.Err
}

// CloseSend issues SEND_CLOSE_FROM_CLIENT, signalling that no further
// requests will be sent, opening the stream with SEND_INITIAL_METADATA first
// if Send was never called. The response stream may still be drained via
// Recv afterwards.
func (bs *BidiStream) CloseSend() error {
	bs.sendMu.Lock()
	alreadyClosed := bs.closed
	bs.closed = true
	first := !bs.sentHeaders
	bs.sentHeaders = true
	initialMD := bs.initialMD
	bs.sendMu.Unlock()
	if alreadyClosed {
		return nil
	}

	b := transport.NewBatch(bs.call)
	if first {
		b = b.WithSendInitialMetadata(initialMD)
	}
	b = b.WithSendCloseFromClient()
	outcome := <-b.Submit()
	return outcome.Err
}

// Recv returns the next response message, or io.EOF once the final status
// has been observed as OK. A non-OK terminal status is returned as a
// *StatusError. Safe to call concurrently with Send.
func (bs *BidiStream) Recv() (*UnaryResult, error) {
	bs.recvMu.Lock()
	if bs.done {
		err := bs.finalErr
		bs.recvMu.Unlock()
		if err == nil {
			err = io.EOF
		}
		return nil, err
	}
	needInitial := !bs.gotInitial
	bs.recvMu.Unlock()

	b := transport.NewBatch(bs.call)
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
		bs.recvMu.Lock()
		bs.gotInitial = true
		bs.initialMetadata = res.InitialMetadata
		bs.recvMu.Unlock()
	}

	if !transport.StatusOK(res.Status) {
		return nil, bs.finishWithErr(newStatusError(res.Status, res.TrailingMetadata))
	}

	if !res.MessageOK {
		statusBatch := transport.NewBatch(bs.call).WithRecvStatus()
		statusOutcome := <-statusBatch.Submit()
		if statusOutcome.Err != nil {
			return nil, bs.finishWithErr(statusOutcome.Err)
		}
		sr := statusOutcome.Result
		if !transport.StatusOK(sr.Status) {
			return nil, bs.finishWithErr(newStatusError(sr.Status, sr.TrailingMetadata))
		}
		bs.recvMu.Lock()
		bs.trailingMetadata = sr.TrailingMetadata
		bs.recvMu.Unlock()
		return nil, bs.finishWithErr(io.EOF)
	}

	resp, derr := bs.m.Deserialize(res.Message)
	if derr != nil {
		bs.c.log.Debugw("failed to deserialise bidi response", "method", bs.m.Path, "error", derr)
		return nil, bs.finishWithErr(protocolError())
	}

	bs.recvMu.Lock()
	initialMD := bs.initialMetadata
	bs.recvMu.Unlock()

	return &UnaryResult{Response: resp, InitialMetadata: initialMD}, nil
}

// TrailingMetadata returns the trailing metadata the server sent to close
// the stream. It is only populated once Recv has observed a status-OK
// io.EOF; before that, or after a non-OK terminal status (carried on the
// *StatusError instead), it is empty.
func (bs *BidiStream) TrailingMetadata() rpcmd.MD {
	bs.recvMu.Lock()
	defer bs.recvMu.Unlock()
	return bs.trailingMetadata
}

func (bs *BidiStream) finishWithErr(err error) error {
	bs.recvMu.Lock()
	bs.done = true
	bs.finalErr = err
	bs.recvMu.Unlock()
	return err
}
