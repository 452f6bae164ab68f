// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"io"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	rpcmd "github.com/luxfi/grpcwire/metadata"
)

// Op identifies one of the six batch operation slots.
type Op uint8

const (
	OpSendInitialMetadata Op = 1 << iota
	OpSendMessage
	OpSendCloseFromClient
	OpRecvInitialMetadata
	OpRecvMessage
	OpRecvStatus
)

// Batch is a set of operations submitted to the transport on one call: each
// slot may appear at most once. The operations run in slot order; a batch
// that fails part-way reports Err, and the operations that ran before the
// failure are not undone.
type Batch struct {
	call *Call
	set  Op

	sendInitialMD rpcmd.MD
	sendMessage   []byte
}

// NewBatch begins building a batch against call. Operations are added with
// the With* methods below and the batch is submitted with Submit.
func NewBatch(call *Call) *Batch {
	return &Batch{call: call}
}

func (b *Batch) has(op Op) bool { return b.set&op != 0 }

// WithSendInitialMetadata adds SEND_INITIAL_METADATA to the batch.
func (b *Batch) WithSendInitialMetadata(md rpcmd.MD) *Batch {
	b.set |= OpSendInitialMetadata
	b.sendInitialMD = md
	return b
}

// WithSendMessage adds SEND_MESSAGE to the batch.
func (b *Batch) WithSendMessage(payload []byte) *Batch {
	b.set |= OpSendMessage
	b.sendMessage = payload
	return b
}

// WithSendCloseFromClient adds SEND_CLOSE_FROM_CLIENT to the batch.
func (b *Batch) WithSendCloseFromClient() *Batch {
	b.set |= OpSendCloseFromClient
	return b
}

// WithRecvInitialMetadata adds RECV_INITIAL_METADATA to the batch.
func (b *Batch) WithRecvInitialMetadata() *Batch {
	b.set |= OpRecvInitialMetadata
	return b
}

// WithRecvMessage adds RECV_MESSAGE to the batch.
func (b *Batch) WithRecvMessage() *Batch {
	b.set |= OpRecvMessage
	return b
}

// WithRecvStatus adds RECV_STATUS_ON_CLIENT to the batch.
func (b *Batch) WithRecvStatus() *Batch {
	b.set |= OpRecvStatus
	return b
}

// Result carries the outcome of every recv operation a batch contained.
// Send operations carry no payload on completion.
type Result struct {
	InitialMetadata rpcmd.MD

	// MessageOK is false when RECV_MESSAGE observed end-of-stream (no
	// payload); Message is only valid when MessageOK is true.
	Message   []byte
	MessageOK bool

	Status           *grpcstatus.Status
	TrailingMetadata rpcmd.MD
}

// Outcome is what Batch.Submit delivers: either a Result (the transport
// accepted and ran every operation the batch contained) or Err (a "call
// error": the transport rejected the batch outright, e.g. because the call
// had already finished).
type Outcome struct {
	Result *Result
	Err    error
}

// Submit runs the batch and delivers its Outcome on the returned channel,
// so the application observes completion via a continuation or a received
// event on a channel. The channel is buffered so Submit never blocks the
// caller.
func (b *Batch) Submit() <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() { ch <- b.run() }()
	return ch
}

func (b *Batch) run() Outcome {
	c := b.call
	if c.isTerminal() {
		return Outcome{Err: ErrCallFinished}
	}

	result := &Result{}

	// Send ordering within a batch: initial metadata before
	// message, message before close. Opening the stream is how
	// SEND_INITIAL_METADATA is rendered onto the wire (see Call.open).
	var stream = c.currentStream()
	if b.has(OpSendInitialMetadata) {
		s, err := c.open(b.sendInitialMD)
		if err != nil {
			return Outcome{Err: err}
		}
		stream = s
	}
	if stream == nil {
		return Outcome{Err: ErrCallFinished}
	}

	if b.has(OpSendMessage) {
		if err := stream.SendMsg(b.sendMessage); err != nil {
			// A write after cancel/end-of-stream is dropped silently: the
			// final status (delivered via a later RECV_STATUS_ON_CLIENT
			// batch) carries the real error.
			if c.isTerminal() {
				return Outcome{Result: result}
			}
		}
	}
	if b.has(OpSendCloseFromClient) {
		if err := c.sendClose(); err != nil && !c.isTerminal() {
			return Outcome{Err: err}
		}
	}
	if b.has(OpRecvInitialMetadata) {
		md, err := stream.Header()
		if err != nil {
			result.Status = statusFromRecvErr(err)
		} else {
			result.InitialMetadata = rpcmd.FromGRPC(md)
		}
	}
	if b.has(OpRecvMessage) {
		var buf []byte
		err := stream.RecvMsg(&buf)
		switch {
		case err == nil:
			result.Message = buf
			result.MessageOK = true
		case err == io.EOF:
			result.MessageOK = false
		default:
			result.MessageOK = false
			result.Status = statusFromRecvErr(err)
			if local, ok := c.LocalCancelStatus(); ok {
				result.Status = local
			}
		}
	}
	if b.has(OpRecvStatus) {
		// Draining RecvMsg until the stream ends is how grpc-go surfaces
		// final status/trailer on the client: the terminal error from
		// RecvMsg (io.EOF on success) carries the status.
		var buf []byte
		err := stream.RecvMsg(&buf)
		st := statusFromRecvErr(err)
		if local, ok := c.LocalCancelStatus(); ok {
			st = local
		}
		result.Status = st
		result.TrailingMetadata = rpcmd.FromGRPC(stream.Trailer())
		c.finalize()
	}

	return Outcome{Result: result}
}

// StatusOK reports whether st is a successful (OK) status, defaulting to
// true when st is nil (no status observed yet in this batch).
func StatusOK(st *grpcstatus.Status) bool {
	return st == nil || st.Code() == codes.OK
}
