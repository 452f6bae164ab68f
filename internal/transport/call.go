// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcmetadata "google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	grpcstatus "google.golang.org/grpc/status"

	rpccreds "github.com/luxfi/grpcwire/credentials"
	rpcmd "github.com/luxfi/grpcwire/metadata"
)

// Shape describes which directions of a method stream (request-streaming,
// response-streaming, both, or neither).
type Shape struct {
	ClientStreams bool
	ServerStreams bool
}

// Call is a single in-flight RPC: it owns the
// deadline, peer, per-call credential override, and cancellation for one
// method invocation. It is single-owner — no two drivers may submit batches
// against the same Call concurrently,
// though one goroutine may be sending while another is receiving.
type Call struct {
	method    string
	shape     Shape
	cc        Channel
	authority string
	callCreds rpccreds.CallCredential
	maxRecv   int
	log       *zap.SugaredLogger

	ctx            context.Context
	cancel         context.CancelCauseFunc
	deadlineCancel context.CancelFunc

	mu           sync.Mutex
	stream       grpc.ClientStream
	peerInfo     peer.Peer
	sentInitial  bool
	sentClose    bool
	terminal     bool
	terminalOnce sync.Once
}

// CancelledErr is returned/observed when a call is terminated by Cancel
// rather than by a remote status.
var CancelledErr = grpcstatus.Error(codes.Canceled, "rpcwire: call cancelled by caller")

// ErrCallFinished is the "call error" surfaced when a batch is
// submitted against an already-terminal call.
var ErrCallFinished = grpcstatus.Error(codes.Internal, "rpcwire: call already finished")

// NewCall creates a Call bound to method on cc. If deadline is the zero
// time, the call never expires by timeout.
func NewCall(parentCtx context.Context, cc Channel, method string, shape Shape, deadline time.Time, authority string, callCreds rpccreds.CallCredential, maxRecv int, log *zap.SugaredLogger) *Call {
	base := parentCtx
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancelCause(base)
	var deadlineCancel context.CancelFunc
	if !deadline.IsZero() {
		ctx, deadlineCancel = context.WithDeadline(ctx, deadline)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Call{
		method:         method,
		shape:          shape,
		cc:             cc,
		authority:      authority,
		callCreds:      callCreds,
		maxRecv:        maxRecv,
		log:            log,
		ctx:            ctx,
		cancel:         cancel,
		deadlineCancel: deadlineCancel,
	}
}

// SetCredentials overrides the per-call credential before the first batch.
// Once the stream has opened it is a no-op.
func (c *Call) SetCredentials(cc rpccreds.CallCredential) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		c.callCreds = cc
	}
}

// Peer returns the transport's remote address, or "" until the RPC has
// completed: the grpc.Peer call option fills peerInfo only at completion.
func (c *Call) Peer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.peerInfo.Addr == nil {
		return ""
	}
	return c.peerInfo.Addr.String()
}

// Cancel triggers transport cancellation: any outstanding batch and the
// final status report CANCELLED. It is race-safe: if the call already
// reached a terminal state, Cancel is a no-op.
func (c *Call) Cancel() {
	c.cancel(CancelledErr)
}

// CancelWithStatus is like Cancel but the caller-chosen code/details are
// delivered only to the local observer; the remote peer still sees
// CANCELLED on the wire.
func (c *Call) CancelWithStatus(code codes.Code, details string) {
	c.cancel(grpcstatus.Error(code, details))
}

// Context returns the call's context, whose cancellation cause is either
// CancelledErr, a CancelWithStatus error, or nil if still live.
func (c *Call) Context() context.Context { return c.ctx }

// markTerminal flips the call terminal exactly once and reports whether
// this invocation was the one that did so: the first terminal signal wins
// and subsequent ones are suppressed.
func (c *Call) markTerminal() (first bool) {
	first = false
	c.terminalOnce.Do(func() {
		c.mu.Lock()
		c.terminal = true
		c.mu.Unlock()
		first = true
	})
	return first
}

// currentStream returns the already-opened stream, or nil if open hasn't
// run yet.
func (c *Call) currentStream() grpc.ClientStream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream
}

func (c *Call) isTerminal() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminal
}

// errCallComplete is the cancellation cause recorded when a call reaches
// its terminal RECV_STATUS_ON_CLIENT normally, as opposed to via Cancel.
var errCallComplete = errors.New("rpcwire: call completed normally")

// finalize marks the call terminal exactly once, releasing the context and
// any deadline timer. Safe to call more than once; it runs when a batch's
// RECV_STATUS_ON_CLIENT completes.
func (c *Call) finalize() {
	if c.markTerminal() {
		c.cancel(errCallComplete)
		if c.deadlineCancel != nil {
			c.deadlineCancel()
		}
	}
}

// LocalCancelStatus reports the status a local Cancel/CancelWithStatus (or
// deadline expiry) should surface to the application, if the call's context
// has already been cancelled for a reason other than normal completion.
func (c *Call) LocalCancelStatus() (*grpcstatus.Status, bool) {
	cause := context.Cause(c.ctx)
	if cause == nil || errors.Is(cause, errCallComplete) {
		return nil, false
	}
	if errors.Is(cause, context.DeadlineExceeded) {
		return grpcstatus.New(codes.DeadlineExceeded, "rpcwire: deadline exceeded"), true
	}
	if st, ok := grpcstatus.FromError(cause); ok {
		return st, true
	}
	return grpcstatus.New(codes.Canceled, cause.Error()), true
}

// open lazily creates the underlying grpc stream, carrying md as outgoing
// initial metadata. It is the transport-level rendering of a batch's
// SEND_INITIAL_METADATA operation: the HEADERS frame for
// the call goes out as part of stream creation.
func (c *Call) open(md rpcmd.MD) (grpc.ClientStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream != nil {
		return c.stream, nil
	}
	if c.sentInitial {
		return nil, ErrCallFinished
	}
	c.sentInitial = true

	ctx := c.ctx
	if md.Len() > 0 {
		ctx = grpcmetadata.NewOutgoingContext(ctx, md.ToGRPC())
	}

	opts := callOptions(c.callCreds, c.maxRecv)
	if c.authority != "" {
		// grpc-go's stream API has no first-class per-RPC ":authority"
		// override, so this is carried as a hint for logging/
		// peer-identification only; the channel-level
		// default_authority/ssl_target_name_override remain the source of
		// truth for the wire ":authority" header.
		c.log.Debugw("per-call host override requested; channel authority applies on the wire", "host", c.authority)
	}
	opts = append(opts, grpc.Peer(&c.peerInfo))

	desc := &grpc.StreamDesc{
		StreamName:    methodName(c.method),
		ClientStreams: c.shape.ClientStreams,
		ServerStreams: c.shape.ServerStreams,
	}
	stream, err := c.cc.NewStream(ctx, desc, c.method, opts...)
	if err != nil {
		return nil, err
	}
	c.stream = stream
	return stream, nil
}

func methodName(fullMethod string) string {
	for i := len(fullMethod) - 1; i >= 0; i-- {
		if fullMethod[i] == '/' {
			return fullMethod[i+1:]
		}
	}
	return fullMethod
}

// sendClose issues SEND_CLOSE_FROM_CLIENT at most once per call lifetime.
func (c *Call) sendClose() error {
	c.mu.Lock()
	if c.sentClose {
		c.mu.Unlock()
		return nil
	}
	c.sentClose = true
	stream := c.stream
	c.mu.Unlock()
	if stream == nil {
		return ErrCallFinished
	}
	return stream.CloseSend()
}

// statusFromRecvErr converts the error returned by a terminal RecvMsg (or
// Header) into a *grpcstatus.Status. Near-deadline races may surface
// INTERNAL instead of DEADLINE_EXCEEDED, and callers that test timeouts
// must accept either.
func statusFromRecvErr(err error) *grpcstatus.Status {
	if err == nil || err == io.EOF {
		return grpcstatus.New(codes.OK, "")
	}
	return grpcstatus.Convert(err)
}
