// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package grpcwire

import (
	"google.golang.org/grpc/codes"

	rpccreds "github.com/luxfi/grpcwire/credentials"
	"github.com/luxfi/grpcwire/internal/transport"
)

// Call is the application-facing handle for one in-flight RPC.
// CallUnary returns one alongside its result; CallClientStream,
// CallServerStream and CallBidi embed one in their stream handle.
type Call struct {
	inner *transport.Call
}

// Cancel triggers transport cancellation: the final status reports
// CANCELLED both locally and to the remote peer. It is
// race-safe: calling it after the call has already completed is a no-op.
func (c *Call) Cancel() {
	c.inner.Cancel()
}

// CancelWithStatus is like Cancel, but the caller-chosen code/details are
// delivered only to the local observer; the remote peer still observes
// CANCELLED.
func (c *Call) CancelWithStatus(code codes.Code, details string) {
	c.inner.CancelWithStatus(code, details)
}

// Peer returns the transport's remote address, or "" until the RPC has
// completed (grpc-go reports the peer of a call only at completion).
func (c *Call) Peer() string {
	return c.inner.Peer()
}

// SetCredentials overrides the per-call credential before the first batch.
// Prefer WithCallCredentials at invocation time; this exists for callers
// that obtain a Call before deciding on credentials.
func (c *Call) SetCredentials(cred rpccreds.CallCredential) {
	c.inner.SetCredentials(cred)
}
