// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package grpcwire is a method-oriented RPC client/server binding layered
// over google.golang.org/grpc's transport. Application code describes a
// service as a ServiceDesc (method name → path/shape/serialize/deserialize)
// and dials a Client that turns each call into the ordered sequence of
// batched transport operations used by the underlying transport core:
// SEND_INITIAL_METADATA, SEND_MESSAGE, SEND_CLOSE_FROM_CLIENT,
// RECV_INITIAL_METADATA, RECV_MESSAGE, RECV_STATUS_ON_CLIENT.
//
// # Call shapes
//
// Four drivers translate the four RPC shapes into batches:
//
//	CallUnary         — one send, one recv, one status; synchronous.
//	CallClientStream  — many sends, then a half-close, then one recv+status.
//	CallServerStream  — one send, then many recvs, terminated by status.
//	CallBidi          — caller-driven Send and Recv, each direction independent, terminated by status.
//
// # Credentials
//
// See package credentials for the channel/call credential algebra: at most
// one channel credential may appear in a composite, and composing a call
// credential onto a channel credential yields a new, non-composable channel
// credential.
//
// # Metadata
//
// See package metadata for the ordered multimap used for both initial and
// trailing headers, and the "-bin" binary-key convention.
//
// # Reference interop service
//
// Package interop implements the reference test service and the named
// interop test cases against this package, for end-to-end verification via
// cmd/interop-client and cmd/interop-server.
//
// # Architecture
//
//   - client.go: the client factory (ServiceDesc → Client) and dialing.
//   - options.go: channel and per-call options.
//   - call.go: the exported Call handle wrapping internal/transport.Call.
//   - unary.go, clientstream.go, serverstream.go, bidi.go: the four drivers.
//   - errors.go: invalid-argument construction and reserved-prefix checks.
//   - status.go: the remote-status error type carrying code/details/trailer.
package grpcwire
