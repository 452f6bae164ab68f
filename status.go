// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package grpcwire

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	rpcmd "github.com/luxfi/grpcwire/metadata"
)

// StatusError is a remote (or local-cancel) status surfaced to the
// application: it carries the status
// code, details, and the trailing metadata the peer attached.
type StatusError struct {
	Code    codes.Code
	Details string
	Trailer rpcmd.MD
	grpcErr error
}

func (e *StatusError) Error() string {
	return e.grpcErr.Error()
}

// Unwrap exposes the underlying grpc status error.
func (e *StatusError) Unwrap() error {
	return e.grpcErr
}

// GRPCStatus lets google.golang.org/grpc/status.FromError/Code recognise a
// *StatusError directly, without relying on Unwrap traversal.
func (e *StatusError) GRPCStatus() *status.Status {
	st, _ := status.FromError(e.grpcErr)
	return st
}

func newStatusError(st *status.Status, trailer rpcmd.MD) *StatusError {
	return &StatusError{
		Code:    st.Code(),
		Details: st.Message(),
		Trailer: trailer,
		grpcErr: st.Err(),
	}
}

// protocolError is the remapping applied when a batch completes with
// status OK but the response message fails to deserialise: downgrade to
// INTERNAL with a fixed, non-leaky detail message.
func protocolError() error {
	return status.Error(codes.Internal, "Failed to parse server response")
}
