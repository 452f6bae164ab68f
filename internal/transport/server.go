// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package transport

import (
	"io"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcmetadata "google.golang.org/grpc/metadata"
	grpcstatus "google.golang.org/grpc/status"

	rpcmd "github.com/luxfi/grpcwire/metadata"
)

// ServerStream wraps a grpc.ServerStream, translating it into the same
// operation vocabulary the client-side Batch uses, so the reference test
// service is written against one mental model regardless of which side of
// the call it runs on.
type ServerStream struct {
	grpc.ServerStream
	method string
}

// Method returns the full method name the client invoked, e.g.
// "/grpc.testing.TestService/UnaryCall".
func (s *ServerStream) Method() string { return s.method }

// RecvInitialMetadata returns the metadata the client sent when it opened
// the call.
func (s *ServerStream) RecvInitialMetadata() rpcmd.MD {
	md, ok := grpcmetadata.FromIncomingContext(s.Context())
	if !ok {
		return rpcmd.MD{}
	}
	return rpcmd.FromGRPC(md)
}

// SendInitialMetadata sends md as the response's initial (header) metadata.
// It must be called at most once, before the first SendMessage, matching
// the SEND_INITIAL_METADATA slot.
func (s *ServerStream) SendInitialMetadata(md rpcmd.MD) error {
	return s.SendHeader(md.ToGRPC())
}

// RecvMessage reads one inbound message. ok is false once the client has
// half-closed (RECV_MESSAGE completion with no payload).
func (s *ServerStream) RecvMessage() (payload []byte, ok bool, err error) {
	var buf []byte
	rerr := s.RecvMsg(&buf)
	if rerr == io.EOF {
		return nil, false, nil
	}
	if rerr != nil {
		return nil, false, rerr
	}
	return buf, true, nil
}

// SendMessage writes one outbound message (SEND_MESSAGE).
func (s *ServerStream) SendMessage(payload []byte) error {
	return s.SendMsg(payload)
}

// SetTrailingMetadata attaches md to the status this call will complete
// with.
func (s *ServerStream) SetTrailingMetadata(md rpcmd.MD) {
	s.SetTrailer(md.ToGRPC())
}

// ServiceHandler implements one RPC method against a ServerStream. Errors
// should be constructed with google.golang.org/grpc/status so their code
// and details survive onto the wire; a plain error is reported as
// codes.Unknown, matching grpc-go's own convention.
type ServiceHandler func(stream *ServerStream) error

// Registry dispatches by full method name via grpc.UnknownServiceHandler,
// so the server never needs compiled-in *.pb.go service descriptors — the
// registry supplies method descriptors directly.
type Registry struct {
	handlers map[string]ServiceHandler
	log      *zap.SugaredLogger
}

// NewRegistry builds an empty method registry.
func NewRegistry(log *zap.SugaredLogger) *Registry {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Registry{handlers: make(map[string]ServiceHandler), log: log}
}

// Register binds fullMethod (e.g. "/grpc.testing.TestService/EmptyCall") to
// handler.
func (r *Registry) Register(fullMethod string, handler ServiceHandler) {
	r.handlers[fullMethod] = handler
}

// UnknownServiceHandler is installed via grpc.UnknownServiceHandler so every
// inbound stream, regardless of method, is dispatched through r.
func (r *Registry) UnknownServiceHandler(srv any, stream grpc.ServerStream) error {
	method, ok := grpc.MethodFromServerStream(stream)
	if !ok {
		return grpcstatus.Error(codes.Internal, "transport: could not recover method name from stream")
	}
	handler, ok := r.handlers[method]
	if !ok {
		return grpcstatus.Errorf(codes.Unimplemented, "transport: method %s not implemented", method)
	}
	r.log.Debugw("dispatching rpc", "method", method)
	return handler(&ServerStream{ServerStream: stream, method: method})
}

// NewServer builds a *grpc.Server whose only routing table is r, negotiating
// the raw codec this package registers. opts are appended after the
// UnknownServiceHandler option, so callers may add TLS credentials,
// interceptors, etc.
func NewServer(r *Registry, opts ...grpc.ServerOption) *grpc.Server {
	all := append([]grpc.ServerOption{grpc.UnknownServiceHandler(r.UnknownServiceHandler)}, opts...)
	return grpc.NewServer(all...)
}
