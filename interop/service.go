// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package interop

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/luxfi/grpcwire/internal/sideband"
	"github.com/luxfi/grpcwire/internal/transport"
	rpcmd "github.com/luxfi/grpcwire/metadata"
)

// ServiceName is the fully-qualified service name the reference test
// service registers under, matching grpc.testing.TestService so existing
// interop tooling's expectations about method paths still hold.
const ServiceName = "grpc.testing.TestService"

// EchoInitialKey and EchoTrailingKey are the metadata keys the reference
// test service treats specially: any value received under EchoInitialKey is
// echoed back as initial metadata, and any value under EchoTrailingKey is
// echoed back as trailing metadata, letting a client validate metadata
// propagation without a dedicated RPC shape.
const (
	EchoInitialKey  = "x-grpc-test-echo-initial"
	EchoTrailingKey = "x-grpc-test-echo-trailing-bin"
)

// Service implements the reference test service against the transport
// package's ServerStream abstraction.
type Service struct {
	log   *zap.SugaredLogger
	stats *Stats
}

// NewService builds a Service. log may be nil, in which case it logs
// nowhere.
func NewService(log *zap.SugaredLogger) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{log: log, stats: newStats()}
}

// Stats returns the method call counters this Service has accumulated,
// queryable live over the sideband debug control plane via StatsHandler.
func (s *Service) Stats() *Stats {
	return s.stats
}

// StatsHandler returns the sideband.Handler an interop-server binary wires
// up on its debug port to expose s.Stats() to a remote inspector.
func (s *Service) StatsHandler() sideband.Handler {
	return s.stats.Handler()
}

// Register binds every reference test service method onto r.
func (s *Service) Register(r *transport.Registry) {
	path := func(m string) string { return "/" + ServiceName + "/" + m }
	r.Register(path("EmptyCall"), s.track("EmptyCall", s.emptyCall))
	r.Register(path("UnaryCall"), s.track("UnaryCall", s.unaryCall))
	r.Register(path("StreamingInputCall"), s.track("StreamingInputCall", s.streamingInputCall))
	r.Register(path("StreamingOutputCall"), s.track("StreamingOutputCall", s.streamingOutputCall))
	r.Register(path("FullDuplexCall"), s.track("FullDuplexCall", s.fullDuplexCall))
	r.Register(path("HalfDuplexCall"), s.track("HalfDuplexCall", s.halfDuplexCall))
}

func (s *Service) track(method string, h transport.ServiceHandler) transport.ServiceHandler {
	return func(stream *transport.ServerStream) error {
		s.stats.record(method)
		return h(stream)
	}
}

func (s *Service) echoMetadata(stream *transport.ServerStream) error {
	in := stream.RecvInitialMetadata()
	var initial rpcmd.MD
	if vs := in.Get(EchoInitialKey); len(vs) > 0 {
		initial.Set(EchoInitialKey, vs[0])
	}
	if err := stream.SendInitialMetadata(initial); err != nil {
		return err
	}
	if vs := in.Get(EchoTrailingKey); len(vs) > 0 {
		var trailer rpcmd.MD
		trailer.Set(EchoTrailingKey, vs[0])
		stream.SetTrailingMetadata(trailer)
	}
	return nil
}

func respondStatus(st *EchoStatus) error {
	if st == nil || st.Code == 0 {
		return nil
	}
	return status.Error(codes.Code(st.Code), st.Message)
}

func (s *Service) emptyCall(stream *transport.ServerStream) error {
	if err := s.echoMetadata(stream); err != nil {
		return err
	}
	payload, ok, err := stream.RecvMessage()
	if err != nil {
		return err
	}
	if !ok {
		return status.Error(codes.InvalidArgument, "interop: EmptyCall expected one request")
	}
	var req Empty
	if err := json.Unmarshal(payload, &req); err != nil {
		return status.Error(codes.InvalidArgument, "interop: malformed EmptyCall request")
	}
	out, err := serialize(Empty{})
	if err != nil {
		return err
	}
	return stream.SendMessage(out)
}

func (s *Service) unaryCall(stream *transport.ServerStream) error {
	if err := s.echoMetadata(stream); err != nil {
		return err
	}
	payload, ok, err := stream.RecvMessage()
	if err != nil {
		return err
	}
	if !ok {
		return status.Error(codes.InvalidArgument, "interop: UnaryCall expected one request")
	}
	var req SimpleRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return status.Error(codes.InvalidArgument, "interop: malformed UnaryCall request")
	}
	if err := respondStatus(req.ResponseStatus); err != nil {
		return err
	}
	resp := &SimpleResponse{}
	if req.ResponseSize > 0 {
		resp.Payload = NewPayload(req.ResponseSize, resolvePayloadType(req.ResponseType))
	}
	if req.FillUsername || req.FillOAuthScope {
		if auth := stream.RecvInitialMetadata().Get("authorization"); len(auth) > 0 {
			if req.FillUsername {
				resp.Username = auth[0]
			}
			if req.FillOAuthScope {
				resp.OAuthScope = auth[0]
			}
		}
	}
	out, err := serialize(resp)
	if err != nil {
		return err
	}
	return stream.SendMessage(out)
}

func (s *Service) streamingInputCall(stream *transport.ServerStream) error {
	if err := s.echoMetadata(stream); err != nil {
		return err
	}
	var total int32
	for {
		payload, ok, err := stream.RecvMessage()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		var req StreamingInputCallRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return status.Error(codes.InvalidArgument, "interop: malformed StreamingInputCall request")
		}
		if req.Payload != nil {
			total += int32(len(req.Payload.Body))
		}
	}
	out, err := serialize(&StreamingInputCallResponse{AggregatedPayloadSize: total})
	if err != nil {
		return err
	}
	return stream.SendMessage(out)
}

func (s *Service) streamingOutputCall(stream *transport.ServerStream) error {
	if err := s.echoMetadata(stream); err != nil {
		return err
	}
	payload, ok, err := stream.RecvMessage()
	if err != nil {
		return err
	}
	if !ok {
		return status.Error(codes.InvalidArgument, "interop: StreamingOutputCall expected one request")
	}
	var req StreamingOutputCallRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return status.Error(codes.InvalidArgument, "interop: malformed StreamingOutputCall request")
	}
	return s.sendResponses(stream, req.ResponseParameters, req.ResponseStatus)
}

func (s *Service) sendResponses(stream *transport.ServerStream, params []ResponseParameters, fail *EchoStatus) error {
	for _, p := range params {
		if p.IntervalUS > 0 {
			select {
			case <-stream.Context().Done():
				return stream.Context().Err()
			case <-time.After(time.Duration(p.IntervalUS) * time.Microsecond):
			}
		}
		out, err := serialize(&StreamingOutputCallResponse{Payload: NewPayload(p.Size, resolvePayloadType(p.ResponseType))})
		if err != nil {
			return err
		}
		if err := stream.SendMessage(out); err != nil {
			return err
		}
	}
	return respondStatus(fail)
}

// fullDuplexCall interleaves reads and writes: each request's
// ResponseParameters is answered immediately, matching the "ping-pong"
// named test case's expectation that responses are not buffered until
// end-of-stream.
func (s *Service) fullDuplexCall(stream *transport.ServerStream) error {
	if err := s.echoMetadata(stream); err != nil {
		return err
	}
	for {
		payload, ok, err := stream.RecvMessage()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		var req StreamingOutputCallRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return status.Error(codes.InvalidArgument, "interop: malformed FullDuplexCall request")
		}
		if err := s.sendResponses(stream, req.ResponseParameters, req.ResponseStatus); err != nil {
			return err
		}
	}
}

// halfDuplexCall is intentionally unimplemented, matching the reference
// test service's documented gap. It is still registered so a client
// probing for it observes UNIMPLEMENTED rather than a transport-level
// "method not found".
func (s *Service) halfDuplexCall(stream *transport.ServerStream) error {
	return status.Error(codes.Unimplemented, "interop: HalfDuplexCall is not implemented by this server")
}
