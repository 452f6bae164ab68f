// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package interop

import "github.com/luxfi/grpcwire"

// Desc is the grpcwire.ServiceDesc for the reference test service, ready to
// pass to grpcwire.NewClient.
var Desc = grpcwire.ServiceDesc{
	ServiceName: ServiceName,
	Methods: map[string]*grpcwire.MethodDesc{
		"EmptyCall": {
			Path:        "/" + ServiceName + "/EmptyCall",
			Serialize:   serialize,
			Deserialize: deserializer[Empty](),
		},
		"UnaryCall": {
			Path:        "/" + ServiceName + "/UnaryCall",
			Serialize:   serialize,
			Deserialize: deserializer[SimpleResponse](),
		},
		"StreamingInputCall": {
			Path:          "/" + ServiceName + "/StreamingInputCall",
			ClientStreams: true,
			Serialize:     serialize,
			Deserialize:   deserializer[StreamingInputCallResponse](),
		},
		"StreamingOutputCall": {
			Path:          "/" + ServiceName + "/StreamingOutputCall",
			ServerStreams: true,
			Serialize:     serialize,
			Deserialize:   deserializer[StreamingOutputCallResponse](),
		},
		"FullDuplexCall": {
			Path:          "/" + ServiceName + "/FullDuplexCall",
			ClientStreams: true,
			ServerStreams: true,
			Serialize:     serialize,
			Deserialize:   deserializer[StreamingOutputCallResponse](),
		},
		"HalfDuplexCall": {
			Path:          "/" + ServiceName + "/HalfDuplexCall",
			ClientStreams: true,
			ServerStreams: true,
			Serialize:     serialize,
			Deserialize:   deserializer[StreamingOutputCallResponse](),
		},
	},
}
